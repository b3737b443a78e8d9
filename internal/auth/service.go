// Package auth owns the current identity: it logs in against the authentication API, persists
// the session locally and reads it back on start-up.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"librarydesk/internal/entity"
	"librarydesk/internal/platform/catalogapi"
	"librarydesk/internal/platform/crypto"
	"librarydesk/internal/storage"
	"librarydesk/internal/validation"
)

// View is the screen a role lands on after login.
type View string

const (
	AdminView  View = "admin-dashboard"
	PatronView View = "user-dashboard"
)

// Destination maps a role to its landing view. There is no third path.
func Destination(role entity.Role) (View, error) {
	switch role {
	case entity.RoleAdmin:
		return AdminView, nil
	case entity.RoleUser:
		return PatronView, nil
	}
	return "", fmt.Errorf("no destination: %w: %q", entity.ErrUnknownRole, role)
}

type SignInAPI interface {
	SignIn(ctx context.Context, email, password string) (catalogapi.SignInResult, error)
}

type Service struct {
	api   SignInAPI
	store storage.Store
	now   func() time.Time
}

func NewService(api SignInAPI, store storage.Store) *Service {
	return &Service{api: api, store: store, now: time.Now}
}

type LoginResult struct {
	Session     entity.Session
	Destination View
}

// Login signs in and persists the session. Any failure leaves stored state exactly as it was.
func (s *Service) Login(ctx context.Context, creds entity.Credentials) (LoginResult, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if err := validation.Struct(creds); err != nil {
		return LoginResult{}, err
	}

	res, err := s.api.SignIn(ctx, creds.Email, creds.Password)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}

	sess, err := s.sessionFrom(res.Token, res.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login: %w", err)
	}
	dest, err := Destination(sess.Role)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.store.SetMany(ctx, map[string]string{
		storage.KeyToken: sess.Token,
		storage.KeyRole:  string(sess.Role),
	}); err != nil {
		return LoginResult{}, fmt.Errorf("persist session: %w", err)
	}

	log.Printf("login ok subject=%s role=%s", sess.Subject, sess.Role)
	return LoginResult{Session: sess, Destination: dest}, nil
}

// CurrentSession reads the persisted session. It reports absent when either key is missing or
// the token is malformed or expired. A stored role outside admin/user is an error.
func (s *Service) CurrentSession(ctx context.Context) (entity.Session, bool, error) {
	token, ok, err := s.store.Get(ctx, storage.KeyToken)
	if err != nil || !ok || token == "" {
		return entity.Session{}, false, err
	}
	role, ok, err := s.store.Get(ctx, storage.KeyRole)
	if err != nil || !ok {
		return entity.Session{}, false, err
	}

	sess, err := s.sessionFrom(token, role)
	switch {
	case errors.Is(err, entity.ErrUnknownRole):
		return entity.Session{}, false, err
	case err != nil:
		return entity.Session{}, false, nil
	}
	return sess, true, nil
}

// Logout clears the persisted session. Calling it without a session is not an error.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.store.Delete(ctx, storage.KeyToken, storage.KeyRole); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Invalidate clears the persisted session if it still holds token. The API rejected the token,
// so the session is dead; a newer login in the meantime is left alone.
func (s *Service) Invalidate(ctx context.Context, token string) error {
	current, ok, err := s.store.Get(ctx, storage.KeyToken)
	if err != nil {
		return err
	}
	if !ok || current != token {
		return nil
	}
	log.Printf("session invalidated by server")
	return s.Logout(ctx)
}

func (s *Service) sessionFrom(token, roleValue string) (entity.Session, error) {
	role, err := entity.ParseRole(roleValue)
	if err != nil {
		return entity.Session{}, err
	}
	claims, err := crypto.InspectToken(token, s.now())
	if err != nil {
		return entity.Session{}, fmt.Errorf("%w: malformed token: %v", entity.ErrAuthentication, err)
	}
	sess := entity.Session{Token: token, Role: role, Subject: claims.Sub}
	if claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess, nil
}
