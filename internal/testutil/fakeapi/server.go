// Package fakeapi is an in-memory catalog and sign-in server speaking the catalog API's wire
// format. Tests point a catalogapi.Client at it.
package fakeapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"librarydesk/internal/entity"
	"librarydesk/internal/httpx"
	"librarydesk/internal/platform/crypto"
	"librarydesk/internal/validation"
)

const (
	secret   = "fakeapi-secret"
	tokenTTL = time.Hour
)

type user struct {
	id           string
	passwordHash string
	role         entity.Role
}

// ListFault makes the next list call fail with Status, or stall for Delay before answering.
type ListFault struct {
	Status int
	Delay  time.Duration
}

type Server struct {
	mu        sync.Mutex
	books     []entity.Book
	users     map[string]user
	faults    []ListFault
	listCalls int
}

func New() *Server {
	return &Server{users: make(map[string]user)}
}

// Start serves s on a local listener that is closed when the test ends.
func Start(t testing.TB, s *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.RequestIDMiddleware, httpx.AccessLogMiddleware, httpx.RecoveryMiddleware)

	r.Post("/auth/signin", s.signIn)

	r.Group(func(r chi.Router) {
		r.Use(httpx.AuthMiddleware(secret))
		r.Get("/books", s.listBooks)

		r.Group(func(r chi.Router) {
			r.Use(httpx.RequireRole(string(entity.RoleAdmin)))
			r.Post("/books", s.createBook)
			r.Patch("/books/{id}", s.updateBook)
			r.Delete("/books/{id}", s.deleteBook)
		})

		r.Group(func(r chi.Router) {
			r.Use(httpx.RequireRole(string(entity.RoleAdmin), string(entity.RoleUser)))
			r.Post("/books/{id}/borrow", s.transition(func(r *http.Request) entity.Event {
				return entity.Borrow(httpx.UserIDFrom(r))
			}))
			r.Post("/books/{id}/return", s.transition(func(*http.Request) entity.Event {
				return entity.Return()
			}))
		})
	})
	return r
}

// AddUser registers an account and returns its id.
func (s *Server) AddUser(email, password string, role entity.Role) string {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		panic(err)
	}
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[email] = user{id: id, passwordHash: hash, role: role}
	return id
}

// Seed appends books as given, keeping their ids.
func (s *Server) Seed(books ...entity.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = append(s.books, books...)
}

func (s *Server) Books() []entity.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entity.Book(nil), s.books...)
}

func (s *Server) Book(id string) (entity.Book, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return entity.Book{}, false
	}
	return s.books[i], true
}

// FailLists queues faults consumed by the following list calls, one each.
func (s *Server) FailLists(faults ...ListFault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, faults...)
}

func (s *Server) ListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// Token issues a token the server accepts, bypassing sign-in.
func Token(userID string, role entity.Role) string {
	tok, _, err := crypto.GenerateToken(secret, userID, string(role), tokenTTL)
	if err != nil {
		panic(err)
	}
	return tok
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, httpx.CodeValidation, "Invalid JSON body", nil)
		return
	}

	s.mu.Lock()
	u, ok := s.users[req.Email]
	s.mu.Unlock()
	if !ok || !crypto.VerifyPassword(u.passwordHash, req.Password) {
		httpx.JSONError(w, r, http.StatusUnauthorized, httpx.CodeUnauthorized, "Invalid email or password", nil)
		return
	}

	tok := Token(u.id, u.role)
	httpx.JSONSuccess(w, r, signInResponse{Token: tok, Role: string(u.role)}, nil)
}

func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.listCalls++
	var fault ListFault
	if len(s.faults) > 0 {
		fault = s.faults[0]
		s.faults = s.faults[1:]
	}
	s.mu.Unlock()

	if fault.Delay > 0 {
		select {
		case <-time.After(fault.Delay):
		case <-r.Context().Done():
			return
		}
	}
	if fault.Status != 0 {
		httpx.JSONError(w, r, fault.Status, httpx.CodeInternal, "Catalog unavailable", nil)
		return
	}
	httpx.JSONSuccess(w, r, s.Books(), nil)
}

func (s *Server) createBook(w http.ResponseWriter, r *http.Request) {
	var fields entity.BookFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, httpx.CodeValidation, "Invalid JSON body", nil)
		return
	}
	fields = fields.Normalize()
	if err := validation.Struct(fields); err != nil {
		writeValidation(w, r, err)
		return
	}

	b := entity.Book{
		ID:       uuid.New().String(),
		Title:    fields.Title,
		Author:   fields.Author,
		Category: fields.Category,
		Status:   entity.StatusAvailable,
	}
	s.Seed(b)
	httpx.JSONSuccessCreated(w, r, b)
}

func (s *Server) updateBook(w http.ResponseWriter, r *http.Request) {
	var patch entity.BookPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		httpx.JSONError(w, r, http.StatusBadRequest, httpx.CodeValidation, "Invalid JSON body", nil)
		return
	}
	patch = patch.Normalize()
	if err := patch.Blank(); err != nil {
		writeValidation(w, r, err)
		return
	}
	if err := validation.Struct(patch); err != nil {
		writeValidation(w, r, err)
		return
	}

	s.mu.Lock()
	i := s.indexOf(chi.URLParam(r, "id"))
	if i < 0 {
		s.mu.Unlock()
		httpx.JSONError(w, r, http.StatusNotFound, httpx.CodeNotFound, "Book not found", nil)
		return
	}
	s.books[i] = patch.ApplyTo(s.books[i])
	b := s.books[i]
	s.mu.Unlock()

	httpx.JSONSuccess(w, r, b, nil)
}

func (s *Server) deleteBook(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	i := s.indexOf(chi.URLParam(r, "id"))
	if i < 0 {
		s.mu.Unlock()
		httpx.JSONError(w, r, http.StatusNotFound, httpx.CodeNotFound, "Book not found", nil)
		return
	}
	s.books = append(s.books[:i:i], s.books[i+1:]...)
	s.mu.Unlock()

	httpx.JSONSuccessNoContent(w)
}

func (s *Server) transition(event func(r *http.Request) entity.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		i := s.indexOf(chi.URLParam(r, "id"))
		if i < 0 {
			s.mu.Unlock()
			httpx.JSONError(w, r, http.StatusNotFound, httpx.CodeNotFound, "Book not found", nil)
			return
		}
		b, err := entity.Apply(s.books[i], event(r))
		if err == nil {
			s.books[i] = b
		}
		s.mu.Unlock()

		switch {
		case err == nil:
			httpx.JSONSuccess(w, r, b, nil)
		case errors.Is(err, entity.ErrConflict):
			httpx.JSONError(w, r, http.StatusConflict, httpx.CodeConflict, err.Error(), nil)
		default:
			writeValidation(w, r, err)
		}
	}
}

func (s *Server) indexOf(id string) int {
	for i, b := range s.books {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func writeValidation(w http.ResponseWriter, r *http.Request, err error) {
	var details []httpx.ErrorDetail
	var verr *entity.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields {
			details = append(details, httpx.ErrorDetail{Field: f.Field, Message: f.Message})
		}
	}
	httpx.JSONError(w, r, http.StatusUnprocessableEntity, httpx.CodeValidation, "Validation failed", details)
}
