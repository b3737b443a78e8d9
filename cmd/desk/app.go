package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"librarydesk/internal/auth"
	"librarydesk/internal/catalog"
	"librarydesk/internal/config"
	"librarydesk/internal/entity"
	"librarydesk/internal/lending"
	"librarydesk/internal/platform/catalogapi"
	"librarydesk/internal/storage"
)

var errNoSession = errors.New("not signed in; run desk login")

type app struct {
	in     io.Reader
	out    io.Writer
	prompt func(prompt string) (string, error)

	verbose bool
	cfg     config.Config
	state   storage.Store
	api     *catalogapi.Client
	auth    *auth.Service

	lines *bufio.Scanner
}

// open resolves configuration and opens local state. It runs before every command.
func (a *app) open(cmd *cobra.Command, _ []string) error {
	if !a.verbose {
		log.SetOutput(io.Discard)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if a.state == nil {
		st, err := storage.OpenSQLite(cfg.StatePath)
		if err != nil {
			return err
		}
		a.state = st
	}

	a.api = catalogapi.NewClient(catalogapi.Config{
		BaseURL:    cfg.APIURL,
		Timeout:    cfg.HTTPTimeout,
		RPS:        cfg.RPS,
		MaxRetries: cfg.MaxRetries,
	})
	a.auth = auth.NewService(a.api, a.state)
	return nil
}

func (a *app) close(*cobra.Command, []string) error {
	if a.state == nil {
		return nil
	}
	return a.state.Close()
}

// session returns the persisted session or errNoSession.
func (a *app) session(ctx context.Context) (entity.Session, error) {
	sess, ok, err := a.auth.CurrentSession(ctx)
	if err != nil {
		return entity.Session{}, err
	}
	if !ok {
		return entity.Session{}, errNoSession
	}
	return sess, nil
}

// catalogFor builds a loaded store and a controller acting as sess.
func (a *app) catalogFor(ctx context.Context, sess entity.Session) (*catalog.Store, *lending.Controller, error) {
	api := a.api.WithToken(sess.Token)
	store := catalog.NewStore(api, catalog.WithMaxAge(a.cfg.CatalogMaxAge))

	policy := lending.ReconcileEntity
	if a.cfg.Resync == config.ResyncRefetch {
		policy = lending.RefetchAll
	}
	ctrl := lending.NewController(api, store, sess,
		lending.WithResyncPolicy(policy),
		lending.WithSessionInvalidator(a.auth),
	)

	if _, err := store.FetchAll(ctx); err != nil {
		if errors.Is(err, entity.ErrAuthentication) {
			_ = a.auth.Invalidate(ctx, sess.Token)
		}
		return nil, nil, err
	}
	return store, ctrl, nil
}

func (a *app) readLine(prompt string) (string, error) {
	if a.lines == nil {
		a.lines = bufio.NewScanner(a.in)
	}
	fmt.Fprint(a.out, prompt)
	if !a.lines.Scan() {
		if err := a.lines.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(a.lines.Text()), nil
}

func (a *app) confirm(prompt string) (bool, error) {
	answer, err := a.readLine(prompt + " [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
