// Package lending executes catalog mutations on behalf of one session and keeps the catalog
// store consistent with the server afterwards.
package lending

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"librarydesk/internal/catalog"
	"librarydesk/internal/entity"
	"librarydesk/internal/rolegate"
	"librarydesk/internal/validation"
)

var (
	// ErrPending is returned when the same action on the same book is already in flight.
	ErrPending = errors.New("request already in progress")
	// ErrNotConfirmed is returned by Commit for a draft the user has not confirmed.
	ErrNotConfirmed = errors.New("edit not confirmed")
)

type Action string

const (
	ActionAdd    Action = "add"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionBorrow Action = "borrow"
)

var permissionOf = map[Action]rolegate.Permission{
	ActionAdd:    rolegate.Add,
	ActionUpdate: rolegate.Update,
	ActionDelete: rolegate.Delete,
	ActionBorrow: rolegate.Borrow,
}

// Permission is the role gate permission the action requires.
func (a Action) Permission() rolegate.Permission { return permissionOf[a] }

// ResyncPolicy decides how the store catches up after a committed mutation.
type ResyncPolicy int

const (
	// ReconcileEntity writes the server's post-mutation book into the store without refetching
	// the list.
	ReconcileEntity ResyncPolicy = iota
	// RefetchAll invalidates the store and fetches the whole list again.
	RefetchAll
)

// Outcome is what a view needs after a mutation. Snapshot is the store state once the resync
// step finished. Stale reports that the list may not match the server, with RefreshErr holding
// the refresh failure, if that was the cause.
type Outcome struct {
	Book       entity.Book
	Snapshot   catalog.Snapshot
	Stale      bool
	RefreshErr error
}

type Controller struct {
	api         CatalogAPI
	store       Store
	session     entity.Session
	policy      ResyncPolicy
	invalidator SessionInvalidator

	mu      sync.Mutex
	pending map[pendingKey]struct{}
}

type pendingKey struct {
	action Action
	bookID string
}

type Option func(*Controller)

func WithResyncPolicy(p ResyncPolicy) Option {
	return func(c *Controller) { c.policy = p }
}

func WithSessionInvalidator(inv SessionInvalidator) Option {
	return func(c *Controller) { c.invalidator = inv }
}

func NewController(api CatalogAPI, store Store, session entity.Session, opts ...Option) *Controller {
	c := &Controller{
		api:     api,
		store:   store,
		session: session,
		pending: make(map[pendingKey]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Allowed reports whether the session may perform action. Views use it to decide which
// controls to offer.
func (c *Controller) Allowed(action Action) bool {
	return rolegate.Allows(c.session.Role, permissionOf[action])
}

// Pending reports whether action on bookID is in flight. Views disable the matching control
// while it is.
func (c *Controller) Pending(action Action, bookID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[pendingKey{action, bookID}]
	return ok
}

// AddBook creates a book. Invalid fields are reported without contacting the server.
func (c *Controller) AddBook(ctx context.Context, fields entity.BookFields) (Outcome, error) {
	fields = fields.Normalize()
	return c.run(ctx, ActionAdd, "", func() error {
		return validation.Struct(fields)
	}, func(ctx context.Context) (entity.Book, error) {
		return c.api.CreateBook(ctx, fields)
	})
}

// UpdateBook changes the given fields of book id.
func (c *Controller) UpdateBook(ctx context.Context, id string, patch entity.BookPatch) (Outcome, error) {
	patch = patch.Normalize()
	return c.run(ctx, ActionUpdate, id, func() error {
		if patch.Empty() {
			return entity.NewValidationError(entity.FieldError{Message: "nothing to update"})
		}
		if err := patch.Blank(); err != nil {
			return err
		}
		return validation.Struct(patch)
	}, func(ctx context.Context) (entity.Book, error) {
		return c.api.UpdateBook(ctx, id, patch)
	})
}

// DeleteBook removes book id. The store keeps the book until the server confirms.
func (c *Controller) DeleteBook(ctx context.Context, id string) (Outcome, error) {
	return c.run(ctx, ActionDelete, id, nil, func(ctx context.Context) (entity.Book, error) {
		if err := c.api.DeleteBook(ctx, id); err != nil {
			return entity.Book{}, err
		}
		return entity.Book{ID: id}, nil
	})
}

// BorrowBook lends book id to the session's subject. The request is sent even when the cached
// copy says the book is borrowed: only the server knows. A rejection is returned as is, after
// the store has been resynced, and is never retried.
func (c *Controller) BorrowBook(ctx context.Context, id string) (Outcome, error) {
	return c.run(ctx, ActionBorrow, id, nil, func(ctx context.Context) (entity.Book, error) {
		return c.api.BorrowBook(ctx, id)
	})
}

func (c *Controller) run(
	ctx context.Context,
	action Action,
	bookID string,
	validate func() error,
	call func(ctx context.Context) (entity.Book, error),
) (Outcome, error) {
	if err := rolegate.Require(c.session.Role, permissionOf[action]); err != nil {
		return c.current(), err
	}
	if validate != nil {
		if err := validate(); err != nil {
			return c.current(), err
		}
	}
	if !c.acquire(action, bookID) {
		return c.current(), fmt.Errorf("%s %s: %w", action, bookID, ErrPending)
	}
	defer c.release(action, bookID)

	book, err := call(ctx)
	if err != nil {
		return c.failed(ctx, action, bookID, err)
	}
	return c.committed(ctx, action, book), nil
}

func (c *Controller) committed(ctx context.Context, action Action, book entity.Book) Outcome {
	if c.policy == RefetchAll {
		out := c.resync(ctx)
		out.Book = book
		return out
	}
	if action == ActionDelete {
		c.store.Remove(book.ID)
	} else {
		c.store.Reconcile(book)
	}
	out := c.current()
	out.Book = book
	return out
}

func (c *Controller) failed(ctx context.Context, action Action, bookID string, err error) (Outcome, error) {
	log.Printf("mutation failed action=%s book=%s error=%q", action, bookID, err.Error())
	err = fmt.Errorf("%s %s: %w", action, bookID, err)

	switch {
	case errors.Is(err, entity.ErrConflict), errors.Is(err, entity.ErrNotFound):
		return c.resync(ctx), err
	case errors.Is(err, entity.ErrTransport), ctx.Err() != nil:
		// The server may or may not have applied the mutation.
		c.store.Invalidate()
		out := c.current()
		out.Stale = true
		return out, err
	case errors.Is(err, entity.ErrAuthentication):
		if c.invalidator != nil {
			if ierr := c.invalidator.Invalidate(context.WithoutCancel(ctx), c.session.Token); ierr != nil {
				log.Printf("session invalidation failed error=%q", ierr.Error())
			}
		}
	}
	return c.current(), err
}

// resync forces a full refetch. A failed refetch leaves the previous list in place and marks the
// outcome stale.
func (c *Controller) resync(ctx context.Context) Outcome {
	c.store.Invalidate()
	snap, err := c.store.FetchAll(ctx)
	switch {
	case err == nil:
		return Outcome{Snapshot: snap, Stale: snap.Stale}
	case catalog.IsSuperseded(err):
		// A newer fetch owns the snapshot now.
		return Outcome{Snapshot: snap, Stale: true}
	default:
		log.Printf("resync failed error=%q", err.Error())
		return Outcome{Snapshot: snap, Stale: true, RefreshErr: err}
	}
}

func (c *Controller) current() Outcome {
	snap := c.store.Snapshot()
	return Outcome{Snapshot: snap, Stale: snap.Stale}
}

func (c *Controller) acquire(action Action, bookID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := pendingKey{action, bookID}
	if _, busy := c.pending[key]; busy {
		return false
	}
	c.pending[key] = struct{}{}
	return true
}

func (c *Controller) release(action Action, bookID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, pendingKey{action, bookID})
}
