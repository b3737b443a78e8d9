package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"librarydesk/internal/entity"
)

const DefaultMaxAge = 30 * time.Second

// Store is the single source of truth for "what the server currently reports". One Store serves
// one consumer; at most one fetch is in flight and only the most recent one may update the
// snapshot.
type Store struct {
	lister Lister
	maxAge time.Duration
	now    func() time.Time

	mu     sync.Mutex
	snap   Snapshot
	valid  bool
	gen    uint64
	cancel context.CancelFunc
	// changes made through Reconcile/Remove while a fetch is in flight. The fetch may have been
	// answered before those mutations committed, so they are replayed over its result.
	overlay []change
}

type change struct {
	book    entity.Book
	removed bool
}

type Option func(*Store)

// WithMaxAge sets how long a successful fetch is reused. Zero disables caching.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) { s.maxAge = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(lister Lister, opts ...Option) *Store {
	s := &Store{
		lister: lister,
		maxAge: DefaultMaxAge,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// FetchAll loads the book list from the server unless a still-valid cached result exists.
//
// Starting a fetch cancels the one in flight; the overtaken caller gets ErrSuperseded and its
// result is discarded. A failed fetch keeps the previous books and marks the snapshot stale.
// Cancelling ctx abandons the fetch without recording an error.
func (s *Store) FetchAll(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.fresh() {
		snap := s.snap.clone()
		s.mu.Unlock()
		return snap, nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.overlay = nil
	s.snap.Loading = true
	s.mu.Unlock()

	books, err := s.lister.ListBooks(fetchCtx)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		log.Printf("catalog fetch discarded generation=%d current=%d", gen, s.gen)
		return s.snap.clone(), ErrSuperseded
	}
	s.cancel = nil
	s.snap.Loading = false
	overlay := s.overlay
	s.overlay = nil

	if err != nil {
		if ctx.Err() != nil {
			return s.snap.clone(), ctx.Err()
		}
		s.valid = false
		s.snap.Err = err.Error()
		s.snap.Stale = true
		log.Printf("catalog fetch failed generation=%d error=%q", gen, s.snap.Err)
		return s.snap.clone(), fmt.Errorf("fetch catalog: %w", err)
	}

	for _, ch := range overlay {
		books = apply(books, ch)
	}
	s.snap.Books = books
	s.snap.Err = ""
	s.snap.Stale = false
	s.snap.Fetched = true
	s.snap.FetchedAt = s.now()
	s.valid = true
	return s.snap.clone(), nil
}

func (s *Store) fresh() bool {
	if !s.valid || s.snap.Loading || s.maxAge <= 0 {
		return false
	}
	return s.now().Sub(s.snap.FetchedAt) < s.maxAge
}

// Refresh invalidates and fetches.
func (s *Store) Refresh(ctx context.Context) (Snapshot, error) {
	s.Invalidate()
	return s.FetchAll(ctx)
}

// Invalidate forces the next FetchAll to go to the server.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valid = false
	if s.snap.Fetched {
		s.snap.Stale = true
	}
}

// Cancel abandons the fetch in flight, if any. Its result will not be applied.
func (s *Store) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.gen++
	s.overlay = nil
	s.snap.Loading = false
}

// Reconcile replaces the cached copy of book with the server's authoritative version, appending
// it when it is not cached yet.
func (s *Store) Reconcile(book entity.Book) {
	s.record(change{book: book})
}

// Remove drops the book with id from the cache after the server confirmed its deletion.
func (s *Store) Remove(id string) {
	s.record(change{book: entity.Book{ID: id}, removed: true})
}

func (s *Store) record(ch change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Books = apply(s.snap.Books, ch)
	if s.snap.Loading {
		s.overlay = append(s.overlay, ch)
	}
}

func apply(books []entity.Book, ch change) []entity.Book {
	for i, b := range books {
		if b.ID != ch.book.ID {
			continue
		}
		out := make([]entity.Book, 0, len(books))
		out = append(out, books[:i]...)
		if !ch.removed {
			out = append(out, ch.book)
		}
		return append(out, books[i+1:]...)
	}
	if ch.removed {
		return books
	}
	out := make([]entity.Book, len(books), len(books)+1)
	copy(out, books)
	return append(out, ch.book)
}

// IsSuperseded reports whether err came from an overtaken fetch.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSuperseded)
}
