// Package catalog holds the client's snapshot of the remote catalog and keeps it in step with the
// server of record.
package catalog

import (
	"context"
	"errors"
	"time"

	"librarydesk/internal/entity"
)

// ErrSuperseded is returned to a FetchAll caller whose request was overtaken by a newer one.
var ErrSuperseded = errors.New("catalog fetch superseded")

// Lister is the read side of the catalog API.
type Lister interface {
	ListBooks(ctx context.Context) ([]entity.Book, error)
}

// Snapshot is a point-in-time copy of what the server last reported.
type Snapshot struct {
	Books   []entity.Book
	Loading bool
	// Err is the human-readable reason the last refresh failed. Books keeps the previous list.
	Err string
	// Stale is set when Books may not match the server: after a failed refresh or an
	// invalidation that has not been followed by a successful fetch.
	Stale bool
	// Fetched distinguishes an empty catalog from one that was never loaded.
	Fetched   bool
	FetchedAt time.Time
}

// Find returns the book with the given id.
func (s Snapshot) Find(id string) (entity.Book, bool) {
	for _, b := range s.Books {
		if b.ID == id {
			return b, true
		}
	}
	return entity.Book{}, false
}

func (s Snapshot) clone() Snapshot {
	if s.Books != nil {
		books := make([]entity.Book, len(s.Books))
		copy(books, s.Books)
		s.Books = books
	}
	return s
}
