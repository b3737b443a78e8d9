package lending

import (
	"context"

	"librarydesk/internal/catalog"
	"librarydesk/internal/entity"
)

//go:generate mockgen -destination=mock_ports_test.go -package=lending librarydesk/internal/lending CatalogAPI,SessionInvalidator

// CatalogAPI is the mutation side of the remote catalog.
type CatalogAPI interface {
	CreateBook(ctx context.Context, fields entity.BookFields) (entity.Book, error)
	UpdateBook(ctx context.Context, id string, patch entity.BookPatch) (entity.Book, error)
	DeleteBook(ctx context.Context, id string) error
	BorrowBook(ctx context.Context, id string) (entity.Book, error)
}

// Store is the part of catalog.Store the controller drives.
type Store interface {
	Snapshot() catalog.Snapshot
	FetchAll(ctx context.Context) (catalog.Snapshot, error)
	Invalidate()
	Reconcile(book entity.Book)
	Remove(id string)
}

// SessionInvalidator drops a session the server no longer accepts.
type SessionInvalidator interface {
	Invalidate(ctx context.Context, token string) error
}
