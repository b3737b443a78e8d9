package fakeapi

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/entity"
	"librarydesk/internal/platform/catalogapi"
)

func client(t *testing.T, s *Server) *catalogapi.Client {
	ts := Start(t, s)
	return catalogapi.NewClient(catalogapi.Config{BaseURL: ts.URL, RPS: 1000, Backoff: time.Millisecond})
}

func TestServer_SignIn(t *testing.T) {
	s := New()
	s.AddUser("admin@library.test", "s3cret", entity.RoleAdmin)
	c := client(t, s)

	res, err := c.SignIn(context.Background(), "admin@library.test", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "admin", res.Role)
	assert.NotEmpty(t, res.Token)

	_, err = c.SignIn(context.Background(), "admin@library.test", "wrong")
	assert.ErrorIs(t, err, entity.ErrAuthentication)

	_, err = c.SignIn(context.Background(), "nobody@library.test", "s3cret")
	assert.ErrorIs(t, err, entity.ErrAuthentication)
}

func TestServer_RequiresToken(t *testing.T) {
	c := client(t, New())

	_, err := c.ListBooks(context.Background())

	assert.ErrorIs(t, err, entity.ErrAuthentication)
}

func TestServer_BorrowAndReturn(t *testing.T) {
	s := New()
	s.Seed(entity.Book{ID: "7", Title: "Dune", Author: "Frank Herbert", Category: "Fiction", Status: entity.StatusAvailable})
	c := client(t, s).WithToken(Token("patron-1", entity.RoleUser))
	ctx := context.Background()

	b, err := c.BorrowBook(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "patron-1", b.BorrowerID)

	_, err = c.BorrowBook(ctx, "7")
	assert.ErrorIs(t, err, entity.ErrConflict)

	b, err = c.ReturnBook(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAvailable, b.Status)
	assert.Empty(t, b.BorrowerID)

	_, err = c.ReturnBook(ctx, "7")
	assert.ErrorIs(t, err, entity.ErrConflict)

	_, err = c.BorrowBook(ctx, "missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestServer_RoleEnforcement(t *testing.T) {
	s := New()
	s.Seed(entity.Book{ID: "7", Title: "Dune", Author: "Frank Herbert", Category: "Fiction", Status: entity.StatusAvailable})
	base := client(t, s)
	ctx := context.Background()

	_, err := base.WithToken(Token("patron-1", entity.RoleUser)).CreateBook(ctx, entity.BookFields{Title: "A", Author: "B", Category: "C"})
	assert.ErrorIs(t, err, entity.ErrAuthorization)

	_, err = base.WithToken(Token("guest-1", entity.Role("guest"))).BorrowBook(ctx, "7")
	assert.ErrorIs(t, err, entity.ErrAuthorization)

	b, err := base.WithToken(Token("admin-1", entity.RoleAdmin)).BorrowBook(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "admin-1", b.BorrowerID)
}

func TestServer_CreateValidation(t *testing.T) {
	s := New()
	c := client(t, s).WithToken(Token("admin-1", entity.RoleAdmin))

	_, err := c.CreateBook(context.Background(), entity.BookFields{Title: "Dune", Author: "", Category: "Fiction"})

	var verr *entity.ValidationError
	require.ErrorAs(t, err, &verr)
	msg, ok := verr.Field("author")
	assert.True(t, ok)
	assert.Equal(t, "author is required", msg)
	assert.Empty(t, s.Books())
}

func TestServer_ListFaults(t *testing.T) {
	s := New()
	s.Seed(entity.Book{ID: "1", Title: "Dune", Author: "Frank Herbert", Category: "Fiction", Status: entity.StatusAvailable})
	c := client(t, s).WithToken(Token("patron-1", entity.RoleUser))
	s.FailLists(ListFault{Status: http.StatusInternalServerError})

	_, err := c.ListBooks(context.Background())
	assert.ErrorIs(t, err, entity.ErrTransport)

	books, err := c.ListBooks(context.Background())
	require.NoError(t, err)
	assert.Len(t, books, 1)
	assert.Equal(t, 2, s.ListCalls())
}
