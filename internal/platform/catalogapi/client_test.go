package catalogapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librarydesk/internal/entity"
	"librarydesk/internal/httpx"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:    srv.URL,
		RPS:        1000,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	})
}

func TestClient_ListBooks(t *testing.T) {
	books := []entity.Book{
		{ID: "1", Title: "Dune", Author: "Frank Herbert", Category: "Fiction", Status: entity.StatusAvailable},
		{ID: "2", Title: "Clean Code", Author: "Robert Martin", Category: "Technical", Status: entity.StatusBorrowed, BorrowerID: "u1"},
	}
	var gotAuth, gotRequestID string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/books", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get(httpx.RequestIDHeader)
		httpx.JSONSuccess(w, r, books, nil)
	}).WithToken("tok")

	got, err := client.ListBooks(context.Background())

	require.NoError(t, err)
	assert.Equal(t, books, got)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.NotEmpty(t, gotRequestID)
}

func TestClient_ListBooksRejectsInconsistentBook(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		httpx.JSONSuccess(w, r, []entity.Book{{ID: "1", Status: entity.StatusBorrowed}}, nil)
	})

	_, err := client.ListBooks(context.Background())

	assert.True(t, errors.Is(err, entity.ErrTransport))
}

func TestClient_ListBooksRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			httpx.JSONError(w, r, http.StatusServiceUnavailable, httpx.CodeInternal, "warming up", nil)
			return
		}
		httpx.JSONSuccess(w, r, []entity.Book{}, nil)
	})

	got, err := client.ListBooks(context.Background())

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_ListBooksGivesUp(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ListBooks(context.Background())

	assert.True(t, errors.Is(err, entity.ErrTransport))
	assert.Equal(t, http.StatusBadGateway, StatusOf(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_MutationsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.BorrowBook(context.Background(), "7")

	assert.True(t, errors.Is(err, entity.ErrTransport))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"validation", http.StatusUnprocessableEntity, httpx.CodeValidation, entity.ErrValidation},
		{"bad request", http.StatusBadRequest, httpx.CodeValidation, entity.ErrValidation},
		{"unauthorized", http.StatusUnauthorized, httpx.CodeUnauthorized, entity.ErrAuthentication},
		{"forbidden", http.StatusForbidden, httpx.CodeForbidden, entity.ErrAuthorization},
		{"not found", http.StatusNotFound, httpx.CodeNotFound, entity.ErrNotFound},
		{"conflict", http.StatusConflict, httpx.CodeConflict, entity.ErrConflict},
		{"teapot", http.StatusTeapot, "", entity.ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				httpx.JSONError(w, r, tt.status, tt.code, "nope", []httpx.ErrorDetail{{Field: "title", Message: "title is required"}})
			})

			_, err := client.UpdateBook(context.Background(), "1", entity.BookPatch{})

			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, tt.status, StatusOf(err))
		})
	}
}

func TestClient_ValidationDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		httpx.JSONError(w, r, http.StatusUnprocessableEntity, httpx.CodeValidation, "Invalid book", []httpx.ErrorDetail{
			{Field: "author", Message: "author is required"},
		})
	})

	_, err := client.CreateBook(context.Background(), entity.BookFields{Title: "Dune"})

	var ve *entity.ValidationError
	require.True(t, errors.As(err, &ve))
	msg, ok := ve.Field("author")
	assert.True(t, ok)
	assert.Equal(t, "author is required", msg)
}

func TestClient_CreateBookSendsFields(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var fields entity.BookFields
		require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))
		httpx.JSONSuccessCreated(w, r, entity.Book{
			ID: "9", Title: fields.Title, Author: fields.Author, Category: fields.Category, Status: entity.StatusAvailable,
		})
	})

	b, err := client.CreateBook(context.Background(), entity.BookFields{Title: "Dune", Author: "Herbert", Category: "Fiction"})

	require.NoError(t, err)
	assert.Equal(t, "9", b.ID)
	assert.Equal(t, entity.StatusAvailable, b.Status)
}

func TestClient_DeleteBook(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/books/42", r.URL.Path)
		httpx.JSONSuccessNoContent(w)
	})

	assert.NoError(t, client.DeleteBook(context.Background(), "42"))
}

func TestClient_SignIn(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/signin", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		httpx.JSONSuccess(w, r, SignInResult{Token: "t", Role: "admin"}, nil)
	})

	res, err := client.SignIn(context.Background(), "a@example.com", "secret")

	require.NoError(t, err)
	assert.Equal(t, SignInResult{Token: "t", Role: "admin"}, res)
}

func TestClient_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := NewClient(Config{BaseURL: srv.URL, RPS: 1000, Backoff: time.Millisecond})

	_, err := client.BorrowBook(context.Background(), "7")

	assert.True(t, errors.Is(err, entity.ErrTransport))
}

func TestClient_ContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.ListBooks(ctx)

	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, entity.ErrTransport))
}
