// Package catalogapi is the HTTP client of the remote catalog and authentication API.
package catalogapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"librarydesk/internal/entity"
	"librarydesk/internal/httpx"
)

const maxBodyBytes = 1 << 20

type Config struct {
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	RPS        int
	MaxRetries int
	// Backoff is the first retry delay; it doubles on every attempt.
	Backoff time.Duration
}

type Client struct {
	httpClient *http.Client
	userAgent  string
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	token      string
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 10
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "librarydesk"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:  cfg.UserAgent,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(cfg.RPS)), 1),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
	}
}

// WithToken returns a client that authenticates as token. The receiver is not modified; both
// share the rate limiter.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

type SignInResult struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

func (c *Client) SignIn(ctx context.Context, email, password string) (SignInResult, error) {
	var res SignInResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/signin", body, &res, false); err != nil {
		return SignInResult{}, err
	}
	return res, nil
}

func (c *Client) ListBooks(ctx context.Context) ([]entity.Book, error) {
	var books []entity.Book
	if err := c.do(ctx, http.MethodGet, "/books", nil, &books, true); err != nil {
		return nil, err
	}
	for _, b := range books {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", entity.ErrTransport, err)
		}
	}
	return books, nil
}

func (c *Client) CreateBook(ctx context.Context, fields entity.BookFields) (entity.Book, error) {
	return c.bookCall(ctx, http.MethodPost, "/books", fields)
}

func (c *Client) UpdateBook(ctx context.Context, id string, patch entity.BookPatch) (entity.Book, error) {
	return c.bookCall(ctx, http.MethodPatch, bookPath(id), patch)
}

func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, bookPath(id), nil, nil, false)
}

// BorrowBook asks the server to lend the book to the token's subject. The server rejects the
// request with a conflict when the book is already borrowed.
func (c *Client) BorrowBook(ctx context.Context, id string) (entity.Book, error) {
	return c.bookCall(ctx, http.MethodPost, bookPath(id)+"/borrow", nil)
}

func (c *Client) ReturnBook(ctx context.Context, id string) (entity.Book, error) {
	return c.bookCall(ctx, http.MethodPost, bookPath(id)+"/return", nil)
}

func bookPath(id string) string {
	return "/books/" + url.PathEscape(id)
}

func (c *Client) bookCall(ctx context.Context, method, path string, body any) (entity.Book, error) {
	var b entity.Book
	if err := c.do(ctx, method, path, body, &b, false); err != nil {
		return entity.Book{}, err
	}
	if err := b.Validate(); err != nil {
		return entity.Book{}, fmt.Errorf("%w: %v", entity.ErrTransport, err)
	}
	return b, nil
}

// do sends one request. Only idempotent calls may set retry: a mutation that timed out may
// still have been applied by the server.
func (c *Client) do(ctx context.Context, method, path string, body, target any, retry bool) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}

	attempts := 1
	if retry {
		attempts += c.maxRetries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			backoff := c.backoff * time.Duration(1<<uint(i-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		status, respBody, err := c.send(ctx, method, path, payload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %s %s: %v", entity.ErrTransport, method, path, err)
			continue
		}

		if status >= 200 && status < 300 {
			return decodeData(status, respBody, target)
		}
		apiErr := newError(status, respBody)
		if status == http.StatusTooManyRequests || status >= 500 {
			lastErr = apiErr
			continue
		}
		return apiErr
	}
	if attempts > 1 {
		return fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(httpx.RequestIDHeader, uuid.New().String())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func decodeData(status int, body []byte, target any) error {
	if target == nil || status == http.StatusNoContent {
		return nil
	}
	var env httpx.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: decode response: %v", entity.ErrTransport, err)
	}
	if !env.Success || len(env.Data) == 0 {
		return fmt.Errorf("%w: response without data", entity.ErrTransport)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("%w: decode data: %v", entity.ErrTransport, err)
	}
	return nil
}

// Error is a non-2xx answer from the API. Kind is one of the entity error kinds, so callers use
// errors.Is(err, entity.ErrConflict) and friends.
type Error struct {
	Status  int
	Code    string
	Message string
	Kind    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("catalog api: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Kind }

func newError(status int, body []byte) *Error {
	e := &Error{Status: status, Message: http.StatusText(status)}
	var env httpx.Envelope
	if json.Unmarshal(body, &env) == nil && env.Error != nil {
		e.Code = env.Error.Code
		if env.Error.Message != "" {
			e.Message = env.Error.Message
		}
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		var fields []entity.FieldError
		if env.Error != nil {
			for _, d := range env.Error.Details {
				fields = append(fields, entity.FieldError{Field: d.Field, Message: d.Message})
			}
		}
		if len(fields) == 0 {
			fields = []entity.FieldError{{Message: e.Message}}
		}
		e.Kind = entity.NewValidationError(fields...)
	case http.StatusUnauthorized:
		e.Kind = entity.ErrAuthentication
	case http.StatusForbidden:
		e.Kind = entity.ErrAuthorization
	case http.StatusNotFound:
		e.Kind = entity.ErrNotFound
	case http.StatusConflict:
		e.Kind = entity.ErrConflict
	default:
		e.Kind = entity.ErrTransport
	}
	return e
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
