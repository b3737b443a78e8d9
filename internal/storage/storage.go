// Package storage persists the small amount of client state that must survive restarts: the
// session token and role.
package storage

import (
	"context"
	"sync"
)

// Well-known keys.
const (
	KeyToken = "token"
	KeyRole  = "role"
)

// Store is a string key/value store. SetMany and Delete are atomic over all given keys.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
	writes int
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	m.writes++
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	m.writes++
	return nil
}

// Writes counts SetMany and Delete calls.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) Close() error { return nil }
