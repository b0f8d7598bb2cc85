// Package storage provides abstractions for persistent client-side state.
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when no value exists under the requested key.
var ErrNotFound = errors.New("storage: key not found")

// Well-known keys for the persisted token pair. These mirror the
// localStorage keys used by the browser client of the same API.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// CredentialStore is a small key/value store for client credentials.
// This abstraction allows swapping backends (SQLite on disk, memory in
// tests) without changing the session layer.
type CredentialStore interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes the value under key. Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// MemoryStore is an in-process CredentialStore. It backs tests and
// ephemeral runs where nothing should touch the filesystem.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

var _ CredentialStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Delete removes the value under key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
