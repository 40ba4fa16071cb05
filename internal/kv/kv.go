package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist or has expired.
var ErrNotFound = errors.New("kv: key not found")

// ListResult is one page of a prefix scan. Cursor is opaque; an empty cursor
// starts a scan from the beginning. Complete is true when no keys remain.
type ListResult struct {
	Keys     []string
	Cursor   string
	Complete bool
}

// Store is the port to the shared key-value backend. The backend offers no
// multi-key transactions; PutIfAbsent is the only conditional primitive and
// is what order deduplication relies on.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes a value. A zero ttl means the key never expires.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// PutIfAbsent writes the value only if the key does not already exist.
	// Returns true if the write was applied.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a key. Deleting a nonexistent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns up to limit keys under prefix, resuming from cursor.
	List(ctx context.Context, prefix string, limit int, cursor string) (ListResult, error)
}
