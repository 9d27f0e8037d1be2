// Package cache provides a keyed TTL store used to avoid redundant remote
// fetches and to serve still-valid data while the backend is unreachable.
// Expiration is checked lazily on read; there is no background eviction.
package cache

import (
	"context"
	"errors"
)

var (
	// ErrMiss is returned by Get when the key is absent or its entry expired.
	ErrMiss = errors.New("cache: miss")

	// ErrValueTooLarge is returned by Set when the value exceeds the store's
	// size bound. Callers must treat any Set failure as "proceed without
	// caching", never as a hard error.
	ErrValueTooLarge = errors.New("cache: value exceeds size bound")
)

// Store is a keyed byte store with a fixed TTL. Keys are caller-defined
// opaque strings (e.g. "assignment:{id}").
type Store interface {
	// Get returns the stored value if present and younger than the TTL.
	// A stale entry is evicted as a side effect and reported as ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the current timestamp, overwriting
	// any previous entry.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes a single key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Clear drops every entry. Used only on logout/reset, never implicitly.
	Clear(ctx context.Context) error
}
