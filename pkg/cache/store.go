// Package cache provides generic key/value stores for small pieces of shared
// pipeline state, such as the last forwarded batch snapshot and the set of
// documents already dispatched.
package cache

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Fetch when the key holds no value.
var ErrNotFound = errors.New("key not found in store")

// Store defines the contract for a key/value store with explicit writes.
// There is no source of truth to fall back on; a miss is reported as ErrNotFound.
type Store[K comparable, V any] interface {
	// Set stores a value for a key, replacing any existing value.
	Set(ctx context.Context, key K, value V) error
	// SetIfAbsent stores a value only if the key is empty. It reports whether
	// the value was stored.
	SetIfAbsent(ctx context.Context, key K, value V) (bool, error)
	// Fetch retrieves a value by its key.
	Fetch(ctx context.Context, key K) (V, error)
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key K) error
	// Closer is included for implementations that manage network connections.
	io.Closer
}
