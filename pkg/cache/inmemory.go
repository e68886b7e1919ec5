package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type inMemoryEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e inMemoryEntry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// InMemoryStore is a thread-safe, in-memory implementation of Store. Entries
// expire after the configured TTL; a zero TTL keeps them for the process lifetime.
type InMemoryStore[K comparable, V any] struct {
	mu   sync.Mutex
	ttl  time.Duration
	data map[K]inMemoryEntry[V]
	now  func() time.Time
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore[K comparable, V any](ttl time.Duration) *InMemoryStore[K, V] {
	return &InMemoryStore[K, V]{
		ttl:  ttl,
		data: make(map[K]inMemoryEntry[V]),
		now:  time.Now,
	}
}

func (c *InMemoryStore[K, V]) entry(value V) inMemoryEntry[V] {
	e := inMemoryEntry[V]{value: value}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	return e
}

// Set stores a value for a key.
func (c *InMemoryStore[K, V]) Set(_ context.Context, key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = c.entry(value)
	return nil
}

// SetIfAbsent stores a value unless a live entry already exists.
func (c *InMemoryStore[K, V]) SetIfAbsent(_ context.Context, key K, value V) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.data[key]; ok && !e.expired(c.now()) {
		return false, nil
	}
	c.data[key] = c.entry(value)
	return true, nil
}

// Fetch retrieves a value by its key.
func (c *InMemoryStore[K, V]) Fetch(_ context.Context, key K) (V, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok || e.expired(c.now()) {
		delete(c.data, key)
		var zero V
		return zero, fmt.Errorf("key '%v': %w", key, ErrNotFound)
	}
	return e.value, nil
}

// Delete removes a key.
func (c *InMemoryStore[K, V]) Delete(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Close is a no-op for the in-memory implementation.
func (c *InMemoryStore[K, V]) Close() error {
	return nil
}
