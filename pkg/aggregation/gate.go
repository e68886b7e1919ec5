package aggregation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/illmade-knight/go-pacsflow/pkg/cache"
	"github.com/rs/zerolog"
)

// Gate suppresses forwarding of a batch identical to the last one forwarded.
// The snapshot lives in a cache.Store so that it can be shared through Redis;
// the read-modify-write is serialized by a mutex within this process.
type Gate struct {
	mu     sync.Mutex
	store  cache.Store[string, string]
	key    string
	logger zerolog.Logger
}

// NewGate creates a Gate keeping its snapshot under key in store.
func NewGate(store cache.Store[string, string], key string, logger zerolog.Logger) (*Gate, error) {
	if store == nil {
		return nil, errors.New("snapshot store cannot be nil")
	}
	if key == "" {
		return nil, errors.New("snapshot key is required")
	}
	return &Gate{
		store:  store,
		key:    key,
		logger: logger.With().Str("component", "ChangeGate").Logger(),
	}, nil
}

// ShouldForward reports whether batch differs from the snapshot. When it
// does, the snapshot is replaced by batch before returning.
func (g *Gate) ShouldForward(ctx context.Context, batch []byte) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, err := g.store.Fetch(ctx, g.key)
	if err != nil && !errors.Is(err, cache.ErrNotFound) {
		return false, fmt.Errorf("failed to read last forwarded batch: %w", err)
	}
	if err == nil && last == string(batch) {
		g.logger.Info().Int("batch_bytes", len(batch)).Msg("Batch unchanged since last forward, suppressing.")
		return false, nil
	}

	if err := g.store.Set(ctx, g.key, string(batch)); err != nil {
		return false, fmt.Errorf("failed to record forwarded batch: %w", err)
	}
	return true, nil
}

// Revert forgets batch if it is still the snapshot, so the same content is
// forwarded again on the next attempt. A snapshot replaced in the meantime is
// left alone.
func (g *Gate) Revert(ctx context.Context, batch []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	last, err := g.store.Fetch(ctx, g.key)
	if errors.Is(err, cache.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read last forwarded batch: %w", err)
	}
	if last != string(batch) {
		return nil
	}
	if err := g.store.Delete(ctx, g.key); err != nil {
		return fmt.Errorf("failed to revert forwarded batch: %w", err)
	}
	g.logger.Warn().Int("batch_bytes", len(batch)).Msg("Reverted last forwarded batch after failed delivery.")
	return nil
}
