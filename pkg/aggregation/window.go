// Package aggregation batches audited payment payloads and decides whether a
// closed batch differs from the last one forwarded downstream.
package aggregation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrMalformedItem is returned by Admit when the item is not a JSON
	// object. The buffer is left untouched.
	ErrMalformedItem = errors.New("aggregation item is not a JSON object")
	// ErrWindowStopped is returned by Admit once Stop has been called.
	ErrWindowStopped = errors.New("aggregation window is stopped")
)

// Reason records which completion trigger closed a batch.
type Reason string

const (
	ReasonSize     Reason = "size"
	ReasonQuiet    Reason = "quiet_period"
	ReasonTimeout  Reason = "timeout"
	ReasonShutdown Reason = "shutdown"
)

// Config holds the completion triggers of a Window.
type Config struct {
	// Size closes the batch as soon as it holds this many items.
	Size int
	// QuietPeriod closes the batch when no item arrived for this long.
	QuietPeriod time.Duration
	// Timeout closes the batch this long after its first item, regardless of activity.
	Timeout time.Duration
}

// DefaultConfig returns the standard triggers: 10 items, 3s quiet, 5s timeout.
func DefaultConfig() Config {
	return Config{Size: 10, QuietPeriod: 3 * time.Second, Timeout: 5 * time.Second}
}

// Batch is a closed buffer. Items are in arrival order.
type Batch struct {
	Items    []json.RawMessage
	Reason   Reason
	OpenedAt time.Time
	ClosedAt time.Time
}

// JSON serializes the batch as an ordered JSON array.
func (b Batch) JSON() ([]byte, error) {
	if len(b.Items) == 0 {
		return []byte("[]"), nil
	}
	out, err := json.Marshal(b.Items)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize batch: %w", err)
	}
	return out, nil
}

// FlushFunc receives every closed batch exactly once. It runs on the window's
// emitter goroutine, never while the buffer is held.
type FlushFunc func(ctx context.Context, batch Batch)

// Window is the batching state machine. A single collector goroutine owns the
// buffer and both timers; closed batches are handed to a separate emitter
// goroutine so that a slow flush never blocks admission.
type Window struct {
	cfg     Config
	flushFn FlushFunc
	logger  zerolog.Logger

	input   chan json.RawMessage
	batches chan Batch
	// done is closed by Stop; the collector flushes and exits on it.
	done     chan struct{}
	stopOnce sync.Once

	flushCtx    context.Context
	flushCancel context.CancelFunc
	wg          sync.WaitGroup
}

// NewWindow creates a Window. Zero or negative values in cfg fall back to
// DefaultConfig.
func NewWindow(cfg Config, flushFn FlushFunc, logger zerolog.Logger) (*Window, error) {
	if flushFn == nil {
		return nil, errors.New("flush function cannot be nil")
	}
	def := DefaultConfig()
	if cfg.Size <= 0 {
		cfg.Size = def.Size
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = def.QuietPeriod
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Window{
		cfg:     cfg,
		flushFn: flushFn,
		logger:  logger.With().Str("component", "AggregationWindow").Logger(),
		input:   make(chan json.RawMessage),
		batches: make(chan Batch, 16),
		done:    make(chan struct{}),
	}, nil
}

// Start launches the collector and emitter goroutines. Flushes use a context
// derived from ctx that survives its cancellation, so a shutdown flush can
// still be delivered; Stop bounds how long that may take.
func (w *Window) Start(ctx context.Context) {
	w.flushCtx, w.flushCancel = context.WithCancel(context.WithoutCancel(ctx))
	w.logger.Info().
		Int("size", w.cfg.Size).
		Dur("quiet_period", w.cfg.QuietPeriod).
		Dur("timeout", w.cfg.Timeout).
		Msg("Starting aggregation window...")
	w.wg.Add(2)
	go w.collect()
	go w.emit()
}

// Admit appends one item to the open buffer, opening a new one if needed. It
// blocks while the collector is busy closing a batch; the item then lands in
// the next buffer. An item admitted without error is always placed in a
// closed batch, at the latest the shutdown batch.
func (w *Window) Admit(ctx context.Context, item []byte) error {
	if !isJSONObject(item) {
		w.logger.Warn().Int("item_bytes", len(item)).Msg("Rejected malformed aggregation item.")
		return ErrMalformedItem
	}
	raw := make(json.RawMessage, len(item))
	copy(raw, item)

	select {
	case <-w.done:
		return ErrWindowStopped
	default:
	}
	select {
	case w.input <- raw:
		return nil
	case <-w.done:
		return ErrWindowStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isJSONObject(item []byte) bool {
	trimmed := bytes.TrimLeft(item, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(item)
}

// Stop closes admission, flushes any pending items with ReasonShutdown and
// waits for every queued flush to finish. If ctx expires first the
// outstanding flushes are cancelled and abandoned. Stop on a window that was
// never started only closes admission.
func (w *Window) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.done) })
	if w.flushCancel == nil {
		return nil
	}

	w.logger.Info().Msg("Stopping aggregation window...")
	finished := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		w.flushCancel()
		w.logger.Info().Msg("Aggregation window stopped gracefully.")
		return nil
	case <-ctx.Done():
		w.flushCancel()
		w.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for aggregation window to stop; pending batches abandoned.")
		return ctx.Err()
	}
}

func (w *Window) collect() {
	defer w.wg.Done()
	defer close(w.batches)

	var (
		buffer   []json.RawMessage
		openedAt time.Time
		quiet    *time.Timer
		hard     *time.Timer
		quietC   <-chan time.Time
		hardC    <-chan time.Time
	)

	closeBatch := func(reason Reason) {
		if quiet != nil {
			quiet.Stop()
		}
		if hard != nil {
			hard.Stop()
		}
		quiet, hard, quietC, hardC = nil, nil, nil, nil
		if len(buffer) == 0 {
			return
		}
		batch := Batch{Items: buffer, Reason: reason, OpenedAt: openedAt, ClosedAt: time.Now()}
		buffer = nil
		w.batches <- batch
	}

	for {
		select {
		case <-w.done:
			closeBatch(ReasonShutdown)
			return
		case item := <-w.input:
			now := time.Now()
			if len(buffer) == 0 {
				openedAt = now
				hard = time.NewTimer(w.cfg.Timeout)
				hardC = hard.C
			}
			buffer = append(buffer, item)
			if quiet != nil {
				quiet.Stop()
			}
			quiet = time.NewTimer(w.cfg.QuietPeriod)
			quietC = quiet.C
			if len(buffer) >= w.cfg.Size {
				closeBatch(ReasonSize)
			}
		case <-quietC:
			closeBatch(ReasonQuiet)
		case <-hardC:
			closeBatch(ReasonTimeout)
		}
	}
}

func (w *Window) emit() {
	defer w.wg.Done()
	for batch := range w.batches {
		w.logger.Info().
			Int("batch_size", len(batch.Items)).
			Str("flush_reason", string(batch.Reason)).
			Dur("batch_age", batch.ClosedAt.Sub(batch.OpenedAt)).
			Msg("Flushing batch.")
		w.flushFn(w.flushCtx, batch)
	}
}
