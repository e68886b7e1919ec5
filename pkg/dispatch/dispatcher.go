// Package dispatch fans one extracted payment out to a fixed set of
// independent sinks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/illmade-knight/go-pacsflow/pkg/cache"
	"github.com/illmade-knight/go-pacsflow/pkg/pacs008"
	"github.com/rs/zerolog"
)

// ErrSinkFailed wraps every error a sink returns (or panics with).
var ErrSinkFailed = errors.New("sink failed")

type correlationKey struct{}

// WithCorrelationID returns a context carrying the transport correlation id
// of the document being dispatched.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id set by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// Sink receives each dispatched payment. The correlation id of the document
// is available through CorrelationID(ctx).
type Sink interface {
	Name() string
	Handle(ctx context.Context, rec pacs008.TransferRecord, doc pacs008.Document) error
}

// Dispatcher invokes every sink with the same record and document. Sinks run
// concurrently and in isolation: one failing sink never stops another.
type Dispatcher struct {
	sinks  []Sink
	seen   cache.Store[string, bool]
	logger zerolog.Logger
}

// NewDispatcher creates a Dispatcher. seen is optional; when set, a document
// is delivered to each sink at most once per correlation id.
func NewDispatcher(sinks []Sink, seen cache.Store[string, bool], logger zerolog.Logger) (*Dispatcher, error) {
	if len(sinks) == 0 {
		return nil, errors.New("at least one sink is required")
	}
	names := make(map[string]bool, len(sinks))
	for _, s := range sinks {
		if s == nil {
			return nil, errors.New("sink cannot be nil")
		}
		if names[s.Name()] {
			return nil, fmt.Errorf("duplicate sink name %q", s.Name())
		}
		names[s.Name()] = true
	}
	return &Dispatcher{
		sinks:  sinks,
		seen:   seen,
		logger: logger.With().Str("component", "Dispatcher").Logger(),
	}, nil
}

// Dispatch runs every sink and waits for all of them. The returned error joins
// the failures of individual sinks; callers log it and carry on.
func (d *Dispatcher) Dispatch(ctx context.Context, correlationID string, rec pacs008.TransferRecord, doc pacs008.Document) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	ctx = WithCorrelationID(ctx, correlationID)
	for _, sink := range d.sinks {
		if !d.firstDelivery(ctx, correlationID, sink.Name()) {
			continue
		}
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			if err := d.run(ctx, s, rec, doc); err != nil {
				d.logger.Error().Err(err).Str("sink", s.Name()).Str("msg_id", rec.ID()).Str("correlation_id", correlationID).Msg("Sink failed.")
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(sink)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (d *Dispatcher) run(ctx context.Context, s Sink, rec pacs008.TransferRecord, doc pacs008.Document) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrSinkFailed, s.Name(), r)
		}
	}()
	if err := s.Handle(ctx, rec, doc); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSinkFailed, s.Name(), err)
	}
	return nil
}

// firstDelivery claims the (document, sink) pair. A store error is logged and
// treated as a first delivery.
func (d *Dispatcher) firstDelivery(ctx context.Context, correlationID, sink string) bool {
	if d.seen == nil || correlationID == "" {
		return true
	}
	claimed, err := d.seen.SetIfAbsent(ctx, correlationID+"|"+sink, true)
	if err != nil {
		d.logger.Warn().Err(err).Str("sink", sink).Str("correlation_id", correlationID).Msg("Dedupe store unavailable, delivering anyway.")
		return true
	}
	if !claimed {
		d.logger.Info().Str("sink", sink).Str("correlation_id", correlationID).Msg("Document already delivered to sink, skipping.")
	}
	return claimed
}
