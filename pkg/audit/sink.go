package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-pacsflow/pkg/dispatch"
	"github.com/illmade-knight/go-pacsflow/pkg/pacs008"
	"github.com/rs/zerolog"
)

// SinkName is the name the audit sink registers with the dispatcher.
const SinkName = "audit"

// Admitter receives serialized payloads after they are written.
// *aggregation.Window satisfies it.
type Admitter interface {
	Admit(ctx context.Context, item []byte) error
}

// Payload is the audit record: the extracted fields, the transport
// correlation id and the full source document.
type Payload struct {
	pacs008.TransferRecord
	CorrelationID string           `json:"correlationId,omitempty"`
	Document      pacs008.Document `json:"document"`
}

// Sink writes each payment through a Writer and then admits the same bytes
// into the aggregation window.
type Sink struct {
	writer Writer
	next   Admitter
	logger zerolog.Logger
}

// NewSink creates the audit sink.
func NewSink(writer Writer, next Admitter, logger zerolog.Logger) (*Sink, error) {
	if writer == nil || next == nil {
		return nil, errors.New("writer and admitter cannot be nil")
	}
	return &Sink{
		writer: writer,
		next:   next,
		logger: logger.With().Str("component", "AuditSink").Logger(),
	}, nil
}

// Name implements dispatch.Sink.
func (s *Sink) Name() string {
	return SinkName
}

// Handle implements dispatch.Sink. Every payload that is written is also
// admitted, including one whose key was audited before.
func (s *Sink) Handle(ctx context.Context, rec pacs008.TransferRecord, doc pacs008.Document) error {
	correlationID := dispatch.CorrelationID(ctx)
	payload, err := json.Marshal(Payload{TransferRecord: rec, CorrelationID: correlationID, Document: doc})
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	key := Key(rec, correlationID)
	if err := s.writer.Write(ctx, key, payload); err != nil {
		return fmt.Errorf("failed to write audit record %s: %w", key, err)
	}

	if err := s.next.Admit(ctx, payload); err != nil {
		return fmt.Errorf("failed to hand audit record %s to aggregation: %w", key, err)
	}
	s.logger.Info().Str("key", key).Object("record", rec).Msg("Payment audited.")
	return nil
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Key returns the storage key for a record: the message id, else the
// correlation id, else a random uuid. Characters unsafe in file or object
// names are replaced with '_'.
func Key(rec pacs008.TransferRecord, correlationID string) string {
	key := rec.ID()
	if key == "" {
		key = correlationID
	}
	key = unsafeKeyChars.ReplaceAllString(key, "_")
	if key == "" || key == "." || key == ".." {
		return uuid.NewString()
	}
	return key
}
