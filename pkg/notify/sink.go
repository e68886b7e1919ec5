package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-pacsflow/pkg/dispatch"
	"github.com/illmade-knight/go-pacsflow/pkg/pacs008"
	"github.com/rs/zerolog"
)

// SinkName is the name the notify sink registers with the dispatcher.
const SinkName = "notify"

// Event is the notification body.
type Event struct {
	pacs008.TransferRecord
	CorrelationID string    `json:"correlationId,omitempty"`
	ReceivedAt    time.Time `json:"receivedAt"`
}

// Sink publishes an Event for every dispatched payment.
type Sink struct {
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewSink creates the notify sink.
func NewSink(publisher Publisher, logger zerolog.Logger) (*Sink, error) {
	if publisher == nil {
		return nil, errors.New("publisher cannot be nil")
	}
	return &Sink{
		publisher: publisher,
		logger:    logger.With().Str("component", "NotifySink").Logger(),
		now:       time.Now,
	}, nil
}

// Name implements dispatch.Sink.
func (s *Sink) Name() string {
	return SinkName
}

// Handle implements dispatch.Sink. The document itself is not forwarded.
func (s *Sink) Handle(ctx context.Context, rec pacs008.TransferRecord, _ pacs008.Document) error {
	event := Event{
		TransferRecord: rec,
		CorrelationID:  dispatch.CorrelationID(ctx),
		ReceivedAt:     s.now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	key := rec.ID()
	if key == "" {
		key = event.CorrelationID
	}
	if err := s.publisher.Publish(ctx, key, payload); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}
