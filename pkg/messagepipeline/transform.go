package messagepipeline

import (
	"context"

	"github.com/illmade-knight/go-pacsflow/pkg/pacs008"
	"github.com/rs/zerolog"
)

// NewDocumentTransformer decodes the payload as a pacs.008 document. A
// payload that cannot be decoded will never succeed on redelivery, so it is
// logged and skipped rather than Nacked.
func NewDocumentTransformer(logger zerolog.Logger) MessageTransformer[pacs008.Document] {
	logger = logger.With().Str("component", "DocumentTransformer").Logger()
	return func(_ context.Context, msg *Message) (*pacs008.Document, bool, error) {
		doc, err := pacs008.Decode(msg.Payload)
		if err != nil {
			logger.Error().Err(err).Str("msg_id", msg.ID).Int("payload_size", len(msg.Payload)).Msg("Discarding undecodable document.")
			return nil, true, nil
		}
		return &doc, false, nil
	}
}

// WithPayloadValidation wraps a transformer with a payload size check.
// Messages outside [minSize, maxSize] are skipped without reaching inner.
func WithPayloadValidation[T any](
	inner MessageTransformer[T],
	minSize int,
	maxSize int,
	logger zerolog.Logger,
) MessageTransformer[T] {
	return func(ctx context.Context, msg *Message) (*T, bool, error) {
		payloadLen := len(msg.Payload)
		if payloadLen < minSize || payloadLen > maxSize {
			logger.Warn().Str("msg_id", msg.ID).Int("payload_size", payloadLen).Msg("Rejecting message due to invalid payload size.")
			return nil, true, nil
		}
		return inner(ctx, msg)
	}
}
