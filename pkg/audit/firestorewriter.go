package audit

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreWriter stores each payload as a document in a collection. The
// payload is kept as a JSON string because document keys may be empty, which
// Firestore field names cannot be.
type FirestoreWriter struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewFirestoreWriter creates a FirestoreWriter. The client's lifecycle is
// managed by the caller.
func NewFirestoreWriter(client *firestore.Client, collection string, logger zerolog.Logger) (*FirestoreWriter, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if collection == "" {
		return nil, errors.New("firestore collection is required")
	}
	return &FirestoreWriter{
		client:     client,
		collection: collection,
		logger:     logger.With().Str("component", "AuditFirestoreWriter").Logger(),
	}, nil
}

// Write sets the document <collection>/<key>, replacing an earlier record.
func (w *FirestoreWriter) Write(ctx context.Context, key string, payload []byte) error {
	_, err := w.client.Collection(w.collection).Doc(key).Set(ctx, map[string]interface{}{
		"key":       key,
		"payload":   string(payload),
		"writtenAt": firestore.ServerTimestamp,
	})
	if err != nil {
		return mapFirestoreError(key, err)
	}
	w.logger.Debug().Str("collection", w.collection).Str("key", key).Msg("Audit document written.")
	return nil
}

// Close is a no-op.
func (w *FirestoreWriter) Close() error {
	return nil
}

// mapFirestoreError names the gRPC code so transient failures are
// recognisable in logs.
func mapFirestoreError(key string, err error) error {
	code := status.Code(err)
	if code == codes.Unknown {
		return fmt.Errorf("firestore set for %s: %w", key, err)
	}
	return fmt.Errorf("firestore set for %s (%s): %w", key, code, err)
}
