package audit

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
)

// GCSWriterConfig holds configuration for the GCS audit writer.
type GCSWriterConfig struct {
	BucketName   string
	ObjectPrefix string
}

// GCSWriter stores each payload as <prefix>/<key>.json in a bucket.
type GCSWriter struct {
	client GCSClient
	config GCSWriterConfig
	logger zerolog.Logger
}

// NewGCSWriter creates a GCSWriter.
func NewGCSWriter(client GCSClient, config GCSWriterConfig, logger zerolog.Logger) (*GCSWriter, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSWriter{
		client: client,
		config: config,
		logger: logger.With().Str("component", "AuditGCSWriter").Logger(),
	}, nil
}

// Write uploads payload, replacing any object already stored under the key.
func (w *GCSWriter) Write(ctx context.Context, key string, payload []byte) error {
	objectName := path.Join(w.config.ObjectPrefix, key+".json")
	wc := w.client.Bucket(w.config.BucketName).Object(objectName).NewWriter(ctx, "application/json")

	if _, err := wc.Write(payload); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to write audit object %s: %w", objectName, err)
	}
	if err := wc.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			w.logger.Error().Int("status_code", apiErr.Code).Str("object_name", objectName).Msg("GCS rejected audit object.")
		}
		return fmt.Errorf("failed to finalize audit object %s: %w", objectName, err)
	}

	w.logger.Debug().Str("bucket", w.config.BucketName).Str("object_name", objectName).Int("payload_bytes", len(payload)).Msg("Audit object written.")
	return nil
}

// Close is a no-op; the storage client is owned by the caller.
func (w *GCSWriter) Close() error {
	return nil
}
