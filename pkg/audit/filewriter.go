package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// FileWriter writes each payload to <dir>/<key>.json.
type FileWriter struct {
	dir    string
	logger zerolog.Logger
}

// NewFileWriter creates a FileWriter, creating dir if needed.
func NewFileWriter(dir string, logger zerolog.Logger) (*FileWriter, error) {
	if dir == "" {
		return nil, errors.New("audit directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory %s: %w", dir, err)
	}
	return &FileWriter{
		dir:    dir,
		logger: logger.With().Str("component", "AuditFileWriter").Logger(),
	}, nil
}

// Write replaces <dir>/<key>.json with payload. The file is written to a
// temporary name and renamed, so readers never see a partial record.
func (w *FileWriter) Write(_ context.Context, key string, payload []byte) error {
	path := filepath.Join(w.dir, key+".json")
	tmp, err := os.CreateTemp(w.dir, ".audit-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary audit file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write audit file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close audit file %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace audit file %s: %w", path, err)
	}
	w.logger.Debug().Str("path", path).Int("payload_bytes", len(payload)).Msg("Audit file written.")
	return nil
}

// Close is a no-op.
func (w *FileWriter) Close() error {
	return nil
}
