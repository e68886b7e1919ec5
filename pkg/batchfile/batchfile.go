// Package batchfile persists the last flushed aggregate batch as a JSON file.
package batchfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// emptyBatch is returned when no batch has been written yet.
var emptyBatch = []byte("[]")

// File is the aggregated-batch file. Writes replace the whole file atomically,
// so readers see either the previous batch or the new one.
type File struct {
	path string
}

// New returns a File at path. The parent directory is created on first write.
func New(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("batch file path is required")
	}
	return &File{path: path}, nil
}

// Path returns the location of the file.
func (f *File) Path() string {
	return f.path
}

// Write replaces the file with data.
func (f *File) Write(data []byte) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create batch directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".batch-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary batch file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write batch file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync batch file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close batch file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace batch file %s: %w", f.path, err)
	}
	return nil
}

// Read returns the file contents verbatim, or "[]" when it does not exist.
func (f *File) Read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return emptyBatch, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch file %s: %w", f.path, err)
	}
	return data, nil
}
