// Package status provides sync status types and their persistence.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

//go:generate mockgen -destination=mocks/mock_persistence.go -package=mocks -source=persistence.go Persistence

const (
	// StatusFileName is the default name of the status file
	StatusFileName = "status.json"
)

// Persistence defines the interface for tracker snapshot persistence
type Persistence interface {
	// Save replaces the stored snapshot
	Save(ctx context.Context, snapshot *Snapshot) error

	// Load returns the stored snapshot.
	// Returns an empty Snapshot if nothing was saved yet (first run)
	Load(ctx context.Context) (*Snapshot, error)
}

// filePersistence implements Persistence using a single JSON file
type filePersistence struct {
	fs   afero.Fs
	path string
}

// NewFilePersistence creates a file-based persistence writing to path on fs
func NewFilePersistence(fs afero.Fs, path string) Persistence {
	return &filePersistence{
		fs:   fs,
		path: path,
	}
}

// Save writes the snapshot to a temporary file and renames it into place
func (f *filePersistence) Save(_ context.Context, snapshot *Snapshot) error {
	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status snapshot: %w", err)
	}

	tempPath := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file: %w", err)
	}

	if err := f.fs.Rename(tempPath, f.path); err != nil {
		_ = f.fs.Remove(tempPath)
		return fmt.Errorf("failed to rename status file: %w", err)
	}

	return nil
}

// Load reads the snapshot file. A missing file yields an empty snapshot.
func (f *filePersistence) Load(_ context.Context) (*Snapshot, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to read status file: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status file: %w", err)
	}

	return &snapshot, nil
}
