// Package storage is the single-slot key-value layer behind the board store.
// The current board snapshot lives under one key; everything else is small
// preference blobs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"taskboard/internal/config"
)

const (
	// StateKey holds the serialized board snapshot.
	StateKey = "kanban-state"
	// ThemeKey holds the UI theme preference blob.
	ThemeKey = "theme"

	dataDirName = ".taskboard"
)

var ErrKeyNotFound = errors.New("key not found")

// Store reads and writes opaque values by key. Implementations treat each
// key as a single slot: Put replaces, concurrent writers are last-write-wins.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// DataDir creates the workspace data directory if missing and returns it.
func DataDir(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	path := filepath.Join(workspace, dataDirName)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}

// Open constructs the backend selected by the configuration.
func Open(workspace string, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "", "file":
		dir := cfg.Dir
		if dir == "" {
			d, err := DataDir(workspace)
			if err != nil {
				return nil, err
			}
			dir = d
		}
		return NewFile(dir)
	case "sqlite":
		return OpenSQLite(workspace)
	case "s3":
		return NewS3(cfg.S3)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
