// Package app wires a workspace together: configuration, storage backend,
// persisted board, journal. CLI commands and the server both start here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"taskboard/internal/board"
	"taskboard/internal/config"
	"taskboard/internal/engine"
	"taskboard/internal/journal"
	"taskboard/internal/storage"
)

// Theme names accepted for the UI preference.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

type App struct {
	Workspace string
	Config    *config.Config
	Store     storage.Store
	Engine    *engine.Engine
}

// Open loads the workspace, seeding defaults where pieces are missing: no
// config file means the built-in default board layout, no stored snapshot
// means an empty board.
func Open(ctx context.Context, workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	store, err := storage.Open(workspace, cfg.Storage)
	if err != nil {
		return nil, err
	}
	initial, err := loadBoard(ctx, store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	eng := engine.New(cfg, store, initial)

	dir, err := storage.DataDir(workspace)
	if err != nil {
		store.Close()
		return nil, err
	}
	eng.Journal = journal.Open(dir)

	return &App{Workspace: workspace, Config: cfg, Store: store, Engine: eng}, nil
}

// loadBoard reads the persisted snapshot. A snapshot that no longer decodes
// is abandoned with a warning instead of blocking the session; the next
// mutation overwrites it.
func loadBoard(ctx context.Context, store storage.Store, cfg *config.Config) (board.Board, error) {
	data, err := store.Get(ctx, storage.StateKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return board.New(cfg.ColumnIDs()), nil
	}
	if err != nil {
		return board.Board{}, fmt.Errorf("load board: %w", err)
	}
	b, err := board.Decode(data, cfg.ColumnIDs())
	if err != nil {
		log.Printf("stored board snapshot is unusable, starting empty: %v", err)
		return board.New(cfg.ColumnIDs()), nil
	}
	return b, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// Theme returns the persisted UI theme, defaulting to light.
func (a *App) Theme(ctx context.Context) (string, error) {
	data, err := a.Store.Get(ctx, storage.ThemeKey)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return ThemeLight, nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetTheme stores the UI theme preference.
func (a *App) SetTheme(ctx context.Context, name string) error {
	if name != ThemeLight && name != ThemeDark {
		return fmt.Errorf("unknown theme %q", name)
	}
	return a.Store.Put(ctx, storage.ThemeKey, []byte(name))
}
