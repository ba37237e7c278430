// Package app opens a workspace: config file, database, migrations and the
// engine wired on top of them.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"processmap/internal/config"
	"processmap/internal/db"
	"processmap/internal/engine"
	"processmap/internal/engine/auth"
	"processmap/internal/events"
	"processmap/internal/migrate"
)

type Options struct {
	Logger *zap.Logger
	// Live creates a change bus so committed mutations are published.
	Live bool
}

type Workspace struct {
	Dir    string
	Config *config.Config
	DB     *sql.DB
	Bus    *events.Bus
	Engine engine.Engine
	Access auth.Service
	Logger *zap.Logger
}

// Open loads the workspace config, opens and migrates the database and
// builds the engine.
func Open(ctx context.Context, dir string, opts Options) (*Workspace, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	var bus *events.Bus
	if opts.Live {
		bus = events.NewBus(logger.Named("bus"))
	}
	e := engine.New(conn, cfg, bus, logger.Named("engine"))
	return &Workspace{
		Dir:    dir,
		Config: cfg,
		DB:     conn,
		Bus:    bus,
		Engine: e,
		Access: auth.Service{Repo: e.Repo, Static: cfg.Auth.AllowedEmails},
		Logger: logger,
	}, nil
}

// Close drains background work before closing the bus and the database.
func (w *Workspace) Close() error {
	w.Engine.Wait()
	return errors.Join(w.Bus.Close(), w.DB.Close())
}

// TokenTTL parses auth.token_ttl, falling back to 12h.
func (w *Workspace) TokenTTL() time.Duration {
	if d, err := time.ParseDuration(w.Config.Auth.TokenTTL); err == nil && d > 0 {
		return d
	}
	return 12 * time.Hour
}

// Init writes the default config file unless one exists and creates the
// database. It reports whether a config file was written.
func Init(ctx context.Context, dir string) (bool, error) {
	path := config.Path(dir)
	wrote := false
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
			return false, err
		}
		wrote = true
	} else if err != nil {
		return false, err
	}
	ws, err := Open(ctx, dir, Options{})
	if err != nil {
		return wrote, err
	}
	return wrote, ws.Close()
}
