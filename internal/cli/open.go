package cli

import (
	"context"
	"log/slog"

	"github.com/roach88/docmap/internal/config"
	"github.com/roach88/docmap/internal/database"
	"github.com/roach88/docmap/internal/pgstore"
	"github.com/roach88/docmap/internal/schema"
	"github.com/roach88/docmap/internal/store"
)

// storage is a database.Storage that owns its connection.
type storage interface {
	database.Storage
	Close() error
}

// openStorage opens the configured document store. A non-empty path
// overrides database.path for the SQLite drivers.
func openStorage(ctx context.Context, cfg *config.Config, path string, logger *slog.Logger) (storage, error) {
	db := cfg.Database
	if path != "" {
		db.Path = path
	}

	switch db.Driver {
	case config.DriverPostgres:
		logger.Debug("opening database", "driver", db.Driver)
		st, err := pgstore.Open(ctx, db.URL)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		return st, nil
	default:
		logger.Debug("opening database", "driver", db.Driver, "path", db.Path)
		st, err := store.Open(db.Path, store.WithDriver(db.Driver))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open database", err)
		}
		return st, nil
	}
}

// openSession loads the schema, opens storage and starts a session honoring
// session.disable_pooling. The returned close function releases storage.
func (o *RootOptions) openSession(ctx context.Context, schemaDir, path string, logger *slog.Logger) (*database.Session, func(), error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, err
	}

	reg, err := loadRegistry(schemaDir)
	if err != nil {
		return nil, nil, err
	}

	st, err := openStorage(ctx, cfg, path, logger)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}

	session := newDatabase(reg, st, logger).CreateSession()
	session.DisabledInstancePooling = cfg.Session.DisablePooling
	return session, closeFn, nil
}

func newDatabase(reg *schema.Registry, st database.Storage, logger *slog.Logger) *database.Database {
	return database.New(reg, st, database.WithLogger(logger))
}
