package app

import (
	"context"
	"time"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/config"
	"trigger-engine/internal/storage"
)

// Migrate applies the store schema and exits. Statements are idempotent, so running it
// against an up-to-date database is a no-op.
func Migrate(ctx context.Context, cfg *config.Config) error {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{"component", "migrate"}),
	}
	if err := app.initializeEncryption(); err != nil {
		return err
	}

	started := time.Now()
	if err := app.initializeStorage(ctx); err != nil {
		return err
	}
	defer app.Store.Close()

	migrator, ok := app.Store.(storage.Migrator)
	if !ok {
		return errors.ConfigError("storage backend " + cfg.DatabaseType + " does not support migrations")
	}
	if err := migrator.Migrate(ctx); err != nil {
		return errors.DependencyUnavailableError("trigger_store", err)
	}

	app.Logger.Info("Database schema is up to date",
		logging.Field{"database_type", cfg.DatabaseType},
		logging.Field{"duration_ms", time.Since(started).Milliseconds()},
	)
	return nil
}
