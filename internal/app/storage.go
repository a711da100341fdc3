package app

import (
	"context"

	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/storage"
	_ "trigger-engine/internal/storage/postgres"
	_ "trigger-engine/internal/storage/sqlite"
)

func (app *App) initializeStorage(ctx context.Context) error {
	switch app.Config.DatabaseType {
	case "postgres":
		app.Logger.Info("Database: PostgreSQL",
			logging.Field{"host", app.Config.PostgresHost},
			logging.Field{"port", app.Config.PostgresPort},
			logging.Field{"database", app.Config.PostgresDB},
		)
	default:
		app.Logger.Info("Database: SQLite", logging.Field{"path", app.Config.DatabasePath})
	}

	store, err := storage.NewStore(ctx, app.Config, app.Encryptor, app.Logger)
	if err != nil {
		return err
	}
	app.Store = store
	return nil
}
