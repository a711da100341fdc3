package storage

import (
	"context"
	"fmt"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/config"
	"trigger-engine/internal/crypto"
)

// NewStore opens the backend selected by cfg.DatabaseType.
// The backend package must have been imported so its factory is registered.
func NewStore(ctx context.Context, cfg *config.Config, enc *crypto.Encryptor, logger logging.Logger) (TriggerStore, error) {
	if !DefaultRegistry.IsRegistered(cfg.DatabaseType) {
		return nil, errors.ConfigError(fmt.Sprintf("unsupported database type: %s (available: %v)",
			cfg.DatabaseType, GetAvailableTypes()))
	}

	store, err := DefaultRegistry.Create(ctx, cfg.DatabaseType, Options{
		Config:    cfg,
		Encryptor: enc,
		Logger:    logging.OrGlobal(logger),
	})
	if err != nil {
		return nil, errors.DependencyUnavailableError("trigger_store", err)
	}
	return store, nil
}
