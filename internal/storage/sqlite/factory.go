package sqlite

import (
	"context"
	"fmt"

	"trigger-engine/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(ctx context.Context, opts storage.Options) (storage.TriggerStore, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("sqlite storage requires a config")
	}
	cfg := DefaultConfig()
	if opts.Config.DatabasePath != "" {
		cfg.DatabasePath = opts.Config.DatabasePath
	}
	return NewAdapter(ctx, cfg, opts.Encryptor, opts.Logger)
}

func (f *Factory) GetType() string {
	return "sqlite"
}

func init() {
	storage.Register("sqlite", &Factory{})
}
