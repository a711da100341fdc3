package postgres

import (
	"context"
	"fmt"

	"trigger-engine/internal/storage"
)

type Factory struct{}

func (f *Factory) Create(ctx context.Context, opts storage.Options) (storage.TriggerStore, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("postgres storage requires a config")
	}
	return NewAdapter(ctx, &Config{DSN: opts.Config.PostgresDSN()}, opts.Encryptor, opts.Logger)
}

func (f *Factory) GetType() string {
	return "postgres"
}

func init() {
	storage.Register("postgres", &Factory{})
}
