package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/config"
	"trigger-engine/internal/crypto"
)

// Options carries everything a backend needs to open a store
type Options struct {
	Config    *config.Config
	Encryptor *crypto.Encryptor
	Logger    logging.Logger
}

// Factory opens one kind of store
type Factory interface {
	Create(ctx context.Context, opts Options) (TriggerStore, error)
	GetType() string
}

type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

func (r *Registry) Register(storageType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[storageType] = factory
}

func (r *Registry) Create(ctx context.Context, storageType string, opts Options) (TriggerStore, error) {
	r.mu.RLock()
	factory, exists := r.factories[storageType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("storage type %s not registered", storageType)
	}

	return factory.Create(ctx, opts)
}

func (r *Registry) GetAvailableTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for storageType := range r.factories {
		types = append(types, storageType)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) IsRegistered(storageType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[storageType]
	return exists
}

var DefaultRegistry = NewRegistry()

func Register(storageType string, factory Factory) {
	DefaultRegistry.Register(storageType, factory)
}

func GetAvailableTypes() []string {
	return DefaultRegistry.GetAvailableTypes()
}
