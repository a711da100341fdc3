// Package webhooks maps webhook ids to triggers and turns inbound HTTP requests into trigger executions.
package webhooks

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/models"
	"trigger-engine/internal/storage"
)

// Lookup finds a webhook trigger that is not registered in memory
type Lookup interface {
	GetByWebhookID(ctx context.Context, webhookID string) (*models.Trigger, error)
}

// Registry resolves webhook ids to trigger snapshots.
// Registered triggers are served from memory; anything else falls back to the
// lookup, with hits kept in a bounded LRU until the id is registered or unregistered.
type Registry struct {
	mu       sync.RWMutex
	triggers map[string]*models.Trigger

	lookup Lookup
	cache  *lru.Cache[string, *models.Trigger]
	logger logging.Logger
}

func NewRegistry(lookup Lookup, cacheSize int, logger logging.Logger) (*Registry, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, *models.Trigger](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook cache: %w", err)
	}
	return &Registry{
		triggers: make(map[string]*models.Trigger),
		lookup:   lookup,
		cache:    cache,
		logger:   logging.OrGlobal(logger).WithFields(logging.Field{"component", "webhook_registry"}),
	}, nil
}

// Register stores a snapshot of t under its webhook id, replacing any previous one
func (r *Registry) Register(t *models.Trigger) error {
	if t == nil || !t.IsWebhook() || t.Webhook.WebhookID == "" {
		return errors.ValidationError("only webhook triggers with a webhook_id can be registered")
	}

	snapshot := t.Clone()
	r.mu.Lock()
	r.triggers[snapshot.Webhook.WebhookID] = snapshot
	r.mu.Unlock()
	r.cache.Remove(snapshot.Webhook.WebhookID)

	r.logger.Debug("Webhook registered",
		logging.Field{"webhook_id", snapshot.Webhook.WebhookID},
		logging.Field{"trigger_id", snapshot.ID},
	)
	return nil
}

// Unregister forgets webhookID. Unknown ids are ignored.
func (r *Registry) Unregister(webhookID string) {
	r.mu.Lock()
	delete(r.triggers, webhookID)
	r.mu.Unlock()
	r.cache.Remove(webhookID)
}

// Resolve returns a copy of the trigger registered for webhookID, or nil
func (r *Registry) Resolve(ctx context.Context, webhookID string) *models.Trigger {
	if webhookID == "" {
		return nil
	}

	r.mu.RLock()
	t, ok := r.triggers[webhookID]
	r.mu.RUnlock()
	if ok {
		return t.Clone()
	}

	if cached, ok := r.cache.Get(webhookID); ok {
		return cached.Clone()
	}
	if r.lookup == nil {
		return nil
	}

	found, err := r.lookup.GetByWebhookID(ctx, webhookID)
	if err != nil {
		if !stderrors.Is(err, storage.ErrNotFound) {
			r.logger.WithContext(ctx).Error("Webhook lookup failed", err, logging.Field{"webhook_id", webhookID})
		}
		return nil
	}
	if !found.IsWebhook() {
		return nil
	}
	r.cache.Add(webhookID, found.Clone())
	return found
}

// Len reports the number of registered webhooks
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.triggers)
}
