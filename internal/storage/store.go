// Package storage defines the persistence contract for triggers and their execution history.
//
// Two backends are registered: an embedded SQLite database (the default) and PostgreSQL
// through pgx. Both migrate their schema on open and implement the counter updates
// (RecordSuccess, RecordFailure, ResetFailures, SetActive) as single transactions so
// concurrent executions of the same trigger never lose an update.
//
// Example usage:
//
//	store, err := storage.NewStore(ctx, cfg, encryptor, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	outcome, err := store.RecordFailure(ctx, triggerID, time.Now())
package storage

import (
	"context"
	"errors"
	"time"

	"trigger-engine/internal/models"
)

var (
	// ErrNotFound is returned when a trigger does not exist
	ErrNotFound = errors.New("trigger not found")
	// ErrDuplicateWebhookID is returned when a webhook id is live or has been retired
	ErrDuplicateWebhookID = errors.New("webhook id already in use")
)

// TriggerStore persists triggers and executions.
//
// Update writes the definition fields only. Counters, activation and the next
// run time change through their dedicated methods, which are atomic per trigger.
type TriggerStore interface {
	Get(ctx context.Context, id string) (*models.Trigger, error)
	Create(ctx context.Context, trigger *models.Trigger) error
	Update(ctx context.Context, trigger *models.Trigger) error
	// Delete removes the trigger and its executions and retires its webhook id.
	// It reports false when the trigger did not exist.
	Delete(ctx context.Context, id string) (bool, error)

	List(ctx context.Context, filter models.TriggerFilter) ([]*models.Trigger, error)
	ListByAgent(ctx context.Context, agentID string) ([]*models.Trigger, error)
	ListByType(ctx context.Context, triggerType models.TriggerType) ([]*models.Trigger, error)
	ListActive(ctx context.Context) ([]*models.Trigger, error)
	GetByWebhookID(ctx context.Context, webhookID string) (*models.Trigger, error)
	// ListCronTriggersDue returns active cron triggers whose next run time is at or before the given instant
	ListCronTriggersDue(ctx context.Context, before time.Time) ([]*models.Trigger, error)
	// WebhookIDExists reports whether the id is used by a trigger or was used by a deleted one
	WebhookIDExists(ctx context.Context, webhookID string) (bool, error)

	RecordSuccess(ctx context.Context, id string, at time.Time) error
	RecordFailure(ctx context.Context, id string, at time.Time) (*models.FailureOutcome, error)
	ResetFailures(ctx context.Context, id string) (bool, error)
	SetActive(ctx context.Context, id string, active bool) (bool, error)
	SetNextRunTime(ctx context.Context, id string, next *time.Time) error

	CreateExecution(ctx context.Context, execution *models.TriggerExecution) error
	ListExecutionsByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.TriggerExecution, error)
	// CountExecutionsInPeriod counts executions in [since, until). When statuses is
	// non-empty only executions with one of those statuses are counted.
	CountExecutionsInPeriod(ctx context.Context, triggerID string, since, until time.Time, statuses ...models.ExecutionStatus) (int, error)
	ListExecutions(ctx context.Context, filter models.ExecutionFilter, page models.Page) (*models.ExecutionPage, error)

	Health(ctx context.Context) error
	Close() error
}

// Migrator is implemented by stores that can apply their schema on demand
type Migrator interface {
	Migrate(ctx context.Context) error
}
