package triggers

import (
	"context"
	"time"

	"trigger-engine/internal/models"
)

// TaskService creates and hands off agent tasks
type TaskService interface {
	CreateTaskFromParams(ctx context.Context, agentID string, params map[string]interface{}) (*models.Task, error)
	// SubmitTask hands the task to durable execution; it does not wait for the task to run
	SubmitTask(ctx context.Context, task *models.Task) error
}

// ScheduleManager owns the live schedules of cron triggers.
// Every call is best-effort from the service's point of view.
type ScheduleManager interface {
	CreateSchedule(ctx context.Context, triggerID, cronExpression, timezone string) error
	UpdateSchedule(ctx context.Context, triggerID, cronExpression, timezone string) error
	PauseSchedule(ctx context.Context, triggerID string) error
	ResumeSchedule(ctx context.Context, triggerID string) error
	DeleteSchedule(ctx context.Context, triggerID string) error
}

// EventPublisher is fire-and-forget; the service logs and drops publish errors
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{}) error
}

// AgentLookup tells whether an agent exists
type AgentLookup interface {
	AgentExists(ctx context.Context, agentID string) (bool, error)
}

// ConditionEvaluator gates executions and pulls task parameters out of event data
type ConditionEvaluator interface {
	Evaluate(ctx context.Context, spec *models.ConditionSpec, eventData, triggerContext map[string]interface{}) (bool, error)
	ValidateSyntax(spec *models.ConditionSpec) []string
	// ExtractParameters never fails; it falls back to a map carrying the raw event data
	ExtractParameters(ctx context.Context, instruction string, eventData, triggerContext map[string]interface{}) map[string]interface{}
}

// WebhookRegistry keeps the webhook id to trigger mapping used at ingress
type WebhookRegistry interface {
	Register(t *models.Trigger) error
	Unregister(webhookID string)
}

// Clock returns the current time
type Clock func() time.Time
