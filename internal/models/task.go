package models

import "time"

// Task is the unit of agent work created when a trigger fires.
// It is owned by the task service; the engine only keeps its id.
type Task struct {
	ID         string                 `json:"id"`
	AgentID    string                 `json:"agent_id"`
	Parameters map[string]interface{} `json:"parameters"`
	WorkflowID string                 `json:"workflow_id,omitempty"`
	RunID      string                 `json:"run_id,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Event types published by the engine
const (
	EventTriggerAutoDisabled = "trigger.auto_disabled"
)

// AutoDisableReason is the reason attached to trigger.auto_disabled events
const AutoDisableReason = "consecutive_failures_threshold_exceeded"
