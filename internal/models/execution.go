package models

import "time"

// ExecutionStatus is the outcome of one execution attempt
type ExecutionStatus string

const (
	ExecutionSuccess ExecutionStatus = "SUCCESS"
	ExecutionFailed  ExecutionStatus = "FAILED"
	ExecutionTimeout ExecutionStatus = "TIMEOUT"
	ExecutionSkipped ExecutionStatus = "SKIPPED"
)

// IsFailure reports whether the status counts towards consecutive failures
func (s ExecutionStatus) IsFailure() bool {
	return s == ExecutionFailed || s == ExecutionTimeout
}

// IsValid reports whether s is a known status
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionSuccess, ExecutionFailed, ExecutionTimeout, ExecutionSkipped:
		return true
	}
	return false
}

// Skip reasons recorded in TriggerExecution.ErrorMessage
const (
	SkipReasonInactive      = "trigger_inactive"
	SkipReasonConditionsNot = "conditions_not_met"
	SkipReasonRateLimited   = "rate_limited"
)

// TriggerExecution is the immutable record of one execution attempt
type TriggerExecution struct {
	ID              string                 `json:"id"`
	TriggerID       string                 `json:"trigger_id"`
	ExecutedAt      time.Time              `json:"executed_at"`
	Status          ExecutionStatus        `json:"status"`
	TaskID          string                 `json:"task_id,omitempty"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	TriggerData     map[string]interface{} `json:"trigger_data"`
	WorkflowID      string                 `json:"workflow_id,omitempty"`
	RunID           string                 `json:"run_id,omitempty"`
	CorrelationID   string                 `json:"correlation_id"`
}

// FailureOutcome is the result of atomically recording a failure
type FailureOutcome struct {
	ConsecutiveFailures int
	FailureThreshold    int
	// Disabled is true only for the failure that moved the trigger from active to inactive
	Disabled bool
}

// SafetyStatus summarises how close a trigger is to being auto-disabled
type SafetyStatus struct {
	TriggerID            string     `json:"trigger_id"`
	IsActive             bool       `json:"is_active"`
	ConsecutiveFailures  int        `json:"consecutive_failures"`
	FailureThreshold     int        `json:"failure_threshold"`
	FailuresUntilDisable int        `json:"failures_until_disable"`
	IsAtRisk             bool       `json:"is_at_risk"`
	ShouldDisable        bool       `json:"should_disable"`
	LastExecutionAt      *time.Time `json:"last_execution_at,omitempty"`
}

// ComputeSafetyStatus derives the safety status from the trigger's counters.
// A trigger is at risk once its failures reach atRiskRatio of the threshold;
// the epsilon keeps 4 of 5 at risk despite float rounding of 5*0.8.
func ComputeSafetyStatus(t *Trigger, atRiskRatio float64) *SafetyStatus {
	remaining := t.FailureThreshold - t.ConsecutiveFailures
	if remaining < 0 {
		remaining = 0
	}
	return &SafetyStatus{
		TriggerID:            t.ID,
		IsActive:             t.IsActive,
		ConsecutiveFailures:  t.ConsecutiveFailures,
		FailureThreshold:     t.FailureThreshold,
		FailuresUntilDisable: remaining,
		IsAtRisk:             float64(t.ConsecutiveFailures)+1e-9 >= float64(t.FailureThreshold)*atRiskRatio,
		ShouldDisable:        t.ConsecutiveFailures >= t.FailureThreshold,
		LastExecutionAt:      t.LastExecutionAt,
	}
}

// TriggerFilter narrows trigger listings; empty fields are ignored
type TriggerFilter struct {
	AgentID     string
	TriggerType TriggerType
	ActiveOnly  bool
}

// ExecutionFilter narrows execution listings; empty fields are ignored
type ExecutionFilter struct {
	TriggerID string
	Status    ExecutionStatus
	Since     *time.Time
	Until     *time.Time
}

// Page requests a window of results
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Normalize clamps the page to sane bounds
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ExecutionPage is one page of executions together with the total match count
type ExecutionPage struct {
	Items  []*TriggerExecution `json:"items"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}
