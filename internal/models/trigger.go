// Package models defines the trigger domain types shared by the service, storage and HTTP layers
package models

import (
	"fmt"
	"strings"
	"time"
)

// TriggerType discriminates cron and webhook triggers
type TriggerType string

const (
	TriggerTypeCron    TriggerType = "cron"
	TriggerTypeWebhook TriggerType = "webhook"
)

// WebhookType identifies the sending provider of a webhook trigger
type WebhookType string

const (
	WebhookTypeGeneric  WebhookType = "GENERIC"
	WebhookTypeGitHub   WebhookType = "GITHUB"
	WebhookTypeSlack    WebhookType = "SLACK"
	WebhookTypeTelegram WebhookType = "TELEGRAM"
)

// DefaultFailureThreshold applies when a trigger is created without one
const DefaultFailureThreshold = 5

// Task parameter keys with a meaning to the execution pipeline
const (
	// ExtractInstructionKey holds a natural-language instruction for pulling task
	// parameters out of the event data with the completion backend
	ExtractInstructionKey = "extract_instruction"
	// ExtractedParametersKey receives the extraction result in the task parameters
	ExtractedParametersKey = "extracted_parameters"
)

// CronSpec holds the fields only cron triggers carry
type CronSpec struct {
	CronExpression string     `json:"cron_expression"`
	Timezone       string     `json:"timezone"`
	NextRunTime    *time.Time `json:"next_run_time,omitempty"`
}

// WebhookSpec holds the fields only webhook triggers carry
type WebhookSpec struct {
	WebhookID       string                 `json:"webhook_id"`
	AllowedMethods  []string               `json:"allowed_methods"`
	WebhookType     WebhookType            `json:"webhook_type"`
	ValidationRules map[string]interface{} `json:"validation_rules,omitempty"`
	WebhookConfig   map[string]interface{} `json:"webhook_config,omitempty"`
}

// Trigger is a persisted rule that creates agent tasks when it fires.
// Exactly one of Cron or Webhook is set, matching TriggerType.
type Trigger struct {
	ID                   string                 `json:"id"`
	Name                 string                 `json:"name"`
	Description          string                 `json:"description,omitempty"`
	AgentID              string                 `json:"agent_id"`
	TriggerType          TriggerType            `json:"trigger_type"`
	IsActive             bool                   `json:"is_active"`
	TaskParameters       map[string]interface{} `json:"task_parameters,omitempty"`
	Conditions           *ConditionSpec         `json:"conditions,omitempty"`
	FailureThreshold     int                    `json:"failure_threshold"`
	ConsecutiveFailures  int                    `json:"consecutive_failures"`
	MaxExecutionsPerHour *int                   `json:"max_executions_per_hour,omitempty"`
	LastExecutionAt      *time.Time             `json:"last_execution_at,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
	CreatedBy            string                 `json:"created_by,omitempty"`

	Cron    *CronSpec    `json:"cron,omitempty"`
	Webhook *WebhookSpec `json:"webhook,omitempty"`
}

// Validate checks the structural invariants of a trigger
func (t *Trigger) Validate() error {
	if t.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be at least 1")
	}
	if t.ConsecutiveFailures < 0 {
		return fmt.Errorf("consecutive_failures must not be negative")
	}
	if t.MaxExecutionsPerHour != nil && *t.MaxExecutionsPerHour < 1 {
		return fmt.Errorf("max_executions_per_hour must be at least 1")
	}

	switch t.TriggerType {
	case TriggerTypeCron:
		if t.Cron == nil || t.Cron.CronExpression == "" {
			return fmt.Errorf("cron trigger requires cron_expression")
		}
		if t.Webhook != nil {
			return fmt.Errorf("cron trigger must not carry webhook fields")
		}
	case TriggerTypeWebhook:
		if t.Webhook == nil || t.Webhook.WebhookID == "" {
			return fmt.Errorf("webhook trigger requires webhook_id")
		}
		if t.Cron != nil {
			return fmt.Errorf("webhook trigger must not carry cron fields")
		}
	default:
		return fmt.Errorf("unknown trigger_type %q", t.TriggerType)
	}
	return nil
}

// IsCron reports whether t is a cron trigger
func (t *Trigger) IsCron() bool {
	return t.TriggerType == TriggerTypeCron && t.Cron != nil
}

// IsWebhook reports whether t is a webhook trigger
func (t *Trigger) IsWebhook() bool {
	return t.TriggerType == TriggerTypeWebhook && t.Webhook != nil
}

// WebhookID returns the webhook id, or "" for cron triggers
func (t *Trigger) WebhookID() string {
	if t.Webhook == nil {
		return ""
	}
	return t.Webhook.WebhookID
}

// ExtractInstruction returns the trimmed extract_instruction task parameter, or ""
func (t *Trigger) ExtractInstruction() string {
	instruction, _ := t.TaskParameters[ExtractInstructionKey].(string)
	return strings.TrimSpace(instruction)
}

// AllowsMethod reports whether the webhook accepts method (case-insensitive)
func (w *WebhookSpec) AllowsMethod(method string) bool {
	for _, allowed := range w.AllowedMethods {
		if strings.EqualFold(allowed, method) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of t so callers can mutate it freely
func (t *Trigger) Clone() *Trigger {
	if t == nil {
		return nil
	}
	c := *t
	c.TaskParameters = cloneMap(t.TaskParameters)
	if t.Conditions != nil {
		cond := cloneCondition(*t.Conditions)
		c.Conditions = &cond
	}
	if t.MaxExecutionsPerHour != nil {
		v := *t.MaxExecutionsPerHour
		c.MaxExecutionsPerHour = &v
	}
	if t.LastExecutionAt != nil {
		v := *t.LastExecutionAt
		c.LastExecutionAt = &v
	}
	if t.Cron != nil {
		cron := *t.Cron
		if t.Cron.NextRunTime != nil {
			v := *t.Cron.NextRunTime
			cron.NextRunTime = &v
		}
		c.Cron = &cron
	}
	if t.Webhook != nil {
		wh := *t.Webhook
		wh.AllowedMethods = append([]string(nil), t.Webhook.AllowedMethods...)
		wh.ValidationRules = cloneMap(t.Webhook.ValidationRules)
		wh.WebhookConfig = cloneMap(t.Webhook.WebhookConfig)
		c.Webhook = &wh
	}
	return &c
}

func cloneCondition(spec ConditionSpec) ConditionSpec {
	out := spec
	out.Rules = append([]Rule(nil), spec.Rules...)
	out.ContextFields = append([]string(nil), spec.ContextFields...)
	out.Examples = append([]Example(nil), spec.Examples...)
	if spec.Conditions != nil {
		out.Conditions = make([]ConditionSpec, len(spec.Conditions))
		for i, sub := range spec.Conditions {
			out.Conditions[i] = cloneCondition(sub)
		}
	}
	return out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		switch typed := v.(type) {
		case map[string]interface{}:
			out[k] = cloneMap(typed)
		case []interface{}:
			out[k] = append([]interface{}(nil), typed...)
		default:
			out[k] = v
		}
	}
	return out
}
