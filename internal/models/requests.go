package models

// CreateTriggerRequest is the input for creating a trigger.
// Cron fields apply when TriggerType is cron, webhook fields when it is webhook.
type CreateTriggerRequest struct {
	Name                 string                 `json:"name" validate:"required,max=255"`
	Description          string                 `json:"description,omitempty" validate:"max=2000"`
	AgentID              string                 `json:"agent_id" validate:"required"`
	TriggerType          TriggerType            `json:"trigger_type" validate:"required,oneof=cron webhook"`
	TaskParameters       map[string]interface{} `json:"task_parameters,omitempty"`
	Conditions           *ConditionSpec         `json:"conditions,omitempty"`
	FailureThreshold     *int                   `json:"failure_threshold,omitempty" validate:"omitempty,min=1"`
	MaxExecutionsPerHour *int                   `json:"max_executions_per_hour,omitempty" validate:"omitempty,min=1"`
	CreatedBy            string                 `json:"created_by,omitempty"`

	CronExpression string `json:"cron_expression,omitempty" validate:"required_if=TriggerType cron,omitempty,cron_expression"`
	Timezone       string `json:"timezone,omitempty" validate:"omitempty,timezone"`

	AllowedMethods  []string               `json:"allowed_methods,omitempty" validate:"dive,http_method"`
	WebhookType     WebhookType            `json:"webhook_type,omitempty" validate:"omitempty,oneof=GENERIC GITHUB SLACK TELEGRAM"`
	ValidationRules map[string]interface{} `json:"validation_rules,omitempty"`
	WebhookConfig   map[string]interface{} `json:"webhook_config,omitempty"`
}

// UpdateTriggerRequest carries a partial update; nil fields are left unchanged.
// Cron fields are ignored for webhook triggers and webhook fields for cron triggers.
type UpdateTriggerRequest struct {
	Name                 *string                `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description          *string                `json:"description,omitempty" validate:"omitempty,max=2000"`
	TaskParameters       map[string]interface{} `json:"task_parameters,omitempty"`
	Conditions           *ConditionSpec         `json:"conditions,omitempty"`
	FailureThreshold     *int                   `json:"failure_threshold,omitempty" validate:"omitempty,min=1"`
	MaxExecutionsPerHour *int                   `json:"max_executions_per_hour,omitempty" validate:"omitempty,min=1"`

	CronExpression *string `json:"cron_expression,omitempty" validate:"omitempty,cron_expression"`
	Timezone       *string `json:"timezone,omitempty" validate:"omitempty,timezone"`

	AllowedMethods  []string               `json:"allowed_methods,omitempty" validate:"omitempty,dive,http_method"`
	ValidationRules map[string]interface{} `json:"validation_rules,omitempty"`
	WebhookConfig   map[string]interface{} `json:"webhook_config,omitempty"`
}

// ScheduleChanged reports whether the update touches schedule-relevant fields of t
func (r *UpdateTriggerRequest) ScheduleChanged(t *Trigger) bool {
	if t.Cron == nil {
		return false
	}
	if r.CronExpression != nil && *r.CronExpression != t.Cron.CronExpression {
		return true
	}
	return r.Timezone != nil && *r.Timezone != t.Cron.Timezone
}

// Apply merges the non-nil fields of r into t
func (r *UpdateTriggerRequest) Apply(t *Trigger) {
	if r.Name != nil {
		t.Name = *r.Name
	}
	if r.Description != nil {
		t.Description = *r.Description
	}
	if r.TaskParameters != nil {
		t.TaskParameters = r.TaskParameters
	}
	if r.Conditions != nil {
		cond := *r.Conditions
		t.Conditions = &cond
	}
	if r.FailureThreshold != nil {
		t.FailureThreshold = *r.FailureThreshold
	}
	if r.MaxExecutionsPerHour != nil {
		v := *r.MaxExecutionsPerHour
		t.MaxExecutionsPerHour = &v
	}
	if t.Cron != nil {
		if r.CronExpression != nil {
			t.Cron.CronExpression = *r.CronExpression
		}
		if r.Timezone != nil {
			t.Cron.Timezone = *r.Timezone
		}
	}
	if t.Webhook != nil {
		if r.AllowedMethods != nil {
			t.Webhook.AllowedMethods = r.AllowedMethods
		}
		if r.ValidationRules != nil {
			t.Webhook.ValidationRules = r.ValidationRules
		}
		if r.WebhookConfig != nil {
			t.Webhook.WebhookConfig = r.WebhookConfig
		}
	}
}
