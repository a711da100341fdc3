package storage

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"trigger-engine/internal/crypto"
	"trigger-engine/internal/models"
)

// TriggerColumns is the column order used by ScanTrigger and TriggerArgs
const TriggerColumns = `id, name, description, agent_id, trigger_type, is_active, task_parameters, conditions,
	failure_threshold, consecutive_failures, max_executions_per_hour, last_execution_at,
	created_at, updated_at, created_by, cron_expression, timezone, next_run_time,
	webhook_id, allowed_methods, webhook_type, validation_rules, webhook_config`

// ExecutionColumns is the column order used by ScanExecution and ExecutionArgs
const ExecutionColumns = `id, trigger_id, executed_at, status, task_id, execution_time_ms,
	error_message, trigger_data, workflow_id, run_id, correlation_id`

// Scanner is satisfied by database/sql and pgx rows
type Scanner interface {
	Scan(dest ...interface{}) error
}

// ScanTrigger reads one row laid out as TriggerColumns
func ScanTrigger(row Scanner, enc *crypto.Encryptor) (*models.Trigger, error) {
	var t models.Trigger
	var triggerType, taskParams string
	var conditions, cronExpr, timezone, webhookID *string
	var allowedMethods, webhookType, rules, config *string
	var maxPerHour *int64
	var failureThreshold, consecutiveFailures int64
	var lastExecution, nextRun *time.Time

	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.AgentID, &triggerType, &t.IsActive, &taskParams, &conditions,
		&failureThreshold, &consecutiveFailures, &maxPerHour, &lastExecution,
		&t.CreatedAt, &t.UpdatedAt, &t.CreatedBy, &cronExpr, &timezone, &nextRun,
		&webhookID, &allowedMethods, &webhookType, &rules, &config,
	)
	if err != nil {
		return nil, err
	}

	t.TriggerType = models.TriggerType(triggerType)
	t.FailureThreshold = int(failureThreshold)
	t.ConsecutiveFailures = int(consecutiveFailures)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if maxPerHour != nil {
		v := int(*maxPerHour)
		t.MaxExecutionsPerHour = &v
	}
	t.LastExecutionAt = utcPtr(lastExecution)

	if err := decodeJSON(taskParams, &t.TaskParameters); err != nil {
		return nil, fmt.Errorf("trigger %s task_parameters: %w", t.ID, err)
	}
	if conditions != nil && *conditions != "" && *conditions != "null" {
		var spec models.ConditionSpec
		if err := json.Unmarshal([]byte(*conditions), &spec); err != nil {
			return nil, fmt.Errorf("trigger %s conditions: %w", t.ID, err)
		}
		t.Conditions = &spec
	}

	switch t.TriggerType {
	case models.TriggerTypeCron:
		t.Cron = &models.CronSpec{
			CronExpression: deref(cronExpr),
			Timezone:       deref(timezone),
			NextRunTime:    utcPtr(nextRun),
		}
	case models.TriggerTypeWebhook:
		wh := &models.WebhookSpec{
			WebhookID:   deref(webhookID),
			WebhookType: models.WebhookType(deref(webhookType)),
		}
		if err := decodeJSON(deref(allowedMethods), &wh.AllowedMethods); err != nil {
			return nil, fmt.Errorf("trigger %s allowed_methods: %w", t.ID, err)
		}
		if err := decodeJSON(deref(rules), &wh.ValidationRules); err != nil {
			return nil, fmt.Errorf("trigger %s validation_rules: %w", t.ID, err)
		}
		if config != nil && *config != "" {
			opened, err := enc.OpenMap(*config)
			if err != nil {
				return nil, fmt.Errorf("trigger %s webhook_config: %w", t.ID, err)
			}
			wh.WebhookConfig = opened
		}
		t.Webhook = wh
	}

	return &t, nil
}

// TriggerArgs returns the bind values for TriggerColumns
func TriggerArgs(t *models.Trigger, enc *crypto.Encryptor) ([]interface{}, error) {
	taskParams, err := encodeJSON(t.TaskParameters, "{}")
	if err != nil {
		return nil, fmt.Errorf("encode task_parameters: %w", err)
	}

	var conditions interface{}
	if t.Conditions != nil {
		raw, err := json.Marshal(t.Conditions)
		if err != nil {
			return nil, fmt.Errorf("encode conditions: %w", err)
		}
		conditions = string(raw)
	}

	var maxPerHour interface{}
	if t.MaxExecutionsPerHour != nil {
		maxPerHour = int64(*t.MaxExecutionsPerHour)
	}

	var cronExpr, timezone, nextRun interface{}
	if t.Cron != nil {
		cronExpr = t.Cron.CronExpression
		timezone = t.Cron.Timezone
		nextRun = timeArg(t.Cron.NextRunTime)
	}

	var webhookID, allowedMethods, webhookType, rules, config interface{}
	if t.Webhook != nil {
		webhookID = t.Webhook.WebhookID
		webhookType = string(t.Webhook.WebhookType)
		methods, err := encodeJSON(t.Webhook.AllowedMethods, "[]")
		if err != nil {
			return nil, fmt.Errorf("encode allowed_methods: %w", err)
		}
		allowedMethods = methods
		if t.Webhook.ValidationRules != nil {
			encoded, err := encodeJSON(t.Webhook.ValidationRules, "{}")
			if err != nil {
				return nil, fmt.Errorf("encode validation_rules: %w", err)
			}
			rules = encoded
		}
		if t.Webhook.WebhookConfig != nil {
			sealed, err := enc.SealMap(t.Webhook.WebhookConfig)
			if err != nil {
				return nil, fmt.Errorf("seal webhook_config: %w", err)
			}
			config = sealed
		}
	}

	return []interface{}{
		t.ID, t.Name, t.Description, t.AgentID, string(t.TriggerType), t.IsActive, taskParams, conditions,
		int64(t.FailureThreshold), int64(t.ConsecutiveFailures), maxPerHour, timeArg(t.LastExecutionAt),
		t.CreatedAt.UTC(), t.UpdatedAt.UTC(), t.CreatedBy, cronExpr, timezone, nextRun,
		webhookID, allowedMethods, webhookType, rules, config,
	}, nil
}

// ScanExecution reads one row laid out as ExecutionColumns
func ScanExecution(row Scanner) (*models.TriggerExecution, error) {
	var e models.TriggerExecution
	var status, triggerData string
	var taskID, errorMessage, workflowID, runID *string
	err := row.Scan(&e.ID, &e.TriggerID, &e.ExecutedAt, &status, &taskID, &e.ExecutionTimeMs,
		&errorMessage, &triggerData, &workflowID, &runID, &e.CorrelationID)
	if err != nil {
		return nil, err
	}
	e.Status = models.ExecutionStatus(status)
	e.ExecutedAt = e.ExecutedAt.UTC()
	e.TaskID = deref(taskID)
	e.ErrorMessage = deref(errorMessage)
	e.WorkflowID = deref(workflowID)
	e.RunID = deref(runID)
	if err := decodeJSON(triggerData, &e.TriggerData); err != nil {
		return nil, fmt.Errorf("execution %s trigger_data: %w", e.ID, err)
	}
	return &e, nil
}

// ExecutionArgs returns the bind values for ExecutionColumns
func ExecutionArgs(e *models.TriggerExecution) ([]interface{}, error) {
	data, err := encodeJSON(e.TriggerData, "{}")
	if err != nil {
		return nil, fmt.Errorf("encode trigger_data: %w", err)
	}
	return []interface{}{
		e.ID, e.TriggerID, e.ExecutedAt.UTC(), string(e.Status), nullString(e.TaskID), e.ExecutionTimeMs,
		nullString(e.ErrorMessage), data, nullString(e.WorkflowID), nullString(e.RunID), e.CorrelationID,
	}, nil
}

// StatusStrings converts statuses into bind values
func StatusStrings(statuses []models.ExecutionStatus) []interface{} {
	out := make([]interface{}, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func encodeJSON(v interface{}, empty string) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(raw) == "null" {
		return empty, nil
	}
	return string(raw), nil
}

func decodeJSON(raw string, dest interface{}) error {
	if raw == "" || raw == "null" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func timeArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// UpdateColumns are the definition columns written by TriggerStore.Update
var UpdateColumns = []string{
	"name", "description", "task_parameters", "conditions", "failure_threshold",
	"max_executions_per_hour", "cron_expression", "timezone", "webhook_type",
	"allowed_methods", "validation_rules", "webhook_config", "updated_at",
}

// UpdateArgs returns the bind values for UpdateColumns
func UpdateArgs(t *models.Trigger, enc *crypto.Encryptor) ([]interface{}, error) {
	all, err := TriggerArgs(t, enc)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]interface{}, len(all))
	for i, col := range ColumnNames(TriggerColumns) {
		byName[col] = all[i]
	}
	out := make([]interface{}, len(UpdateColumns))
	for i, col := range UpdateColumns {
		out[i] = byName[col]
	}
	return out, nil
}

// ColumnNames splits a column list constant into names
func ColumnNames(columns string) []string {
	parts := strings.Split(columns, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			names = append(names, name)
		}
	}
	return names
}
