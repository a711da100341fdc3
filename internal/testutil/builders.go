package testutil

import (
	"time"

	"trigger-engine/internal/models"
)

// TriggerBuilder helps build test triggers
type TriggerBuilder struct {
	trigger *models.Trigger
}

// NewCronTriggerBuilder starts an active cron trigger that runs every minute
func NewCronTriggerBuilder() *TriggerBuilder {
	now := time.Now().UTC()
	return &TriggerBuilder{
		trigger: &models.Trigger{
			ID:               "trg_cron",
			Name:             "cron-trigger",
			AgentID:          "agent-1",
			TriggerType:      models.TriggerTypeCron,
			IsActive:         true,
			FailureThreshold: models.DefaultFailureThreshold,
			CreatedAt:        now,
			UpdatedAt:        now,
			Cron: &models.CronSpec{
				CronExpression: "* * * * *",
				Timezone:       "UTC",
			},
		},
	}
}

// NewWebhookTriggerBuilder starts an active GENERIC webhook trigger accepting POST
func NewWebhookTriggerBuilder() *TriggerBuilder {
	now := time.Now().UTC()
	return &TriggerBuilder{
		trigger: &models.Trigger{
			ID:               "trg_webhook",
			Name:             "webhook-trigger",
			AgentID:          "agent-1",
			TriggerType:      models.TriggerTypeWebhook,
			IsActive:         true,
			FailureThreshold: models.DefaultFailureThreshold,
			CreatedAt:        now,
			UpdatedAt:        now,
			Webhook: &models.WebhookSpec{
				WebhookID:      "wh_test",
				AllowedMethods: []string{"POST"},
				WebhookType:    models.WebhookTypeGeneric,
			},
		},
	}
}

func (b *TriggerBuilder) WithID(id string) *TriggerBuilder {
	b.trigger.ID = id
	return b
}

func (b *TriggerBuilder) WithAgentID(agentID string) *TriggerBuilder {
	b.trigger.AgentID = agentID
	return b
}

func (b *TriggerBuilder) WithActive(active bool) *TriggerBuilder {
	b.trigger.IsActive = active
	return b
}

func (b *TriggerBuilder) WithFailureThreshold(threshold int) *TriggerBuilder {
	b.trigger.FailureThreshold = threshold
	return b
}

func (b *TriggerBuilder) WithConsecutiveFailures(failures int) *TriggerBuilder {
	b.trigger.ConsecutiveFailures = failures
	return b
}

func (b *TriggerBuilder) WithMaxExecutionsPerHour(limit int) *TriggerBuilder {
	b.trigger.MaxExecutionsPerHour = &limit
	return b
}

func (b *TriggerBuilder) WithConditions(spec *models.ConditionSpec) *TriggerBuilder {
	b.trigger.Conditions = spec
	return b
}

func (b *TriggerBuilder) WithTaskParameters(params map[string]interface{}) *TriggerBuilder {
	b.trigger.TaskParameters = params
	return b
}

func (b *TriggerBuilder) WithNextRunTime(next time.Time) *TriggerBuilder {
	if b.trigger.Cron != nil {
		b.trigger.Cron.NextRunTime = &next
	}
	return b
}

func (b *TriggerBuilder) WithWebhookID(webhookID string) *TriggerBuilder {
	if b.trigger.Webhook != nil {
		b.trigger.Webhook.WebhookID = webhookID
	}
	return b
}

func (b *TriggerBuilder) WithAllowedMethods(methods ...string) *TriggerBuilder {
	if b.trigger.Webhook != nil {
		b.trigger.Webhook.AllowedMethods = methods
	}
	return b
}

func (b *TriggerBuilder) Build() *models.Trigger {
	return b.trigger.Clone()
}
