package triggers

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/common/utils"
	"trigger-engine/internal/common/validation"
	"trigger-engine/internal/models"
	"trigger-engine/internal/storage"
	"trigger-engine/internal/webhooks"
)

const webhookIDAttempts = 5

var defaultAllowedMethods = []string{"POST"}

// CreateTrigger validates req, persists the new trigger and wires it to the registry or scheduler
func (s *Service) CreateTrigger(ctx context.Context, req *models.CreateTriggerRequest) (*models.Trigger, error) {
	if req == nil {
		return nil, errors.TriggerValidationError("request is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if err := s.checkAgent(ctx, req.AgentID); err != nil {
		return nil, err
	}
	if err := s.checkConditions(req.Conditions); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	trigger := &models.Trigger{
		ID:                   utils.GenerateID("trg"),
		Name:                 strings.TrimSpace(req.Name),
		Description:          req.Description,
		AgentID:              req.AgentID,
		TriggerType:          req.TriggerType,
		IsActive:             true,
		TaskParameters:       req.TaskParameters,
		Conditions:           req.Conditions,
		FailureThreshold:     s.options.DefaultFailureThreshold,
		MaxExecutionsPerHour: req.MaxExecutionsPerHour,
		CreatedAt:            now,
		UpdatedAt:            now,
		CreatedBy:            req.CreatedBy,
	}
	if req.FailureThreshold != nil {
		trigger.FailureThreshold = *req.FailureThreshold
	}

	switch req.TriggerType {
	case models.TriggerTypeCron:
		timezone := req.Timezone
		if timezone == "" {
			timezone = "UTC"
		}
		next, err := validation.NextRun(req.CronExpression, timezone, now)
		if err != nil {
			return nil, errors.TriggerValidationError(err.Error())
		}
		trigger.Cron = &models.CronSpec{
			CronExpression: req.CronExpression,
			Timezone:       timezone,
			NextRunTime:    &next,
		}
	case models.TriggerTypeWebhook:
		if _, err := webhooks.ParseRules(req.ValidationRules); err != nil {
			return nil, errors.TriggerValidationError("invalid validation_rules: " + err.Error())
		}
		webhookType := req.WebhookType
		if webhookType == "" {
			webhookType = models.WebhookTypeGeneric
		}
		trigger.Webhook = &models.WebhookSpec{
			AllowedMethods:  normalizeMethods(req.AllowedMethods),
			WebhookType:     webhookType,
			ValidationRules: req.ValidationRules,
			WebhookConfig:   req.WebhookConfig,
		}
	}

	if err := s.persistNew(ctx, trigger); err != nil {
		return nil, err
	}

	logger := s.logger.WithContext(ctx).WithFields(
		logging.Field{"trigger_id", trigger.ID},
		logging.Field{"trigger_type", trigger.TriggerType},
		logging.Field{"agent_id", trigger.AgentID},
	)
	logger.Info("Trigger created")

	if trigger.IsWebhook() && s.registry != nil {
		if err := s.registry.Register(trigger); err != nil {
			logger.Warn("Failed to register webhook", logging.Err(err))
		}
	}
	if trigger.IsCron() && s.schedules != nil {
		if err := s.schedules.CreateSchedule(ctx, trigger.ID, trigger.Cron.CronExpression, trigger.Cron.Timezone); err != nil {
			logger.Warn("Failed to create schedule; trigger can still be executed manually", logging.Err(err))
		}
	}

	return trigger, nil
}

// persistNew stores trigger, generating a fresh webhook id for webhook triggers.
// Ids that are live or retired are never handed out again.
func (s *Service) persistNew(ctx context.Context, trigger *models.Trigger) error {
	if !trigger.IsWebhook() {
		if err := trigger.Validate(); err != nil {
			return errors.TriggerValidationError(err.Error())
		}
		if err := s.store.Create(ctx, trigger); err != nil {
			return storeError(err)
		}
		return nil
	}

	for attempt := 0; attempt < webhookIDAttempts; attempt++ {
		webhookID, err := utils.GenerateWebhookID()
		if err != nil {
			return errors.InternalError("failed to generate webhook id", err)
		}
		taken, err := s.store.WebhookIDExists(ctx, webhookID)
		if err != nil {
			return storeError(err)
		}
		if taken {
			continue
		}

		trigger.Webhook.WebhookID = webhookID
		if err := trigger.Validate(); err != nil {
			return errors.TriggerValidationError(err.Error())
		}
		err = s.store.Create(ctx, trigger)
		if stderrors.Is(err, storage.ErrDuplicateWebhookID) {
			continue
		}
		if err != nil {
			return storeError(err)
		}
		return nil
	}
	return errors.InternalError(fmt.Sprintf("no unused webhook id after %d attempts", webhookIDAttempts), nil)
}

// UpdateTrigger merges the non-nil fields of req into the stored trigger
func (s *Service) UpdateTrigger(ctx context.Context, id string, req *models.UpdateTriggerRequest) (*models.Trigger, error) {
	if req == nil {
		return nil, errors.TriggerValidationError("request is required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}

	logger := s.logger.WithContext(ctx).WithFields(logging.Field{"trigger_id", id})
	// a lowered threshold must not race a failure being recorded
	defer s.lockCounters(ctx, logger, id)()

	trigger, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	scheduleChanged := req.ScheduleChanged(trigger)
	req.Apply(trigger)
	trigger.UpdatedAt = s.now().UTC()

	if err := s.checkConditions(trigger.Conditions); err != nil {
		return nil, err
	}
	if trigger.IsCron() && scheduleChanged {
		if trigger.Cron.Timezone == "" {
			trigger.Cron.Timezone = "UTC"
		}
		next, err := validation.NextRun(trigger.Cron.CronExpression, trigger.Cron.Timezone, trigger.UpdatedAt)
		if err != nil {
			return nil, errors.TriggerValidationError(err.Error())
		}
		trigger.Cron.NextRunTime = &next
	}
	if trigger.IsWebhook() {
		if _, err := webhooks.ParseRules(trigger.Webhook.ValidationRules); err != nil {
			return nil, errors.TriggerValidationError("invalid validation_rules: " + err.Error())
		}
		trigger.Webhook.AllowedMethods = normalizeMethods(trigger.Webhook.AllowedMethods)
	}
	if err := trigger.Validate(); err != nil {
		return nil, errors.TriggerValidationError(err.Error())
	}

	if err := s.store.Update(ctx, trigger); err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.TriggerNotFoundError(id)
		}
		return nil, storeError(err)
	}

	logger.Info("Trigger updated", logging.Field{"schedule_changed", scheduleChanged})

	if scheduleChanged {
		if err := s.store.SetNextRunTime(ctx, id, trigger.Cron.NextRunTime); err != nil {
			logger.Warn("Failed to store next run time", logging.Err(err))
		}
		if s.schedules != nil {
			if err := s.schedules.UpdateSchedule(ctx, id, trigger.Cron.CronExpression, trigger.Cron.Timezone); err != nil {
				logger.Warn("Failed to update schedule", logging.Err(err))
			}
		}
	}
	if trigger.IsActive && trigger.ConsecutiveFailures >= trigger.FailureThreshold {
		s.disableOverThreshold(ctx, logger, trigger)
	}
	s.refreshWebhook(ctx, id)

	return s.load(ctx, id)
}

// EnableTrigger activates a trigger and resumes its schedule. It reports false for unknown ids.
func (s *Service) EnableTrigger(ctx context.Context, id string) (bool, error) {
	return s.setActive(ctx, id, true)
}

// DisableTrigger deactivates a trigger and pauses its schedule. It reports false for unknown ids.
func (s *Service) DisableTrigger(ctx context.Context, id string) (bool, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) setActive(ctx context.Context, id string, active bool) (bool, error) {
	trigger, err := s.store.Get(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeError(err)
	}

	ok, err := s.store.SetActive(ctx, id, active)
	if err != nil {
		return false, storeError(err)
	}
	if !ok {
		return false, nil
	}

	logger := s.logger.WithContext(ctx).WithFields(logging.Field{"trigger_id", id})
	if active {
		logger.Info("Trigger enabled")
	} else {
		logger.Info("Trigger disabled")
	}

	if trigger.IsCron() && s.schedules != nil {
		if active {
			err = s.schedules.ResumeSchedule(ctx, id)
		} else {
			err = s.schedules.PauseSchedule(ctx, id)
		}
		if err != nil {
			logger.Warn("Failed to update schedule state", logging.Err(err), logging.Field{"active", active})
		}
	}
	s.refreshWebhook(ctx, id)
	return true, nil
}

// DeleteTrigger removes the trigger and its executions. It reports false for unknown ids.
func (s *Service) DeleteTrigger(ctx context.Context, id string) (bool, error) {
	trigger, err := s.store.Get(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeError(err)
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, storeError(err)
	}
	if !deleted {
		return false, nil
	}

	logger := s.logger.WithContext(ctx).WithFields(logging.Field{"trigger_id", id})
	logger.Info("Trigger deleted")

	if trigger.IsCron() && s.schedules != nil {
		if err := s.schedules.DeleteSchedule(ctx, id); err != nil {
			logger.Warn("Failed to delete schedule", logging.Err(err))
		}
	}
	if trigger.IsWebhook() && s.registry != nil {
		s.registry.Unregister(trigger.Webhook.WebhookID)
	}
	return true, nil
}

// GetTrigger returns the trigger or a TriggerNotFoundError
func (s *Service) GetTrigger(ctx context.Context, id string) (*models.Trigger, error) {
	return s.load(ctx, id)
}

func (s *Service) ListTriggers(ctx context.Context, filter models.TriggerFilter) ([]*models.Trigger, error) {
	if filter.TriggerType != "" && filter.TriggerType != models.TriggerTypeCron && filter.TriggerType != models.TriggerTypeWebhook {
		return nil, errors.TriggerValidationError(fmt.Sprintf("unknown trigger_type %q", filter.TriggerType))
	}
	list, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, storeError(err)
	}
	return list, nil
}

// ListExecutions pages through the execution history of a trigger, newest first
func (s *Service) ListExecutions(ctx context.Context, triggerID string, status models.ExecutionStatus, page models.Page) (*models.ExecutionPage, error) {
	if status != "" && !status.IsValid() {
		return nil, errors.TriggerValidationError(fmt.Sprintf("unknown execution status %q", status))
	}
	if _, err := s.load(ctx, triggerID); err != nil {
		return nil, err
	}

	result, err := s.store.ListExecutions(ctx, models.ExecutionFilter{TriggerID: triggerID, Status: status}, page.Normalize())
	if err != nil {
		return nil, storeError(err)
	}
	return result, nil
}

// LoadWebhooks registers every stored webhook trigger and returns how many were registered
func (s *Service) LoadWebhooks(ctx context.Context) (int, error) {
	if s.registry == nil {
		return 0, nil
	}
	list, err := s.store.ListByType(ctx, models.TriggerTypeWebhook)
	if err != nil {
		return 0, storeError(err)
	}

	loaded := 0
	for _, trigger := range list {
		if err := s.registry.Register(trigger); err != nil {
			s.logger.Warn("Skipping webhook trigger", logging.Err(err), logging.Field{"trigger_id", trigger.ID})
			continue
		}
		loaded++
	}
	s.logger.Info("Webhooks loaded", logging.Field{"count", loaded})
	return loaded, nil
}

// refreshWebhook re-registers the stored state of a webhook trigger so ingress sees is_active changes
func (s *Service) refreshWebhook(ctx context.Context, id string) {
	if s.registry == nil {
		return
	}
	trigger, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.WithContext(ctx).Warn("Failed to refresh webhook registration",
			logging.Err(err), logging.Field{"trigger_id", id})
		return
	}
	if !trigger.IsWebhook() {
		return
	}
	if err := s.registry.Register(trigger); err != nil {
		s.logger.WithContext(ctx).Warn("Failed to refresh webhook registration",
			logging.Err(err), logging.Field{"trigger_id", id})
	}
}

func (s *Service) load(ctx context.Context, id string) (*models.Trigger, error) {
	trigger, err := s.store.Get(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, errors.TriggerNotFoundError(id)
	}
	if err != nil {
		return nil, storeError(err)
	}
	return trigger, nil
}

func (s *Service) checkAgent(ctx context.Context, agentID string) error {
	if s.agents == nil {
		return nil
	}
	exists, err := s.agents.AgentExists(ctx, agentID)
	if err != nil {
		if errors.IsType(err, errors.ErrTypeDependency) {
			return err
		}
		return errors.DependencyUnavailableError("agent_lookup", err)
	}
	if !exists {
		return errors.TriggerValidationError(fmt.Sprintf("agent %s does not exist", agentID)).
			WithContext("agent_id", agentID)
	}
	return nil
}

func (s *Service) checkConditions(spec *models.ConditionSpec) error {
	if spec == nil {
		return nil
	}
	if problems := s.evaluator.ValidateSyntax(spec); len(problems) > 0 {
		return errors.TriggerValidationError("invalid conditions: " + strings.Join(problems, "; "))
	}
	return nil
}

func normalizeMethods(methods []string) []string {
	if len(methods) == 0 {
		return append([]string(nil), defaultAllowedMethods...)
	}
	seen := make(map[string]bool, len(methods))
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		upper := strings.ToUpper(strings.TrimSpace(m))
		if upper == "" || seen[upper] {
			continue
		}
		seen[upper] = true
		out = append(out, upper)
	}
	return out
}

// storeError keeps typed errors and reports anything else as the store being unavailable
func storeError(err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.DependencyUnavailableError("trigger_store", err)
}
