package triggers

import (
	"context"
	stderrors "errors"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/locks"
	"trigger-engine/internal/models"
	"trigger-engine/internal/storage"
)

func lockKey(triggerID string) string {
	return "trigger:" + triggerID
}

// lockCounters serializes counter and threshold changes of one trigger. When the lock
// cannot be taken it logs and returns a no-op; the store updates are transactional on their own.
func (s *Service) lockCounters(ctx context.Context, logger logging.Logger, id string) locks.Unlock {
	unlock, err := s.locker.Lock(ctx, lockKey(id))
	if err != nil {
		logger.Warn("Failed to lock trigger counters, relying on the store", logging.Err(err))
		return func() {}
	}
	return unlock
}

// disableOverThreshold applies the auto-disable transition to an active trigger whose
// threshold was lowered to or below its current failure count
func (s *Service) disableOverThreshold(ctx context.Context, logger logging.Logger, trigger *models.Trigger) {
	changed, err := s.store.SetActive(ctx, trigger.ID, false)
	if err != nil {
		logger.Error("Failed to disable trigger over its failure threshold", err)
		return
	}
	if !changed {
		return
	}
	trigger.IsActive = false
	s.onAutoDisabled(ctx, trigger, &models.FailureOutcome{
		ConsecutiveFailures: trigger.ConsecutiveFailures,
		FailureThreshold:    trigger.FailureThreshold,
		Disabled:            true,
	})
}

// recordOutcome updates the failure counters after an execution. A success resets the
// counter; a failure increments it and may disable the trigger. Skipped executions leave
// the counters alone.
func (s *Service) recordOutcome(ctx context.Context, trigger *models.Trigger, execution *models.TriggerExecution) error {
	if execution.Status == models.ExecutionSkipped {
		return nil
	}

	logger := s.logger.WithContext(ctx).WithFields(logging.Field{"trigger_id", trigger.ID})
	defer s.lockCounters(ctx, logger, trigger.ID)()

	if execution.Status == models.ExecutionSuccess {
		if err := s.store.RecordSuccess(ctx, trigger.ID, execution.ExecutedAt); err != nil {
			return storeError(err)
		}
		return nil
	}

	outcome, err := s.store.RecordFailure(ctx, trigger.ID, execution.ExecutedAt)
	if err != nil {
		return storeError(err)
	}
	logger.Info("Trigger failure recorded",
		logging.Field{"consecutive_failures", outcome.ConsecutiveFailures},
		logging.Field{"failure_threshold", outcome.FailureThreshold},
	)

	if outcome.Disabled {
		s.onAutoDisabled(ctx, trigger, outcome)
	}
	return nil
}

// onAutoDisabled runs once, for the failure that crossed the threshold
func (s *Service) onAutoDisabled(ctx context.Context, trigger *models.Trigger, outcome *models.FailureOutcome) {
	logger := s.logger.WithContext(ctx).WithFields(logging.Field{"trigger_id", trigger.ID})
	logger.Warn("Trigger auto-disabled after consecutive failures",
		logging.Field{"consecutive_failures", outcome.ConsecutiveFailures},
		logging.Field{"failure_threshold", outcome.FailureThreshold},
	)
	s.metrics.IncAutoDisabled()

	if trigger.IsCron() && s.schedules != nil {
		if err := s.schedules.PauseSchedule(ctx, trigger.ID); err != nil {
			logger.Warn("Failed to pause schedule of disabled trigger", logging.Err(err))
		}
	}
	s.refreshWebhook(ctx, trigger.ID)

	if s.publisher == nil {
		return
	}
	event := map[string]interface{}{
		"trigger_id":           trigger.ID,
		"agent_id":             trigger.AgentID,
		"consecutive_failures": outcome.ConsecutiveFailures,
		"failure_threshold":    outcome.FailureThreshold,
		"reason":               models.AutoDisableReason,
		"correlation_id":       logging.CorrelationIDFromContext(ctx),
	}
	if err := s.publisher.Publish(ctx, models.EventTriggerAutoDisabled, event); err != nil {
		logger.Error("Failed to publish auto-disable event", err)
	}
}

// GetTriggerSafetyStatus reports how close a trigger is to being auto-disabled.
// It returns nil, nil for unknown triggers.
func (s *Service) GetTriggerSafetyStatus(ctx context.Context, id string) (*models.SafetyStatus, error) {
	trigger, err := s.store.Get(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err)
	}
	return models.ComputeSafetyStatus(trigger, s.options.AtRiskRatio), nil
}

// ResetTriggerFailureCount zeroes consecutive_failures without touching is_active.
// It reports false for unknown triggers.
func (s *Service) ResetTriggerFailureCount(ctx context.Context, id string) (bool, error) {
	unlock, err := s.locker.Lock(ctx, lockKey(id))
	if err != nil {
		if errors.IsType(err, errors.ErrTypeDependency) {
			s.logger.WithContext(ctx).Warn("Failed to lock trigger counters, relying on the store",
				logging.Err(err), logging.Field{"trigger_id", id})
			unlock = func() {}
		} else {
			return false, err
		}
	}
	defer unlock()

	ok, err := s.store.ResetFailures(ctx, id)
	if err != nil {
		return false, storeError(err)
	}
	if ok {
		s.logger.WithContext(ctx).Info("Trigger failure count reset", logging.Field{"trigger_id", id})
	}
	return ok, nil
}
