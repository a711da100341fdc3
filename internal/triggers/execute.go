package triggers

import (
	"context"
	stderrors "errors"
	"time"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/common/utils"
	"trigger-engine/internal/models"
	"trigger-engine/internal/storage"
)

// ExecuteTrigger runs one execution attempt and returns its record.
//
// Business outcomes (inactive, throttled, condition not met, task failure, timeout) come back
// as a recorded execution with a nil error. Only infrastructure failures, such as an unknown
// trigger or a store that cannot record the attempt, are returned as a TriggerExecutionError.
func (s *Service) ExecuteTrigger(ctx context.Context, id string, executionData map[string]interface{}) (*models.TriggerExecution, error) {
	correlationID := logging.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = utils.GenerateCorrelationID()
		ctx = logging.ContextWithCorrelationID(ctx, correlationID)
	}
	if executionData == nil {
		executionData = map[string]interface{}{}
	}

	start := s.now()
	logger := s.logger.WithContext(ctx).WithFields(logging.Field{"trigger_id", id})

	trigger, err := s.store.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.TriggerExecutionError(id, correlationID, "trigger not found", errors.TriggerNotFoundError(id))
		}
		return nil, errors.TriggerExecutionError(id, correlationID, "failed to load trigger", err)
	}

	execution := &models.TriggerExecution{
		ID:            utils.GenerateID("exe"),
		TriggerID:     id,
		ExecutedAt:    start.UTC(),
		TriggerData:   executionData,
		CorrelationID: correlationID,
	}
	logger = logger.WithFields(logging.Field{"execution_id", execution.ID})

	reserved := s.run(ctx, logger, trigger, execution, start)
	execution.ExecutionTimeMs = s.now().Sub(start).Milliseconds()

	// the attempt is recorded even if the caller has gone away
	recordCtx := context.WithoutCancel(ctx)
	recordErr := s.store.CreateExecution(recordCtx, execution)
	if reserved {
		counted := recordErr == nil && execution.Status != models.ExecutionSkipped
		if err := s.limiter.Settle(recordCtx, id, execution.ID, counted); err != nil {
			logger.Warn("Failed to settle throttle reservation", logging.Err(err))
		}
	}
	if recordErr != nil {
		logger.Error("Failed to record execution", recordErr, logging.Field{"status", execution.Status})
		return nil, errors.TriggerExecutionError(id, correlationID, "failed to record execution", recordErr)
	}

	if err := s.recordOutcome(recordCtx, trigger, execution); err != nil {
		logger.Error("Failed to update failure counters", err)
		return nil, errors.TriggerExecutionError(id, correlationID, "failed to update failure counters", err)
	}

	s.metrics.ObserveExecution(trigger.TriggerType, execution.Status, time.Duration(execution.ExecutionTimeMs)*time.Millisecond)
	logger.Info("Trigger executed",
		logging.Field{"status", execution.Status},
		logging.Field{"task_id", execution.TaskID},
		logging.Field{"execution_time_ms", execution.ExecutionTimeMs},
	)
	return execution, nil
}

// run decides the status of execution. It never fails; failures become FAILED or TIMEOUT.
// It reports whether a throttle slot was reserved for the attempt.
func (s *Service) run(ctx context.Context, logger logging.Logger, trigger *models.Trigger, execution *models.TriggerExecution, start time.Time) (reserved bool) {
	if !trigger.IsActive {
		skip(execution, models.SkipReasonInactive)
		return false
	}

	if limit := trigger.MaxExecutionsPerHour; limit != nil {
		allowed, err := s.limiter.Reserve(ctx, trigger.ID, execution.ID, *limit, start)
		switch {
		case err != nil:
			logger.Warn("Throttle check failed, allowing execution", logging.Err(err))
		case !allowed:
			logger.Info("Trigger throttled", logging.Field{"max_executions_per_hour", *limit})
			skip(execution, models.SkipReasonRateLimited)
			return false
		default:
			reserved = true
		}
	}

	if trigger.Conditions != nil {
		met, status, err := s.evaluateConditions(ctx, trigger, execution.TriggerData)
		if err != nil {
			logger.Warn("Condition evaluation failed", logging.Err(err))
			fail(execution, status, err)
			return
		}
		if !met {
			skip(execution, models.SkipReasonConditionsNot)
			return
		}
	}

	taskCtx, cancel := context.WithTimeout(ctx, s.options.TaskTimeout)
	defer cancel()

	params := buildTaskParameters(trigger, execution)
	if instruction := trigger.ExtractInstruction(); instruction != "" {
		params[models.ExtractedParametersKey] = s.evaluator.ExtractParameters(ctx, instruction, execution.TriggerData, triggerContext(trigger))
	}

	task, err := s.tasks.CreateTaskFromParams(taskCtx, trigger.AgentID, params)
	if err != nil {
		logger.Warn("Task creation failed", logging.Err(err))
		fail(execution, failureStatus(taskCtx, err), err)
		return
	}
	if task != nil {
		execution.TaskID = task.ID
		execution.WorkflowID = task.WorkflowID
		execution.RunID = task.RunID
	}

	if err := s.tasks.SubmitTask(taskCtx, task); err != nil {
		logger.Warn("Task submission failed", logging.Err(err), logging.Field{"task_id", execution.TaskID})
		fail(execution, failureStatus(taskCtx, err), err)
		return
	}

	execution.Status = models.ExecutionSuccess
	return
}

// evaluateConditions returns whether the gate is open; on error it also returns FAILED or TIMEOUT
func (s *Service) evaluateConditions(ctx context.Context, trigger *models.Trigger, eventData map[string]interface{}) (bool, models.ExecutionStatus, error) {
	condCtx, cancel := context.WithTimeout(ctx, s.options.ConditionTimeout)
	defer cancel()

	started := time.Now()
	met, err := s.evaluator.Evaluate(condCtx, trigger.Conditions, eventData, triggerContext(trigger))
	elapsed := time.Since(started)

	if err != nil {
		status := failureStatus(condCtx, err)
		if status == models.ExecutionTimeout {
			s.metrics.ObserveCondition("timeout", elapsed)
		} else {
			s.metrics.ObserveCondition("error", elapsed)
		}
		return false, status, err
	}
	if met {
		s.metrics.ObserveCondition("met", elapsed)
	} else {
		s.metrics.ObserveCondition("not_met", elapsed)
	}
	return met, "", nil
}

func triggerContext(trigger *models.Trigger) map[string]interface{} {
	return map[string]interface{}{
		"trigger_id":   trigger.ID,
		"trigger_name": trigger.Name,
		"trigger_type": string(trigger.TriggerType),
		"agent_id":     trigger.AgentID,
	}
}

// buildTaskParameters layers the trigger's parameters, the trigger context and the execution data
func buildTaskParameters(trigger *models.Trigger, execution *models.TriggerExecution) map[string]interface{} {
	params := make(map[string]interface{}, len(trigger.TaskParameters)+len(execution.TriggerData)+4)
	for k, v := range trigger.TaskParameters {
		params[k] = v
	}

	params["trigger_id"] = trigger.ID
	params["trigger_type"] = string(trigger.TriggerType)
	params["correlation_id"] = execution.CorrelationID
	if trigger.IsWebhook() {
		if request, ok := execution.TriggerData["request"]; ok {
			params["request"] = request
		}
	}

	for k, v := range execution.TriggerData {
		params[k] = v
	}
	return params
}

func failureStatus(ctx context.Context, err error) models.ExecutionStatus {
	if stderrors.Is(err, context.DeadlineExceeded) ||
		stderrors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.IsType(err, errors.ErrTypeTimeout) {
		return models.ExecutionTimeout
	}
	return models.ExecutionFailed
}

func skip(execution *models.TriggerExecution, reason string) {
	execution.Status = models.ExecutionSkipped
	execution.ErrorMessage = reason
}

func fail(execution *models.TriggerExecution, status models.ExecutionStatus, err error) {
	execution.Status = status
	execution.ErrorMessage = err.Error()
}
