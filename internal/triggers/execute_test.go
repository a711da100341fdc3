package triggers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/conditions"
	"trigger-engine/internal/models"
	"trigger-engine/internal/testutil"
)

func pushRule() *models.ConditionSpec {
	return models.RuleCondition(models.LogicAnd,
		models.Rule{Field: "event", Operator: models.OpEquals, Value: "push"},
	)
}

func TestExecuteTrigger(t *testing.T) {
	tests := []struct {
		name        string
		trigger     *models.Trigger
		data        map[string]interface{}
		configure   func(d *Dependencies)
		setup       func(h *harness)
		wantStatus  models.ExecutionStatus
		wantMessage string
		wantTask    bool
		wantFails   int
	}{
		{
			name:       "success",
			trigger:    testutil.NewCronTriggerBuilder().Build(),
			wantStatus: models.ExecutionSuccess,
			wantTask:   true,
		},
		{
			name:        "inactive trigger is skipped",
			trigger:     testutil.NewCronTriggerBuilder().WithActive(false).Build(),
			wantStatus:  models.ExecutionSkipped,
			wantMessage: models.SkipReasonInactive,
		},
		{
			name:       "rule condition met",
			trigger:    testutil.NewCronTriggerBuilder().WithConditions(pushRule()).Build(),
			data:       map[string]interface{}{"event": "push"},
			wantStatus: models.ExecutionSuccess,
			wantTask:   true,
		},
		{
			name:        "rule condition not met",
			trigger:     testutil.NewCronTriggerBuilder().WithConditions(pushRule()).Build(),
			data:        map[string]interface{}{"event": "issue"},
			wantStatus:  models.ExecutionSkipped,
			wantMessage: models.SkipReasonConditionsNot,
		},
		{
			name:       "llm condition met",
			trigger:    testutil.NewCronTriggerBuilder().WithConditions(models.LLMCondition("the build failed", nil)).Build(),
			wantStatus: models.ExecutionSuccess,
			wantTask:   true,
		},
		{
			name:    "llm condition not met",
			trigger: testutil.NewCronTriggerBuilder().WithConditions(models.LLMCondition("the build failed", nil)).Build(),
			configure: func(d *Dependencies) {
				d.Evaluator = conditions.NewEvaluator(testutil.NewMockCompleter("false"), logging.NewNopLogger())
			},
			wantStatus:  models.ExecutionSkipped,
			wantMessage: models.SkipReasonConditionsNot,
		},
		{
			name:    "llm backend missing",
			trigger: testutil.NewCronTriggerBuilder().WithConditions(models.LLMCondition("the build failed", nil)).Build(),
			configure: func(d *Dependencies) {
				d.Evaluator = conditions.NewEvaluator(nil, logging.NewNopLogger())
			},
			wantStatus: models.ExecutionFailed,
			wantFails:  1,
		},
		{
			name:    "llm timeout",
			trigger: testutil.NewCronTriggerBuilder().WithConditions(models.LLMCondition("the build failed", nil)).Build(),
			configure: func(d *Dependencies) {
				completer := testutil.NewMockCompleter("true")
				completer.Delay = time.Second
				d.Evaluator = conditions.NewEvaluator(completer, logging.NewNopLogger())
				d.Options.ConditionTimeout = 20 * time.Millisecond
			},
			wantStatus: models.ExecutionTimeout,
			wantFails:  1,
		},
		{
			name:    "task creation fails",
			trigger: testutil.NewCronTriggerBuilder().Build(),
			setup: func(h *harness) {
				h.tasks.ErrorOnMethod["CreateTaskFromParams"] = testutil.ErrTaskFailure
			},
			wantStatus:  models.ExecutionFailed,
			wantMessage: testutil.ErrTaskFailure.Error(),
			wantFails:   1,
		},
		{
			name:    "task submission fails",
			trigger: testutil.NewCronTriggerBuilder().Build(),
			setup: func(h *harness) {
				h.tasks.ErrorOnMethod["SubmitTask"] = testutil.ErrTaskFailure
			},
			wantStatus:  models.ExecutionFailed,
			wantMessage: testutil.ErrTaskFailure.Error(),
			wantTask:    true,
			wantFails:   1,
		},
		{
			name:    "task creation times out",
			trigger: testutil.NewCronTriggerBuilder().Build(),
			configure: func(d *Dependencies) {
				d.Options.TaskTimeout = 20 * time.Millisecond
			},
			setup: func(h *harness) {
				h.tasks.Delay = time.Second
			},
			wantStatus: models.ExecutionTimeout,
			wantFails:  1,
		},
		{
			name:    "task service reports a timeout",
			trigger: testutil.NewCronTriggerBuilder().Build(),
			setup: func(h *harness) {
				h.tasks.ErrorOnMethod["CreateTaskFromParams"] = apperrors.TimeoutError("create task", nil)
			},
			wantStatus: models.ExecutionTimeout,
			wantFails:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configure := []func(*Dependencies){}
			if tt.configure != nil {
				configure = append(configure, tt.configure)
			}
			h := newHarness(t, configure...)
			if tt.setup != nil {
				tt.setup(h)
			}
			h.store.Put(tt.trigger)

			execution, err := h.svc.ExecuteTrigger(context.Background(), tt.trigger.ID, tt.data)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, execution.Status)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, execution.ErrorMessage)
			}
			if tt.wantStatus.IsFailure() {
				assert.NotEmpty(t, execution.ErrorMessage)
			}
			assert.Equal(t, tt.wantTask, execution.TaskID != "", "task id %q", execution.TaskID)
			assert.NotEmpty(t, execution.CorrelationID)
			assert.GreaterOrEqual(t, execution.ExecutionTimeMs, int64(0))

			recorded := h.store.Executions(tt.trigger.ID)
			require.Len(t, recorded, 1)
			assert.Equal(t, execution.ID, recorded[0].ID)

			stored, err := h.store.Get(context.Background(), tt.trigger.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFails, stored.ConsecutiveFailures)
		})
	}
}

func TestExecuteTrigger_SuccessResetsFailures(t *testing.T) {
	h := newHarness(t)
	h.store.Put(testutil.NewCronTriggerBuilder().WithConsecutiveFailures(3).Build())

	execution, err := h.svc.ExecuteTrigger(context.Background(), "trg_cron", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSuccess, execution.Status)

	stored, _ := h.store.Get(context.Background(), "trg_cron")
	assert.Equal(t, 0, stored.ConsecutiveFailures)
	require.NotNil(t, stored.LastExecutionAt)
	assert.True(t, stored.LastExecutionAt.Equal(execution.ExecutedAt))
}

func TestExecuteTrigger_SkipLeavesCounters(t *testing.T) {
	h := newHarness(t)
	h.store.Put(testutil.NewCronTriggerBuilder().
		WithConsecutiveFailures(2).
		WithConditions(pushRule()).
		Build())

	execution, err := h.svc.ExecuteTrigger(context.Background(), "trg_cron", map[string]interface{}{"event": "tag"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSkipped, execution.Status)

	stored, _ := h.store.Get(context.Background(), "trg_cron")
	assert.Equal(t, 2, stored.ConsecutiveFailures)
	assert.True(t, stored.IsActive)
}

func TestExecuteTrigger_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown trigger", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.ExecuteTrigger(ctx, "trg_missing", nil)

		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrTypeExecution, appErr.Type)
		assert.True(t, apperrors.IsType(errors.Unwrap(err), apperrors.ErrTypeNotFound))
		assert.Empty(t, h.tasks.Created())
	})

	t.Run("execution cannot be recorded", func(t *testing.T) {
		h := newHarness(t)
		h.store.Put(testutil.NewCronTriggerBuilder().Build())
		h.store.ErrorOnMethod["CreateExecution"] = testutil.ErrStoreDown

		_, err := h.svc.ExecuteTrigger(ctx, "trg_cron", nil)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeExecution))
		assert.ErrorIs(t, err, testutil.ErrStoreDown)
	})

	t.Run("counters cannot be updated", func(t *testing.T) {
		h := newHarness(t)
		h.store.Put(testutil.NewCronTriggerBuilder().Build())
		h.store.ErrorOnMethod["RecordSuccess"] = testutil.ErrStoreDown

		_, err := h.svc.ExecuteTrigger(ctx, "trg_cron", nil)
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeExecution))
		assert.Len(t, h.store.Executions("trg_cron"), 1, "the attempt is still recorded")
	})
}

func TestExecuteTrigger_TaskParameters(t *testing.T) {
	h := newHarness(t)
	h.store.Put(testutil.NewWebhookTriggerBuilder().
		WithTaskParameters(map[string]interface{}{"priority": "high", "source": "config"}).
		Build())

	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-42")
	data := map[string]interface{}{
		"source":  "webhook",
		"request": map[string]interface{}{"method": "POST", "body": map[string]interface{}{"a": 1.0}},
	}
	execution, err := h.svc.ExecuteTrigger(ctx, "trg_webhook", data)
	require.NoError(t, err)
	assert.Equal(t, "corr-42", execution.CorrelationID)
	assert.Equal(t, data, execution.TriggerData)

	created := h.tasks.Created()
	require.Len(t, created, 1)
	params := created[0].Parameters
	assert.Equal(t, "high", params["priority"])
	assert.Equal(t, "webhook", params["source"], "execution data wins over task parameters")
	assert.Equal(t, "trg_webhook", params["trigger_id"])
	assert.Equal(t, "webhook", params["trigger_type"])
	assert.Equal(t, "corr-42", params["correlation_id"])
	assert.Equal(t, data["request"], params["request"])
	assert.Equal(t, "agent-1", created[0].AgentID)

	assert.Equal(t, "task-1", execution.TaskID)
	assert.Equal(t, "wf-1", execution.WorkflowID)
	assert.Equal(t, "run-1", execution.RunID)
}

func TestExecuteTrigger_Throttle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.Put(testutil.NewCronTriggerBuilder().WithMaxExecutionsPerHour(2).Build())

	var statuses []models.ExecutionStatus
	for i := 0; i < 3; i++ {
		execution, err := h.svc.ExecuteTrigger(ctx, "trg_cron", nil)
		require.NoError(t, err)
		statuses = append(statuses, execution.Status)
	}
	assert.Equal(t, []models.ExecutionStatus{models.ExecutionSuccess, models.ExecutionSuccess, models.ExecutionSkipped}, statuses)

	executions := h.store.Executions("trg_cron")
	require.Len(t, executions, 3)
	skipped := 0
	for _, e := range executions {
		if e.Status == models.ExecutionSkipped {
			skipped++
			assert.Equal(t, models.SkipReasonRateLimited, e.ErrorMessage)
		}
	}
	assert.Equal(t, 1, skipped)
	assert.Len(t, h.tasks.Created(), 2)
}

func TestExecuteTrigger_ExtractsParameters(t *testing.T) {
	event := map[string]interface{}{"body": map[string]interface{}{"repository": "engine", "ref": "main"}}

	tests := []struct {
		name        string
		params      map[string]interface{}
		reply       string
		completeErr error
		check       func(t *testing.T, extracted interface{}, present bool)
	}{
		{
			name:   "object reply",
			params: map[string]interface{}{models.ExtractInstructionKey: "pull the repository name"},
			reply:  `{"repo": "engine",}`,
			check: func(t *testing.T, extracted interface{}, present bool) {
				require.True(t, present)
				assert.Equal(t, map[string]interface{}{"repo": "engine"}, extracted)
			},
		},
		{
			name:        "backend down",
			params:      map[string]interface{}{models.ExtractInstructionKey: "pull the repository name"},
			completeErr: errors.New("connection refused"),
			check: func(t *testing.T, extracted interface{}, present bool) {
				require.True(t, present)
				fallback, ok := extracted.(map[string]interface{})
				require.True(t, ok)
				assert.Equal(t, "pull the repository name", fallback["instruction"])
				assert.Equal(t, event, fallback["event_data"])
			},
		},
		{
			name:   "no instruction",
			params: map[string]interface{}{"report": "daily"},
			check: func(t *testing.T, _ interface{}, present bool) {
				assert.False(t, present)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := testutil.NewMockCompleter(tt.reply)
			if tt.completeErr != nil {
				completer.ErrorOnMethod["Complete"] = tt.completeErr
			}
			h := newHarness(t, func(d *Dependencies) {
				d.Evaluator = conditions.NewEvaluator(completer, logging.NewNopLogger())
			})
			h.store.Put(testutil.NewCronTriggerBuilder().WithTaskParameters(tt.params).Build())

			execution, err := h.svc.ExecuteTrigger(context.Background(), "trg_cron", event)
			require.NoError(t, err)
			assert.Equal(t, models.ExecutionSuccess, execution.Status, "extraction never fails the run")

			created := h.tasks.Created()
			require.Len(t, created, 1)
			extracted, present := created[0].Parameters[models.ExtractedParametersKey]
			tt.check(t, extracted, present)
		})
	}
}

func TestExecuteTrigger_ThrottleUnderConcurrency(t *testing.T) {
	h := newHarness(t)
	h.store.Put(testutil.NewCronTriggerBuilder().WithMaxExecutionsPerHour(1).Build())
	h.tasks.Delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.ExecuteTrigger(context.Background(), "trg_cron", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, h.tasks.Created(), 1)
	counts := map[models.ExecutionStatus]int{}
	for _, e := range h.store.Executions("trg_cron") {
		counts[e.Status]++
		if e.Status == models.ExecutionSkipped {
			assert.Equal(t, models.SkipReasonRateLimited, e.ErrorMessage)
		}
	}
	assert.Equal(t, map[models.ExecutionStatus]int{models.ExecutionSuccess: 1, models.ExecutionSkipped: 19}, counts)

	execution, err := h.svc.ExecuteTrigger(context.Background(), "trg_cron", nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSkipped, execution.Status, "the stored run still holds the budget")
}

func TestExecuteTrigger_ThrottleFailsOpen(t *testing.T) {
	h := newHarness(t)
	h.store.Put(testutil.NewCronTriggerBuilder().WithMaxExecutionsPerHour(1).Build())
	h.store.ErrorOnMethod["CountExecutionsInPeriod"] = testutil.ErrStoreDown

	for i := 0; i < 2; i++ {
		execution, err := h.svc.ExecuteTrigger(context.Background(), "trg_cron", nil)
		require.NoError(t, err)
		assert.Equal(t, models.ExecutionSuccess, execution.Status)
	}
}

func TestExecuteTrigger_CallerCancelled(t *testing.T) {
	h := newHarness(t)
	h.store.Put(testutil.NewCronTriggerBuilder().Build())
	h.tasks.Delay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	execution, err := h.svc.ExecuteTrigger(ctx, "trg_cron", nil)
	require.NoError(t, err)
	assert.True(t, execution.Status.IsFailure())
	assert.Len(t, h.store.Executions("trg_cron"), 1, "recorded despite the cancelled caller")
}
