package triggers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/conditions"
	"trigger-engine/internal/models"
	"trigger-engine/internal/testutil"
	"trigger-engine/internal/webhooks"
)

type harness struct {
	svc       *Service
	store     *testutil.MockStore
	tasks     *testutil.MockTaskService
	schedules *testutil.MockScheduleManager
	publisher *testutil.MockPublisher
	agents    *testutil.MockAgentLookup
	completer *testutil.MockCompleter
	registry  *webhooks.Registry
}

func newHarness(t *testing.T, configure ...func(*Dependencies)) *harness {
	t.Helper()

	h := &harness{
		store:     testutil.NewMockStore(),
		tasks:     testutil.NewMockTaskService(),
		schedules: testutil.NewMockScheduleManager(),
		publisher: testutil.NewMockPublisher(),
		agents:    testutil.NewMockAgentLookup("agent-1", "agent-2"),
		completer: testutil.NewMockCompleter("true"),
	}
	registry, err := webhooks.NewRegistry(h.store, 16, logging.NewNopLogger())
	require.NoError(t, err)
	h.registry = registry

	deps := Dependencies{
		Store:     h.store,
		Evaluator: conditions.NewEvaluator(h.completer, logging.NewNopLogger()),
		Registry:  h.registry,
		Tasks:     h.tasks,
		Schedules: h.schedules,
		Publisher: h.publisher,
		Agents:    h.agents,
		Logger:    logging.NewNopLogger(),
		Options:   DefaultOptions(),
	}
	for _, fn := range configure {
		fn(&deps)
	}

	h.svc, err = NewService(deps)
	require.NoError(t, err)
	return h
}

func cronRequest() *models.CreateTriggerRequest {
	return &models.CreateTriggerRequest{
		Name:           "nightly report",
		AgentID:        "agent-1",
		TriggerType:    models.TriggerTypeCron,
		CronExpression: "0 2 * * *",
		Timezone:       "Europe/Berlin",
		TaskParameters: map[string]interface{}{"report": "daily"},
		CreatedBy:      "user-1",
	}
}

func webhookRequest() *models.CreateTriggerRequest {
	return &models.CreateTriggerRequest{
		Name:        "github push",
		AgentID:     "agent-1",
		TriggerType: models.TriggerTypeWebhook,
	}
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	store := testutil.NewMockStore()
	evaluator := conditions.NewEvaluator(nil, logging.NewNopLogger())
	tasks := testutil.NewMockTaskService()

	tests := []struct {
		name string
		deps Dependencies
	}{
		{"no store", Dependencies{Evaluator: evaluator, Tasks: tasks}},
		{"no evaluator", Dependencies{Store: store, Tasks: tasks}},
		{"no task service", Dependencies{Store: store, Evaluator: evaluator}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewService(tt.deps)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
		})
	}

	svc, err := NewService(Dependencies{Store: store, Evaluator: evaluator, Tasks: tasks, Options: Options{AtRiskRatio: 3}})
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions(), svc.Options())
}

func TestCreateTrigger(t *testing.T) {
	tests := []struct {
		name     string
		req      func() *models.CreateTriggerRequest
		setup    func(h *harness)
		wantType apperrors.ErrorType
	}{
		{
			name: "unknown agent",
			req: func() *models.CreateTriggerRequest {
				r := cronRequest()
				r.AgentID = "ghost"
				return r
			},
			wantType: apperrors.ErrTypeValidation,
		},
		{
			name: "agent lookup unavailable",
			req:  cronRequest,
			setup: func(h *harness) {
				h.agents.ErrorOnMethod["AgentExists"] = errors.New("connection refused")
			},
			wantType: apperrors.ErrTypeDependency,
		},
		{
			name: "malformed condition",
			req: func() *models.CreateTriggerRequest {
				r := cronRequest()
				r.Conditions = models.RuleCondition(models.LogicAnd)
				return r
			},
			wantType: apperrors.ErrTypeValidation,
		},
		{
			name: "invalid cron expression",
			req: func() *models.CreateTriggerRequest {
				r := cronRequest()
				r.CronExpression = "every day"
				return r
			},
			wantType: apperrors.ErrTypeValidation,
		},
		{
			name: "invalid timezone",
			req: func() *models.CreateTriggerRequest {
				r := cronRequest()
				r.Timezone = "Mars/Olympus"
				return r
			},
			wantType: apperrors.ErrTypeValidation,
		},
		{
			name: "missing name",
			req: func() *models.CreateTriggerRequest {
				r := webhookRequest()
				r.Name = ""
				return r
			},
			wantType: apperrors.ErrTypeValidation,
		},
		{
			name: "malformed validation rules",
			req: func() *models.CreateTriggerRequest {
				r := webhookRequest()
				r.ValidationRules = map[string]interface{}{"required_headers": "X-Event"}
				return r
			},
			wantType: apperrors.ErrTypeValidation,
		},
		{
			name: "store unavailable",
			req:  cronRequest,
			setup: func(h *harness) {
				h.store.ErrorOnMethod["Create"] = testutil.ErrStoreDown
			},
			wantType: apperrors.ErrTypeDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}
			trigger, err := h.svc.CreateTrigger(context.Background(), tt.req())
			assert.Nil(t, trigger)
			assert.Equal(t, tt.wantType, apperrors.GetType(err), "got %v", err)
			assert.Empty(t, h.schedules.Calls(""))
		})
	}
}

func TestCreateTrigger_Cron(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	trigger, err := h.svc.CreateTrigger(ctx, cronRequest())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(trigger.ID, "trg_"))
	assert.True(t, trigger.IsActive)
	assert.Equal(t, models.DefaultFailureThreshold, trigger.FailureThreshold)
	assert.Equal(t, "Europe/Berlin", trigger.Cron.Timezone)
	require.NotNil(t, trigger.Cron.NextRunTime)
	assert.True(t, trigger.Cron.NextRunTime.After(time.Now()))
	assert.Nil(t, trigger.Webhook)

	calls := h.schedules.Calls("CreateSchedule")
	require.Len(t, calls, 1)
	assert.Equal(t, testutil.ScheduleCall{Method: "CreateSchedule", TriggerID: trigger.ID, CronExpression: "0 2 * * *", Timezone: "Europe/Berlin"}, calls[0])

	stored, err := h.svc.GetTrigger(ctx, trigger.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.CreatedBy)
}

func TestCreateTrigger_ScheduleFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.schedules.ErrorOnMethod["CreateSchedule"] = apperrors.DependencyUnavailableError("schedule_manager", nil)

	trigger, err := h.svc.CreateTrigger(context.Background(), cronRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, trigger.ID)
}

func TestCreateTrigger_Webhook(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := webhookRequest()
	req.AllowedMethods = []string{"post", "PUT", "post"}
	trigger, err := h.svc.CreateTrigger(ctx, req)
	require.NoError(t, err)

	require.NotNil(t, trigger.Webhook)
	assert.True(t, strings.HasPrefix(trigger.Webhook.WebhookID, "wh_"))
	assert.NotContains(t, trigger.Webhook.WebhookID, "/")
	assert.Equal(t, []string{"POST", "PUT"}, trigger.Webhook.AllowedMethods)
	assert.Equal(t, models.WebhookTypeGeneric, trigger.Webhook.WebhookType)
	assert.Equal(t, 1, h.registry.Len())
	assert.Empty(t, h.schedules.Calls(""))

	other, err := h.svc.CreateTrigger(ctx, webhookRequest())
	require.NoError(t, err)
	assert.NotEqual(t, trigger.Webhook.WebhookID, other.Webhook.WebhookID)
	assert.Equal(t, []string{"POST"}, other.Webhook.AllowedMethods)
}

func TestUpdateTrigger(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown trigger", func(t *testing.T) {
		h := newHarness(t)
		name := "x"
		_, err := h.svc.UpdateTrigger(ctx, "trg_missing", &models.UpdateTriggerRequest{Name: &name})
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
	})

	t.Run("merges non-nil fields", func(t *testing.T) {
		clock := time.Now()
		h := newHarness(t, func(d *Dependencies) { d.Clock = func() time.Time { return clock } })
		created, err := h.svc.CreateTrigger(ctx, cronRequest())
		require.NoError(t, err)

		clock = clock.Add(time.Minute)
		description := "runs at two"
		updated, err := h.svc.UpdateTrigger(ctx, created.ID, &models.UpdateTriggerRequest{Description: &description})
		require.NoError(t, err)

		assert.Equal(t, "nightly report", updated.Name)
		assert.Equal(t, description, updated.Description)
		assert.Equal(t, map[string]interface{}{"report": "daily"}, updated.TaskParameters)
		assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))
		assert.Empty(t, h.schedules.Calls("UpdateSchedule"))
	})

	t.Run("schedule change pushes update", func(t *testing.T) {
		h := newHarness(t)
		created, err := h.svc.CreateTrigger(ctx, cronRequest())
		require.NoError(t, err)

		expr := "*/5 * * * *"
		updated, err := h.svc.UpdateTrigger(ctx, created.ID, &models.UpdateTriggerRequest{CronExpression: &expr})
		require.NoError(t, err)
		assert.Equal(t, expr, updated.Cron.CronExpression)

		calls := h.schedules.Calls("UpdateSchedule")
		require.Len(t, calls, 1)
		assert.Equal(t, expr, calls[0].CronExpression)
		assert.Equal(t, "Europe/Berlin", calls[0].Timezone)
	})

	t.Run("schedule failure is only logged", func(t *testing.T) {
		h := newHarness(t)
		h.schedules.ErrorOnMethod["UpdateSchedule"] = errors.New("scheduler down")
		created, err := h.svc.CreateTrigger(ctx, cronRequest())
		require.NoError(t, err)

		tz := "UTC"
		_, err = h.svc.UpdateTrigger(ctx, created.ID, &models.UpdateTriggerRequest{Timezone: &tz})
		assert.NoError(t, err)
	})

	t.Run("rejects malformed conditions", func(t *testing.T) {
		h := newHarness(t)
		created, err := h.svc.CreateTrigger(ctx, cronRequest())
		require.NoError(t, err)

		_, err = h.svc.UpdateTrigger(ctx, created.ID, &models.UpdateTriggerRequest{Conditions: models.LLMCondition("", nil)})
		assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
	})

	t.Run("keeps counters", func(t *testing.T) {
		h := newHarness(t)
		h.store.Put(testutil.NewCronTriggerBuilder().WithID("trg_1").WithConsecutiveFailures(3).Build())

		threshold := 10
		updated, err := h.svc.UpdateTrigger(ctx, "trg_1", &models.UpdateTriggerRequest{FailureThreshold: &threshold})
		require.NoError(t, err)
		assert.Equal(t, 10, updated.FailureThreshold)
		assert.Equal(t, 3, updated.ConsecutiveFailures)
	})
}

func TestUpdateTrigger_LoweredThreshold(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		active     bool
		threshold  int
		wantActive bool
		wantEvents int
	}{
		{"below current failures disables", 8, true, 2, false, 1},
		{"equal to current failures disables", 8, true, 8, false, 1},
		{"above current failures keeps active", 8, true, 9, true, 0},
		{"already inactive stays quiet", 8, false, 2, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			h.store.Put(testutil.NewCronTriggerBuilder().
				WithID("trg_1").
				WithFailureThreshold(10).
				WithConsecutiveFailures(tt.failures).
				WithActive(tt.active).
				Build())

			updated, err := h.svc.UpdateTrigger(ctx, "trg_1", &models.UpdateTriggerRequest{FailureThreshold: &tt.threshold})
			require.NoError(t, err)
			assert.Equal(t, tt.threshold, updated.FailureThreshold)
			assert.Equal(t, tt.wantActive, updated.IsActive)

			events := h.publisher.Events(models.EventTriggerAutoDisabled)
			require.Len(t, events, tt.wantEvents)
			if tt.wantEvents > 0 {
				assert.Equal(t, tt.failures, events[0].Data["consecutive_failures"])
				assert.Equal(t, tt.threshold, events[0].Data["failure_threshold"])
				assert.Len(t, h.schedules.Calls("PauseSchedule"), 1)
			}

			status, err := h.svc.GetTriggerSafetyStatus(ctx, "trg_1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantActive, status.IsActive)
		})
	}
}

func TestEnableDisableTrigger(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.Put(testutil.NewCronTriggerBuilder().WithID("trg_cron").Build())
	h.store.Put(testutil.NewWebhookTriggerBuilder().WithID("trg_hook").WithWebhookID("wh_hook").Build())
	_, err := h.svc.LoadWebhooks(ctx)
	require.NoError(t, err)

	ok, err := h.svc.DisableTrigger(ctx, "trg_cron")
	require.NoError(t, err)
	assert.True(t, ok)
	stored, _ := h.store.Get(ctx, "trg_cron")
	assert.False(t, stored.IsActive)
	assert.Len(t, h.schedules.Calls("PauseSchedule"), 1)

	ok, err = h.svc.EnableTrigger(ctx, "trg_cron")
	require.NoError(t, err)
	assert.True(t, ok)
	stored, _ = h.store.Get(ctx, "trg_cron")
	assert.True(t, stored.IsActive)
	assert.Len(t, h.schedules.Calls("ResumeSchedule"), 1)

	ok, err = h.svc.DisableTrigger(ctx, "trg_hook")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, h.registry.Resolve(ctx, "wh_hook").IsActive, "registry sees the new state")
	assert.Len(t, h.schedules.Calls("PauseSchedule"), 1, "webhooks have no schedule")

	for _, fn := range []func(context.Context, string) (bool, error){h.svc.EnableTrigger, h.svc.DisableTrigger} {
		ok, err := fn(ctx, "trg_missing")
		assert.NoError(t, err)
		assert.False(t, ok)
	}

	h.store.ErrorOnMethod["Get"] = testutil.ErrStoreDown
	_, err = h.svc.EnableTrigger(ctx, "trg_cron")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeDependency))
}

func TestDeleteTrigger(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	cron, err := h.svc.CreateTrigger(ctx, cronRequest())
	require.NoError(t, err)
	hook, err := h.svc.CreateTrigger(ctx, webhookRequest())
	require.NoError(t, err)

	_, err = h.svc.ExecuteTrigger(ctx, cron.ID, nil)
	require.NoError(t, err)
	require.Len(t, h.store.Executions(cron.ID), 1)

	ok, err := h.svc.DeleteTrigger(ctx, cron.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, h.store.Executions(cron.ID))
	assert.Len(t, h.schedules.Calls("DeleteSchedule"), 1)

	ok, err = h.svc.DeleteTrigger(ctx, hook.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Nil(t, h.registry.Resolve(ctx, hook.Webhook.WebhookID))

	taken, err := h.store.WebhookIDExists(ctx, hook.Webhook.WebhookID)
	require.NoError(t, err)
	assert.True(t, taken, "deleted webhook ids stay reserved")

	ok, err = h.svc.DeleteTrigger(ctx, cron.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.svc.ExecuteTrigger(ctx, cron.ID, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeExecution))
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.Put(testutil.NewCronTriggerBuilder().WithID("trg_a").WithAgentID("agent-1").Build())
	h.store.Put(testutil.NewCronTriggerBuilder().WithID("trg_b").WithAgentID("agent-2").WithActive(false).Build())
	h.store.Put(testutil.NewWebhookTriggerBuilder().WithID("trg_c").WithAgentID("agent-1").Build())

	tests := []struct {
		name   string
		filter models.TriggerFilter
		want   []string
	}{
		{"all", models.TriggerFilter{}, []string{"trg_a", "trg_b", "trg_c"}},
		{"by agent", models.TriggerFilter{AgentID: "agent-1"}, []string{"trg_a", "trg_c"}},
		{"by type", models.TriggerFilter{TriggerType: models.TriggerTypeCron}, []string{"trg_a", "trg_b"}},
		{"active only", models.TriggerFilter{ActiveOnly: true}, []string{"trg_a", "trg_c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := h.svc.ListTriggers(ctx, tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(list))
			for _, tr := range list {
				ids = append(ids, tr.ID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}

	_, err := h.svc.ListTriggers(ctx, models.TriggerFilter{TriggerType: "email"})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))

	_, err = h.svc.GetTrigger(ctx, "trg_missing")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))

	for i := 0; i < 3; i++ {
		_, err := h.svc.ExecuteTrigger(ctx, "trg_a", nil)
		require.NoError(t, err)
	}
	_, err = h.svc.ExecuteTrigger(ctx, "trg_b", nil)
	require.NoError(t, err)

	page, err := h.svc.ListExecutions(ctx, "trg_a", "", models.Page{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)

	page, err = h.svc.ListExecutions(ctx, "trg_b", models.ExecutionSkipped, models.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 50, page.Limit)

	_, err = h.svc.ListExecutions(ctx, "trg_a", "DONE", models.Page{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
	_, err = h.svc.ListExecutions(ctx, "trg_missing", "", models.Page{})
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestLoadWebhooks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.Put(testutil.NewWebhookTriggerBuilder().WithID("trg_1").WithWebhookID("wh_1").Build())
	h.store.Put(testutil.NewWebhookTriggerBuilder().WithID("trg_2").WithWebhookID("wh_2").WithActive(false).Build())
	h.store.Put(testutil.NewCronTriggerBuilder().WithID("trg_3").Build())

	loaded, err := h.svc.LoadWebhooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 2, h.registry.Len())

	h.store.ErrorOnMethod["List"] = testutil.ErrStoreDown
	_, err = h.svc.LoadWebhooks(ctx)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeDependency))
}
