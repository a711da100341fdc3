package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/conditions"
	"trigger-engine/internal/middleware"
	"trigger-engine/internal/models"
	"trigger-engine/internal/ratelimit"
	"trigger-engine/internal/testutil"
	"trigger-engine/internal/triggers"
	"trigger-engine/internal/webhooks"
)

const testSecret = "test-secret-key-that-is-long-enough"

type observedCodes struct {
	codes []int
}

func (o *observedCodes) ObserveWebhookResponse(code int) {
	o.codes = append(o.codes, code)
}

type testEnv struct {
	router   *mux.Router
	store    *testutil.MockStore
	tasks    *testutil.MockTaskService
	svc      *triggers.Service
	observed *observedCodes
	token    string
}

type envOptions struct {
	limiter  *ratelimit.WebhookLimiter
	maxBody  int64
	checks   []HealthCheck
	withAuth bool
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	nop := logging.NewNopLogger()

	env := &testEnv{
		store:    testutil.NewMockStore(),
		tasks:    testutil.NewMockTaskService(),
		observed: &observedCodes{},
	}
	registry, err := webhooks.NewRegistry(env.store, 16, nop)
	require.NoError(t, err)

	env.svc, err = triggers.NewService(triggers.Dependencies{
		Store:     env.store,
		Evaluator: conditions.NewEvaluator(testutil.NewMockCompleter("true"), nop),
		Registry:  registry,
		Tasks:     env.tasks,
		Schedules: testutil.NewMockScheduleManager(),
		Publisher: testutil.NewMockPublisher(),
		Agents:    testutil.NewMockAgentLookup("agent-1"),
		Logger:    nop,
		Options:   triggers.DefaultOptions(),
	})
	require.NoError(t, err)

	dispatcher := webhooks.NewDispatcher(registry, env.svc, nil, webhooks.Options{}, nop)
	h := New(env.svc, dispatcher, opts.limiter, env.observed, opts.checks, Options{MaxBodyBytes: opts.maxBody}, nop)

	var auth func(http.Handler) http.Handler
	if opts.withAuth {
		jwtAuth, err := middleware.NewJWTAuth(testSecret, "", nop)
		require.NoError(t, err)
		env.token, err = jwtAuth.IssueToken("alice", time.Hour)
		require.NoError(t, err)
		auth = jwtAuth.Middleware
	}

	env.router = mux.NewRouter()
	h.Register(env.router, auth)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func createWebhook(t *testing.T, env *testEnv) *models.Trigger {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/triggers", map[string]interface{}{
		"name":            "github push",
		"agent_id":        "agent-1",
		"trigger_type":    "webhook",
		"allowed_methods": []string{"post"},
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[*models.Trigger](t, rr)
}

func TestTriggerAPI_Lifecycle(t *testing.T) {
	env := newTestEnv(t, envOptions{withAuth: true})

	rr := env.do(t, http.MethodPost, "/api/triggers", map[string]interface{}{
		"name":            "nightly",
		"agent_id":        "agent-1",
		"trigger_type":    "cron",
		"cron_expression": "0 2 * * *",
		"timezone":        "UTC",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[*models.Trigger](t, rr)
	assert.Equal(t, "alice", created.CreatedBy)
	require.NotNil(t, created.Cron)

	rr = env.do(t, http.MethodGet, "/api/triggers/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "nightly", decode[*models.Trigger](t, rr).Name)

	rr = env.do(t, http.MethodPatch, "/api/triggers/"+created.ID, map[string]interface{}{"name": "nightly v2"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "nightly v2", decode[*models.Trigger](t, rr).Name)

	rr = env.do(t, http.MethodPost, "/api/triggers/"+created.ID+"/disable", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[StatusBody](t, rr).Changed)

	rr = env.do(t, http.MethodPost, "/api/triggers/"+created.ID+"/disable", nil)
	require.Equal(t, http.StatusOK, rr.Code, "disabling twice is not an error")

	rr = env.do(t, http.MethodGet, "/api/triggers?active=true", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]*models.Trigger](t, rr))

	rr = env.do(t, http.MethodPost, "/api/triggers/"+created.ID+"/enable", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/triggers?type=cron&agent_id=agent-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]*models.Trigger](t, rr), 1)

	rr = env.do(t, http.MethodDelete, "/api/triggers/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[StatusBody](t, rr).Changed)

	rr = env.do(t, http.MethodGet, "/api/triggers/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, string(errors.ErrTypeNotFound), decode[ErrorBody](t, rr).Type)

	rr = env.do(t, http.MethodDelete, "/api/triggers/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestTriggerAPI_Errors(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	failing := newTestEnv(t, envOptions{})
	failing.store.ErrorOnMethod["List"] = stderrors.New("disk on fire")

	tests := []struct {
		name       string
		env        *testEnv
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantType   errors.ErrorType
	}{
		{"malformed json", env, http.MethodPost, "/api/triggers", "{", http.StatusBadRequest, errors.ErrTypeValidation},
		{"unknown field", env, http.MethodPost, "/api/triggers", `{"nme":"x"}`, http.StatusBadRequest, errors.ErrTypeValidation},
		{"unknown agent", env, http.MethodPost, "/api/triggers", map[string]interface{}{
			"name": "x", "agent_id": "ghost", "trigger_type": "webhook",
		}, http.StatusBadRequest, errors.ErrTypeValidation},
		{"bad cron", env, http.MethodPost, "/api/triggers", map[string]interface{}{
			"name": "x", "agent_id": "agent-1", "trigger_type": "cron", "cron_expression": "every day",
		}, http.StatusBadRequest, errors.ErrTypeValidation},
		{"bad type filter", env, http.MethodGet, "/api/triggers?type=imap", nil, http.StatusBadRequest, errors.ErrTypeValidation},
		{"bad active filter", env, http.MethodGet, "/api/triggers?active=maybe", nil, http.StatusBadRequest, errors.ErrTypeValidation},
		{"unknown trigger", env, http.MethodPost, "/api/triggers/nope/enable", nil, http.StatusNotFound, errors.ErrTypeNotFound},
		{"reset unknown", env, http.MethodPost, "/api/triggers/nope/reset-failures", nil, http.StatusNotFound, errors.ErrTypeNotFound},
		{"unknown safety", env, http.MethodGet, "/api/triggers/nope/safety", nil, http.StatusNotFound, errors.ErrTypeNotFound},
		{"execute unknown", env, http.MethodPost, "/api/triggers/nope/execute", nil, http.StatusNotFound, errors.ErrTypeExecution},
		{"bad status filter", env, http.MethodGet, "/api/triggers/x/executions?status=LOST", nil, http.StatusBadRequest, errors.ErrTypeValidation},
		{"bad limit", env, http.MethodGet, "/api/triggers/x/executions?limit=ten", nil, http.StatusBadRequest, errors.ErrTypeValidation},
		{"execute bad body", env, http.MethodPost, "/api/triggers/x/execute", "[1,2]", http.StatusBadRequest, errors.ErrTypeValidation},
		{"store down", failing, http.MethodGet, "/api/triggers", nil, http.StatusServiceUnavailable, errors.ErrTypeDependency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := tt.env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			assert.Equal(t, string(tt.wantType), decode[ErrorBody](t, rr).Type)
		})
	}
}

func TestTriggerAPI_RequiresToken(t *testing.T) {
	env := newTestEnv(t, envOptions{withAuth: true})
	env.token = ""

	rr := env.do(t, http.MethodGet, "/api/triggers", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code, "health stays public")
}

func TestTriggerAPI_ExecuteAndSafety(t *testing.T) {
	env := newTestEnv(t, envOptions{withAuth: true})
	trigger := createWebhook(t, env)

	rr := env.do(t, http.MethodPost, "/api/triggers/"+trigger.ID+"/execute", map[string]interface{}{"ref": "main"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	execution := decode[*models.TriggerExecution](t, rr)
	assert.Equal(t, models.ExecutionSuccess, execution.Status)
	assert.Equal(t, "manual", execution.TriggerData["source"])
	assert.Equal(t, "alice", execution.TriggerData["requested_by"])

	rr = env.do(t, http.MethodPost, "/api/triggers/"+trigger.ID+"/execute", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	env.tasks.ErrorOnMethod["CreateTaskFromParams"] = stderrors.New("agent crashed")
	rr = env.do(t, http.MethodPost, "/api/triggers/"+trigger.ID+"/execute", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.ExecutionFailed, decode[*models.TriggerExecution](t, rr).Status)

	rr = env.do(t, http.MethodGet, "/api/triggers/"+trigger.ID+"/safety", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	safety := decode[models.SafetyStatus](t, rr)
	assert.Equal(t, 1, safety.ConsecutiveFailures)
	assert.Equal(t, safety.FailureThreshold-1, safety.FailuresUntilDisable)

	rr = env.do(t, http.MethodPost, "/api/triggers/"+trigger.ID+"/reset-failures", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[StatusBody](t, rr).Changed)

	rr = env.do(t, http.MethodGet, "/api/triggers/"+trigger.ID+"/executions?status=failed&limit=10", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[models.ExecutionPage](t, rr)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 10, page.Limit)

	rr = env.do(t, http.MethodGet, "/api/triggers/"+trigger.ID+"/executions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, decode[models.ExecutionPage](t, rr).Total)
}

func TestHandleWebhook(t *testing.T) {
	env := newTestEnv(t, envOptions{maxBody: 512})
	trigger := createWebhook(t, env)
	path := "/webhooks/" + trigger.Webhook.WebhookID

	rr := env.do(t, http.MethodPost, path+"?ref=main", `{"action":"push"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decode[map[string]interface{}](t, rr)
	assert.Equal(t, "success", body["status"])

	created := env.tasks.Created()
	require.Len(t, created, 1)
	request := created[0].Parameters["request"].(map[string]interface{})
	assert.Equal(t, "push", request["body"].(map[string]interface{})["action"])
	assert.Equal(t, "main", request["query_params"].(map[string]string)["ref"])

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		message string
	}{
		{"unknown webhook", http.MethodPost, "/webhooks/wh_missing", "{}", webhooks.MsgNotFound},
		{"method not allowed", http.MethodGet, path, "", webhooks.MsgNotAllowed},
		{"body too large", http.MethodPost, path, `{"pad":"` + strings.Repeat("x", 1000) + `"}`, MsgBodyTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, tt.message, decode[map[string]interface{}](t, rr)["message"])
		})
	}

	assert.Equal(t, []int{200, 400, 400, 400}, env.observed.codes)
}

func TestHandleWebhook_InvalidRules(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	trigger := testutil.NewWebhookTriggerBuilder().
		WithAgentID("agent-1").
		WithWebhookID("wh_badrules").
		Build()
	trigger.Webhook.ValidationRules = map[string]interface{}{"required_headers": 42}
	env.store.Put(trigger)

	rr := env.do(t, http.MethodPost, "/webhooks/wh_badrules", "{}")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, webhooks.MsgInvalidRules, decode[map[string]interface{}](t, rr)["message"])
	assert.Empty(t, env.tasks.Created())
}

func TestHandleWebhook_RateLimited(t *testing.T) {
	limiter, err := ratelimit.NewWebhookLimiter(ratelimit.WebhookConfig{RequestsPerSecond: 0.001, Burst: 1})
	require.NoError(t, err)
	env := newTestEnv(t, envOptions{limiter: limiter})
	trigger := createWebhook(t, env)
	path := "/webhooks/" + trigger.Webhook.WebhookID

	rr := env.do(t, http.MethodPost, path, "{}")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodPost, path, "{}")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, webhooks.MsgRateLimited, decode[map[string]interface{}](t, rr)["message"])
	assert.Len(t, env.tasks.Created(), 1)
}

func TestHealthCheck(t *testing.T) {
	ok := HealthCheck{Name: "store", Check: func(context.Context) error { return nil }}
	down := HealthCheck{Name: "redis", Check: func(context.Context) error { return stderrors.New("connection refused") }}

	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		want       string
	}{
		{"no checks", nil, http.StatusOK, "healthy"},
		{"all healthy", []HealthCheck{ok}, http.StatusOK, "healthy"},
		{"one down", []HealthCheck{ok, down}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{checks: tt.checks})
			rr := env.do(t, http.MethodGet, "/health", nil)
			assert.Equal(t, tt.wantStatus, rr.Code)
			body := decode[map[string]interface{}](t, rr)
			assert.Equal(t, tt.want, body["status"])
			assert.Len(t, body["checks"], len(tt.checks))
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.TriggerValidationError("bad"), http.StatusBadRequest},
		{errors.WebhookValidationError("rules"), http.StatusBadRequest},
		{errors.TriggerNotFoundError("t"), http.StatusNotFound},
		{errors.AuthError("no"), http.StatusUnauthorized},
		{errors.DependencyUnavailableError("store", nil), http.StatusServiceUnavailable},
		{errors.TimeoutError("task", nil), http.StatusServiceUnavailable},
		{errors.InternalError("boom", nil), http.StatusInternalServerError},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}
