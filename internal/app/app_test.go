package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/config"
	"trigger-engine/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	logging.SetGlobalLogger(logging.NewNopLogger())

	cfg := config.Load()
	cfg.Port = "0"
	cfg.DatabaseType = "sqlite"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "triggers.db")
	cfg.EventsBackend = config.EventsBackendLog
	cfg.ScheduleEnabled = false
	cfg.AgentIDs = []string{"agent-1"}
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_WiresHTTPSurface(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	app, err := New(ctx, cfg)
	require.NoError(t, err)
	defer app.Close(ctx)
	require.NoError(t, app.Start(ctx))

	handler := app.Handler()

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	body, _ := json.Marshal(map[string]interface{}{
		"name":         "deploy hook",
		"agent_id":     "agent-1",
		"trigger_type": "webhook",
	})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/triggers", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var trigger models.Trigger
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &trigger))

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/webhooks/"+trigger.WebhookID(), strings.NewReader(`{"ok":true}`)))
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestNew_AuthProtectsAdminAPI(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.AuthEnabled = true
	cfg.JWTSecret = strings.Repeat("s", 32)

	app, err := New(ctx, cfg)
	require.NoError(t, err)
	defer app.Close(ctx)

	handler := app.Handler()
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/triggers", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := app.Auth.IssueToken("ops", time.Minute)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/triggers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNew_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.RedisAddress = mr.Addr()
	cfg.LocksEnabled = true
	cfg.EventsBackend = config.EventsBackendRedis

	app, err := New(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, app.RedisClient)
	require.NotNil(t, app.Locker)
	assert.Len(t, app.healthChecks(), 2)
	require.NoError(t, app.Close(ctx))
}

func TestNew_RedisRequiredButUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.RedisAddress = addr
	cfg.LocksEnabled = true

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestServe_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.ScheduleEnabled = true

	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestMigrate(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, Migrate(context.Background(), cfg))
	// idempotent
	require.NoError(t, Migrate(context.Background(), cfg))
}

func TestRootCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cli.db")
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_PATH", dbPath)
	t.Setenv("EVENTS_BACKEND", "log")
	t.Setenv("LOG_LEVEL", "error")

	run := func(args ...string) (string, error) {
		cmd := NewRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		err := cmd.ExecuteContext(context.Background())
		return out.String(), err
	}

	_, err := run("migrate")
	require.NoError(t, err)

	_, err = run("triggers", "safety", "missing")
	assert.Error(t, err)

	_, err = run("triggers", "reset")
	assert.Error(t, err, "trigger id is required")

	_, err = run("migrate", "--env-file", filepath.Join(t.TempDir(), "absent.env"))
	assert.Error(t, err)

	t.Setenv("DATABASE_TYPE", "mysql")
	_, err = run("migrate")
	assert.Error(t, err)
}

func TestRootCommand_SafetyAndReset(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	app, err := New(ctx, cfg)
	require.NoError(t, err)
	trigger, err := app.Triggers.CreateTrigger(ctx, &models.CreateTriggerRequest{
		Name:        "hook",
		AgentID:     "agent-1",
		TriggerType: models.TriggerTypeWebhook,
	})
	require.NoError(t, err)
	require.NoError(t, app.Close(ctx))

	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_PATH", cfg.DatabasePath)
	t.Setenv("AGENT_IDS", "agent-1")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"triggers", "safety", trigger.ID})
	require.NoError(t, cmd.ExecuteContext(ctx))

	var status models.SafetyStatus
	require.NoError(t, json.Unmarshal(out.Bytes(), &status))
	assert.Equal(t, trigger.ID, status.TriggerID)
	assert.True(t, status.IsActive)
	assert.Equal(t, status.FailureThreshold, status.FailuresUntilDisable)

	cmd = NewRootCommand()
	out.Reset()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"triggers", "reset", trigger.ID})
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), `"reset": true`)
}
