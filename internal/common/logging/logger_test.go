package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trigger-engine/internal/common/errors"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{LogLevel(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLevel("WARNING"))
	assert.Equal(t, ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, InfoLevel, ParseLevel("nonsense"))
}

func TestZapAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: DebugLevel, Output: &buf})
	require.NoError(t, err)

	logger.Debug("debug message", Field{"key", "value"})
	logger.Info("info message", Field{"count", 42})
	logger.Warn("warn message", Field{"enabled", true})
	logger.Error("error message", errors.New("test error"), Field{"code", "ERR123"})

	output := buf.String()
	for _, want := range []string{"DEBUG", "debug message", "INFO", "42", "WARN", "ERROR", "test error"} {
		assert.Contains(t, output, want)
	}
}

func TestZapAdapter_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: WarnLevel, Output: &buf})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestZapAdapter_JSONFormatWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf, Format: "json"})
	require.NoError(t, err)

	ctx := ContextWithCorrelationID(context.Background(), "corr-1")
	ctx = ContextWithRequestID(ctx, "req-1")

	logger.WithFields(Field{"component", "trigger_service"}).
		WithContext(ctx).
		Info("execution recorded", Field{"trigger_id", "trg_1"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "execution recorded", entry["msg"])
	assert.Equal(t, "trigger_service", entry["component"])
	assert.Equal(t, "corr-1", entry["correlation_id"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "trg_1", entry["trigger_id"])
}

func TestContextIDs(t *testing.T) {
	assert.Equal(t, "", CorrelationIDFromContext(context.Background()))
	ctx := ContextWithCorrelationID(context.Background(), "abc")
	assert.Equal(t, "abc", CorrelationIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(ctx))
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	assert.NotPanics(t, func() {
		logger.WithFields(Field{"a", 1}).WithContext(context.Background()).Error("x", errors.New("y"))
	})
}

func TestRotatingWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	logger, err := NewZapLogger(LogConfig{
		Level:  InfoLevel,
		Output: NewRotatingWriter(FileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}),
	})
	require.NoError(t, err)

	logger.Info("written to file")
	assert.FileExists(t, path)
}

func TestGlobalLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf})
	require.NoError(t, err)

	original := GetGlobalLogger()
	SetGlobalLogger(logger)
	defer SetGlobalLogger(original)

	Info("global info")
	assert.Contains(t, buf.String(), "global info")
	assert.Same(t, logger, OrGlobal(nil))
}

func TestZapAdapter_TypedErrorFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewZapLogger(LogConfig{Level: InfoLevel, Output: &buf, Format: "json"})
	require.NoError(t, err)

	cause := apperrors.TriggerNotFoundError("trg_9")
	logger.Error("execution failed", apperrors.TriggerExecutionError("trg_9", "corr-9", "load trigger", cause))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "execution", entry["error_type"])
	assert.Equal(t, "trg_9", entry["error_trigger_id"])
	assert.Contains(t, entry["error"], "not_found")
}
