package conditions

import (
	"context"
	"errors"
	"testing"

	"trigger-engine/internal/common/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  map[string]interface{}
	}{
		{"plain", `{"repo":"api","count":2}`, map[string]interface{}{"repo": "api", "count": float64(2)}},
		{"fenced", "```json\n{\"repo\":\"api\"}\n```", map[string]interface{}{"repo": "api"}},
		{"surrounding prose", `Here you go: {"repo":"api"} hope that helps`, map[string]interface{}{"repo": "api"}},
		{"trailing comma", `{"repo":"api",}`, map[string]interface{}{"repo": "api"}},
		{"single quotes", `{'repo': 'api'}`, map[string]interface{}{"repo": "api"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseJSONObject(tt.reply)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "just words", `["a","b"]`, "42"} {
		_, ok := ParseJSONObject(bad)
		assert.False(t, ok, bad)
	}
}

func TestExtractParameters(t *testing.T) {
	event := map[string]interface{}{"title": "Deploy api"}

	t.Run("json reply", func(t *testing.T) {
		stub := &stubCompleter{reply: `{"service":"api"}`}
		params := NewEvaluator(stub, logging.NewNopLogger()).ExtractParameters(context.Background(), "find the service", event, nil)
		assert.Equal(t, map[string]interface{}{"service": "api"}, params)
		assert.Contains(t, stub.prompt, "Instruction: find the service")
		assert.Equal(t, extractTemperature, stub.temp)
	})

	t.Run("unparseable reply falls back", func(t *testing.T) {
		params := NewEvaluator(&stubCompleter{reply: "the service is api"}, logging.NewNopLogger()).
			ExtractParameters(context.Background(), "find the service", event, nil)
		assert.Equal(t, event, params["event_data"])
		assert.Equal(t, "find the service", params["instruction"])
		assert.Equal(t, "the service is api", params["raw_response"])
	})

	t.Run("backend error falls back", func(t *testing.T) {
		params := NewEvaluator(&stubCompleter{err: errors.New("boom")}, logging.NewNopLogger()).
			ExtractParameters(context.Background(), "x", event, nil)
		assert.Equal(t, "", params["raw_response"])
		assert.Equal(t, event, params["event_data"])
	})

	t.Run("no backend falls back", func(t *testing.T) {
		params := NewEvaluator(nil, logging.NewNopLogger()).ExtractParameters(context.Background(), "x", event, nil)
		assert.Len(t, params, 3)
	})
}
