package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trigger-engine/internal/common/errors"
	"trigger-engine/internal/config"
	"trigger-engine/internal/models"
)

type stubFactory struct {
	store TriggerStore
	err   error
	opts  Options
}

func (f *stubFactory) Create(_ context.Context, opts Options) (TriggerStore, error) {
	f.opts = opts
	return f.store, f.err
}

func (f *stubFactory) GetType() string { return "stub" }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.IsRegistered("stub"))

	_, err := r.Create(context.Background(), "stub", Options{})
	assert.Error(t, err)

	factory := &stubFactory{}
	r.Register("stub", factory)
	r.Register("another", factory)
	assert.True(t, r.IsRegistered("stub"))
	assert.Equal(t, []string{"another", "stub"}, r.GetAvailableTypes())

	cfg := &config.Config{DatabaseType: "stub"}
	_, err = r.Create(context.Background(), "stub", Options{Config: cfg})
	require.NoError(t, err)
	assert.Same(t, cfg, factory.opts.Config)
}

func TestNewStore(t *testing.T) {
	_, err := NewStore(context.Background(), &config.Config{DatabaseType: "oracle"}, nil, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))

	failing := &stubFactory{err: errors.New("disk full")}
	Register("failing-stub", failing)
	_, err = NewStore(context.Background(), &config.Config{DatabaseType: "failing-stub"}, nil, nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeDependency))
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "trigger_store", appErr.ContextString("dependency"))
	assert.NotNil(t, failing.opts.Logger)
}

func TestUpdateArgsFollowColumns(t *testing.T) {
	limit := 3
	tr := &models.Trigger{
		ID:                   "trg_1",
		Name:                 "n",
		TriggerType:          models.TriggerTypeCron,
		FailureThreshold:     4,
		ConsecutiveFailures:  2,
		MaxExecutionsPerHour: &limit,
		Cron:                 &models.CronSpec{CronExpression: "@hourly", Timezone: "UTC"},
	}
	args, err := UpdateArgs(tr, nil)
	require.NoError(t, err)
	require.Len(t, args, len(UpdateColumns))

	byName := map[string]interface{}{}
	for i, col := range UpdateColumns {
		byName[col] = args[i]
	}
	assert.Equal(t, "n", byName["name"])
	assert.Equal(t, int64(4), byName["failure_threshold"])
	assert.Equal(t, int64(3), byName["max_executions_per_hour"])
	assert.Equal(t, "@hourly", byName["cron_expression"])
	assert.Nil(t, byName["allowed_methods"])
	assert.Equal(t, "{}", byName["task_parameters"])
	assert.NotContains(t, UpdateColumns, "consecutive_failures")
	assert.NotContains(t, UpdateColumns, "is_active")
}
