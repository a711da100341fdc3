// Package triggers owns the trigger lifecycle, the execution pipeline and the safety mechanism
// that disables triggers after too many consecutive failures.
//
// A Service is built once from explicit Dependencies. Each schedule tick or webhook request
// calls ExecuteTrigger concurrently; counter updates for one trigger are serialized by a
// keyed mutex, an optional distributed lock and transactional updates in the store.
package triggers

import (
	"time"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/common/validation"
	"trigger-engine/internal/locks"
	"trigger-engine/internal/models"
	"trigger-engine/internal/ratelimit"
	"trigger-engine/internal/storage"
)

// Options are the policy knobs of the service
type Options struct {
	DefaultFailureThreshold int
	// AtRiskRatio is the share of the failure threshold at which a trigger is reported at risk
	AtRiskRatio      float64
	ConditionTimeout time.Duration
	TaskTimeout      time.Duration
}

func DefaultOptions() Options {
	return Options{
		DefaultFailureThreshold: models.DefaultFailureThreshold,
		AtRiskRatio:             0.8,
		ConditionTimeout:        30 * time.Second,
		TaskTimeout:             30 * time.Second,
	}
}

// Dependencies lists every collaborator of the service.
// Store, Evaluator and Tasks are required; the rest may be nil.
type Dependencies struct {
	Store     storage.TriggerStore
	Evaluator ConditionEvaluator
	Registry  WebhookRegistry
	Tasks     TaskService
	Schedules ScheduleManager
	Publisher EventPublisher
	Agents    AgentLookup
	// Locker adds cross-process serialization of counter updates, e.g. a redsync locker
	Locker locks.Locker
	// Limiter enforces max_executions_per_hour; defaults to counting stored executions
	Limiter   ratelimit.ExecutionWindow
	Validator *validation.Validator
	Logger    logging.Logger
	Metrics   *Metrics
	Clock     Clock
	Options   Options
}

type Service struct {
	store     storage.TriggerStore
	evaluator ConditionEvaluator
	registry  WebhookRegistry
	tasks     TaskService
	schedules ScheduleManager
	publisher EventPublisher
	agents    AgentLookup
	locker    locks.Locker
	limiter   ratelimit.ExecutionWindow
	validator *validation.Validator
	logger    logging.Logger
	metrics   *Metrics
	now       Clock
	options   Options
}

func NewService(deps Dependencies) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.ConfigError("trigger service requires a store")
	}
	if deps.Evaluator == nil {
		return nil, errors.ConfigError("trigger service requires a condition evaluator")
	}
	if deps.Tasks == nil {
		return nil, errors.ConfigError("trigger service requires a task service")
	}

	options := deps.Options
	defaults := DefaultOptions()
	if options.DefaultFailureThreshold < 1 {
		options.DefaultFailureThreshold = defaults.DefaultFailureThreshold
	}
	if options.AtRiskRatio <= 0 || options.AtRiskRatio > 1 {
		options.AtRiskRatio = defaults.AtRiskRatio
	}
	if options.ConditionTimeout <= 0 {
		options.ConditionTimeout = defaults.ConditionTimeout
	}
	if options.TaskTimeout <= 0 {
		options.TaskTimeout = defaults.TaskTimeout
	}

	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.NewStoreWindow(deps.Store)
	}
	validator := deps.Validator
	if validator == nil {
		validator = validation.New()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		store:     deps.Store,
		evaluator: deps.Evaluator,
		registry:  deps.Registry,
		tasks:     deps.Tasks,
		schedules: deps.Schedules,
		publisher: deps.Publisher,
		agents:    deps.Agents,
		locker:    locks.Chain(locks.NewKeyedMutex(), deps.Locker),
		limiter:   limiter,
		validator: validator,
		logger:    logging.OrGlobal(deps.Logger).WithFields(logging.Field{"component", "trigger_service"}),
		metrics:   deps.Metrics,
		now:       clock,
		options:   options,
	}, nil
}

func (s *Service) Options() Options {
	return s.options
}
