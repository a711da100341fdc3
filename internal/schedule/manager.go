// Package schedule runs cron triggers. Each trigger owns one cron entry evaluated in its own
// timezone; paused triggers keep their spec so they can be resumed without a store lookup.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/common/validation"
	"trigger-engine/internal/models"
)

// Sources recorded in the execution data of scheduled runs
const (
	SourceSchedule = "schedule"
	SourceCatchUp  = "catch_up"
)

const catchUpConcurrency = 4

// Executor runs a trigger; it is satisfied by the trigger service
type Executor interface {
	ExecuteTrigger(ctx context.Context, id string, executionData map[string]interface{}) (*models.TriggerExecution, error)
}

// Store is the subset of the trigger store the manager needs
type Store interface {
	ListByType(ctx context.Context, triggerType models.TriggerType) ([]*models.Trigger, error)
	ListCronTriggersDue(ctx context.Context, before time.Time) ([]*models.Trigger, error)
	SetNextRunTime(ctx context.Context, id string, next *time.Time) error
}

type Options struct {
	// CatchUp runs triggers whose stored next_run_time passed while the process was down, once
	CatchUp bool
	Now     func() time.Time
}

type entry struct {
	expression string
	timezone   string
	schedule   cron.Schedule
	id         cron.EntryID
	paused     bool
}

// Manager implements the trigger service's ScheduleManager on robfig/cron
type Manager struct {
	cron    *cron.Cron
	store   Store
	logger  logging.Logger
	options Options

	mu       sync.Mutex
	entries  map[string]*entry
	executor Executor
	baseCtx  context.Context
	started  bool
	stopOnce sync.Once
}

func NewManager(store Store, logger logging.Logger, options Options) *Manager {
	logger = logging.OrGlobal(logger).WithFields(logging.Field{"component", "schedule_manager"})
	if options.Now == nil {
		options.Now = time.Now
	}
	cronLog := cronLogger{logger: logger}
	return &Manager{
		cron: cron.New(
			cron.WithParser(validation.CronParser),
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		store:   store,
		logger:  logger,
		options: options,
		entries: make(map[string]*entry),
		baseCtx: context.Background(),
	}
}

// Start registers every stored cron trigger, runs the catch-up pass and starts ticking.
// Inactive triggers are registered paused. The manager stops when ctx is done.
func (m *Manager) Start(ctx context.Context, executor Executor) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.InternalError("schedule manager already started", nil)
	}
	m.started = true
	m.executor = executor
	m.baseCtx = context.WithoutCancel(ctx)
	m.mu.Unlock()

	list, err := m.store.ListByType(ctx, models.TriggerTypeCron)
	if err != nil {
		return errors.DependencyUnavailableError("trigger_store", err)
	}

	registered := 0
	for _, trigger := range list {
		if trigger.Cron == nil {
			continue
		}
		err := m.put(trigger.ID, trigger.Cron.CronExpression, trigger.Cron.Timezone, !trigger.IsActive)
		if err != nil {
			m.logger.Warn("Skipping cron trigger with invalid schedule",
				logging.Err(err), logging.Field{"trigger_id", trigger.ID})
			continue
		}
		registered++
	}

	if m.options.CatchUp {
		if err := m.catchUp(ctx); err != nil {
			m.logger.Error("Catch-up pass failed", err)
		}
	}

	m.cron.Start()
	m.logger.Info("Schedule manager started", logging.Field{"triggers", registered})

	go func() {
		<-ctx.Done()
		m.Stop()
	}()
	return nil
}

// Stop halts ticking and waits for running jobs. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		<-m.cron.Stop().Done()
		m.logger.Info("Schedule manager stopped")
	})
}

func (m *Manager) CreateSchedule(ctx context.Context, triggerID, cronExpression, timezone string) error {
	return m.put(triggerID, cronExpression, timezone, false)
}

// UpdateSchedule replaces the cron entry of a trigger; a paused trigger stays paused
func (m *Manager) UpdateSchedule(ctx context.Context, triggerID, cronExpression, timezone string) error {
	m.mu.Lock()
	paused := false
	if e, ok := m.entries[triggerID]; ok {
		paused = e.paused
	}
	m.mu.Unlock()
	return m.put(triggerID, cronExpression, timezone, paused)
}

func (m *Manager) PauseSchedule(ctx context.Context, triggerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[triggerID]
	if !ok {
		return errors.NotFoundError("schedule " + triggerID)
	}
	if !e.paused {
		m.cron.Remove(e.id)
		e.paused = true
		e.id = 0
		m.logger.Info("Schedule paused", logging.Field{"trigger_id", triggerID})
	}
	return nil
}

func (m *Manager) ResumeSchedule(ctx context.Context, triggerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[triggerID]
	if !ok {
		return errors.NotFoundError("schedule " + triggerID)
	}
	if e.paused {
		e.id = m.cron.Schedule(e.schedule, m.job(triggerID))
		e.paused = false
		m.logger.Info("Schedule resumed", logging.Field{"trigger_id", triggerID})
	}
	return nil
}

// DeleteSchedule forgets the trigger; unknown ids are ignored
func (m *Manager) DeleteSchedule(ctx context.Context, triggerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[triggerID]; ok {
		if !e.paused {
			m.cron.Remove(e.id)
		}
		delete(m.entries, triggerID)
		m.logger.Info("Schedule deleted", logging.Field{"trigger_id", triggerID})
	}
	return nil
}

// Next returns the next activation of an active schedule
func (m *Manager) Next(triggerID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[triggerID]
	if !ok || e.paused {
		return time.Time{}, false
	}
	return e.schedule.Next(m.options.Now()), true
}

// Paused reports whether a known schedule is paused
func (m *Manager) Paused(triggerID string) (paused bool, known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[triggerID]
	if !ok {
		return false, false
	}
	return e.paused, true
}

// Len returns the number of active cron entries
func (m *Manager) Len() int {
	return len(m.cron.Entries())
}

func (m *Manager) put(triggerID, expression, timezone string, paused bool) error {
	if timezone == "" {
		timezone = "UTC"
	}
	sched, err := validation.CronParser.Parse(fmt.Sprintf("CRON_TZ=%s %s", timezone, expression))
	if err != nil {
		return errors.TriggerValidationError(fmt.Sprintf("invalid schedule %q in %s: %v", expression, timezone, err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.entries[triggerID]; ok && !old.paused {
		m.cron.Remove(old.id)
	}
	e := &entry{expression: expression, timezone: timezone, schedule: sched, paused: paused}
	if !paused {
		e.id = m.cron.Schedule(sched, m.job(triggerID))
	}
	m.entries[triggerID] = e
	m.logger.Debug("Schedule registered",
		logging.Field{"trigger_id", triggerID},
		logging.Field{"cron_expression", expression},
		logging.Field{"timezone", timezone},
		logging.Field{"paused", paused},
	)
	return nil
}

func (m *Manager) job(triggerID string) cron.Job {
	return cron.FuncJob(func() {
		m.fire(triggerID, SourceSchedule)
	})
}

// fire executes one scheduled run and stores the following activation time
func (m *Manager) fire(triggerID, source string) {
	m.mu.Lock()
	executor := m.executor
	ctx := m.baseCtx
	e := m.entries[triggerID]
	m.mu.Unlock()

	if executor == nil {
		return
	}
	logger := m.logger.WithFields(logging.Field{"trigger_id", triggerID}, logging.Field{"source", source})

	now := m.options.Now()
	data := map[string]interface{}{
		"source":       source,
		"scheduled_at": now.UTC().Format(time.RFC3339),
	}
	execution, err := executor.ExecuteTrigger(ctx, triggerID, data)
	if err != nil {
		logger.Error("Scheduled execution failed", err)
	} else {
		logger.Debug("Scheduled execution finished", logging.Field{"status", execution.Status})
	}

	if e == nil {
		return
	}
	next := e.schedule.Next(now).UTC()
	if err := m.store.SetNextRunTime(ctx, triggerID, &next); err != nil {
		logger.Warn("Failed to store next run time", logging.Err(err))
	}
}

// catchUp runs every active cron trigger whose stored next run time has already passed
func (m *Manager) catchUp(ctx context.Context) error {
	due, err := m.store.ListCronTriggersDue(ctx, m.options.Now())
	if err != nil {
		return errors.DependencyUnavailableError("trigger_store", err)
	}
	if len(due) == 0 {
		return nil
	}
	m.logger.Info("Running missed schedules", logging.Field{"count", len(due)})

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(catchUpConcurrency)
	for _, trigger := range due {
		id := trigger.ID
		g.Go(func() error {
			m.fire(id, SourceCatchUp)
			return nil
		})
	}
	return g.Wait()
}
