package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"trigger-engine/internal/models"
	"trigger-engine/internal/storage"
)

// MockStore is an in-memory storage.TriggerStore. Counter updates happen under one
// mutex so they are atomic the same way the SQL adapters' transactions are.
type MockStore struct {
	mu         sync.RWMutex
	triggers   map[string]*models.Trigger
	executions []*models.TriggerExecution
	retired    map[string]bool

	// Control error injection
	ErrorOnMethod map[string]error
}

func NewMockStore() *MockStore {
	return &MockStore{
		triggers:      make(map[string]*models.Trigger),
		retired:       make(map[string]bool),
		ErrorOnMethod: make(map[string]error),
	}
}

func (m *MockStore) fail(method string) error {
	return m.ErrorOnMethod[method]
}

func (m *MockStore) Get(ctx context.Context, id string) (*models.Trigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail("Get"); err != nil {
		return nil, err
	}
	t, ok := m.triggers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return t.Clone(), nil
}

func (m *MockStore) Create(ctx context.Context, trigger *models.Trigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("Create"); err != nil {
		return err
	}
	if webhookID := trigger.WebhookID(); webhookID != "" {
		if m.retired[webhookID] || m.webhookInUse(webhookID) {
			return storage.ErrDuplicateWebhookID
		}
	}
	m.triggers[trigger.ID] = trigger.Clone()
	return nil
}

func (m *MockStore) webhookInUse(webhookID string) bool {
	for _, t := range m.triggers {
		if t.WebhookID() == webhookID {
			return true
		}
	}
	return false
}

// Update replaces the definition fields and keeps counters and is_active
func (m *MockStore) Update(ctx context.Context, trigger *models.Trigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("Update"); err != nil {
		return err
	}
	existing, ok := m.triggers[trigger.ID]
	if !ok {
		return storage.ErrNotFound
	}

	updated := trigger.Clone()
	updated.IsActive = existing.IsActive
	updated.ConsecutiveFailures = existing.ConsecutiveFailures
	updated.LastExecutionAt = existing.LastExecutionAt
	updated.CreatedAt = existing.CreatedAt
	updated.CreatedBy = existing.CreatedBy
	if existing.Webhook != nil && updated.Webhook != nil {
		updated.Webhook.WebhookID = existing.Webhook.WebhookID
	}
	if existing.Cron != nil && updated.Cron != nil {
		updated.Cron.NextRunTime = existing.Cron.NextRunTime
	}
	m.triggers[trigger.ID] = updated
	return nil
}

func (m *MockStore) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("Delete"); err != nil {
		return false, err
	}
	t, ok := m.triggers[id]
	if !ok {
		return false, nil
	}
	if webhookID := t.WebhookID(); webhookID != "" {
		m.retired[webhookID] = true
	}
	delete(m.triggers, id)

	kept := m.executions[:0]
	for _, e := range m.executions {
		if e.TriggerID != id {
			kept = append(kept, e)
		}
	}
	m.executions = kept
	return true, nil
}

func (m *MockStore) List(ctx context.Context, filter models.TriggerFilter) ([]*models.Trigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail("List"); err != nil {
		return nil, err
	}
	out := make([]*models.Trigger, 0, len(m.triggers))
	for _, t := range m.triggers {
		if filter.AgentID != "" && t.AgentID != filter.AgentID {
			continue
		}
		if filter.TriggerType != "" && t.TriggerType != filter.TriggerType {
			continue
		}
		if filter.ActiveOnly && !t.IsActive {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MockStore) ListByAgent(ctx context.Context, agentID string) ([]*models.Trigger, error) {
	return m.List(ctx, models.TriggerFilter{AgentID: agentID})
}

func (m *MockStore) ListByType(ctx context.Context, triggerType models.TriggerType) ([]*models.Trigger, error) {
	return m.List(ctx, models.TriggerFilter{TriggerType: triggerType})
}

func (m *MockStore) ListActive(ctx context.Context) ([]*models.Trigger, error) {
	return m.List(ctx, models.TriggerFilter{ActiveOnly: true})
}

func (m *MockStore) GetByWebhookID(ctx context.Context, webhookID string) (*models.Trigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail("GetByWebhookID"); err != nil {
		return nil, err
	}
	for _, t := range m.triggers {
		if t.WebhookID() == webhookID {
			return t.Clone(), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (m *MockStore) ListCronTriggersDue(ctx context.Context, before time.Time) ([]*models.Trigger, error) {
	all, err := m.List(ctx, models.TriggerFilter{TriggerType: models.TriggerTypeCron, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	if err := m.fail("ListCronTriggersDue"); err != nil {
		return nil, err
	}
	due := make([]*models.Trigger, 0, len(all))
	for _, t := range all {
		if t.Cron.NextRunTime != nil && !t.Cron.NextRunTime.After(before) {
			due = append(due, t)
		}
	}
	return due, nil
}

func (m *MockStore) WebhookIDExists(ctx context.Context, webhookID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail("WebhookIDExists"); err != nil {
		return false, err
	}
	return m.retired[webhookID] || m.webhookInUse(webhookID), nil
}

func (m *MockStore) RecordSuccess(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("RecordSuccess"); err != nil {
		return err
	}
	t, ok := m.triggers[id]
	if !ok {
		return storage.ErrNotFound
	}
	t.ConsecutiveFailures = 0
	at = at.UTC()
	t.LastExecutionAt = &at
	return nil
}

func (m *MockStore) RecordFailure(ctx context.Context, id string, at time.Time) (*models.FailureOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("RecordFailure"); err != nil {
		return nil, err
	}
	t, ok := m.triggers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	wasActive := t.IsActive
	t.ConsecutiveFailures++
	at = at.UTC()
	t.LastExecutionAt = &at

	outcome := &models.FailureOutcome{
		ConsecutiveFailures: t.ConsecutiveFailures,
		FailureThreshold:    t.FailureThreshold,
	}
	if wasActive && t.ConsecutiveFailures >= t.FailureThreshold {
		t.IsActive = false
		outcome.Disabled = true
	}
	return outcome, nil
}

func (m *MockStore) ResetFailures(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("ResetFailures"); err != nil {
		return false, err
	}
	t, ok := m.triggers[id]
	if !ok {
		return false, nil
	}
	t.ConsecutiveFailures = 0
	return true, nil
}

func (m *MockStore) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("SetActive"); err != nil {
		return false, err
	}
	t, ok := m.triggers[id]
	if !ok {
		return false, nil
	}
	t.IsActive = active
	return true, nil
}

func (m *MockStore) SetNextRunTime(ctx context.Context, id string, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("SetNextRunTime"); err != nil {
		return err
	}
	t, ok := m.triggers[id]
	if !ok {
		return storage.ErrNotFound
	}
	if t.Cron == nil {
		return nil
	}
	if next == nil {
		t.Cron.NextRunTime = nil
		return nil
	}
	v := next.UTC()
	t.Cron.NextRunTime = &v
	return nil
}

func (m *MockStore) CreateExecution(ctx context.Context, execution *models.TriggerExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.fail("CreateExecution"); err != nil {
		return err
	}
	if _, ok := m.triggers[execution.TriggerID]; !ok {
		return storage.ErrNotFound
	}
	copied := *execution
	m.executions = append(m.executions, &copied)
	return nil
}

func (m *MockStore) ListExecutionsByTrigger(ctx context.Context, triggerID string, limit int) ([]*models.TriggerExecution, error) {
	page, err := m.ListExecutions(ctx, models.ExecutionFilter{TriggerID: triggerID}, models.Page{Limit: limit})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

func (m *MockStore) CountExecutionsInPeriod(ctx context.Context, triggerID string, since, until time.Time, statuses ...models.ExecutionStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail("CountExecutionsInPeriod"); err != nil {
		return 0, err
	}
	count := 0
	for _, e := range m.executions {
		if e.TriggerID != triggerID || e.ExecutedAt.Before(since) || !e.ExecutedAt.Before(until) {
			continue
		}
		if len(statuses) > 0 && !hasStatus(statuses, e.Status) {
			continue
		}
		count++
	}
	return count, nil
}

func hasStatus(statuses []models.ExecutionStatus, status models.ExecutionStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (m *MockStore) ListExecutions(ctx context.Context, filter models.ExecutionFilter, page models.Page) (*models.ExecutionPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.fail("ListExecutions"); err != nil {
		return nil, err
	}
	page = page.Normalize()

	matched := make([]*models.TriggerExecution, 0)
	for _, e := range m.executions {
		if filter.TriggerID != "" && e.TriggerID != filter.TriggerID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.Since != nil && e.ExecutedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !e.ExecutedAt.Before(*filter.Until) {
			continue
		}
		copied := *e
		matched = append(matched, &copied)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ExecutedAt.After(matched[j].ExecutedAt)
	})

	result := &models.ExecutionPage{Total: len(matched), Limit: page.Limit, Offset: page.Offset}
	if page.Offset < len(matched) {
		end := page.Offset + page.Limit
		if end > len(matched) {
			end = len(matched)
		}
		result.Items = matched[page.Offset:end]
	}
	if result.Items == nil {
		result.Items = []*models.TriggerExecution{}
	}
	return result, nil
}

func (m *MockStore) Health(ctx context.Context) error {
	return m.fail("Health")
}

func (m *MockStore) Close() error {
	return m.fail("Close")
}

// Executions returns a copy of every recorded execution of triggerID in insertion order
func (m *MockStore) Executions(triggerID string) []*models.TriggerExecution {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.TriggerExecution, 0)
	for _, e := range m.executions {
		if e.TriggerID == triggerID {
			copied := *e
			out = append(out, &copied)
		}
	}
	return out
}

// Put stores a trigger as-is, bypassing the webhook id checks
func (m *MockStore) Put(trigger *models.Trigger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers[trigger.ID] = trigger.Clone()
}

// RetireWebhookID marks an id as used by a deleted trigger
func (m *MockStore) RetireWebhookID(webhookID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retired[webhookID] = true
}

var _ storage.TriggerStore = (*MockStore)(nil)
