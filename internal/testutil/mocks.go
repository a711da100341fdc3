package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trigger-engine/internal/models"
)

// MockTaskService records created and submitted tasks
type MockTaskService struct {
	mu        sync.Mutex
	created   []*models.Task
	submitted []*models.Task
	nextID    int

	// Delay is applied before creating a task; it respects ctx cancellation
	Delay time.Duration

	// Control error injection
	ErrorOnMethod map[string]error
}

func NewMockTaskService() *MockTaskService {
	return &MockTaskService{ErrorOnMethod: make(map[string]error)}
}

func (m *MockTaskService) CreateTaskFromParams(ctx context.Context, agentID string, params map[string]interface{}) (*models.Task, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ErrorOnMethod["CreateTaskFromParams"]; err != nil {
		return nil, err
	}
	m.nextID++
	task := &models.Task{
		ID:         fmt.Sprintf("task-%d", m.nextID),
		AgentID:    agentID,
		Parameters: params,
		WorkflowID: fmt.Sprintf("wf-%d", m.nextID),
		RunID:      fmt.Sprintf("run-%d", m.nextID),
		CreatedAt:  time.Now(),
	}
	m.created = append(m.created, task)
	return task, nil
}

func (m *MockTaskService) SubmitTask(ctx context.Context, task *models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ErrorOnMethod["SubmitTask"]; err != nil {
		return err
	}
	m.submitted = append(m.submitted, task)
	return nil
}

func (m *MockTaskService) Created() []*models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Task(nil), m.created...)
}

func (m *MockTaskService) Submitted() []*models.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Task(nil), m.submitted...)
}

// ScheduleCall is one recorded ScheduleManager call
type ScheduleCall struct {
	Method         string
	TriggerID      string
	CronExpression string
	Timezone       string
}

// MockScheduleManager records every call it receives
type MockScheduleManager struct {
	mu    sync.Mutex
	calls []ScheduleCall

	// Control error injection
	ErrorOnMethod map[string]error
}

func NewMockScheduleManager() *MockScheduleManager {
	return &MockScheduleManager{ErrorOnMethod: make(map[string]error)}
}

func (m *MockScheduleManager) record(call ScheduleCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
	return m.ErrorOnMethod[call.Method]
}

func (m *MockScheduleManager) CreateSchedule(ctx context.Context, triggerID, cronExpression, timezone string) error {
	return m.record(ScheduleCall{"CreateSchedule", triggerID, cronExpression, timezone})
}

func (m *MockScheduleManager) UpdateSchedule(ctx context.Context, triggerID, cronExpression, timezone string) error {
	return m.record(ScheduleCall{"UpdateSchedule", triggerID, cronExpression, timezone})
}

func (m *MockScheduleManager) PauseSchedule(ctx context.Context, triggerID string) error {
	return m.record(ScheduleCall{Method: "PauseSchedule", TriggerID: triggerID})
}

func (m *MockScheduleManager) ResumeSchedule(ctx context.Context, triggerID string) error {
	return m.record(ScheduleCall{Method: "ResumeSchedule", TriggerID: triggerID})
}

func (m *MockScheduleManager) DeleteSchedule(ctx context.Context, triggerID string) error {
	return m.record(ScheduleCall{Method: "DeleteSchedule", TriggerID: triggerID})
}

// Calls returns the recorded calls, optionally only those of one method
func (m *MockScheduleManager) Calls(method string) []ScheduleCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ScheduleCall, 0, len(m.calls))
	for _, c := range m.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// PublishedEvent is one recorded publish
type PublishedEvent struct {
	Type string
	Data map[string]interface{}
}

type MockPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent

	// Control error injection
	ErrorOnMethod map[string]error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{ErrorOnMethod: make(map[string]error)}
}

// Publish records the event even when an error is injected
func (m *MockPublisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, PublishedEvent{Type: eventType, Data: data})
	return m.ErrorOnMethod["Publish"]
}

func (m *MockPublisher) Events(eventType string) []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedEvent, 0, len(m.events))
	for _, e := range m.events {
		if eventType == "" || e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MockAgentLookup knows a fixed set of agents
type MockAgentLookup struct {
	mu     sync.RWMutex
	agents map[string]bool

	// Control error injection
	ErrorOnMethod map[string]error
}

func NewMockAgentLookup(agentIDs ...string) *MockAgentLookup {
	m := &MockAgentLookup{agents: make(map[string]bool), ErrorOnMethod: make(map[string]error)}
	for _, id := range agentIDs {
		m.agents[id] = true
	}
	return m
}

func (m *MockAgentLookup) AgentExists(ctx context.Context, agentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.ErrorOnMethod["AgentExists"]; err != nil {
		return false, err
	}
	return m.agents[agentID], nil
}

// MockCompleter returns canned completions in order, repeating the last one
type MockCompleter struct {
	mu      sync.Mutex
	replies []string
	prompts []string

	// Delay is applied before replying; it respects ctx cancellation
	Delay time.Duration

	// Control error injection
	ErrorOnMethod map[string]error
}

func NewMockCompleter(replies ...string) *MockCompleter {
	return &MockCompleter{replies: replies, ErrorOnMethod: make(map[string]error)}
}

func (m *MockCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.prompts = append(m.prompts, userPrompt)
	if err := m.ErrorOnMethod["Complete"]; err != nil {
		return "", err
	}
	if len(m.replies) == 0 {
		return "", nil
	}
	reply := m.replies[0]
	if len(m.replies) > 1 {
		m.replies = m.replies[1:]
	}
	return reply, nil
}

func (m *MockCompleter) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
