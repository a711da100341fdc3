// Package ratelimit bounds how often triggers run.
//
// ExecutionWindow enforces max_executions_per_hour over the trailing hour, counting
// either the stored execution history or a Redis sorted set shared by all replicas.
// WebhookLimiter is a token bucket per webhook id applied at ingress.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/locks"
	"trigger-engine/internal/models"
	"trigger-engine/internal/redis"
)

// Window is the period covered by max_executions_per_hour
const Window = time.Hour

// counted are the statuses that consume the hourly budget; skipped runs never do
var counted = []models.ExecutionStatus{
	models.ExecutionSuccess,
	models.ExecutionFailed,
	models.ExecutionTimeout,
}

// ExecutionWindow decides whether a trigger still has budget in the trailing hour.
// A slot is reserved and checked in one step so concurrent attempts on one trigger
// cannot all pass on the same count.
type ExecutionWindow interface {
	// Reserve holds a slot for executionID when fewer than limit counted executions
	// (including held slots) fall in the window ending at now
	Reserve(ctx context.Context, triggerID, executionID string, limit int, now time.Time) (bool, error)
	// Settle closes a reservation once the attempt is recorded. counted is false for
	// attempts that were skipped or could not be stored; their slot is given back.
	Settle(ctx context.Context, triggerID, executionID string, counted bool) error
}

// ExecutionCounter is the slice of the trigger store the store-backed window needs
type ExecutionCounter interface {
	CountExecutionsInPeriod(ctx context.Context, triggerID string, since, until time.Time, statuses ...models.ExecutionStatus) (int, error)
}

// storeWindow adds the attempts still in flight in this process to the stored count.
// Replicas without Redis only see each other's executions once they are stored.
type storeWindow struct {
	counter ExecutionCounter
	keys    *locks.KeyedMutex

	mu      sync.Mutex
	pending map[string]map[string]struct{}
}

// NewStoreWindow counts executions already persisted by the store plus the ones in flight
func NewStoreWindow(counter ExecutionCounter) ExecutionWindow {
	return &storeWindow{
		counter: counter,
		keys:    locks.NewKeyedMutex(),
		pending: make(map[string]map[string]struct{}),
	}
}

func (s *storeWindow) Reserve(ctx context.Context, triggerID, executionID string, limit int, now time.Time) (bool, error) {
	unlock, err := s.keys.Lock(ctx, triggerID)
	if err != nil {
		return false, errors.TimeoutError("throttle reservation", err)
	}
	defer unlock()

	// until is exclusive in the store, so nudge it past now
	count, err := s.counter.CountExecutionsInPeriod(ctx, triggerID, now.Add(-Window), now.Add(time.Millisecond), counted...)
	if err != nil {
		return false, errors.InternalError("failed to count executions", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	held := s.pending[triggerID]
	if count+len(held) >= limit {
		return false, nil
	}
	if held == nil {
		held = make(map[string]struct{})
		s.pending[triggerID] = held
	}
	held[executionID] = struct{}{}
	return true, nil
}

// Settle drops the in-flight hold; a counted attempt is in the store by now
func (s *storeWindow) Settle(_ context.Context, triggerID, executionID string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending[triggerID], executionID)
	if len(s.pending[triggerID]) == 0 {
		delete(s.pending, triggerID)
	}
	return nil
}

// inFlight reports how many slots are held for triggerID
func (s *storeWindow) inFlight(triggerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[triggerID])
}

type redisWindow struct {
	client *redis.Client
}

// NewRedisWindow keeps the window in Redis so replicas share one budget per trigger
func NewRedisWindow(client *redis.Client) ExecutionWindow {
	return &redisWindow{client: client}
}

func windowKey(triggerID string) string {
	return fmt.Sprintf("trigger_executions:%s", triggerID)
}

func (r *redisWindow) Reserve(ctx context.Context, triggerID, executionID string, limit int, now time.Time) (bool, error) {
	ok, err := r.client.ReserveInWindow(ctx, windowKey(triggerID), executionID, now, Window, limit)
	if err != nil {
		return false, errors.DependencyUnavailableError("redis", err)
	}
	return ok, nil
}

// Settle keeps counted entries in the set; they age out with the window
func (r *redisWindow) Settle(ctx context.Context, triggerID, executionID string, counted bool) error {
	if counted {
		return nil
	}
	if err := r.client.RemoveFromWindow(ctx, windowKey(triggerID), executionID); err != nil {
		return errors.DependencyUnavailableError("redis", err)
	}
	return nil
}
