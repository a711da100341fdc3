// Package circuitbreaker provides circuit breaker functionality using Sony's gobreaker
package circuitbreaker

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"

	"github.com/sony/gobreaker"
)

// Config holds the configuration for a circuit breaker
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures int
	// Timeout is how long the circuit stays open before going half-open
	Timeout time.Duration
	// MaxConcurrentRequests is the number of trial requests allowed while half-open
	MaxConcurrentRequests int
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxFailures:           5,
		Timeout:               60 * time.Second,
		MaxConcurrentRequests: 1,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.MaxFailures <= 0 {
		return fmt.Errorf("MaxFailures must be positive, got %d", c.MaxFailures)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("Timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxConcurrentRequests <= 0 {
		return fmt.Errorf("MaxConcurrentRequests must be positive, got %d", c.MaxConcurrentRequests)
	}
	return nil
}

// Presets for the collaborators the trigger engine calls out to
var (
	// LLMConfig tolerates the occasional slow completion
	LLMConfig = Config{MaxFailures: 5, Timeout: 30 * time.Second, MaxConcurrentRequests: 1}
	// TaskServiceConfig fails fast so executions are recorded promptly
	TaskServiceConfig = Config{MaxFailures: 3, Timeout: 30 * time.Second, MaxConcurrentRequests: 2}
	// AgentLookupConfig guards the agent directory used at trigger creation
	AgentLookupConfig = Config{MaxFailures: 3, Timeout: 15 * time.Second, MaxConcurrentRequests: 1}
)

// State represents the current state of the circuit breaker
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker guards calls to one external dependency
type Breaker struct {
	dependency string
	breaker    *gobreaker.CircuitBreaker
	logger     logging.Logger
}

// New creates a breaker for dependency. Invalid configs fall back to DefaultConfig.
func New(dependency string, config Config, logger logging.Logger) *Breaker {
	logger = logging.OrGlobal(logger)
	if err := config.Validate(); err != nil {
		logger.Warn("Invalid circuit breaker config, using defaults",
			logging.Field{"error", err.Error()},
			logging.Field{"dependency", dependency},
		)
		config = DefaultConfig()
	}

	settings := gobreaker.Settings{
		Name:        dependency,
		MaxRequests: uint32(config.MaxConcurrentRequests),
		Interval:    time.Minute,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.MaxFailures)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				logging.Field{"dependency", name},
				logging.Field{"from", from.String()},
				logging.Field{"to", to.String()},
			)
		},
		IsSuccessful: isSuccessful,
	}

	return &Breaker{
		dependency: dependency,
		breaker:    gobreaker.NewCircuitBreaker(settings),
		logger:     logger,
	}
}

// isSuccessful keeps caller mistakes and caller cancellations from tripping the breaker
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	if stderrors.Is(err, context.Canceled) {
		return true
	}
	switch errors.GetType(err) {
	case errors.ErrTypeValidation, errors.ErrTypeNotFound:
		return true
	}
	return false
}

// Execute runs fn through the breaker. While the circuit is open fn is not called and a
// DependencyUnavailableError naming the dependency is returned.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})

	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.DependencyUnavailableError(b.dependency, fmt.Errorf("circuit breaker: %w", err))
	}
	return err
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	switch b.breaker.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Dependency returns the name of the guarded dependency
func (b *Breaker) Dependency() string {
	return b.dependency
}
