// Package events publishes trigger lifecycle events (auto-disable and friends) to a message
// backend. Every backend sends the same JSON envelope; publishing is fire-and-forget from the
// caller's point of view.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/common/utils"
)

// Publisher sends one event. Implementations are safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{}) error
	Close() error
}

// Envelope is the wire format shared by every backend
type Envelope struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	OccurredAt    time.Time              `json:"occurred_at"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Data          map[string]interface{} `json:"data"`
}

// NewEnvelope stamps an event with a fresh id and the correlation id carried by ctx
func NewEnvelope(ctx context.Context, eventType string, data map[string]interface{}) Envelope {
	return Envelope{
		ID:            utils.GenerateID("evt"),
		Type:          eventType,
		OccurredAt:    time.Now().UTC(),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
		Data:          data,
	}
}

// Encode marshals the envelope, keyed by the trigger id when the data carries one
func (e Envelope) Encode() (key string, body []byte, err error) {
	body, err = json.Marshal(e)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal %s event: %w", e.Type, err)
	}
	if id, ok := e.Data["trigger_id"].(string); ok {
		key = id
	}
	return key, body, nil
}

// LogPublisher writes events to the log only
type LogPublisher struct {
	logger logging.Logger
}

func NewLogPublisher(logger logging.Logger) *LogPublisher {
	return &LogPublisher{logger: logging.OrGlobal(logger).WithFields(logging.Field{"component", "event_publisher"})}
}

func (p *LogPublisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	env := NewEnvelope(ctx, eventType, data)
	fields := []logging.Field{
		{"event_id", env.ID},
		{"event_type", eventType},
	}
	for k, v := range data {
		fields = append(fields, logging.Field{"event." + k, v})
	}
	p.logger.WithContext(ctx).Info("Event published", fields...)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Retrying retries transient publish failures of the wrapped backend
type Retrying struct {
	next   Publisher
	config utils.RetryConfig
	logger logging.Logger
}

func NewRetrying(next Publisher, config utils.RetryConfig, logger logging.Logger) *Retrying {
	return &Retrying{next: next, config: config, logger: logging.OrGlobal(logger)}
}

func (r *Retrying) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	attempt := 0
	return utils.RetryWithBackoff(ctx, r.config, func() error {
		attempt++
		err := r.next.Publish(ctx, eventType, data)
		if err != nil {
			r.logger.WithContext(ctx).Warn("Event publish attempt failed",
				logging.Field{"event_type", eventType},
				logging.Field{"attempt", attempt},
				logging.Err(err),
			)
		}
		return err
	})
}

func (r *Retrying) Close() error {
	return r.next.Close()
}
