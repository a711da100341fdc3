package events

import (
	"context"
	"sync"

	"github.com/streadway/amqp"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
)

type RabbitMQConfig struct {
	URL string
	// Exchange may be empty to publish straight to the queue named by RoutingKey
	Exchange   string
	RoutingKey string
}

// amqpChannel is the subset of *amqp.Channel the publisher uses
type amqpChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc opens a channel; the returned closer releases the underlying connection
type dialFunc func(url string) (amqpChannel, func() error, error)

func dialAMQP(url string) (amqpChannel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

// RabbitMQPublisher publishes persistent JSON messages. An AMQP channel is not safe for
// concurrent publishing, so publishes are serialized; a broken channel is redialled on the
// next publish.
type RabbitMQPublisher struct {
	config RabbitMQConfig
	dial   dialFunc
	logger logging.Logger

	mu        sync.Mutex
	channel   amqpChannel
	closeConn func() error
	closed    bool
}

func NewRabbitMQPublisher(config RabbitMQConfig, logger logging.Logger) (*RabbitMQPublisher, error) {
	return newRabbitMQPublisher(config, dialAMQP, logger)
}

func newRabbitMQPublisher(config RabbitMQConfig, dial dialFunc, logger logging.Logger) (*RabbitMQPublisher, error) {
	if config.URL == "" {
		return nil, errors.ConfigError("rabbitmq url is required")
	}
	if config.RoutingKey == "" {
		return nil, errors.ConfigError("rabbitmq routing key is required")
	}
	p := &RabbitMQPublisher{
		config: config,
		dial:   dial,
		logger: logging.OrGlobal(logger).WithFields(
			logging.Field{"component", "rabbitmq_event_publisher"},
			logging.Field{"exchange", config.Exchange},
		),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.connectLocked(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RabbitMQPublisher) connectLocked() error {
	ch, closeConn, err := p.dial(p.config.URL)
	if err != nil {
		return errors.DependencyUnavailableError("rabbitmq", err)
	}
	p.channel = ch
	p.closeConn = closeConn
	return nil
}

func (p *RabbitMQPublisher) resetLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.closeConn != nil {
		_ = p.closeConn()
		p.closeConn = nil
	}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := NewEnvelope(ctx, eventType, data)
	_, body, err := env.Encode()
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.ID,
		CorrelationId: env.CorrelationID,
		Type:          eventType,
		Timestamp:     env.OccurredAt,
		Body:          body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.InternalError("rabbitmq publisher is closed", nil)
	}
	if p.channel == nil {
		if err := p.connectLocked(); err != nil {
			return err
		}
	}
	if err := p.channel.Publish(p.config.Exchange, p.config.RoutingKey, false, false, msg); err != nil {
		p.resetLocked()
		return errors.DependencyUnavailableError("rabbitmq", err)
	}

	p.logger.WithContext(ctx).Debug("Event published to RabbitMQ",
		logging.Field{"event_id", env.ID},
		logging.Field{"routing_key", p.config.RoutingKey},
	)
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.resetLocked()
	return nil
}
