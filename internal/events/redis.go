package events

import (
	"context"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/redis"
)

// streamMaxLen bounds the replay stream kept next to the pub/sub channel
const streamMaxLen = 10000

// RedisPublisher PUBLISHes the envelope on a channel and appends it to "<channel>:log" so
// consumers that were offline can catch up.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	stream  string
	logger  logging.Logger
}

func NewRedisPublisher(client *redis.Client, channel string, logger logging.Logger) (*RedisPublisher, error) {
	if client == nil {
		return nil, errors.ConfigError("redis event publisher requires a redis client")
	}
	if channel == "" {
		return nil, errors.ConfigError("redis event publisher requires a channel")
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		stream:  channel + ":log",
		logger:  logging.OrGlobal(logger).WithFields(logging.Field{"component", "redis_event_publisher"}),
	}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	env := NewEnvelope(ctx, eventType, data)
	key, body, err := env.Encode()
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, p.channel, body); err != nil {
		return errors.DependencyUnavailableError("redis", err)
	}
	if _, err := p.client.AppendToStream(ctx, p.stream, map[string]interface{}{
		"id":         env.ID,
		"type":       eventType,
		"trigger_id": key,
		"payload":    string(body),
	}, streamMaxLen); err != nil {
		// The live channel already has the event
		p.logger.WithContext(ctx).Warn("Failed to append event to replay stream",
			logging.Field{"stream", p.stream},
			logging.Err(err),
		)
	}

	p.logger.WithContext(ctx).Debug("Event published to Redis",
		logging.Field{"event_id", env.ID},
		logging.Field{"channel", p.channel},
	)
	return nil
}

// Close leaves the shared client open; its owner closes it
func (p *RedisPublisher) Close() error { return nil }
