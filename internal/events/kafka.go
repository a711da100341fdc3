package events

import (
	"context"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
)

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// KafkaPublisher sends envelopes with a sync producer, keyed by trigger id so that the events
// of one trigger stay on one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   logging.Logger
}

// NewSaramaConfig returns an idempotent, all-acks producer configuration
func NewSaramaConfig(clientID string) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 10
	sc.Producer.Retry.Backoff = 100 * time.Millisecond
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	if clientID = strings.TrimSpace(clientID); clientID != "" {
		sc.ClientID = clientID
	}
	return sc
}

func NewKafkaPublisher(cfg KafkaConfig, logger logging.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.ConfigError("kafka brokers is empty")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg.ClientID))
	if err != nil {
		return nil, errors.DependencyUnavailableError("kafka", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.Topic, logger)
}

// NewKafkaPublisherWithProducer wraps an existing producer; the publisher takes ownership of it
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, logger logging.Logger) (*KafkaPublisher, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, errors.ConfigError("kafka topic is empty")
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		logger:   logging.OrGlobal(logger).WithFields(logging.Field{"component", "kafka_event_publisher"}),
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := NewEnvelope(ctx, eventType, data)
	key, body, err := env.Encode()
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(eventType)},
			{Key: []byte("event_id"), Value: []byte(env.ID)},
		},
		Timestamp: env.OccurredAt,
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return errors.DependencyUnavailableError("kafka", err)
	}

	p.logger.WithContext(ctx).Debug("Event published to Kafka",
		logging.Field{"event_id", env.ID},
		logging.Field{"topic", p.topic},
		logging.Field{"partition", partition},
		logging.Field{"offset", offset},
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
