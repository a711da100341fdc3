package events

import (
	"context"
	"time"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/common/utils"
	"trigger-engine/internal/config"
	"trigger-engine/internal/redis"
)

func publishRetryConfig() utils.RetryConfig {
	return utils.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2.0,
		RetryableErrors: func(err error) bool {
			return errors.IsType(err, errors.ErrTypeDependency)
		},
	}
}

// New builds the publisher selected by cfg.EventsBackend. rdb is only needed for the redis backend.
func New(ctx context.Context, cfg *config.Config, rdb *redis.Client, logger logging.Logger) (Publisher, error) {
	logger = logging.OrGlobal(logger)

	var (
		p   Publisher
		err error
	)
	switch cfg.EventsBackend {
	case "", config.EventsBackendLog:
		return NewLogPublisher(logger), nil
	case config.EventsBackendRedis:
		p, err = NewRedisPublisher(rdb, cfg.EventsTopic, logger)
	case config.EventsBackendKafka:
		// sarama retries on its own
		kafka, err := NewKafkaPublisher(KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.EventsTopic, ClientID: "trigger-engine"}, logger)
		if err != nil {
			return nil, err
		}
		return kafka, nil
	case config.EventsBackendRabbitMQ:
		p, err = NewRabbitMQPublisher(RabbitMQConfig{
			URL:        cfg.RabbitMQURL,
			Exchange:   cfg.RabbitMQExchange,
			RoutingKey: cfg.EventsTopic,
		}, logger)
	case config.EventsBackendSNS, config.EventsBackendSQS:
		awsCfg := AWSConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			TopicARN:        cfg.SNSTopicARN,
			QueueURL:        cfg.SQSQueueURL,
		}
		if cfg.EventsBackend == config.EventsBackendSNS {
			p, err = NewSNSPublisher(ctx, awsCfg, logger)
		} else {
			p, err = NewSQSPublisher(ctx, awsCfg, logger)
		}
	case config.EventsBackendPubSub:
		// the client batches and retries on its own
		ps, err := NewPubSubPublisher(ctx, PubSubConfig{
			ProjectID:       cfg.GCPProjectID,
			TopicID:         cfg.GCPTopicID,
			CredentialsFile: cfg.GCPCredentialsFile,
		}, logger)
		if err != nil {
			return nil, err
		}
		return ps, nil
	default:
		return nil, errors.ConfigError("unsupported events backend: " + cfg.EventsBackend)
	}
	if err != nil {
		return nil, err
	}
	return NewRetrying(p, publishRetryConfig(), logger), nil
}
