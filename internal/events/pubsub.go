package events

import (
	"context"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
)

type PubSubConfig struct {
	ProjectID       string
	TopicID         string
	CredentialsFile string
}

// PubSubPublisher publishes to a Google Cloud Pub/Sub topic, ordered per trigger id
type PubSubPublisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger logging.Logger
}

// NewPubSubPublisher connects and checks that the topic exists. Extra client options are
// appended after the credentials option.
func NewPubSubPublisher(ctx context.Context, cfg PubSubConfig, logger logging.Logger, opts ...option.ClientOption) (*PubSubPublisher, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, errors.ConfigError("pubsub project id and topic id are required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	// Without credentials the client falls back to Application Default Credentials
	clientOpts = append(clientOpts, opts...)

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, errors.DependencyUnavailableError("pubsub", err)
	}

	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, errors.DependencyUnavailableError("pubsub", err)
	}
	if !exists {
		client.Close()
		return nil, errors.ConfigError("pubsub topic " + cfg.TopicID + " does not exist")
	}

	topic.EnableMessageOrdering = true
	topic.PublishSettings.CountThreshold = 10
	topic.PublishSettings.DelayThreshold = 100 * time.Millisecond

	return &PubSubPublisher{
		client: client,
		topic:  topic,
		logger: logging.OrGlobal(logger).WithFields(
			logging.Field{"component", "pubsub_event_publisher"},
			logging.Field{"topic", cfg.TopicID},
		),
	}, nil
}

func (p *PubSubPublisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	env := NewEnvelope(ctx, eventType, data)
	key, body, err := env.Encode()
	if err != nil {
		return err
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:        body,
		OrderingKey: key,
		Attributes: map[string]string{
			"event_type": eventType,
			"event_id":   env.ID,
		},
	})
	serverID, err := result.Get(ctx)
	if err != nil {
		if key != "" {
			// A failed publish pauses its ordering key until resumed
			p.topic.ResumePublish(key)
		}
		return errors.DependencyUnavailableError("pubsub", err)
	}

	p.logger.WithContext(ctx).Debug("Event published to Pub/Sub",
		logging.Field{"event_id", env.ID},
		logging.Field{"message_id", serverID},
	)
	return nil
}

func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
