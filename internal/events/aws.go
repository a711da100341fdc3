package events

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
)

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Exactly one of TopicARN (SNS) and QueueURL (SQS) is used
	TopicARN string
	QueueURL string
}

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// LoadAWSConfig uses static credentials when given and the default chain otherwise
func LoadAWSConfig(ctx context.Context, cfg AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.ConfigError("failed to load AWS config: " + err.Error())
	}
	return awsCfg, nil
}

// SNSPublisher publishes envelopes to a topic for fan-out
type SNSPublisher struct {
	client   snsAPI
	topicARN string
	logger   logging.Logger
}

func NewSNSPublisher(ctx context.Context, cfg AWSConfig, logger logging.Logger) (*SNSPublisher, error) {
	if cfg.TopicARN == "" {
		return nil, errors.ConfigError("sns topic arn is required")
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newSNSPublisher(sns.NewFromConfig(awsCfg), cfg.TopicARN, logger), nil
}

func newSNSPublisher(client snsAPI, topicARN string, logger logging.Logger) *SNSPublisher {
	return &SNSPublisher{
		client:   client,
		topicARN: topicARN,
		logger:   logging.OrGlobal(logger).WithFields(logging.Field{"component", "sns_event_publisher"}),
	}
}

func (p *SNSPublisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	env := NewEnvelope(ctx, eventType, data)
	key, body, err := env.Encode()
	if err != nil {
		return err
	}

	attributes := map[string]snstypes.MessageAttributeValue{
		"EventType": {DataType: aws.String("String"), StringValue: aws.String(eventType)},
		"EventID":   {DataType: aws.String("String"), StringValue: aws.String(env.ID)},
	}
	if key != "" {
		attributes["TriggerID"] = snstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(key)}
	}

	result, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(p.topicARN),
		Message:           aws.String(string(body)),
		MessageAttributes: attributes,
	})
	if err != nil {
		return errors.DependencyUnavailableError("sns", err)
	}

	p.logger.WithContext(ctx).Debug("Event published to SNS",
		logging.Field{"event_id", env.ID},
		logging.Field{"message_id", aws.ToString(result.MessageId)},
		logging.Field{"topic_arn", p.topicARN},
	)
	return nil
}

func (p *SNSPublisher) Close() error { return nil }

// SQSPublisher sends envelopes straight to a queue
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
	logger   logging.Logger
}

func NewSQSPublisher(ctx context.Context, cfg AWSConfig, logger logging.Logger) (*SQSPublisher, error) {
	if cfg.QueueURL == "" {
		return nil, errors.ConfigError("sqs queue url is required")
	}
	awsCfg, err := LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newSQSPublisher(sqs.NewFromConfig(awsCfg), cfg.QueueURL, logger), nil
}

func newSQSPublisher(client sqsAPI, queueURL string, logger logging.Logger) *SQSPublisher {
	return &SQSPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logging.OrGlobal(logger).WithFields(logging.Field{"component", "sqs_event_publisher"}),
	}
}

func (p *SQSPublisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	env := NewEnvelope(ctx, eventType, data)
	_, body, err := env.Encode()
	if err != nil {
		return err
	}

	result, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"EventType": {DataType: aws.String("String"), StringValue: aws.String(eventType)},
			"EventID":   {DataType: aws.String("String"), StringValue: aws.String(env.ID)},
		},
	})
	if err != nil {
		return errors.DependencyUnavailableError("sqs", err)
	}

	p.logger.WithContext(ctx).Debug("Event sent to SQS",
		logging.Field{"event_id", env.ID},
		logging.Field{"message_id", aws.ToString(result.MessageId)},
		logging.Field{"queue_url", p.queueURL},
	)
	return nil
}

func (p *SQSPublisher) Close() error { return nil }
