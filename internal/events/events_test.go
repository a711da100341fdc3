package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/config"
	"trigger-engine/internal/models"
	"trigger-engine/internal/redis"
)

func autoDisabled() map[string]interface{} {
	return map[string]interface{}{
		"trigger_id":           "trg_1",
		"agent_id":             "agent-1",
		"consecutive_failures": 5,
		"failure_threshold":    5,
		"reason":               models.AutoDisableReason,
	}
}

func decodeEnvelope(t *testing.T, body []byte) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(body, &env))
	return env
}

func TestEnvelope(t *testing.T) {
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-1")
	env := NewEnvelope(ctx, models.EventTriggerAutoDisabled, autoDisabled())

	assert.NotEmpty(t, env.ID)
	assert.Equal(t, "corr-1", env.CorrelationID)
	assert.WithinDuration(t, time.Now(), env.OccurredAt, time.Minute)

	key, body, err := env.Encode()
	require.NoError(t, err)
	assert.Equal(t, "trg_1", key)

	decoded := decodeEnvelope(t, body)
	assert.Equal(t, models.EventTriggerAutoDisabled, decoded.Type)
	assert.Equal(t, "agent-1", decoded.Data["agent_id"])

	_, _, err = NewEnvelope(ctx, "bad", map[string]interface{}{"ch": make(chan int)}).Encode()
	assert.Error(t, err)

	key, _, err = NewEnvelope(ctx, "other", map[string]interface{}{"trigger_id": 7}).Encode()
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(logging.NewNopLogger())
	assert.NoError(t, p.Publish(context.Background(), models.EventTriggerAutoDisabled, autoDisabled()))
	assert.NoError(t, p.Close())
}

type flakyPublisher struct {
	mu     sync.Mutex
	calls  int
	errs   []error
	closed bool
}

func (f *flakyPublisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *flakyPublisher) Close() error {
	f.closed = true
	return nil
}

func TestRetrying(t *testing.T) {
	unavailable := errors.DependencyUnavailableError("broker", stderrors.New("connection reset"))
	retry := publishRetryConfig()
	retry.InitialDelay = time.Millisecond

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{"first attempt", nil, 1, false},
		{"recovers", []error{unavailable}, 2, false},
		{"gives up", []error{unavailable, unavailable, unavailable}, 3, true},
		{"not retryable", []error{errors.ConfigError("bad topic")}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &flakyPublisher{errs: tt.errs}
			p := NewRetrying(next, retry, logging.NewNopLogger())

			err := p.Publish(context.Background(), "evt", nil)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, next.calls)

			require.NoError(t, p.Close())
			assert.True(t, next.closed)
		})
	}
}

func setupRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client, err := redis.NewClient(context.Background(), &redis.Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRedisPublisher(t *testing.T) {
	client, mr := setupRedis(t)
	ctx := context.Background()

	_, err := NewRedisPublisher(nil, "trigger-events", nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	_, err = NewRedisPublisher(client, "", nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	p, err := NewRedisPublisher(client, "trigger-events", logging.NewNopLogger())
	require.NoError(t, err)

	sub := client.Subscribe(ctx, "trigger-events")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, models.EventTriggerAutoDisabled, autoDisabled()))

	select {
	case msg := <-sub.Channel():
		env := decodeEnvelope(t, []byte(msg.Payload))
		assert.Equal(t, models.EventTriggerAutoDisabled, env.Type)
		assert.Equal(t, "trg_1", env.Data["trigger_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("no message on channel")
	}

	entries, err := mr.Stream("trigger-events:log")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Values, "trg_1")

	mr.Close()
	err = p.Publish(ctx, models.EventTriggerAutoDisabled, autoDisabled())
	assert.True(t, errors.IsType(err, errors.ErrTypeDependency))
}

func TestKafkaPublisher(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "trigger-events", msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "trg_1", string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		assert.Equal(t, models.EventTriggerAutoDisabled, decodeEnvelope(t, value).Type)
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	_, err := NewKafkaPublisherWithProducer(producer, " ", nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	p, err := NewKafkaPublisherWithProducer(producer, "trigger-events", logging.NewNopLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, models.EventTriggerAutoDisabled, autoDisabled()))

	err = p.Publish(ctx, models.EventTriggerAutoDisabled, autoDisabled())
	assert.True(t, errors.IsType(err, errors.ErrTypeDependency))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, p.Publish(cancelled, "evt", nil), context.Canceled)

	require.NoError(t, p.Close())
}

func TestNewKafkaPublisher_Config(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"}, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	sc := NewSaramaConfig(" engine ")
	assert.Equal(t, "engine", sc.ClientID)
	assert.True(t, sc.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
}

type fakeChannel struct {
	mu        sync.Mutex
	published []amqp.Publishing
	keys      []string
	failNext  error
	closed    bool
}

func (c *fakeChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext != nil {
		err := c.failNext
		c.failNext = nil
		return err
	}
	c.published = append(c.published, msg)
	c.keys = append(c.keys, exchange+"/"+key)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestRabbitMQPublisher(t *testing.T) {
	var dials int
	channels := []*fakeChannel{{failNext: amqp.ErrClosed}, {}}
	dial := func(url string) (amqpChannel, func() error, error) {
		if dials >= len(channels) {
			return nil, nil, stderrors.New("dial refused")
		}
		ch := channels[dials]
		dials++
		return ch, func() error { return nil }, nil
	}

	_, err := newRabbitMQPublisher(RabbitMQConfig{RoutingKey: "k"}, dial, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	_, err = newRabbitMQPublisher(RabbitMQConfig{URL: "amqp://x"}, dial, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	p, err := newRabbitMQPublisher(RabbitMQConfig{URL: "amqp://x", Exchange: "events", RoutingKey: "trigger-events"}, dial, logging.NewNopLogger())
	require.NoError(t, err)
	ctx := logging.ContextWithCorrelationID(context.Background(), "corr-9")

	err = p.Publish(ctx, models.EventTriggerAutoDisabled, autoDisabled())
	assert.True(t, errors.IsType(err, errors.ErrTypeDependency))
	assert.True(t, channels[0].closed, "broken channel is dropped")

	require.NoError(t, p.Publish(ctx, models.EventTriggerAutoDisabled, autoDisabled()))
	require.Len(t, channels[1].published, 1)
	msg := channels[1].published[0]
	assert.Equal(t, "events/trigger-events", channels[1].keys[0])
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "corr-9", msg.CorrelationId)
	assert.Equal(t, models.EventTriggerAutoDisabled, msg.Type)
	assert.Equal(t, msg.MessageId, decodeEnvelope(t, msg.Body).ID)

	require.NoError(t, p.Close())
	assert.True(t, channels[1].closed)
	assert.True(t, errors.IsType(p.Publish(ctx, "evt", nil), errors.ErrTypeInternal))
}

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-2")}, nil
}

func TestSNSPublisher(t *testing.T) {
	client := &fakeSNS{}
	p := newSNSPublisher(client, "arn:aws:sns:eu-west-1:123:trigger-events", logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, models.EventTriggerAutoDisabled, autoDisabled()))
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "arn:aws:sns:eu-west-1:123:trigger-events", aws.ToString(in.TopicArn))
	assert.Equal(t, "trg_1", aws.ToString(in.MessageAttributes["TriggerID"].StringValue))
	assert.Equal(t, models.EventTriggerAutoDisabled, decodeEnvelope(t, []byte(aws.ToString(in.Message))).Type)

	client.err = stderrors.New("throttled")
	assert.True(t, errors.IsType(p.Publish(ctx, "evt", nil), errors.ErrTypeDependency))
	assert.NoError(t, p.Close())

	_, err := NewSNSPublisher(ctx, AWSConfig{Region: "eu-west-1"}, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestSQSPublisher(t *testing.T) {
	client := &fakeSQS{}
	p := newSQSPublisher(client, "https://sqs.eu-west-1.amazonaws.com/123/trigger-events", logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, p.Publish(ctx, models.EventTriggerAutoDisabled, autoDisabled()))
	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, models.EventTriggerAutoDisabled, aws.ToString(in.MessageAttributes["EventType"].StringValue))
	assert.Equal(t, "agent-1", decodeEnvelope(t, []byte(aws.ToString(in.MessageBody))).Data["agent_id"])

	client.err = stderrors.New("queue gone")
	assert.True(t, errors.IsType(p.Publish(ctx, "evt", nil), errors.ErrTypeDependency))

	_, err := NewSQSPublisher(ctx, AWSConfig{Region: "eu-west-1"}, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestPubSubPublisher(t *testing.T) {
	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	_, err = srv.GServer.CreateTopic(ctx, &pubsubpb.Topic{Name: "projects/proj/topics/trigger-events"})
	require.NoError(t, err)

	_, err = NewPubSubPublisher(ctx, PubSubConfig{ProjectID: "proj", TopicID: "missing"}, nil, option.WithGRPCConn(conn))
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	p, err := NewPubSubPublisher(ctx, PubSubConfig{ProjectID: "proj", TopicID: "trigger-events"}, logging.NewNopLogger(), option.WithGRPCConn(conn))
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, models.EventTriggerAutoDisabled, autoDisabled()))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, models.EventTriggerAutoDisabled, msgs[0].Attributes["event_type"])
	assert.Equal(t, "trg_1", msgs[0].OrderingKey)
	assert.Equal(t, "trg_1", decodeEnvelope(t, msgs[0].Data).Data["trigger_id"])

	require.NoError(t, p.Close())

	_, err = NewPubSubPublisher(ctx, PubSubConfig{ProjectID: "proj"}, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestNew(t *testing.T) {
	client, _ := setupRedis(t)
	ctx := context.Background()

	p, err := New(ctx, &config.Config{EventsBackend: config.EventsBackendLog}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &LogPublisher{}, p)

	p, err = New(ctx, &config.Config{EventsBackend: config.EventsBackendRedis, EventsTopic: "trigger-events"}, client, nil)
	require.NoError(t, err)
	assert.IsType(t, &Retrying{}, p)
	assert.NoError(t, p.Publish(ctx, models.EventTriggerAutoDisabled, autoDisabled()))

	_, err = New(ctx, &config.Config{EventsBackend: config.EventsBackendRedis, EventsTopic: "trigger-events"}, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = New(ctx, &config.Config{EventsBackend: config.EventsBackendKafka, EventsTopic: "t"}, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = New(ctx, &config.Config{EventsBackend: "carrier-pigeon"}, nil, nil)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}
