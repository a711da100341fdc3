package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvVars = []string{
	"PORT", "LOG_LEVEL", "AUTH_ENABLED", "JWT_SECRET", "CONFIG_ENCRYPTION_KEY", "METRICS_ENABLED",
	"DATABASE_TYPE", "DATABASE_PATH", "POSTGRES_HOST", "POSTGRES_PORT", "POSTGRES_DB", "POSTGRES_USER",
	"POSTGRES_PASSWORD", "POSTGRES_SSL_MODE", "REDIS_ADDRESS", "REDIS_PASSWORD", "REDIS_DB",
	"REDIS_POOL_SIZE", "LOCKS_ENABLED", "LOCK_TTL", "DEFAULT_FAILURE_THRESHOLD", "SAFETY_AT_RISK_RATIO",
	"CONDITION_TIMEOUT", "TASK_TIMEOUT", "SCHEDULE_ENABLED", "SCHEDULE_CATCH_UP",
	"WEBHOOK_STRICT_STATUS_CODES", "WEBHOOK_RESPONSE_TIMEOUT", "WEBHOOK_MAX_BODY_BYTES",
	"WEBHOOK_RATE_LIMIT_RPS", "WEBHOOK_RATE_LIMIT_BURST", "WEBHOOK_CACHE_SIZE", "LLM_PROVIDER",
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL", "LLM_TIMEOUT", "TASK_SERVICE_URL",
	"TASK_SERVICE_TOKEN", "AGENT_SERVICE_URL", "AGENT_IDS", "EVENTS_BACKEND", "EVENTS_TOPIC",
	"KAFKA_BROKERS", "RABBITMQ_URL", "RABBITMQ_EXCHANGE", "AWS_REGION", "AWS_ACCESS_KEY_ID",
	"AWS_SECRET_ACCESS_KEY", "SNS_TOPIC_ARN", "SQS_QUEUE_URL", "GCP_PROJECT_ID", "GCP_TOPIC_ID",
	"GCP_CREDENTIALS_FILE",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvVars {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.Equal(t, "./trigger_engine.db", cfg.DatabasePath)
	assert.Empty(t, cfg.RedisAddress)
	assert.Equal(t, 10, cfg.RedisPoolSize)
	assert.Equal(t, 5, cfg.DefaultFailureThreshold)
	assert.Equal(t, 0.8, cfg.SafetyAtRiskRatio)
	assert.Equal(t, 30*time.Second, cfg.ConditionTimeout)
	assert.Equal(t, 30*time.Second, cfg.TaskTimeout)
	assert.False(t, cfg.WebhookStrictStatusCodes)
	assert.Equal(t, int64(1<<20), cfg.WebhookMaxBodyBytes)
	assert.Equal(t, "none", cfg.LLMProvider)
	assert.Equal(t, []string{"*"}, cfg.AgentIDs)
	assert.Equal(t, EventsBackendLog, cfg.EventsBackend)
	assert.True(t, cfg.ScheduleEnabled)
	assert.True(t, cfg.ScheduleCatchUp)
	assert.False(t, cfg.AuthEnabled)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_TYPE", "Postgres")
	t.Setenv("REDIS_ADDRESS", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("LOCKS_ENABLED", "true")
	t.Setenv("SAFETY_AT_RISK_RATIO", "0.5")
	t.Setenv("CONDITION_TIMEOUT", "5s")
	t.Setenv("WEBHOOK_STRICT_STATUS_CODES", "1")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("AGENT_IDS", "agent-a,agent-b")
	t.Setenv("TASK_TIMEOUT", "not-a-duration")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "postgres", cfg.DatabaseType)
	assert.True(t, cfg.IsPostgres())
	assert.Equal(t, 2, cfg.RedisDB)
	assert.True(t, cfg.LocksEnabled)
	assert.Equal(t, 0.5, cfg.SafetyAtRiskRatio)
	assert.Equal(t, 5*time.Second, cfg.ConditionTimeout)
	assert.Equal(t, 30*time.Second, cfg.TaskTimeout, "unparsable values fall back to defaults")
	assert.True(t, cfg.WebhookStrictStatusCodes)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"agent-a", "agent-b"}, cfg.AgentIDs)
	assert.Contains(t, cfg.PostgresDSN(), "host=localhost port=5432 dbname=trigger_engine")
}

func validConfig() *Config {
	return &Config{
		Port:                    "8080",
		DatabaseType:            "sqlite",
		DatabasePath:            "./test.db",
		RedisPoolSize:           10,
		DefaultFailureThreshold: 5,
		SafetyAtRiskRatio:       0.8,
		ConditionTimeout:        time.Second,
		TaskTimeout:             time.Second,
		WebhookResponseTimeout:  time.Second,
		WebhookMaxBodyBytes:     1024,
		WebhookCacheSize:        16,
		LLMProvider:             "none",
		EventsBackend:           EventsBackendLog,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad port", func(c *Config) { c.Port = "70000" }, "PORT must be a valid port"},
		{"bad database type", func(c *Config) { c.DatabaseType = "mysql" }, "DATABASE_TYPE must be one of"},
		{"postgres needs host", func(c *Config) {
			c.DatabaseType = "postgres"
			c.PostgresPort = "5432"
			c.PostgresDB = "db"
			c.PostgresUser = "u"
		}, "POSTGRES_HOST is required"},
		{"redis db range", func(c *Config) { c.RedisAddress = "r:6379"; c.RedisDB = 16 }, "REDIS_DB must be between 0 and 15"},
		{"locks need redis", func(c *Config) { c.LocksEnabled = true; c.LockTTL = time.Second }, "LOCKS_ENABLED requires REDIS_ADDRESS"},
		{"ratio above one", func(c *Config) { c.SafetyAtRiskRatio = 1.5 }, "SAFETY_AT_RISK_RATIO"},
		{"ratio zero", func(c *Config) { c.SafetyAtRiskRatio = 0 }, "SAFETY_AT_RISK_RATIO"},
		{"zero threshold", func(c *Config) { c.DefaultFailureThreshold = 0 }, "DEFAULT_FAILURE_THRESHOLD must be positive"},
		{"zero condition timeout", func(c *Config) { c.ConditionTimeout = 0 }, "CONDITION_TIMEOUT must be positive"},
		{"openai needs key", func(c *Config) { c.LLMProvider = "openai"; c.OpenAIModel = "m"; c.LLMTimeout = time.Second }, "OPENAI_API_KEY is required"},
		{"unknown llm", func(c *Config) { c.LLMProvider = "bard" }, "LLM_PROVIDER must be one of"},
		{"kafka needs brokers", func(c *Config) { c.EventsBackend = EventsBackendKafka; c.EventsTopic = "t" }, "KAFKA_BROKERS is required"},
		{"sns needs topic", func(c *Config) { c.EventsBackend = EventsBackendSNS; c.AWSRegion = "eu-west-1" }, "SNS_TOPIC_ARN is required"},
		{"pubsub needs project", func(c *Config) { c.EventsBackend = EventsBackendPubSub; c.GCPTopicID = "t" }, "GCP_PROJECT_ID is required"},
		{"unknown events backend", func(c *Config) { c.EventsBackend = "nats" }, "EVENTS_BACKEND must be one of"},
		{"short jwt secret", func(c *Config) { c.AuthEnabled = true; c.JWTSecret = "short" }, "JWT_SECRET must be at least 32"},
		{"jwt ignored when auth off", func(c *Config) { c.JWTSecret = "short" }, ""},
		{"bad encryption key", func(c *Config) { c.EncryptionKey = "abc" }, "CONFIG_ENCRYPTION_KEY must be exactly 32"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Port = "0"
	cfg.TaskTimeout = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "TASK_TIMEOUT")
}
