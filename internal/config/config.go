// Package config provides configuration management for the trigger engine.
// It loads configuration from environment variables with sensible defaults
// and validates it so the service starts in a known-good state.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - AUTH_ENABLED: Require a JWT on the admin API (default: false)
//   - JWT_SECRET: JWT signing secret (minimum 32 characters when AUTH_ENABLED)
//   - CONFIG_ENCRYPTION_KEY: Encrypts webhook_config at rest (32 characters if provided)
//   - METRICS_ENABLED: Expose /metrics (default: true)
//
// Database Configuration:
//   - DATABASE_TYPE: "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./trigger_engine.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER, POSTGRES_PASSWORD, POSTGRES_SSL_MODE
//
// Redis Configuration (empty REDIS_ADDRESS disables Redis):
//   - REDIS_ADDRESS, REDIS_PASSWORD, REDIS_DB (0-15), REDIS_POOL_SIZE
//   - LOCKS_ENABLED: Serialize safety counter updates with redsync locks (default: false)
//   - LOCK_TTL: Distributed lock expiry (default: 10s)
//
// Trigger Execution:
//   - DEFAULT_FAILURE_THRESHOLD: Threshold for triggers created without one (default: 5)
//   - SAFETY_AT_RISK_RATIO: Fraction of the threshold at which a trigger is "at risk" (default: 0.8)
//   - CONDITION_TIMEOUT: Bound on condition evaluation (default: 30s)
//   - TASK_TIMEOUT: Bound on task creation plus submission (default: 30s)
//   - SCHEDULE_ENABLED: Run the in-process cron scheduler (default: true)
//   - SCHEDULE_CATCH_UP: Run one catch-up execution for overdue cron triggers at start (default: true)
//
// Webhook Ingress:
//   - WEBHOOK_STRICT_STATUS_CODES: Answer 404/405 instead of the flattened 400s (default: false)
//   - WEBHOOK_RESPONSE_TIMEOUT: Latency ceiling before answering "accepted" (default: 25s)
//   - WEBHOOK_MAX_BODY_BYTES: Request body limit (default: 1048576)
//   - WEBHOOK_RATE_LIMIT_RPS / WEBHOOK_RATE_LIMIT_BURST: Per-webhook request limiter, 0 disables
//   - WEBHOOK_CACHE_SIZE: Size of the webhook lookup cache (default: 1024)
//
// Collaborators:
//   - LLM_PROVIDER: "none" or "openai" (default: none)
//   - OPENAI_API_KEY, OPENAI_MODEL, OPENAI_BASE_URL, LLM_TIMEOUT
//   - TASK_SERVICE_URL: Remote task service; empty runs tasks in-process
//   - TASK_SERVICE_TOKEN: Bearer token for the task service
//   - AGENT_SERVICE_URL: Remote agent directory; empty uses AGENT_IDS
//   - AGENT_IDS: Comma separated allow-list of agent ids, "*" allows all (default: *)
//
// Event Publishing:
//   - EVENTS_BACKEND: log, redis, kafka, rabbitmq, sns, sqs or pubsub (default: log)
//   - EVENTS_TOPIC: Channel, topic, routing key or queue name (default: trigger-events)
//   - KAFKA_BROKERS: Comma separated broker list
//   - RABBITMQ_URL, RABBITMQ_EXCHANGE
//   - AWS_REGION, AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY, SNS_TOPIC_ARN, SQS_QUEUE_URL
//   - GCP_PROJECT_ID, GCP_TOPIC_ID, GCP_CREDENTIALS_FILE
//
// Example usage:
//
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"trigger-engine/internal/common/validation"
)

// Supported values for EVENTS_BACKEND.
const (
	EventsBackendLog      = "log"
	EventsBackendRedis    = "redis"
	EventsBackendKafka    = "kafka"
	EventsBackendRabbitMQ = "rabbitmq"
	EventsBackendSNS      = "sns"
	EventsBackendSQS      = "sqs"
	EventsBackendPubSub   = "pubsub"
)

// Config holds all configuration values for the trigger engine.
//
// The configuration is loaded using Load() and should be validated using
// Validate() before use.
type Config struct {
	// Application settings
	Port           string
	LogLevel       string
	AuthEnabled    bool
	JWTSecret      string
	EncryptionKey  string
	MetricsEnabled bool

	// Database
	DatabaseType     string
	DatabasePath     string
	PostgresHost     string
	PostgresPort     string
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Redis and distributed locks
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int
	LocksEnabled  bool
	LockTTL       time.Duration

	// Trigger execution
	DefaultFailureThreshold int
	SafetyAtRiskRatio       float64
	ConditionTimeout        time.Duration
	TaskTimeout             time.Duration
	ScheduleEnabled         bool
	ScheduleCatchUp         bool

	// Webhook ingress
	WebhookStrictStatusCodes bool
	WebhookResponseTimeout   time.Duration
	WebhookMaxBodyBytes      int64
	WebhookRateLimitRPS      float64
	WebhookRateLimitBurst    int
	WebhookCacheSize         int

	// LLM backend
	LLMProvider   string
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
	LLMTimeout    time.Duration

	// Task service and agent directory
	TaskServiceURL   string
	TaskServiceToken string
	AgentServiceURL  string
	AgentIDs         []string

	// Event publishing
	EventsBackend      string
	EventsTopic        string
	KafkaBrokers       []string
	RabbitMQURL        string
	RabbitMQExchange   string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	SNSTopicARN        string
	SQSQueueURL        string
	GCPProjectID       string
	GCPTopicID         string
	GCPCredentialsFile string
}

// Load creates a new Config with values taken from environment variables.
// If a variable is unset or unparsable the default is used. Load does not
// validate; call Validate on the result.
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AuthEnabled:    getBoolEnv("AUTH_ENABLED", false),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		EncryptionKey:  getEnv("CONFIG_ENCRYPTION_KEY", ""),
		MetricsEnabled: getBoolEnv("METRICS_ENABLED", true),

		DatabaseType:     databaseType(getEnv("DATABASE_TYPE", "sqlite")),
		DatabasePath:     getEnv("DATABASE_PATH", "./trigger_engine.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresDB:       getEnv("POSTGRES_DB", "trigger_engine"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPoolSize: getIntEnv("REDIS_POOL_SIZE", 10),
		LocksEnabled:  getBoolEnv("LOCKS_ENABLED", false),
		LockTTL:       getDurationEnv("LOCK_TTL", 10*time.Second),

		DefaultFailureThreshold: getIntEnv("DEFAULT_FAILURE_THRESHOLD", 5),
		SafetyAtRiskRatio:       getFloatEnv("SAFETY_AT_RISK_RATIO", 0.8),
		ConditionTimeout:        getDurationEnv("CONDITION_TIMEOUT", 30*time.Second),
		TaskTimeout:             getDurationEnv("TASK_TIMEOUT", 30*time.Second),
		ScheduleEnabled:         getBoolEnv("SCHEDULE_ENABLED", true),
		ScheduleCatchUp:         getBoolEnv("SCHEDULE_CATCH_UP", true),

		WebhookStrictStatusCodes: getBoolEnv("WEBHOOK_STRICT_STATUS_CODES", false),
		WebhookResponseTimeout:   getDurationEnv("WEBHOOK_RESPONSE_TIMEOUT", 25*time.Second),
		WebhookMaxBodyBytes:      int64(getIntEnv("WEBHOOK_MAX_BODY_BYTES", 1<<20)),
		WebhookRateLimitRPS:      getFloatEnv("WEBHOOK_RATE_LIMIT_RPS", 0),
		WebhookRateLimitBurst:    getIntEnv("WEBHOOK_RATE_LIMIT_BURST", 20),
		WebhookCacheSize:         getIntEnv("WEBHOOK_CACHE_SIZE", 1024),

		LLMProvider:   strings.ToLower(getEnv("LLM_PROVIDER", "none")),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		LLMTimeout:    getDurationEnv("LLM_TIMEOUT", 20*time.Second),

		TaskServiceURL:   getEnv("TASK_SERVICE_URL", ""),
		TaskServiceToken: getEnv("TASK_SERVICE_TOKEN", ""),
		AgentServiceURL:  getEnv("AGENT_SERVICE_URL", ""),
		AgentIDs:         getListEnv("AGENT_IDS", []string{"*"}),

		EventsBackend:      strings.ToLower(getEnv("EVENTS_BACKEND", EventsBackendLog)),
		EventsTopic:        getEnv("EVENTS_TOPIC", "trigger-events"),
		KafkaBrokers:       getListEnv("KAFKA_BROKERS", nil),
		RabbitMQURL:        getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:   getEnv("RABBITMQ_EXCHANGE", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		SNSTopicARN:        getEnv("SNS_TOPIC_ARN", ""),
		SQSQueueURL:        getEnv("SQS_QUEUE_URL", ""),
		GCPProjectID:       getEnv("GCP_PROJECT_ID", ""),
		GCPTopicID:         getEnv("GCP_TOPIC_ID", ""),
		GCPCredentialsFile: getEnv("GCP_CREDENTIALS_FILE", ""),
	}
}

// databaseType folds the "postgresql" alias onto the registered storage name
func databaseType(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "postgresql" {
		return "postgres"
	}
	return value
}

// Validate checks every setting and reports all problems at once.
//
// This method checks:
//   - Port and database settings, including the PostgreSQL fields
//   - Redis ranges when Redis is configured, and that locks have Redis
//   - Timeouts, thresholds and the at-risk ratio
//   - Backend-specific requirements for the LLM and event publisher
//   - Security requirements (JWT secret and encryption key lengths)
func (c *Config) Validate() error {
	check := validation.NewChecker("")

	check.Check(isPort(c.Port), "PORT must be a valid port number between 1 and 65535")

	check.RequireOneOf(c.DatabaseType, []string{"sqlite", "postgres", "postgresql"}, "DATABASE_TYPE")
	if c.IsPostgres() {
		check.RequireString(c.PostgresHost, "POSTGRES_HOST")
		check.RequireString(c.PostgresDB, "POSTGRES_DB")
		check.RequireString(c.PostgresUser, "POSTGRES_USER")
		check.Check(isPort(c.PostgresPort), "POSTGRES_PORT must be a valid port number")
	} else {
		check.RequireString(c.DatabasePath, "DATABASE_PATH")
	}

	if c.RedisAddress != "" {
		check.RequireRange(c.RedisDB, 0, 15, "REDIS_DB")
		check.RequirePositive(int64(c.RedisPoolSize), "REDIS_POOL_SIZE")
	}
	if c.LocksEnabled {
		check.Check(c.RedisAddress != "", "LOCKS_ENABLED requires REDIS_ADDRESS")
		check.RequirePositive(int64(c.LockTTL), "LOCK_TTL")
	}

	check.RequirePositive(int64(c.DefaultFailureThreshold), "DEFAULT_FAILURE_THRESHOLD")
	check.Check(c.SafetyAtRiskRatio > 0 && c.SafetyAtRiskRatio <= 1, "SAFETY_AT_RISK_RATIO must be in (0, 1]")
	check.RequirePositive(int64(c.ConditionTimeout), "CONDITION_TIMEOUT")
	check.RequirePositive(int64(c.TaskTimeout), "TASK_TIMEOUT")
	check.RequirePositive(int64(c.WebhookResponseTimeout), "WEBHOOK_RESPONSE_TIMEOUT")
	check.RequirePositive(c.WebhookMaxBodyBytes, "WEBHOOK_MAX_BODY_BYTES")
	check.RequirePositive(int64(c.WebhookCacheSize), "WEBHOOK_CACHE_SIZE")
	check.Check(c.WebhookRateLimitRPS >= 0, "WEBHOOK_RATE_LIMIT_RPS must not be negative")
	if c.WebhookRateLimitRPS > 0 {
		check.RequirePositive(int64(c.WebhookRateLimitBurst), "WEBHOOK_RATE_LIMIT_BURST")
	}

	check.RequireOneOf(c.LLMProvider, []string{"none", "openai"}, "LLM_PROVIDER")
	if c.LLMProvider == "openai" {
		check.RequireString(c.OpenAIAPIKey, "OPENAI_API_KEY")
		check.RequireString(c.OpenAIModel, "OPENAI_MODEL")
		check.RequirePositive(int64(c.LLMTimeout), "LLM_TIMEOUT")
	}

	check.RequireOneOf(c.EventsBackend, []string{
		EventsBackendLog, EventsBackendRedis, EventsBackendKafka, EventsBackendRabbitMQ,
		EventsBackendSNS, EventsBackendSQS, EventsBackendPubSub,
	}, "EVENTS_BACKEND")
	switch c.EventsBackend {
	case EventsBackendRedis:
		check.RequireString(c.RedisAddress, "REDIS_ADDRESS")
		check.RequireString(c.EventsTopic, "EVENTS_TOPIC")
	case EventsBackendKafka:
		check.Check(len(c.KafkaBrokers) > 0, "KAFKA_BROKERS is required when EVENTS_BACKEND is kafka")
		check.RequireString(c.EventsTopic, "EVENTS_TOPIC")
	case EventsBackendRabbitMQ:
		check.RequireString(c.RabbitMQURL, "RABBITMQ_URL")
	case EventsBackendSNS:
		check.RequireString(c.AWSRegion, "AWS_REGION")
		check.RequireString(c.SNSTopicARN, "SNS_TOPIC_ARN")
	case EventsBackendSQS:
		check.RequireString(c.AWSRegion, "AWS_REGION")
		check.RequireString(c.SQSQueueURL, "SQS_QUEUE_URL")
	case EventsBackendPubSub:
		check.RequireString(c.GCPProjectID, "GCP_PROJECT_ID")
		check.RequireString(c.GCPTopicID, "GCP_TOPIC_ID")
	}

	if c.AuthEnabled {
		check.Check(len(c.JWTSecret) >= 32, "JWT_SECRET must be at least 32 characters long when AUTH_ENABLED is set")
	}
	if c.EncryptionKey != "" {
		check.Check(len(c.EncryptionKey) == 32, "CONFIG_ENCRYPTION_KEY must be exactly 32 characters (256 bits) when provided")
	}

	if err := check.Error(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// IsPostgres reports whether the PostgreSQL backend is selected
func (c *Config) IsPostgres() bool {
	return c.DatabaseType == "postgres" || c.DatabaseType == "postgresql"
}

// PostgresDSN builds a libpq-style connection string for pgx
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresUser, c.PostgresPassword, c.PostgresSSLMode)
}

func isPort(value string) bool {
	port, err := strconv.Atoi(value)
	return err == nil && port >= 1 && port <= 65535
}

// getEnv retrieves an environment variable value or returns defaultValue if unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts the forms understood by strconv.ParseBool; anything else yields defaultValue.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv parses Go durations ("30s", "2m").
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated value, dropping blanks.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
