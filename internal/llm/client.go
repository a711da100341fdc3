// Package llm adapts an OpenAI-compatible chat model to the completion interface used by
// condition evaluation and parameter extraction.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trigger-engine/internal/circuitbreaker"
	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"

	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Config selects and configures the chat model
type Config struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

// Client sends single-turn completions to a chat model through a circuit breaker
type Client struct {
	chat    model.BaseChatModel
	breaker *circuitbreaker.Breaker
	model   string
	logger  logging.Logger
}

// NewChatModel builds the eino chat model for cfg
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "openai":
		if cfg.APIKey == "" || cfg.Model == "" {
			return nil, errors.ConfigError("openai chat model missing apiKey/model")
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		return openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: timeout,
		})
	case "", "none", "disabled":
		return nil, errors.ConfigError("chat model provider not configured")
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported chat model provider %q", cfg.Provider))
	}
}

// NewClient wraps chat. modelName is only used for logging.
func NewClient(chat model.BaseChatModel, modelName string, logger logging.Logger) *Client {
	logger = logging.OrGlobal(logger).WithFields(logging.Field{"component", "llm"})
	return &Client{
		chat:    chat,
		breaker: circuitbreaker.New("condition_evaluator", circuitbreaker.LLMConfig, logger),
		model:   modelName,
		logger:  logger,
	}
}

// Complete sends a system and user message and returns the reply text
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: userPrompt},
	}

	var reply string
	start := time.Now()
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := c.chat.Generate(ctx, messages, model.WithTemperature(temperature))
		if err != nil {
			return err
		}
		if resp == nil {
			return fmt.Errorf("empty response from chat model")
		}
		reply = resp.Content
		return nil
	})

	if err != nil {
		c.logger.WithContext(ctx).Warn("Chat completion failed",
			logging.Field{"model", c.model},
			logging.Field{"duration_ms", time.Since(start).Milliseconds()},
			logging.Err(err),
		)
		if errors.IsType(err, errors.ErrTypeDependency) {
			return "", err
		}
		return "", errors.DependencyUnavailableError("condition_evaluator", err)
	}

	c.logger.WithContext(ctx).Debug("Chat completion finished",
		logging.Field{"model", c.model},
		logging.Field{"duration_ms", time.Since(start).Milliseconds()},
	)
	return reply, nil
}
