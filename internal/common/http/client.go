// Package http builds the outbound HTTP clients used to reach the task service and the
// agent directory
package http

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"trigger-engine/internal/circuitbreaker"
	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
)

// maxErrorBody caps how much of an error response is kept in the error message
const maxErrorBody = 512

// ClientConfig holds HTTP client configuration
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
	Transport           http.RoundTripper
}

// DefaultClientConfig returns default HTTP client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:             30 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// ClientOption is a function that modifies ClientConfig
type ClientOption func(*ClientConfig)

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithTransport sets a custom transport
func WithTransport(transport http.RoundTripper) ClientOption {
	return func(c *ClientConfig) {
		c.Transport = transport
	}
}

// NewHTTPClient creates a new HTTP client with the given options
func NewHTTPClient(opts ...ClientOption) *http.Client {
	cfg := DefaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
		}
	}
	return &http.Client{Timeout: cfg.Timeout, Transport: transport}
}

// JSONClient sends JSON requests to one base URL through a circuit breaker.
//
// Errors are typed: transport failures, 5xx and 429 answers and an open circuit become a
// DependencyUnavailableError naming the dependency; deadline expiry becomes a TimeoutError;
// 404 becomes a NotFoundError and any other 4xx a ValidationError.
type JSONClient struct {
	dependency string
	baseURL    string
	token      string
	client     *http.Client
	breaker    *circuitbreaker.Breaker
	logger     logging.Logger
}

// NewJSONClient creates a client for dependency rooted at baseURL. token, when set, is sent as a
// bearer token. breaker may be nil.
func NewJSONClient(dependency, baseURL, token string, client *http.Client, breaker *circuitbreaker.Breaker, logger logging.Logger) *JSONClient {
	if client == nil {
		client = NewHTTPClient()
	}
	return &JSONClient{
		dependency: dependency,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		client:     client,
		breaker:    breaker,
		logger:     logging.OrGlobal(logger).WithFields(logging.Field{"dependency", dependency}),
	}
}

// Do sends in (if non-nil) as the JSON body and decodes a 2xx response into out (if non-nil)
func (c *JSONClient) Do(ctx context.Context, method, path string, in, out interface{}) error {
	call := func(ctx context.Context) error {
		return c.do(ctx, method, path, in, out)
	}
	if c.breaker == nil {
		return call(ctx)
	}
	return c.breaker.Execute(ctx, call)
}

func (c *JSONClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return errors.InternalError("failed to encode request", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.InternalError("failed to create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if correlationID := logging.CorrelationIDFromContext(ctx); correlationID != "" {
		req.Header.Set("X-Correlation-ID", correlationID)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.TimeoutError(c.dependency+" "+method+" "+path, err)
		}
		if stderrors.Is(err, context.Canceled) {
			return err
		}
		return errors.DependencyUnavailableError(c.dependency, err)
	}
	defer resp.Body.Close()

	c.logger.WithContext(ctx).Debug("Outbound request",
		logging.Field{"method", method},
		logging.Field{"path", path},
		logging.Field{"status", resp.StatusCode},
		logging.Field{"duration_ms", time.Since(start).Milliseconds()},
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return errors.DependencyUnavailableError(c.dependency, fmt.Errorf("invalid response body: %w", err))
		}
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errors.NotFoundError(path)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return errors.DependencyUnavailableError(c.dependency, stderrors.New(msg))
	default:
		return errors.ValidationError(msg)
	}
}
