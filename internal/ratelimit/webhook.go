package ratelimit

import (
	"fmt"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

type WebhookConfig struct {
	RequestsPerSecond float64
	Burst             int
	// MaxKeys bounds how many per-webhook buckets are kept; the least recently used is dropped
	MaxKeys int
}

// WebhookLimiter keeps one token bucket per webhook id
type WebhookLimiter struct {
	config  WebhookConfig
	buckets *lru.Cache[string, *rate.Limiter]
}

// NewWebhookLimiter returns a limiter, or nil when RequestsPerSecond is not positive.
// A nil *WebhookLimiter allows everything.
func NewWebhookLimiter(config WebhookConfig) (*WebhookLimiter, error) {
	if config.RequestsPerSecond <= 0 {
		return nil, nil
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.MaxKeys <= 0 {
		config.MaxKeys = 1024
	}

	buckets, err := lru.New[string, *rate.Limiter](config.MaxKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to create limiter cache: %w", err)
	}
	return &WebhookLimiter{config: config, buckets: buckets}, nil
}

// Allow takes one token from key's bucket
func (l *WebhookLimiter) Allow(key string) bool {
	if l == nil || key == "" {
		return true
	}

	bucket, ok := l.buckets.Get(key)
	if !ok {
		bucket = rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)
		if existing, found, _ := l.buckets.PeekOrAdd(key, bucket); found {
			bucket = existing
		}
	}
	return bucket.Allow()
}

// HTTPMiddleware rejects requests whose key is out of tokens by calling reject instead of next
func (l *WebhookLimiter) HTTPMiddleware(keyFunc func(*http.Request) string, reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil {
				next.ServeHTTP(w, r)
				return
			}

			if !l.Allow(keyFunc(r)) {
				reject(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
