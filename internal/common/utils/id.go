// Package utils provides id generation, retry and field lookup helpers shared by the trigger engine.
package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
	"github.com/lucsky/cuid"
)

const webhookIDBytes = 18

// GenerateID returns a collision-resistant id for triggers and executions.
func GenerateID(prefix string) string {
	if prefix == "" {
		return cuid.New()
	}
	return prefix + "_" + cuid.New()
}

// GenerateCorrelationID returns the id threaded through the log lines of one execution attempt.
func GenerateCorrelationID() string {
	return uuid.NewString()
}

// GenerateWebhookID returns an opaque, URL-safe webhook identifier with 144 bits of randomness.
func GenerateWebhookID() (string, error) {
	buf := make([]byte, webhookIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return "wh_" + base64.RawURLEncoding.EncodeToString(buf), nil
}
