package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/models"
)

const (
	githubSignatureHeader   = "X-Hub-Signature-256"
	slackSignatureHeader    = "X-Slack-Signature"
	slackTimestampHeader    = "X-Slack-Request-Timestamp"
	telegramSecretHeader    = "X-Telegram-Bot-Api-Secret-Token"
	genericSignatureHeader  = "X-Signature-256"
	defaultSlackMaxClockGap = 5 * time.Minute
)

// SignatureVerifier checks provider signatures for webhook triggers whose
// webhook_config carries a secret_ref. GENERIC webhooks are signed like GitHub
// but in X-Signature-256.
type SignatureVerifier struct {
	// SlackTolerance bounds the age of X-Slack-Request-Timestamp
	SlackTolerance time.Duration
	now            func() time.Time
	getenv         func(string) string
}

func NewSignatureVerifier() *SignatureVerifier {
	return &SignatureVerifier{
		SlackTolerance: defaultSlackMaxClockGap,
		now:            time.Now,
		getenv:         os.Getenv,
	}
}

// Verify returns nil when the webhook has no secret_ref or the request is signed correctly
func (v *SignatureVerifier) Verify(spec *models.WebhookSpec, headers map[string]string, body []byte) error {
	ref, _ := spec.WebhookConfig["secret_ref"].(string)
	if ref == "" {
		return nil
	}

	secret, err := v.resolveSecret(ref)
	if err != nil {
		return err
	}

	switch spec.WebhookType {
	case models.WebhookTypeGitHub:
		return verifyHMACHeader(headerValue(headers, githubSignatureHeader), "sha256=", secret, body)
	case models.WebhookTypeSlack:
		return v.verifySlack(headers, secret, body)
	case models.WebhookTypeTelegram:
		token := headerValue(headers, telegramSecretHeader)
		if token == "" {
			return errors.WebhookValidationError("missing " + telegramSecretHeader)
		}
		if !hmac.Equal([]byte(token), []byte(secret)) {
			return errors.WebhookValidationError("secret token mismatch")
		}
		return nil
	default:
		return verifyHMACHeader(headerValue(headers, genericSignatureHeader), "sha256=", secret, body)
	}
}

func (v *SignatureVerifier) verifySlack(headers map[string]string, secret string, body []byte) error {
	ts := headerValue(headers, slackTimestampHeader)
	if ts == "" {
		return errors.WebhookValidationError("missing " + slackTimestampHeader)
	}
	seconds, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errors.WebhookValidationError("invalid " + slackTimestampHeader)
	}

	gap := v.now().Sub(time.Unix(seconds, 0))
	if gap < 0 {
		gap = -gap
	}
	if gap > v.SlackTolerance {
		return errors.WebhookValidationError("request timestamp outside tolerance")
	}

	base := make([]byte, 0, len(ts)+len(body)+4)
	base = append(base, "v0:"+ts+":"...)
	base = append(base, body...)
	return verifyHMACHeader(headerValue(headers, slackSignatureHeader), "v0=", secret, base)
}

// resolveSecret reads "env:NAME" or "static:VALUE" references
func (v *SignatureVerifier) resolveSecret(ref string) (string, error) {
	parts := strings.SplitN(ref, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", errors.ConfigError("invalid secret_ref format")
	}

	switch parts[0] {
	case "env":
		secret := v.getenv(parts[1])
		if secret == "" {
			return "", errors.ConfigError("environment variable " + parts[1] + " not set")
		}
		return secret, nil
	case "static":
		return parts[1], nil
	default:
		return "", errors.ConfigError("unsupported secret source type: " + parts[0])
	}
}

func verifyHMACHeader(header, prefix, secret string, payload []byte) error {
	if header == "" {
		return errors.WebhookValidationError("missing signature header")
	}
	if !strings.HasPrefix(header, prefix) {
		return errors.WebhookValidationError(fmt.Sprintf("signature must start with %q", prefix))
	}

	expected := Sign(secret, payload)
	if !hmac.Equal([]byte(strings.TrimPrefix(header, prefix)), []byte(expected)) {
		return errors.WebhookValidationError("signature mismatch")
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of payload
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// headerValue looks up name case-insensitively in flattened headers
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
