// Package handlers implements the HTTP surface of the trigger engine: webhook ingress,
// the trigger admin API and the health endpoint.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/models"
	"trigger-engine/internal/ratelimit"
	"trigger-engine/internal/webhooks"
)

// TriggerAPI is the part of the trigger service exposed over HTTP
type TriggerAPI interface {
	CreateTrigger(ctx context.Context, req *models.CreateTriggerRequest) (*models.Trigger, error)
	UpdateTrigger(ctx context.Context, id string, req *models.UpdateTriggerRequest) (*models.Trigger, error)
	EnableTrigger(ctx context.Context, id string) (bool, error)
	DisableTrigger(ctx context.Context, id string) (bool, error)
	DeleteTrigger(ctx context.Context, id string) (bool, error)
	GetTrigger(ctx context.Context, id string) (*models.Trigger, error)
	ListTriggers(ctx context.Context, filter models.TriggerFilter) ([]*models.Trigger, error)
	ListExecutions(ctx context.Context, triggerID string, status models.ExecutionStatus, page models.Page) (*models.ExecutionPage, error)
	ExecuteTrigger(ctx context.Context, id string, executionData map[string]interface{}) (*models.TriggerExecution, error)
	GetTriggerSafetyStatus(ctx context.Context, id string) (*models.SafetyStatus, error)
	ResetTriggerFailureCount(ctx context.Context, id string) (bool, error)
}

// WebhookDispatcher validates and executes inbound webhook calls
type WebhookDispatcher interface {
	HandleRequest(ctx context.Context, req webhooks.Request) (*webhooks.Response, error)
}

// ResponseObserver counts webhook responses by status code
type ResponseObserver interface {
	ObserveWebhookResponse(code int)
}

// HealthCheck is one named dependency probe
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Options struct {
	MaxBodyBytes int64
}

type Handlers struct {
	triggers   TriggerAPI
	dispatcher WebhookDispatcher
	limiter    *ratelimit.WebhookLimiter
	observer   ResponseObserver
	checks     []HealthCheck
	options    Options
	logger     logging.Logger
}

// New wires the handlers. limiter and observer may be nil.
func New(triggers TriggerAPI, dispatcher WebhookDispatcher, limiter *ratelimit.WebhookLimiter, observer ResponseObserver, checks []HealthCheck, options Options, logger logging.Logger) *Handlers {
	if options.MaxBodyBytes <= 0 {
		options.MaxBodyBytes = 1 << 20
	}
	return &Handlers{
		triggers:   triggers,
		dispatcher: dispatcher,
		limiter:    limiter,
		observer:   observer,
		checks:     checks,
		options:    options,
		logger:     logging.OrGlobal(logger).WithFields(logging.Field{"component", "handlers"}),
	}
}

// ErrorBody is the admin API error payload
type ErrorBody struct {
	Error string `json:"error"`
	Type  string `json:"type"`
}

func (h *Handlers) sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// sendError maps the error taxonomy onto admin API status codes
func (h *Handlers) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	errType := errors.GetType(err)
	message := err.Error()
	if appErr, ok := errors.As(err); ok {
		message = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).Error("Admin API request failed", err,
			logging.Field{"path", r.URL.Path},
		)
		if errType == errors.ErrTypeInternal {
			message = "internal server error"
		}
	}
	h.sendJSONResponse(w, status, ErrorBody{Error: message, Type: string(errType)})
}

func statusFor(err error) int {
	if appErr, ok := errors.As(err); ok && appErr.Type == errors.ErrTypeExecution {
		if cause, ok := errors.As(appErr.Cause); ok {
			return statusFor(cause)
		}
	}
	switch errors.GetType(err) {
	case errors.ErrTypeValidation, errors.ErrTypeWebhookValidation, errors.ErrTypeConditionEvaluation:
		return http.StatusBadRequest
	case errors.ErrTypeNotFound:
		return http.StatusNotFound
	case errors.ErrTypeAuth:
		return http.StatusUnauthorized
	case errors.ErrTypeRateLimit:
		return http.StatusTooManyRequests
	case errors.ErrTypeDependency, errors.ErrTypeTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body of at most limit bytes into v
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.ValidationError("invalid JSON body: " + err.Error())
	}
	return nil
}
