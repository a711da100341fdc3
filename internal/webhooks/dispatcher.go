package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/models"
)

// Executor runs a trigger. The trigger service implements it.
type Executor interface {
	ExecuteTrigger(ctx context.Context, triggerID string, executionData map[string]interface{}) (*models.TriggerExecution, error)
}

// Request is an inbound webhook call with headers already flattened
type Request struct {
	WebhookID   string
	Method      string
	Headers     map[string]string
	Body        []byte
	QueryParams map[string]string
}

// Response is what the ingress handler writes back. StatusCode is always one of 200, 400, 404, 405.
type Response struct {
	StatusCode int                    `json:"-"`
	Headers    map[string]string      `json:"-"`
	Body       map[string]interface{} `json:"body"`
}

// Messages used in error responses
const (
	MsgNotFound         = "not found"
	MsgInactive         = "inactive"
	MsgNotAllowed       = "not allowed"
	MsgValidationFailed = "validation failed"
	MsgExecutionFailed  = "execution failed"
	MsgInvalidRules     = "invalid validation rules"
	MsgRateLimited      = "rate limited"
)

type Options struct {
	// StrictStatusCodes answers unknown webhooks with 404 and disallowed methods with 405
	StrictStatusCodes bool
	// ResponseTimeout bounds how long a caller waits for the execution; zero waits forever
	ResponseTimeout time.Duration
}

// Dispatcher turns webhook requests into trigger executions
type Dispatcher struct {
	registry *Registry
	executor Executor
	verifier *SignatureVerifier
	options  Options
	logger   logging.Logger

	inflight sync.WaitGroup
}

func NewDispatcher(registry *Registry, executor Executor, verifier *SignatureVerifier, options Options, logger logging.Logger) *Dispatcher {
	if verifier == nil {
		verifier = NewSignatureVerifier()
	}
	return &Dispatcher{
		registry: registry,
		executor: executor,
		verifier: verifier,
		options:  options,
		logger:   logging.OrGlobal(logger).WithFields(logging.Field{"component", "webhook_dispatcher"}),
	}
}

// HandleRequest validates req against the registered trigger and executes it.
// The only error returned is a WebhookValidationError for a malformed rule set.
func (d *Dispatcher) HandleRequest(ctx context.Context, req Request) (*Response, error) {
	logger := d.logger.WithContext(ctx).WithFields(
		logging.Field{"webhook_id", req.WebhookID},
		logging.Field{"method", req.Method},
	)

	trigger := d.registry.Resolve(ctx, req.WebhookID)
	if trigger == nil {
		logger.Debug("Webhook not found")
		status := http.StatusBadRequest
		if d.options.StrictStatusCodes {
			status = http.StatusNotFound
		}
		return ErrorResponse(status, MsgNotFound), nil
	}
	logger = logger.WithFields(logging.Field{"trigger_id", trigger.ID})

	if !trigger.IsActive {
		logger.Debug("Webhook trigger is inactive")
		return ErrorResponse(http.StatusBadRequest, MsgInactive), nil
	}

	spec := trigger.Webhook
	if !spec.AllowsMethod(req.Method) {
		logger.Debug("Webhook method not allowed", logging.Field{"allowed_methods", spec.AllowedMethods})
		if d.options.StrictStatusCodes {
			resp := ErrorResponse(http.StatusMethodNotAllowed, MsgNotAllowed)
			resp.Headers = map[string]string{"Allow": allowHeader(spec.AllowedMethods)}
			return resp, nil
		}
		return ErrorResponse(http.StatusBadRequest, MsgNotAllowed), nil
	}

	rules, err := ParseRules(spec.ValidationRules)
	if err != nil {
		logger.Warn("Webhook has malformed validation rules", logging.Err(err))
		return nil, err
	}
	if failures := rules.Check(req.Headers, req.Body); len(failures) > 0 {
		logger.Info("Webhook request failed validation", logging.Field{"failures", failures})
		return ErrorResponse(http.StatusBadRequest, MsgValidationFailed), nil
	}

	if err := d.verifier.Verify(spec, req.Headers, req.Body); err != nil {
		logger.Warn("Webhook signature check failed", logging.Err(err))
		return ErrorResponse(http.StatusBadRequest, MsgValidationFailed), nil
	}

	data := ExecutionData(req)
	execution, accepted, err := d.execute(ctx, trigger.ID, data)
	if accepted {
		logger.Info("Webhook execution still running, responding early",
			logging.Field{"timeout", d.options.ResponseTimeout.String()},
		)
		return &Response{
			StatusCode: http.StatusOK,
			Body: map[string]interface{}{
				"status":  "accepted",
				"message": "execution continues asynchronously",
			},
		}, nil
	}
	if err != nil {
		logger.Error("Webhook execution failed", err)
		return ErrorResponse(http.StatusBadRequest, MsgExecutionFailed), nil
	}

	switch execution.Status {
	case models.ExecutionSuccess, models.ExecutionSkipped:
		return &Response{
			StatusCode: http.StatusOK,
			Body: map[string]interface{}{
				"status":     "success",
				"executions": []*models.TriggerExecution{execution},
			},
		}, nil
	default:
		logger.Info("Webhook execution did not succeed",
			logging.Field{"status", execution.Status},
			logging.Field{"execution_id", execution.ID},
		)
		return ErrorResponse(http.StatusBadRequest, MsgExecutionFailed), nil
	}
}

// execute runs the trigger, giving up on waiting after ResponseTimeout.
// The execution is detached from ctx cancellation so it completes and is recorded
// even if the caller has gone away.
func (d *Dispatcher) execute(ctx context.Context, triggerID string, data map[string]interface{}) (*models.TriggerExecution, bool, error) {
	if d.options.ResponseTimeout <= 0 {
		execution, err := d.executor.ExecuteTrigger(ctx, triggerID, data)
		return execution, false, err
	}

	type result struct {
		execution *models.TriggerExecution
		err       error
	}
	done := make(chan result)
	abandoned := make(chan struct{})
	execCtx := context.WithoutCancel(ctx)

	// one goroutine per execution owns the inflight slot, including the late log line
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		execution, err := d.executor.ExecuteTrigger(execCtx, triggerID, data)
		select {
		case done <- result{execution, err}:
			return
		case <-abandoned:
		}

		logger := d.logger.WithContext(execCtx).WithFields(logging.Field{"trigger_id", triggerID})
		if err != nil {
			logger.Error("Asynchronous webhook execution failed", err)
			return
		}
		logger.Info("Asynchronous webhook execution finished",
			logging.Field{"execution_id", execution.ID},
			logging.Field{"status", execution.Status},
		)
	}()

	timer := time.NewTimer(d.options.ResponseTimeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.execution, false, r.err
	case <-timer.C:
		close(abandoned)
		return nil, true, nil
	}
}

// Wait blocks until executions that outlived their response have finished or ctx is done
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExecutionData builds the execution payload handed to the trigger
func ExecutionData(req Request) map[string]interface{} {
	headers := req.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	query := req.QueryParams
	if query == nil {
		query = map[string]string{}
	}
	return map[string]interface{}{
		"request": map[string]interface{}{
			"method":       strings.ToUpper(req.Method),
			"headers":      headers,
			"body":         ParseBody(headers, req.Body),
			"query_params": query,
		},
		"source": "webhook",
	}
}

// ParseBody decodes JSON bodies and passes anything else through as a string
func ParseBody(headers map[string]string, body []byte) interface{} {
	if len(body) == 0 {
		return nil
	}

	trimmed := bytes.TrimSpace(body)
	looksJSON := len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
	if strings.HasSuffix(mediaTypeOf(headerValue(headers, "Content-Type")), "json") || looksJSON {
		var parsed interface{}
		if err := json.Unmarshal(trimmed, &parsed); err == nil {
			return parsed
		}
	}
	return string(body)
}

// FlattenHeaders keeps the first value of every header
func FlattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// ErrorResponse builds a {status:"error", message} response
func ErrorResponse(status int, message string) *Response {
	return &Response{
		StatusCode: status,
		Body: map[string]interface{}{
			"status":  "error",
			"message": message,
		},
	}
}

func allowHeader(methods []string) string {
	upper := make([]string, 0, len(methods))
	for _, m := range methods {
		upper = append(upper, strings.ToUpper(m))
	}
	sort.Strings(upper)
	return strings.Join(upper, ", ")
}
