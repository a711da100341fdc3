package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeValidation represents bad input at creation or update time
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeNotFound represents a missing trigger or resource
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeDependency represents an unreachable collaborator (agent lookup, schedule manager, LLM backend)
	ErrTypeDependency ErrorType = "dependency_unavailable"
	// ErrTypeWebhookValidation represents a malformed webhook validation rule set
	ErrTypeWebhookValidation ErrorType = "webhook_validation"
	// ErrTypeExecution represents an unexpected failure inside the execution pipeline
	ErrTypeExecution ErrorType = "execution"
	// ErrTypeConditionEvaluation represents a malformed condition or a failed evaluation backend call
	ErrTypeConditionEvaluation ErrorType = "condition_evaluation"
	// ErrTypeTimeout represents timeout errors
	ErrTypeTimeout ErrorType = "timeout"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
	// ErrTypeRateLimit represents rate limit errors
	ErrTypeRateLimit ErrorType = "rate_limit"
	// ErrTypeAuth represents authentication errors
	ErrTypeAuth ErrorType = "authentication"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface. Context keys are rendered in sorted order.
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", e.Code))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		contextParts := make([]string, 0, len(keys))
		for _, k := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// ContextString returns a context value as a string, or "" when absent.
func (e *AppError) ContextString(key string) string {
	if e.Context == nil {
		return ""
	}
	if v, ok := e.Context[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// TriggerValidationError creates an error for bad trigger input (unknown agent, malformed condition syntax).
func TriggerValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// TriggerNotFoundError creates a not-found error for a trigger id.
func TriggerNotFoundError(triggerID string) *AppError {
	return (&AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("trigger %s not found", triggerID),
	}).WithContext("trigger_id", triggerID)
}

// DependencyUnavailableError creates an error for an unreachable collaborator.
func DependencyUnavailableError(dependency string, cause error) *AppError {
	return (&AppError{
		Type:    ErrTypeDependency,
		Message: fmt.Sprintf("%s unavailable", dependency),
		Cause:   cause,
	}).WithContext("dependency", dependency)
}

// WebhookValidationError creates an error for a malformed validation rule set.
func WebhookValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeWebhookValidation,
		Message: msg,
	}
}

// TriggerExecutionError wraps an unexpected failure of the execution pipeline.
func TriggerExecutionError(triggerID, correlationID, msg string, cause error) *AppError {
	err := (&AppError{
		Type:    ErrTypeExecution,
		Message: msg,
		Cause:   cause,
	}).WithContext("trigger_id", triggerID)
	if correlationID != "" {
		err.WithContext("correlation_id", correlationID)
	}
	return err
}

// ConditionEvaluationError creates an error for a malformed condition or failed backend call.
func ConditionEvaluationError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeConditionEvaluation,
		Message: msg,
		Cause:   cause,
	}
}

// ValidationError creates a new generic validation error
func ValidationError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeValidation,
		Message: msg,
	}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeConfig,
		Message: msg,
	}
}

// AuthError creates a new authentication error
func AuthError(msg string) *AppError {
	return &AppError{
		Type:    ErrTypeAuth,
		Message: msg,
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeInternal,
		Message: msg,
		Cause:   cause,
	}
}

// TimeoutError creates a new timeout error
func TimeoutError(operation string, cause error) *AppError {
	return &AppError{
		Type:    ErrTypeTimeout,
		Message: fmt.Sprintf("timeout during %s", operation),
		Cause:   cause,
	}
}

// RateLimitError creates a new rate limit error
func RateLimitError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeRateLimit,
		Message: fmt.Sprintf("rate limit exceeded for %s", resource),
	}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType checks if any error in the chain is an AppError of the given type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	for e := err; e != nil; {
		if !stderrors.As(e, &appErr) {
			return false
		}
		if appErr.Type == errType {
			return true
		}
		e = appErr.Cause
	}
	return false
}

// GetType returns the type of the outermost AppError, or ErrTypeInternal for foreign errors
func GetType(err error) ErrorType {
	if err == nil {
		return ""
	}

	appErr, ok := As(err)
	if !ok {
		return ErrTypeInternal
	}

	return appErr.Type
}
