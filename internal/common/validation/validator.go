// Package validation wraps go-playground/validator with the custom tags used by trigger requests
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"trigger-engine/internal/common/errors"

	"github.com/go-playground/validator/v10"
)

// FieldError describes a single failed constraint
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Validator validates structs using struct tags
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the trigger-specific tags registered
func New() *Validator {
	v := validator.New()

	// report json names so messages match the API payloads
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("cron_expression", func(fl validator.FieldLevel) bool {
		_, err := CronParser.Parse(fl.Field().String())
		return err == nil
	})

	_ = v.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
		_, err := time.LoadLocation(fl.Field().String())
		return err == nil
	})

	_ = v.RegisterValidation("http_method", func(fl validator.FieldLevel) bool {
		switch strings.ToUpper(fl.Field().String()) {
		case "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS":
			return true
		}
		return false
	})

	return &Validator{validate: v}
}

// Struct validates s and returns a ValidationError describing every failed field
func (v *Validator) Struct(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return toAppError(v.fieldErrors(err))
	}
	return nil
}

// Var validates a single value against a tag expression
func (v *Validator) Var(field interface{}, tag string) error {
	if err := v.validate.Var(field, tag); err != nil {
		return toAppError(v.fieldErrors(err))
	}
	return nil
}

// FieldErrors returns structured errors for s, or nil when it is valid
func (v *Validator) FieldErrors(s interface{}) []FieldError {
	if err := v.validate.Struct(s); err != nil {
		return v.fieldErrors(err)
	}
	return nil
}

func (v *Validator) fieldErrors(err error) []FieldError {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []FieldError{{Field: "unknown", Tag: "error", Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(validationErrs))
	for _, fe := range validationErrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: formatFieldError(fe),
		})
	}
	return out
}

func toAppError(fieldErrs []FieldError) error {
	if len(fieldErrs) == 1 {
		return errors.ValidationError(fieldErrs[0].Message)
	}
	messages := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		messages[i] = fe.Message
	}
	return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(messages, "; ")))
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "min":
		return fmt.Sprintf("field '%s' must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("field '%s' must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of: %s", fe.Field(), fe.Param())
	case "url":
		return fmt.Sprintf("field '%s' must be a valid URL", fe.Field())
	case "cron_expression":
		return fmt.Sprintf("field '%s' must be a valid cron expression", fe.Field())
	case "timezone":
		return fmt.Sprintf("field '%s' must be a valid IANA timezone", fe.Field())
	case "http_method":
		return fmt.Sprintf("field '%s' must be a valid HTTP method", fe.Field())
	default:
		return fmt.Sprintf("field '%s' failed validation: %s", fe.Field(), fe.Tag())
	}
}

var defaultValidator = New()

// ValidateStruct validates s with the shared validator
func ValidateStruct(s interface{}) error {
	return defaultValidator.Struct(s)
}

// ValidateVar validates a value with the shared validator
func ValidateVar(field interface{}, tag string) error {
	return defaultValidator.Var(field, tag)
}
