package validation

import (
	"fmt"
	"strings"

	"trigger-engine/internal/common/errors"
)

// Checker accumulates validation failures for hand-written checks such as configuration
type Checker struct {
	messages []string
	prefix   string
}

// NewChecker creates a checker whose messages are prefixed with prefix when it is non-empty
func NewChecker(prefix string) *Checker {
	return &Checker{prefix: prefix}
}

// RequireString records a failure when value is blank
func (c *Checker) RequireString(value, name string) *Checker {
	if strings.TrimSpace(value) == "" {
		c.addf("%s is required", name)
	}
	return c
}

// RequirePositive records a failure when value is not greater than zero
func (c *Checker) RequirePositive(value int64, name string) *Checker {
	if value <= 0 {
		c.addf("%s must be positive", name)
	}
	return c
}

// RequireRange records a failure when value falls outside [min, max]
func (c *Checker) RequireRange(value, min, max int, name string) *Checker {
	if value < min || value > max {
		c.addf("%s must be between %d and %d", name, min, max)
	}
	return c
}

// RequireOneOf records a failure when value is not one of allowed
func (c *Checker) RequireOneOf(value string, allowed []string, name string) *Checker {
	for _, a := range allowed {
		if value == a {
			return c
		}
	}
	c.addf("%s must be one of: %s", name, strings.Join(allowed, ", "))
	return c
}

// Check records message when ok is false
func (c *Checker) Check(ok bool, message string) *Checker {
	if !ok {
		c.addf("%s", message)
	}
	return c
}

// HasErrors reports whether any check failed
func (c *Checker) HasErrors() bool {
	return len(c.messages) > 0
}

// Messages returns the recorded failures
func (c *Checker) Messages() []string {
	return c.messages
}

// Error returns a ValidationError combining every failure, or nil
func (c *Checker) Error() error {
	switch len(c.messages) {
	case 0:
		return nil
	case 1:
		return errors.ValidationError(c.messages[0])
	default:
		return errors.ValidationError(fmt.Sprintf("validation failed: %s", strings.Join(c.messages, "; ")))
	}
}

func (c *Checker) addf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if c.prefix != "" {
		msg = c.prefix + ": " + msg
	}
	c.messages = append(c.messages, msg)
}
