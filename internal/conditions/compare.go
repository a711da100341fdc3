package conditions

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"trigger-engine/internal/models"
)

// valuesEqual compares numerically when both sides are numbers and by string form otherwise
func valuesEqual(actual, expected interface{}) bool {
	if a, ok := asNumber(actual); ok {
		if b, ok := asNumber(expected); ok {
			return a == b
		}
	}
	return fmt.Sprintf("%v", actual) == fmt.Sprintf("%v", expected)
}

// compareNumeric is false whenever either side is not numeric
func compareNumeric(actual, expected interface{}, op models.Operator) bool {
	a, ok := toFloat64(actual)
	if !ok {
		return false
	}
	b, ok := toFloat64(expected)
	if !ok {
		return false
	}

	switch op {
	case models.OpGreater:
		return a > b
	case models.OpLess:
		return a < b
	case models.OpGreaterEq:
		return a >= b
	case models.OpLessEq:
		return a <= b
	}
	return false
}

// contains reports membership for strings, slices and maps. ok is false for types
// that have no notion of containment.
func contains(actual, expected interface{}) (found bool, ok bool) {
	switch v := actual.(type) {
	case string:
		return strings.Contains(v, fmt.Sprintf("%v", expected)), true
	case []interface{}:
		for _, item := range v {
			if valuesEqual(item, expected) {
				return true, true
			}
		}
		return false, true
	case []string:
		needle := fmt.Sprintf("%v", expected)
		for _, item := range v {
			if item == needle {
				return true, true
			}
		}
		return false, true
	case map[string]interface{}:
		_, exists := v[fmt.Sprintf("%v", expected)]
		return exists, true
	case map[string]string:
		_, exists := v[fmt.Sprintf("%v", expected)]
		return exists, true
	}
	return false, false
}

// asNumber accepts only genuinely numeric values, never numeric strings
func asNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// toFloat64 also accepts numeric strings such as query parameters
func toFloat64(value interface{}) (float64, bool) {
	if f, ok := asNumber(value); ok {
		return f, true
	}
	if s, ok := value.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return 0, false
}
