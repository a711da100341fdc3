package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ConditionType discriminates the ConditionSpec variants
type ConditionType string

const (
	ConditionTypeRule     ConditionType = "rule"
	ConditionTypeLLM      ConditionType = "llm"
	ConditionTypeCombined ConditionType = "combined"
)

// Logic folds the results of several rules or sub-conditions
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Operator is a rule comparison operator
type Operator string

const (
	OpEquals      Operator = "eq"
	OpNotEquals   Operator = "ne"
	OpGreater     Operator = "gt"
	OpLess        Operator = "lt"
	OpGreaterEq   Operator = "gte"
	OpLessEq      Operator = "lte"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
)

var validOperators = map[Operator]bool{
	OpEquals: true, OpNotEquals: true, OpGreater: true, OpLess: true, OpGreaterEq: true,
	OpLessEq: true, OpContains: true, OpNotContains: true, OpExists: true, OpNotExists: true,
}

// IsValid reports whether op is a known operator
func (op Operator) IsValid() bool {
	return validOperators[op]
}

// NeedsValue reports whether rules using op must carry a comparison value
func (op Operator) NeedsValue() bool {
	return op != OpExists && op != OpNotExists
}

// Rule compares the value found at a dot-path in the event data
type Rule struct {
	Field    string      `json:"field"`
	Operator Operator    `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
}

// Example is a few-shot example given to the LLM evaluator
type Example struct {
	Input    interface{} `json:"input"`
	Expected interface{} `json:"expected"`
}

// ConditionSpec is a closed union over rule, llm and combined conditions.
// Type selects the variant; only that variant's fields are meaningful:
//
//	rule:     Rules, Logic
//	llm:      Description, ContextFields, Examples
//	combined: Conditions, Logic
type ConditionSpec struct {
	Type ConditionType `json:"type"`

	Rules []Rule `json:"rules,omitempty"`
	Logic Logic  `json:"logic,omitempty"`

	Description   string    `json:"description,omitempty"`
	ContextFields []string  `json:"context_fields,omitempty"`
	Examples      []Example `json:"examples,omitempty"`

	Conditions []ConditionSpec `json:"conditions,omitempty"`
}

// RuleCondition builds a rule variant
func RuleCondition(logic Logic, rules ...Rule) *ConditionSpec {
	return &ConditionSpec{Type: ConditionTypeRule, Logic: logic, Rules: rules}
}

// LLMCondition builds an llm variant
func LLMCondition(description string, contextFields []string, examples ...Example) *ConditionSpec {
	return &ConditionSpec{Type: ConditionTypeLLM, Description: description, ContextFields: contextFields, Examples: examples}
}

// CombinedCondition builds a combined variant
func CombinedCondition(logic Logic, conditions ...ConditionSpec) *ConditionSpec {
	return &ConditionSpec{Type: ConditionTypeCombined, Logic: logic, Conditions: conditions}
}

// EffectiveLogic returns the condition's logic, defaulting to AND
func (c *ConditionSpec) EffectiveLogic() Logic {
	if c.Logic == "" {
		return LogicAnd
	}
	return c.Logic
}

// UnmarshalJSON decodes a spec and rejects unknown discriminants and logic values
func (c *ConditionSpec) UnmarshalJSON(data []byte) error {
	type plain ConditionSpec
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}

	switch decoded.Type {
	case ConditionTypeRule, ConditionTypeLLM, ConditionTypeCombined:
	case "":
		return fmt.Errorf("condition type is required")
	default:
		return fmt.Errorf("unknown condition type %q", decoded.Type)
	}

	if decoded.Logic != "" {
		logic := Logic(strings.ToUpper(string(decoded.Logic)))
		if logic != LogicAnd && logic != LogicOr {
			return fmt.Errorf("unknown condition logic %q", decoded.Logic)
		}
		decoded.Logic = logic
	}

	*c = ConditionSpec(decoded)
	return nil
}
