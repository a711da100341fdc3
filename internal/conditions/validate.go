package conditions

import (
	"fmt"
	"strings"

	"trigger-engine/internal/models"
)

// ValidateSyntax checks spec without calling any backend and returns one message per
// problem. A nil spec is valid.
func (e *Evaluator) ValidateSyntax(spec *models.ConditionSpec) []string {
	return ValidateSyntax(spec)
}

// ValidateSyntax is the stateless form of Evaluator.ValidateSyntax
func ValidateSyntax(spec *models.ConditionSpec) []string {
	if spec == nil {
		return nil
	}
	var problems []string
	validateSpec(spec, "", &problems)
	return problems
}

func validateSpec(spec *models.ConditionSpec, prefix string, problems *[]string) {
	add := func(format string, args ...interface{}) {
		*problems = append(*problems, prefix+fmt.Sprintf(format, args...))
	}

	if spec.Logic != "" && spec.Logic != models.LogicAnd && spec.Logic != models.LogicOr {
		add("logic must be AND or OR")
	}

	switch spec.Type {
	case models.ConditionTypeRule:
		if len(spec.Rules) == 0 {
			add("rule condition requires at least one rule")
		}
		for i, rule := range spec.Rules {
			if strings.TrimSpace(rule.Field) == "" {
				add("rules[%d]: field is required", i)
			}
			if !rule.Operator.IsValid() {
				add("rules[%d]: invalid operator %q", i, rule.Operator)
				continue
			}
			if rule.Operator.NeedsValue() && rule.Value == nil {
				add("rules[%d]: value is required for operator %s", i, rule.Operator)
			}
		}
	case models.ConditionTypeLLM:
		if strings.TrimSpace(spec.Description) == "" {
			add("llm condition requires a description")
		}
	case models.ConditionTypeCombined:
		if len(spec.Conditions) == 0 {
			add("combined condition requires at least one sub-condition")
		}
		for i := range spec.Conditions {
			validateSpec(&spec.Conditions[i], fmt.Sprintf("%sconditions[%d]: ", prefix, i), problems)
		}
	default:
		add("unknown condition type %q", spec.Type)
	}
}
