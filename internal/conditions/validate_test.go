package conditions

import (
	"testing"

	"trigger-engine/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestValidateSyntax(t *testing.T) {
	tests := []struct {
		name string
		spec *models.ConditionSpec
		want []string
	}{
		{"nil", nil, nil},
		{"valid rule", models.RuleCondition(models.LogicAnd, rule("status", models.OpEquals, "open")), nil},
		{"exists needs no value", models.RuleCondition(models.LogicOr, rule("id", models.OpExists, nil)), nil},
		{"empty rules", models.RuleCondition(models.LogicAnd), []string{"rule condition requires at least one rule"}},
		{"bad operator", models.RuleCondition(models.LogicAnd, rule("a", "like", "x")), []string{`rules[0]: invalid operator "like"`}},
		{"missing value", models.RuleCondition(models.LogicAnd, rule("a", models.OpGreater, nil)), []string{"rules[0]: value is required for operator gt"}},
		{"missing field", models.RuleCondition(models.LogicAnd, rule(" ", models.OpExists, nil)), []string{"rules[0]: field is required"}},
		{"llm without description", models.LLMCondition("  ", nil), []string{"llm condition requires a description"}},
		{"valid llm", models.LLMCondition("is urgent", nil), nil},
		{"empty combined", models.CombinedCondition(models.LogicAnd), []string{"combined condition requires at least one sub-condition"}},
		{"nested problems carry a path", models.CombinedCondition(models.LogicOr,
			*models.LLMCondition("ok", nil),
			*models.RuleCondition(models.LogicAnd),
		), []string{"conditions[1]: rule condition requires at least one rule"}},
		{"unknown type", &models.ConditionSpec{Type: "regex"}, []string{`unknown condition type "regex"`}},
		{"bad logic", &models.ConditionSpec{Type: models.ConditionTypeLLM, Description: "x", Logic: "XOR"}, []string{"logic must be AND or OR"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateSyntax(tt.spec))
		})
	}
}

func TestEvaluator_ValidateSyntaxMakesNoBackendCalls(t *testing.T) {
	stub := &stubCompleter{reply: "true"}
	e := NewEvaluator(stub, nil)
	assert.Empty(t, e.ValidateSyntax(models.LLMCondition("is urgent", nil)))
	assert.Zero(t, stub.calls)
}
