// Package conditions evaluates the optional gate attached to a trigger: declarative rules,
// natural-language conditions judged by an LLM, and boolean combinations of both.
package conditions

import (
	"context"
	"fmt"
	"time"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/common/utils"
	"trigger-engine/internal/models"
)

// Completer is the text completion backend used for llm conditions and parameter extraction
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, temperature float32) (string, error)
}

const (
	defaultLLMTimeout = 20 * time.Second
	// conditionTemperature keeps classification replies close to deterministic
	conditionTemperature float32 = 0.1
	extractTemperature   float32 = 0.0
)

// Evaluator decides whether event data satisfies a ConditionSpec.
// It holds no per-request state and is safe for concurrent use.
type Evaluator struct {
	completer  Completer
	logger     logging.Logger
	llmTimeout time.Duration
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithLLMTimeout bounds every backend call made by the evaluator
func WithLLMTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.llmTimeout = d
		}
	}
}

// NewEvaluator creates an evaluator. completer may be nil, in which case llm conditions fail
// with a ConditionEvaluationError and parameter extraction returns the fallback map.
func NewEvaluator(completer Completer, logger logging.Logger, opts ...Option) *Evaluator {
	e := &Evaluator{
		completer:  completer,
		logger:     logging.OrGlobal(logger).WithFields(logging.Field{"component", "condition_evaluator"}),
		llmTimeout: defaultLLMTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate reports whether eventData satisfies spec. A nil spec always passes.
// Malformed specs and backend failures are returned as ConditionEvaluationError.
func (e *Evaluator) Evaluate(ctx context.Context, spec *models.ConditionSpec, eventData, triggerContext map[string]interface{}) (bool, error) {
	if spec == nil {
		return true, nil
	}
	return e.evaluate(ctx, spec, eventData, triggerContext)
}

func (e *Evaluator) evaluate(ctx context.Context, spec *models.ConditionSpec, eventData, triggerContext map[string]interface{}) (bool, error) {
	switch spec.Type {
	case models.ConditionTypeRule:
		return e.evaluateRules(spec, eventData)
	case models.ConditionTypeLLM:
		return e.evaluateLLM(ctx, spec, eventData, triggerContext)
	case models.ConditionTypeCombined:
		return e.evaluateCombined(ctx, spec, eventData, triggerContext)
	default:
		return false, errors.ConditionEvaluationError(fmt.Sprintf("unknown condition type %q", spec.Type), nil)
	}
}

func (e *Evaluator) evaluateRules(spec *models.ConditionSpec, eventData map[string]interface{}) (bool, error) {
	if len(spec.Rules) == 0 {
		return true, nil
	}

	logic := spec.EffectiveLogic()
	for i := range spec.Rules {
		matched, err := EvaluateRule(&spec.Rules[i], eventData)
		if err != nil {
			return false, errors.ConditionEvaluationError(fmt.Sprintf("rule %d", i), err)
		}
		if logic == models.LogicOr && matched {
			return true, nil
		}
		if logic == models.LogicAnd && !matched {
			return false, nil
		}
	}
	return logic == models.LogicAnd, nil
}

func (e *Evaluator) evaluateCombined(ctx context.Context, spec *models.ConditionSpec, eventData, triggerContext map[string]interface{}) (bool, error) {
	if len(spec.Conditions) == 0 {
		return true, nil
	}

	logic := spec.EffectiveLogic()
	for i := range spec.Conditions {
		matched, err := e.evaluate(ctx, &spec.Conditions[i], eventData, triggerContext)
		if err != nil {
			return false, err
		}
		if logic == models.LogicOr && matched {
			return true, nil
		}
		if logic == models.LogicAnd && !matched {
			return false, nil
		}
	}
	return logic == models.LogicAnd, nil
}

// EvaluateRule applies one rule to eventData. A missing path yields nil, which only
// exists and not_exists can match.
func EvaluateRule(rule *models.Rule, eventData map[string]interface{}) (bool, error) {
	actual := utils.GetFieldValue(eventData, rule.Field)

	switch rule.Operator {
	case models.OpExists:
		return actual != nil, nil
	case models.OpNotExists:
		return actual == nil, nil
	}

	if actual == nil {
		return false, nil
	}

	switch rule.Operator {
	case models.OpEquals:
		return valuesEqual(actual, rule.Value), nil
	case models.OpNotEquals:
		return !valuesEqual(actual, rule.Value), nil
	case models.OpGreater, models.OpLess, models.OpGreaterEq, models.OpLessEq:
		return compareNumeric(actual, rule.Value, rule.Operator), nil
	case models.OpContains:
		found, ok := contains(actual, rule.Value)
		return ok && found, nil
	case models.OpNotContains:
		found, ok := contains(actual, rule.Value)
		return ok && !found, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", rule.Operator)
	}
}
