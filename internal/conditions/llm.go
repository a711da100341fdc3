package conditions

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"trigger-engine/internal/common/errors"
	"trigger-engine/internal/common/logging"
	"trigger-engine/internal/common/utils"
	"trigger-engine/internal/models"
)

const conditionSystemPrompt = "You decide whether an event satisfies a condition. " +
	"Reply with exactly one word: true or false."

// Reply vocabularies. Negative phrases are checked first because several of them
// contain a positive phrase ("not satisfied" contains "satisfied").
var (
	negativePhrases = []string{
		"not satisfied", "not met", "not fulfilled", "does not", "doesn't", "do not", "don't",
		"is not", "isn't", "not true", "no match", "not match", "fails", "failed", "negative",
		"false", "no",
	}
	positivePhrases = []string{
		"satisfied", "condition is met", "is met", "fulfilled", "matches", "match", "affirmative",
		"correct", "true", "yes",
	}
)

func (e *Evaluator) evaluateLLM(ctx context.Context, spec *models.ConditionSpec, eventData, triggerContext map[string]interface{}) (bool, error) {
	if e.completer == nil {
		return false, errors.ConditionEvaluationError("llm condition requires a completion backend",
			errors.DependencyUnavailableError("condition_evaluator", nil))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()

	reply, err := e.completer.Complete(callCtx, conditionSystemPrompt, BuildConditionPrompt(spec, eventData, triggerContext), conditionTemperature)
	if err != nil {
		if ctxErr := callCtx.Err(); ctxErr != nil {
			err = errors.TimeoutError("llm condition evaluation", ctxErr)
		}
		return false, errors.ConditionEvaluationError("llm condition evaluation failed", err)
	}

	result, clear := ClassifyReply(reply)
	if !clear {
		e.logger.WithContext(ctx).Warn("Unclear response from condition evaluator, treating as false",
			logging.Field{"response", truncate(reply, 200)},
		)
	}
	return result, nil
}

// BuildConditionPrompt renders the user prompt for an llm condition. The output depends
// only on its inputs: context fields keep their declared order and maps render with sorted keys.
func BuildConditionPrompt(spec *models.ConditionSpec, eventData, triggerContext map[string]interface{}) string {
	var b strings.Builder

	b.WriteString("Condition: ")
	b.WriteString(strings.TrimSpace(spec.Description))
	b.WriteString("\n\nEvent data:\n")
	if len(spec.ContextFields) > 0 {
		for _, field := range spec.ContextFields {
			fmt.Fprintf(&b, "- %s: %s\n", field, renderValue(utils.GetFieldValue(eventData, field)))
		}
	} else {
		b.WriteString(renderValue(eventData))
		b.WriteString("\n")
	}

	if len(spec.Examples) > 0 {
		b.WriteString("\nExamples:\n")
		for i, ex := range spec.Examples {
			fmt.Fprintf(&b, "%d. Input: %s\n   Expected: %s\n", i+1, renderValue(ex.Input), renderValue(ex.Expected))
		}
	}

	if len(triggerContext) > 0 {
		b.WriteString("\nTrigger context:\n")
		keys := make([]string, 0, len(triggerContext))
		for k := range triggerContext {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, renderValue(triggerContext[k]))
		}
	}

	b.WriteString("\nIs the condition satisfied? Answer true or false.")
	return b.String()
}

// ClassifyReply maps a free-text reply to a decision. clear is false when nothing in
// the reply was recognised; the decision is then false.
func ClassifyReply(reply string) (result bool, clear bool) {
	normalized := strings.ToLower(strings.TrimSpace(reply))
	normalized = strings.Trim(normalized, "\"'`")
	normalized = strings.TrimRight(normalized, ".!?,;: ")

	switch normalized {
	case "true":
		return true, true
	case "false":
		return false, true
	}

	padded := " " + strings.Map(func(r rune) rune {
		if strings.ContainsRune(".,!?;:\"`()[]{}\n\t", r) {
			return ' '
		}
		return r
	}, normalized) + " "

	for _, phrase := range negativePhrases {
		if strings.Contains(padded, " "+phrase+" ") {
			return false, true
		}
	}
	for _, phrase := range positivePhrases {
		if strings.Contains(padded, " "+phrase+" ") {
			return true, true
		}
	}
	return false, false
}

// renderValue produces compact JSON; encoding/json sorts map keys
func renderValue(v interface{}) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
