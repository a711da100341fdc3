package conditions

import (
	"context"
	"encoding/json"
	"strings"

	"trigger-engine/internal/common/logging"

	"github.com/kaptinlin/jsonrepair"
)

const extractSystemPrompt = "You extract structured parameters from event data. " +
	"Reply with a single JSON object and nothing else."

// ExtractParameters asks the backend to turn eventData into a JSON object of parameters
// following instruction. It never fails: when the backend is missing, errors, or replies
// with something that is not a JSON object even after repair, it returns
// {event_data, instruction, raw_response}.
func (e *Evaluator) ExtractParameters(ctx context.Context, instruction string, eventData, triggerContext map[string]interface{}) map[string]interface{} {
	logger := e.logger.WithContext(ctx)

	if e.completer == nil {
		logger.Warn("Parameter extraction requested without a completion backend")
		return extractionFallback(instruction, eventData, "")
	}

	callCtx, cancel := context.WithTimeout(ctx, e.llmTimeout)
	defer cancel()

	reply, err := e.completer.Complete(callCtx, extractSystemPrompt, buildExtractionPrompt(instruction, eventData, triggerContext), extractTemperature)
	if err != nil {
		logger.Warn("Parameter extraction failed, using fallback", logging.Err(err))
		return extractionFallback(instruction, eventData, "")
	}

	if params, ok := ParseJSONObject(reply); ok {
		return params
	}

	logger.Warn("Parameter extraction returned no JSON object, using fallback",
		logging.Field{"response", truncate(reply, 200)},
	)
	return extractionFallback(instruction, eventData, reply)
}

// ParseJSONObject decodes reply as a JSON object, tolerating code fences and, via
// jsonrepair, common syntax damage such as trailing commas or single quotes
func ParseJSONObject(reply string) (map[string]interface{}, bool) {
	text := stripCodeFence(strings.TrimSpace(reply))
	if text == "" {
		return nil, false
	}

	var params map[string]interface{}
	if err := json.Unmarshal([]byte(text), &params); err == nil && params != nil {
		return params, true
	}

	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return nil, false
	}
	params = nil
	if err := json.Unmarshal([]byte(repaired), &params); err != nil || params == nil {
		return nil, false
	}
	return params, true
}

func buildExtractionPrompt(instruction string, eventData, triggerContext map[string]interface{}) string {
	var b strings.Builder
	b.WriteString("Instruction: ")
	b.WriteString(strings.TrimSpace(instruction))
	b.WriteString("\n\nEvent data:\n")
	b.WriteString(renderValue(eventData))
	if len(triggerContext) > 0 {
		b.WriteString("\n\nTrigger context:\n")
		b.WriteString(renderValue(triggerContext))
	}
	b.WriteString("\n\nReturn the extracted parameters as a JSON object.")
	return b.String()
}

func extractionFallback(instruction string, eventData map[string]interface{}, raw string) map[string]interface{} {
	return map[string]interface{}{
		"event_data":   eventData,
		"instruction":  instruction,
		"raw_response": raw,
	}
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.Index(text, "\n"); nl >= 0 {
		text = text[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
