package webhooks

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"trigger-engine/internal/common/errors"
)

// Keys understood in validation_rules
const (
	RuleRequiredHeaders = "required_headers"
	RuleContentType     = "content_type"
	RuleBodyFormat      = "body_format"
)

var bodyFormats = map[string]bool{"json": true, "form": true, "text": true}

// Rules is a parsed validation_rules object
type Rules struct {
	RequiredHeaders []string
	ContentType     string
	BodyFormat      string
}

// ParseRules decodes validation_rules. Unknown keys are ignored; keys with the
// wrong shape produce a WebhookValidationError.
func ParseRules(raw map[string]interface{}) (*Rules, error) {
	rules := &Rules{}
	if len(raw) == 0 {
		return rules, nil
	}

	if v, ok := raw[RuleRequiredHeaders]; ok && v != nil {
		headers, err := stringList(v)
		if err != nil {
			return nil, errors.WebhookValidationError("required_headers: " + err.Error())
		}
		rules.RequiredHeaders = headers
	}

	if v, ok := raw[RuleContentType]; ok && v != nil {
		s, isString := v.(string)
		if !isString || strings.TrimSpace(s) == "" {
			return nil, errors.WebhookValidationError("content_type must be a non-empty string")
		}
		rules.ContentType = strings.ToLower(strings.TrimSpace(s))
	}

	if v, ok := raw[RuleBodyFormat]; ok && v != nil {
		s, isString := v.(string)
		if !isString || !bodyFormats[strings.ToLower(s)] {
			return nil, errors.WebhookValidationError(fmt.Sprintf("body_format must be one of json, form, text; got %v", v))
		}
		rules.BodyFormat = strings.ToLower(s)
	}

	return rules, nil
}

func stringList(v interface{}) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return list, nil
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("entries must be non-empty strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("must be a list of header names")
	}
}

// Check returns a description of every rule the request breaks
func (r *Rules) Check(headers map[string]string, body []byte) []string {
	var failures []string

	for _, name := range r.RequiredHeaders {
		if headerValue(headers, name) == "" {
			failures = append(failures, "missing header "+name)
		}
	}

	if r.ContentType != "" {
		mediaType := mediaTypeOf(headerValue(headers, "Content-Type"))
		if mediaType != r.ContentType {
			failures = append(failures, fmt.Sprintf("content type %q does not match %q", mediaType, r.ContentType))
		}
	}

	switch r.BodyFormat {
	case "json":
		if !json.Valid(body) {
			failures = append(failures, "body is not valid JSON")
		}
	case "form":
		if _, err := url.ParseQuery(string(body)); err != nil {
			failures = append(failures, "body is not form encoded")
		}
	}

	return failures
}

func mediaTypeOf(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mediaType
}
