package utils

import (
	"strconv"
	"strings"
)

// GetFieldValue extracts a value from nested maps and slices using a dot-separated path.
// Supports "user.profile.name", "items[0].name" and "items.0.name". A missing path yields nil.
func GetFieldValue(data map[string]interface{}, path string) interface{} {
	if path == "" || data == nil {
		return nil
	}

	var current interface{} = data
	for _, part := range splitPath(path) {
		if current == nil {
			return nil
		}

		switch v := current.(type) {
		case map[string]interface{}:
			next, ok := v[part]
			if !ok {
				return nil
			}
			current = next
		case map[string]string:
			next, ok := v[part]
			if !ok {
				return nil
			}
			current = next
		case []interface{}:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil
			}
			current = v[idx]
		default:
			return nil
		}
	}

	return current
}

// splitPath turns "a.b[0].c" into ["a", "b", "0", "c"].
func splitPath(path string) []string {
	parts := make([]string, 0, 4)
	for _, segment := range strings.Split(path, ".") {
		for segment != "" {
			open := strings.Index(segment, "[")
			if open < 0 {
				parts = append(parts, segment)
				break
			}
			if open > 0 {
				parts = append(parts, segment[:open])
			}
			closeIdx := strings.Index(segment[open:], "]")
			if closeIdx < 0 {
				parts = append(parts, segment[open:])
				break
			}
			parts = append(parts, segment[open+1:open+closeIdx])
			segment = segment[open+closeIdx+1:]
		}
	}
	return parts
}

// SelectFields returns the subset of data addressed by paths, keyed by path.
// Paths that do not resolve are omitted.
func SelectFields(data map[string]interface{}, paths []string) map[string]interface{} {
	selected := make(map[string]interface{}, len(paths))
	for _, path := range paths {
		if value := GetFieldValue(data, path); value != nil {
			selected[path] = value
		}
	}
	return selected
}
