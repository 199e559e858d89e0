package diag

import "strings"

// RedactionMarker replaces any value whose key matches the deny-list.
const RedactionMarker = "[redacted]"

// denyList is matched case-insensitively as a substring of the key, so
// "Authorization", "refreshToken" and "user_email" are all caught.
var denyList = []string{"token", "authorization", "email", "apikey"}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, deny := range denyList {
		if strings.Contains(lower, deny) {
			return true
		}
	}
	return false
}

// RedactMap deep-copies the payload, replacing values under sensitive keys
// with RedactionMarker. Nested maps and slices are walked recursively; the
// input is never mutated.
func RedactMap(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if sensitiveKey(k) {
			out[k] = RedactionMarker
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return RedactMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
