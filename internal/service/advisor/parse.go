package advisor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finwell/finwell-backend/internal/domain"
)

// parseAdvice extracts and validates the AdviceBody JSON from raw model
// output. Models wrap JSON in prose or code fences often enough that we
// cut from the first '{' to the last '}' before decoding.
func parseAdvice(text string) (domain.AdviceBody, error) {
	var body domain.AdviceBody

	jsonStr, err := extractJSON(text)
	if err != nil {
		return body, err
	}

	if !json.Valid([]byte(jsonStr)) {
		return body, fmt.Errorf("response does not contain valid JSON")
	}

	if err := json.Unmarshal([]byte(jsonStr), &body); err != nil {
		return body, fmt.Errorf("decode advice: %w", err)
	}

	if err := body.Validate(); err != nil {
		return body, fmt.Errorf("advice shape: %w", err)
	}

	return body, nil
}

// extractJSON finds the first complete JSON object in a string.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("no JSON object found in response")
	}
	return s[start : end+1], nil
}
