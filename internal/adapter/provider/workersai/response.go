package workersai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// runRequest is the invocation body.
type runRequest struct {
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// runEnvelope is the provider's standard response wrapper.
type runEnvelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Errors  []apiError      `json:"errors"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// singleTextResult is the simple completion shape: {"response": "..."}.
type singleTextResult struct {
	Response string `json:"response"`
}

// chatMessagesResult is the chat shape, where assistant content is a list of
// typed fragments.
type chatMessagesResult struct {
	Messages []resultMessage `json:"messages"`
}

type resultMessage struct {
	Role    string          `json:"role"`
	Content []resultContent `json:"content"`
}

type resultContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// parseRunResponse extracts the generated text from a successful envelope.
// Two shapes are recognized; anything else is a hard parse failure rather
// than a silent empty string.
func parseRunResponse(raw []byte) (string, error) {
	var env runEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if len(env.Result) == 0 {
		return "", fmt.Errorf("envelope has no result")
	}

	// Shape (a): single string field.
	var single singleTextResult
	if err := json.Unmarshal(env.Result, &single); err == nil && single.Response != "" {
		return single.Response, nil
	}

	// Shape (b): chat messages, assistant fragments joined in list order.
	var chat chatMessagesResult
	if err := json.Unmarshal(env.Result, &chat); err == nil && len(chat.Messages) > 0 {
		var parts []string
		for _, msg := range chat.Messages {
			if msg.Role != "assistant" {
				continue
			}
			for _, frag := range msg.Content {
				if frag.Text != "" {
					parts = append(parts, frag.Text)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}

	return "", fmt.Errorf("unrecognized result shape")
}

// firstError returns the first provider error code and message, if any.
func firstError(errs []apiError) (int, string) {
	if len(errs) == 0 {
		return 0, ""
	}
	return errs[0].Code, errs[0].Message
}

// firstErrorMessage extracts the first error message from a raw envelope,
// for diagnostics only.
func firstErrorMessage(raw []byte) string {
	var env runEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "unreadable body"
	}
	_, msg := firstError(env.Errors)
	if msg == "" {
		return "no error detail"
	}
	return msg
}

// modelSearchEnvelope is the model catalog search response.
type modelSearchEnvelope struct {
	Success bool          `json:"success"`
	Result  []modelRecord `json:"result"`
}

type modelRecord struct {
	Name string `json:"name"`
}
