// Package workersai calls the Cloudflare Workers AI text-generation API.
package workersai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/finwell/finwell-backend/internal/config"
	"github.com/finwell/finwell-backend/internal/domain"
)

// Request is one text-generation call.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	// MaxAttempts bounds the rate-limit retry. Zero means the configured
	// default. The client never makes more than MaxAttempts HTTP calls.
	MaxAttempts int
}

// Client is the Workers AI HTTP client.
type Client struct {
	baseURL    string
	accountID  string
	apiToken   string
	model      string
	maxTokens  int
	attempts   int
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates a Client from provider configuration.
func NewClient(cfg config.ProviderConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		accountID:  cfg.AccountID,
		apiToken:   cfg.APIToken,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		attempts:   cfg.MaxAttempts,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        logger.With("adapter", "workersai"),
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Generate runs one generation with the configured defaults.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.GenerateText(ctx, Request{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
}

// RunURL builds the model invocation endpoint. The model identifier is a
// structural path component and must stay verbatim: Workers AI models contain
// "@" and "/" (e.g. "@cf/meta/llama-3.1-8b-instruct"), and escaping them
// produces a 404.
func RunURL(baseURL, accountID, model string) string {
	return baseURL + "/accounts/" + accountID + "/ai/run/" + model
}

// GenerateText sends the prompts to the provider and returns the generated
// plain text. Failures come back as *domain.ProviderError; on rate limiting
// the call is retried exactly once more when the attempt budget allows, with
// no delay in between (pacing is the caller's concern).
func (c *Client) GenerateText(ctx context.Context, req Request) (string, error) {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = c.attempts
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	var lastErr *domain.ProviderError
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		text, perr := c.call(ctx, req.SystemPrompt, req.UserPrompt, maxTokens)
		if perr == nil {
			return text, nil
		}
		lastErr = perr

		// Only transient rate limiting earns another attempt.
		if perr.Reason != domain.ProviderFailRateLimited {
			break
		}
		c.log.WarnContext(ctx, "workersai rate limited",
			slog.Int("attempt", attempt),
			slog.Int("retry_after_sec", perr.RetryAfterSec),
		)
	}
	return "", lastErr
}

// call performs a single HTTP invocation.
func (c *Client) call(ctx context.Context, system, user string, maxTokens int) (string, *domain.ProviderError) {
	body := runRequest{
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: maxTokens,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &domain.ProviderError{Reason: domain.ProviderFailInvalidRequest, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		RunURL(c.baseURL, c.accountID, c.model), bytes.NewReader(payload))
	if err != nil {
		return "", &domain.ProviderError{Reason: domain.ProviderFailInvalidRequest, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &domain.ProviderError{Reason: domain.ProviderFailHTTP, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.ProviderError{Reason: domain.ProviderFailHTTP, Status: resp.StatusCode, Err: err}
	}

	c.log.DebugContext(ctx, "workersai response",
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)),
	)

	if perr := classify(resp, raw); perr != nil {
		return "", perr
	}

	text, err := parseRunResponse(raw)
	if err != nil {
		return "", &domain.ProviderError{Reason: domain.ProviderFailInvalidResponse, Status: resp.StatusCode, Err: err}
	}
	return text, nil
}

// classify maps HTTP status plus provider error codes to a failure reason.
// Returns nil for a usable 2xx response.
func classify(resp *http.Response, raw []byte) *domain.ProviderError {
	status := resp.StatusCode

	switch {
	case status == http.StatusBadRequest:
		return &domain.ProviderError{
			Reason: domain.ProviderFailInvalidRequest,
			Status: status,
			Err:    fmt.Errorf("provider rejected request: %s", firstErrorMessage(raw)),
		}
	case status == http.StatusTooManyRequests:
		return &domain.ProviderError{
			Reason:        domain.ProviderFailRateLimited,
			Status:        status,
			RetryAfterSec: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	case status >= 500:
		return &domain.ProviderError{
			Reason: domain.ProviderFailHTTP,
			Status: status,
			Err:    fmt.Errorf("provider unavailable: %s", firstErrorMessage(raw)),
		}
	case status >= 200 && status < 300:
		// A 2xx envelope can still carry success=false with error codes.
		var env runEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return &domain.ProviderError{Reason: domain.ProviderFailInvalidResponse, Status: status, Err: err}
		}
		if env.Success {
			return nil
		}
		code, msg := firstError(env.Errors)
		switch {
		case isQuotaCode(code):
			return &domain.ProviderError{Reason: domain.ProviderFailRateLimited, Status: status}
		case isInvalidRequestCode(code):
			return &domain.ProviderError{
				Reason: domain.ProviderFailInvalidRequest,
				Status: status,
				Err:    fmt.Errorf("provider error %d: %s", code, msg),
			}
		default:
			return &domain.ProviderError{
				Reason: domain.ProviderFailHTTP,
				Status: status,
				Err:    fmt.Errorf("provider error %d: %s", code, msg),
			}
		}
	default:
		return &domain.ProviderError{
			Reason: domain.ProviderFailHTTP,
			Status: status,
			Err:    fmt.Errorf("unexpected status %d", status),
		}
	}
}

// Workers AI numeric error codes.
func isQuotaCode(code int) bool {
	return code == 3040 || code == 3041 // account limited / neurons exhausted
}

func isInvalidRequestCode(code int) bool {
	return code >= 5000 && code < 6000 // request validation family
}

func parseRetryAfter(h string) int {
	if h == "" {
		return 0
	}
	sec, err := strconv.Atoi(h)
	if err != nil || sec < 0 {
		return 0
	}
	return sec
}

// ModelExists probes the model catalog for the configured model.
// Used only by the provider-health endpoint.
func (c *Client) ModelExists(ctx context.Context) (bool, error) {
	searchURL := c.baseURL + "/accounts/" + c.accountID + "/ai/models/search?search=" + c.model

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return false, fmt.Errorf("workersai: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("workersai: model search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("workersai: model search status %d", resp.StatusCode)
	}

	var env modelSearchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return false, fmt.Errorf("workersai: decode model search: %w", err)
	}

	for _, m := range env.Result {
		if m.Name == c.model {
			return true, nil
		}
	}
	return false, nil
}
