// Package advisorclient is the Go client for the advisor API. Coordinator
// adds request coalescing, free-quota handling and diagnostics correlation
// on top of the plain HTTP client.
package advisorclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/finwell/finwell-backend/internal/diag"
	"github.com/finwell/finwell-backend/internal/domain"
)

// requestIDHeader carries the reserved advisor request id to the server.
const requestIDHeader = "X-Advisor-Request-Id"

// APIError is a non-2xx response from the advisor API.
type APIError struct {
	Status        int
	Code          string
	Message       string
	RetryAfterSec int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("advisor api %d %s: %s", e.Status, e.Code, e.Message)
}

// Client is the plain HTTP client for the advisor endpoints.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
	trail   *diag.Correlator
}

// NewClient creates a Client. trail may be nil when diagnostics correlation
// is not wanted.
func NewClient(baseURL, token string, trail *diag.Correlator) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 60 * time.Second},
		trail:   trail,
	}
}

// GetInsight calls GET /advisor/insights. It claims the request id reserved
// for these parameters, if any, and sends it with the call.
func (c *Client) GetInsight(ctx context.Context, month domain.Month, language domain.Language, regenerate bool) (*domain.AdvisorInsight, error) {
	url := fmt.Sprintf("%s/advisor/insights?month=%s&language=%s&regenerate=%t",
		c.baseURL, month, language, regenerate)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set(requestIDHeader, c.requestID(month, language, regenerate))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("advisor request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	var insight domain.AdvisorInsight
	if err := json.NewDecoder(resp.Body).Decode(&insight); err != nil {
		return nil, fmt.Errorf("decode insight: %w", err)
	}
	return &insight, nil
}

// FreeCheck calls POST /advisor/insights/free-check and reports whether
// today's free generation was still available.
func (c *Client) FreeCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/advisor/insights/free-check", nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false, fmt.Errorf("free check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, decodeAPIError(resp)
	}

	var body struct {
		AllowFree bool `json:"allowFree"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode free check: %w", err)
	}
	return body.AllowFree, nil
}

// requestID claims a reserved id for these call parameters, or synthesizes
// a fresh one when nothing was reserved.
func (c *Client) requestID(month domain.Month, language domain.Language, regenerate bool) string {
	if c.trail != nil {
		if id, ok := c.trail.Consume(month, language, regenerate); ok {
			return id
		}
	}
	return uuid.NewString()
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}

	var body struct {
		Error         string `json:"error"`
		Code          string `json:"code"`
		RetryAfterSec int    `json:"retryAfterSec"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
		apiErr.RetryAfterSec = body.RetryAfterSec
	}
	return apiErr
}
