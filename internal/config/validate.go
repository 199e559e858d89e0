package config

import (
	"fmt"
	"slices"
)

var validEnvironments = []string{"development", "staging", "production"}

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if !slices.Contains(validEnvironments, c.Environment) {
		return fmt.Errorf("environment must be one of %v (got %q)", validEnvironments, c.Environment)
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
	}

	if err := c.Advisor.validate(); err != nil {
		return fmt.Errorf("advisor: %w", err)
	}

	if err := c.Provider.validate(); err != nil {
		return fmt.Errorf("provider: %w", err)
	}

	return nil
}

func (a AdvisorConfig) validate() error {
	if a.RateLimitRequests <= 0 {
		return fmt.Errorf("rate_limit_requests must be > 0 (got %d)", a.RateLimitRequests)
	}
	if a.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window must be > 0 (got %v)", a.RateLimitWindow)
	}
	if a.RegenerateCooldown < 0 {
		return fmt.Errorf("regenerate_cooldown must be >= 0 (got %v)", a.RegenerateCooldown)
	}
	if a.DiagBufferSize <= 0 {
		return fmt.Errorf("diag_buffer_size must be > 0 (got %d)", a.DiagBufferSize)
	}
	return nil
}

func (p ProviderConfig) validate() error {
	// Partial credentials are a misconfiguration; all-empty means the
	// advisor deliberately runs in fallback-only mode.
	if p.AccountID == "" && p.APIToken == "" {
		return nil
	}
	if p.AccountID == "" || p.APIToken == "" {
		return fmt.Errorf("account_id and api_token must be set together")
	}
	if p.Model == "" {
		return fmt.Errorf("model must not be empty when credentials are set")
	}
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1 (got %d)", p.MaxAttempts)
	}
	return nil
}
