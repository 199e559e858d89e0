package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used across all layers.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrRateLimited   = errors.New("rate limited")
)

// FieldError describes a validation error for a specific field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError contains a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	return fmt.Sprintf("validation: %d errors", len(e.Errors))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Errors: []FieldError{{Field: field, Message: message}},
	}
}

// CooldownError is returned when a regenerate request arrives before the
// minimum inter-regenerate interval has elapsed.
type CooldownError struct {
	RetryAfterSec int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("regenerate cooldown active, retry after %ds", e.RetryAfterSec)
}

func (e *CooldownError) Unwrap() error { return ErrRateLimited }

// ProviderFailReason classifies a text-generation provider failure.
type ProviderFailReason string

const (
	ProviderFailInvalidRequest  ProviderFailReason = "request_invalid"
	ProviderFailRateLimited     ProviderFailReason = "rate_limited"
	ProviderFailHTTP            ProviderFailReason = "http_error"
	ProviderFailInvalidResponse ProviderFailReason = "invalid_response"
)

// ProviderError is the structured failure the provider client returns.
// Callers branch on Reason; a bare transport error is never surfaced.
type ProviderError struct {
	Reason        ProviderFailReason
	Status        int // HTTP status, 0 for network failures
	RetryAfterSec int // only set for rate_limited when the provider sent it
	Err           error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s (status %d): %v", e.Reason, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s (status %d)", e.Reason, e.Status)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// AsProviderError unwraps err into a *ProviderError, if it is one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
