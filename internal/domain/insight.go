package domain

import (
	"fmt"
	"time"
)

// Language is a supported advisor output language.
type Language string

const (
	LanguageTR Language = "tr"
	LanguageEN Language = "en"
	LanguageRU Language = "ru"
)

// ParseLanguage validates and normalizes a language string.
// An empty string defaults to English.
func ParseLanguage(s string) (Language, error) {
	switch Language(s) {
	case LanguageTR, LanguageEN, LanguageRU:
		return Language(s), nil
	case "":
		return LanguageEN, nil
	default:
		return "", NewValidationError("language", fmt.Sprintf("unsupported language %q", s))
	}
}

// InsightMode tells whether the advice came from the provider or was
// synthesized locally.
type InsightMode string

const (
	ModeAI       InsightMode = "ai"
	ModeFallback InsightMode = "fallback"
)

// ModeReason explains why an insight ended up in fallback mode.
type ModeReason string

const (
	ReasonProviderHTTPError       ModeReason = "provider_http_error"
	ReasonProviderRateLimited     ModeReason = "provider_rate_limited"
	ReasonProviderInvalidResponse ModeReason = "provider_invalid_response"
	ReasonProviderNotConfigured   ModeReason = "provider_not_configured"
)

// Month is a calendar month in "YYYY-MM" form.
type Month string

// ParseMonth validates a month string. An empty string resolves to the
// current UTC month.
func ParseMonth(s string, now time.Time) (Month, error) {
	if s == "" {
		return Month(now.UTC().Format("2006-01")), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return "", NewValidationError("month", fmt.Sprintf("invalid month %q, expected YYYY-MM", s))
	}
	return Month(t.Format("2006-01")), nil
}

// Bounds returns the inclusive start and exclusive end of the month in UTC.
func (m Month) Bounds() (time.Time, time.Time) {
	t, _ := time.Parse("2006-01", string(m))
	return t, t.AddDate(0, 1, 0)
}

func (m Month) String() string { return string(m) }

// SavingsAdvice groups savings-related recommendations.
type SavingsAdvice struct {
	Assessment  string   `json:"assessment"`
	TargetRate  string   `json:"targetRate,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// InvestmentAdvice groups investment-related recommendations.
type InvestmentAdvice struct {
	Readiness   string   `json:"readiness"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ExpenseOptimization groups cost-cutting recommendations.
type ExpenseOptimization struct {
	FocusCategories []string `json:"focusCategories,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
}

// AdviceBody is the advice payload itself. All fields are free text authored
// either by the provider or by the fallback synthesizer.
type AdviceBody struct {
	Summary             string              `json:"summary"`
	TopFindings         []string            `json:"topFindings"`
	SuggestedActions    []string            `json:"suggestedActions"`
	Warnings            []string            `json:"warnings"`
	Savings             SavingsAdvice       `json:"savings"`
	Investment          InvestmentAdvice    `json:"investment"`
	ExpenseOptimization ExpenseOptimization `json:"expenseOptimization"`
	Tips                []string            `json:"tips"`
}

// Validate checks the structural invariant for provider-authored advice:
// the required arrays must be non-empty and a summary must be present.
func (b AdviceBody) Validate() error {
	switch {
	case b.Summary == "":
		return NewValidationError("summary", "must not be empty")
	case len(b.TopFindings) == 0:
		return NewValidationError("topFindings", "must not be empty")
	case len(b.SuggestedActions) == 0:
		return NewValidationError("suggestedActions", "must not be empty")
	case len(b.Tips) == 0:
		return NewValidationError("tips", "must not be empty")
	}
	return nil
}

// AdvisorInsight is the generated advice payload for one user, month and
// language. It is immutable once produced; regeneration fully replaces it.
type AdvisorInsight struct {
	Month          Month          `json:"month"`
	Language       Language       `json:"language"`
	Mode           InsightMode    `json:"mode"`
	ModeReason     ModeReason     `json:"modeReason,omitempty"`
	Provider       string         `json:"provider,omitempty"`
	ProviderStatus int            `json:"providerStatus,omitempty"`
	GeneratedAt    time.Time      `json:"generatedAt"`
	Overview       MonthSnapshot  `json:"overview"`
	Advice         AdviceBody     `json:"advice"`
}
