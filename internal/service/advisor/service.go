// Package advisor turns a user's monthly financial activity into advice,
// generated by an external text provider when possible and synthesized
// locally when not.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finwell/finwell-backend/internal/config"
	"github.com/finwell/finwell-backend/internal/domain"
)

// SnapshotBuilder aggregates one month of a user's financial activity.
type SnapshotBuilder interface {
	MonthSnapshot(ctx context.Context, userID uuid.UUID, month domain.Month) (domain.MonthSnapshot, error)
}

// TextGenerator produces free text from a system and user prompt. Failures
// are reported as *domain.ProviderError.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// DiagnosticFunc receives pipeline events for the diagnostics trail. The
// payload is event-specific; callers must treat it as read-only.
type DiagnosticFunc func(event string, payload map[string]any)

// Service orchestrates the insight pipeline: admission gates, cache lookup,
// snapshot aggregation, provider call and fallback synthesis.
type Service struct {
	log       *slog.Logger
	cfg       config.AdvisorConfig
	snapshots SnapshotBuilder
	generator TextGenerator
	gate      *Gatekeeper
	cache     *InsightCache
	now       func() time.Time
}

// NewService creates the advisor service. generator may be nil when no
// provider is configured; every insight is then synthesized locally.
func NewService(log *slog.Logger, cfg config.AdvisorConfig, snapshots SnapshotBuilder, generator TextGenerator) *Service {
	return &Service{
		log:       log.With("service", "advisor"),
		cfg:       cfg,
		snapshots: snapshots,
		generator: generator,
		gate:      NewGatekeeper(cfg),
		cache:     NewInsightCache(),
		now:       time.Now,
	}
}

// GetInsight returns the advisor insight for the user's month, serving from
// cache unless regenerate is set. onDiag may be nil.
//
// Errors the caller must map: domain.ErrRateLimited (window spent),
// *domain.CooldownError (regenerate too soon), and *domain.ProviderError
// for the failure classes that escalate instead of falling back.
func (s *Service) GetInsight(ctx context.Context, userID uuid.UUID, month domain.Month, language domain.Language, regenerate bool, onDiag DiagnosticFunc) (*domain.AdvisorInsight, error) {
	diag := func(event string, payload map[string]any) {
		if onDiag != nil {
			onDiag(event, payload)
		}
	}

	diag("advisor.request", map[string]any{
		"month":      month.String(),
		"language":   string(language),
		"regenerate": regenerate,
	})

	if err := s.gate.CheckRate(userID); err != nil {
		return nil, err
	}
	if regenerate {
		if err := s.gate.CheckCooldown(userID); err != nil {
			return nil, err
		}
	}

	if !regenerate {
		if cached, ok := s.cache.Get(userID, month, language); ok {
			diag("advisor.cache_hit", map[string]any{"month": month.String()})
			return cached, nil
		}
	}

	snapshot, err := s.snapshots.MonthSnapshot(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("build month snapshot: %w", err)
	}

	insight, err := s.generate(ctx, snapshot, language, regenerate, diag)
	if err != nil {
		return nil, err
	}

	// Every produced insight overwrites the cache entry, fallback included.
	// Escalated failures return above and leave the previous entry in place.
	s.cache.Put(userID, month, language, *insight)
	return insight, nil
}

// generate produces the insight for the snapshot, calling the provider when
// configured and deciding per failure class between fallback and escalation.
func (s *Service) generate(ctx context.Context, snapshot domain.MonthSnapshot, language domain.Language, regenerate bool, diag DiagnosticFunc) (*domain.AdvisorInsight, error) {
	if s.generator == nil {
		diag("advisor.fallback", map[string]any{"reason": string(domain.ReasonProviderNotConfigured)})
		return s.fallbackInsight(snapshot, language, domain.ReasonProviderNotConfigured, 0), nil
	}

	variantNonce := ""
	if regenerate {
		variantNonce = uuid.NewString()
	}

	userPrompt, err := buildUserPrompt(snapshot, variantNonce)
	if err != nil {
		return nil, err
	}

	diag("provider.call", map[string]any{
		"model":      s.generator.Model(),
		"regenerate": regenerate,
	})

	text, err := s.generator.Generate(ctx, buildSystemPrompt(language), userPrompt)
	if err != nil {
		return s.handleProviderFailure(ctx, snapshot, language, regenerate, err, diag)
	}

	advice, err := parseAdvice(text)
	if err != nil {
		s.log.WarnContext(ctx, "unusable provider output", slog.Any("error", err))
		diag("advisor.fallback", map[string]any{"reason": string(domain.ReasonProviderInvalidResponse)})
		return s.fallbackInsight(snapshot, language, domain.ReasonProviderInvalidResponse, 0), nil
	}

	diag("provider.result", map[string]any{"mode": string(domain.ModeAI)})
	return &domain.AdvisorInsight{
		Month:       snapshot.Month,
		Language:    language,
		Mode:        domain.ModeAI,
		Provider:    s.generator.Model(),
		GeneratedAt: s.now().UTC(),
		Overview:    snapshot,
		Advice:      advice,
	}, nil
}

// handleProviderFailure applies the per-class policy: invalid requests always
// escalate, rate limiting escalates only when the user explicitly asked for a
// regeneration, everything else degrades to fallback advice.
func (s *Service) handleProviderFailure(ctx context.Context, snapshot domain.MonthSnapshot, language domain.Language, regenerate bool, err error, diag DiagnosticFunc) (*domain.AdvisorInsight, error) {
	perr, ok := domain.AsProviderError(err)
	if !ok {
		return nil, fmt.Errorf("provider call: %w", err)
	}

	s.log.WarnContext(ctx, "provider failure",
		slog.String("reason", string(perr.Reason)),
		slog.Int("status", perr.Status),
	)

	var reason domain.ModeReason
	switch perr.Reason {
	case domain.ProviderFailInvalidRequest:
		return nil, perr
	case domain.ProviderFailRateLimited:
		if regenerate {
			return nil, perr
		}
		reason = domain.ReasonProviderRateLimited
	case domain.ProviderFailInvalidResponse:
		reason = domain.ReasonProviderInvalidResponse
	default:
		reason = domain.ReasonProviderHTTPError
	}

	diag("advisor.fallback", map[string]any{
		"reason": string(reason),
		"status": perr.Status,
	})
	return s.fallbackInsight(snapshot, language, reason, perr.Status), nil
}

func (s *Service) fallbackInsight(snapshot domain.MonthSnapshot, language domain.Language, reason domain.ModeReason, providerStatus int) *domain.AdvisorInsight {
	return &domain.AdvisorInsight{
		Month:          snapshot.Month,
		Language:       language,
		Mode:           domain.ModeFallback,
		ModeReason:     reason,
		ProviderStatus: providerStatus,
		GeneratedAt:    s.now().UTC(),
		Overview:       snapshot,
		Advice:         fallbackAdvice(snapshot, language),
	}
}

// ConsumeFreeUsage records the user's free generation for today and reports
// whether it was still available, along with the UTC day it was booked under.
func (s *Service) ConsumeFreeUsage(userID uuid.UUID) (allowFree bool, dayKey string) {
	return s.gate.ConsumeFree(userID)
}

// ProviderConfigured reports whether a text generator is wired in.
func (s *Service) ProviderConfigured() bool { return s.generator != nil }

// CheckProvider verifies the configured model exists in the provider's
// catalog. Only meaningful for generators that support probing.
func (s *Service) CheckProvider(ctx context.Context) (bool, error) {
	if s.generator == nil {
		return false, errors.New("provider not configured")
	}
	probe, ok := s.generator.(interface {
		ModelExists(ctx context.Context) (bool, error)
	})
	if !ok {
		return false, errors.New("provider does not support model probing")
	}
	return probe.ModelExists(ctx)
}
