package advisor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finwell/finwell-backend/internal/domain"
)

type snapshotBuilderMock struct {
	MonthSnapshotFunc func(ctx context.Context, userID uuid.UUID, month domain.Month) (domain.MonthSnapshot, error)
}

func (m *snapshotBuilderMock) MonthSnapshot(ctx context.Context, userID uuid.UUID, month domain.Month) (domain.MonthSnapshot, error) {
	return m.MonthSnapshotFunc(ctx, userID, month)
}

type textGeneratorMock struct {
	GenerateFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	calls        int
	userPrompts  []string
}

func (m *textGeneratorMock) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.calls++
	m.userPrompts = append(m.userPrompts, userPrompt)
	return m.GenerateFunc(ctx, systemPrompt, userPrompt)
}

func (m *textGeneratorMock) Model() string { return "@cf/test/model" }

func okSnapshots() *snapshotBuilderMock {
	return &snapshotBuilderMock{
		MonthSnapshotFunc: func(_ context.Context, _ uuid.UUID, month domain.Month) (domain.MonthSnapshot, error) {
			s := testSnapshot()
			s.Month = month
			return s, nil
		},
	}
}

func okGenerator() *textGeneratorMock {
	return &textGeneratorMock{
		GenerateFunc: func(context.Context, string, string) (string, error) {
			return validAdviceJSON, nil
		},
	}
}

func newTestService(gen TextGenerator) *Service {
	return NewService(slog.New(slog.DiscardHandler), testPolicy(), okSnapshots(), gen)
}

func TestServiceGetInsightAIMode(t *testing.T) {
	t.Parallel()

	gen := okGenerator()
	svc := newTestService(gen)
	userID := uuid.New()

	insight, err := svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, false, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ModeAI, insight.Mode)
	assert.Empty(t, insight.ModeReason)
	assert.Equal(t, "@cf/test/model", insight.Provider)
	assert.Equal(t, domain.Month("2025-06"), insight.Month)
	assert.Equal(t, "A solid month overall.", insight.Advice.Summary)
	assert.False(t, insight.GeneratedAt.IsZero())

	// Second plain request is served from cache without another call.
	again, err := svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, false, nil)
	require.NoError(t, err)
	assert.Equal(t, insight.GeneratedAt, again.GeneratedAt)
	assert.Equal(t, 1, gen.calls)
}

func TestServiceGetInsightRegenerateBypassesCache(t *testing.T) {
	t.Parallel()

	gen := okGenerator()
	svc := newTestService(gen)
	userID := uuid.New()

	_, err := svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, false, nil)
	require.NoError(t, err)

	_, err = svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)

	// The regenerate prompt carries a variation hint, the plain one does not.
	assert.NotContains(t, gen.userPrompts[0], "fresh take")
	assert.Contains(t, gen.userPrompts[1], "fresh take")
}

func TestServiceGetInsightRegenerateCooldown(t *testing.T) {
	t.Parallel()

	svc := newTestService(okGenerator())
	userID := uuid.New()

	_, err := svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, true, nil)
	require.NoError(t, err)

	_, err = svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, true, nil)
	require.Error(t, err)

	var cdErr *domain.CooldownError
	require.ErrorAs(t, err, &cdErr)
	assert.Positive(t, cdErr.RetryAfterSec)
}

func TestServiceGetInsightRateLimited(t *testing.T) {
	t.Parallel()

	cfg := testPolicy()
	cfg.RateLimitRequests = 1
	svc := NewService(slog.New(slog.DiscardHandler), cfg, okSnapshots(), okGenerator())
	userID := uuid.New()

	_, err := svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, false, nil)
	require.NoError(t, err)

	// Even a cache hit counts against the window.
	_, err = svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, false, nil)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestServiceGetInsightProviderHTTPErrorFallsBack(t *testing.T) {
	t.Parallel()

	gen := &textGeneratorMock{
		GenerateFunc: func(context.Context, string, string) (string, error) {
			return "", &domain.ProviderError{Reason: domain.ProviderFailHTTP, Status: 503}
		},
	}
	svc := newTestService(gen)
	userID := uuid.New()

	insight, err := svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, false, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ModeFallback, insight.Mode)
	assert.Equal(t, domain.ReasonProviderHTTPError, insight.ModeReason)
	assert.Equal(t, 503, insight.ProviderStatus)
	assert.NoError(t, insight.Advice.Validate())

	// The fallback result is cached like any other generation, so the next
	// plain request does not hit the provider again.
	again, err := svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, false, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeFallback, again.Mode)
	assert.Equal(t, insight.GeneratedAt, again.GeneratedAt)
	assert.Equal(t, 1, gen.calls)
}

func TestServiceGetInsightFallbackOverwritesCachedEntry(t *testing.T) {
	t.Parallel()

	failing := false
	gen := &textGeneratorMock{
		GenerateFunc: func(context.Context, string, string) (string, error) {
			if failing {
				return "", &domain.ProviderError{Reason: domain.ProviderFailHTTP, Status: 502}
			}
			return validAdviceJSON, nil
		},
	}
	svc := newTestService(gen)
	userID := uuid.New()

	first, err := svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, false, nil)
	require.NoError(t, err)
	require.Equal(t, domain.ModeAI, first.Mode)

	failing = true
	second, err := svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, true, nil)
	require.NoError(t, err)
	require.Equal(t, domain.ModeFallback, second.Mode)

	// The regenerated fallback replaced the AI entry.
	cached, err := svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, false, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeFallback, cached.Mode)
	assert.Equal(t, second.GeneratedAt, cached.GeneratedAt)
	assert.Equal(t, 2, gen.calls)
}

func TestServiceGetInsightProviderRateLimit(t *testing.T) {
	t.Parallel()

	providerBusy := func(context.Context, string, string) (string, error) {
		return "", &domain.ProviderError{Reason: domain.ProviderFailRateLimited, Status: 429, RetryAfterSec: 30}
	}

	t.Run("plain request falls back", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(&textGeneratorMock{GenerateFunc: providerBusy})
		insight, err := svc.GetInsight(context.Background(), uuid.New(), "2025-06", domain.LanguageEN, false, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.ModeFallback, insight.Mode)
		assert.Equal(t, domain.ReasonProviderRateLimited, insight.ModeReason)
	})

	t.Run("regenerate escalates", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(&textGeneratorMock{GenerateFunc: providerBusy})
		_, err := svc.GetInsight(context.Background(), uuid.New(), "2025-06", domain.LanguageEN, true, nil)
		require.Error(t, err)

		perr, ok := domain.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, domain.ProviderFailRateLimited, perr.Reason)
		assert.Equal(t, 30, perr.RetryAfterSec)
	})
}

func TestServiceGetInsightInvalidRequestEscalates(t *testing.T) {
	t.Parallel()

	gen := &textGeneratorMock{
		GenerateFunc: func(context.Context, string, string) (string, error) {
			return "", &domain.ProviderError{Reason: domain.ProviderFailInvalidRequest, Status: 400, Err: errors.New("bad prompt")}
		},
	}
	svc := newTestService(gen)

	for _, regenerate := range []bool{false, true} {
		_, err := svc.GetInsight(context.Background(), uuid.New(), "2025-06", domain.LanguageEN, regenerate, nil)
		require.Error(t, err)

		perr, ok := domain.AsProviderError(err)
		require.True(t, ok)
		assert.Equal(t, domain.ProviderFailInvalidRequest, perr.Reason)
	}
}

func TestServiceGetInsightUnparsableOutputFallsBack(t *testing.T) {
	t.Parallel()

	gen := &textGeneratorMock{
		GenerateFunc: func(context.Context, string, string) (string, error) {
			return "I'd rather chat about the weather.", nil
		},
	}
	svc := newTestService(gen)

	insight, err := svc.GetInsight(context.Background(), uuid.New(), "2025-06", domain.LanguageEN, false, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeFallback, insight.Mode)
	assert.Equal(t, domain.ReasonProviderInvalidResponse, insight.ModeReason)
}

func TestServiceGetInsightNoProvider(t *testing.T) {
	t.Parallel()

	svc := newTestService(nil)

	insight, err := svc.GetInsight(context.Background(), uuid.New(), "2025-06", domain.LanguageTR, false, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeFallback, insight.Mode)
	assert.Equal(t, domain.ReasonProviderNotConfigured, insight.ModeReason)
	assert.Equal(t, domain.LanguageTR, insight.Language)
	assert.False(t, svc.ProviderConfigured())
}

func TestServiceGetInsightSnapshotError(t *testing.T) {
	t.Parallel()

	snapshots := &snapshotBuilderMock{
		MonthSnapshotFunc: func(context.Context, uuid.UUID, domain.Month) (domain.MonthSnapshot, error) {
			return domain.MonthSnapshot{}, errors.New("ledger query failed")
		},
	}
	svc := NewService(slog.New(slog.DiscardHandler), testPolicy(), snapshots, okGenerator())

	_, err := svc.GetInsight(context.Background(), uuid.New(), "2025-06", domain.LanguageEN, false, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ledger query failed")
}

func TestServiceGetInsightDiagnostics(t *testing.T) {
	t.Parallel()

	svc := newTestService(okGenerator())
	userID := uuid.New()

	var events []string
	record := func(event string, _ map[string]any) { events = append(events, event) }

	_, err := svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, false, record)
	require.NoError(t, err)
	assert.Equal(t, []string{"advisor.request", "provider.call", "provider.result"}, events)

	events = nil
	_, err = svc.GetInsight(context.Background(), userID, "2025-06", domain.LanguageEN, false, record)
	require.NoError(t, err)
	assert.Equal(t, []string{"advisor.request", "advisor.cache_hit"}, events)
}

func TestServiceGetInsightDiagnosticsOnFallback(t *testing.T) {
	t.Parallel()

	gen := &textGeneratorMock{
		GenerateFunc: func(context.Context, string, string) (string, error) {
			return "", &domain.ProviderError{Reason: domain.ProviderFailHTTP, Status: 500}
		},
	}
	svc := newTestService(gen)

	var fallbackReason string
	record := func(event string, payload map[string]any) {
		if event == "advisor.fallback" {
			fallbackReason, _ = payload["reason"].(string)
		}
	}

	_, err := svc.GetInsight(context.Background(), uuid.New(), "2025-06", domain.LanguageEN, false, record)
	require.NoError(t, err)
	assert.Equal(t, string(domain.ReasonProviderHTTPError), fallbackReason)
}

func TestServiceConsumeFreeUsage(t *testing.T) {
	t.Parallel()

	svc := newTestService(okGenerator())
	userID := uuid.New()

	allowed, dayKey := svc.ConsumeFreeUsage(userID)
	assert.True(t, allowed)
	assert.True(t, strings.Count(dayKey, "-") == 2, "day key must be YYYY-MM-DD")

	allowed, _ = svc.ConsumeFreeUsage(userID)
	assert.False(t, allowed)
}

func TestServiceCheckProviderWithoutGenerator(t *testing.T) {
	t.Parallel()

	svc := newTestService(nil)
	_, err := svc.CheckProvider(context.Background())
	assert.Error(t, err)
}
