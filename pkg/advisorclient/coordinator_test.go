package advisorclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finwell/finwell-backend/internal/diag"
	"github.com/finwell/finwell-backend/internal/domain"
)

// advisorStub is a minimal advisor API for client tests.
type advisorStub struct {
	mu          sync.Mutex
	insightHits int32
	allowFree   bool
	lastRegen   string
	lastReqID   string
	holdInsight chan struct{} // when set, insight requests block until closed
}

func (s *advisorStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /advisor/insights/free-check", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		allow := s.allowFree
		s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"allowFree": allow, "day": "2025-06-10"})
	})
	mux.HandleFunc("GET /advisor/insights", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.insightHits, 1)
		s.mu.Lock()
		s.lastRegen = r.URL.Query().Get("regenerate")
		s.lastReqID = r.Header.Get(requestIDHeader)
		hold := s.holdInsight
		s.mu.Unlock()
		if hold != nil {
			<-hold
		}
		json.NewEncoder(w).Encode(domain.AdvisorInsight{
			Month:    domain.Month(r.URL.Query().Get("month")),
			Language: domain.LanguageEN,
			Mode:     domain.ModeAI,
		})
	})
	return mux
}

func (s *advisorStub) hits() int { return int(atomic.LoadInt32(&s.insightHits)) }

type rewardGateMock struct {
	startAd  bool
	async    bool // fire onAdStarted from a separate goroutine, as SDKs do
	complete bool
	shown    int
}

func (g *rewardGateMock) Show(_ context.Context, onAdStarted func()) bool {
	g.shown++
	if g.startAd {
		if g.async {
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				onAdStarted()
			}()
			wg.Wait()
		} else {
			onAdStarted()
		}
	}
	return g.complete
}

func newTestCoordinator(t *testing.T, stub *advisorStub, gate RewardGate) (*Coordinator, *diag.Correlator) {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)

	trail := diag.New(32)
	client := NewClient(srv.URL, "test-token", trail)
	return NewCoordinator(client, trail, gate), trail
}

func TestCoordinatorDedupsConcurrentStarts(t *testing.T) {
	t.Parallel()

	stub := &advisorStub{holdInsight: make(chan struct{})}
	coord, _ := newTestCoordinator(t, stub, nil)

	const callers = 8
	results := make([]*domain.AdvisorInsight, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.Start(context.Background(), "2025-06", domain.LanguageEN, StartOptions{})
		}(i)
	}

	// Let the goroutines pile up behind the held request, then release it.
	require.Eventually(t, func() bool {
		return coord.IsInflight("2025-06", domain.LanguageEN)
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(stub.holdInsight)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, domain.Month("2025-06"), results[i].Month)
	}
	assert.Equal(t, 1, stub.hits(), "concurrent duplicates must share one request")
}

func TestCoordinatorDistinctKeysRunIndependently(t *testing.T) {
	t.Parallel()

	stub := &advisorStub{}
	coord, _ := newTestCoordinator(t, stub, nil)

	_, err := coord.Start(context.Background(), "2025-06", domain.LanguageEN, StartOptions{})
	require.NoError(t, err)
	_, err = coord.Start(context.Background(), "2025-06", domain.LanguageTR, StartOptions{})
	require.NoError(t, err)
	_, err = coord.Start(context.Background(), "2025-05", domain.LanguageEN, StartOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, stub.hits())
}

func TestCoordinatorInflightObservers(t *testing.T) {
	t.Parallel()

	stub := &advisorStub{holdInsight: make(chan struct{})}
	coord, _ := newTestCoordinator(t, stub, nil)

	var notifications int32
	cancel := coord.Subscribe(func() { atomic.AddInt32(&notifications, 1) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = coord.Start(context.Background(), "2025-06", domain.LanguageEN, StartOptions{})
	}()

	require.Eventually(t, func() bool {
		return coord.IsInflight("2025-06", domain.LanguageEN)
	}, time.Second, 5*time.Millisecond)

	close(stub.holdInsight)
	<-done

	assert.False(t, coord.IsInflight("2025-06", domain.LanguageEN))
	assert.Equal(t, int32(2), atomic.LoadInt32(&notifications), "one notification per inflight transition")

	// After unsubscribe no further notifications arrive.
	cancel()
	_, err := coord.Start(context.Background(), "2025-07", domain.LanguageEN, StartOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&notifications))
}

func TestCoordinatorRegenerateUsesFreeGeneration(t *testing.T) {
	t.Parallel()

	stub := &advisorStub{allowFree: true}
	gate := &rewardGateMock{}
	coord, _ := newTestCoordinator(t, stub, gate)

	_, err := coord.Start(context.Background(), "2025-06", domain.LanguageEN, StartOptions{Regenerate: true})
	require.NoError(t, err)

	assert.Equal(t, "true", stub.lastRegen)
	assert.Zero(t, gate.shown, "reward gate must not show while the free generation is available")
}

func TestCoordinatorRegenerateRewardFlow(t *testing.T) {
	t.Parallel()

	stub := &advisorStub{allowFree: false}
	gate := &rewardGateMock{startAd: true, complete: true}
	coord, _ := newTestCoordinator(t, stub, gate)

	insight, err := coord.Start(context.Background(), "2025-06", domain.LanguageEN, StartOptions{Regenerate: true})
	require.NoError(t, err)
	require.NotNil(t, insight)

	assert.Equal(t, 1, gate.shown)
	assert.Equal(t, "true", stub.lastRegen)
}

func TestCoordinatorRegenerateRewardStartsFromGateGoroutine(t *testing.T) {
	t.Parallel()

	stub := &advisorStub{allowFree: false}
	gate := &rewardGateMock{startAd: true, async: true, complete: true}
	coord, _ := newTestCoordinator(t, stub, gate)

	insight, err := coord.Start(context.Background(), "2025-06", domain.LanguageEN, StartOptions{Regenerate: true})
	require.NoError(t, err)
	require.NotNil(t, insight)
	assert.Equal(t, 1, stub.hits())
}

func TestCoordinatorRegenerateDeclined(t *testing.T) {
	t.Parallel()

	stub := &advisorStub{allowFree: false}
	gate := &rewardGateMock{startAd: false, complete: false}
	coord, _ := newTestCoordinator(t, stub, gate)

	_, err := coord.Start(context.Background(), "2025-06", domain.LanguageEN, StartOptions{Regenerate: true})
	assert.ErrorIs(t, err, ErrRewardDeclined)
	assert.Zero(t, stub.hits())
}

func TestCoordinatorRegenerateWithoutGate(t *testing.T) {
	t.Parallel()

	stub := &advisorStub{allowFree: false}
	coord, _ := newTestCoordinator(t, stub, nil)

	_, err := coord.Start(context.Background(), "2025-06", domain.LanguageEN, StartOptions{Regenerate: true})
	assert.ErrorIs(t, err, ErrNoFreeGeneration)
}

func TestCoordinatorRequestIDCorrelation(t *testing.T) {
	t.Parallel()

	stub := &advisorStub{}
	coord, trail := newTestCoordinator(t, stub, nil)

	_, err := coord.Start(context.Background(), "2025-06", domain.LanguageEN, StartOptions{})
	require.NoError(t, err)

	assert.NotEmpty(t, stub.lastReqID, "the reserved request id must travel with the call")
	assert.Zero(t, trail.Pending(), "the reservation must be consumed by the call")
}

func TestClientDecodesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error":         "advice provider is busy, try again later",
			"code":          "ADVISOR_PROVIDER_BUSY",
			"retryAfterSec": 30,
		})
	}))
	t.Cleanup(srv.Close)

	client := NewClient(srv.URL, "test-token", nil)
	_, err := client.GetInsight(context.Background(), "2025-06", domain.LanguageEN, true)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, "ADVISOR_PROVIDER_BUSY", apiErr.Code)
	assert.Equal(t, 30, apiErr.RetryAfterSec)
}
