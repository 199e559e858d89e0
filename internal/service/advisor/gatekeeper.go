package advisor

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finwell/finwell-backend/internal/config"
	"github.com/finwell/finwell-backend/internal/domain"
)

// Sweep thresholds: tables are pruned opportunistically on access instead of
// on a timer goroutine. Requests are infrequent relative to these bounds, so
// the occasional sweep on the hot path is acceptable.
const (
	sweepSizeThreshold = 512
	sweepInterval      = 5 * time.Minute
)

type rateWindow struct {
	count   int
	resetAt time.Time
}

type freeUsageEntry struct {
	dayKey    string
	updatedAt time.Time
}

// Gatekeeper enforces the per-user advisor request policy: a fixed-window
// rate limit, a regenerate cooldown, and a once-per-UTC-day free generation
// quota. State is in-process only; in a multi-instance deployment each
// instance keeps its own tables.
type Gatekeeper struct {
	mu  sync.Mutex
	cfg config.AdvisorConfig
	now func() time.Time

	rates     map[uuid.UUID]*rateWindow
	cooldowns map[uuid.UUID]time.Time
	freeUsage map[uuid.UUID]freeUsageEntry
	lastSweep time.Time
}

// NewGatekeeper creates a Gatekeeper with the given policy.
func NewGatekeeper(cfg config.AdvisorConfig) *Gatekeeper {
	return &Gatekeeper{
		cfg:       cfg,
		now:       time.Now,
		rates:     make(map[uuid.UUID]*rateWindow),
		cooldowns: make(map[uuid.UUID]time.Time),
		freeUsage: make(map[uuid.UUID]freeUsageEntry),
	}
}

// NewGatekeeperWithClock creates a Gatekeeper with an injected clock, for tests.
func NewGatekeeperWithClock(cfg config.AdvisorConfig, now func() time.Time) *Gatekeeper {
	g := NewGatekeeper(cfg)
	g.now = now
	g.lastSweep = now()
	return g
}

// CheckRate counts one request against the user's fixed window and returns
// domain.ErrRateLimited once the window budget is spent. It applies to every
// advisor request, cached or not, before any other work happens.
func (g *Gatekeeper) CheckRate(userID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.maybeSweepLocked(now)

	w, ok := g.rates[userID]
	if !ok || !now.Before(w.resetAt) {
		g.rates[userID] = &rateWindow{count: 1, resetAt: now.Add(g.cfg.RateLimitWindow)}
		return nil
	}

	if w.count >= g.cfg.RateLimitRequests {
		return fmt.Errorf("user %s: %w", userID, domain.ErrRateLimited)
	}
	w.count++
	return nil
}

// CheckCooldown enforces the minimum interval between two regenerate
// requests. On success it records the regenerate timestamp. Plain requests
// never call this.
func (g *Gatekeeper) CheckCooldown(userID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.maybeSweepLocked(now)

	if last, ok := g.cooldowns[userID]; ok {
		elapsed := now.Sub(last)
		if elapsed < g.cfg.RegenerateCooldown {
			remaining := g.cfg.RegenerateCooldown - elapsed
			return &domain.CooldownError{
				RetryAfterSec: int(math.Ceil(remaining.Seconds())),
			}
		}
	}
	g.cooldowns[userID] = now
	return nil
}

// ConsumeFree records the user's free generation for today and reports
// whether it was still available. The first call of a UTC day returns true;
// later calls that day return false. This is a ledger update only, it does
// not trigger generation.
func (g *Gatekeeper) ConsumeFree(userID uuid.UUID) (allowFree bool, dayKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	g.maybeSweepLocked(now)

	dayKey = now.UTC().Format("2006-01-02")
	if e, ok := g.freeUsage[userID]; ok && e.dayKey == dayKey {
		return false, dayKey
	}
	g.freeUsage[userID] = freeUsageEntry{dayKey: dayKey, updatedAt: now}
	return true, dayKey
}

// maybeSweepLocked prunes stale entries once a size or time threshold is
// crossed. Must be called with the mutex held.
func (g *Gatekeeper) maybeSweepLocked(now time.Time) {
	tooBig := len(g.rates) > sweepSizeThreshold ||
		len(g.cooldowns) > sweepSizeThreshold ||
		len(g.freeUsage) > sweepSizeThreshold
	if !tooBig && now.Sub(g.lastSweep) < sweepInterval {
		return
	}
	g.lastSweep = now

	for id, w := range g.rates {
		if !now.Before(w.resetAt) {
			delete(g.rates, id)
		}
	}

	for id, last := range g.cooldowns {
		if now.Sub(last) > g.cfg.RegenerateCooldown {
			delete(g.cooldowns, id)
		}
	}

	// Free-usage entries are kept for the retention window regardless of
	// whether they were consumed, then dropped to bound memory.
	for id, e := range g.freeUsage {
		if now.Sub(e.updatedAt) > g.cfg.FreeUsageRetention {
			delete(g.freeUsage, id)
		}
	}
}

// TableSizes reports the entry counts of the three tables, for tests.
func (g *Gatekeeper) TableSizes() (rates, cooldowns, freeUsage int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rates), len(g.cooldowns), len(g.freeUsage)
}
