package advisor

import (
	"sync"

	"github.com/google/uuid"

	"github.com/finwell/finwell-backend/internal/domain"
)

type cacheKey struct {
	userID   uuid.UUID
	month    domain.Month
	language domain.Language
}

// InsightCache holds the most recent successfully generated insight per
// (user, month, language). Entries are never proactively expired: staleness
// is the caller's decision via the regenerate flag, and a failed regeneration
// leaves the previous entry untouched.
type InsightCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]domain.AdvisorInsight
}

// NewInsightCache creates an empty cache.
func NewInsightCache() *InsightCache {
	return &InsightCache{entries: make(map[cacheKey]domain.AdvisorInsight)}
}

// Get returns the cached insight for the key, if any.
func (c *InsightCache) Get(userID uuid.UUID, month domain.Month, language domain.Language) (*domain.AdvisorInsight, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	insight, ok := c.entries[cacheKey{userID, month, language}]
	if !ok {
		return nil, false
	}
	return &insight, true
}

// Put overwrites the cached insight for the key.
func (c *InsightCache) Put(userID uuid.UUID, month domain.Month, language domain.Language, insight domain.AdvisorInsight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{userID, month, language}] = insight
}

// Len returns the number of cached entries.
func (c *InsightCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries. Test isolation only.
func (c *InsightCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]domain.AdvisorInsight)
}
