package clubsync

import (
	"sync"
	"time"
)

// Cache defines the interface for caching per-tenant billing metrics.
// Entries are keyed by tenant id and expire after the TTL given at write time.
type Cache interface {
	// GetMetrics retrieves cached metrics for a tenant
	// Returns the metrics and true if found, nil and false otherwise
	GetMetrics(tenantID string) (*BillingMetrics, bool)

	// SetMetrics stores a tenant's metrics in the cache with TTL
	SetMetrics(tenantID string, m *BillingMetrics, ttl time.Duration)

	// InvalidateMetrics removes a tenant's metrics from the cache
	InvalidateMetrics(tenantID string)

	// Clear removes all entries from the cache
	Clear()

	// Stats returns cache statistics
	Stats() CacheStats
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// cacheEntry wraps a cached value with expiration time and access time for LRU
type cacheEntry struct {
	value      *BillingMetrics
	expiration time.Time
	accessTime time.Time
	sequence   int64 // tiebreak when access times are equal
}

func (e *cacheEntry) isExpired(now time.Time) bool {
	return now.After(e.expiration)
}

// NoopCache is a cache implementation that does nothing
// Used when caching is disabled
type NoopCache struct{}

// NewNoopCache creates a new no-op cache
func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (c *NoopCache) GetMetrics(_ string) (*BillingMetrics, bool) {
	return nil, false
}

func (c *NoopCache) SetMetrics(_ string, _ *BillingMetrics, _ time.Duration) {}

func (c *NoopCache) InvalidateMetrics(_ string) {}

func (c *NoopCache) Clear() {}

func (c *NoopCache) Stats() CacheStats {
	return CacheStats{}
}

// LRUCache implements Cache using an in-memory LRU map with TTL support
type LRUCache struct {
	entries    map[string]*cacheEntry
	maxEntries int
	mu         sync.Mutex
	now        func() time.Time
	hits       int64
	misses     int64
	evictions  int64
	sequence   int64
}

// NewLRUCache creates a new LRU cache holding at most maxEntries tenants
func NewLRUCache(maxEntries int) *LRUCache {
	if maxEntries <= 0 {
		maxEntries = 1000 // default
	}

	return &LRUCache{
		entries:    make(map[string]*cacheEntry, maxEntries),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *LRUCache) GetMetrics(tenantID string) (*BillingMetrics, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry, exists := c.entries[tenantID]
	if !exists || entry.isExpired(now) {
		if exists {
			delete(c.entries, tenantID)
		}
		c.misses++
		return nil, false
	}

	entry.accessTime = now
	c.hits++
	return copyMetrics(entry.value), true
}

func (c *LRUCache) SetMetrics(tenantID string, m *BillingMetrics, ttl time.Duration) {
	if m == nil || ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	_, exists := c.entries[tenantID]

	if len(c.entries) >= c.maxEntries && !exists {
		// Evict least recently used (oldest accessTime, then oldest sequence)
		var oldestKey string
		var oldestTime time.Time
		var oldestSeq int64
		first := true
		for key, entry := range c.entries {
			if first || entry.accessTime.Before(oldestTime) ||
				(entry.accessTime.Equal(oldestTime) && entry.sequence < oldestSeq) {
				oldestKey = key
				oldestTime = entry.accessTime
				oldestSeq = entry.sequence
				first = false
			}
		}
		if oldestKey != "" {
			delete(c.entries, oldestKey)
			c.evictions++
		}
	}

	seq := c.sequence
	c.sequence++
	c.entries[tenantID] = &cacheEntry{
		value:      copyMetrics(m),
		expiration: now.Add(ttl),
		accessTime: now,
		sequence:   seq,
	}
}

func (c *LRUCache) InvalidateMetrics(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)
}

func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry, c.maxEntries)
}

func (c *LRUCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}

// copyMetrics returns a deep copy so callers cannot mutate cached state
func copyMetrics(m *BillingMetrics) *BillingMetrics {
	if m == nil {
		return nil
	}
	cp := *m
	if m.ByStatus != nil {
		cp.ByStatus = make(map[SubscriptionStatus]int, len(m.ByStatus))
		for k, v := range m.ByStatus {
			cp.ByStatus[k] = v
		}
	}
	if m.MRRByCurrency != nil {
		cp.MRRByCurrency = make(map[string]int64, len(m.MRRByCurrency))
		for k, v := range m.MRRByCurrency {
			cp.MRRByCurrency[k] = v
		}
	}
	return &cp
}

// CopyMetrics is exported for Cache implementations outside this package
func CopyMetrics(m *BillingMetrics) *BillingMetrics {
	return copyMetrics(m)
}
