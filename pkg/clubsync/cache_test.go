package clubsync

import (
	"testing"
	"time"
)

const testCacheTenant = "tenant-1"

func TestLRUCache_Metrics(t *testing.T) {
	cache := NewLRUCache(10)

	// Test cache miss
	if _, found := cache.GetMetrics(testCacheTenant); found {
		t.Error("Expected cache miss for non-existent metrics")
	}

	m := &BillingMetrics{
		TenantID:           testCacheTenant,
		TotalSubscriptions: 3,
		ByStatus:           map[SubscriptionStatus]int{StatusActive: 2, StatusCanceled: 1},
		MRRCents:           5000,
	}
	cache.SetMetrics(testCacheTenant, m, time.Minute)

	cached, found := cache.GetMetrics(testCacheTenant)
	if !found {
		t.Fatal("Expected cache hit")
	}
	if cached.MRRCents != 5000 || cached.ByStatus[StatusActive] != 2 {
		t.Errorf("Cached metrics mismatch: got %+v", cached)
	}

	// Mutating the returned copy must not change the cache
	cached.ByStatus[StatusActive] = 99
	again, _ := cache.GetMetrics(testCacheTenant)
	if again.ByStatus[StatusActive] != 2 {
		t.Errorf("Cache entry was mutated through returned value")
	}

	// Test cache invalidation
	cache.InvalidateMetrics(testCacheTenant)
	if _, found := cache.GetMetrics(testCacheTenant); found {
		t.Error("Expected cache miss after invalidation")
	}

	stats := cache.Stats()
	if stats.Hits != 2 || stats.Misses != 2 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestLRUCache_TTLExpiry(t *testing.T) {
	cache := NewLRUCache(10)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.SetMetrics(testCacheTenant, &BillingMetrics{TenantID: testCacheTenant}, 30*time.Second)

	now = now.Add(29 * time.Second)
	if _, found := cache.GetMetrics(testCacheTenant); !found {
		t.Fatal("Expected cache hit before TTL elapsed")
	}

	now = now.Add(2 * time.Second)
	if _, found := cache.GetMetrics(testCacheTenant); found {
		t.Error("Expected cache miss after TTL elapsed")
	}
	if size := cache.Stats().Size; size != 0 {
		t.Errorf("Expected expired entry to be dropped, size=%d", size)
	}
}

func TestLRUCache_IgnoresNonPositiveTTL(t *testing.T) {
	cache := NewLRUCache(10)
	cache.SetMetrics(testCacheTenant, &BillingMetrics{}, 0)
	cache.SetMetrics("tenant-2", nil, time.Minute)

	if size := cache.Stats().Size; size != 0 {
		t.Errorf("Expected empty cache, size=%d", size)
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	cache := NewLRUCache(2)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.SetMetrics("a", &BillingMetrics{TenantID: "a"}, time.Minute)
	now = now.Add(time.Second)
	cache.SetMetrics("b", &BillingMetrics{TenantID: "b"}, time.Minute)

	// Touch "a" so "b" becomes least recently used
	now = now.Add(time.Second)
	cache.GetMetrics("a")

	now = now.Add(time.Second)
	cache.SetMetrics("c", &BillingMetrics{TenantID: "c"}, time.Minute)

	if _, found := cache.GetMetrics("b"); found {
		t.Error("Expected b to be evicted")
	}
	if _, found := cache.GetMetrics("a"); !found {
		t.Error("Expected a to survive eviction")
	}
	if ev := cache.Stats().Evictions; ev != 1 {
		t.Errorf("Expected 1 eviction, got %d", ev)
	}
}

func TestLRUCache_Clear(t *testing.T) {
	cache := NewLRUCache(0)
	cache.SetMetrics("a", &BillingMetrics{}, time.Minute)
	cache.SetMetrics("b", &BillingMetrics{}, time.Minute)
	cache.Clear()

	if size := cache.Stats().Size; size != 0 {
		t.Errorf("Expected empty cache after Clear, size=%d", size)
	}
}

func TestNoopCache(t *testing.T) {
	var cache Cache = NewNoopCache()
	cache.SetMetrics("a", &BillingMetrics{}, time.Minute)
	if _, found := cache.GetMetrics("a"); found {
		t.Error("NoopCache should never hit")
	}
	if stats := cache.Stats(); stats != (CacheStats{}) {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
}
