// Package tiered provides a Hot/Cold tiered cache that puts a fast in-process
// cache (Hot) in front of a shared cache such as Redis (Cold).
package tiered

import (
	"errors"
	"sync"
	"time"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// Config configures the tiered cache behavior
type Config struct {
	// Hot is the L1 cache (e.g. clubsync.LRUCache), local to one process
	Hot clubsync.Cache

	// Cold is the L2 cache (e.g. redis.Cache), shared between processes
	Cold clubsync.Cache

	// HotTTL bounds how long an entry promoted from Cold stays in Hot.
	// Writes use min(ttl, HotTTL) for Hot. Default: 30s
	HotTTL time.Duration

	// AsyncColdWrites makes Cold writes and invalidations non-blocking.
	// Operations are applied in order by a single worker.
	AsyncColdWrites bool

	// SyncBufferSize is the size of the buffered channel for async operations.
	// Default: 1000
	SyncBufferSize int

	// OnDrop is called when the async queue is full and a Cold operation is skipped
	OnDrop func(tenantID string)
}

// Cache implements clubsync.Cache over two tiers.
// - Read-Through: Hot, then Cold; Cold hits are promoted to Hot
// - Write-Through: Cold, then Hot
// - Invalidate/Clear: both tiers
type Cache struct {
	hot  clubsync.Cache
	cold clubsync.Cache
	conf Config

	syncQueue chan func()
	shutdown  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a new tiered cache.
func New(config Config) (*Cache, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered cache: both hot and cold caches are required")
	}
	if config.HotTTL <= 0 {
		config.HotTTL = 30 * time.Second
	}
	if config.SyncBufferSize <= 0 {
		config.SyncBufferSize = 1000
	}

	c := &Cache{
		hot:       config.Hot,
		cold:      config.Cold,
		conf:      config,
		syncQueue: make(chan func(), config.SyncBufferSize),
		shutdown:  make(chan struct{}),
	}

	if config.AsyncColdWrites {
		c.startWorker()
	}

	return c, nil
}

// Close drains pending Cold operations and stops the async worker (if enabled).
func (c *Cache) Close() error {
	if c.conf.AsyncColdWrites {
		c.closeOnce.Do(func() {
			close(c.shutdown)
			c.wg.Wait()
		})
	}
	return nil
}

// startWorker runs the background Cold synchronization loop.
func (c *Cache) startWorker() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case job := <-c.syncQueue:
				job()
			case <-c.shutdown:
				for {
					select {
					case job := <-c.syncQueue:
						job()
					default:
						return
					}
				}
			}
		}
	}()
}

// toCold applies op to the Cold tier, inline or through the async queue.
// A write dropped on a full queue is reported through OnDrop.
func (c *Cache) toCold(tenantID string, op func()) {
	if !c.conf.AsyncColdWrites {
		op()
		return
	}
	select {
	case c.syncQueue <- op:
	default:
		if c.conf.OnDrop != nil {
			c.conf.OnDrop(tenantID)
		}
	}
}

// evict removes entries from both tiers. With async Cold writes the Hot tier is
// cleared again once the queued Cold delete has run, since a read in between can
// promote the stale Cold entry. Evictions are never dropped: a full queue runs them inline.
func (c *Cache) evict(hotOp, coldOp func()) {
	hotOp()
	if !c.conf.AsyncColdWrites {
		coldOp()
		return
	}
	job := func() {
		coldOp()
		hotOp()
	}
	select {
	case c.syncQueue <- job:
	default:
		job()
	}
}

func (c *Cache) hotTTL(ttl time.Duration) time.Duration {
	if ttl < c.conf.HotTTL {
		return ttl
	}
	return c.conf.HotTTL
}

// GetMetrics implements clubsync.Cache
func (c *Cache) GetMetrics(tenantID string) (*clubsync.BillingMetrics, bool) {
	if m, ok := c.hot.GetMetrics(tenantID); ok {
		return m, true
	}
	m, ok := c.cold.GetMetrics(tenantID)
	if !ok {
		return nil, false
	}
	c.hot.SetMetrics(tenantID, m, c.conf.HotTTL)
	return m, true
}

// SetMetrics implements clubsync.Cache
func (c *Cache) SetMetrics(tenantID string, m *clubsync.BillingMetrics, ttl time.Duration) {
	if m == nil || ttl <= 0 {
		return
	}
	cp := clubsync.CopyMetrics(m)
	c.toCold(tenantID, func() { c.cold.SetMetrics(tenantID, cp, ttl) })
	c.hot.SetMetrics(tenantID, m, c.hotTTL(ttl))
}

// InvalidateMetrics implements clubsync.Cache
func (c *Cache) InvalidateMetrics(tenantID string) {
	c.evict(
		func() { c.hot.InvalidateMetrics(tenantID) },
		func() { c.cold.InvalidateMetrics(tenantID) },
	)
}

// Clear implements clubsync.Cache
func (c *Cache) Clear() {
	c.evict(c.hot.Clear, c.cold.Clear)
}

// Stats implements clubsync.Cache. Hits count either tier; misses count both missing.
func (c *Cache) Stats() clubsync.CacheStats {
	hot := c.hot.Stats()
	cold := c.cold.Stats()
	return clubsync.CacheStats{
		Hits:      hot.Hits + cold.Hits,
		Misses:    cold.Misses,
		Evictions: hot.Evictions + cold.Evictions,
		Size:      hot.Size,
	}
}
