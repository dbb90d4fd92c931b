// Package redis provides a Redis implementation of the clubsync.Cache interface,
// shared across replicas of the admin API.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// Cache implements clubsync.Cache using Redis string keys with per-key expiry
type Cache struct {
	client redis.UniversalClient
	config Config

	hits   atomic.Int64
	misses atomic.Int64
}

// Config holds Redis cache configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "clubsync:")
	KeyPrefix string

	// OperationTimeout bounds every Redis round trip (default: 500ms)
	OperationTimeout time.Duration

	// Logger reports Redis failures, which otherwise degrade to cache misses (default: NoopLogger)
	Logger clubsync.Logger
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:        "clubsync:",
		OperationTimeout: 500 * time.Millisecond,
	}
}

// New creates a new Redis cache
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Cache, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "clubsync:"
	}
	if config.OperationTimeout <= 0 {
		config.OperationTimeout = 500 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = &clubsync.NoopLogger{}
	}

	return &Cache{
		client: client,
		config: config,
	}, nil
}

func (c *Cache) metricsKey(tenantID string) string {
	return c.config.KeyPrefix + "billing_metrics:" + tenantID
}

func (c *Cache) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.config.OperationTimeout)
}

// GetMetrics implements clubsync.Cache
func (c *Cache) GetMetrics(tenantID string) (*clubsync.BillingMetrics, bool) {
	ctx, cancel := c.opContext()
	defer cancel()

	raw, err := c.client.Get(ctx, c.metricsKey(tenantID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.config.Logger.Warn("redis cache read failed",
				clubsync.Field{Key: "tenant_id", Value: tenantID},
				clubsync.ErrorField(err),
			)
		}
		c.misses.Add(1)
		return nil, false
	}

	var m clubsync.BillingMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		c.config.Logger.Warn("redis cache entry is corrupt",
			clubsync.Field{Key: "tenant_id", Value: tenantID},
			clubsync.ErrorField(err),
		)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return &m, true
}

// SetMetrics implements clubsync.Cache. Non-positive TTLs are ignored.
func (c *Cache) SetMetrics(tenantID string, m *clubsync.BillingMetrics, ttl time.Duration) {
	if m == nil || ttl <= 0 {
		return
	}

	raw, err := json.Marshal(m)
	if err != nil {
		c.config.Logger.Warn("failed to encode billing metrics", clubsync.ErrorField(err))
		return
	}

	ctx, cancel := c.opContext()
	defer cancel()

	if err := c.client.Set(ctx, c.metricsKey(tenantID), raw, ttl).Err(); err != nil {
		c.config.Logger.Warn("redis cache write failed",
			clubsync.Field{Key: "tenant_id", Value: tenantID},
			clubsync.ErrorField(err),
		)
	}
}

// InvalidateMetrics implements clubsync.Cache
func (c *Cache) InvalidateMetrics(tenantID string) {
	ctx, cancel := c.opContext()
	defer cancel()

	if err := c.client.Del(ctx, c.metricsKey(tenantID)).Err(); err != nil {
		c.config.Logger.Warn("redis cache invalidation failed",
			clubsync.Field{Key: "tenant_id", Value: tenantID},
			clubsync.ErrorField(err),
		)
	}
}

// Clear implements clubsync.Cache by deleting every key under the prefix
func (c *Cache) Clear() {
	ctx, cancel := c.opContext()
	defer cancel()

	iter := c.client.Scan(ctx, 0, c.config.KeyPrefix+"billing_metrics:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.config.Logger.Warn("redis cache scan failed", clubsync.ErrorField(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.config.Logger.Warn("redis cache clear failed", clubsync.ErrorField(err))
	}
}

// Stats implements clubsync.Cache. Size is not tracked; Redis owns expiry.
func (c *Cache) Stats() clubsync.CacheStats {
	return clubsync.CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
