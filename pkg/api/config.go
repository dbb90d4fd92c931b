package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

const (
	// DefaultMetricsTTL is how long billing metrics stay cached per tenant
	DefaultMetricsTTL = 5 * time.Minute

	// DefaultMaxBodyBytes bounds JSON request bodies
	DefaultMaxBodyBytes = 64 << 10
)

// Reconciler is the subset of clubsync.Reconciler the handler calls
type Reconciler interface {
	FindDrift(ctx context.Context, tenantID, consumerEmail string) (*clubsync.DriftReport, error)
	ReconcileOne(ctx context.Context, planSubscriptionID string) (*clubsync.ReconcileResult, error)
	BillingMetrics(ctx context.Context, tenantID string) (*clubsync.BillingMetrics, error)
}

// Config holds configuration for the admin API handler
type Config struct {
	// Reconciler runs drift checks and reconciliations (required)
	Reconciler Reconciler

	// Cache holds billing metrics per tenant (default: NoopCache)
	Cache clubsync.Cache

	// MetricsTTL is the lifetime of cached billing metrics (default: DefaultMetricsTTL)
	MetricsTTL time.Duration

	// MaxBodyBytes bounds POST bodies (default: DefaultMaxBodyBytes)
	MaxBodyBytes int64

	// OnError handles errors instead of the default JSON error body
	OnError func(w http.ResponseWriter, r *http.Request, status int, err error)

	// Metrics records cache hits and misses (default: NoopMetrics)
	Metrics clubsync.Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger clubsync.Logger
}

// DefaultConfig returns a Config with defaults for everything except Reconciler
func DefaultConfig() Config {
	return Config{
		Cache:        clubsync.NewNoopCache(),
		MetricsTTL:   DefaultMetricsTTL,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Metrics:      &clubsync.NoopMetrics{},
		Logger:       &clubsync.NoopLogger{},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Reconciler == nil {
		return fmt.Errorf("reconciler is required")
	}
	if c.MetricsTTL < 0 {
		return fmt.Errorf("metrics TTL must not be negative")
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max body bytes must not be negative")
	}
	return nil
}

// NewHandler creates a new admin API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Cache == nil {
		config.Cache = clubsync.NewNoopCache()
	}
	if config.MetricsTTL == 0 {
		config.MetricsTTL = DefaultMetricsTTL
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.Metrics == nil {
		config.Metrics = &clubsync.NoopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = &clubsync.NoopLogger{}
	}

	return &Handler{
		config: config,
	}, nil
}
