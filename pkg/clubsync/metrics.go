package clubsync

import "time"

// Metrics defines the interface for tracking reconciliation operations.
type Metrics interface {
	// RecordDriftCheck records a FindDrift run and how many remote subscriptions were missing locally.
	RecordDriftCheck(tenantID string, missing int, duration time.Duration, err error)

	// RecordReconcile records a single-subscription reconciliation.
	// outcome: "changed", "unchanged" or "error"
	RecordReconcile(source, outcome string, duration time.Duration)

	// RecordStatusTransition records a status overwrite from one value to another.
	RecordStatusTransition(from, to SubscriptionStatus)

	// RecordCacheHit records a cache hit for a specific cache type (e.g., "billing_metrics").
	RecordCacheHit(cacheType string)

	// RecordCacheMiss records a cache miss for a specific cache type.
	RecordCacheMiss(cacheType string)

	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordDriftCheck(tenantID string, missing int, duration time.Duration, err error) {
}
func (n *NoopMetrics) RecordReconcile(source, outcome string, duration time.Duration)             {}
func (n *NoopMetrics) RecordStatusTransition(from, to SubscriptionStatus)                         {}
func (n *NoopMetrics) RecordCacheHit(cacheType string)                                            {}
func (n *NoopMetrics) RecordCacheMiss(cacheType string)                                           {}
func (n *NoopMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {}
