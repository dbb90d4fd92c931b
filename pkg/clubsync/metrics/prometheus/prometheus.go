// Package prommetrics implements clubsync.Metrics using Prometheus.
package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// Metrics implements clubsync.Metrics using Prometheus.
type Metrics struct {
	driftChecksTotal      *prometheus.CounterVec
	driftMissingTotal     prometheus.Counter
	driftCheckDuration    prometheus.Histogram
	reconcileTotal        *prometheus.CounterVec
	reconcileDuration     *prometheus.HistogramVec
	statusTransitionTotal *prometheus.CounterVec
	cacheHitsTotal        *prometheus.CounterVec
	cacheMissesTotal      *prometheus.CounterVec
	storageOpsDuration    *prometheus.HistogramVec
	storageOpsErrors      *prometheus.CounterVec
}

var _ clubsync.Metrics = (*Metrics)(nil)

// NewMetrics creates a new Prometheus metrics implementation.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		driftChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drift_checks_total",
			Help:      "Total number of drift checks.",
		}, []string{"success"}),

		driftMissingTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drift_missing_subscriptions_total",
			Help:      "Total number of remote subscriptions found without a local record.",
		}),

		driftCheckDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drift_check_duration_seconds",
			Help:      "Latency of drift checks, including provider calls.",
			Buckets:   prometheus.DefBuckets,
		}),

		reconcileTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_total",
			Help:      "Total number of single-subscription reconciliations.",
		}, []string{"source", "outcome"}),

		reconcileDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Latency of single-subscription reconciliations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),

		statusTransitionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_status_transitions_total",
			Help:      "Total number of local subscription status overwrites.",
		}, []string{"from", "to"}),

		cacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits.",
		}, []string{"type"}),

		cacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses.",
		}, []string{"type"}),

		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operation_errors_total",
			Help:      "Total number of storage operation errors.",
		}, []string{"operation"}),
	}
}

// RecordDriftCheck does not label by tenant to keep cardinality bounded
func (m *Metrics) RecordDriftCheck(_ string, missing int, duration time.Duration, err error) {
	m.driftChecksTotal.WithLabelValues(strconv.FormatBool(err == nil)).Inc()
	m.driftCheckDuration.Observe(duration.Seconds())
	if missing > 0 {
		m.driftMissingTotal.Add(float64(missing))
	}
}

func (m *Metrics) RecordReconcile(source, outcome string, duration time.Duration) {
	m.reconcileTotal.WithLabelValues(source, outcome).Inc()
	m.reconcileDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func (m *Metrics) RecordStatusTransition(from, to clubsync.SubscriptionStatus) {
	m.statusTransitionTotal.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) RecordCacheHit(cacheType string) {
	m.cacheHitsTotal.WithLabelValues(cacheType).Inc()
}

func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.cacheMissesTotal.WithLabelValues(cacheType).Inc()
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
