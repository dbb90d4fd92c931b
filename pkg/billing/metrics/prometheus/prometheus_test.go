package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gatherCounter(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	for _, lp := range m.GetLabel() {
		if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
			return false
		}
	}
	return true
}

func TestBillingMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordWebhookEvent("stripe", "customer.subscription.updated", "success")
	m.RecordWebhookProcessingDuration("stripe", "customer.subscription.updated", 15*time.Millisecond)
	m.RecordWebhookError("stripe", "auth_failed")
	m.RecordStatusChange("stripe", "active", "past_due")
	m.RecordAPICall("stripe", "/v1/customers", "success")
	m.RecordAPICallDuration("stripe", "/v1/customers", 80*time.Millisecond)

	assert.Equal(t, 1.0, gatherCounter(t, reg, "test_billing_webhook_events_total",
		map[string]string{"event_type": "customer.subscription.updated", "status": "success"}))
	assert.Equal(t, 1.0, gatherCounter(t, reg, "test_billing_webhook_errors_total",
		map[string]string{"error_type": "auth_failed"}))
	assert.Equal(t, 1.0, gatherCounter(t, reg, "test_billing_subscription_status_changes_total",
		map[string]string{"from_status": "active", "to_status": "past_due"}))
	assert.Equal(t, 1.0, gatherCounter(t, reg, "test_billing_api_calls_total",
		map[string]string{"endpoint": "/v1/customers"}))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 6)
}
