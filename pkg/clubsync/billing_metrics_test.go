package clubsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
	"github.com/mihaimyh/clubsync/storage/memory"
)

func TestMonthlyAmount(t *testing.T) {
	tests := []struct {
		name     string
		price    int64
		interval clubsync.BillingInterval
		want     int64
	}{
		{"monthly", 4500, clubsync.IntervalMonth, 4500},
		{"yearly", 12000, clubsync.IntervalYear, 1000},
		{"weekly", 1200, clubsync.IntervalWeek, 5200},
		{"daily", 120, clubsync.IntervalDay, 3650},
		{"unknown interval", 700, "", 700},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, clubsync.MonthlyAmount(tt.price, tt.interval))
		})
	}
}

func TestSummarizeSubscriptions(t *testing.T) {
	plans := []*clubsync.Plan{
		{ID: "monthly", PriceCents: 4500, Interval: clubsync.IntervalMonth, Currency: "usd"},
		{ID: "yearly", PriceCents: 48000, Interval: clubsync.IntervalYear, Currency: "usd"},
	}
	subs := []*clubsync.PlanSubscription{
		{ID: "1", PlanID: "monthly", Status: clubsync.StatusActive},
		{ID: "2", PlanID: "yearly", Status: clubsync.StatusActive, CancelAtPeriodEnd: true},
		{ID: "3", PlanID: "monthly", Status: clubsync.StatusTrialing},
		{ID: "4", PlanID: "monthly", Status: clubsync.StatusCanceled, CancelAtPeriodEnd: true},
		{ID: "5", PlanID: "gone", Status: clubsync.StatusActive},
	}

	m := clubsync.SummarizeSubscriptions(subs, plans)

	assert.Equal(t, 5, m.TotalSubscriptions)
	assert.Equal(t, 3, m.ActiveSubscriptions)
	assert.Equal(t, 1, m.TrialingSubscriptions)
	assert.Equal(t, 1, m.CancelingAtPeriodEnd)
	assert.Equal(t, int64(4500+4000), m.MRRCents)
	assert.Equal(t, "usd", m.Currency)
	assert.Equal(t, map[string]int64{"usd": 4500 + 4000}, m.MRRByCurrency)
	assert.Equal(t, 3, m.ByStatus[clubsync.StatusActive])
}

func TestSummarizeSubscriptions_MixedCurrencies(t *testing.T) {
	plans := []*clubsync.Plan{
		{ID: "usd-monthly", PriceCents: 4500, Interval: clubsync.IntervalMonth, Currency: "usd"},
		{ID: "eur-monthly", PriceCents: 3000, Interval: clubsync.IntervalMonth, Currency: "EUR"},
		{ID: "usd-yearly", PriceCents: 12000, Interval: clubsync.IntervalYear, Currency: "USD"},
	}
	subs := []*clubsync.PlanSubscription{
		{ID: "1", PlanID: "usd-monthly", Status: clubsync.StatusActive},
		{ID: "2", PlanID: "eur-monthly", Status: clubsync.StatusActive},
		{ID: "3", PlanID: "usd-yearly", Status: clubsync.StatusActive},
	}

	m := clubsync.SummarizeSubscriptions(subs, plans)

	assert.Equal(t, "usd", m.Currency)
	assert.Equal(t, int64(4500+1000), m.MRRCents)
	assert.Equal(t, map[string]int64{"usd": 5500, "eur": 3000}, m.MRRByCurrency)
}

func TestReconciler_BillingMetrics(t *testing.T) {
	store := memory.New()
	seedTenant(t, store, testAccountID)
	ctx := context.Background()
	require.NoError(t, store.SavePlan(ctx, &clubsync.Plan{
		ID: "plan-1", TenantID: testTenantID, PriceCents: 3000, Interval: clubsync.IntervalMonth, Currency: "usd",
	}))
	seedSubscription(t, store, "ps-a", "sub_A", clubsync.StatusActive)
	seedSubscription(t, store, "ps-b", "sub_B", clubsync.StatusPastDue)

	fixed := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	r, err := clubsync.NewReconciler(store, newFakeBilling(), clubsync.Config{
		Now: func() time.Time { return fixed },
	})
	require.NoError(t, err)

	m, err := r.BillingMetrics(ctx, testTenantID)
	require.NoError(t, err)
	assert.Equal(t, testTenantID, m.TenantID)
	assert.Equal(t, 2, m.TotalSubscriptions)
	assert.Equal(t, int64(3000), m.MRRCents)
	assert.Equal(t, fixed, m.ComputedAt)

	_, err = r.BillingMetrics(ctx, "missing")
	assert.ErrorIs(t, err, clubsync.ErrNotFound)
}
