package clubsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// BillingMetrics summarises the tenant's mirrored subscriptions. MRR counts
// active subscriptions only, normalised to a monthly amount.
func (r *Reconciler) BillingMetrics(ctx context.Context, tenantID string) (*BillingMetrics, error) {
	tenant, err := r.storage.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, &NotFoundError{Entity: "tenant", ID: tenantID, Err: err}
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	opStart := r.now()
	subs, err := r.storage.ListSubscriptionsByTenant(ctx, tenant.ID)
	r.metrics.RecordStorageOperation("list_subscriptions_by_tenant", r.now().Sub(opStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}

	opStart = r.now()
	plans, err := r.storage.ListPlans(ctx, tenant.ID)
	r.metrics.RecordStorageOperation("list_plans", r.now().Sub(opStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}

	m := SummarizeSubscriptions(subs, plans)
	m.TenantID = tenant.ID
	m.ComputedAt = r.now().UTC()
	return m, nil
}

// SummarizeSubscriptions computes status counts and MRR from a subscription set.
// Subscriptions whose plan is unknown count toward status totals but not MRR.
// Amounts are never summed across currencies: MRRByCurrency holds every total and
// MRRCents the total in Currency, the first currency seen.
func SummarizeSubscriptions(subs []*PlanSubscription, plans []*Plan) *BillingMetrics {
	planByID := make(map[string]*Plan, len(plans))
	for _, p := range plans {
		planByID[p.ID] = p
	}

	m := &BillingMetrics{
		ByStatus:      make(map[SubscriptionStatus]int),
		MRRByCurrency: make(map[string]int64),
	}

	for _, sub := range subs {
		m.TotalSubscriptions++
		m.ByStatus[sub.Status]++

		switch sub.Status {
		case StatusActive:
			m.ActiveSubscriptions++
			if plan, ok := planByID[sub.PlanID]; ok {
				currency := strings.ToLower(plan.Currency)
				if m.Currency == "" {
					m.Currency = currency
				}
				m.MRRByCurrency[currency] += MonthlyAmount(plan.PriceCents, plan.Interval)
			}
		case StatusTrialing:
			m.TrialingSubscriptions++
		}

		if sub.CancelAtPeriodEnd && sub.Status != StatusCanceled {
			m.CancelingAtPeriodEnd++
		}
	}

	m.MRRCents = m.MRRByCurrency[m.Currency]
	return m
}

// MonthlyAmount normalises a recurring price to a monthly amount in the same unit
func MonthlyAmount(priceCents int64, interval BillingInterval) int64 {
	switch interval {
	case IntervalYear:
		return priceCents / 12
	case IntervalWeek:
		return priceCents * 52 / 12
	case IntervalDay:
		return priceCents * 365 / 12
	default:
		return priceCents
	}
}
