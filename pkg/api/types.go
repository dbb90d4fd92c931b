package api

import (
	"time"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// SyncCheckResponse is the drift report for one (tenant, consumer) pair
type SyncCheckResponse struct {
	Database     DatabaseView `json:"database"`
	Stripe       StripeView   `json:"stripe"`
	Missing      []string     `json:"missing"`
	MissingCount int          `json:"missingCount"`
}

// DatabaseView lists the locally mirrored subscriptions
type DatabaseView struct {
	Count         int                 `json:"count"`
	Subscriptions []LocalSubscription `json:"subscriptions"`
}

// LocalSubscription is one local mirror record
type LocalSubscription struct {
	ID                   string     `json:"id"`
	StripeSubscriptionID string     `json:"stripeSubscriptionId"`
	StripeCustomerID     string     `json:"stripeCustomerId,omitempty"`
	PlanID               string     `json:"planId,omitempty"`
	Status               string     `json:"status"`
	CurrentPeriodEnd     *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd    bool       `json:"cancelAtPeriodEnd"`
}

// StripeView lists what the billing provider holds for the consumer's email
type StripeView struct {
	CustomerCount      int                  `json:"customerCount"`
	DuplicateCustomers bool                 `json:"duplicateCustomers"`
	Customers          []Customer           `json:"customers"`
	Count              int                  `json:"count"`
	Subscriptions      []RemoteSubscription `json:"subscriptions"`
}

// Customer is one remote customer record
type Customer struct {
	ID      string    `json:"id"`
	Email   string    `json:"email"`
	Name    string    `json:"name,omitempty"`
	Created time.Time `json:"created"`
}

// RemoteSubscription is one remote subscription and its local match state
type RemoteSubscription struct {
	ID                string     `json:"id"`
	CustomerID        string     `json:"customerId"`
	Status            string     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancelAtPeriodEnd"`
	InDatabase        bool       `json:"inDatabase"`
}

// SyncSubscriptionRequest is the body of POST /sync-subscription
type SyncSubscriptionRequest struct {
	SubscriptionID string `json:"subscriptionId"`
}

// SyncSubscriptionResponse reports a one-way sync of a single subscription
type SyncSubscriptionResponse struct {
	Success      bool   `json:"success"`
	Before       string `json:"before"`
	After        string `json:"after"`
	StripeStatus string `json:"stripeStatus"`
	Changed      bool   `json:"changed"`
}

// BillingMetricsResponse is a tenant's billing summary
type BillingMetricsResponse struct {
	TenantID              string           `json:"tenantId"`
	TotalSubscriptions    int              `json:"totalSubscriptions"`
	ByStatus              map[string]int   `json:"byStatus"`
	ActiveSubscriptions   int              `json:"activeSubscriptions"`
	TrialingSubscriptions int              `json:"trialingSubscriptions"`
	CancelingAtPeriodEnd  int              `json:"cancelingAtPeriodEnd"`
	MRRCents              int64            `json:"mrrCents"`
	Currency              string           `json:"currency,omitempty"`
	MRRByCurrency         map[string]int64 `json:"mrrByCurrency"`
	ComputedAt            time.Time        `json:"computedAt"`
	Cached                bool             `json:"cached"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func newSyncCheckResponse(report *clubsync.DriftReport) SyncCheckResponse {
	resp := SyncCheckResponse{
		Database: DatabaseView{
			Count:         len(report.Local),
			Subscriptions: make([]LocalSubscription, 0, len(report.Local)),
		},
		Stripe: StripeView{
			CustomerCount:      len(report.Customers),
			DuplicateCustomers: report.DuplicateCustomers(),
			Customers:          make([]Customer, 0, len(report.Customers)),
			Count:              len(report.Remote),
			Subscriptions:      make([]RemoteSubscription, 0, len(report.Remote)),
		},
		Missing:      make([]string, 0, len(report.Missing)),
		MissingCount: len(report.Missing),
	}

	for _, sub := range report.Local {
		resp.Database.Subscriptions = append(resp.Database.Subscriptions, LocalSubscription{
			ID:                   sub.ID,
			StripeSubscriptionID: sub.ExternalSubscriptionID,
			StripeCustomerID:     sub.ExternalCustomerID,
			PlanID:               sub.PlanID,
			Status:               string(sub.Status),
			CurrentPeriodEnd:     sub.CurrentPeriodEnd,
			CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		})
	}
	for _, c := range report.Customers {
		resp.Stripe.Customers = append(resp.Stripe.Customers, Customer{
			ID:      c.ID,
			Email:   c.Email,
			Name:    c.Name,
			Created: c.Created,
		})
	}
	for _, entry := range report.Remote {
		resp.Stripe.Subscriptions = append(resp.Stripe.Subscriptions, RemoteSubscription{
			ID:                entry.Subscription.ID,
			CustomerID:        entry.Subscription.CustomerID,
			Status:            string(entry.Subscription.Status),
			CurrentPeriodEnd:  entry.Subscription.CurrentPeriodEnd,
			CancelAtPeriodEnd: entry.Subscription.CancelAtPeriodEnd,
			InDatabase:        entry.InDatabase,
		})
	}
	resp.Missing = append(resp.Missing, report.Missing...)

	return resp
}

func newBillingMetricsResponse(m *clubsync.BillingMetrics, cached bool) BillingMetricsResponse {
	byStatus := make(map[string]int, len(m.ByStatus))
	for status, n := range m.ByStatus {
		byStatus[string(status)] = n
	}
	mrr := make(map[string]int64, len(m.MRRByCurrency))
	for currency, cents := range m.MRRByCurrency {
		mrr[currency] = cents
	}
	return BillingMetricsResponse{
		TenantID:              m.TenantID,
		TotalSubscriptions:    m.TotalSubscriptions,
		ByStatus:              byStatus,
		ActiveSubscriptions:   m.ActiveSubscriptions,
		TrialingSubscriptions: m.TrialingSubscriptions,
		CancelingAtPeriodEnd:  m.CancelingAtPeriodEnd,
		MRRCents:              m.MRRCents,
		Currency:              m.Currency,
		MRRByCurrency:         mrr,
		ComputedAt:            m.ComputedAt,
		Cached:                cached,
	}
}
