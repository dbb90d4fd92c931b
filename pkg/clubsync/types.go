package clubsync

import (
	"time"
)

// SubscriptionStatus mirrors the billing provider's subscription status vocabulary
type SubscriptionStatus string

const (
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusTrialing          SubscriptionStatus = "trialing"
	StatusActive            SubscriptionStatus = "active"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusPaused            SubscriptionStatus = "paused"
)

// PlanStatus is the lifecycle state of a Plan
type PlanStatus string

const (
	PlanStatusDraft    PlanStatus = "draft"
	PlanStatusActive   PlanStatus = "active"
	PlanStatusArchived PlanStatus = "archived"
)

// BillingInterval is the recurrence of a Plan price
type BillingInterval string

const (
	IntervalDay   BillingInterval = "day"
	IntervalWeek  BillingInterval = "week"
	IntervalMonth BillingInterval = "month"
	IntervalYear  BillingInterval = "year"
)

// Tenant is an onboarded business (a wine club)
type Tenant struct {
	ID   string
	Slug string
	Name string

	// BillingAccountID is the connected billing account (e.g. a Stripe Connect "acct_..." id).
	// Empty until the tenant finishes billing onboarding.
	BillingAccountID string

	OnboardingStatus string
	CreatedAt        time.Time
}

// HasBillingAccount reports whether the tenant completed billing onboarding
func (t *Tenant) HasBillingAccount() bool {
	return t != nil && t.BillingAccountID != ""
}

// Membership is a named tier belonging to a tenant
type Membership struct {
	ID        string
	TenantID  string
	Name      string
	CreatedAt time.Time
}

// Plan is a priced offering under a Membership
type Plan struct {
	ID              string
	TenantID        string
	MembershipID    string
	Name            string
	Interval        BillingInterval
	PriceCents      int64
	Currency        string
	Status          PlanStatus
	ExternalPriceID string
}

// Consumer is an end customer identified by email.
// A consumer may hold subscriptions with several tenants.
type Consumer struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
}

// PlanSubscription is the local mirror of one external billing subscription
type PlanSubscription struct {
	ID                     string
	TenantID               string
	ConsumerID             string
	PlanID                 string
	ExternalSubscriptionID string
	ExternalCustomerID     string
	Status                 SubscriptionStatus
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	UpdatedAt              time.Time
}

// StatusUpdate carries the provider-owned fields that reconciliation overwrites
type StatusUpdate struct {
	Status             SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
}

// WebhookEvent is an append-only audit record of an inbound provider event.
// ProcessedAt and ProcessingError are set exactly once.
type WebhookEvent struct {
	ID              string
	Provider        string
	ProviderEventID string
	EventType       string
	AccountID       string
	SignatureValid  bool
	Payload         []byte
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
	ProcessingError string
}

// RemoteCustomer is a customer record on the billing provider
type RemoteCustomer struct {
	ID      string
	Email   string
	Name    string
	Created time.Time
}

// RemoteSubscription is the provider's authoritative view of a subscription
type RemoteSubscription struct {
	ID                 string
	CustomerID         string
	Status             SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	PriceIDs           []string
	Created            time.Time
}

// StatusUpdate returns the fields of r that overwrite the local mirror
func (r *RemoteSubscription) StatusUpdate() StatusUpdate {
	return StatusUpdate{
		Status:             r.Status,
		CurrentPeriodStart: r.CurrentPeriodStart,
		CurrentPeriodEnd:   r.CurrentPeriodEnd,
		CancelAtPeriodEnd:  r.CancelAtPeriodEnd,
	}
}

// DriftReport is the result of comparing remote and local subscription sets
// for one (tenant, consumer) pair
type DriftReport struct {
	TenantID      string
	ConsumerEmail string
	ConsumerID    string

	// Local is the mirrored subscription set for the consumer within the tenant
	Local []*PlanSubscription

	// Customers are all remote customers matching the email. Several customers may
	// share one email; they are reported as-is.
	Customers []RemoteCustomer

	// Remote lists every remote subscription with its local match state
	Remote []DriftEntry

	// Missing holds the ids of remote subscriptions with no local record, each once
	Missing []string

	CheckedAt time.Time
}

// DuplicateCustomers reports whether more than one remote customer shares the email
func (r *DriftReport) DuplicateCustomers() bool {
	return len(r.Customers) > 1
}

// DriftEntry is one remote subscription and whether it is mirrored locally
type DriftEntry struct {
	Subscription RemoteSubscription
	InDatabase   bool
}

// ReconcileResult describes a one-way sync of a single subscription
type ReconcileResult struct {
	SubscriptionID         string
	ExternalSubscriptionID string
	TenantID               string
	Before                 SubscriptionStatus
	After                  SubscriptionStatus
	RemoteStatus           SubscriptionStatus
	Changed                bool
	Subscription           *PlanSubscription
}

// BillingMetrics summarises a tenant's mirrored subscriptions
type BillingMetrics struct {
	TenantID              string
	TotalSubscriptions    int
	ByStatus              map[SubscriptionStatus]int
	ActiveSubscriptions   int
	TrialingSubscriptions int
	CancelingAtPeriodEnd  int
	MRRCents              int64 // MRR in Currency only
	Currency              string
	MRRByCurrency         map[string]int64
	ComputedAt            time.Time
}

// Config configures the Reconciler
type Config struct {
	// Metrics is used for tracking reconciliation operations (default: NoopMetrics)
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// Now overrides the clock (default: time.Now)
	Now func() time.Time
}
