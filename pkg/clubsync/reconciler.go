package clubsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	sourceManual  = "manual"
	sourceWebhook = "webhook"

	outcomeChanged   = "changed"
	outcomeUnchanged = "unchanged"
	outcomeError     = "error"
)

// Reconciler detects and repairs drift between the billing provider's
// subscription state and the local mirror. The provider is always authoritative.
type Reconciler struct {
	storage Storage
	billing BillingClient
	metrics Metrics
	logger  Logger
	now     func() time.Time
}

// NewReconciler creates a new reconciler over the given store and billing client
func NewReconciler(storage Storage, billing BillingClient, config Config) (*Reconciler, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}
	if billing == nil {
		return nil, ErrBillingUnavailable
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	return &Reconciler{
		storage: storage,
		billing: billing,
		metrics: metrics,
		logger:  logger,
		now:     now,
	}, nil
}

// FindDrift compares the remote subscriptions of every provider customer matching
// consumerEmail on the tenant's billing account with the local mirror of the
// consumer's subscriptions in that tenant. It has no side effects.
func (r *Reconciler) FindDrift(ctx context.Context, tenantID, consumerEmail string) (*DriftReport, error) {
	startTime := r.now()
	report, err := r.findDrift(ctx, tenantID, consumerEmail)

	missing := 0
	if report != nil {
		missing = len(report.Missing)
	}
	r.metrics.RecordDriftCheck(tenantID, missing, r.now().Sub(startTime), err)
	return report, err
}

func (r *Reconciler) findDrift(ctx context.Context, tenantID, consumerEmail string) (*DriftReport, error) {
	tenantID = strings.TrimSpace(tenantID)
	consumerEmail = strings.TrimSpace(consumerEmail)
	if tenantID == "" {
		return nil, &NotFoundError{Entity: "tenant", Err: ErrTenantNotFound}
	}
	if consumerEmail == "" {
		return nil, &NotFoundError{Entity: "consumer", Err: ErrConsumerNotFound}
	}

	tenant, err := r.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	consumer, err := r.storage.GetConsumerByEmail(ctx, consumerEmail)
	if err != nil {
		if errors.Is(err, ErrConsumerNotFound) {
			return nil, &NotFoundError{Entity: "consumer", ID: consumerEmail, Err: err}
		}
		return nil, fmt.Errorf("failed to get consumer: %w", err)
	}
	if err := requireBillingAccount(tenant); err != nil {
		return nil, err
	}

	local, err := r.storage.FindSubscriptionsByConsumer(ctx, tenant.ID, consumer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find local subscriptions: %w", err)
	}

	// Provider email filters are case-sensitive; the stored address is the one synced upstream
	customers, err := r.billing.ListCustomersByEmail(ctx, tenant.BillingAccountID, consumer.Email)
	if err != nil {
		return nil, &UpstreamError{Op: "list customers", Err: err}
	}
	if len(customers) > 1 {
		// Several customers per email is reported, never merged
		r.logger.Warn("multiple billing customers share one email",
			Field{"tenant_id", tenant.ID},
			Field{"email", consumer.Email},
			Field{"customer_count", len(customers)},
		)
	}

	localByExternalID := make(map[string]bool, len(local))
	for _, sub := range local {
		localByExternalID[sub.ExternalSubscriptionID] = true
	}

	report := &DriftReport{
		TenantID:      tenant.ID,
		ConsumerEmail: consumerEmail,
		ConsumerID:    consumer.ID,
		Local:         local,
		Customers:     customers,
		Remote:        []DriftEntry{},
		Missing:       []string{},
		CheckedAt:     r.now().UTC(),
	}

	seen := make(map[string]bool)
	for _, cust := range customers {
		subs, err := r.billing.ListSubscriptions(ctx, tenant.BillingAccountID, cust.ID)
		if err != nil {
			return nil, &UpstreamError{Op: "list subscriptions", Err: err}
		}
		for _, sub := range subs {
			if seen[sub.ID] {
				continue
			}
			seen[sub.ID] = true

			inDB := localByExternalID[sub.ID]
			report.Remote = append(report.Remote, DriftEntry{Subscription: sub, InDatabase: inDB})
			if !inDB {
				report.Missing = append(report.Missing, sub.ID)
			}
		}
	}

	if len(report.Missing) > 0 {
		r.logger.Info("subscription drift detected",
			Field{"tenant_id", tenant.ID},
			Field{"consumer_id", consumer.ID},
			Field{"missing", report.Missing},
		)
	}

	return report, nil
}

// ReconcileOne overwrites the local status fields of one subscription with the
// provider's current values. An unknown id fails before any remote call.
func (r *Reconciler) ReconcileOne(ctx context.Context, planSubscriptionID string) (*ReconcileResult, error) {
	startTime := r.now()

	planSubscriptionID = strings.TrimSpace(planSubscriptionID)
	if planSubscriptionID == "" {
		r.metrics.RecordReconcile(sourceManual, outcomeError, r.now().Sub(startTime))
		return nil, &NotFoundError{Entity: "subscription", Err: ErrSubscriptionNotFound}
	}

	local, err := r.storage.FindSubscriptionByID(ctx, planSubscriptionID)
	if err != nil {
		r.metrics.RecordReconcile(sourceManual, outcomeError, r.now().Sub(startTime))
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, &NotFoundError{Entity: "subscription", ID: planSubscriptionID, Err: err}
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	if scope, ok := TenantScope(ctx); ok && scope != local.TenantID {
		r.metrics.RecordReconcile(sourceManual, outcomeError, r.now().Sub(startTime))
		return nil, &NotFoundError{Entity: "subscription", ID: planSubscriptionID, Err: ErrSubscriptionNotFound}
	}

	tenant, err := r.billableTenant(ctx, local.TenantID)
	if err != nil {
		r.metrics.RecordReconcile(sourceManual, outcomeError, r.now().Sub(startTime))
		return nil, err
	}

	remote, err := r.billing.RetrieveSubscription(ctx, tenant.BillingAccountID, local.ExternalSubscriptionID)
	if err != nil {
		r.metrics.RecordReconcile(sourceManual, outcomeError, r.now().Sub(startTime))
		return nil, &UpstreamError{Op: "retrieve subscription", Err: err}
	}

	result, err := r.overwrite(ctx, local, remote)
	r.recordOutcome(sourceManual, result, err, startTime)
	return result, err
}

// ApplyRemote mirrors a provider-pushed subscription state into the local store.
// The tenant is resolved from the connected billing account. A subscription that
// has no local record yields a NotFoundError; it stays visible to FindDrift.
func (r *Reconciler) ApplyRemote(ctx context.Context, accountID string, remote *RemoteSubscription) (*ReconcileResult, error) {
	startTime := r.now()
	if remote == nil || remote.ID == "" {
		r.metrics.RecordReconcile(sourceWebhook, outcomeError, r.now().Sub(startTime))
		return nil, fmt.Errorf("remote subscription is required")
	}

	tenant, err := r.storage.GetTenantByBillingAccount(ctx, accountID)
	if err != nil {
		r.metrics.RecordReconcile(sourceWebhook, outcomeError, r.now().Sub(startTime))
		if errors.Is(err, ErrTenantNotFound) {
			return nil, &NotFoundError{Entity: "billing account", ID: accountID, Err: err}
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}

	local, err := r.storage.FindSubscriptionByExternalID(ctx, remote.ID)
	if err != nil {
		r.metrics.RecordReconcile(sourceWebhook, outcomeError, r.now().Sub(startTime))
		if errors.Is(err, ErrSubscriptionNotFound) {
			return nil, &NotFoundError{Entity: "subscription", ID: remote.ID, Err: err}
		}
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}

	// External ids are unique, but the record must still belong to the sending tenant
	if local.TenantID != tenant.ID {
		r.metrics.RecordReconcile(sourceWebhook, outcomeError, r.now().Sub(startTime))
		r.logger.Warn("subscription belongs to a different tenant",
			Field{"external_subscription_id", remote.ID},
			Field{"account_id", accountID},
			Field{"tenant_id", tenant.ID},
			Field{"owner_tenant_id", local.TenantID},
		)
		return nil, &NotFoundError{Entity: "subscription", ID: remote.ID, Err: ErrSubscriptionNotFound}
	}

	result, err := r.overwrite(ctx, local, remote)
	r.recordOutcome(sourceWebhook, result, err, startTime)
	return result, err
}

// overwrite applies remote-wins, last-write-wins semantics to one record
func (r *Reconciler) overwrite(ctx context.Context, local *PlanSubscription, remote *RemoteSubscription) (*ReconcileResult, error) {
	before := local.Status

	opStart := r.now()
	updated, err := r.storage.UpdateSubscriptionStatus(ctx, local.ID, remote.StatusUpdate())
	r.metrics.RecordStorageOperation("update_subscription_status", r.now().Sub(opStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to update subscription status: %w", err)
	}

	result := &ReconcileResult{
		SubscriptionID:         local.ID,
		ExternalSubscriptionID: local.ExternalSubscriptionID,
		TenantID:               local.TenantID,
		Before:                 before,
		After:                  updated.Status,
		RemoteStatus:           remote.Status,
		Changed:                before != updated.Status,
		Subscription:           updated,
	}

	if result.Changed {
		r.metrics.RecordStatusTransition(before, updated.Status)
		r.logger.Info("subscription status reconciled",
			Field{"subscription_id", local.ID},
			Field{"external_subscription_id", local.ExternalSubscriptionID},
			Field{"before", string(before)},
			Field{"after", string(updated.Status)},
		)
	}

	return result, nil
}

func (r *Reconciler) recordOutcome(source string, result *ReconcileResult, err error, startTime time.Time) {
	outcome := outcomeUnchanged
	switch {
	case err != nil:
		outcome = outcomeError
	case result.Changed:
		outcome = outcomeChanged
	}
	r.metrics.RecordReconcile(source, outcome, r.now().Sub(startTime))
}

// billableTenant loads a tenant and checks it finished billing onboarding
func (r *Reconciler) billableTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	tenant, err := r.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := requireBillingAccount(tenant); err != nil {
		return nil, err
	}
	return tenant, nil
}

func (r *Reconciler) tenant(ctx context.Context, tenantID string) (*Tenant, error) {
	tenant, err := r.storage.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return nil, &NotFoundError{Entity: "tenant", ID: tenantID, Err: err}
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

func requireBillingAccount(tenant *Tenant) error {
	if !tenant.HasBillingAccount() {
		return &ConfigurationError{TenantID: tenant.ID, Reason: "billing account not connected"}
	}
	return nil
}
