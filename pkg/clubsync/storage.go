package clubsync

import (
	"context"
)

// Storage defines the query operations the reconciler needs from the local store.
// Implementations provide no multi-statement atomicity; every call stands alone.
type Storage interface {
	// GetTenant retrieves a tenant by id
	// Returns ErrTenantNotFound if absent
	GetTenant(ctx context.Context, tenantID string) (*Tenant, error)

	// GetTenantByBillingAccount resolves the tenant owning a connected billing account
	// Returns ErrTenantNotFound if absent
	GetTenantByBillingAccount(ctx context.Context, accountID string) (*Tenant, error)

	// GetConsumerByEmail retrieves a consumer by email (case-insensitive)
	// Returns ErrConsumerNotFound if absent
	GetConsumerByEmail(ctx context.Context, email string) (*Consumer, error)

	// FindSubscriptionsByConsumer returns the consumer's subscriptions within one tenant.
	// Subscriptions of other tenants are never returned.
	FindSubscriptionsByConsumer(ctx context.Context, tenantID, consumerID string) ([]*PlanSubscription, error)

	// FindSubscriptionByID retrieves a subscription by local id
	// Returns ErrSubscriptionNotFound if absent
	FindSubscriptionByID(ctx context.Context, id string) (*PlanSubscription, error)

	// FindSubscriptionByExternalID retrieves a subscription by provider subscription id
	// Returns ErrSubscriptionNotFound if absent
	FindSubscriptionByExternalID(ctx context.Context, externalID string) (*PlanSubscription, error)

	// UpdateSubscriptionStatus overwrites the provider-owned fields of a subscription
	// and returns the updated record
	UpdateSubscriptionStatus(ctx context.Context, id string, update StatusUpdate) (*PlanSubscription, error)

	// ListSubscriptionsByTenant returns every subscription owned by a tenant
	ListSubscriptionsByTenant(ctx context.Context, tenantID string) ([]*PlanSubscription, error)

	// ListPlans returns every plan owned by a tenant
	ListPlans(ctx context.Context, tenantID string) ([]*Plan, error)

	// RecordWebhookEvent appends an audit record. ID and ReceivedAt are assigned when empty.
	RecordWebhookEvent(ctx context.Context, event *WebhookEvent) error

	// CompleteWebhookEvent sets ProcessedAt and ProcessingError once.
	// Returns ErrWebhookEventCompleted on a second call for the same id.
	CompleteWebhookEvent(ctx context.Context, id, processingError string) error
}

// BillingClient is the billing provider as seen by the reconciler.
// accountID selects the tenant's connected account.
type BillingClient interface {
	// ListCustomersByEmail returns every remote customer whose email matches
	ListCustomersByEmail(ctx context.Context, accountID, email string) ([]RemoteCustomer, error)

	// ListSubscriptions returns all subscriptions of a remote customer, any status
	ListSubscriptions(ctx context.Context, accountID, customerID string) ([]RemoteSubscription, error)

	// RetrieveSubscription fetches a single remote subscription
	RetrieveSubscription(ctx context.Context, accountID, subscriptionID string) (*RemoteSubscription, error)
}
