package billing

import (
	"context"
	"time"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// SubscriptionChange describes a subscription update applied from a webhook.
// It is passed to the WebhookCallback after the local record was overwritten.
type SubscriptionChange struct {
	// TenantID owns the subscription
	TenantID string

	// SubscriptionID is the local plan subscription id
	SubscriptionID string

	// ExternalSubscriptionID is the provider's subscription id
	ExternalSubscriptionID string

	PreviousStatus clubsync.SubscriptionStatus
	NewStatus      clubsync.SubscriptionStatus

	// Provider is the billing provider name ("stripe")
	Provider string

	// EventID and EventType identify the provider event,
	// e.g. "customer.subscription.updated"
	EventID   string
	EventType string

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time

	// CurrentPeriodEnd is the end of the current billing period, when known
	CurrentPeriodEnd *time.Time

	// Metadata carries the subscription's provider metadata
	Metadata map[string]string
}

// WebhookCallback observes applied subscription changes
type WebhookCallback func(ctx context.Context, change SubscriptionChange) error
