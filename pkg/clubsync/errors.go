package clubsync

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the class of all NotFoundError values
	ErrNotFound = errors.New("not found")

	// ErrConfiguration is the class of all ConfigurationError values
	ErrConfiguration = errors.New("configuration error")

	// ErrUpstream is the class of all UpstreamError values
	ErrUpstream = errors.New("upstream error")

	// ErrTenantNotFound is returned by Storage when a tenant does not exist
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrConsumerNotFound is returned by Storage when a consumer does not exist
	ErrConsumerNotFound = errors.New("consumer not found")

	// ErrSubscriptionNotFound is returned by Storage when a plan subscription does not exist
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrWebhookEventNotFound is returned by Storage when a webhook audit record does not exist
	ErrWebhookEventNotFound = errors.New("webhook event not found")

	// ErrWebhookEventCompleted is returned when completing an audit record a second time
	ErrWebhookEventCompleted = errors.New("webhook event already completed")

	// ErrBillingAccountInUse is returned when saving a tenant whose billing account
	// already belongs to another tenant
	ErrBillingAccountInUse = errors.New("billing account already connected to another tenant")

	// ErrStorageUnavailable is returned when no storage is configured
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrBillingUnavailable is returned when no billing client is configured
	ErrBillingUnavailable = errors.New("billing client unavailable")
)

// NotFoundError reports a missing tenant, consumer or subscription
type NotFoundError struct {
	Entity string
	ID     string
	Err    error
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNotFound) hold for every NotFoundError
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConfigurationError reports a tenant that cannot be reconciled as configured,
// e.g. one that has not completed billing onboarding
type ConfigurationError struct {
	TenantID string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("tenant %q: %s", e.TenantID, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// UpstreamError wraps a failed billing provider call.
// Error returns the provider message verbatim.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return e.Op + ": upstream call failed"
	}
	return e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }
