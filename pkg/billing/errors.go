package billing

import "errors"

var (
	// ErrProviderNotConfigured is returned when a provider is missing its API key
	ErrProviderNotConfigured = errors.New("billing provider not configured")

	// ErrInvalidRateLimit is returned when the webhook rate limit is negative
	ErrInvalidRateLimit = errors.New("invalid webhook rate limit")

	// ErrInvalidWebhookSignature is returned when webhook signature validation fails
	ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

	// ErrInvalidWebhookPayload is returned when webhook payload cannot be parsed
	ErrInvalidWebhookPayload = errors.New("invalid webhook payload")

	// ErrAccountRequired is returned when a call is made without a connected account id
	ErrAccountRequired = errors.New("connected billing account required")
)
