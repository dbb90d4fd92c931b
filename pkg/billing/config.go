package billing

import (
	"net/http"
	"time"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

const (
	// DefaultWebhookBodyLimit caps webhook payloads
	DefaultWebhookBodyLimit = 256 * 1024

	// DefaultHTTPTimeout applies to outbound provider calls when no HTTPClient is given
	DefaultHTTPTimeout = 10 * time.Second
)

// Config defines the standard configuration all providers accept
type Config struct {
	// APIKey is used for outbound API calls to the billing provider.
	// For Stripe Connect this is the platform secret key.
	APIKey string

	// WebhookSecret is used to verify incoming webhook signatures.
	WebhookSecret string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a client with DefaultHTTPTimeout is used.
	HTTPClient *http.Client

	// BackendURL overrides the provider API base URL (tests, stubs).
	BackendURL string

	// WebhookRateLimit is the number of webhook requests allowed per client IP
	// per WebhookRateWindow (default: 100 per minute).
	WebhookRateLimit  int
	WebhookRateWindow time.Duration

	// WebhookCallback observes subscription changes applied from webhooks.
	// Errors are logged and never fail the webhook.
	WebhookCallback WebhookCallback

	// Metrics is an optional metrics collector for tracking billing provider operations.
	// If nil, metrics are silently ignored.
	Metrics Metrics

	// Logger is used for structured logging (default: clubsync.NoopLogger)
	Logger clubsync.Logger
}

// DefaultConfig returns a Config with the default webhook rate limit
func DefaultConfig() Config {
	return Config{
		WebhookRateLimit:  100,
		WebhookRateWindow: time.Minute,
	}
}

// Validate checks that the outbound credentials are present
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrProviderNotConfigured
	}
	if c.WebhookRateLimit < 0 || c.WebhookRateWindow < 0 {
		return ErrInvalidRateLimit
	}
	return nil
}
