package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/clubsync/internal/httputil"
	"github.com/mihaimyh/clubsync/pkg/billing"
	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

const (
	eventSubscriptionCreated = "customer.subscription.created"
	eventSubscriptionUpdated = "customer.subscription.updated"
	eventSubscriptionDeleted = "customer.subscription.deleted"

	signatureHeader = "Stripe-Signature"
)

// WebhookHandler verifies, audits and applies Stripe Connect events.
type WebhookHandler struct {
	secret      string
	applier     billing.Applier
	audit       billing.AuditLog
	callback    billing.WebhookCallback
	rateLimiter *httputil.RateLimiter
	metrics     billing.Metrics
	logger      clubsync.Logger
}

// NewWebhookHandler creates the webhook intake. Events are applied through applier
// and recorded in audit.
func NewWebhookHandler(config billing.Config, applier billing.Applier, audit billing.AuditLog) (*WebhookHandler, error) {
	if applier == nil || audit == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	limit, window := config.WebhookRateLimit, config.WebhookRateWindow
	if limit <= 0 {
		limit = billing.DefaultConfig().WebhookRateLimit
	}
	if window <= 0 {
		window = billing.DefaultConfig().WebhookRateWindow
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}
	logger := config.Logger
	if logger == nil {
		logger = &clubsync.NoopLogger{}
	}

	return &WebhookHandler{
		secret:      strings.TrimSpace(config.WebhookSecret),
		applier:     applier,
		audit:       audit,
		callback:    config.WebhookCallback,
		rateLimiter: httputil.NewRateLimiter(limit, window),
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// Handler returns the rate-limited HTTP handler
func (h *WebhookHandler) Handler() http.Handler {
	return h.rateLimiter.Middleware(h)
}

// ServeHTTP processes one webhook delivery
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	httputil.SetSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.secret == "" {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := httputil.ReadBodyStrict(w, r, billing.DefaultWebhookBodyLimit)
	if err != nil {
		if errors.Is(err, httputil.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			h.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			h.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	ctx := r.Context()
	event, verifyErr := webhook.ConstructEventWithOptions(body, r.Header.Get(signatureHeader), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})

	if verifyErr != nil {
		// Unverified deliveries are still audited when they parse
		var unverified stripe.Event
		if json.Unmarshal(body, &unverified) != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			h.metrics.RecordWebhookError(providerName, "invalid_payload")
			return
		}
		record := h.auditRecord(&unverified, body, false)
		if err := h.audit.RecordWebhookEvent(ctx, record); err != nil {
			h.logger.Error("failed to record webhook event", clubsync.ErrorField(err))
		} else {
			h.complete(ctx, record.ID, "invalid signature")
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		h.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "unknown"
	}

	record := h.auditRecord(&event, body, true)
	if err := h.audit.RecordWebhookEvent(ctx, record); err != nil {
		h.logger.Error("failed to record webhook event",
			clubsync.Field{Key: "event_id", Value: event.ID},
			clubsync.ErrorField(err),
		)
		http.Error(w, "failed to record webhook", http.StatusInternalServerError)
		h.metrics.RecordWebhookError(providerName, "audit_failed")
		return
	}

	status, err := h.process(ctx, &event)
	processingError := ""
	if err != nil {
		processingError = err.Error()
	}
	h.complete(ctx, record.ID, processingError)

	h.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
	if err != nil {
		h.logger.Error("webhook processing failed",
			clubsync.Field{Key: "event_id", Value: event.ID},
			clubsync.Field{Key: "event_type", Value: eventType},
			clubsync.ErrorField(err),
		)
		h.metrics.RecordWebhookEvent(providerName, eventType, "error")
		h.metrics.RecordWebhookError(providerName, "processing_error")
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordWebhookEvent(providerName, eventType, status)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// process applies a verified event. It returns the metrics status for the event.
func (h *WebhookHandler) process(ctx context.Context, event *stripe.Event) (string, error) {
	switch event.Type {
	case eventSubscriptionCreated, eventSubscriptionUpdated, eventSubscriptionDeleted:
	default:
		return "ignored", nil
	}

	if event.Data == nil {
		return "", billing.ErrInvalidWebhookPayload
	}
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return "", fmt.Errorf("failed to unmarshal subscription: %w", err)
	}
	if event.Account == "" {
		return "", fmt.Errorf("%w: event %s has no connected account", billing.ErrInvalidWebhookPayload, event.ID)
	}

	remote := subscriptionFromStripe(&sub)
	result, err := h.applier.ApplyRemote(ctx, event.Account, remote)
	if err != nil {
		if errors.Is(err, clubsync.ErrNotFound) {
			// Not mirrored locally; it remains visible to drift checks
			h.logger.Warn("webhook subscription has no local record",
				clubsync.Field{Key: "event_id", Value: event.ID},
				clubsync.Field{Key: "account_id", Value: event.Account},
				clubsync.Field{Key: "external_subscription_id", Value: remote.ID},
			)
			return "ignored", nil
		}
		return "", err
	}

	if result.Changed {
		h.metrics.RecordStatusChange(providerName, string(result.Before), string(result.After))
	}
	h.notify(ctx, event, &sub, remote, result)
	return "success", nil
}

func (h *WebhookHandler) notify(
	ctx context.Context,
	event *stripe.Event,
	sub *stripe.Subscription,
	remote *clubsync.RemoteSubscription,
	result *clubsync.ReconcileResult,
) {
	if h.callback == nil {
		return
	}
	change := billing.SubscriptionChange{
		TenantID:               result.TenantID,
		SubscriptionID:         result.SubscriptionID,
		ExternalSubscriptionID: result.ExternalSubscriptionID,
		PreviousStatus:         result.Before,
		NewStatus:              result.After,
		Provider:               providerName,
		EventID:                event.ID,
		EventType:              string(event.Type),
		EventTimestamp:         unixTime(event.Created),
		CurrentPeriodEnd:       remote.CurrentPeriodEnd,
		Metadata:               sub.Metadata,
	}
	if err := h.callback(ctx, change); err != nil {
		h.logger.Warn("webhook callback failed",
			clubsync.Field{Key: "event_id", Value: event.ID},
			clubsync.ErrorField(err),
		)
	}
}

func (h *WebhookHandler) auditRecord(event *stripe.Event, body []byte, signatureValid bool) *clubsync.WebhookEvent {
	return &clubsync.WebhookEvent{
		Provider:        providerName,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		AccountID:       event.Account,
		SignatureValid:  signatureValid,
		Payload:         body,
	}
}

func (h *WebhookHandler) complete(ctx context.Context, id, processingError string) {
	if err := h.audit.CompleteWebhookEvent(ctx, id, processingError); err != nil {
		h.logger.Error("failed to complete webhook event",
			clubsync.Field{Key: "webhook_event_id", Value: id},
			clubsync.ErrorField(err),
		)
	}
}
