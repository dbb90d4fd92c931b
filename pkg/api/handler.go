package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/mihaimyh/clubsync/internal/httputil"
	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

const (
	cacheTypeBillingMetrics = "billing_metrics"
	maxTenantIDLen          = 255
	maxEmailLen             = 320
)

var (
	// ErrTenantOutOfScope is returned when a request names a tenant other than the caller's scope
	ErrTenantOutOfScope = errors.New("tenant is outside the caller's scope")

	// ErrMissingParameter is returned when a required query or body field is absent
	ErrMissingParameter = errors.New("missing required parameter")
)

// Handler provides the admin HTTP endpoints for drift checks and reconciliation
type Handler struct {
	config Config
}

// SyncCheck reports drift between the provider and the local mirror for one consumer.
// GET /sync-check?tenantId=...&email=...
func (h *Handler) SyncCheck(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenantId"))
	email := strings.TrimSpace(r.URL.Query().Get("email"))

	if tenantID == "" || email == "" {
		h.handleError(w, r, http.StatusBadRequest, missingParameter("tenantId and email"))
		return
	}
	if len(tenantID) > maxTenantIDLen || len(email) > maxEmailLen {
		h.handleError(w, r, http.StatusBadRequest, errors.New("invalid tenantId or email"))
		return
	}
	if err := h.authorizeTenant(r, tenantID); err != nil {
		h.handleError(w, r, http.StatusForbidden, err)
		return
	}

	report, err := h.config.Reconciler.FindDrift(r.Context(), tenantID, email)
	if err != nil {
		h.handleError(w, r, statusFor(err), err)
		return
	}

	h.writeJSON(w, http.StatusOK, newSyncCheckResponse(report))
}

// SyncSubscription overwrites one local subscription with the provider's state.
// POST /sync-subscription {"subscriptionId": "..."}
func (h *Handler) SyncSubscription(w http.ResponseWriter, r *http.Request) {
	body, err := httputil.ReadBodyStrict(w, r, h.config.MaxBodyBytes)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, httputil.ErrPayloadTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		h.handleError(w, r, status, err)
		return
	}

	var req SyncSubscriptionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.handleError(w, r, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	req.SubscriptionID = strings.TrimSpace(req.SubscriptionID)
	if req.SubscriptionID == "" {
		h.handleError(w, r, http.StatusBadRequest, missingParameter("subscriptionId"))
		return
	}

	result, err := h.config.Reconciler.ReconcileOne(r.Context(), req.SubscriptionID)
	if err != nil {
		h.handleError(w, r, statusFor(err), err)
		return
	}

	h.config.Cache.InvalidateMetrics(result.TenantID)

	h.writeJSON(w, http.StatusOK, SyncSubscriptionResponse{
		Success:      true,
		Before:       string(result.Before),
		After:        string(result.After),
		StripeStatus: string(result.RemoteStatus),
		Changed:      result.Changed,
	})
}

// GetBillingMetrics returns the tenant's billing summary, served from the cache when fresh.
// GET /billing-metrics?tenantId=...
func (h *Handler) GetBillingMetrics(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSpace(r.URL.Query().Get("tenantId"))
	if tenantID == "" {
		h.handleError(w, r, http.StatusBadRequest, missingParameter("tenantId"))
		return
	}
	if err := h.authorizeTenant(r, tenantID); err != nil {
		h.handleError(w, r, http.StatusForbidden, err)
		return
	}

	if cached, ok := h.config.Cache.GetMetrics(tenantID); ok {
		h.config.Metrics.RecordCacheHit(cacheTypeBillingMetrics)
		h.writeJSON(w, http.StatusOK, newBillingMetricsResponse(cached, true))
		return
	}
	h.config.Metrics.RecordCacheMiss(cacheTypeBillingMetrics)

	m, err := h.config.Reconciler.BillingMetrics(r.Context(), tenantID)
	if err != nil {
		h.handleError(w, r, statusFor(err), err)
		return
	}
	h.config.Cache.SetMetrics(tenantID, m, h.config.MetricsTTL)

	h.writeJSON(w, http.StatusOK, newBillingMetricsResponse(m, false))
}

// Healthz reports liveness
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authorizeTenant rejects a tenant id that differs from the request's scope
func (h *Handler) authorizeTenant(r *http.Request, tenantID string) error {
	if scope, ok := clubsync.TenantScope(r.Context()); ok && scope != tenantID {
		return ErrTenantOutOfScope
	}
	return nil
}

// statusFor maps the reconciler's error taxonomy to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, clubsync.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, clubsync.ErrConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func missingParameter(name string) error {
	return &parameterError{name: name}
}

type parameterError struct {
	name string
}

func (e *parameterError) Error() string { return e.name + " is required" }

func (e *parameterError) Is(target error) bool { return target == ErrMissingParameter }

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	httputil.SetSecurityHeaders(w)
	if err := httputil.WriteJSON(w, status, body); err != nil {
		h.config.Logger.Warn("failed to encode response", clubsync.ErrorField(err))
	}
}

// handleError handles errors with appropriate HTTP status codes.
// Upstream messages are passed through verbatim.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.config.Logger.Error("admin request failed",
			clubsync.Field{Key: "method", Value: r.Method},
			clubsync.Field{Key: "path", Value: r.URL.Path},
			clubsync.ErrorField(err),
		)
	}

	if h.config.OnError != nil {
		h.config.OnError(w, r, status, err)
		return
	}

	h.writeJSON(w, status, ErrorResponse{Success: false, Error: err.Error()})
}
