package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes mounts the admin endpoints on a chi router.
// Tenant scope middleware, if any, is applied by the caller.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)
	r.Get("/sync-check", h.SyncCheck)
	r.Post("/sync-subscription", h.SyncSubscription)
	r.Get("/billing-metrics", h.GetBillingMetrics)

	return r
}
