// Package http provides net/http middleware that scopes requests to a tenant
package http

import (
	"net/http"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// TenantExtractor extracts the caller's tenant id from an HTTP request
// Return empty string if the caller has no tenant scope
type TenantExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// GetTenant extracts the tenant scope from the request (required)
	GetTenant TenantExtractor

	// Required rejects requests without a tenant scope.
	// When false, such requests pass through unscoped.
	Required bool

	// OnUnauthorized is called when a required scope is missing
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)
}

// Middleware creates an HTTP middleware that stores the caller's tenant scope
// in the request context
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.GetTenant == nil {
		panic("clubsync/http: Config.GetTenant is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := config.GetTenant(r)
			if tenantID == "" {
				if !config.Required {
					next.ServeHTTP(w, r)
					return
				}
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(clubsync.WithTenantScope(r.Context(), tenantID)))
		})
	}
}

// HandlerFunc creates the middleware for a http.HandlerFunc
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return middleware(next).ServeHTTP
	}
}

// FromHeader returns a TenantExtractor that reads a header
func FromHeader(headerName string) TenantExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// ContextKey is a type for context keys
type ContextKey string

// FromContext returns a TenantExtractor that reads a string set on the request
// context by an upstream authentication layer
func FromContext(key ContextKey) TenantExtractor {
	return func(r *http.Request) string {
		if tenantID, ok := r.Context().Value(key).(string); ok {
			return tenantID
		}
		return ""
	}
}
