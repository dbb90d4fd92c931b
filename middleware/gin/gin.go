// Package gin provides Gin middleware that scopes requests to a tenant
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// ScopeKey is the gin context key holding the tenant scope
const ScopeKey = "clubsync:tenant"

// TenantExtractor extracts the caller's tenant id from a Gin context
// Return empty string if the caller has no tenant scope
type TenantExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// GetTenant extracts the tenant scope from the request (required)
	GetTenant TenantExtractor

	// Required rejects requests without a tenant scope
	Required bool

	// OnUnauthorized is called when a required scope is missing
	// If nil, aborts with 401 JSON
	OnUnauthorized func(c *gongin.Context)
}

// Middleware stores the tenant scope on the Gin context and on the request
// context, so wrapped net/http handlers see it too
func Middleware(cfg Config) gongin.HandlerFunc {
	if cfg.GetTenant == nil {
		panic("clubsync/gin: Config.GetTenant is required")
	}

	return func(c *gongin.Context) {
		tenantID := cfg.GetTenant(c)
		if tenantID == "" {
			if !cfg.Required {
				c.Next()
				return
			}
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gongin.H{"success": false, "error": "unauthorized"})
			}
			return
		}

		c.Set(ScopeKey, tenantID)
		c.Request = c.Request.WithContext(clubsync.WithTenantScope(c.Request.Context(), tenantID))
		c.Next()
	}
}

// FromHeader returns a TenantExtractor that reads a header
func FromHeader(headerName string) TenantExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromContext returns a TenantExtractor that reads a string set by an earlier handler
func FromContext(key string) TenantExtractor {
	return func(c *gongin.Context) string {
		return c.GetString(key)
	}
}

// FromParam returns a TenantExtractor that reads a route parameter
func FromParam(paramName string) TenantExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}
