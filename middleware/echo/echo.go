// Package echo provides Echo middleware that scopes requests to a tenant
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// ScopeKey is the echo context key holding the tenant scope
const ScopeKey = "clubsync:tenant"

// TenantExtractor extracts the caller's tenant id from an Echo context
// Return empty string if the caller has no tenant scope
type TenantExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// GetTenant extracts the tenant scope from the request (required)
	GetTenant TenantExtractor

	// Required rejects requests without a tenant scope
	Required bool

	// OnUnauthorized is called when a required scope is missing
	// If nil, returns 401 JSON
	OnUnauthorized func(c echo.Context) error
}

// Middleware stores the tenant scope on the Echo context and on the request context
func Middleware(cfg Config) echo.MiddlewareFunc {
	if cfg.GetTenant == nil {
		panic("clubsync/echo: Config.GetTenant is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tenantID := cfg.GetTenant(c)
			if tenantID == "" {
				if !cfg.Required {
					return next(c)
				}
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return defaultUnauthorized(c)
			}

			c.Set(ScopeKey, tenantID)
			req := c.Request()
			c.SetRequest(req.WithContext(clubsync.WithTenantScope(req.Context(), tenantID)))
			return next(c)
		}
	}
}

func defaultUnauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]interface{}{"success": false, "error": "unauthorized"})
}

// FromHeader returns a TenantExtractor that reads a header
func FromHeader(headerName string) TenantExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromContext returns a TenantExtractor that reads a string set by an earlier middleware
func FromContext(key string) TenantExtractor {
	return func(c echo.Context) string {
		if tenantID, ok := c.Get(key).(string); ok {
			return tenantID
		}
		return ""
	}
}

// FromParam returns a TenantExtractor that reads a path parameter
func FromParam(paramName string) TenantExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}
