// Package fiber provides Fiber middleware that scopes requests to a tenant
package fiber

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

// ScopeKey is the fiber Locals key holding the tenant scope
const ScopeKey = "clubsync:tenant"

// TenantExtractor extracts the caller's tenant id from a Fiber context
// Return empty string if the caller has no tenant scope
type TenantExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration
type Config struct {
	// GetTenant extracts the tenant scope from the request (required)
	GetTenant TenantExtractor

	// Required rejects requests without a tenant scope
	Required bool

	// OnUnauthorized is called when a required scope is missing
	// If nil, returns 401 JSON
	OnUnauthorized func(c *fiber.Ctx) error
}

// Middleware stores the tenant scope in Locals and in the user context
func Middleware(cfg Config) fiber.Handler {
	if cfg.GetTenant == nil {
		panic("clubsync/fiber: Config.GetTenant is required")
	}

	return func(c *fiber.Ctx) error {
		tenantID := cfg.GetTenant(c)
		if tenantID == "" {
			if !cfg.Required {
				return c.Next()
			}
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "unauthorized"})
		}

		c.Locals(ScopeKey, tenantID)
		c.SetUserContext(clubsync.WithTenantScope(c.UserContext(), tenantID))
		return c.Next()
	}
}

// TenantFromCtx returns the scope stored by Middleware
func TenantFromCtx(c *fiber.Ctx) string {
	if tenantID, ok := c.Locals(ScopeKey).(string); ok {
		return tenantID
	}
	return ""
}

// FromHeader returns a TenantExtractor that reads a header
func FromHeader(headerName string) TenantExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromLocals returns a TenantExtractor that reads a string set by an earlier handler
func FromLocals(key string) TenantExtractor {
	return func(c *fiber.Ctx) string {
		if tenantID, ok := c.Locals(key).(string); ok {
			return tenantID
		}
		return ""
	}
}

// FromParam returns a TenantExtractor that reads a route parameter
func FromParam(paramName string) TenantExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}
