package gin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	gongin "github.com/gin-gonic/gin"

	"github.com/stretchr/testify/assert"

	"github.com/mihaimyh/clubsync/pkg/clubsync"
)

func init() {
	gongin.SetMode(gongin.TestMode)
}

func newTestRouter(cfg Config) *gongin.Engine {
	r := gongin.New()
	r.Use(Middleware(cfg))
	r.GET("/scope", func(c *gongin.Context) {
		fromRequest, _ := clubsync.TenantScope(c.Request.Context())
		c.JSON(http.StatusOK, gongin.H{"gin": c.GetString(ScopeKey), "request": fromRequest})
	})
	// net/http handlers mounted through gin.WrapH see the same scope
	r.GET("/wrapped", gongin.WrapH(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, _ := clubsync.TenantScope(r.Context())
		_, _ = w.Write([]byte(tenantID))
	})))
	return r
}

func TestMiddleware_SetsScope(t *testing.T) {
	r := newTestRouter(Config{GetTenant: FromHeader("X-Tenant-ID")})

	req := httptest.NewRequest(http.MethodGet, "/scope", http.NoBody)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	assert.JSONEq(t, `{"gin":"tenant-1","request":"tenant-1"}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/wrapped", http.NoBody)
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "tenant-1" {
		t.Errorf("Expected wrapped handler to see scope, got %q", w.Body.String())
	}
}

func TestMiddleware_Required(t *testing.T) {
	r := newTestRouter(Config{GetTenant: FromHeader("X-Tenant-ID"), Required: true})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scope", http.NoBody))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestMiddleware_Optional(t *testing.T) {
	r := newTestRouter(Config{GetTenant: FromHeader("X-Tenant-ID")})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scope", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"gin":"","request":""}`, w.Body.String())
}
