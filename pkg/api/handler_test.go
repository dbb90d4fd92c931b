package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpmw "github.com/mihaimyh/clubsync/middleware/http"
	"github.com/mihaimyh/clubsync/pkg/clubsync"
	"github.com/mihaimyh/clubsync/storage/memory"
)

const (
	testTenantID   = "tenant-1"
	testAccountID  = "acct_1"
	testEmail      = "ana@example.com"
	testConsumerID = "consumer-1"
)

// stubBilling serves fixed customers and subscriptions
type stubBilling struct {
	customers     []clubsync.RemoteCustomer
	subscriptions map[string][]clubsync.RemoteSubscription
	err           error
}

func (s *stubBilling) ListCustomersByEmail(_ context.Context, _, email string) ([]clubsync.RemoteCustomer, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []clubsync.RemoteCustomer
	for _, c := range s.customers {
		if strings.EqualFold(c.Email, email) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubBilling) ListSubscriptions(_ context.Context, _, customerID string) ([]clubsync.RemoteSubscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.subscriptions[customerID], nil
}

func (s *stubBilling) RetrieveSubscription(_ context.Context, _, subscriptionID string) (*clubsync.RemoteSubscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, subs := range s.subscriptions {
		for i := range subs {
			if subs[i].ID == subscriptionID {
				sub := subs[i]
				return &sub, nil
			}
		}
	}
	return nil, errors.New("No such subscription: '" + subscriptionID + "'")
}

// cacheMetrics counts billing metrics cache lookups
type cacheMetrics struct {
	clubsync.NoopMetrics
	hits   int
	misses int
}

func (m *cacheMetrics) RecordCacheHit(string)  { m.hits++ }
func (m *cacheMetrics) RecordCacheMiss(string) { m.misses++ }

type testEnv struct {
	store   *memory.Storage
	billing *stubBilling
	cache   *clubsync.LRUCache
	metrics *cacheMetrics
	handler *Handler
}

// newTestEnv seeds the scenario: local sub_A active, remote sub_A past_due and sub_B active
func newTestEnv(t *testing.T, accountID string) *testEnv {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	require.NoError(t, store.SaveTenant(ctx, &clubsync.Tenant{
		ID: testTenantID, Slug: "cellar-door", Name: "Cellar Door", BillingAccountID: accountID,
	}))
	require.NoError(t, store.SaveConsumer(ctx, &clubsync.Consumer{ID: testConsumerID, Email: testEmail}))
	require.NoError(t, store.SavePlan(ctx, &clubsync.Plan{
		ID: "plan-1", TenantID: testTenantID, Name: "Monthly Reds",
		Interval: clubsync.IntervalMonth, PriceCents: 4500, Currency: "usd",
	}))
	require.NoError(t, store.SaveSubscription(ctx, &clubsync.PlanSubscription{
		ID: "ps-a", TenantID: testTenantID, ConsumerID: testConsumerID, PlanID: "plan-1",
		ExternalSubscriptionID: "sub_A", Status: clubsync.StatusActive,
	}))

	billing := &stubBilling{
		customers: []clubsync.RemoteCustomer{{ID: "cus_1", Email: testEmail}},
		subscriptions: map[string][]clubsync.RemoteSubscription{
			"cus_1": {
				{ID: "sub_A", CustomerID: "cus_1", Status: clubsync.StatusPastDue},
				{ID: "sub_B", CustomerID: "cus_1", Status: clubsync.StatusActive},
			},
		},
	}

	reconciler, err := clubsync.NewReconciler(store, billing, clubsync.Config{})
	require.NoError(t, err)

	cache := clubsync.NewLRUCache(10)
	metrics := &cacheMetrics{}
	handler, err := NewHandler(Config{
		Reconciler: reconciler,
		Cache:      cache,
		MetricsTTL: time.Minute,
		Metrics:    metrics,
	})
	require.NoError(t, err)

	return &testEnv{store: store, billing: billing, cache: cache, metrics: metrics, handler: handler}
}

func (e *testEnv) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	scoped := httpmw.Middleware(httpmw.Config{GetTenant: httpmw.FromHeader("X-Tenant-ID")})
	w := httptest.NewRecorder()
	scoped(e.handler.Routes()).ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	return resp
}

func TestNewHandler_RequiresReconciler(t *testing.T) {
	_, err := NewHandler(Config{})
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.MetricsTTL = -time.Second
	cfg.Reconciler = &clubsync.Reconciler{}
	_, err = NewHandler(cfg)
	assert.Error(t, err)
}

func TestSyncCheck_ReportsMissing(t *testing.T) {
	env := newTestEnv(t, testAccountID)

	w := env.do(t, http.MethodGet, "/sync-check?tenantId="+testTenantID+"&email="+testEmail, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var resp SyncCheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 1, resp.Database.Count)
	assert.Equal(t, "sub_A", resp.Database.Subscriptions[0].StripeSubscriptionID)
	assert.Equal(t, 1, resp.Stripe.CustomerCount)
	assert.False(t, resp.Stripe.DuplicateCustomers)
	assert.Equal(t, 2, resp.Stripe.Count)
	assert.Equal(t, []string{"sub_B"}, resp.Missing)
	assert.Equal(t, 1, resp.MissingCount)

	inDB := map[string]bool{}
	for _, sub := range resp.Stripe.Subscriptions {
		inDB[sub.ID] = sub.InDatabase
	}
	assert.Equal(t, map[string]bool{"sub_A": true, "sub_B": false}, inDB)

	// Read-only: the local status is untouched
	stored, err := env.store.FindSubscriptionByID(context.Background(), "ps-a")
	require.NoError(t, err)
	assert.Equal(t, clubsync.StatusActive, stored.Status)
}

func TestSyncCheck_DuplicateCustomersFlagged(t *testing.T) {
	env := newTestEnv(t, testAccountID)
	env.billing.customers = append(env.billing.customers, clubsync.RemoteCustomer{ID: "cus_2", Email: testEmail})
	env.billing.subscriptions["cus_2"] = []clubsync.RemoteSubscription{
		{ID: "sub_B", CustomerID: "cus_2", Status: clubsync.StatusActive},
	}

	w := env.do(t, http.MethodGet, "/sync-check?tenantId="+testTenantID+"&email="+testEmail, "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp SyncCheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Stripe.CustomerCount)
	assert.True(t, resp.Stripe.DuplicateCustomers)
	assert.Equal(t, []string{"sub_B"}, resp.Missing)
}

func TestSyncCheck_Errors(t *testing.T) {
	tests := []struct {
		name       string
		accountID  string
		target     string
		headers    map[string]string
		upstream   error
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing parameters",
			accountID:  testAccountID,
			target:     "/sync-check?tenantId=" + testTenantID,
			wantStatus: http.StatusBadRequest,
			wantError:  "tenantId and email is required",
		},
		{
			name:       "unknown tenant",
			accountID:  testAccountID,
			target:     "/sync-check?tenantId=nope&email=" + testEmail,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "unknown consumer",
			accountID:  testAccountID,
			target:     "/sync-check?tenantId=" + testTenantID + "&email=nobody@example.com",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "tenant without billing account",
			accountID:  "",
			target:     "/sync-check?tenantId=" + testTenantID + "&email=" + testEmail,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "upstream failure passes message through",
			accountID:  testAccountID,
			target:     "/sync-check?tenantId=" + testTenantID + "&email=" + testEmail,
			upstream:   errors.New("Invalid API Key provided: sk_test_***"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Invalid API Key provided: sk_test_***",
		},
		{
			name:       "tenant outside scope",
			accountID:  testAccountID,
			target:     "/sync-check?tenantId=" + testTenantID + "&email=" + testEmail,
			headers:    map[string]string{"X-Tenant-ID": "tenant-2"},
			wantStatus: http.StatusForbidden,
			wantError:  ErrTenantOutOfScope.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.accountID)
			env.billing.err = tt.upstream

			w := env.do(t, http.MethodGet, tt.target, "", tt.headers)
			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeError(t, w)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}
		})
	}
}

func TestSyncCheck_MatchingScopeAllowed(t *testing.T) {
	env := newTestEnv(t, testAccountID)
	w := env.do(t, http.MethodGet, "/sync-check?tenantId="+testTenantID+"&email="+testEmail, "",
		map[string]string{"X-Tenant-ID": testTenantID})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSyncSubscription_OverwritesStatus(t *testing.T) {
	env := newTestEnv(t, testAccountID)

	w := env.do(t, http.MethodPost, "/sync-subscription", `{"subscriptionId":"ps-a"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SyncSubscriptionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, SyncSubscriptionResponse{
		Success:      true,
		Before:       "active",
		After:        "past_due",
		StripeStatus: "past_due",
		Changed:      true,
	}, resp)

	// A second sync with no remote change is a no-op
	w = env.do(t, http.MethodPost, "/sync-subscription", `{"subscriptionId":"ps-a"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "past_due", resp.Before)
	assert.Equal(t, "past_due", resp.After)
	assert.False(t, resp.Changed)
}

func TestSyncSubscription_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		upstream   error
		headers    map[string]string
		wantStatus int
		wantError  string
	}{
		{name: "empty body", body: "", wantStatus: http.StatusBadRequest},
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest, wantError: "invalid JSON body"},
		{name: "missing id", body: `{"subscriptionId":"  "}`, wantStatus: http.StatusBadRequest, wantError: "subscriptionId is required"},
		{name: "unknown id", body: `{"subscriptionId":"ps-x"}`, wantStatus: http.StatusNotFound, wantError: `subscription "ps-x" not found`},
		{
			name:       "upstream failure",
			body:       `{"subscriptionId":"ps-a"}`,
			upstream:   errors.New("No such subscription: 'sub_A'"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "No such subscription: 'sub_A'",
		},
		{
			name:       "subscription outside scope",
			body:       `{"subscriptionId":"ps-a"}`,
			headers:    map[string]string{"X-Tenant-ID": "tenant-2"},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, testAccountID)
			env.billing.err = tt.upstream

			w := env.do(t, http.MethodPost, "/sync-subscription", tt.body, tt.headers)
			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeError(t, w)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, resp.Error)
			}

			stored, err := env.store.FindSubscriptionByID(context.Background(), "ps-a")
			require.NoError(t, err)
			assert.Equal(t, clubsync.StatusActive, stored.Status)
		})
	}
}

func TestSyncSubscription_BodyTooLarge(t *testing.T) {
	env := newTestEnv(t, testAccountID)
	env.handler.config.MaxBodyBytes = 16

	w := env.do(t, http.MethodPost, "/sync-subscription", `{"subscriptionId":"ps-a-very-long-id"}`, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestGetBillingMetrics_CachedAndInvalidated(t *testing.T) {
	env := newTestEnv(t, testAccountID)
	target := "/billing-metrics?tenantId=" + testTenantID

	w := env.do(t, http.MethodGet, target, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp BillingMetricsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Cached)
	assert.Equal(t, 1, resp.ActiveSubscriptions)
	assert.Equal(t, int64(4500), resp.MRRCents)
	assert.Equal(t, map[string]int64{"usd": 4500}, resp.MRRByCurrency)

	w = env.do(t, http.MethodGet, target, "", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
	assert.Equal(t, 1, env.metrics.hits)
	assert.Equal(t, 1, env.metrics.misses)

	// Reconciling drops the cached entry so the new status is visible
	w = env.do(t, http.MethodPost, "/sync-subscription", `{"subscriptionId":"ps-a"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, target, "", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Cached)
	assert.Equal(t, 0, resp.ActiveSubscriptions)
	assert.Equal(t, 1, resp.ByStatus["past_due"])
	assert.Equal(t, int64(0), resp.MRRCents)
}

func TestGetBillingMetrics_Errors(t *testing.T) {
	env := newTestEnv(t, testAccountID)

	w := env.do(t, http.MethodGet, "/billing-metrics", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/billing-metrics?tenantId=nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/billing-metrics?tenantId="+testTenantID, "", map[string]string{"X-Tenant-ID": "tenant-2"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandler_CustomOnError(t *testing.T) {
	env := newTestEnv(t, testAccountID)
	var gotStatus int
	env.handler.config.OnError = func(w http.ResponseWriter, _ *http.Request, status int, err error) {
		gotStatus = status
		http.Error(w, "custom: "+err.Error(), http.StatusTeapot)
	}

	w := env.do(t, http.MethodGet, "/sync-check", "", nil)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, http.StatusBadRequest, gotStatus)
}

func TestRoutes(t *testing.T) {
	env := newTestEnv(t, testAccountID)

	w := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/sync-subscription", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = env.do(t, http.MethodGet, "/unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(&clubsync.NotFoundError{Entity: "tenant"}))
	assert.Equal(t, http.StatusBadRequest, statusFor(&clubsync.ConfigurationError{TenantID: "t"}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(&clubsync.UpstreamError{Op: "list"}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
