package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/market-pulse/backend/internal/aianalysis"
	"github.com/onnwee/market-pulse/backend/internal/cache"
	"github.com/onnwee/market-pulse/backend/internal/config"
	"github.com/onnwee/market-pulse/backend/internal/fetchcache"
	"github.com/onnwee/market-pulse/backend/internal/fredapi"
	"github.com/onnwee/market-pulse/backend/internal/quotes"
	"github.com/onnwee/market-pulse/backend/internal/realtime"
)

type stubIndicators struct{}

func (stubIndicators) Observations(ctx context.Context, req fredapi.ObservationsRequest) ([]fredapi.Indicator, error) {
	return []fredapi.Indicator{{ID: "GDP"}}, nil
}

type stubQuotes struct{}

func (stubQuotes) Snapshot(ctx context.Context, symbols []string) (map[string]quotes.Quote, error) {
	snap := make(map[string]quotes.Quote, len(symbols))
	for _, s := range symbols {
		snap[s] = quotes.Quote{Symbol: s, Price: 100}
	}
	return snap, nil
}

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(ctx context.Context, req aianalysis.AnalyzeRequest) (*aianalysis.AnalyzeResponse, error) {
	return &aianalysis.AnalyzeResponse{MarketInsight: "flat"}, nil
}

// newTestRouter builds a router with in-memory dependencies and no database,
// so every route short of the watchlists can be exercised.
func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	t.Setenv("ENABLE_RATE_LIMIT", "false")
	config.Reset()
	t.Cleanup(config.Reset)

	coord, err := realtime.New(&config.Config{
		RealtimeInterval:   time.Hour,
		RealtimeMaxRetries: 1,
		RealtimeRetryBase:  time.Millisecond,
		QuoteCacheMB:       1,
		QuoteCacheEntries:  64,
	}, func(ctx context.Context) (map[string]quotes.Quote, error) {
		return map[string]quotes.Quote{"SPY": {Symbol: "SPY", Price: 100}}, nil
	})
	if err != nil {
		t.Fatalf("realtime.New failed: %v", err)
	}
	t.Cleanup(coord.Stop)

	return NewRouter(Deps{
		Orchestrator: fetchcache.New(cache.NewMemStore(1 << 20)),
		Indicators:   stubIndicators{},
		Quotes:       stubQuotes{},
		Analyzer:     stubAnalyzer{},
		Coordinator:  coord,
	})
}

// TestRoutesRegistered verifies the public API surface is wired up. A 404
// means the route doesn't exist; any other status (even 500) means the route
// is registered and we reached the handler. Handler behavior is tested in the
// handlers package.
func TestRoutesRegistered(t *testing.T) {
	router := newTestRouter(t)

	routes := []struct {
		method string
		path   string
	}{
		{"GET", "/healthz"},
		{"GET", "/metrics"},
		{"GET", "/api/indicators?category=economic"},
		{"GET", "/api/quotes"},
		{"GET", "/api/quotes/SPY"},
		{"POST", "/api/analysis"},
		{"GET", "/api/realtime/status"},
		{"POST", "/api/realtime/toggle"},
		{"POST", "/api/realtime/refresh"},
		{"GET", "/api/realtime/ws"},
		{"GET", "/api/admin/cache/stats"},
		{"POST", "/api/admin/cache/clear"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code == http.StatusNotFound {
				t.Errorf("%s %s not registered", rt.method, rt.path)
			}
		})
	}
}

// TestIndicatorsEndpointServes exercises the indicators route through the
// full router: both query styles must reach the handler and return data, not
// just any non-404 status.
func TestIndicatorsEndpointServes(t *testing.T) {
	router := newTestRouter(t)

	urls := []string{
		"/api/indicators?category=inflation",
		"/api/indicators?series=DGS10",
	}
	for _, url := range urls {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d (body %q)", url, rr.Code, rr.Body.String())
		}
	}

	// No selector at all is the handler's 400, not a routing miss
	req := httptest.NewRequest(http.MethodGet, "/api/indicators", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("GET /api/indicators without params: expected 400, got %d", rr.Code)
	}
}

// TestWatchlistRoutesSkippedWithoutDatabase verifies the watchlist surface
// only exists when a database is wired up.
func TestWatchlistRoutesSkippedWithoutDatabase(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/watchlists", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for watchlists without a database, got %d", rr.Code)
	}
}

// TestAdminAuthMiddleware tests the admin authentication gate.
func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		adminToken     string
		authHeader     string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "valid token",
			adminToken:     "test-admin-token-123",
			authHeader:     "Bearer test-admin-token-123",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid token",
			adminToken:     "test-admin-token-123",
			authHeader:     "Bearer wrong-token",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "unauthorized\n",
		},
		{
			name:           "missing token",
			adminToken:     "test-admin-token-123",
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "unauthorized\n",
		},
		{
			name:           "malformed bearer token",
			adminToken:     "test-admin-token-123",
			authHeader:     "Bearertest-admin-token-123",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "unauthorized\n",
		},
		{
			name:           "wrong auth scheme",
			adminToken:     "test-admin-token-123",
			authHeader:     "Basic dGVzdDp0ZXN0",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "unauthorized\n",
		},
		{
			name:           "admin token not configured",
			adminToken:     "",
			authHeader:     "Bearer test-admin-token-123",
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   "admin token not configured\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ADMIN_API_TOKEN", tt.adminToken)
			t.Setenv("ENABLE_RATE_LIMIT", "false")
			config.Reset()
			t.Cleanup(config.Reset)

			gate := adminOnly(config.Load())
			handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("OK"))
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/admin/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if tt.expectedBody != "" && rr.Body.String() != tt.expectedBody {
				t.Errorf("expected body %q, got %q", tt.expectedBody, rr.Body.String())
			}
		})
	}
}

// TestAdminEndpointsRequireAuth verifies every admin route rejects
// unauthenticated requests.
func TestAdminEndpointsRequireAuth(t *testing.T) {
	t.Setenv("ADMIN_API_TOKEN", "test-token")
	router := newTestRouter(t)

	adminEndpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/admin/cache/stats"},
		{"POST", "/api/admin/cache/clear"},
	}

	for _, endpoint := range adminEndpoints {
		t.Run(endpoint.method+" "+endpoint.path, func(t *testing.T) {
			req := httptest.NewRequest(endpoint.method, endpoint.path, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Errorf("expected 401 for %s %s without auth, got %d",
					endpoint.method, endpoint.path, rr.Code)
			}
		})
	}
}

// TestAdminEndpointsWithAuth verifies a valid Bearer token reaches the
// admin handlers.
func TestAdminEndpointsWithAuth(t *testing.T) {
	const adminToken = "test-admin-token-secure-123"
	t.Setenv("ADMIN_API_TOKEN", adminToken)
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/cache/stats", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200 from cache stats with valid auth, got %d", rr.Code)
	}
}

// TestAPICompressionApplied verifies the compression middleware wraps the
// /api subtree.
func TestAPICompressionApplied(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/realtime/status", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status request failed: %d", rr.Code)
	}
	if vary := rr.Header().Get("Vary"); !strings.Contains(vary, "Accept-Encoding") {
		t.Errorf("expected Vary to contain Accept-Encoding, got %q", vary)
	}
}
