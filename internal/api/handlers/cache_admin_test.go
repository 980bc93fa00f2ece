package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/market-pulse/backend/internal/cache"
	"github.com/onnwee/market-pulse/backend/internal/fetchcache"
)

func seededCacheAdmin(t *testing.T) *CacheAdminHandler {
	t.Helper()
	store := cache.NewMemStore(0)
	for _, key := range []string{"econ_gdp_12", "econ_cpi_6", "ai_analysis_AAPL"} {
		if err := store.Write(key, cache.NewEntry([]byte(`{"v":1}`), time.Now())); err != nil {
			t.Fatalf("seed write failed: %v", err)
		}
	}
	return NewCacheAdminHandler(fetchcache.New(store), "econ_")
}

func TestGetCacheStats_DefaultPrefix(t *testing.T) {
	h := seededCacheAdmin(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/cache/stats", nil)
	rr := httptest.NewRecorder()
	h.GetCacheStats(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var stats cache.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if stats.TotalItems != 2 {
		t.Errorf("Expected 2 econ_ items, got %d", stats.TotalItems)
	}
	if stats.AverageBytes == 0 || stats.TotalBytes == 0 {
		t.Errorf("Expected byte accounting, got %+v", stats)
	}
}

func TestGetCacheStats_ExplicitPrefix(t *testing.T) {
	h := seededCacheAdmin(t)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/cache/stats?prefix=ai_", nil)
	rr := httptest.NewRecorder()
	h.GetCacheStats(rr, req)

	var stats cache.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if stats.TotalItems != 1 {
		t.Errorf("Expected 1 ai_ item, got %d", stats.TotalItems)
	}
}

func TestClearCache(t *testing.T) {
	h := seededCacheAdmin(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/cache/clear", strings.NewReader(`{"prefix":"econ_"}`))
	rr := httptest.NewRecorder()
	h.ClearCache(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var resp struct {
		Status  string `json:"status"`
		Prefix  string `json:"prefix"`
		Removed int    `json:"removed"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.Removed != 2 || resp.Prefix != "econ_" || resp.Status != "ok" {
		t.Errorf("Unexpected response: %+v", resp)
	}
}

func TestClearCache_InvalidBody(t *testing.T) {
	h := seededCacheAdmin(t)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/cache/clear", strings.NewReader("{broken"))
	rr := httptest.NewRecorder()
	h.ClearCache(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}
