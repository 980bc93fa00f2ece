package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/onnwee/market-pulse/backend/internal/apierr"
	"github.com/onnwee/market-pulse/backend/internal/fetchcache"
	"github.com/onnwee/market-pulse/backend/internal/logger"
)

// CacheAdminHandler handles cache administration endpoints.
type CacheAdminHandler struct {
	orch          *fetchcache.Orchestrator
	defaultPrefix string
}

// NewCacheAdminHandler creates a new cache admin handler.
func NewCacheAdminHandler(orch *fetchcache.Orchestrator, defaultPrefix string) *CacheAdminHandler {
	return &CacheAdminHandler{orch: orch, defaultPrefix: defaultPrefix}
}

// GetCacheStats returns statistics for the entries under a prefix.
// GET /api/admin/cache/stats?prefix=econ_
func (h *CacheAdminHandler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	if prefix == "" {
		prefix = h.defaultPrefix
	}
	writeJSON(w, http.StatusOK, h.orch.CacheStats(prefix))
}

type clearCacheBody struct {
	Prefix string `json:"prefix"`
}

// ClearCache removes all entries under a prefix and reports the count.
// POST /api/admin/cache/clear
func (h *CacheAdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	var body clearCacheBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}
	prefix := body.Prefix
	if prefix == "" {
		prefix = h.defaultPrefix
	}

	removed := h.orch.ClearCache(prefix)
	logger.InfoContext(r.Context(), "cache cleared", "prefix", prefix, "removed", removed)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"prefix":  prefix,
		"removed": removed,
	})
}
