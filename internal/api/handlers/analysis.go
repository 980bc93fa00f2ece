package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/onnwee/market-pulse/backend/internal/aianalysis"
	"github.com/onnwee/market-pulse/backend/internal/apierr"
	"github.com/onnwee/market-pulse/backend/internal/cache"
	"github.com/onnwee/market-pulse/backend/internal/circuitbreaker"
	"github.com/onnwee/market-pulse/backend/internal/fetchcache"
)

// Analyzer is the slice of the AI client the handler needs.
type Analyzer interface {
	Analyze(ctx context.Context, req aianalysis.AnalyzeRequest) (*aianalysis.AnalyzeResponse, error)
}

// AnalysisHandler serves AI stock commentary through the caching layer.
// Commentary is expensive to generate, so cache hits are the common case and
// an open circuit on the AI proxy usually still resolves from cache.
type AnalysisHandler struct {
	orch     *fetchcache.Orchestrator
	analyzer Analyzer
}

// NewAnalysisHandler wires the orchestrator and AI client together.
func NewAnalysisHandler(orch *fetchcache.Orchestrator, analyzer Analyzer) *AnalysisHandler {
	return &AnalysisHandler{orch: orch, analyzer: analyzer}
}

type analyzeBody struct {
	Stocks       []aianalysis.StockSummary `json:"stocks"`
	ForceRefresh bool                      `json:"forceRefresh,omitempty"`
}

// PostAnalysis handles POST /api/analysis.
func (h *AnalysisHandler) PostAnalysis(w http.ResponseWriter, r *http.Request) {
	var body analyzeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}
	if len(body.Stocks) == 0 {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("stocks"))
		return
	}

	req := aianalysis.AnalyzeRequest{Stocks: body.Stocks}
	key := req.CacheKey()
	ttl := cache.TTLFor("ai_analysis", "")

	analysis, res, err := fetchcache.FetchJSON(r.Context(), h.orch, key, ttl, body.ForceRefresh,
		func(ctx context.Context) (*aianalysis.AnalyzeResponse, error) {
			return h.analyzer.Analyze(ctx, req)
		})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			apierr.WriteErrorWithContext(w, r,
				apierr.New(apierr.ErrAnalysisUnavailable, "Analysis temporarily unavailable, try again shortly", http.StatusServiceUnavailable))
			return
		}
		apierr.WriteErrorWithContext(w, r, apierr.FromUpstream(err, apierr.ErrAnalysisUnavailable))
		return
	}

	if res.Stale {
		w.Header().Set(StaleHeader, "true")
		analysis.FromCache = true
	}
	if !res.FetchedAt.IsZero() {
		w.Header().Set(TimestampHeader, res.FetchedAt.Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, analysis)
}
