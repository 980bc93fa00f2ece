package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/market-pulse/backend/internal/apierr"
	"github.com/onnwee/market-pulse/backend/internal/cache"
	"github.com/onnwee/market-pulse/backend/internal/fetchcache"
	"github.com/onnwee/market-pulse/backend/internal/fredapi"
)

// StaleHeader is set when a response came from an expired cache entry
// because the live fetch failed. The frontend shows a "data may be outdated"
// banner off it.
const StaleHeader = "X-Cache-Stale"

// TimestampHeader carries the write time of the cache entry backing the
// response, in RFC 3339.
const TimestampHeader = "X-Cache-Timestamp"

// IndicatorFetcher is the slice of the FRED client the handler needs.
type IndicatorFetcher interface {
	Observations(ctx context.Context, req fredapi.ObservationsRequest) ([]fredapi.Indicator, error)
}

// IndicatorsHandler serves economic indicator data through the caching
// layer.
type IndicatorsHandler struct {
	orch    *fetchcache.Orchestrator
	fetcher IndicatorFetcher
}

// NewIndicatorsHandler wires the orchestrator and the FRED client together.
func NewIndicatorsHandler(orch *fetchcache.Orchestrator, fetcher IndicatorFetcher) *IndicatorsHandler {
	return &IndicatorsHandler{orch: orch, fetcher: fetcher}
}

// GetIndicators handles GET /api/indicators.
//
// Query parameters: category OR series (one required), span (months,
// default 12), refresh (force bypass of the cache freshness check).
func (h *IndicatorsHandler) GetIndicators(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")
	series := q.Get("series")
	if category == "" && series == "" {
		apierr.WriteErrorWithContext(w, r, apierr.IndicatorInvalidParams("category or series is required"))
		return
	}

	span := 12
	if s := q.Get("span"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 120 {
			apierr.WriteErrorWithContext(w, r, apierr.IndicatorInvalidParams("span must be 1-120 months"))
			return
		}
		span = v
	}
	force := q.Get("refresh") == "true" || q.Get("refresh") == "1"

	req := fredapi.ObservationsRequest{
		Category:       category,
		SeriesID:       series,
		TimeSpanMonths: span,
		ForceRefresh:   force,
	}
	key := req.CacheKey()
	ttl := cache.TTLFor(category, series)

	indicators, res, err := fetchcache.FetchJSON(r.Context(), h.orch, key, ttl, force,
		func(ctx context.Context) ([]fredapi.Indicator, error) {
			return h.fetcher.Observations(ctx, req)
		})
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.FromUpstream(err, apierr.ErrIndicatorUnavailable))
		return
	}

	if res.Stale {
		w.Header().Set(StaleHeader, "true")
	}
	if !res.FetchedAt.IsZero() {
		w.Header().Set(TimestampHeader, res.FetchedAt.Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, indicators)
}
