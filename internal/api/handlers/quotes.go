package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/onnwee/market-pulse/backend/internal/apierr"
	"github.com/onnwee/market-pulse/backend/internal/quotes"
	"github.com/onnwee/market-pulse/backend/internal/realtime"
	"github.com/onnwee/market-pulse/backend/internal/utils"
)

// QuoteSource is the slice of the quotes client used for symbols outside the
// watched set.
type QuoteSource interface {
	Snapshot(ctx context.Context, symbols []string) (map[string]quotes.Quote, error)
}

// QuotesHandler serves quote snapshots: watched symbols come from the
// realtime coordinator's hot cache, anything else goes upstream.
type QuotesHandler struct {
	coord  *realtime.Coordinator
	source QuoteSource
}

// NewQuotesHandler creates a quotes handler.
func NewQuotesHandler(coord *realtime.Coordinator, source QuoteSource) *QuotesHandler {
	return &QuotesHandler{coord: coord, source: source}
}

// GetQuotes handles GET /api/quotes?symbols=AAPL,MSFT.
func (h *QuotesHandler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if strings.TrimSpace(raw) == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("symbols"))
		return
	}

	symbols := utils.UniqueStrings(strings.Split(raw, ","))
	result := make(map[string]quotes.Quote, len(symbols))
	var missing []string
	for _, s := range symbols {
		sym := utils.NormalizeSymbol(s)
		if sym == "" {
			continue
		}
		if q, ok := h.coord.CachedQuote(sym); ok {
			result[sym] = q
		} else {
			missing = append(missing, sym)
		}
	}

	if len(missing) > 0 {
		fetched, err := h.source.Snapshot(r.Context(), missing)
		if err != nil {
			// Partial data beats none: only fail when nothing was cached.
			if len(result) == 0 {
				apierr.WriteErrorWithContext(w, r, apierr.FromUpstream(err, apierr.ErrQuoteUnavailable))
				return
			}
			w.Header().Set(StaleHeader, "true")
		}
		for sym, q := range fetched {
			result[sym] = q
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// GetQuote handles GET /api/quotes/{symbol}.
func (h *QuotesHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	sym := utils.NormalizeSymbol(pathVar(r, "symbol"))
	if sym == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("symbol"))
		return
	}

	if q, ok := h.coord.CachedQuote(sym); ok {
		writeJSON(w, http.StatusOK, q)
		return
	}

	fetched, err := h.source.Snapshot(r.Context(), []string{sym})
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.FromUpstream(err, apierr.ErrQuoteUnavailable))
		return
	}
	q, ok := fetched[sym]
	if !ok {
		apierr.WriteErrorWithContext(w, r, apierr.QuoteNotFound(sym))
		return
	}
	writeJSON(w, http.StatusOK, q)
}
