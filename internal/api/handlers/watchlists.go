package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sqlc-dev/pqtype"

	"github.com/onnwee/market-pulse/backend/internal/apierr"
	"github.com/onnwee/market-pulse/backend/internal/db"
	"github.com/onnwee/market-pulse/backend/internal/utils"
)

// WatchlistsHandler persists the dashboard's watchlists. The owner is the
// anonymous browser identity the frontend sends; there is no account system.
type WatchlistsHandler struct {
	q *db.Queries
}

// NewWatchlistsHandler creates a watchlists handler.
func NewWatchlistsHandler(q *db.Queries) *WatchlistsHandler {
	return &WatchlistsHandler{q: q}
}

// ownerID reads the caller identity header the frontend attaches.
func ownerID(r *http.Request) string {
	return r.Header.Get("X-Client-ID")
}

type watchlistBody struct {
	Name     string          `json:"name"`
	Symbols  []string        `json:"symbols"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

type watchlistResponse struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Symbols  []string        `json:"symbols"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

func toResponse(w db.Watchlist) watchlistResponse {
	resp := watchlistResponse{
		ID:      w.ID,
		Name:    w.Name,
		Symbols: w.Symbols,
	}
	if w.Settings.Valid {
		resp.Settings = w.Settings.RawMessage
	}
	return resp
}

func toSettings(raw json.RawMessage) pqtype.NullRawMessage {
	if len(raw) == 0 {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}

func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if v := utils.NormalizeSymbol(s); v != "" {
			out = append(out, v)
		}
	}
	return utils.UniqueStrings(out)
}

// ListWatchlists handles GET /api/watchlists.
func (h *WatchlistsHandler) ListWatchlists(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("X-Client-ID"))
		return
	}

	lists, err := h.q.ListWatchlists(r.Context(), owner)
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.SystemDatabase(""))
		return
	}

	resp := make([]watchlistResponse, 0, len(lists))
	for _, wl := range lists {
		resp = append(resp, toResponse(wl))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateWatchlist handles POST /api/watchlists.
func (h *WatchlistsHandler) CreateWatchlist(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if owner == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("X-Client-ID"))
		return
	}

	var body watchlistBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}
	if body.Name == "" {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationMissingField("name"))
		return
	}

	created, err := h.q.CreateWatchlist(r.Context(), db.CreateWatchlistParams{
		OwnerID:  owner,
		Name:     body.Name,
		Symbols:  normalizeSymbols(body.Symbols),
		Settings: toSettings(body.Settings),
	})
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.WatchlistStoreFailed(""))
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(created))
}

// UpdateWatchlist handles PUT /api/watchlists/{id}.
func (h *WatchlistsHandler) UpdateWatchlist(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	id, err := strconv.ParseInt(pathVar(r, "id"), 10, 64)
	if owner == "" || err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}

	var body watchlistBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidJSON())
		return
	}

	updated, err := h.q.UpdateWatchlist(r.Context(), db.UpdateWatchlistParams{
		ID:       id,
		OwnerID:  owner,
		Name:     body.Name,
		Symbols:  normalizeSymbols(body.Symbols),
		Settings: toSettings(body.Settings),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			apierr.WriteErrorWithContext(w, r, apierr.WatchlistNotFound())
			return
		}
		apierr.WriteErrorWithContext(w, r, apierr.WatchlistStoreFailed(""))
		return
	}
	writeJSON(w, http.StatusOK, toResponse(updated))
}

// DeleteWatchlist handles DELETE /api/watchlists/{id}.
func (h *WatchlistsHandler) DeleteWatchlist(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	id, err := strconv.ParseInt(pathVar(r, "id"), 10, 64)
	if owner == "" || err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("id", ""))
		return
	}

	removed, err := h.q.DeleteWatchlist(r.Context(), id, owner)
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.WatchlistStoreFailed(""))
		return
	}
	if removed == 0 {
		apierr.WriteErrorWithContext(w, r, apierr.WatchlistNotFound())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
