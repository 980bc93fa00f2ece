package handlers

import (
	"net/http"

	"github.com/onnwee/market-pulse/backend/internal/apierr"
	"github.com/onnwee/market-pulse/backend/internal/realtime"
)

// RealtimeHandler exposes the realtime coordinator's controls over HTTP.
type RealtimeHandler struct {
	coord *realtime.Coordinator
}

// NewRealtimeHandler creates a realtime control handler.
func NewRealtimeHandler(coord *realtime.Coordinator) *RealtimeHandler {
	return &RealtimeHandler{coord: coord}
}

// GetStatus handles GET /api/realtime/status.
func (h *RealtimeHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.Status())
}

// ToggleUpdates handles POST /api/realtime/toggle. The response carries the
// resulting paused state so the UI can reflect it directly.
func (h *RealtimeHandler) ToggleUpdates(w http.ResponseWriter, r *http.Request) {
	paused := h.coord.ToggleUpdates()
	writeJSON(w, http.StatusOK, map[string]any{
		"isPaused": paused,
	})
}

// Refresh handles POST /api/realtime/refresh: an immediate fetch outside the
// schedule, honored even while paused.
func (h *RealtimeHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.RefreshData(r.Context()); err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.FromUpstream(err, apierr.ErrQuoteUnavailable))
		return
	}
	writeJSON(w, http.StatusOK, h.coord.Status())
}
