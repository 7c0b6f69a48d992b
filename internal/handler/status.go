package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/timetable/internal/display"
	"github.com/dukerupert/timetable/internal/refresh"
)

type StatusHandler struct {
	refresher *refresh.Refresher
	display   *display.Publisher
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler. pub may be nil when no display
// surface is configured.
func NewStatusHandler(rf *refresh.Refresher, pub *display.Publisher, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{refresher: rf, display: pub, logger: logger}
}

// Now resolves the active and next block from a fresh snapshot.
func (h *StatusHandler) Now(w http.ResponseWriter, r *http.Request) {
	st, err := h.refresher.Compute()
	if err != nil {
		h.logger.Error("compute status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Refresh pushes a recomputed status to live surfaces.
func (h *StatusHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	st, err := h.refresher.Refresh()
	if err != nil {
		h.logger.Error("refresh status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to refresh status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// RefreshDisplay rewrites the out-of-process display surface on demand.
func (h *StatusHandler) RefreshDisplay(w http.ResponseWriter, r *http.Request) {
	if h.display == nil {
		writeError(w, http.StatusNotFound, "display surface not configured")
		return
	}
	st, err := h.display.Refresh()
	if err != nil {
		h.logger.Error("refresh display", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to refresh display")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
