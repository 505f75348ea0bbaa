package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/studiobot/internal/engine"
)

// StatusSource is satisfied by *engine.Engine.
type StatusSource interface {
	Status() *engine.Status
}

// StatusHandler serves the engine snapshot.
type StatusHandler struct {
	src     StatusSource
	mode    string
	started time.Time
}

// NewStatusHandler creates a StatusHandler for the given run mode.
func NewStatusHandler(src StatusSource, mode string) *StatusHandler {
	return &StatusHandler{src: src, mode: mode, started: time.Now()}
}

// GetStatus handles GET /api/status.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st := h.src.Status()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not started")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.mode,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"engine":         NewStatusView(st),
	})
}
