package handler

import (
	"net/http"
	"time"
)

// HealthHandler reports liveness plus whether the engine is trading.
type HealthHandler struct {
	src StatusSource
}

func NewHealthHandler(src StatusSource) *HealthHandler {
	return &HealthHandler{src: src}
}

// HealthCheck handles GET /api/health. A halted engine answers 503 so
// orchestrators can restart it; a warming-up engine is still healthy.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	body := map[string]any{"timestamp": time.Now().UTC().Format(time.RFC3339)}

	if st := h.src.Status(); st != nil {
		body["ready"] = st.Ready
		body["halted"] = st.Halted
		switch {
		case st.Halted:
			status, code = "halted", http.StatusServiceUnavailable
		case !st.Ready:
			status = "starting"
		}
	}
	body["status"] = status
	writeJSON(w, code, body)
}
