package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the liveness probe endpoint. The response names the
// backing store so a memory-backed instance is distinguishable from a
// Postgres-backed one.
type HealthHandler struct {
	storeMode string
	started   time.Time
}

func NewHealthHandler(storeMode string) *HealthHandler {
	return &HealthHandler{storeMode: storeMode, started: time.Now()}
}

// Health handles GET /health
//
// @Summary  Liveness probe
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"store":  h.storeMode,
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}
