package handler

import (
	"net/http"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/notify"
	"github.com/finflow/finqueue/internal/queue"
)

// StatsHandler serves the JSON snapshot of queue depths and delivery counts.
type StatsHandler struct {
	manager *queue.Manager
	svc     *notify.Service
}

func NewStatsHandler(manager *queue.Manager, svc *notify.Service) *StatsHandler {
	return &StatsHandler{manager: manager, svc: svc}
}

// Get handles GET /api/v1/stats
//
// @Summary  Job counts for every queue plus the delivery attempt matrix
// @Tags     system
// @Produce  json
// @Success  200  {object}  map[string]any
// @Router   /api/v1/stats [get]
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	queues := make(map[string]map[domain.JobState]int, len(domain.Queues()))
	for _, q := range domain.Queues() {
		counts, err := h.manager.Stats(r.Context(), q)
		if err != nil {
			mapError(w, err)
			return
		}
		queues[q] = counts
	}

	deliveries, err := h.svc.DeliveryCounts(r.Context())
	if err != nil {
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"queues":     queues,
		"deliveries": deliveries,
	})
}
