package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apimw "github.com/finflow/finqueue/internal/api/middleware"
	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/queue"
)

// JobHandler exposes the generic job endpoints: enqueue, status, cancel, and
// per-queue stats.
type JobHandler struct {
	manager *queue.Manager
	logger  *zap.Logger
}

func NewJobHandler(manager *queue.Manager, logger *zap.Logger) *JobHandler {
	return &JobHandler{manager: manager, logger: logger}
}

type enqueueRequest struct {
	Type         string          `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	Priority     domain.Priority `json:"priority,omitempty"`
	DelaySeconds int             `json:"delay_seconds,omitempty"`
	MaxAttempts  int             `json:"max_attempts,omitempty"`
}

// enqueueResponse acknowledges an accepted job. Status is "queued" for an
// immediately claimable job and "scheduled" for a delayed one; the lifecycle
// state is served by the status endpoint.
type enqueueResponse struct {
	JobID   string    `json:"job_id"`
	Queue   string    `json:"queue"`
	Type    string    `json:"type"`
	Status  string    `json:"status"`
	ReadyAt time.Time `json:"ready_at"`
}

// Enqueue handles POST /api/v1/jobs/{queueName}
//
// @Summary     Enqueue a job
// @Tags        jobs
// @Accept      json
// @Produce     json
// @Param       queueName  path      string          true  "Logical queue name"
// @Param       body       body      enqueueRequest  true  "Job type, payload, and options"
// @Success     202        {object}  enqueueResponse
// @Failure     422        {object}  map[string]string
// @Failure     503        {object}  map[string]string
// @Router      /api/v1/jobs/{queueName} [post]
func (h *JobHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	queueName := chi.URLParam(r, "queueName")

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Type == "" {
		respondError(w, http.StatusUnprocessableEntity, "type is required")
		return
	}
	if req.DelaySeconds < 0 {
		respondError(w, http.StatusUnprocessableEntity, "delay_seconds must not be negative")
		return
	}

	j, err := h.manager.Enqueue(r.Context(), queueName, req.Type, req.Payload, domain.EnqueueOptions{
		Priority:    req.Priority,
		Delay:       time.Duration(req.DelaySeconds) * time.Second,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		h.logger.Warn("enqueue failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.String("queue", queueName),
			zap.String("type", req.Type),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, enqueueResponse{
		JobID:   j.ID,
		Queue:   j.Queue,
		Type:    j.Type,
		Status:  j.Admission(),
		ReadyAt: j.ReadyAt,
	})
}

// Status handles GET /api/v1/jobs/{jobID}/status
//
// @Summary  Get job status
// @Tags     jobs
// @Produce  json
// @Param    jobID  path      string  true  "Job UUID"
// @Success  200    {object}  domain.JobStatus
// @Failure  404    {object}  map[string]string
// @Router   /api/v1/jobs/{jobID}/status [get]
func (h *JobHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.manager.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// Cancel handles DELETE /api/v1/jobs/{jobID}
//
// @Summary  Cancel an unclaimed job
// @Tags     jobs
// @Param    jobID  path  string  true  "Job UUID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Failure  409  {object}  map[string]string
// @Router   /api/v1/jobs/{jobID} [delete]
func (h *JobHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Cancel(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// QueueStats handles GET /api/v1/queues/{queueName}/stats
//
// @Summary  Job counts by state for one queue
// @Tags     queues
// @Produce  json
// @Param    queueName  path      string  true  "Logical queue name"
// @Success  200        {object}  map[string]any
// @Router   /api/v1/queues/{queueName}/stats [get]
func (h *JobHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	queueName := chi.URLParam(r, "queueName")
	counts, err := h.manager.Stats(r.Context(), queueName)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"queue":  queueName,
		"states": counts,
	})
}
