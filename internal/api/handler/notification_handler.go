package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	apimw "github.com/finflow/finqueue/internal/api/middleware"
	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/notify"
)

// NotificationHandler handles notification submission and delivery history.
type NotificationHandler struct {
	svc    *notify.Service
	logger *zap.Logger
}

func NewNotificationHandler(svc *notify.Service, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{svc: svc, logger: logger}
}

// Send handles POST /api/v1/notifications/send
//
// @Summary     Submit a notification for asynchronous delivery
// @Tags        notifications
// @Accept      json
// @Produce     json
// @Param       body  body      domain.NotificationRequest  true  "Notification request"
// @Success     202   {object}  map[string]string
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/notifications/send [post]
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req domain.NotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	j, err := h.svc.Submit(r.Context(), &req)
	if err != nil {
		h.logger.Warn("notification rejected",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": j.ID,
		"status": j.Admission(),
	})
}

// History handles GET /api/v1/notifications/history
//
// @Summary  Delivery history for one user, newest first
// @Tags     notifications
// @Produce  json
// @Param    user_id  query     string  true   "User ID"
// @Param    page     query     int     false  "Page number (default 1)"
// @Param    limit    query     int     false  "Items per page (default 20, max 100)"
// @Success  200      {object}  map[string]any
// @Router   /api/v1/notifications/history [get]
func (h *NotificationHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	page, limit := parsePage(r)

	rows, total, err := h.svc.History(r.Context(), userID, limit, (page-1)*limit)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"data":  rows,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

func parsePage(r *http.Request) (page, limit int) {
	page, limit = 1, 20
	q := r.URL.Query()
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	if l, err := strconv.Atoi(q.Get("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	return page, limit
}
