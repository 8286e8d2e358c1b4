package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/notify"
)

// DeviceHandler manages push device token registration.
type DeviceHandler struct {
	svc    *notify.Service
	logger *zap.Logger
}

func NewDeviceHandler(svc *notify.Service, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{svc: svc, logger: logger}
}

// Register handles POST /api/v1/devices/register
//
// @Summary     Register or refresh a push device token
// @Tags        devices
// @Accept      json
// @Produce     json
// @Param       body  body      domain.RegisterDeviceRequest  true  "Device registration"
// @Success     201   {object}  domain.DeviceToken
// @Failure     422   {object}  map[string]string
// @Router      /api/v1/devices/register [post]
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	t, err := h.svc.RegisterDevice(r.Context(), &req)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

// Unregister handles DELETE /api/v1/devices/{deviceId}
//
// @Summary  Deactivate a push device token
// @Tags     devices
// @Param    deviceId  path   string  true  "Device ID"
// @Param    user_id   query  string  true  "Owning user ID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/devices/{deviceId} [delete]
func (h *DeviceHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	if err := h.svc.UnregisterDevice(r.Context(), userID, chi.URLParam(r, "deviceId")); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
