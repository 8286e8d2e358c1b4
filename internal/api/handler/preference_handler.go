package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/finflow/finqueue/internal/domain"
	"github.com/finflow/finqueue/internal/notify"
)

// PreferenceHandler reads and writes per-user notification preferences.
type PreferenceHandler struct {
	svc    *notify.Service
	logger *zap.Logger
}

func NewPreferenceHandler(svc *notify.Service, logger *zap.Logger) *PreferenceHandler {
	return &PreferenceHandler{svc: svc, logger: logger}
}

// Get handles GET /api/v1/preferences/{userId}
//
// @Summary  Get a user's preference matrix (defaults created on first access)
// @Tags     preferences
// @Produce  json
// @Param    userId  path      string  true  "User ID"
// @Success  200     {object}  domain.Preferences
// @Router   /api/v1/preferences/{userId} [get]
func (h *PreferenceHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Preferences(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type updatePreferencesRequest struct {
	Types map[domain.NotificationType]domain.ChannelPrefs `json:"types"`
}

// Update handles PUT /api/v1/preferences/{userId}
//
// @Summary     Replace a user's preference matrix
// @Tags        preferences
// @Accept      json
// @Produce     json
// @Param       userId  path      string                    true  "User ID"
// @Param       body    body      updatePreferencesRequest  true  "Preference matrix"
// @Success     200     {object}  domain.Preferences
// @Failure     422     {object}  map[string]string
// @Router      /api/v1/preferences/{userId} [put]
func (h *PreferenceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updatePreferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Types) == 0 {
		respondError(w, http.StatusUnprocessableEntity, "types must not be empty")
		return
	}
	for t := range req.Types {
		if !t.IsValid() {
			mapError(w, domain.ErrInvalidType)
			return
		}
	}

	p := &domain.Preferences{
		UserID: chi.URLParam(r, "userId"),
		Types:  req.Types,
	}
	if err := h.svc.UpdatePreferences(r.Context(), p); err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
