package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/finflow/finqueue/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain sentinel errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNotCancellable):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnknownJobType),
		errors.Is(err, domain.ErrQueueMismatch),
		errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrInvalidChannel),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidType),
		errors.Is(err, domain.ErrMissingContent),
		errors.Is(err, domain.ErrNoChannels),
		errors.Is(err, domain.ErrNoRecipients),
		errors.Is(err, domain.ErrDeviceFields):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrQueueUnavailable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
