package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"streamgate/internal/logging"
	"streamgate/internal/passcode"
	"streamgate/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeGatewayError maps a gateway or passcode error to a response. Security
// rejections share one generic body so callers cannot tell them apart.
func writeGatewayError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrQuotaExceeded):
		writeError(w, http.StatusForbidden, "quota exceeded")
	case errors.Is(err, services.ErrUnauthorized), errors.Is(err, services.ErrPathTraversal):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, passcode.ErrInvalid), errors.Is(err, passcode.ErrAlreadyUsed), errors.Is(err, passcode.ErrExpired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, "bad request")
	default:
		eventType, hint := services.Details(err)
		logging.ErrorWithContext(logging.WithContext(r.Context(), logger), "request failed", eventType,
			logging.String(logging.FieldErrorHint, hint),
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
