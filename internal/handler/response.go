// Package handler contains the HTTP handlers of the playground.
//
// Handlers decode the request, call one service or the executor, and encode
// the answer as JSON (or HTML for the page). Errors go through writeError,
// which maps apperror sentinels to status codes.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/session"
)

// ErrorResponse is the JSON body of every error.
type ErrorResponse struct {
	Error   string `json:"error"`           // machine-readable type, e.g. "not_found"
	Message string `json:"message"`         // human-readable description
	Field   string `json:"field,omitempty"` // offending input field, if any
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps domain errors to status codes. Anything that is not an
// AppError is a 500 whose details stay in the logs.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError

	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
			errorType = "not_found"
		case errors.Is(err, apperror.ErrUnsupportedLanguage):
			status = http.StatusUnprocessableEntity
			errorType = "unsupported_language"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
			Field:   appErr.Field,
		})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// owner returns the settings owner of the request. session.Manager's
// middleware always sets one; its absence is a wiring bug.
func owner(w http.ResponseWriter, r *http.Request) (session.Identity, bool) {
	id, ok := session.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "no session",
		})
	}
	return id, ok
}
