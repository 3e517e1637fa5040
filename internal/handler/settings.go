package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/sakif/js-playground/internal/apperror"
	"github.com/sakif/js-playground/internal/model"
)

// SettingsStore is the part of service.SettingsService the handlers use.
type SettingsStore interface {
	Get(ctx context.Context, ownerID string) (*model.Settings, error)
	Update(ctx context.Context, ownerID string, patch model.SettingsPatch) (*model.Settings, error)
	SaveCode(ctx context.Context, ownerID, code string) (bool, error)
	Reset(ctx context.Context, ownerID string) (*model.Settings, error)
}

// SettingsHandler serves the owner's preference bag under /api/settings.
type SettingsHandler struct {
	settings SettingsStore
	logger   *slog.Logger
}

func NewSettingsHandler(settings SettingsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

// HandleGet handles GET /api/settings.
func (h *SettingsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(w, r)
	if !ok {
		return
	}

	s, err := h.settings.Get(r.Context(), id.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// HandleUpdate handles PUT /api/settings with a partial body.
func (h *SettingsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(w, r)
	if !ok {
		return
	}

	var patch model.SettingsPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExecuteBody)).Decode(&patch); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON in request body"))
		return
	}

	s, err := h.settings.Update(r.Context(), id.Subject, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type saveCodeRequest struct {
	Code *string `json:"code"`
}

// HandleSaveCode handles PUT /api/settings/code, the editor's autosave.
// It answers 202 right away; the write happens after the debounce delay.
func (h *SettingsHandler) HandleSaveCode(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(w, r)
	if !ok {
		return
	}

	var req saveCodeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExecuteBody)).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON in request body"))
		return
	}
	if req.Code == nil {
		writeError(w, apperror.ValidationFailed("code", "code is required"))
		return
	}

	scheduled, err := h.settings.SaveCode(r.Context(), id.Subject, *req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"scheduled": scheduled})
}

// HandleReset handles DELETE /api/settings and returns the defaults.
func (h *SettingsHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := owner(w, r)
	if !ok {
		return
	}

	s, err := h.settings.Reset(r.Context(), id.Subject)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
