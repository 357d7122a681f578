package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cabinet/cabinet/internal/handler/dto"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/service"
)

// SettingsService is what SettingsHandler needs from the settings service.
type SettingsService interface {
	Get(ctx context.Context, userID string) (*model.UserSettings, error)
	Update(ctx context.Context, input service.UpdateSettingsInput) (*model.UserSettings, error)
}

// SettingsHandler serves per-user preferences.
type SettingsHandler struct {
	svc    SettingsService
	logger *slog.Logger
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(svc SettingsService, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{svc: svc, logger: logger}
}

// Get handles GET /api/settings.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.Get(r.Context(), callerID(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update handles PUT /api/settings.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateSettingsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	settings, err := h.svc.Update(r.Context(), service.UpdateSettingsInput{
		UserID:        callerID(r),
		Theme:         req.Theme,
		Language:      req.Language,
		OllamaModel:   req.OllamaModel,
		CommentPrompt: req.CommentPrompt,
		NotifyEmail:   req.NotifyEmail,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
