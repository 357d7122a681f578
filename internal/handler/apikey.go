package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cabinet/cabinet/internal/handler/dto"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/service"
)

// APIKeyService is what APIKeyHandler needs from the API key service.
type APIKeyService interface {
	Create(ctx context.Context, userID, name string, scopes []string) (*service.CreatedKey, error)
	List(ctx context.Context, userID string) ([]*model.APIKey, error)
	Revoke(ctx context.Context, userID, id string) error
	Rotate(ctx context.Context, userID, id string) (*service.CreatedKey, error)
}

// APIKeyHandler manages the caller's extension API keys.
type APIKeyHandler struct {
	svc    APIKeyService
	logger *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(svc APIKeyService, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{svc: svc, logger: logger}
}

// Create handles POST /api/keys.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAPIKeyRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeInvalidJSON(w)
		return
	}

	created, err := h.svc.Create(r.Context(), callerID(r), req.Name, req.Scopes)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCreatedKeyResponse(created))
}

// List handles GET /api/keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.svc.List(r.Context(), callerID(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(keys, dto.ToAPIKeyResponse))
}

// Revoke handles DELETE /api/keys/{id}.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Revoke(r.Context(), callerID(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Rotate handles POST /api/keys/{id}/rotate.
func (h *APIKeyHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	created, err := h.svc.Rotate(r.Context(), callerID(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCreatedKeyResponse(created))
}

func toCreatedKeyResponse(c *service.CreatedKey) dto.CreatedAPIKeyResponse {
	return dto.CreatedAPIKeyResponse{
		APIKeyResponse: dto.ToAPIKeyResponse(c.Key),
		Key:            c.Plaintext,
	}
}
