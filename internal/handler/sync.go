package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cabinet/cabinet/internal/handler/dto"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/service"
)

// SyncService is what SyncHandler needs from the sync service.
type SyncService interface {
	Put(ctx context.Context, userID, key string, value json.RawMessage, updatedAt int64) (*model.SyncEntry, error)
	Get(ctx context.Context, userID, key string) (*model.SyncEntry, error)
	List(ctx context.Context, userID string, since int64) ([]*model.SyncEntry, error)
	Delete(ctx context.Context, userID, key string) error
}

// SyncHandler serves the key/value store browsers synchronize through.
type SyncHandler struct {
	svc    SyncService
	logger *slog.Logger
	now    func() time.Time
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(svc SyncService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{svc: svc, logger: logger, now: time.Now}
}

// List handles GET /api/sync?since=<unix ms>.
func (h *SyncHandler) List(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_SINCE", "since must be unix milliseconds")
			return
		}
		since = v
	}

	// Taken before reading so a write landing mid-request shows up next poll.
	serverTime := h.now().UnixMilli()
	entries, err := h.svc.List(r.Context(), callerID(r), since)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	list := dto.NewListResponse(entries, dto.ToSyncEntryResponse)
	writeJSON(w, http.StatusOK, dto.SyncListResponse{Data: list.Data, ServerTime: serverTime})
}

// Get handles GET /api/sync/{key}.
func (h *SyncHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Get(r.Context(), callerID(r), chi.URLParam(r, "key"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToSyncEntryResponse(entry))
}

// Put handles PUT /api/sync/{key}. A write older than the stored value
// answers 409 with the current entry.
func (h *SyncHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req dto.PutSyncRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}
	if len(req.Value) == 0 {
		writeError(w, http.StatusBadRequest, "MISSING_VALUE", "value is required")
		return
	}

	entry, err := h.svc.Put(r.Context(), callerID(r), chi.URLParam(r, "key"), req.Value, req.UpdatedAt)
	if err != nil {
		var conflict *service.ConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, dto.SyncConflictResponse{
				Error: dto.ErrorDetail{
					Code:    "SYNC_CONFLICT",
					Message: service.ErrSyncConflict.Error(),
				},
				Current: dto.ToSyncEntryResponse(conflict.Current),
			})
			return
		}
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToSyncEntryResponse(entry))
}

// Delete handles DELETE /api/sync/{key}.
func (h *SyncHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), callerID(r), chi.URLParam(r, "key")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
