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

// SubredditService is what SubredditHandler needs from the subreddit service.
type SubredditService interface {
	ListTabs(ctx context.Context, userID string) ([]*model.SubredditTab, error)
	CreateTab(ctx context.Context, userID, name string) (*model.SubredditTab, error)
	RenameTab(ctx context.Context, userID, id, name string) (*model.SubredditTab, error)
	ReorderTabs(ctx context.Context, userID string, ids []string) ([]*model.SubredditTab, error)
	DeleteTab(ctx context.Context, userID, id string) error
	List(ctx context.Context, userID, tab string) ([]*model.Subreddit, error)
	Create(ctx context.Context, input service.CreateSubredditInput) (*model.Subreddit, bool, error)
	Update(ctx context.Context, input service.UpdateSubredditInput) (*model.Subreddit, error)
	Move(ctx context.Context, userID, id, tabID string) (*model.Subreddit, error)
	Delete(ctx context.Context, userID, id string) error
	Refresh(ctx context.Context, userID, id string) (*model.Subreddit, error)
}

// SubredditHandler handles tracked subreddits and their tabs.
type SubredditHandler struct {
	svc    SubredditService
	logger *slog.Logger
}

// NewSubredditHandler creates a new SubredditHandler.
func NewSubredditHandler(svc SubredditService, logger *slog.Logger) *SubredditHandler {
	return &SubredditHandler{svc: svc, logger: logger}
}

// ListTabs handles GET /api/subreddit-tabs.
func (h *SubredditHandler) ListTabs(w http.ResponseWriter, r *http.Request) {
	tabs, err := h.svc.ListTabs(r.Context(), callerID(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(tabs, dto.ToTabResponse))
}

// CreateTab handles POST /api/subreddit-tabs.
func (h *SubredditHandler) CreateTab(w http.ResponseWriter, r *http.Request) {
	var req dto.TabRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	tab, err := h.svc.CreateTab(r.Context(), callerID(r), req.Name)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ToTabResponse(tab))
}

// RenameTab handles PATCH /api/subreddit-tabs/{id}.
func (h *SubredditHandler) RenameTab(w http.ResponseWriter, r *http.Request) {
	var req dto.TabRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	tab, err := h.svc.RenameTab(r.Context(), callerID(r), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToTabResponse(tab))
}

// ReorderTabs handles PUT /api/subreddit-tabs/order.
func (h *SubredditHandler) ReorderTabs(w http.ResponseWriter, r *http.Request) {
	var req dto.ReorderTabsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	tabs, err := h.svc.ReorderTabs(r.Context(), callerID(r), req.IDs)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(tabs, dto.ToTabResponse))
}

// DeleteTab handles DELETE /api/subreddit-tabs/{id}.
func (h *SubredditHandler) DeleteTab(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTab(r.Context(), callerID(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/subreddits?tab=.
func (h *SubredditHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.List(r.Context(), callerID(r), r.URL.Query().Get("tab"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(subs, dto.ToSubredditResponse))
}

// Create handles POST /api/subreddits.
func (h *SubredditHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateSubredditRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	sub, created, err := h.svc.Create(r.Context(), service.CreateSubredditInput{
		UserID: callerID(r),
		URL:    req.URL,
		TabID:  req.TabID,
		Notes:  req.Notes,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto.ToSubredditResponse(sub))
}

// Update handles PATCH /api/subreddits/{id}.
func (h *SubredditHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateSubredditRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	sub, err := h.svc.Update(r.Context(), service.UpdateSubredditInput{
		UserID: callerID(r),
		ID:     chi.URLParam(r, "id"),
		Notes:  req.Notes,
		TabID:  req.TabID,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToSubredditResponse(sub))
}

// Move handles POST /api/subreddits/{id}/move.
func (h *SubredditHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req dto.MoveSubredditRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	sub, err := h.svc.Move(r.Context(), callerID(r), chi.URLParam(r, "id"), req.TabID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToSubredditResponse(sub))
}

// Delete handles DELETE /api/subreddits/{id}.
func (h *SubredditHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), callerID(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /api/subreddits/{id}/refresh.
func (h *SubredditHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	sub, err := h.svc.Refresh(r.Context(), callerID(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToSubredditResponse(sub))
}
