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

// EngagementService is what EngagementHandler needs from the engagement service.
type EngagementService interface {
	CreateTask(ctx context.Context, input service.CreateTaskInput) (*model.EngagementTask, error)
	Generate(ctx context.Context, userID, targetURL string) (string, error)
	ListTasks(ctx context.Context, userID, status string, limit int) ([]*model.EngagementTask, error)
	CancelTask(ctx context.Context, userID, id string) error
	ClaimTasks(ctx context.Context, userID string, limit int) ([]*model.ClaimedTask, error)
	ReportResult(ctx context.Context, result service.TaskResult) (*model.EngagementTask, error)
}

// EngagementHandler queues engagement tasks and serves the extension's
// claim and result routes.
type EngagementHandler struct {
	svc    EngagementService
	logger *slog.Logger
}

// NewEngagementHandler creates a new EngagementHandler.
func NewEngagementHandler(svc EngagementService, logger *slog.Logger) *EngagementHandler {
	return &EngagementHandler{svc: svc, logger: logger}
}

// CreateTask handles POST /api/engagement/tasks.
func (h *EngagementHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTaskRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	task, err := h.svc.CreateTask(r.Context(), service.CreateTaskInput{
		UserID:      callerID(r),
		AccountID:   req.AccountID,
		Action:      req.Action,
		TargetURL:   req.TargetURL,
		CommentText: req.CommentText,
		Generate:    req.Generate,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.ToTaskResponse(task))
}

// ListTasks handles GET /api/engagement/tasks?status=&limit=.
func (h *EngagementHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_LIMIT", err.Error())
		return
	}

	tasks, err := h.svc.ListTasks(r.Context(), callerID(r), r.URL.Query().Get("status"), limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(tasks, dto.ToTaskResponse))
}

// CancelTask handles DELETE /api/engagement/tasks/{id}.
func (h *EngagementHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelTask(r.Context(), callerID(r), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Generate handles POST /api/engagement/generate.
func (h *EngagementHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req dto.GenerateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	text, err := h.svc.Generate(r.Context(), callerID(r), req.TargetURL)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.GenerateResponse{CommentText: text})
}

// Claim handles POST /api/extension/tasks/claim?limit=.
func (h *EngagementHandler) Claim(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_LIMIT", err.Error())
		return
	}

	claimed, err := h.svc.ClaimTasks(r.Context(), callerID(r), limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewListResponse(claimed, dto.ToClaimedTaskResponse))
}

// Result handles POST /api/extension/tasks/{id}/result.
func (h *EngagementHandler) Result(w http.ResponseWriter, r *http.Request) {
	var req dto.TaskResultRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	task, err := h.svc.ReportResult(r.Context(), service.TaskResult{
		UserID:  callerID(r),
		TaskID:  chi.URLParam(r, "id"),
		Success: req.Success,
		Error:   req.Error,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToTaskResponse(task))
}
