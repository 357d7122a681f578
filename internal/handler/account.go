package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cabinet/cabinet/internal/handler/dto"
	"github.com/cabinet/cabinet/internal/importer"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/reddit"
	"github.com/cabinet/cabinet/internal/service"
)

// maxUploadBytes caps multipart workbook uploads.
const maxUploadBytes = 10 << 20

// AccountService is what AccountHandler needs from the account service.
type AccountService interface {
	List(ctx context.Context, input service.ListAccountsInput) (*service.ListAccountsOutput, error)
	Get(ctx context.Context, actorID, ownerID, id string) (*model.RedditAccount, error)
	Summary(ctx context.Context, actorID, ownerID string) (*model.AccountSummary, error)
	Create(ctx context.Context, input service.CreateAccountInput) (*model.RedditAccount, bool, error)
	Update(ctx context.Context, input service.UpdateAccountInput) (*model.RedditAccount, error)
	Delete(ctx context.Context, actorID, ownerID, id string) error
	Refresh(ctx context.Context, actorID, ownerID, id string) (*model.RedditAccount, error)
	Verify(ctx context.Context, input service.VerifyInput) (*model.RedditAccount, *reddit.Identity, error)
	ImportXLSX(ctx context.Context, actorID, ownerID string, r io.Reader) (*importer.Result, error)
	ImportSheet(ctx context.Context, actorID, ownerID, sheetURL string) (*importer.Result, error)
}

// AccountHandler handles HTTP requests for Reddit accounts. Every route
// targets the cabinet named by ?cabinet=, or the caller's own.
type AccountHandler struct {
	svc    AccountService
	logger *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(svc AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{svc: svc, logger: logger}
}

// List handles GET /api/accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_LIMIT", err.Error())
		return
	}

	q := r.URL.Query()
	out, err := h.svc.List(r.Context(), service.ListAccountsInput{
		ActorID: callerID(r),
		OwnerID: cabinetOwner(r),
		Cursor:  q.Get("cursor"),
		Limit:   limit,
		Status:  q.Get("status"),
		Search:  q.Get("q"),
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	list := dto.NewListResponse(out.Accounts, dto.ToAccountResponse)
	writeJSON(w, http.StatusOK, dto.AccountListResponse{
		Data: list.Data,
		Pagination: &dto.Pagination{
			NextCursor: out.NextCursor,
			HasMore:    out.HasMore,
		},
	})
}

// Get handles GET /api/accounts/{id}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc, err := h.svc.Get(r.Context(), callerID(r), cabinetOwner(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToAccountResponse(acc))
}

// Summary handles GET /api/accounts/summary.
func (h *AccountHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(r.Context(), callerID(r), cabinetOwner(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Create handles POST /api/accounts. It answers 201 for a new account and
// 200 when an account with the same URL was updated.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAccountRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	acc, created, err := h.svc.Create(r.Context(), service.CreateAccountInput{
		ActorID:       callerID(r),
		OwnerID:       cabinetOwner(r),
		RedditURL:     req.RedditURL,
		Login:         req.Login,
		Password:      req.Password,
		SessionCookie: req.SessionCookie,
		BearerToken:   req.BearerToken,
		Notes:         req.Notes,
		Status:        req.Status,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto.ToAccountResponse(acc))
}

// Update handles PATCH /api/accounts/{id}.
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateAccountRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	acc, err := h.svc.Update(r.Context(), service.UpdateAccountInput{
		ActorID:       callerID(r),
		OwnerID:       cabinetOwner(r),
		ID:            chi.URLParam(r, "id"),
		RedditURL:     req.RedditURL,
		Login:         req.Login,
		Password:      req.Password,
		SessionCookie: req.SessionCookie,
		BearerToken:   req.BearerToken,
		Notes:         req.Notes,
		Status:        req.Status,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToAccountResponse(acc))
}

// Delete handles DELETE /api/accounts/{id}.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), callerID(r), cabinetOwner(r), id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("account_deleted", "account_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /api/accounts/{id}/refresh.
func (h *AccountHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	acc, err := h.svc.Refresh(r.Context(), callerID(r), cabinetOwner(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToAccountResponse(acc))
}

// Verify handles POST /api/accounts/{id}/verify. The body is optional.
func (h *AccountHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyAccountRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeInvalidJSON(w)
		return
	}

	acc, identity, err := h.svc.Verify(r.Context(), service.VerifyInput{
		ActorID:       callerID(r),
		OwnerID:       cabinetOwner(r),
		ID:            chi.URLParam(r, "id"),
		SessionCookie: req.SessionCookie,
		BearerToken:   req.BearerToken,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.VerifyAccountResponse{
		Account:  dto.ToAccountResponse(acc),
		Username: identity.Username,
		Method:   identity.Method,
	})
}

// Import handles POST /api/accounts/import with a multipart "file" field.
func (h *AccountHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "Uploaded file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "MISSING_FILE", "A multipart file field named \"file\" is required")
		return
	}
	defer file.Close()

	result, err := h.svc.ImportXLSX(r.Context(), callerID(r), cabinetOwner(r), file)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logImport("xlsx", result)
	writeJSON(w, http.StatusOK, dto.ToImportResponse(result))
}

// ImportSheet handles POST /api/accounts/import/sheets.
func (h *AccountHandler) ImportSheet(w http.ResponseWriter, r *http.Request) {
	var req dto.ImportSheetRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	result, err := h.svc.ImportSheet(r.Context(), callerID(r), cabinetOwner(r), req.URL)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logImport("sheets", result)
	writeJSON(w, http.StatusOK, dto.ToImportResponse(result))
}

func (h *AccountHandler) logImport(source string, result *importer.Result) {
	h.logger.Info("accounts_imported",
		"source", source,
		"imported", result.Imported,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", len(result.Errors),
	)
}
