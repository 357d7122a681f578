package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cabinet/cabinet/internal/importer"
	"github.com/cabinet/cabinet/internal/service"
)

// apiError is how a service error is reported to clients.
type apiError struct {
	status int
	code   string
	// detail reports err.Error() instead of the sentinel message.
	detail bool
}

// serviceErrors maps service sentinels to responses. Order matters only
// for errors that wrap more than one sentinel.
var serviceErrors = []struct {
	err error
	api apiError
}{
	{service.ErrInvalidEmail, apiError{http.StatusBadRequest, "INVALID_EMAIL", false}},
	{service.ErrWeakPassword, apiError{http.StatusBadRequest, "WEAK_PASSWORD", false}},
	{service.ErrEmailTaken, apiError{http.StatusConflict, "EMAIL_TAKEN", false}},
	{service.ErrInvalidCredentials, apiError{http.StatusUnauthorized, "INVALID_CREDENTIALS", false}},
	{service.ErrUserNotFound, apiError{http.StatusNotFound, "USER_NOT_FOUND", false}},

	{service.ErrForbidden, apiError{http.StatusForbidden, "FORBIDDEN", false}},
	{service.ErrInvitationNotFound, apiError{http.StatusNotFound, "INVITATION_NOT_FOUND", false}},
	{service.ErrInvitationClosed, apiError{http.StatusGone, "INVITATION_CLOSED", false}},
	{service.ErrInvitationRecipient, apiError{http.StatusForbidden, "INVITATION_RECIPIENT", false}},
	{service.ErrSelfInvite, apiError{http.StatusBadRequest, "SELF_INVITE", false}},
	{service.ErrNoPermissions, apiError{http.StatusBadRequest, "NO_PERMISSIONS", false}},
	{service.ErrMemberNotFound, apiError{http.StatusNotFound, "MEMBER_NOT_FOUND", false}},

	{service.ErrAccountNotFound, apiError{http.StatusNotFound, "ACCOUNT_NOT_FOUND", false}},
	{service.ErrAccountExists, apiError{http.StatusConflict, "ACCOUNT_EXISTS", false}},
	{service.ErrInvalidAccountURL, apiError{http.StatusBadRequest, "INVALID_REDDIT_URL", false}},
	{service.ErrInvalidStatus, apiError{http.StatusBadRequest, "INVALID_STATUS", false}},
	{service.ErrInvalidCursor, apiError{http.StatusBadRequest, "INVALID_CURSOR", false}},
	{service.ErrScrapeFailed, apiError{http.StatusBadGateway, "SCRAPE_FAILED", true}},
	{service.ErrCredentialsRejected, apiError{http.StatusUnprocessableEntity, "CREDENTIALS_REJECTED", true}},
	{service.ErrNoCredentials, apiError{http.StatusBadRequest, "NO_CREDENTIALS", false}},

	{importer.ErrEmptyWorkbook, apiError{http.StatusBadRequest, "EMPTY_WORKBOOK", false}},
	{importer.ErrInvalidWorkbook, apiError{http.StatusBadRequest, "INVALID_WORKBOOK", false}},
	{importer.ErrInvalidSheetURL, apiError{http.StatusBadRequest, "INVALID_SHEET_URL", false}},
	{importer.ErrSheetNotPublic, apiError{http.StatusUnprocessableEntity, "SHEET_NOT_PUBLIC", false}},
	{importer.ErrSheetTooLarge, apiError{http.StatusRequestEntityTooLarge, "SHEET_TOO_LARGE", false}},

	{service.ErrTabNotFound, apiError{http.StatusNotFound, "TAB_NOT_FOUND", false}},
	{service.ErrTabExists, apiError{http.StatusConflict, "TAB_EXISTS", false}},
	{service.ErrInvalidTabName, apiError{http.StatusBadRequest, "INVALID_TAB_NAME", false}},
	{service.ErrSubredditNotFound, apiError{http.StatusNotFound, "SUBREDDIT_NOT_FOUND", false}},
	{service.ErrInvalidSubredditURL, apiError{http.StatusBadRequest, "INVALID_SUBREDDIT_URL", false}},
	{service.ErrUnknownSubreddit, apiError{http.StatusUnprocessableEntity, "UNKNOWN_SUBREDDIT", false}},
	{service.ErrSubredditUnavailable, apiError{http.StatusBadGateway, "SUBREDDIT_UNAVAILABLE", true}},

	{service.ErrInvalidSyncKey, apiError{http.StatusBadRequest, "INVALID_SYNC_KEY", false}},
	{service.ErrInvalidSyncJSON, apiError{http.StatusBadRequest, "INVALID_SYNC_VALUE", false}},
	{service.ErrSyncValueSize, apiError{http.StatusRequestEntityTooLarge, "SYNC_VALUE_TOO_LARGE", false}},
	{service.ErrSyncKeyNotFound, apiError{http.StatusNotFound, "SYNC_KEY_NOT_FOUND", false}},
	{service.ErrSyncConflict, apiError{http.StatusConflict, "SYNC_CONFLICT", false}},

	{service.ErrInvalidTheme, apiError{http.StatusBadRequest, "INVALID_THEME", false}},
	{service.ErrInvalidLanguage, apiError{http.StatusBadRequest, "INVALID_LANGUAGE", false}},
	{service.ErrInvalidModel, apiError{http.StatusBadRequest, "INVALID_MODEL", false}},
	{service.ErrPromptTooLong, apiError{http.StatusBadRequest, "PROMPT_TOO_LONG", false}},

	{service.ErrInvalidAction, apiError{http.StatusBadRequest, "INVALID_ACTION", false}},
	{service.ErrInvalidPostURL, apiError{http.StatusBadRequest, "INVALID_POST_URL", false}},
	{service.ErrCommentRequired, apiError{http.StatusBadRequest, "COMMENT_REQUIRED", false}},
	{service.ErrCommentTooLong, apiError{http.StatusBadRequest, "COMMENT_TOO_LONG", false}},
	{service.ErrTaskNotFound, apiError{http.StatusNotFound, "TASK_NOT_FOUND", false}},
	{service.ErrTaskNotPending, apiError{http.StatusConflict, "TASK_NOT_PENDING", false}},
	{service.ErrTaskNotClaimed, apiError{http.StatusConflict, "TASK_NOT_CLAIMED", false}},
	{service.ErrPostNotFound, apiError{http.StatusUnprocessableEntity, "POST_NOT_FOUND", false}},
	{service.ErrGenerationFailed, apiError{http.StatusBadGateway, "GENERATION_FAILED", true}},
	{service.ErrInvalidTaskStatus, apiError{http.StatusBadRequest, "INVALID_TASK_STATUS", false}},

	{service.ErrInvalidScope, apiError{http.StatusBadRequest, "INVALID_SCOPE", false}},
	{service.ErrAPIKeyNotFound, apiError{http.StatusNotFound, "API_KEY_NOT_FOUND", false}},
	{service.ErrKeyNameTooLong, apiError{http.StatusBadRequest, "INVALID_KEY_NAME", false}},
}

// handleServiceError maps service errors to HTTP responses. Unknown errors
// are logged and reported as 500.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	for _, m := range serviceErrors {
		if !errors.Is(err, m.err) {
			continue
		}
		message := m.err.Error()
		if m.api.detail {
			message = err.Error()
		}
		writeError(w, m.api.status, m.api.code, message)
		return
	}

	logger.Error("internal_error", "error", err)
	writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
}

func writeInvalidJSON(w http.ResponseWriter) {
	writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
}
