package dto

import (
	"time"

	"github.com/cabinet/cabinet/internal/importer"
	"github.com/cabinet/cabinet/internal/model"
)

// CreateAccountRequest represents the request body for adding an account.
type CreateAccountRequest struct {
	RedditURL     string `json:"reddit_url"`
	Login         string `json:"login,omitempty"`
	Password      string `json:"password,omitempty"`
	SessionCookie string `json:"session_cookie,omitempty"`
	BearerToken   string `json:"bearer_token,omitempty"`
	Notes         string `json:"notes,omitempty"`
	Status        string `json:"status,omitempty"`
}

// UpdateAccountRequest represents a partial account update.
type UpdateAccountRequest struct {
	RedditURL     *string `json:"reddit_url,omitempty"`
	Login         *string `json:"login,omitempty"`
	Password      *string `json:"password,omitempty"`
	SessionCookie *string `json:"session_cookie,omitempty"`
	BearerToken   *string `json:"bearer_token,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	Status        *string `json:"status,omitempty"`
}

// VerifyAccountRequest optionally supplies credentials to verify.
type VerifyAccountRequest struct {
	SessionCookie string `json:"session_cookie,omitempty"`
	BearerToken   string `json:"bearer_token,omitempty"`
}

// ImportSheetRequest represents the request body for a Google Sheets import.
type ImportSheetRequest struct {
	URL string `json:"url"`
}

// AccountResponse represents an account in API responses. Secrets are
// reported only by presence.
type AccountResponse struct {
	ID               string     `json:"id"`
	OwnerID          string     `json:"owner_id"`
	RedditURL        string     `json:"reddit_url"`
	Username         string     `json:"username"`
	Login            string     `json:"login,omitempty"`
	HasPassword      bool       `json:"has_password"`
	HasSession       bool       `json:"has_session"`
	HasToken         bool       `json:"has_token"`
	Status           string     `json:"status"`
	Notes            string     `json:"notes"`
	PostKarma        int64      `json:"post_karma"`
	CommentKarma     int64      `json:"comment_karma"`
	TotalKarma       int64      `json:"total_karma"`
	Followers        int64      `json:"followers"`
	PostsCount       int64      `json:"posts_count"`
	IsSuspended      bool       `json:"is_suspended"`
	AvatarURL        string     `json:"avatar_url,omitempty"`
	AccountCreatedAt *time.Time `json:"account_created_at,omitempty"`
	LastScrapedAt    *time.Time `json:"last_scraped_at,omitempty"`
	ScrapeError      string     `json:"scrape_error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AccountListResponse represents a page of accounts.
type AccountListResponse struct {
	Data       []AccountResponse `json:"data"`
	Pagination *Pagination       `json:"pagination"`
}

// VerifyAccountResponse reports who the credentials logged in as.
type VerifyAccountResponse struct {
	Account  AccountResponse `json:"account"`
	Username string          `json:"username"`
	Method   string          `json:"method"`
}

// ImportResponse reports the outcome of a bulk import.
type ImportResponse struct {
	Imported  int                 `json:"imported"`
	Updated   int                 `json:"updated"`
	Skipped   int                 `json:"skipped"`
	Truncated bool                `json:"truncated,omitempty"`
	Errors    []importer.RowError `json:"errors"`
}

// ToAccountResponse converts a RedditAccount model to AccountResponse DTO.
func ToAccountResponse(a *model.RedditAccount) AccountResponse {
	return AccountResponse{
		ID:               a.ID,
		OwnerID:          a.UserID,
		RedditURL:        a.RedditURL,
		Username:         a.Username,
		Login:            a.Login,
		HasPassword:      a.Password != "",
		HasSession:       a.SessionCookie != "",
		HasToken:         a.BearerToken != "",
		Status:           string(a.Status),
		Notes:            a.Notes,
		PostKarma:        a.PostKarma,
		CommentKarma:     a.CommentKarma,
		TotalKarma:       a.TotalKarma,
		Followers:        a.Followers,
		PostsCount:       a.PostsCount,
		IsSuspended:      a.IsSuspended,
		AvatarURL:        a.AvatarURL,
		AccountCreatedAt: a.AccountCreatedAt,
		LastScrapedAt:    a.LastScrapedAt,
		ScrapeError:      a.ScrapeError,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// ToImportResponse converts an importer result.
func ToImportResponse(r *importer.Result) ImportResponse {
	errs := r.Errors
	if errs == nil {
		errs = []importer.RowError{}
	}
	return ImportResponse{
		Imported:  r.Imported,
		Updated:   r.Updated,
		Skipped:   r.Skipped,
		Truncated: r.Truncated,
		Errors:    errs,
	}
}
