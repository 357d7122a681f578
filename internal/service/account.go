package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cabinet/cabinet/internal/importer"
	"github.com/cabinet/cabinet/internal/metrics"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/reddit"
	"github.com/cabinet/cabinet/internal/repository"
)

// Account errors.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("another account already uses this reddit url")
	ErrInvalidAccountURL   = errors.New("invalid reddit account url or username")
	ErrInvalidStatus       = errors.New("invalid account status")
	ErrInvalidCursor       = errors.New("invalid pagination cursor")
	ErrScrapeFailed        = errors.New("failed to fetch reddit profile")
	ErrCredentialsRejected = errors.New("could not verify the account credentials")
	ErrNoCredentials       = errors.New("no session cookie or bearer token to verify")
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxNotesLength  = model.MaxNotesLength
)

// AccountStore persists Reddit accounts.
type AccountStore interface {
	UpsertAccount(ctx context.Context, acc *model.RedditAccount) (bool, error)
	GetAccount(ctx context.Context, ownerID, id string) (*model.RedditAccount, error)
	ListAccounts(ctx context.Context, filter repository.AccountFilter, cursor string, limit int) ([]*model.RedditAccount, string, error)
	UpdateAccount(ctx context.Context, acc *model.RedditAccount) error
	UpdateAccountStats(ctx context.Context, acc *model.RedditAccount) error
	SetAccountScrapeError(ctx context.Context, id, message string, at time.Time) error
	DeleteAccount(ctx context.Context, ownerID, id string) error
	GetAccountSummary(ctx context.Context, ownerID string) (*model.AccountSummary, error)
}

// ProfileScraper reads profile statistics and checks credentials.
type ProfileScraper interface {
	FetchProfile(ctx context.Context, username string) (*model.ProfileStats, error)
	ExtractUsername(ctx context.Context, creds reddit.Credentials) (*reddit.Identity, error)
}

// Authorizer checks cabinet permissions.
type Authorizer interface {
	Authorize(ctx context.Context, actorID, ownerID string, need model.Permissions) error
}

// SheetDownloader fetches a Google Sheet as an xlsx workbook.
type SheetDownloader interface {
	Download(ctx context.Context, sheetURL string) ([]byte, error)
}

// AccountImporter bulk-loads accounts from a workbook.
type AccountImporter interface {
	ImportXLSX(ctx context.Context, ownerID string, r io.Reader) (*importer.Result, error)
	ImportBytes(ctx context.Context, ownerID string, data []byte) (*importer.Result, error)
}

// AccountConfig configures an AccountService.
type AccountConfig struct {
	Store    AccountStore
	Cabinets Authorizer
	Scraper  ProfileScraper
	Importer AccountImporter
	Sheets   SheetDownloader
	Metrics  metrics.Recorder
	Logger   *slog.Logger
}

// AccountService manages the Reddit accounts of a cabinet.
type AccountService struct {
	store    AccountStore
	cabinets Authorizer
	scraper  ProfileScraper
	importer AccountImporter
	sheets   SheetDownloader
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewAccountService creates an AccountService.
func NewAccountService(cfg AccountConfig) *AccountService {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AccountService{
		store:    cfg.Store,
		cabinets: cfg.Cabinets,
		scraper:  cfg.Scraper,
		importer: cfg.Importer,
		sheets:   cfg.Sheets,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "accounts"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ListAccountsInput defines input for listing accounts.
type ListAccountsInput struct {
	ActorID string
	OwnerID string
	Cursor  string
	Limit   int
	Status  string
	Search  string
}

// ListAccountsOutput is one page of accounts.
type ListAccountsOutput struct {
	Accounts   []*model.RedditAccount
	NextCursor string
	HasMore    bool
}

// List returns a page of the cabinet's accounts.
func (s *AccountService) List(ctx context.Context, input ListAccountsInput) (*ListAccountsOutput, error) {
	if err := s.cabinets.Authorize(ctx, input.ActorID, input.OwnerID, model.NeedView); err != nil {
		return nil, err
	}
	if input.Limit <= 0 || input.Limit > maxPageSize {
		input.Limit = defaultPageSize
	}

	status := model.AccountStatus(input.Status)
	if status != "" && !status.IsValid() {
		return nil, ErrInvalidStatus
	}

	accounts, next, err := s.store.ListAccounts(ctx, repository.AccountFilter{
		OwnerID: input.OwnerID,
		Status:  status,
		Search:  input.Search,
	}, input.Cursor, input.Limit)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			return nil, ErrInvalidCursor
		}
		return nil, err
	}

	return &ListAccountsOutput{Accounts: accounts, NextCursor: next, HasMore: next != ""}, nil
}

// Get returns one account of the cabinet.
func (s *AccountService) Get(ctx context.Context, actorID, ownerID, id string) (*model.RedditAccount, error) {
	if err := s.cabinets.Authorize(ctx, actorID, ownerID, model.NeedView); err != nil {
		return nil, err
	}
	return s.load(ctx, ownerID, id)
}

// Summary aggregates the cabinet's accounts.
func (s *AccountService) Summary(ctx context.Context, actorID, ownerID string) (*model.AccountSummary, error) {
	if err := s.cabinets.Authorize(ctx, actorID, ownerID, model.NeedView); err != nil {
		return nil, err
	}
	return s.store.GetAccountSummary(ctx, ownerID)
}

// CreateAccountInput defines input for adding an account.
type CreateAccountInput struct {
	ActorID       string
	OwnerID       string
	RedditURL     string
	Login         string
	Password      string
	SessionCookie string
	BearerToken   string
	Notes         string
	Status        string
}

// Create adds an account, or updates the one with the same reddit URL.
// Returns true when a new account was created.
func (s *AccountService) Create(ctx context.Context, input CreateAccountInput) (*model.RedditAccount, bool, error) {
	if err := s.cabinets.Authorize(ctx, input.ActorID, input.OwnerID, model.NeedEdit); err != nil {
		return nil, false, err
	}

	redditURL, username, err := reddit.NormalizeAccountURL(input.RedditURL)
	if err != nil {
		return nil, false, ErrInvalidAccountURL
	}
	status := model.AccountStatus(strings.ToLower(input.Status))
	if status != "" && !status.IsValid() {
		return nil, false, ErrInvalidStatus
	}

	acc := &model.RedditAccount{
		ID:            newID(),
		UserID:        input.OwnerID,
		RedditURL:     redditURL,
		Username:      username,
		Login:         strings.TrimSpace(input.Login),
		Password:      input.Password,
		SessionCookie: strings.TrimSpace(input.SessionCookie),
		BearerToken:   strings.TrimSpace(input.BearerToken),
		Notes:         truncate(input.Notes, maxNotesLength),
		Status:        status,
	}

	created, err := s.store.UpsertAccount(ctx, acc)
	if err != nil {
		return nil, false, err
	}

	s.logger.Info("account saved",
		slog.String("account_id", acc.ID),
		slog.String("owner_id", acc.UserID),
		slog.Bool("created", created),
	)
	return acc, created, nil
}

// UpdateAccountInput defines a partial account update. Nil fields are kept.
type UpdateAccountInput struct {
	ActorID       string
	OwnerID       string
	ID            string
	RedditURL     *string
	Login         *string
	Password      *string
	SessionCookie *string
	BearerToken   *string
	Notes         *string
	Status        *string
}

// Update changes an account's editable fields.
func (s *AccountService) Update(ctx context.Context, input UpdateAccountInput) (*model.RedditAccount, error) {
	if err := s.cabinets.Authorize(ctx, input.ActorID, input.OwnerID, model.NeedEdit); err != nil {
		return nil, err
	}
	acc, err := s.load(ctx, input.OwnerID, input.ID)
	if err != nil {
		return nil, err
	}

	if input.RedditURL != nil {
		redditURL, username, err := reddit.NormalizeAccountURL(*input.RedditURL)
		if err != nil {
			return nil, ErrInvalidAccountURL
		}
		acc.RedditURL, acc.Username = redditURL, username
	}
	if input.Status != nil {
		status := model.AccountStatus(strings.ToLower(*input.Status))
		if !status.IsValid() {
			return nil, ErrInvalidStatus
		}
		acc.Status = status
	}
	if input.Login != nil {
		acc.Login = strings.TrimSpace(*input.Login)
	}
	if input.Password != nil {
		acc.Password = *input.Password
	}
	if input.SessionCookie != nil {
		acc.SessionCookie = strings.TrimSpace(*input.SessionCookie)
	}
	if input.BearerToken != nil {
		acc.BearerToken = strings.TrimSpace(*input.BearerToken)
	}
	if input.Notes != nil {
		acc.Notes = truncate(*input.Notes, maxNotesLength)
	}

	if err := s.store.UpdateAccount(ctx, acc); err != nil {
		return nil, mapAccountError(err)
	}
	return acc, nil
}

// Delete removes an account. Requires manage rights.
func (s *AccountService) Delete(ctx context.Context, actorID, ownerID, id string) error {
	if err := s.cabinets.Authorize(ctx, actorID, ownerID, model.NeedManage); err != nil {
		return err
	}
	if err := s.store.DeleteAccount(ctx, ownerID, id); err != nil {
		return mapAccountError(err)
	}
	s.logger.Info("account deleted", slog.String("account_id", id), slog.String("owner_id", ownerID))
	return nil
}

// Refresh scrapes the account's profile and stores the statistics.
func (s *AccountService) Refresh(ctx context.Context, actorID, ownerID, id string) (*model.RedditAccount, error) {
	if err := s.cabinets.Authorize(ctx, actorID, ownerID, model.NeedEdit); err != nil {
		return nil, err
	}
	acc, err := s.load(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := s.RefreshAccount(ctx, acc); err != nil {
		return acc, err
	}
	return acc, nil
}

// RefreshAccount scrapes acc's profile and stores the result. A failed scrape
// is recorded on the account and returned wrapped in ErrScrapeFailed.
func (s *AccountService) RefreshAccount(ctx context.Context, acc *model.RedditAccount) error {
	now := s.now()

	stats, err := s.scraper.FetchProfile(ctx, acc.Username)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.metrics.IncAccountScrape("failed")
		acc.ScrapeError = err.Error()
		acc.LastScrapedAt = &now
		if storeErr := s.store.SetAccountScrapeError(ctx, acc.ID, acc.ScrapeError, now); storeErr != nil {
			s.logger.Error("failed to record scrape error",
				slog.String("account_id", acc.ID),
				slog.String("error", storeErr.Error()),
			)
		}
		return fmt.Errorf("%w: %v", ErrScrapeFailed, err)
	}

	acc.ApplyStats(stats, now)
	if err := s.store.UpdateAccountStats(ctx, acc); err != nil {
		return mapAccountError(err)
	}

	if stats.IsSuspended {
		s.metrics.IncAccountScrape("suspended")
	} else {
		s.metrics.IncAccountScrape("success")
	}
	return nil
}

// VerifyInput defines input for checking an account's credentials.
// Empty credentials fall back to the stored ones.
type VerifyInput struct {
	ActorID       string
	OwnerID       string
	ID            string
	SessionCookie string
	BearerToken   string
}

// Verify detects which Reddit user the credentials log in as and stores the
// username. Supplied credentials are saved once they verify.
func (s *AccountService) Verify(ctx context.Context, input VerifyInput) (*model.RedditAccount, *reddit.Identity, error) {
	if err := s.cabinets.Authorize(ctx, input.ActorID, input.OwnerID, model.NeedEdit); err != nil {
		return nil, nil, err
	}
	acc, err := s.load(ctx, input.OwnerID, input.ID)
	if err != nil {
		return nil, nil, err
	}

	creds := reddit.Credentials{Cookie: acc.SessionCookie, BearerToken: acc.BearerToken}
	if c := strings.TrimSpace(input.SessionCookie); c != "" {
		creds.Cookie = c
	}
	if t := strings.TrimSpace(input.BearerToken); t != "" {
		creds.BearerToken = t
	}
	if creds.Cookie == "" && creds.BearerToken == "" {
		return nil, nil, ErrNoCredentials
	}

	identity, err := s.scraper.ExtractUsername(ctx, creds)
	if err != nil {
		if errors.Is(err, reddit.ErrCredentialsRejected) {
			return nil, nil, fmt.Errorf("%w: %v", ErrCredentialsRejected, err)
		}
		return nil, nil, err
	}

	acc.SessionCookie = creds.Cookie
	acc.BearerToken = creds.BearerToken
	acc.Username = identity.Username
	acc.RedditURL = reddit.AccountURL(identity.Username)
	if acc.Status == model.AccountStatusUnverified || acc.Status == "" {
		acc.Status = model.AccountStatusActive
	}
	if err := s.store.UpdateAccount(ctx, acc); err != nil {
		return nil, nil, mapAccountError(err)
	}

	s.logger.Info("account verified",
		slog.String("account_id", acc.ID),
		slog.String("method", identity.Method),
	)
	return acc, identity, nil
}

// ImportXLSX bulk-loads accounts from an uploaded workbook.
func (s *AccountService) ImportXLSX(ctx context.Context, actorID, ownerID string, r io.Reader) (*importer.Result, error) {
	if err := s.cabinets.Authorize(ctx, actorID, ownerID, model.NeedEdit); err != nil {
		return nil, err
	}
	return s.importer.ImportXLSX(ctx, ownerID, r)
}

// ImportSheet bulk-loads accounts from a public Google Sheet.
func (s *AccountService) ImportSheet(ctx context.Context, actorID, ownerID, sheetURL string) (*importer.Result, error) {
	if err := s.cabinets.Authorize(ctx, actorID, ownerID, model.NeedEdit); err != nil {
		return nil, err
	}
	data, err := s.sheets.Download(ctx, sheetURL)
	if err != nil {
		return nil, err
	}
	return s.importer.ImportBytes(ctx, ownerID, data)
}

func (s *AccountService) load(ctx context.Context, ownerID, id string) (*model.RedditAccount, error) {
	acc, err := s.store.GetAccount(ctx, ownerID, id)
	if err != nil {
		return nil, mapAccountError(err)
	}
	return acc, nil
}

func mapAccountError(err error) error {
	switch {
	case errors.Is(err, repository.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, repository.ErrAccountExists):
		return ErrAccountExists
	default:
		return err
	}
}

// truncate trims s and cuts it to at most n runes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
