package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/reddit"
	"github.com/cabinet/cabinet/internal/repository"
)

// Subreddit errors.
var (
	ErrTabNotFound          = errors.New("tab not found")
	ErrTabExists            = errors.New("a tab with this name already exists")
	ErrInvalidTabName       = errors.New("tab name must be 1-50 characters")
	ErrSubredditNotFound    = errors.New("subreddit not found")
	ErrInvalidSubredditURL  = errors.New("invalid subreddit url or name")
	ErrUnknownSubreddit     = errors.New("subreddit does not exist on reddit")
	ErrSubredditUnavailable = errors.New("failed to fetch subreddit from reddit")
)

const maxTabNameLength = 50

// TabNone selects subreddits outside every tab.
const TabNone = "none"

// SubredditStore persists tabs and tracked subreddits.
type SubredditStore interface {
	ListTabs(ctx context.Context, userID string) ([]*model.SubredditTab, error)
	GetTab(ctx context.Context, userID, id string) (*model.SubredditTab, error)
	CreateTab(ctx context.Context, tab *model.SubredditTab) error
	RenameTab(ctx context.Context, userID, id, name string) error
	ReorderTabs(ctx context.Context, userID string, ids []string) error
	DeleteTab(ctx context.Context, userID, id string) error
	UpsertSubreddit(ctx context.Context, sub *model.Subreddit) (bool, error)
	GetSubreddit(ctx context.Context, userID, id string) (*model.Subreddit, error)
	ListSubreddits(ctx context.Context, filter repository.SubredditFilter) ([]*model.Subreddit, error)
	UpdateSubreddit(ctx context.Context, sub *model.Subreddit) error
	DeleteSubreddit(ctx context.Context, userID, id string) error
}

// SubredditFetcher reads a subreddit's about page.
type SubredditFetcher interface {
	FetchSubreddit(ctx context.Context, name string) (*model.SubredditInfo, error)
}

// SubredditService manages a user's tracked subreddits and their tabs.
type SubredditService struct {
	store   SubredditStore
	fetcher SubredditFetcher
	logger  *slog.Logger
}

// NewSubredditService creates a SubredditService.
func NewSubredditService(store SubredditStore, fetcher SubredditFetcher, logger *slog.Logger) *SubredditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubredditService{store: store, fetcher: fetcher, logger: logger.With("component", "subreddits")}
}

// ListTabs returns the user's tabs in display order.
func (s *SubredditService) ListTabs(ctx context.Context, userID string) ([]*model.SubredditTab, error) {
	return s.store.ListTabs(ctx, userID)
}

// CreateTab appends a tab.
func (s *SubredditService) CreateTab(ctx context.Context, userID, name string) (*model.SubredditTab, error) {
	name, err := validateTabName(name)
	if err != nil {
		return nil, err
	}
	tab := &model.SubredditTab{
		ID:        newID(),
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateTab(ctx, tab); err != nil {
		return nil, mapSubredditError(err)
	}
	return tab, nil
}

// RenameTab changes a tab's name.
func (s *SubredditService) RenameTab(ctx context.Context, userID, id, name string) (*model.SubredditTab, error) {
	name, err := validateTabName(name)
	if err != nil {
		return nil, err
	}
	if err := s.store.RenameTab(ctx, userID, id, name); err != nil {
		return nil, mapSubredditError(err)
	}
	tab, err := s.store.GetTab(ctx, userID, id)
	if err != nil {
		return nil, mapSubredditError(err)
	}
	return tab, nil
}

// ReorderTabs puts the listed tabs first, in order.
func (s *SubredditService) ReorderTabs(ctx context.Context, userID string, ids []string) ([]*model.SubredditTab, error) {
	seen := make(map[string]bool, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if err := s.store.ReorderTabs(ctx, userID, unique); err != nil {
		return nil, mapSubredditError(err)
	}
	return s.store.ListTabs(ctx, userID)
}

// DeleteTab removes a tab. Its subreddits move to no tab.
func (s *SubredditService) DeleteTab(ctx context.Context, userID, id string) error {
	return mapSubredditError(s.store.DeleteTab(ctx, userID, id))
}

// List returns the user's subreddits. tab filters by tab id, or TabNone for
// subreddits outside every tab.
func (s *SubredditService) List(ctx context.Context, userID, tab string) ([]*model.Subreddit, error) {
	filter := repository.SubredditFilter{UserID: userID}
	switch tab {
	case "":
	case TabNone:
		filter.NoTab = true
	default:
		if _, err := s.store.GetTab(ctx, userID, tab); err != nil {
			return nil, mapSubredditError(err)
		}
		filter.TabID = tab
	}
	return s.store.ListSubreddits(ctx, filter)
}

// CreateSubredditInput defines input for tracking a subreddit.
type CreateSubredditInput struct {
	UserID string
	URL    string
	TabID  *string
	Notes  string
}

// Create tracks a subreddit, or updates the one with the same URL. The
// subscriber count is looked up best effort; a subreddit Reddit reports as
// unknown is rejected. Returns true when a new row was created.
func (s *SubredditService) Create(ctx context.Context, input CreateSubredditInput) (*model.Subreddit, bool, error) {
	url, name, err := reddit.NormalizeSubredditURL(input.URL)
	if err != nil {
		return nil, false, ErrInvalidSubredditURL
	}
	if err := s.checkTab(ctx, input.UserID, input.TabID); err != nil {
		return nil, false, err
	}

	sub := &model.Subreddit{
		ID:     newID(),
		UserID: input.UserID,
		TabID:  emptyToNil(input.TabID),
		URL:    url,
		Name:   name,
		Notes:  truncate(input.Notes, maxNotesLength),
	}

	info, err := s.fetcher.FetchSubreddit(ctx, name)
	switch {
	case errors.Is(err, reddit.ErrSubredditNotFound):
		return nil, false, ErrUnknownSubreddit
	case err != nil:
		s.logger.Warn("subreddit lookup failed", slog.String("name", name), slog.String("error", err.Error()))
	default:
		sub.Subscribers = info.Subscribers
		if strings.EqualFold(info.Name, name) {
			sub.Name = info.Name
		}
	}

	created, err := s.store.UpsertSubreddit(ctx, sub)
	if err != nil {
		return nil, false, mapSubredditError(err)
	}
	return sub, created, nil
}

// UpdateSubredditInput defines a partial update. A non-nil TabID moves the
// subreddit; an empty TabID moves it out of every tab.
type UpdateSubredditInput struct {
	UserID string
	ID     string
	Notes  *string
	TabID  *string
}

// Update changes a subreddit's notes or tab.
func (s *SubredditService) Update(ctx context.Context, input UpdateSubredditInput) (*model.Subreddit, error) {
	sub, err := s.store.GetSubreddit(ctx, input.UserID, input.ID)
	if err != nil {
		return nil, mapSubredditError(err)
	}
	if input.TabID != nil {
		if err := s.checkTab(ctx, input.UserID, input.TabID); err != nil {
			return nil, err
		}
		sub.TabID = emptyToNil(input.TabID)
	}
	if input.Notes != nil {
		sub.Notes = truncate(*input.Notes, maxNotesLength)
	}
	if err := s.store.UpdateSubreddit(ctx, sub); err != nil {
		return nil, mapSubredditError(err)
	}
	return sub, nil
}

// Move puts a subreddit in a tab (or no tab for "").
func (s *SubredditService) Move(ctx context.Context, userID, id, tabID string) (*model.Subreddit, error) {
	return s.Update(ctx, UpdateSubredditInput{UserID: userID, ID: id, TabID: &tabID})
}

// Delete stops tracking a subreddit.
func (s *SubredditService) Delete(ctx context.Context, userID, id string) error {
	return mapSubredditError(s.store.DeleteSubreddit(ctx, userID, id))
}

// Refresh re-reads the subscriber count from Reddit.
func (s *SubredditService) Refresh(ctx context.Context, userID, id string) (*model.Subreddit, error) {
	sub, err := s.store.GetSubreddit(ctx, userID, id)
	if err != nil {
		return nil, mapSubredditError(err)
	}

	info, err := s.fetcher.FetchSubreddit(ctx, sub.Name)
	if err != nil {
		if errors.Is(err, reddit.ErrSubredditNotFound) {
			return nil, ErrUnknownSubreddit
		}
		return nil, errors.Join(ErrSubredditUnavailable, err)
	}

	sub.Subscribers = info.Subscribers
	if err := s.store.UpdateSubreddit(ctx, sub); err != nil {
		return nil, mapSubredditError(err)
	}
	return sub, nil
}

// checkTab verifies tabID (when set and non-empty) is one of the user's tabs.
func (s *SubredditService) checkTab(ctx context.Context, userID string, tabID *string) error {
	if tabID == nil || *tabID == "" {
		return nil
	}
	if _, err := s.store.GetTab(ctx, userID, *tabID); err != nil {
		return mapSubredditError(err)
	}
	return nil
}

func validateTabName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxTabNameLength {
		return "", ErrInvalidTabName
	}
	return name, nil
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}

func mapSubredditError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrTabNotFound):
		return ErrTabNotFound
	case errors.Is(err, repository.ErrTabExists):
		return ErrTabExists
	case errors.Is(err, repository.ErrSubredditNotFound):
		return ErrSubredditNotFound
	default:
		return err
	}
}
