package reddit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cabinet/cabinet/internal/model"
)

// StatsStore caches scraped statistics between requests.
type StatsStore interface {
	GetProfile(ctx context.Context, username string) (*model.ProfileStats, error)
	SetProfile(ctx context.Context, stats *model.ProfileStats) error
	GetSubreddit(ctx context.Context, name string) (*model.SubredditInfo, error)
	SetSubreddit(ctx context.Context, info *model.SubredditInfo) error
	IsSubredditMissing(ctx context.Context, name string) (bool, error)
	SetSubredditMissing(ctx context.Context, name string) error
}

// CachedScraper serves profile and subreddit lookups from a StatsStore and
// falls through to the Client on a miss. Unknown subreddits are negatively
// cached. Store failures are logged and never fail a lookup.
type CachedScraper struct {
	*Client
	store  StatsStore
	logger *slog.Logger
}

// NewCachedScraper wraps client with store.
func NewCachedScraper(client *Client, store StatsStore) *CachedScraper {
	return &CachedScraper{Client: client, store: store, logger: client.logger}
}

// FetchProfile returns cached stats when fresh, otherwise scrapes and caches.
func (s *CachedScraper) FetchProfile(ctx context.Context, username string) (*model.ProfileStats, error) {
	if stats, err := s.store.GetProfile(ctx, username); err == nil {
		return stats, nil
	}

	stats, err := s.Client.FetchProfile(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetProfile(ctx, stats); err != nil {
		s.logger.Warn("failed to cache profile", slog.String("username", username), slog.String("error", err.Error()))
	}
	return stats, nil
}

// FetchSubreddit returns cached subreddit info when fresh, otherwise scrapes
// and caches the result, including a not-found answer.
func (s *CachedScraper) FetchSubreddit(ctx context.Context, name string) (*model.SubredditInfo, error) {
	if missing, err := s.store.IsSubredditMissing(ctx, name); err == nil && missing {
		return nil, ErrSubredditNotFound
	}
	if info, err := s.store.GetSubreddit(ctx, name); err == nil {
		return info, nil
	}

	info, err := s.Client.FetchSubreddit(ctx, name)
	if errors.Is(err, ErrSubredditNotFound) {
		if err := s.store.SetSubredditMissing(ctx, name); err != nil {
			s.logger.Warn("failed to cache missing subreddit", slog.String("name", name), slog.String("error", err.Error()))
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if err := s.store.SetSubreddit(ctx, info); err != nil {
		s.logger.Warn("failed to cache subreddit", slog.String("name", name), slog.String("error", err.Error()))
	}
	return info, nil
}
