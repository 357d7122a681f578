package model

import (
	"strings"
	"time"
)

// AccountStatus is the lifecycle marker of a tracked Reddit account.
type AccountStatus string

const (
	AccountStatusActive     AccountStatus = "active"
	AccountStatusSuspended  AccountStatus = "suspended"
	AccountStatusBanned     AccountStatus = "banned"
	AccountStatusUnverified AccountStatus = "unverified"
)

// IsValid reports whether s is a known status.
func (s AccountStatus) IsValid() bool {
	switch s {
	case AccountStatusActive, AccountStatusSuspended, AccountStatusBanned, AccountStatusUnverified:
		return true
	}
	return false
}

// MaxNotesLength is the most runes of notes kept on an account or subreddit.
const MaxNotesLength = 2000

// TrimNotes trims surrounding space from notes and cuts them to
// MaxNotesLength runes.
func TrimNotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= MaxNotesLength {
		return s
	}
	if r := []rune(s); len(r) > MaxNotesLength {
		return string(r[:MaxNotesLength])
	}
	return s
}

// RedditAccount is a Reddit account stored in a user's cabinet together with
// its credentials and the last scraped profile statistics.
type RedditAccount struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	RedditURL string `json:"reddit_url"`
	Username  string `json:"username"`

	// Credentials. Never serialized.
	Login         string `json:"-"`
	Password      string `json:"-"`
	SessionCookie string `json:"-"`
	BearerToken   string `json:"-"`

	Status AccountStatus `json:"status"`
	Notes  string        `json:"notes"`

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

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProfileStats is the result of scraping a Reddit profile.
type ProfileStats struct {
	Username         string
	PostKarma        int64
	CommentKarma     int64
	TotalKarma       int64
	Followers        int64
	PostsCount       int64
	IsSuspended      bool
	AvatarURL        string
	AccountCreatedAt *time.Time
}

// ApplyStats copies scraped statistics onto the account.
func (a *RedditAccount) ApplyStats(stats *ProfileStats, scrapedAt time.Time) {
	a.PostKarma = stats.PostKarma
	a.CommentKarma = stats.CommentKarma
	a.TotalKarma = stats.TotalKarma
	a.Followers = stats.Followers
	a.PostsCount = stats.PostsCount
	a.IsSuspended = stats.IsSuspended
	if stats.AvatarURL != "" {
		a.AvatarURL = stats.AvatarURL
	}
	if stats.AccountCreatedAt != nil {
		a.AccountCreatedAt = stats.AccountCreatedAt
	}
	if stats.IsSuspended {
		a.Status = AccountStatusSuspended
	} else if a.Status == AccountStatusUnverified || a.Status == "" {
		a.Status = AccountStatusActive
	}
	a.LastScrapedAt = &scrapedAt
	a.ScrapeError = ""
}

// AccountSummary aggregates a cabinet's accounts.
type AccountSummary struct {
	Accounts   int64                   `json:"accounts"`
	TotalKarma int64                   `json:"total_karma"`
	Followers  int64                   `json:"followers"`
	PostsCount int64                   `json:"posts_count"`
	ByStatus   map[AccountStatus]int64 `json:"by_status"`
}
