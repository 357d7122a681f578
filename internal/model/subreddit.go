package model

import "time"

// SubredditTab is a user-defined grouping bucket for tracked subreddits.
type SubredditTab struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// Subreddit is a subreddit tracked by a user.
type Subreddit struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	TabID       *string   `json:"tab_id"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Subscribers int64     `json:"subscribers"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SubredditInfo is the result of scraping a subreddit's about page.
type SubredditInfo struct {
	Name        string
	Title       string
	Subscribers int64
}
