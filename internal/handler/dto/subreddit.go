package dto

import (
	"time"

	"github.com/cabinet/cabinet/internal/model"
)

// TabRequest represents the request body for creating or renaming a tab.
type TabRequest struct {
	Name string `json:"name"`
}

// ReorderTabsRequest lists every tab id in the wanted order.
type ReorderTabsRequest struct {
	IDs []string `json:"ids"`
}

// CreateSubredditRequest represents the request body for tracking a subreddit.
type CreateSubredditRequest struct {
	URL   string  `json:"url"`
	TabID *string `json:"tab_id,omitempty"`
	Notes string  `json:"notes,omitempty"`
}

// UpdateSubredditRequest represents a partial subreddit update.
type UpdateSubredditRequest struct {
	Notes *string `json:"notes,omitempty"`
	TabID *string `json:"tab_id,omitempty"`
}

// MoveSubredditRequest moves a subreddit to a tab; an empty id removes it
// from every tab.
type MoveSubredditRequest struct {
	TabID string `json:"tab_id"`
}

// TabResponse represents a tab in API responses.
type TabResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

// SubredditResponse represents a tracked subreddit in API responses.
type SubredditResponse struct {
	ID          string    `json:"id"`
	TabID       *string   `json:"tab_id"`
	URL         string    `json:"url"`
	Name        string    `json:"name"`
	Subscribers int64     `json:"subscribers"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToTabResponse converts a SubredditTab model to TabResponse DTO.
func ToTabResponse(t *model.SubredditTab) TabResponse {
	return TabResponse{ID: t.ID, Name: t.Name, Position: t.Position, CreatedAt: t.CreatedAt}
}

// ToSubredditResponse converts a Subreddit model to SubredditResponse DTO.
func ToSubredditResponse(s *model.Subreddit) SubredditResponse {
	return SubredditResponse{
		ID:          s.ID,
		TabID:       s.TabID,
		URL:         s.URL,
		Name:        s.Name,
		Subscribers: s.Subscribers,
		Notes:       s.Notes,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
