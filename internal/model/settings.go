package model

import "time"

// Themes accepted in user settings.
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// UserSettings holds per-user preferences.
type UserSettings struct {
	UserID        string    `json:"-"`
	Theme         string    `json:"theme"`
	Language      string    `json:"language"`
	OllamaModel   string    `json:"ollama_model"`
	CommentPrompt string    `json:"comment_prompt"`
	NotifyEmail   bool      `json:"notify_email"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DefaultSettings returns the settings a user has before saving any.
func DefaultSettings(userID, model string) *UserSettings {
	return &UserSettings{
		UserID:        userID,
		Theme:         ThemeSystem,
		Language:      "en",
		OllamaModel:   model,
		CommentPrompt: DefaultCommentPrompt,
		NotifyEmail:   true,
	}
}

// DefaultCommentPrompt is used when a user has not set their own prompt.
const DefaultCommentPrompt = "Write a short, friendly, on-topic Reddit comment (one or two sentences, no hashtags, no emojis) replying to this post."
