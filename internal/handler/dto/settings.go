package dto

// UpdateSettingsRequest represents a partial settings update.
type UpdateSettingsRequest struct {
	Theme         *string `json:"theme,omitempty"`
	Language      *string `json:"language,omitempty"`
	OllamaModel   *string `json:"ollama_model,omitempty"`
	CommentPrompt *string `json:"comment_prompt,omitempty"`
	NotifyEmail   *bool   `json:"notify_email,omitempty"`
}
