package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cabinet/cabinet/internal/model"
	"github.com/jackc/pgx/v5"
)

// ErrSettingsNotFound is returned when the user never saved settings.
var ErrSettingsNotFound = errors.New("settings not found")

// GetSettings returns the user's saved settings.
func (r *Repository) GetSettings(ctx context.Context, userID string) (*model.UserSettings, error) {
	var s model.UserSettings
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, theme, language, ollama_model, comment_prompt, notify_email, updated_at
		FROM user_settings
		WHERE user_id = $1
	`, userID).Scan(&s.UserID, &s.Theme, &s.Language, &s.OllamaModel, &s.CommentPrompt, &s.NotifyEmail, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingsNotFound
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return &s, nil
}

// SaveSettings upserts the user's settings.
func (r *Repository) SaveSettings(ctx context.Context, s *model.UserSettings) error {
	s.UpdatedAt = time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_settings (user_id, theme, language, ollama_model, comment_prompt, notify_email, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			theme = EXCLUDED.theme,
			language = EXCLUDED.language,
			ollama_model = EXCLUDED.ollama_model,
			comment_prompt = EXCLUDED.comment_prompt,
			notify_email = EXCLUDED.notify_email,
			updated_at = EXCLUDED.updated_at
	`, s.UserID, s.Theme, s.Language, s.OllamaModel, s.CommentPrompt, s.NotifyEmail, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
