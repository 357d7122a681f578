package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/repository"
)

// Settings errors.
var (
	ErrInvalidTheme    = errors.New("theme must be light, dark or system")
	ErrInvalidLanguage = errors.New("language must be 2-5 characters")
	ErrInvalidModel    = errors.New("ollama model name is too long")
	ErrPromptTooLong   = errors.New("comment prompt must be at most 2000 characters")
)

const (
	maxPromptLength = 2000
	maxModelLength  = 100
)

// SettingsStore persists user preferences.
type SettingsStore interface {
	GetSettings(ctx context.Context, userID string) (*model.UserSettings, error)
	SaveSettings(ctx context.Context, s *model.UserSettings) error
}

// SettingsService reads and writes user preferences.
type SettingsService struct {
	store        SettingsStore
	defaultModel string
}

// NewSettingsService creates a SettingsService. defaultModel is the Ollama
// model users start with.
func NewSettingsService(store SettingsStore, defaultModel string) *SettingsService {
	return &SettingsService{store: store, defaultModel: defaultModel}
}

// Get returns the saved settings, or the defaults when none were saved.
func (s *SettingsService) Get(ctx context.Context, userID string) (*model.UserSettings, error) {
	settings, err := s.store.GetSettings(ctx, userID)
	if errors.Is(err, repository.ErrSettingsNotFound) {
		return model.DefaultSettings(userID, s.defaultModel), nil
	}
	if err != nil {
		return nil, err
	}
	if settings.OllamaModel == "" {
		settings.OllamaModel = s.defaultModel
	}
	if settings.CommentPrompt == "" {
		settings.CommentPrompt = model.DefaultCommentPrompt
	}
	return settings, nil
}

// UpdateSettingsInput holds the fields to change. Nil fields keep their
// current value.
type UpdateSettingsInput struct {
	UserID        string
	Theme         *string
	Language      *string
	OllamaModel   *string
	CommentPrompt *string
	NotifyEmail   *bool
}

// Update validates and saves settings.
func (s *SettingsService) Update(ctx context.Context, input UpdateSettingsInput) (*model.UserSettings, error) {
	settings, err := s.Get(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	if input.Theme != nil {
		theme := strings.ToLower(strings.TrimSpace(*input.Theme))
		if theme != model.ThemeLight && theme != model.ThemeDark && theme != model.ThemeSystem {
			return nil, ErrInvalidTheme
		}
		settings.Theme = theme
	}
	if input.Language != nil {
		lang := strings.TrimSpace(*input.Language)
		if n := utf8.RuneCountInString(lang); n < 2 || n > 5 {
			return nil, ErrInvalidLanguage
		}
		settings.Language = lang
	}
	if input.OllamaModel != nil {
		name := strings.TrimSpace(*input.OllamaModel)
		if len(name) > maxModelLength {
			return nil, ErrInvalidModel
		}
		if name == "" {
			name = s.defaultModel
		}
		settings.OllamaModel = name
	}
	if input.CommentPrompt != nil {
		prompt := strings.TrimSpace(*input.CommentPrompt)
		if utf8.RuneCountInString(prompt) > maxPromptLength {
			return nil, ErrPromptTooLong
		}
		if prompt == "" {
			prompt = model.DefaultCommentPrompt
		}
		settings.CommentPrompt = prompt
	}
	if input.NotifyEmail != nil {
		settings.NotifyEmail = *input.NotifyEmail
	}

	settings.UserID = input.UserID
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return nil, err
	}
	return settings, nil
}
