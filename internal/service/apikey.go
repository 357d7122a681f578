package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/repository"
)

// API key errors.
var (
	ErrInvalidScope   = errors.New("invalid scope")
	ErrAPIKeyNotFound = errors.New("api key not found or already revoked")
	ErrKeyNameTooLong = errors.New("key name must be at most 100 characters")
)

const maxKeyNameLength = 100

// APIKeyStore persists extension API keys.
type APIKeyStore interface {
	CreateAPIKey(ctx context.Context, key *model.APIKey) error
	GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error)
	ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error)
	RevokeAPIKey(ctx context.Context, userID, id string) error
}

// PrincipalInvalidator drops cached principals of a revoked key.
type PrincipalInvalidator interface {
	InvalidateKeyPrincipal(ctx context.Context, keyID string) error
}

// APIKeyService issues and revokes the keys the browser extension uses.
type APIKeyService struct {
	store  APIKeyStore
	cache  PrincipalInvalidator
	env    string
	logger *slog.Logger
	now    func() time.Time
}

// NewAPIKeyService creates an APIKeyService. env is "live" or "test" and is
// embedded in generated keys. cache may be nil.
func NewAPIKeyService(store APIKeyStore, cache PrincipalInvalidator, env string, logger *slog.Logger) *APIKeyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIKeyService{
		store:  store,
		cache:  cache,
		env:    env,
		logger: logger.With("component", "api_keys"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreatedKey is a new key together with its plaintext, which is never
// stored and shown once.
type CreatedKey struct {
	Key       *model.APIKey
	Plaintext string
}

// Create issues a key for userID. Without scopes the key gets the
// extension scope.
func (s *APIKeyService) Create(ctx context.Context, userID, name string, scopes []string) (*CreatedKey, error) {
	name = strings.TrimSpace(name)
	if len(name) > maxKeyNameLength {
		return nil, ErrKeyNameTooLong
	}
	for _, scope := range scopes {
		if !slices.Contains(model.ValidScopes, scope) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidScope, scope)
		}
	}
	if len(scopes) == 0 {
		scopes = []string{model.ScopeExtension}
	}
	scopes = slices.Clone(scopes)
	slices.Sort(scopes)
	scopes = slices.Compact(scopes)

	generated, err := auth.GenerateAPIKey(s.env)
	if err != nil {
		return nil, err
	}

	key := &model.APIKey{
		ID:        newID(),
		UserID:    userID,
		KeyHash:   generated.Hash,
		KeyPrefix: generated.Prefix,
		Scopes:    scopes,
		Name:      name,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, err
	}

	s.logger.Info("API key created",
		slog.String("key_id", key.ID),
		slog.String("key_prefix", key.KeyPrefix),
		slog.String("user_id", userID),
	)
	return &CreatedKey{Key: key, Plaintext: generated.Plaintext}, nil
}

// List returns the user's keys, revoked ones included.
func (s *APIKeyService) List(ctx context.Context, userID string) ([]*model.APIKey, error) {
	return s.store.ListAPIKeysByUserID(ctx, userID)
}

// Revoke disables a key immediately, including cached authentications.
func (s *APIKeyService) Revoke(ctx context.Context, userID, id string) error {
	if err := s.store.RevokeAPIKey(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return ErrAPIKeyNotFound
		}
		return err
	}

	if s.cache != nil {
		if err := s.cache.InvalidateKeyPrincipal(ctx, id); err != nil {
			s.logger.Warn("failed to drop cached principal", slog.String("key_id", id), slog.String("error", err.Error()))
		}
	}

	s.logger.Info("API key revoked", slog.String("key_id", id), slog.String("user_id", userID))
	return nil
}

// Rotate replaces a key with a new one carrying the same name and scopes.
func (s *APIKeyService) Rotate(ctx context.Context, userID, id string) (*CreatedKey, error) {
	old, err := s.store.GetAPIKeyByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrAPIKeyNotFound) {
			return nil, ErrAPIKeyNotFound
		}
		return nil, err
	}
	if old.UserID != userID || old.IsRevoked() {
		return nil, ErrAPIKeyNotFound
	}

	created, err := s.Create(ctx, userID, old.Name, old.Scopes)
	if err != nil {
		return nil, err
	}
	if err := s.Revoke(ctx, userID, old.ID); err != nil && !errors.Is(err, ErrAPIKeyNotFound) {
		s.logger.Error("failed to revoke old API key during rotation",
			slog.String("key_id", old.ID),
			slog.String("error", err.Error()),
		)
	}
	return created, nil
}
