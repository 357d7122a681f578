package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/cabinet/cabinet/internal/model"
)

// ErrAPIKeyNotFound is returned when no key, or no active key, matches.
var ErrAPIKeyNotFound = errors.New("API key not found")

const selectAPIKey = `
	SELECT id, user_id, key_hash, key_prefix, scopes, name, revoked_at, last_used_at, created_at
	FROM api_keys`

// CreateAPIKey stores a newly issued key. Only the hash of the secret is
// persisted.
func (r *Repository) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO api_keys (id, user_id, key_hash, key_prefix, scopes, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.UserID, key.KeyHash, key.KeyPrefix, pq.Array(key.Scopes), key.Name, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create API key: %w", err)
	}
	return nil
}

// GetAPIKeyByID returns a key, revoked or not.
func (r *Repository) GetAPIKeyByID(ctx context.Context, id string) (*model.APIKey, error) {
	rows, _ := r.pool.Query(ctx, selectAPIKey+` WHERE id = $1`, id)
	key, err := pgx.CollectOneRow(rows, collectAPIKey)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrAPIKeyNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get API key: %w", err)
	}
	return key, nil
}

// GetAPIKeysByPrefix returns the active keys sharing a public prefix. The
// caller verifies the secret against each candidate.
func (r *Repository) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]*model.APIKey, error) {
	return r.collectAPIKeys(ctx, selectAPIKey+` WHERE key_prefix = $1 AND revoked_at IS NULL`, prefix)
}

// ListAPIKeysByUserID returns all of a user's keys, newest first.
func (r *Repository) ListAPIKeysByUserID(ctx context.Context, userID string) ([]*model.APIKey, error) {
	return r.collectAPIKeys(ctx, selectAPIKey+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *Repository) collectAPIKeys(ctx context.Context, query string, arg any) ([]*model.APIKey, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query API keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, collectAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to scan API keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey marks one of userID's active keys revoked.
func (r *Repository) RevokeAPIKey(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE api_keys SET revoked_at = $3
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		id, userID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to revoke API key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

// UpdateAPIKeyLastUsed stamps a key after successful authentication.
func (r *Repository) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update API key last used: %w", err)
	}
	return nil
}

func collectAPIKey(row pgx.CollectableRow) (*model.APIKey, error) {
	var k model.APIKey
	err := row.Scan(
		&k.ID, &k.UserID, &k.KeyHash, &k.KeyPrefix, pq.Array(&k.Scopes),
		&k.Name, &k.RevokedAt, &k.LastUsedAt, &k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &k, nil
}
