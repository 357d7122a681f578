package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cabinet/cabinet/internal/model"
)

// Common errors for sync store operations.
var (
	ErrSyncKeyNotFound = errors.New("sync key not found")
	ErrSyncConflict    = errors.New("stored entry is newer")
)

const selectUserData = `SELECT key, value, updated_at, changed_at FROM user_data`

func collectUserData(row pgx.CollectableRow) (*model.SyncEntry, error) {
	var (
		entry model.SyncEntry
		value []byte
	)
	if err := row.Scan(&entry.Key, &value, &entry.UpdatedAt, &entry.ChangedAt); err != nil {
		return nil, err
	}
	entry.Value = value
	return &entry, nil
}

// PutUserData writes an entry unless the stored one has a newer UpdatedAt.
// On conflict the stored entry is returned with ErrSyncConflict.
func (r *Repository) PutUserData(ctx context.Context, userID string, entry *model.SyncEntry) (*model.SyncEntry, error) {
	query := `
		INSERT INTO user_data (user_id, key, value, updated_at, changed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at,
			changed_at = EXCLUDED.changed_at
		WHERE user_data.updated_at <= EXCLUDED.updated_at
	`

	result, err := r.pool.Exec(ctx, query, userID, entry.Key, []byte(entry.Value), entry.UpdatedAt, entry.ChangedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to put user data: %w", err)
	}
	if result.RowsAffected() == 0 {
		current, err := r.GetUserData(ctx, userID, entry.Key)
		if err != nil {
			return nil, err
		}
		return current, ErrSyncConflict
	}
	return entry, nil
}

// GetUserData returns one entry.
func (r *Repository) GetUserData(ctx context.Context, userID, key string) (*model.SyncEntry, error) {
	rows, _ := r.pool.Query(ctx, selectUserData+` WHERE user_id = $1 AND key = $2`, userID, key)
	entry, err := pgx.CollectOneRow(rows, collectUserData)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrSyncKeyNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get user data: %w", err)
	}
	return entry, nil
}

// ListUserData returns the user's entries accepted after since (server unix
// ms). since = 0 returns every entry.
func (r *Repository) ListUserData(ctx context.Context, userID string, since int64) ([]*model.SyncEntry, error) {
	rows, err := r.pool.Query(ctx, selectUserData+`
		WHERE user_id = $1 AND ($2::bigint = 0 OR changed_at > $2::bigint)
		ORDER BY key
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list user data: %w", err)
	}
	entries, err := pgx.CollectRows(rows, collectUserData)
	if err != nil {
		return nil, fmt.Errorf("failed to scan user data: %w", err)
	}
	return entries, nil
}

// DeleteUserData removes one entry.
func (r *Repository) DeleteUserData(ctx context.Context, userID, key string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM user_data WHERE user_id = $1 AND key = $2`, userID, key)
	if err != nil {
		return fmt.Errorf("failed to delete user data: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSyncKeyNotFound
	}
	return nil
}
