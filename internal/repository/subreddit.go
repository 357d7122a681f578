package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cabinet/cabinet/internal/model"
	"github.com/jackc/pgx/v5"
)

// Common errors for subreddit repository operations.
var (
	ErrTabNotFound       = errors.New("tab not found")
	ErrTabExists         = errors.New("tab name already exists")
	ErrSubredditNotFound = errors.New("subreddit not found")
)

// SubredditFilter narrows ListSubreddits. NoTab selects subreddits outside
// every tab and takes precedence over TabID.
type SubredditFilter struct {
	UserID string
	TabID  string
	NoTab  bool
}

// ListTabs returns the user's tabs ordered by position.
func (r *Repository) ListTabs(ctx context.Context, userID string) ([]*model.SubredditTab, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, name, position, created_at
		FROM subreddit_tabs
		WHERE user_id = $1
		ORDER BY position, created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tabs: %w", err)
	}
	defer rows.Close()

	var tabs []*model.SubredditTab
	for rows.Next() {
		tab, err := scanTab(rows)
		if err != nil {
			return nil, err
		}
		tabs = append(tabs, tab)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tabs: %w", err)
	}
	return tabs, nil
}

// GetTab returns one of the user's tabs.
func (r *Repository) GetTab(ctx context.Context, userID, id string) (*model.SubredditTab, error) {
	return scanTab(r.pool.QueryRow(ctx, `
		SELECT id, user_id, name, position, created_at
		FROM subreddit_tabs
		WHERE user_id = $1 AND id = $2
	`, userID, id))
}

// CreateTab appends a tab after the user's last one. tab.Position is set.
func (r *Repository) CreateTab(ctx context.Context, tab *model.SubredditTab) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO subreddit_tabs (id, user_id, name, position, created_at)
		SELECT $1, $2, $3, COALESCE(MAX(position) + 1, 0), $4
		FROM subreddit_tabs
		WHERE user_id = $2
		RETURNING position
	`, tab.ID, tab.UserID, tab.Name, tab.CreatedAt).Scan(&tab.Position)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTabExists
		}
		return fmt.Errorf("failed to create tab: %w", err)
	}
	return nil
}

// RenameTab changes a tab's name.
func (r *Repository) RenameTab(ctx context.Context, userID, id, name string) error {
	result, err := r.pool.Exec(ctx, `UPDATE subreddit_tabs SET name = $3 WHERE user_id = $1 AND id = $2`, userID, id, name)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTabExists
		}
		return fmt.Errorf("failed to rename tab: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTabNotFound
	}
	return nil
}

// ReorderTabs assigns positions following the order of ids. Every id must be
// one of the user's tabs; tabs not listed keep their relative order after
// the listed ones.
func (r *Repository) ReorderTabs(ctx context.Context, userID string, ids []string) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		for i, id := range ids {
			result, err := tx.Exec(ctx, `UPDATE subreddit_tabs SET position = $3 WHERE user_id = $1 AND id = $2`, userID, id, i)
			if err != nil {
				return fmt.Errorf("failed to reorder tabs: %w", err)
			}
			if result.RowsAffected() == 0 {
				return ErrTabNotFound
			}
		}

		_, err := tx.Exec(ctx, `
			UPDATE subreddit_tabs t
			SET position = $2 + sub.rn
			FROM (
				SELECT id, ROW_NUMBER() OVER (ORDER BY position, created_at) - 1 AS rn
				FROM subreddit_tabs
				WHERE user_id = $1 AND NOT (id = ANY($3))
			) sub
			WHERE t.id = sub.id
		`, userID, len(ids), ids)
		if err != nil {
			return fmt.Errorf("failed to reorder remaining tabs: %w", err)
		}
		return nil
	})
}

// DeleteTab removes a tab. Its subreddits fall back to no tab.
func (r *Repository) DeleteTab(ctx context.Context, userID, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM subreddit_tabs WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete tab: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTabNotFound
	}
	return nil
}

const subredditColumns = `id, user_id, tab_id, url, name, subscribers, notes, created_at, updated_at`

// UpsertSubreddit inserts a subreddit or updates the row with the same
// (user_id, url). A nil TabID, empty Notes or zero Subscribers keeps the
// stored value. Returns true when a new row was inserted.
func (r *Repository) UpsertSubreddit(ctx context.Context, sub *model.Subreddit) (bool, error) {
	query := `
		INSERT INTO subreddits (id, user_id, tab_id, url, name, subscribers, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (user_id, url) DO UPDATE SET
			name        = EXCLUDED.name,
			tab_id      = COALESCE(EXCLUDED.tab_id, subreddits.tab_id),
			subscribers = CASE WHEN EXCLUDED.subscribers > 0 THEN EXCLUDED.subscribers ELSE subreddits.subscribers END,
			notes       = COALESCE(NULLIF(EXCLUDED.notes, ''), subreddits.notes),
			updated_at  = EXCLUDED.updated_at
		RETURNING ` + subredditColumns + `, (xmax = 0) AS inserted
	`

	var inserted bool
	err := r.pool.QueryRow(ctx, query,
		sub.ID,
		sub.UserID,
		sub.TabID,
		sub.URL,
		sub.Name,
		sub.Subscribers,
		sub.Notes,
		time.Now().UTC(),
	).Scan(append(subredditScanDest(sub), &inserted)...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, ErrTabNotFound
		}
		return false, fmt.Errorf("failed to upsert subreddit: %w", err)
	}
	return inserted, nil
}

// GetSubreddit returns one of the user's subreddits.
func (r *Repository) GetSubreddit(ctx context.Context, userID, id string) (*model.Subreddit, error) {
	var sub model.Subreddit
	err := r.pool.QueryRow(ctx, `SELECT `+subredditColumns+` FROM subreddits WHERE user_id = $1 AND id = $2`, userID, id).
		Scan(subredditScanDest(&sub)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubredditNotFound
		}
		return nil, fmt.Errorf("failed to get subreddit: %w", err)
	}
	return &sub, nil
}

// ListSubreddits returns the user's subreddits by name.
func (r *Repository) ListSubreddits(ctx context.Context, filter SubredditFilter) ([]*model.Subreddit, error) {
	query := `SELECT ` + subredditColumns + ` FROM subreddits WHERE user_id = $1`
	args := []any{filter.UserID}

	switch {
	case filter.NoTab:
		query += ` AND tab_id IS NULL`
	case filter.TabID != "":
		query += ` AND tab_id = $2`
		args = append(args, filter.TabID)
	}
	query += ` ORDER BY LOWER(name), id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list subreddits: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subreddit
	for rows.Next() {
		var sub model.Subreddit
		if err := rows.Scan(subredditScanDest(&sub)...); err != nil {
			return nil, fmt.Errorf("failed to scan subreddit: %w", err)
		}
		subs = append(subs, &sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subreddits: %w", err)
	}
	return subs, nil
}

// UpdateSubreddit writes a subreddit's notes, tab and subscriber count.
func (r *Repository) UpdateSubreddit(ctx context.Context, sub *model.Subreddit) error {
	sub.UpdatedAt = time.Now().UTC()
	result, err := r.pool.Exec(ctx, `
		UPDATE subreddits
		SET tab_id = $3, notes = $4, subscribers = $5, updated_at = $6
		WHERE user_id = $1 AND id = $2
	`, sub.UserID, sub.ID, sub.TabID, sub.Notes, sub.Subscribers, sub.UpdatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrTabNotFound
		}
		return fmt.Errorf("failed to update subreddit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSubredditNotFound
	}
	return nil
}

// DeleteSubreddit removes one of the user's subreddits.
func (r *Repository) DeleteSubreddit(ctx context.Context, userID, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM subreddits WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete subreddit: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrSubredditNotFound
	}
	return nil
}

func scanTab(row pgx.Row) (*model.SubredditTab, error) {
	var tab model.SubredditTab
	if err := row.Scan(&tab.ID, &tab.UserID, &tab.Name, &tab.Position, &tab.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTabNotFound
		}
		return nil, fmt.Errorf("failed to scan tab: %w", err)
	}
	return &tab, nil
}

func subredditScanDest(sub *model.Subreddit) []any {
	return []any{
		&sub.ID,
		&sub.UserID,
		&sub.TabID,
		&sub.URL,
		&sub.Name,
		&sub.Subscribers,
		&sub.Notes,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	}
}
