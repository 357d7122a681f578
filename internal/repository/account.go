package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cabinet/cabinet/internal/model"
	"github.com/jackc/pgx/v5"
)

// Common errors for reddit account repository operations.
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// AccountFilter defines filters for listing accounts.
type AccountFilter struct {
	OwnerID string
	Status  model.AccountStatus
	Search  string
}

const accountColumns = `id, user_id, reddit_url, username, login, password, session_cookie, bearer_token,
	status, notes, post_karma, comment_karma, total_karma, followers, posts_count, is_suspended,
	avatar_url, account_created_at, last_scraped_at, scrape_error, created_at, updated_at`

// UpsertAccount inserts an account or, when (user_id, reddit_url) already
// exists, overwrites the stored row with every non-empty credential, note
// and status field of acc. acc is refreshed from the stored row.
// Returns true when a new row was inserted.
func (r *Repository) UpsertAccount(ctx context.Context, acc *model.RedditAccount) (bool, error) {
	query := `
		INSERT INTO reddit_accounts (id, user_id, reddit_url, username, login, password, session_cookie,
			bearer_token, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE(NULLIF($9, ''), 'unverified'), $10, $11, $11)
		ON CONFLICT (user_id, reddit_url) DO UPDATE SET
			username       = EXCLUDED.username,
			login          = COALESCE(NULLIF($5, ''), reddit_accounts.login),
			password       = COALESCE(NULLIF($6, ''), reddit_accounts.password),
			session_cookie = COALESCE(NULLIF($7, ''), reddit_accounts.session_cookie),
			bearer_token   = COALESCE(NULLIF($8, ''), reddit_accounts.bearer_token),
			status         = COALESCE(NULLIF($9, ''), reddit_accounts.status),
			notes          = COALESCE(NULLIF($10, ''), reddit_accounts.notes),
			updated_at     = $11
		RETURNING ` + accountColumns + `, (xmax = 0) AS inserted
	`

	now := time.Now().UTC()
	var inserted bool
	dest := append(accountScanDest(acc), &inserted)

	err := r.pool.QueryRow(ctx, query,
		acc.ID,
		acc.UserID,
		acc.RedditURL,
		acc.Username,
		acc.Login,
		acc.Password,
		acc.SessionCookie,
		acc.BearerToken,
		string(acc.Status),
		acc.Notes,
		now,
	).Scan(dest...)
	if err != nil {
		if isForeignKeyViolation(err) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("failed to upsert account: %w", err)
	}

	return inserted, nil
}

// GetAccount retrieves an account inside the owner's cabinet.
func (r *Repository) GetAccount(ctx context.Context, ownerID, id string) (*model.RedditAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM reddit_accounts WHERE id = $1 AND user_id = $2`
	return scanAccount(r.pool.QueryRow(ctx, query, id, ownerID))
}

// GetAccountByID retrieves an account regardless of owner.
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*model.RedditAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM reddit_accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

// ListAccounts retrieves a paginated list of accounts in a cabinet,
// newest first.
func (r *Repository) ListAccounts(ctx context.Context, filter AccountFilter, cursor string, limit int) ([]*model.RedditAccount, string, error) {
	var cursorData *PaginationCursor
	if cursor != "" {
		var err error
		cursorData, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
	}

	query := `SELECT ` + accountColumns + ` FROM reddit_accounts WHERE user_id = $1`
	args := []any{filter.OwnerID}
	argIndex := 2

	if cursorData != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, cursorData.CreatedAt, cursorData.ID)
		argIndex += 2
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(filter.Status))
		argIndex++
	}

	if s := strings.TrimSpace(filter.Search); s != "" {
		query += fmt.Sprintf(" AND (username ILIKE $%d OR notes ILIKE $%d)", argIndex, argIndex)
		args = append(args, "%"+escapeLike(s)+"%")
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1) // Fetch one extra to determine hasMore

	accounts, err := r.queryAccounts(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(accounts) > limit {
		accounts = accounts[:limit]
		last := accounts[len(accounts)-1]
		nextCursor = encodeCursor(&PaginationCursor{ID: last.ID, CreatedAt: last.CreatedAt})
	}

	return accounts, nextCursor, nil
}

// ListStaleAccounts returns accounts not scraped since before olderThan,
// never-scraped accounts first. Banned accounts are skipped.
func (r *Repository) ListStaleAccounts(ctx context.Context, olderThan time.Time, limit int) ([]*model.RedditAccount, error) {
	query := `
		SELECT ` + accountColumns + `
		FROM reddit_accounts
		WHERE status <> 'banned'
		  AND (last_scraped_at IS NULL OR last_scraped_at < $1)
		ORDER BY last_scraped_at NULLS FIRST, id
		LIMIT $2
	`
	return r.queryAccounts(ctx, query, olderThan, limit)
}

// UpdateAccount writes the editable fields of an account.
func (r *Repository) UpdateAccount(ctx context.Context, acc *model.RedditAccount) error {
	query := `
		UPDATE reddit_accounts
		SET reddit_url = $3, username = $4, login = $5, password = $6, session_cookie = $7,
		    bearer_token = $8, status = $9, notes = $10, updated_at = $11
		WHERE id = $1 AND user_id = $2
	`

	acc.UpdatedAt = time.Now().UTC()
	result, err := r.pool.Exec(ctx, query,
		acc.ID,
		acc.UserID,
		acc.RedditURL,
		acc.Username,
		acc.Login,
		acc.Password,
		acc.SessionCookie,
		acc.BearerToken,
		string(acc.Status),
		acc.Notes,
		acc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAccountExists
		}
		return fmt.Errorf("failed to update account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateAccountStats stores scraped statistics and the resulting status.
func (r *Repository) UpdateAccountStats(ctx context.Context, acc *model.RedditAccount) error {
	query := `
		UPDATE reddit_accounts
		SET post_karma = $2, comment_karma = $3, total_karma = $4, followers = $5, posts_count = $6,
		    is_suspended = $7, avatar_url = $8, account_created_at = $9, last_scraped_at = $10,
		    scrape_error = $11, status = $12, username = $13, updated_at = $14
		WHERE id = $1
	`

	acc.UpdatedAt = time.Now().UTC()
	result, err := r.pool.Exec(ctx, query,
		acc.ID,
		acc.PostKarma,
		acc.CommentKarma,
		acc.TotalKarma,
		acc.Followers,
		acc.PostsCount,
		acc.IsSuspended,
		acc.AvatarURL,
		acc.AccountCreatedAt,
		acc.LastScrapedAt,
		acc.ScrapeError,
		string(acc.Status),
		acc.Username,
		acc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update account stats: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// SetAccountScrapeError records a failed scrape.
func (r *Repository) SetAccountScrapeError(ctx context.Context, id, message string, at time.Time) error {
	query := `
		UPDATE reddit_accounts
		SET scrape_error = $2, last_scraped_at = $3, updated_at = $3
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, message, at)
	if err != nil {
		return fmt.Errorf("failed to set scrape error: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DeleteAccount removes an account from the owner's cabinet.
func (r *Repository) DeleteAccount(ctx context.Context, ownerID, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM reddit_accounts WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// GetAccountSummary aggregates the accounts of a cabinet.
func (r *Repository) GetAccountSummary(ctx context.Context, ownerID string) (*model.AccountSummary, error) {
	query := `
		SELECT status, COUNT(*), COALESCE(SUM(total_karma), 0), COALESCE(SUM(followers), 0), COALESCE(SUM(posts_count), 0)
		FROM reddit_accounts
		WHERE user_id = $1
		GROUP BY status
	`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize accounts: %w", err)
	}
	defer rows.Close()

	summary := &model.AccountSummary{ByStatus: make(map[model.AccountStatus]int64)}
	for rows.Next() {
		var (
			status                     string
			count, karma, followers, p int64
		)
		if err := rows.Scan(&status, &count, &karma, &followers, &p); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summary.Accounts += count
		summary.TotalKarma += karma
		summary.Followers += followers
		summary.PostsCount += p
		summary.ByStatus[model.AccountStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summary: %w", err)
	}

	return summary, nil
}

func (r *Repository) queryAccounts(ctx context.Context, query string, args ...any) ([]*model.RedditAccount, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*model.RedditAccount
	for rows.Next() {
		var acc model.RedditAccount
		if err := rows.Scan(accountScanDest(&acc)...); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, &acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

func scanAccount(row pgx.Row) (*model.RedditAccount, error) {
	var acc model.RedditAccount
	if err := row.Scan(accountScanDest(&acc)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &acc, nil
}

func accountScanDest(acc *model.RedditAccount) []any {
	return []any{
		&acc.ID,
		&acc.UserID,
		&acc.RedditURL,
		&acc.Username,
		&acc.Login,
		&acc.Password,
		&acc.SessionCookie,
		&acc.BearerToken,
		&acc.Status,
		&acc.Notes,
		&acc.PostKarma,
		&acc.CommentKarma,
		&acc.TotalKarma,
		&acc.Followers,
		&acc.PostsCount,
		&acc.IsSuspended,
		&acc.AvatarURL,
		&acc.AccountCreatedAt,
		&acc.LastScrapedAt,
		&acc.ScrapeError,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	}
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
