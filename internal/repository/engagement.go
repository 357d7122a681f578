package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cabinet/cabinet/internal/model"
	"github.com/jackc/pgx/v5"
)

// Common errors for engagement task operations.
var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskNotClaimed = errors.New("task is not claimed")
	ErrTaskNotPending = errors.New("task is not pending")
)

const taskColumns = `id, user_id, account_id, action, target_url, comment_text, status, attempt_count,
	max_attempts, next_attempt_at, claimed_at, completed_at, last_error, created_at, updated_at`

// maxTaskErrorLen bounds last_error.
const maxTaskErrorLen = 500

// CreateTask queues a new engagement task.
func (r *Repository) CreateTask(ctx context.Context, task *model.EngagementTask) error {
	query := `
		INSERT INTO engagement_tasks (id, user_id, account_id, action, target_url, comment_text, status,
			attempt_count, max_attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.UserID,
		task.AccountID,
		string(task.Action),
		task.TargetURL,
		task.CommentText,
		string(task.Status),
		task.AttemptCount,
		task.MaxAttempts,
		task.NextAttemptAt,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask returns one of the user's tasks.
func (r *Repository) GetTask(ctx context.Context, userID, id string) (*model.EngagementTask, error) {
	task, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM engagement_tasks WHERE user_id = $1 AND id = $2`, userID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

// ListTasks returns the user's tasks, newest first. An empty status
// returns every status.
func (r *Repository) ListTasks(ctx context.Context, userID string, status model.TaskStatus, limit int) ([]*model.EngagementTask, error) {
	query := `SELECT ` + taskColumns + ` FROM engagement_tasks WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.EngagementTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// ClaimTasks atomically claims up to limit due tasks of the user. Rows locked
// by a concurrent claim are skipped so two claimers never get the same task.
// Edit rights on the account's cabinet are checked again at claim time, so a
// member who lost them can no longer fetch the account's session.
func (r *Repository) ClaimTasks(ctx context.Context, userID string, now time.Time, limit int) ([]*model.ClaimedTask, error) {
	query := `
		WITH due AS (
			SELECT t.id
			FROM engagement_tasks t
			JOIN reddit_accounts a ON a.id = t.account_id
			WHERE t.user_id = $1
			  AND t.status IN ('pending', 'failed')
			  AND t.next_attempt_at <= $2
			  AND (a.user_id = t.user_id OR EXISTS (
				SELECT 1 FROM cabinet_members m
				WHERE m.owner_id = a.user_id
				  AND m.member_id = t.user_id
				  AND (m.can_edit OR m.can_manage)
			  ))
			ORDER BY t.next_attempt_at, t.id
			LIMIT $3
			FOR UPDATE OF t SKIP LOCKED
		)
		UPDATE engagement_tasks t
		SET status = 'claimed', claimed_at = $2, updated_at = $2
		FROM due, reddit_accounts a
		WHERE t.id = due.id AND a.id = t.account_id
		RETURNING t.id, t.user_id, t.account_id, t.action, t.target_url, t.comment_text, t.status,
			t.attempt_count, t.max_attempts, t.next_attempt_at, t.claimed_at, t.completed_at,
			t.last_error, t.created_at, t.updated_at, a.username, a.session_cookie
	`

	rows, err := r.pool.Query(ctx, query, userID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	defer rows.Close()

	var claimed []*model.ClaimedTask
	for rows.Next() {
		var (
			task model.EngagementTask
			c    = model.ClaimedTask{Task: &task}
		)
		dest := append(taskScanDest(&task), &c.Username, &c.SessionCookie)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan claimed task: %w", err)
		}
		claimed = append(claimed, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claimed tasks: %w", err)
	}
	return claimed, nil
}

// CompleteTask marks a claimed task done.
func (r *Repository) CompleteTask(ctx context.Context, userID, id string, at time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE engagement_tasks
		SET status = 'done', attempt_count = attempt_count + 1, completed_at = $3, last_error = '', updated_at = $3
		WHERE user_id = $1 AND id = $2 AND status = 'claimed'
	`, userID, id, at)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotClaimed
	}
	return nil
}

// FailTask records a failed attempt of a claimed task. A retryable failure
// is rescheduled at nextAttemptAt; an exhausted task is closed.
func (r *Repository) FailTask(ctx context.Context, userID, id, errMsg string, nextAttemptAt time.Time, exhausted bool) error {
	status := model.TaskFailed
	var completedAt *time.Time
	now := time.Now().UTC()
	if exhausted {
		status = model.TaskExhausted
		completedAt = &now
	}

	if len(errMsg) > maxTaskErrorLen {
		errMsg = errMsg[:maxTaskErrorLen]
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE engagement_tasks
		SET status = $3,
			attempt_count = attempt_count + 1,
			last_error = $4,
			next_attempt_at = $5,
			claimed_at = NULL,
			completed_at = $6,
			updated_at = $7
		WHERE user_id = $1 AND id = $2 AND status = 'claimed'
	`, userID, id, string(status), errMsg, nextAttemptAt, completedAt, now)
	if err != nil {
		return fmt.Errorf("failed to record task failure: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotClaimed
	}
	return nil
}

// CancelTask deletes a task that has not been claimed yet.
func (r *Repository) CancelTask(ctx context.Context, userID, id string) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM engagement_tasks
		WHERE user_id = $1 AND id = $2 AND status IN ('pending', 'failed')
	`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetTask(ctx, userID, id); err != nil {
		return err
	}
	return ErrTaskNotPending
}

// ReleaseStaleClaims returns tasks claimed before cutoff to the queue. A
// claim that never reported back counts as an attempt, and a task out of
// attempts is closed as exhausted.
func (r *Repository) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE engagement_tasks
		SET attempt_count = attempt_count + 1,
			status = CASE WHEN attempt_count + 1 >= max_attempts THEN 'exhausted' ELSE 'pending' END,
			completed_at = CASE WHEN attempt_count + 1 >= max_attempts THEN NOW() ELSE NULL END,
			last_error = 'claim expired without a result',
			claimed_at = NULL,
			updated_at = NOW()
		WHERE status = 'claimed' AND claimed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}
	return result.RowsAffected(), nil
}

// CountTasksByStatus returns the number of tasks per status across all users.
func (r *Repository) CountTasksByStatus(ctx context.Context) (map[model.TaskStatus]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM engagement_tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.TaskStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts[model.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanTask(row pgx.Row) (*model.EngagementTask, error) {
	var task model.EngagementTask
	if err := row.Scan(taskScanDest(&task)...); err != nil {
		return nil, err
	}
	return &task, nil
}

func taskScanDest(task *model.EngagementTask) []any {
	return []any{
		&task.ID,
		&task.UserID,
		&task.AccountID,
		&task.Action,
		&task.TargetURL,
		&task.CommentText,
		&task.Status,
		&task.AttemptCount,
		&task.MaxAttempts,
		&task.NextAttemptAt,
		&task.ClaimedAt,
		&task.CompletedAt,
		&task.LastError,
		&task.CreatedAt,
		&task.UpdatedAt,
	}
}
