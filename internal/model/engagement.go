package model

import "time"

// EngagementAction is what the browser extension should do on a post.
type EngagementAction string

const (
	ActionComment EngagementAction = "comment"
	ActionUpvote  EngagementAction = "upvote"
)

// IsValid reports whether the action is supported.
func (a EngagementAction) IsValid() bool {
	return a == ActionComment || a == ActionUpvote
}

// TaskStatus is the delivery state of an engagement task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskClaimed   TaskStatus = "claimed"
	TaskDone      TaskStatus = "done"
	TaskFailed    TaskStatus = "failed"
	TaskExhausted TaskStatus = "exhausted"
)

// EngagementTask is an action queued for the browser extension.
type EngagementTask struct {
	ID            string           `json:"id"`
	UserID        string           `json:"user_id"`
	AccountID     string           `json:"account_id"`
	Action        EngagementAction `json:"action"`
	TargetURL     string           `json:"target_url"`
	CommentText   string           `json:"comment_text,omitempty"`
	Status        TaskStatus       `json:"status"`
	AttemptCount  int              `json:"attempt_count"`
	MaxAttempts   int              `json:"max_attempts"`
	NextAttemptAt time.Time        `json:"next_attempt_at"`
	ClaimedAt     *time.Time       `json:"claimed_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	LastError     string           `json:"last_error,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// ClaimedTask is a task handed to the extension with what it needs to act.
type ClaimedTask struct {
	Task          *EngagementTask
	Username      string
	SessionCookie string
}
