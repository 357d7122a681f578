package dto

import (
	"time"

	"github.com/cabinet/cabinet/internal/model"
)

// CreateTaskRequest represents the request body for queuing a task.
type CreateTaskRequest struct {
	AccountID   string `json:"account_id"`
	Action      string `json:"action"`
	TargetURL   string `json:"target_url"`
	CommentText string `json:"comment_text,omitempty"`
	Generate    bool   `json:"generate,omitempty"`
}

// GenerateRequest represents the request body for a comment preview.
type GenerateRequest struct {
	TargetURL string `json:"target_url"`
}

// GenerateResponse carries a generated comment.
type GenerateResponse struct {
	CommentText string `json:"comment_text"`
}

// TaskResultRequest is what the extension reports after acting on a task.
type TaskResultRequest struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TaskResponse represents an engagement task in API responses.
type TaskResponse struct {
	ID            string     `json:"id"`
	AccountID     string     `json:"account_id"`
	Action        string     `json:"action"`
	TargetURL     string     `json:"target_url"`
	CommentText   string     `json:"comment_text,omitempty"`
	Status        string     `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	MaxAttempts   int        `json:"max_attempts"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ClaimedTaskResponse is a task handed to the extension.
type ClaimedTaskResponse struct {
	TaskResponse
	Username      string `json:"username"`
	SessionCookie string `json:"session_cookie"`
}

// ToTaskResponse converts an EngagementTask model to TaskResponse DTO.
func ToTaskResponse(t *model.EngagementTask) TaskResponse {
	return TaskResponse{
		ID:            t.ID,
		AccountID:     t.AccountID,
		Action:        string(t.Action),
		TargetURL:     t.TargetURL,
		CommentText:   t.CommentText,
		Status:        string(t.Status),
		AttemptCount:  t.AttemptCount,
		MaxAttempts:   t.MaxAttempts,
		NextAttemptAt: t.NextAttemptAt,
		ClaimedAt:     t.ClaimedAt,
		CompletedAt:   t.CompletedAt,
		LastError:     t.LastError,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// ToClaimedTaskResponse converts a ClaimedTask model.
func ToClaimedTaskResponse(c *model.ClaimedTask) ClaimedTaskResponse {
	return ClaimedTaskResponse{
		TaskResponse:  ToTaskResponse(c.Task),
		Username:      c.Username,
		SessionCookie: c.SessionCookie,
	}
}
