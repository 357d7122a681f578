package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cabinet/cabinet/internal/metrics"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/reddit"
	"github.com/cabinet/cabinet/internal/repository"
)

// Engagement errors.
var (
	ErrInvalidAction     = errors.New("action must be comment or upvote")
	ErrInvalidPostURL    = errors.New("target_url must be a reddit post url")
	ErrCommentRequired   = errors.New("comment_text is required unless generate is set")
	ErrCommentTooLong    = errors.New("comment_text must be at most 10000 characters")
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskNotPending    = errors.New("only pending tasks can be cancelled")
	ErrTaskNotClaimed    = errors.New("task is not claimed")
	ErrPostNotFound      = errors.New("reddit post not found")
	ErrGenerationFailed  = errors.New("failed to generate a comment")
	ErrInvalidTaskStatus = errors.New("invalid task status")
)

const (
	maxCommentLength = 10000
	defaultTaskLimit = 50
	maxTaskLimit     = 200
	defaultClaimSize = 5
	maxClaimSize     = 50
)

// TaskStore persists engagement tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task *model.EngagementTask) error
	GetTask(ctx context.Context, userID, id string) (*model.EngagementTask, error)
	ListTasks(ctx context.Context, userID string, status model.TaskStatus, limit int) ([]*model.EngagementTask, error)
	ClaimTasks(ctx context.Context, userID string, now time.Time, limit int) ([]*model.ClaimedTask, error)
	CompleteTask(ctx context.Context, userID, id string, at time.Time) error
	FailTask(ctx context.Context, userID, id, errMsg string, nextAttemptAt time.Time, exhausted bool) error
	CancelTask(ctx context.Context, userID, id string) error
	ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int64, error)
}

// AccountLookup finds an account regardless of cabinet.
type AccountLookup interface {
	GetAccountByID(ctx context.Context, id string) (*model.RedditAccount, error)
}

// PostFetcher reads a reddit submission.
type PostFetcher interface {
	FetchPost(ctx context.Context, postURL string) (*reddit.Post, error)
}

// CommentGenerator produces text from a prompt.
type CommentGenerator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
}

// SettingsReader returns a user's effective settings.
type SettingsReader interface {
	Get(ctx context.Context, userID string) (*model.UserSettings, error)
}

// EngagementConfig configures an EngagementService.
type EngagementConfig struct {
	Tasks       TaskStore
	Accounts    AccountLookup
	Cabinets    Authorizer
	Posts       PostFetcher
	Generator   CommentGenerator
	Settings    SettingsReader
	MaxAttempts int
	ClaimTTL    time.Duration
	Metrics     metrics.Recorder
	Logger      *slog.Logger
}

// EngagementService queues comment and upvote actions for the browser
// extension and tracks their delivery.
type EngagementService struct {
	tasks       TaskStore
	accounts    AccountLookup
	cabinets    Authorizer
	posts       PostFetcher
	generator   CommentGenerator
	settings    SettingsReader
	maxAttempts int
	claimTTL    time.Duration
	metrics     metrics.Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewEngagementService creates an EngagementService.
func NewEngagementService(cfg EngagementConfig) *EngagementService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = 10 * time.Minute
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &EngagementService{
		tasks:       cfg.Tasks,
		accounts:    cfg.Accounts,
		cabinets:    cfg.Cabinets,
		posts:       cfg.Posts,
		generator:   cfg.Generator,
		settings:    cfg.Settings,
		maxAttempts: cfg.MaxAttempts,
		claimTTL:    cfg.ClaimTTL,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger.With("component", "engagement"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateTaskInput defines input for queuing a task.
type CreateTaskInput struct {
	UserID      string
	AccountID   string
	Action      string
	TargetURL   string
	CommentText string
	Generate    bool
}

// CreateTask queues an action. The user needs edit rights on the cabinet
// that holds the account.
func (s *EngagementService) CreateTask(ctx context.Context, input CreateTaskInput) (*model.EngagementTask, error) {
	action := model.EngagementAction(strings.ToLower(strings.TrimSpace(input.Action)))
	if !action.IsValid() {
		return nil, ErrInvalidAction
	}
	target, err := reddit.NormalizePostURL(input.TargetURL)
	if err != nil {
		return nil, ErrInvalidPostURL
	}

	acc, err := s.accounts.GetAccountByID(ctx, input.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	if err := s.cabinets.Authorize(ctx, input.UserID, acc.UserID, model.NeedEdit); err != nil {
		if errors.Is(err, ErrForbidden) {
			// Accounts in cabinets the user cannot see do not exist for them
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	var text string
	if action == model.ActionComment {
		text = strings.TrimSpace(input.CommentText)
		if text == "" && input.Generate {
			text, err = s.Generate(ctx, input.UserID, target)
			if err != nil {
				return nil, err
			}
		}
		if text == "" {
			return nil, ErrCommentRequired
		}
		if utf8.RuneCountInString(text) > maxCommentLength {
			return nil, ErrCommentTooLong
		}
	}

	now := s.now()
	task := &model.EngagementTask{
		ID:            newID(),
		UserID:        input.UserID,
		AccountID:     acc.ID,
		Action:        action,
		TargetURL:     target,
		CommentText:   text,
		Status:        model.TaskPending,
		MaxAttempts:   s.maxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	s.metrics.IncTaskEvent("created")
	s.logger.Info("engagement task queued",
		slog.String("task_id", task.ID),
		slog.String("user_id", task.UserID),
		slog.String("action", string(task.Action)),
	)
	return task, nil
}

// Generate writes a comment for the post at targetURL with the user's
// prompt and model.
func (s *EngagementService) Generate(ctx context.Context, userID, targetURL string) (string, error) {
	target, err := reddit.NormalizePostURL(targetURL)
	if err != nil {
		return "", ErrInvalidPostURL
	}

	settings, err := s.settings.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	post, err := s.posts.FetchPost(ctx, target)
	if err != nil {
		if errors.Is(err, reddit.ErrPostNotFound) {
			return "", ErrPostNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	text, err := s.generator.Generate(ctx, settings.OllamaModel, buildPrompt(settings.CommentPrompt, post))
	if err != nil {
		s.logger.Warn("comment generation failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return cleanGenerated(text), nil
}

func buildPrompt(instruction string, post *reddit.Post) string {
	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nSubreddit: r/")
	b.WriteString(post.Subreddit)
	b.WriteString("\nTitle: ")
	b.WriteString(post.Title)
	if body := strings.TrimSpace(post.Body); body != "" {
		b.WriteString("\n\n")
		b.WriteString(truncate(body, 4000))
	}
	b.WriteString("\n\nReply with the comment text only.")
	return b.String()
}

// cleanGenerated strips the quotes and labels models like to wrap output in.
func cleanGenerated(text string) string {
	text = strings.TrimSpace(text)
	for _, prefix := range []string{"Comment:", "comment:"} {
		text = strings.TrimSpace(strings.TrimPrefix(text, prefix))
	}
	if len(text) >= 2 && text[0] == '"' && text[len(text)-1] == '"' {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}

// ListTasks returns the user's tasks, newest first.
func (s *EngagementService) ListTasks(ctx context.Context, userID, status string, limit int) ([]*model.EngagementTask, error) {
	st := model.TaskStatus(status)
	switch st {
	case "", model.TaskPending, model.TaskClaimed, model.TaskDone, model.TaskFailed, model.TaskExhausted:
	default:
		return nil, ErrInvalidTaskStatus
	}
	if limit <= 0 || limit > maxTaskLimit {
		limit = defaultTaskLimit
	}
	tasks, err := s.tasks.ListTasks(ctx, userID, st, limit)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*model.EngagementTask{}
	}
	return tasks, nil
}

// CancelTask removes a task the extension has not picked up.
func (s *EngagementService) CancelTask(ctx context.Context, userID, id string) error {
	err := s.tasks.CancelTask(ctx, userID, id)
	switch {
	case errors.Is(err, repository.ErrTaskNotFound):
		return ErrTaskNotFound
	case errors.Is(err, repository.ErrTaskNotPending):
		return ErrTaskNotPending
	}
	return err
}

// ClaimTasks hands up to limit due tasks to the extension.
func (s *EngagementService) ClaimTasks(ctx context.Context, userID string, limit int) ([]*model.ClaimedTask, error) {
	if limit <= 0 {
		limit = defaultClaimSize
	}
	if limit > maxClaimSize {
		limit = maxClaimSize
	}
	claimed, err := s.tasks.ClaimTasks(ctx, userID, s.now(), limit)
	if err != nil {
		return nil, err
	}
	for range claimed {
		s.metrics.IncTaskEvent("claimed")
	}
	if claimed == nil {
		claimed = []*model.ClaimedTask{}
	}
	return claimed, nil
}

// TaskResult is what the extension reports after acting on a task.
type TaskResult struct {
	UserID  string
	TaskID  string
	Success bool
	Error   string
}

// ReportResult closes a claimed task, or schedules its retry.
func (s *EngagementService) ReportResult(ctx context.Context, result TaskResult) (*model.EngagementTask, error) {
	task, err := s.tasks.GetTask(ctx, result.UserID, result.TaskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if task.Status != model.TaskClaimed {
		return nil, ErrTaskNotClaimed
	}

	now := s.now()
	event := "done"
	if result.Success {
		err = s.tasks.CompleteTask(ctx, result.UserID, task.ID, now)
	} else {
		msg := strings.TrimSpace(result.Error)
		if msg == "" {
			msg = "extension reported a failure"
		}
		attempts := task.AttemptCount + 1
		done := exhausted(attempts, task.MaxAttempts)
		next := now.Add(taskBackoff.Delay(task.AttemptCount))
		event = "failed"
		if done {
			event = "exhausted"
		}
		err = s.tasks.FailTask(ctx, result.UserID, task.ID, msg, next, done)
	}
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotClaimed) {
			return nil, ErrTaskNotClaimed
		}
		return nil, err
	}

	s.metrics.IncTaskEvent(event)
	s.logger.Info("engagement task result",
		slog.String("task_id", task.ID),
		slog.String("result", event),
		slog.Int("attempt", task.AttemptCount+1),
	)
	return s.tasks.GetTask(ctx, result.UserID, task.ID)
}

// ReleaseStaleClaims puts tasks that were claimed too long ago without a
// result back in the queue.
func (s *EngagementService) ReleaseStaleClaims(ctx context.Context) (int64, error) {
	n, err := s.tasks.ReleaseStaleClaims(ctx, s.now().Add(-s.claimTTL))
	if err != nil {
		return 0, err
	}
	for i := int64(0); i < n; i++ {
		s.metrics.IncTaskEvent("released")
	}
	if n > 0 {
		s.logger.Info("released stale task claims", slog.Int64("count", n))
	}
	return n, nil
}
