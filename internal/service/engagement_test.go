package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabinet/cabinet/internal/metrics"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/reddit"
	"github.com/cabinet/cabinet/internal/repository"
)

type fakeTasks struct {
	mu     sync.Mutex
	tasks  map[string]*model.EngagementTask
	cutoff time.Time
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{tasks: make(map[string]*model.EngagementTask)}
}

func (f *fakeTasks) CreateTask(_ context.Context, task *model.EngagementTask) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeTasks) GetTask(_ context.Context, userID, id string) (*model.EngagementTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tasks[id]; ok && t.UserID == userID {
		cp := *t
		return &cp, nil
	}
	return nil, repository.ErrTaskNotFound
}

func (f *fakeTasks) ListTasks(_ context.Context, userID string, status model.TaskStatus, limit int) ([]*model.EngagementTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.EngagementTask
	for _, t := range f.tasks {
		if t.UserID == userID && (status == "" || t.Status == status) && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) ClaimTasks(_ context.Context, userID string, now time.Time, limit int) ([]*model.ClaimedTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ClaimedTask
	for _, t := range f.tasks {
		if len(out) == limit {
			break
		}
		due := t.Status == model.TaskPending || t.Status == model.TaskFailed
		if t.UserID == userID && due && !t.NextAttemptAt.After(now) {
			t.Status = model.TaskClaimed
			claimedAt := now
			t.ClaimedAt = &claimedAt
			out = append(out, &model.ClaimedTask{Task: t, Username: "poster", SessionCookie: "reddit_session=abc"})
		}
	}
	return out, nil
}

func (f *fakeTasks) CompleteTask(_ context.Context, userID, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID || t.Status != model.TaskClaimed {
		return repository.ErrTaskNotClaimed
	}
	t.Status = model.TaskDone
	t.AttemptCount++
	t.CompletedAt = &at
	return nil
}

func (f *fakeTasks) FailTask(_ context.Context, userID, id, errMsg string, next time.Time, exhausted bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID || t.Status != model.TaskClaimed {
		return repository.ErrTaskNotClaimed
	}
	t.Status = model.TaskFailed
	if exhausted {
		t.Status = model.TaskExhausted
	}
	t.AttemptCount++
	t.LastError = errMsg
	t.NextAttemptAt = next
	t.ClaimedAt = nil
	return nil
}

func (f *fakeTasks) CancelTask(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok || t.UserID != userID {
		return repository.ErrTaskNotFound
	}
	if t.Status != model.TaskPending && t.Status != model.TaskFailed {
		return repository.ErrTaskNotPending
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeTasks) ReleaseStaleClaims(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = cutoff
	var n int64
	for _, t := range f.tasks {
		if t.Status == model.TaskClaimed && t.ClaimedAt.Before(cutoff) {
			t.Status = model.TaskPending
			t.ClaimedAt = nil
			n++
		}
	}
	return n, nil
}

type fakeAccountLookup map[string]*model.RedditAccount

func (f fakeAccountLookup) GetAccountByID(_ context.Context, id string) (*model.RedditAccount, error) {
	if acc, ok := f[id]; ok {
		return acc, nil
	}
	return nil, repository.ErrAccountNotFound
}

type fakePosts struct {
	post *reddit.Post
	err  error
	url  string
}

func (f *fakePosts) FetchPost(_ context.Context, postURL string) (*reddit.Post, error) {
	f.url = postURL
	return f.post, f.err
}

type fakeGenerator struct {
	model, prompt string
	text          string
	err           error
}

func (f *fakeGenerator) Generate(_ context.Context, model, prompt string) (string, error) {
	f.model, f.prompt = model, prompt
	return f.text, f.err
}

type fakeSettingsReader struct{}

func (fakeSettingsReader) Get(_ context.Context, userID string) (*model.UserSettings, error) {
	s := model.DefaultSettings(userID, "llama3")
	s.CommentPrompt = "Be nice."
	return s, nil
}

const postURL = "https://www.reddit.com/r/golang/comments/abc123/some_title/"

type engagementFixture struct {
	svc     *EngagementService
	tasks   *fakeTasks
	posts   *fakePosts
	gen     *fakeGenerator
	metrics *metrics.InMemoryRecorder
	now     time.Time
}

func newEngagementFixture(t *testing.T, cabinets Authorizer) *engagementFixture {
	t.Helper()
	f := &engagementFixture{
		tasks:   newFakeTasks(),
		posts:   &fakePosts{post: &reddit.Post{Subreddit: "golang", Title: "Generics in 2026", Body: "Thoughts?"}},
		gen:     &fakeGenerator{text: "  Comment: \"Great question, I use them daily.\"\n"},
		metrics: metrics.NewInMemory(),
		now:     time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewEngagementService(EngagementConfig{
		Tasks:       f.tasks,
		Accounts:    fakeAccountLookup{"acc1": {ID: "acc1", UserID: "owner", Username: "poster"}},
		Cabinets:    cabinets,
		Posts:       f.posts,
		Generator:   f.gen,
		Settings:    fakeSettingsReader{},
		MaxAttempts: 2,
		Metrics:     f.metrics,
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func TestEngagementCreateTask(t *testing.T) {
	ctx := context.Background()

	t.Run("upvote", func(t *testing.T) {
		f := newEngagementFixture(t, allowAll{})
		task, err := f.svc.CreateTask(ctx, CreateTaskInput{
			UserID:    "editor",
			AccountID: "acc1",
			Action:    "UPVOTE",
			TargetURL: "https://old.reddit.com/r/golang/comments/abc123/some_title/?utm=x",
		})
		require.NoError(t, err)
		assert.Equal(t, model.ActionUpvote, task.Action)
		assert.Equal(t, postURL, task.TargetURL)
		assert.Equal(t, model.TaskPending, task.Status)
		assert.Equal(t, 2, task.MaxAttempts)
		assert.Equal(t, f.now, task.NextAttemptAt)
		assert.Empty(t, task.CommentText)
		assert.Equal(t, uint64(1), f.metrics.Snapshot().TaskEvents["created"])
	})

	t.Run("generated comment", func(t *testing.T) {
		f := newEngagementFixture(t, allowAll{})
		task, err := f.svc.CreateTask(ctx, CreateTaskInput{
			UserID:    "editor",
			AccountID: "acc1",
			Action:    "comment",
			TargetURL: postURL,
			Generate:  true,
		})
		require.NoError(t, err)
		assert.Equal(t, "Great question, I use them daily.", task.CommentText)
		assert.Equal(t, "llama3", f.gen.model)
		assert.True(t, strings.HasPrefix(f.gen.prompt, "Be nice."))
		assert.Contains(t, f.gen.prompt, "Title: Generics in 2026")
		assert.Equal(t, postURL, f.posts.url)
	})

	t.Run("errors", func(t *testing.T) {
		f := newEngagementFixture(t, allowAll{})
		tests := []struct {
			name  string
			input CreateTaskInput
			want  error
		}{
			{"bad action", CreateTaskInput{UserID: "u", AccountID: "acc1", Action: "downvote", TargetURL: postURL}, ErrInvalidAction},
			{"bad url", CreateTaskInput{UserID: "u", AccountID: "acc1", Action: "upvote", TargetURL: "https://example.com/x"}, ErrInvalidPostURL},
			{"subreddit url", CreateTaskInput{UserID: "u", AccountID: "acc1", Action: "upvote", TargetURL: "https://www.reddit.com/r/golang"}, ErrInvalidPostURL},
			{"unknown account", CreateTaskInput{UserID: "u", AccountID: "nope", Action: "upvote", TargetURL: postURL}, ErrAccountNotFound},
			{"missing comment", CreateTaskInput{UserID: "u", AccountID: "acc1", Action: "comment", TargetURL: postURL}, ErrCommentRequired},
			{"long comment", CreateTaskInput{UserID: "u", AccountID: "acc1", Action: "comment", TargetURL: postURL, CommentText: strings.Repeat("x", maxCommentLength+1)}, ErrCommentTooLong},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.svc.CreateTask(ctx, tt.input)
				assert.ErrorIs(t, err, tt.want)
			})
		}
		assert.Empty(t, f.tasks.tasks)
	})

	t.Run("foreign cabinet hides account", func(t *testing.T) {
		f := newEngagementFixture(t, denyAll{})
		_, err := f.svc.CreateTask(ctx, CreateTaskInput{UserID: "u", AccountID: "acc1", Action: "upvote", TargetURL: postURL})
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("generation failure", func(t *testing.T) {
		f := newEngagementFixture(t, allowAll{})
		f.gen.err = errors.New("model not loaded")
		_, err := f.svc.CreateTask(ctx, CreateTaskInput{UserID: "u", AccountID: "acc1", Action: "comment", TargetURL: postURL, Generate: true})
		assert.ErrorIs(t, err, ErrGenerationFailed)

		f.posts.err = reddit.ErrPostNotFound
		_, err = f.svc.Generate(ctx, "u", postURL)
		assert.ErrorIs(t, err, ErrPostNotFound)
	})
}

func TestEngagementDelivery(t *testing.T) {
	ctx := context.Background()
	f := newEngagementFixture(t, allowAll{})

	task, err := f.svc.CreateTask(ctx, CreateTaskInput{UserID: "u", AccountID: "acc1", Action: "comment", TargetURL: postURL, CommentText: "hi"})
	require.NoError(t, err)

	claimed, err := f.svc.ClaimTasks(ctx, "u", 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "poster", claimed[0].Username)

	empty, err := f.svc.ClaimTasks(ctx, "u", 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	// Cancelling a claimed task is refused
	assert.ErrorIs(t, f.svc.CancelTask(ctx, "u", task.ID), ErrTaskNotPending)

	got, err := f.svc.ReportResult(ctx, TaskResult{UserID: "u", TaskID: task.ID, Error: "rate limited"})
	require.NoError(t, err)
	assert.Equal(t, model.TaskFailed, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, "rate limited", got.LastError)
	delay := got.NextAttemptAt.Sub(f.now)
	assert.GreaterOrEqual(t, delay, 48*time.Second)
	assert.LessOrEqual(t, delay, 72*time.Second)

	_, err = f.svc.ReportResult(ctx, TaskResult{UserID: "u", TaskID: task.ID, Success: true})
	assert.ErrorIs(t, err, ErrTaskNotClaimed)

	// Not due yet
	claimed, err = f.svc.ClaimTasks(ctx, "u", 5)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	f.now = f.now.Add(2 * time.Minute)
	claimed, err = f.svc.ClaimTasks(ctx, "u", 5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	got, err = f.svc.ReportResult(ctx, TaskResult{UserID: "u", TaskID: task.ID})
	require.NoError(t, err)
	assert.Equal(t, model.TaskExhausted, got.Status)
	assert.Equal(t, "extension reported a failure", got.LastError)

	_, err = f.svc.ReportResult(ctx, TaskResult{UserID: "other", TaskID: task.ID, Success: true})
	assert.ErrorIs(t, err, ErrTaskNotFound)

	snap := f.metrics.Snapshot()
	assert.Equal(t, uint64(2), snap.TaskEvents["claimed"])
	assert.Equal(t, uint64(1), snap.TaskEvents["failed"])
	assert.Equal(t, uint64(1), snap.TaskEvents["exhausted"])
}

func TestEngagementSuccessAndSweep(t *testing.T) {
	ctx := context.Background()
	f := newEngagementFixture(t, allowAll{})

	first, err := f.svc.CreateTask(ctx, CreateTaskInput{UserID: "u", AccountID: "acc1", Action: "upvote", TargetURL: postURL})
	require.NoError(t, err)
	_, err = f.svc.ClaimTasks(ctx, "u", 1)
	require.NoError(t, err)

	done, err := f.svc.ReportResult(ctx, TaskResult{UserID: "u", TaskID: first.ID, Success: true})
	require.NoError(t, err)
	assert.Equal(t, model.TaskDone, done.Status)

	second, err := f.svc.CreateTask(ctx, CreateTaskInput{UserID: "u", AccountID: "acc1", Action: "upvote", TargetURL: postURL})
	require.NoError(t, err)
	_, err = f.svc.ClaimTasks(ctx, "u", 5)
	require.NoError(t, err)

	f.now = f.now.Add(11 * time.Minute)
	n, err := f.svc.ReleaseStaleClaims(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, f.now.Add(-10*time.Minute), f.tasks.cutoff)

	got, err := f.tasks.GetTask(ctx, "u", second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, got.Status)

	require.NoError(t, f.svc.CancelTask(ctx, "u", second.ID))
	assert.ErrorIs(t, f.svc.CancelTask(ctx, "u", second.ID), ErrTaskNotFound)
}

func TestEngagementListTasks(t *testing.T) {
	ctx := context.Background()
	f := newEngagementFixture(t, allowAll{})

	_, err := f.svc.ListTasks(ctx, "u", "bogus", 0)
	assert.ErrorIs(t, err, ErrInvalidTaskStatus)

	tasks, err := f.svc.ListTasks(ctx, "u", "", 0)
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestCleanGenerated(t *testing.T) {
	tests := map[string]string{
		"plain":             "plain",
		`"quoted"`:          "quoted",
		"Comment: labelled": "labelled",
		"  \n spaced \n":    "spaced",
		`"`:                 `"`,
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanGenerated(in), in)
	}
}
