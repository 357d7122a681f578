package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabinet/cabinet/internal/handler/dto"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/service"
)

type fakeEngagement struct {
	created    service.CreateTaskInput
	claimLimit int
	result     service.TaskResult
	listStatus string
}

func (f *fakeEngagement) CreateTask(ctx context.Context, input service.CreateTaskInput) (*model.EngagementTask, error) {
	f.created = input
	if input.Action == "share" {
		return nil, service.ErrInvalidAction
	}
	return &model.EngagementTask{
		ID:          "task-1",
		AccountID:   input.AccountID,
		Action:      model.EngagementAction(input.Action),
		TargetURL:   input.TargetURL,
		CommentText: input.CommentText,
		Status:      model.TaskPending,
		MaxAttempts: 5,
	}, nil
}

func (f *fakeEngagement) Generate(ctx context.Context, userID, targetURL string) (string, error) {
	return "Nice write-up.", nil
}

func (f *fakeEngagement) ListTasks(ctx context.Context, userID, status string, limit int) ([]*model.EngagementTask, error) {
	f.listStatus = status
	if status == "bogus" {
		return nil, service.ErrInvalidTaskStatus
	}
	return []*model.EngagementTask{{ID: "task-1", Status: model.TaskPending}}, nil
}

func (f *fakeEngagement) CancelTask(ctx context.Context, userID, id string) error {
	return service.ErrTaskNotPending
}

func (f *fakeEngagement) ClaimTasks(ctx context.Context, userID string, limit int) ([]*model.ClaimedTask, error) {
	f.claimLimit = limit
	return []*model.ClaimedTask{{
		Task:          &model.EngagementTask{ID: "task-1", Action: model.ActionUpvote, Status: model.TaskClaimed},
		Username:      "some_user",
		SessionCookie: "reddit_session=abc",
	}}, nil
}

func (f *fakeEngagement) ReportResult(ctx context.Context, result service.TaskResult) (*model.EngagementTask, error) {
	f.result = result
	status := model.TaskDone
	if !result.Success {
		status = model.TaskFailed
	}
	return &model.EngagementTask{ID: result.TaskID, Status: status, LastError: result.Error}, nil
}

func newEngagementRouter(f *fakeEngagement) http.Handler {
	h := NewEngagementHandler(f, discardLogger())
	return testRouter(func(r chi.Router) {
		r.Post("/api/engagement/tasks", h.CreateTask)
		r.Get("/api/engagement/tasks", h.ListTasks)
		r.Delete("/api/engagement/tasks/{id}", h.CancelTask)
		r.Post("/api/engagement/generate", h.Generate)
		r.Post("/api/extension/tasks/claim", h.Claim)
		r.Post("/api/extension/tasks/{id}/result", h.Result)
	})
}

func TestEngagementHandler_CreateTask(t *testing.T) {
	f := &fakeEngagement{}
	router := newEngagementRouter(f)

	rec := do(t, router, http.MethodPost, "/api/engagement/tasks",
		`{"account_id":"acc-1","action":"comment","target_url":"https://www.reddit.com/r/golang/comments/abc123/x/","generate":true}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, testUserID, f.created.UserID)
	assert.True(t, f.created.Generate)

	body := decode[dto.TaskResponse](t, rec)
	assert.Equal(t, "pending", body.Status)
	assert.Equal(t, "acc-1", body.AccountID)

	rec = do(t, router, http.MethodPost, "/api/engagement/tasks", `{"account_id":"acc-1","action":"share"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ACTION", errorCode(t, rec))
}

func TestEngagementHandler_ListAndCancel(t *testing.T) {
	f := &fakeEngagement{}
	router := newEngagementRouter(f)

	rec := do(t, router, http.MethodGet, "/api/engagement/tasks?status=pending", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", f.listStatus)
	assert.Len(t, decode[dto.ListResponse[dto.TaskResponse]](t, rec).Data, 1)

	rec = do(t, router, http.MethodGet, "/api/engagement/tasks?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/engagement/tasks/task-1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "TASK_NOT_PENDING", errorCode(t, rec))
}

func TestEngagementHandler_Generate(t *testing.T) {
	router := newEngagementRouter(&fakeEngagement{})

	rec := do(t, router, http.MethodPost, "/api/engagement/generate", `{"target_url":"https://www.reddit.com/r/golang/comments/abc123/x/"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Nice write-up.", decode[dto.GenerateResponse](t, rec).CommentText)
}

func TestEngagementHandler_Claim(t *testing.T) {
	f := &fakeEngagement{}
	router := newEngagementRouter(f)

	rec := do(t, router, http.MethodPost, "/api/extension/tasks/claim?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, f.claimLimit)

	body := decode[dto.ListResponse[dto.ClaimedTaskResponse]](t, rec)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "task-1", body.Data[0].ID)
	assert.Equal(t, "some_user", body.Data[0].Username)
	assert.Equal(t, "reddit_session=abc", body.Data[0].SessionCookie)

	rec = do(t, router, http.MethodPost, "/api/extension/tasks/claim?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEngagementHandler_Result(t *testing.T) {
	f := &fakeEngagement{}
	router := newEngagementRouter(f)

	rec := do(t, router, http.MethodPost, "/api/extension/tasks/task-1/result", `{"success":false,"error":"comment box missing"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.TaskResult{
		UserID:  testUserID,
		TaskID:  "task-1",
		Success: false,
		Error:   "comment box missing",
	}, f.result)
	assert.Equal(t, "failed", decode[dto.TaskResponse](t, rec).Status)

	rec = do(t, router, http.MethodPost, "/api/extension/tasks/task-1/result", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
