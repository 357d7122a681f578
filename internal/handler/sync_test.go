package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabinet/cabinet/internal/handler/dto"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/service"
)

type fakeSync struct {
	entries   map[string]*model.SyncEntry
	gotSince  int64
	gotUserID string
}

func (f *fakeSync) Put(ctx context.Context, userID, key string, value json.RawMessage, updatedAt int64) (*model.SyncEntry, error) {
	f.gotUserID = userID
	if cur, ok := f.entries[key]; ok && cur.UpdatedAt > updatedAt {
		return nil, &service.ConflictError{Current: cur}
	}
	e := &model.SyncEntry{Key: key, Value: value, UpdatedAt: updatedAt}
	f.entries[key] = e
	return e, nil
}

func (f *fakeSync) Get(ctx context.Context, userID, key string) (*model.SyncEntry, error) {
	e, ok := f.entries[key]
	if !ok {
		return nil, service.ErrSyncKeyNotFound
	}
	return e, nil
}

func (f *fakeSync) List(ctx context.Context, userID string, since int64) ([]*model.SyncEntry, error) {
	f.gotSince = since
	var out []*model.SyncEntry
	for _, e := range f.entries {
		if e.UpdatedAt > since {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSync) Delete(ctx context.Context, userID, key string) error {
	if _, ok := f.entries[key]; !ok {
		return service.ErrSyncKeyNotFound
	}
	delete(f.entries, key)
	return nil
}

func newSyncRouter(f *fakeSync) http.Handler {
	h := NewSyncHandler(f, discardLogger())
	h.now = func() time.Time { return time.UnixMilli(5000) }
	return testRouter(func(r chi.Router) {
		r.Get("/api/sync", h.List)
		r.Get("/api/sync/{key}", h.Get)
		r.Put("/api/sync/{key}", h.Put)
		r.Delete("/api/sync/{key}", h.Delete)
	})
}

func TestSyncHandler_Put(t *testing.T) {
	f := &fakeSync{entries: map[string]*model.SyncEntry{}}
	router := newSyncRouter(f)

	rec := do(t, router, http.MethodPut, "/api/sync/notes", `{"value":{"a":1},"updated_at":1000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	entry := decode[dto.SyncEntryResponse](t, rec)
	assert.Equal(t, "notes", entry.Key)
	assert.JSONEq(t, `{"a":1}`, string(entry.Value))
	assert.Equal(t, int64(1000), entry.UpdatedAt)
	assert.Equal(t, testUserID, f.gotUserID)
}

func TestSyncHandler_Put_Conflict(t *testing.T) {
	f := &fakeSync{entries: map[string]*model.SyncEntry{
		"notes": {Key: "notes", Value: json.RawMessage(`"newer"`), UpdatedAt: 2000},
	}}
	router := newSyncRouter(f)

	rec := do(t, router, http.MethodPut, "/api/sync/notes", `{"value":"older","updated_at":1000}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	body := decode[dto.SyncConflictResponse](t, rec)
	assert.Equal(t, "SYNC_CONFLICT", body.Error.Code)
	assert.Equal(t, int64(2000), body.Current.UpdatedAt)
	assert.JSONEq(t, `"newer"`, string(body.Current.Value))
}

func TestSyncHandler_Put_BadRequests(t *testing.T) {
	router := newSyncRouter(&fakeSync{entries: map[string]*model.SyncEntry{}})

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"value":`, "INVALID_JSON"},
		{"empty body", "", "INVALID_JSON"},
		{"missing value", `{"updated_at":1}`, "MISSING_VALUE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPut, "/api/sync/notes", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, rec))
		})
	}
}

func TestSyncHandler_List(t *testing.T) {
	f := &fakeSync{entries: map[string]*model.SyncEntry{
		"a": {Key: "a", Value: json.RawMessage(`1`), UpdatedAt: 100},
		"b": {Key: "b", Value: json.RawMessage(`2`), UpdatedAt: 300},
	}}
	router := newSyncRouter(f)

	rec := do(t, router, http.MethodGet, "/api/sync?since=200", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[dto.SyncListResponse](t, rec)
	assert.Equal(t, int64(200), f.gotSince)
	assert.Equal(t, int64(5000), body.ServerTime)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "b", body.Data[0].Key)
}

func TestSyncHandler_List_EmptyIsArray(t *testing.T) {
	router := newSyncRouter(&fakeSync{entries: map[string]*model.SyncEntry{}})

	rec := do(t, router, http.MethodGet, "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestSyncHandler_List_InvalidSince(t *testing.T) {
	router := newSyncRouter(&fakeSync{entries: map[string]*model.SyncEntry{}})

	rec := do(t, router, http.MethodGet, "/api/sync?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_SINCE", errorCode(t, rec))
}

func TestSyncHandler_GetAndDelete(t *testing.T) {
	f := &fakeSync{entries: map[string]*model.SyncEntry{
		"a": {Key: "a", Value: json.RawMessage(`true`), UpdatedAt: 1},
	}}
	router := newSyncRouter(f)

	rec := do(t, router, http.MethodGet, "/api/sync/a", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/sync/a", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/sync/a", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SYNC_KEY_NOT_FOUND", errorCode(t, rec))
}
