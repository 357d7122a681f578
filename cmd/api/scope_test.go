package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/config"
	"github.com/cabinet/cabinet/internal/handler"
	"github.com/cabinet/cabinet/internal/model"
)

type keyStore struct {
	keys map[string]*model.APIKey
}

func (s *keyStore) GetAPIKeysByPrefix(_ context.Context, prefix string) ([]*model.APIKey, error) {
	if k, ok := s.keys[prefix]; ok {
		return []*model.APIKey{k}, nil
	}
	return nil, nil
}

func (s *keyStore) UpdateAPIKeyLastUsed(context.Context, string) error { return nil }

// recordingSync is a sync service that remembers the writes it served.
type recordingSync struct {
	mu     sync.Mutex
	writes []string
}

func (s *recordingSync) record(op, userID, key string) {
	s.mu.Lock()
	s.writes = append(s.writes, op+" "+userID+"/"+key)
	s.mu.Unlock()
}

func (s *recordingSync) served() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

func (s *recordingSync) Put(_ context.Context, userID, key string, value json.RawMessage, updatedAt int64) (*model.SyncEntry, error) {
	s.record("put", userID, key)
	return &model.SyncEntry{Key: key, Value: value, UpdatedAt: updatedAt}, nil
}

func (s *recordingSync) Get(_ context.Context, _, key string) (*model.SyncEntry, error) {
	return &model.SyncEntry{Key: key, Value: json.RawMessage(`1`)}, nil
}

func (s *recordingSync) List(context.Context, string, int64) ([]*model.SyncEntry, error) {
	return nil, nil
}

func (s *recordingSync) Delete(_ context.Context, userID, key string) error {
	s.record("delete", userID, key)
	return nil
}

// scopedRouter serves the real route table with one API key per scope set.
func scopedRouter(t *testing.T, scopeSets map[string][]string) (http.Handler, *recordingSync, map[string]string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{AppEnv: "development", MaxRequestBodySize: 1 << 20}

	store := &keyStore{keys: make(map[string]*model.APIKey)}
	plaintexts := make(map[string]string, len(scopeSets))
	for name, scopes := range scopeSets {
		gen, err := auth.GenerateAPIKey(auth.EnvTest)
		require.NoError(t, err)
		store.keys[gen.Prefix] = &model.APIKey{
			ID:        "key-" + name,
			UserID:    "u1",
			KeyHash:   gen.Hash,
			KeyPrefix: gen.Prefix,
			Scopes:    scopes,
		}
		plaintexts[name] = gen.Plaintext
	}

	syncSvc := &recordingSync{}
	rt := routes{
		info:       handler.New("test"),
		health:     handler.NewHealthHandler(nil, nil),
		auth:       handler.NewAuthHandler(nil, logger),
		accounts:   handler.NewAccountHandler(nil, logger),
		cabinet:    handler.NewCabinetHandler(nil, logger),
		subreddits: handler.NewSubredditHandler(nil, logger),
		sync:       handler.NewSyncHandler(syncSvc, logger),
		settings:   handler.NewSettingsHandler(nil, logger),
		engagement: handler.NewEngagementHandler(nil, logger),
		apiKeys:    handler.NewAPIKeyHandler(nil, logger),
	}
	return setupRouter(rt, routerDeps{keys: store}, cfg, logger), syncSvc, plaintexts
}

func TestRouter_APIKeyScopes(t *testing.T) {
	r, syncSvc, keys := scopedRouter(t, map[string][]string{
		"read":      {model.ScopeRead},
		"extension": {model.ScopeExtension},
		"admin":     {model.ScopeAdmin},
	})

	tests := []struct {
		key    string
		method string
		path   string
		body   string
		want   int
	}{
		{"read", http.MethodGet, "/api/sync", "", http.StatusOK},
		{"read", http.MethodGet, "/api/sync/prefs", "", http.StatusOK},
		{"read", http.MethodDelete, "/api/sync/prefs", "", http.StatusForbidden},
		{"read", http.MethodPut, "/api/sync/prefs", `{"value":1}`, http.StatusForbidden},
		{"read", http.MethodDelete, "/api/accounts/01HX", "", http.StatusForbidden},
		{"read", http.MethodPost, "/api/cabinet/invitations", `{"email":"a@b.c"}`, http.StatusForbidden},
		{"read", http.MethodPatch, "/api/cabinet/members/m1", `{"can_edit":true}`, http.StatusForbidden},
		{"extension", http.MethodGet, "/api/sync", "", http.StatusForbidden},
		{"extension", http.MethodDelete, "/api/sync/prefs", "", http.StatusForbidden},
		{"extension", http.MethodGet, "/api/accounts", "", http.StatusForbidden},
		{"admin", http.MethodPut, "/api/sync/prefs", `{"value":1}`, http.StatusOK},
		{"admin", http.MethodDelete, "/api/sync/prefs", "", http.StatusNoContent},
		{"admin", http.MethodGet, "/api/keys", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.key+" "+tt.method+" "+tt.path, func(t *testing.T) {
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			req.Header.Set("Authorization", "Bearer "+keys[tt.key])
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "FORBIDDEN", errorCode(t, rec))
			}
		})
	}

	assert.Equal(t, []string{"put u1/prefs", "delete u1/prefs"}, syncSvc.served())
}
