package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/model"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireScope(t *testing.T) {
	testCases := []struct {
		name       string
		principal  *model.Principal
		required   []string
		wantStatus int
	}{
		{
			name:       "extension scope allows extension",
			principal:  &model.Principal{AuthMethod: model.AuthMethodAPIKey, Scopes: []string{model.ScopeExtension}},
			required:   []string{model.ScopeExtension},
			wantStatus: http.StatusOK,
		},
		{
			name:       "admin allows extension",
			principal:  &model.Principal{AuthMethod: model.AuthMethodAPIKey, Scopes: []string{model.ScopeAdmin}},
			required:   []string{model.ScopeExtension},
			wantStatus: http.StatusOK,
		},
		{
			name:       "any of several scopes is enough",
			principal:  &model.Principal{AuthMethod: model.AuthMethodAPIKey, Scopes: []string{model.ScopeRead}},
			required:   []string{model.ScopeExtension, model.ScopeRead},
			wantStatus: http.StatusOK,
		},
		{
			name:       "read does not allow extension",
			principal:  &model.Principal{AuthMethod: model.AuthMethodAPIKey, Scopes: []string{model.ScopeRead}},
			required:   []string{model.ScopeExtension},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "session principal has every scope",
			principal:  &model.Principal{AuthMethod: model.AuthMethodJWT},
			required:   []string{model.ScopeAdmin},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing principal",
			principal:  nil,
			required:   []string{model.ScopeRead},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/extension/tasks/claim", nil)
			if tc.principal != nil {
				req = req.WithContext(auth.ContextWithPrincipal(req.Context(), tc.principal))
			}
			rec := httptest.NewRecorder()

			RequireScope(tc.required...)(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if tc.wantStatus == http.StatusForbidden && !strings.Contains(rec.Body.String(), tc.required[0]) {
				t.Errorf("forbidden body should name the scope, got %s", rec.Body.String())
			}
		})
	}
}

func TestRequireSession(t *testing.T) {
	testCases := []struct {
		name       string
		principal  *model.Principal
		wantStatus int
	}{
		{"session login", &model.Principal{AuthMethod: model.AuthMethodJWT}, http.StatusOK},
		{"admin api key", &model.Principal{AuthMethod: model.AuthMethodAPIKey, Scopes: []string{model.ScopeAdmin}}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/keys", nil)
			if tc.principal != nil {
				req = req.WithContext(auth.ContextWithPrincipal(req.Context(), tc.principal))
			}
			rec := httptest.NewRecorder()

			RequireSession()(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestRequireAccess(t *testing.T) {
	key := func(scopes ...string) *model.Principal {
		return &model.Principal{AuthMethod: model.AuthMethodAPIKey, Scopes: scopes}
	}

	testCases := []struct {
		name       string
		method     string
		principal  *model.Principal
		wantStatus int
	}{
		{"read key lists", http.MethodGet, key(model.ScopeRead), http.StatusOK},
		{"read key cannot write", http.MethodPut, key(model.ScopeRead), http.StatusForbidden},
		{"read key cannot delete", http.MethodDelete, key(model.ScopeRead), http.StatusForbidden},
		{"extension key cannot read", http.MethodGet, key(model.ScopeExtension), http.StatusForbidden},
		{"extension key cannot write", http.MethodPost, key(model.ScopeExtension), http.StatusForbidden},
		{"admin key reads", http.MethodGet, key(model.ScopeAdmin), http.StatusOK},
		{"admin key writes", http.MethodPatch, key(model.ScopeAdmin), http.StatusOK},
		{"session writes", http.MethodDelete, &model.Principal{AuthMethod: model.AuthMethodJWT}, http.StatusOK},
		{"anonymous", http.MethodGet, nil, http.StatusUnauthorized},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/sync/prefs", nil)
			if tc.principal != nil {
				req = req.WithContext(auth.ContextWithPrincipal(req.Context(), tc.principal))
			}
			rec := httptest.NewRecorder()

			RequireAccess()(okHandler()).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}
