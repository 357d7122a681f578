package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/model"
)

func TestHandler_Info(t *testing.T) {
	for version, want := range map[string]string{"1.2.3": "1.2.3", "": "dev"} {
		rec := httptest.NewRecorder()
		New(version).Info(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		body := decode[map[string]string](t, rec)
		assert.Equal(t, "cabinet", body["service"])
		assert.Equal(t, want, body["version"])
	}
}

func TestHandler_Fallbacks(t *testing.T) {
	h := New("")

	tests := []struct {
		handler  http.HandlerFunc
		wantCode int
		wantErr  string
	}{
		{h.NotFound, http.StatusNotFound, "NOT_FOUND"},
		{h.MethodNotAllowed, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED"},
	}

	for _, tt := range tests {
		t.Run(tt.wantErr, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodPost, "/api/nowhere", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, tt.wantErr, errorCode(t, rec))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		allowEmpty bool
		wantErr    bool
	}{
		{"object", `{"name":"main"}`, false, false},
		{"empty rejected", "", false, true},
		{"empty allowed", "", true, false},
		{"malformed", `{"name":`, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst struct {
				Name string `json:"name"`
			}
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			err := decodeJSON(req, &dst, tt.allowEmpty)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestDecodeJSON_EmptyBodyError(t *testing.T) {
	err := decodeJSON(httptest.NewRequest(http.MethodPost, "/", nil), &struct{}{}, false)
	assert.ErrorIs(t, err, errEmptyBody)
}

func TestCabinetOwner(t *testing.T) {
	signedIn := func(target string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		return req.WithContext(auth.ContextWithPrincipal(req.Context(), &model.Principal{UserID: testUserID, AuthMethod: model.AuthMethodJWT}))
	}

	assert.Equal(t, testUserID, cabinetOwner(signedIn("/api/accounts")))
	assert.Equal(t, "owner-9", cabinetOwner(signedIn("/api/accounts?cabinet=owner-9")))
	assert.Equal(t, testUserID, callerID(signedIn("/api/accounts?cabinet=owner-9")))
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"limit=25", 25, false},
		{"limit=0", 0, false},
		{"limit=-1", 0, true},
		{"limit=ten", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := queryInt(httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil), "limit")
			if tt.wantErr {
				assert.ErrorContains(t, err, "limit must be")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
