package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cabinet/cabinet/internal/importer"
	"github.com/cabinet/cabinet/internal/service"
)

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:        "sentinel",
			err:         service.ErrAccountNotFound,
			wantStatus:  http.StatusNotFound,
			wantCode:    "ACCOUNT_NOT_FOUND",
			wantMessage: service.ErrAccountNotFound.Error(),
		},
		{
			name:        "wrapped sentinel hides detail",
			err:         fmt.Errorf("%w: row 7", service.ErrForbidden),
			wantStatus:  http.StatusForbidden,
			wantCode:    "FORBIDDEN",
			wantMessage: service.ErrForbidden.Error(),
		},
		{
			name:        "scrape failure reports detail",
			err:         fmt.Errorf("%w: reddit user not found", service.ErrScrapeFailed),
			wantStatus:  http.StatusBadGateway,
			wantCode:    "SCRAPE_FAILED",
			wantMessage: "failed to fetch reddit profile: reddit user not found",
		},
		{
			name:        "importer error",
			err:         importer.ErrInvalidSheetURL,
			wantStatus:  http.StatusBadRequest,
			wantCode:    "INVALID_SHEET_URL",
			wantMessage: importer.ErrInvalidSheetURL.Error(),
		},
		{
			name:        "sync conflict",
			err:         &service.ConflictError{},
			wantStatus:  http.StatusConflict,
			wantCode:    "SYNC_CONFLICT",
			wantMessage: service.ErrSyncConflict.Error(),
		},
		{
			name:        "unknown error",
			err:         errors.New("pq: connection reset"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "INTERNAL_ERROR",
			wantMessage: "An internal error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, discardLogger(), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode[struct {
				Error struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}](t, rec)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.Equal(t, tt.wantMessage, body.Error.Message)
		})
	}
}

func TestServiceErrors_UniqueSentinels(t *testing.T) {
	seen := make(map[error]bool, len(serviceErrors))
	for _, m := range serviceErrors {
		assert.False(t, seen[m.err], "duplicate mapping for %v", m.err)
		seen[m.err] = true
		assert.NotEmpty(t, m.api.code)
		assert.GreaterOrEqual(t, m.api.status, 400)
	}
}
