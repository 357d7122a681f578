package dto

import (
	"encoding/json"

	"github.com/cabinet/cabinet/internal/model"
)

// PutSyncRequest represents the request body for writing a sync key.
// UpdatedAt is unix milliseconds; zero means server time.
type PutSyncRequest struct {
	Value     json.RawMessage `json:"value"`
	UpdatedAt int64           `json:"updated_at,omitempty"`
}

// SyncEntryResponse represents one sync key in API responses. ChangedAt is
// the server clock when the value was accepted.
type SyncEntryResponse struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt int64           `json:"updated_at"`
	ChangedAt int64           `json:"changed_at"`
}

// SyncListResponse lists sync entries together with the server clock, which
// clients pass back as since on their next poll.
type SyncListResponse struct {
	Data       []SyncEntryResponse `json:"data"`
	ServerTime int64               `json:"server_time"`
}

// SyncConflictResponse is returned with 409 when a newer value is stored.
type SyncConflictResponse struct {
	Error   ErrorDetail       `json:"error"`
	Current SyncEntryResponse `json:"current"`
}

// ToSyncEntryResponse converts a SyncEntry model to SyncEntryResponse DTO.
func ToSyncEntryResponse(e *model.SyncEntry) SyncEntryResponse {
	return SyncEntryResponse{Key: e.Key, Value: e.Value, UpdatedAt: e.UpdatedAt, ChangedAt: e.ChangedAt}
}
