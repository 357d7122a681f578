package model

import (
	"encoding/json"
	"time"
)

// SyncEntry is one key of a user's synchronized browser state.
//
// UpdatedAt is milliseconds since the Unix epoch as set by the writer and
// decides last-write-wins. ChangedAt is the server clock when the entry was
// last accepted; change feeds filter on it so a writer with a slow clock is
// still seen by pollers.
type SyncEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	UpdatedAt int64           `json:"updated_at"`
	ChangedAt int64           `json:"changed_at"`
}

// UpdatedTime returns UpdatedAt as a time.Time.
func (e *SyncEntry) UpdatedTime() time.Time {
	return time.UnixMilli(e.UpdatedAt)
}
