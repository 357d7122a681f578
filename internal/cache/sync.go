package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cabinet/cabinet/internal/model"
)

const (
	syncKeyPrefix = "sync:"

	// Bookkeeping fields start with "!", which is not a valid sync key
	// character, so they cannot collide with entries.
	//
	// syncLoadedField marks a hash that mirrors every durable entry of the
	// user. Hashes created by single writes lack it. syncVersionField counts
	// writes and deletes so a backfill can tell its snapshot went stale.
	syncLoadedField  = "!loaded"
	syncVersionField = "!version"

	// SyncTTL is how long an idle user's hash stays in Redis. Postgres keeps
	// the durable copy and refills the hash on the next read.
	SyncTTL = 30 * 24 * time.Hour
)

var (
	// ErrSyncStale is returned by PutSyncEntry when Redis holds a newer entry.
	ErrSyncStale = errors.New("cached sync entry is newer")
	// ErrSyncChanged is returned by FillSyncEntries when the hash was written
	// after the version the snapshot was read at.
	ErrSyncChanged = errors.New("sync hash changed during backfill")
)

// syncRecord is the hash field value.
type syncRecord struct {
	Value     json.RawMessage `json:"value"`
	UpdatedAt int64           `json:"updated_at"`
	ChangedAt int64           `json:"changed_at,omitempty"`
}

// putIfNewerScript writes the field unless the stored record is newer and
// bumps the version. Returns nil when written, or the stored record.
var putIfNewerScript = redis.NewScript(`
	local current = redis.call('HGET', KEYS[1], ARGV[1])
	if current then
		local ok, decoded = pcall(cjson.decode, current)
		if ok and tonumber(decoded['updated_at']) > tonumber(ARGV[3]) then
			return current
		end
	end
	redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
	redis.call('HINCRBY', KEYS[1], '!version', 1)
	redis.call('EXPIRE', KEYS[1], ARGV[4])
	return false
`)

// deleteScript removes the field and bumps the version. With ARGV[3] = "1"
// the loaded marker goes too, so the next list reloads from Postgres.
var deleteScript = redis.NewScript(`
	redis.call('HDEL', KEYS[1], ARGV[1])
	if ARGV[3] == '1' then
		redis.call('HDEL', KEYS[1], '!loaded')
	end
	redis.call('HINCRBY', KEYS[1], '!version', 1)
	redis.call('EXPIRE', KEYS[1], ARGV[2])
	return 1
`)

// fillScript backfills fields given as (key, record, updated_at) triples
// from ARGV[4] on, only while the version still equals ARGV[1]. A field
// holding a newer record is kept. ARGV[3] = "1" marks the hash loaded.
var fillScript = redis.NewScript(`
	local version = tonumber(redis.call('HGET', KEYS[1], '!version') or '0')
	if version ~= tonumber(ARGV[1]) then
		return 0
	end
	for i = 4, #ARGV, 3 do
		local keep = false
		local current = redis.call('HGET', KEYS[1], ARGV[i])
		if current then
			local ok, decoded = pcall(cjson.decode, current)
			keep = ok and tonumber(decoded['updated_at']) > tonumber(ARGV[i + 2])
		end
		if not keep then
			redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
		end
	end
	if ARGV[3] == '1' then
		redis.call('HSET', KEYS[1], '!loaded', '1')
	end
	if redis.call('EXISTS', KEYS[1]) == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return 1
`)

func syncHashKey(userID string) string {
	return syncKeyPrefix + userID
}

func encodeSyncRecord(e *model.SyncEntry) (string, error) {
	data, err := json.Marshal(syncRecord{Value: e.Value, UpdatedAt: e.UpdatedAt, ChangedAt: e.ChangedAt})
	if err != nil {
		return "", fmt.Errorf("marshal sync entry: %w", err)
	}
	return string(data), nil
}

func decodeSyncRecord(key, raw string) (*model.SyncEntry, error) {
	var rec syncRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode sync entry %q: %w", key, err)
	}
	return &model.SyncEntry{Key: key, Value: rec.Value, UpdatedAt: rec.UpdatedAt, ChangedAt: rec.ChangedAt}, nil
}

// GetSyncEntry returns one cached entry or ErrCacheMiss.
func (c *Cache) GetSyncEntry(ctx context.Context, userID, key string) (*model.SyncEntry, error) {
	raw, err := c.client.HGet(ctx, syncHashKey(userID), key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis hget failed: %w", err)
	}
	return decodeSyncRecord(key, raw)
}

// GetSyncEntries returns every cached entry of the user. ErrCacheMiss means
// the hash is absent or partial and the caller should load from the
// database and call FillSyncEntries.
func (c *Cache) GetSyncEntries(ctx context.Context, userID string) ([]*model.SyncEntry, error) {
	fields, err := c.client.HGetAll(ctx, syncHashKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if _, ok := fields[syncLoadedField]; !ok {
		return nil, ErrCacheMiss
	}

	entries := make([]*model.SyncEntry, 0, len(fields))
	for key, raw := range fields {
		if strings.HasPrefix(key, "!") {
			continue
		}
		entry, err := decodeSyncRecord(key, raw)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SyncVersion returns the write counter of the user's hash. Read it before
// loading the snapshot passed to FillSyncEntries.
func (c *Cache) SyncVersion(ctx context.Context, userID string) (int64, error) {
	v, err := c.client.HGet(ctx, syncHashKey(userID), syncVersionField).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis hget failed: %w", err)
	}
	return v, nil
}

// PutSyncEntry writes an entry unless Redis holds a newer one, in which case
// the stored entry is returned with ErrSyncStale.
func (c *Cache) PutSyncEntry(ctx context.Context, userID string, e *model.SyncEntry) (*model.SyncEntry, error) {
	encoded, err := encodeSyncRecord(e)
	if err != nil {
		return nil, err
	}

	raw, err := putIfNewerScript.Run(ctx, c.client,
		[]string{syncHashKey(userID)},
		e.Key, encoded, e.UpdatedAt, int(SyncTTL.Seconds()),
	).Text()
	if errors.Is(err, redis.Nil) {
		return e, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis sync put failed: %w", err)
	}

	current, err := decodeSyncRecord(e.Key, raw)
	if err != nil {
		return nil, err
	}
	return current, ErrSyncStale
}

// FillSyncEntries backfills the user's hash from a database snapshot read
// after SyncVersion returned version. complete marks the hash as mirroring
// every durable entry; an empty complete set still marks it. When any write
// or delete reached the hash since version, nothing is written and
// ErrSyncChanged is returned.
func (c *Cache) FillSyncEntries(ctx context.Context, userID string, version int64, entries []*model.SyncEntry, complete bool) error {
	args := make([]any, 0, 3+3*len(entries))
	args = append(args, version, int(SyncTTL.Seconds()), flag(complete))
	for _, e := range entries {
		encoded, err := encodeSyncRecord(e)
		if err != nil {
			return err
		}
		args = append(args, e.Key, encoded, e.UpdatedAt)
	}

	filled, err := fillScript.Run(ctx, c.client, []string{syncHashKey(userID)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("failed to backfill sync entries: %w", err)
	}
	if filled == 0 {
		return ErrSyncChanged
	}
	return nil
}

// DeleteSyncEntry removes one cached entry.
func (c *Cache) DeleteSyncEntry(ctx context.Context, userID, key string) error {
	return c.deleteSyncField(ctx, userID, key, false)
}

// InvalidateSyncEntry removes one cached entry and the loaded marker, for
// when Redis may have missed a write Postgres accepted.
func (c *Cache) InvalidateSyncEntry(ctx context.Context, userID, key string) error {
	return c.deleteSyncField(ctx, userID, key, true)
}

func (c *Cache) deleteSyncField(ctx context.Context, userID, key string, unload bool) error {
	err := deleteScript.Run(ctx, c.client,
		[]string{syncHashKey(userID)},
		key, int(SyncTTL.Seconds()), flag(unload),
	).Err()
	if err != nil {
		return fmt.Errorf("redis sync delete failed: %w", err)
	}
	return nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
