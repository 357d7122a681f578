package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/cabinet/cabinet/internal/cache"
	"github.com/cabinet/cabinet/internal/metrics"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/repository"
)

// Sync errors.
var (
	ErrInvalidSyncKey  = errors.New("sync key must be 1-128 characters of letters, digits, '.', '_', ':' or '-'")
	ErrInvalidSyncJSON = errors.New("sync value must be valid JSON")
	ErrSyncValueSize   = errors.New("sync value is too large")
	ErrSyncKeyNotFound = errors.New("sync key not found")
	ErrSyncConflict    = errors.New("a newer value is already stored")
)

// DefaultSyncMaxValueBytes bounds one value.
const DefaultSyncMaxValueBytes = 256 << 10

var syncKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// syncPollOverlap is subtracted from since when listing. A write is stamped
// before it commits, so one stamped just before a poll's server_time can
// become visible only after that poll read.
const syncPollOverlap = 5 * time.Second

// SyncCache is the read-through copy of the sync store.
type SyncCache interface {
	GetSyncEntry(ctx context.Context, userID, key string) (*model.SyncEntry, error)
	GetSyncEntries(ctx context.Context, userID string) ([]*model.SyncEntry, error)
	SyncVersion(ctx context.Context, userID string) (int64, error)
	PutSyncEntry(ctx context.Context, userID string, e *model.SyncEntry) (*model.SyncEntry, error)
	FillSyncEntries(ctx context.Context, userID string, version int64, entries []*model.SyncEntry, complete bool) error
	DeleteSyncEntry(ctx context.Context, userID, key string) error
	InvalidateSyncEntry(ctx context.Context, userID, key string) error
}

// SyncStore is the durable copy of the sync store.
type SyncStore interface {
	PutUserData(ctx context.Context, userID string, entry *model.SyncEntry) (*model.SyncEntry, error)
	GetUserData(ctx context.Context, userID, key string) (*model.SyncEntry, error)
	ListUserData(ctx context.Context, userID string, since int64) ([]*model.SyncEntry, error)
	DeleteUserData(ctx context.Context, userID, key string) error
}

// SyncService is a per-user key/value store with last-write-wins semantics.
// Postgres decides every write and Redis serves reads. Writes go through to
// Redis after Postgres accepts them, and Postgres refills Redis on a miss.
type SyncService struct {
	cache    SyncCache
	store    SyncStore
	maxValue int
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewSyncService creates a SyncService.
func NewSyncService(c SyncCache, store SyncStore, maxValueBytes int, rec metrics.Recorder, logger *slog.Logger) *SyncService {
	if maxValueBytes <= 0 {
		maxValueBytes = DefaultSyncMaxValueBytes
	}
	if rec == nil {
		rec = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{
		cache:    c,
		store:    store,
		maxValue: maxValueBytes,
		metrics:  rec,
		logger:   logger.With("component", "sync"),
		now:      time.Now,
	}
}

// ConflictError carries the stored entry that beat a write.
type ConflictError struct {
	Current *model.SyncEntry
}

func (e *ConflictError) Error() string { return ErrSyncConflict.Error() }

// Unwrap lets errors.Is match ErrSyncConflict.
func (e *ConflictError) Unwrap() error { return ErrSyncConflict }

// Put stores value under key. updatedAt is the writer's clock in unix ms;
// zero uses the server clock. A write older than the stored entry fails with
// a *ConflictError holding the stored entry.
func (s *SyncService) Put(ctx context.Context, userID, key string, value json.RawMessage, updatedAt int64) (*model.SyncEntry, error) {
	if !syncKeyPattern.MatchString(key) {
		return nil, ErrInvalidSyncKey
	}
	if len(value) > s.maxValue {
		return nil, ErrSyncValueSize
	}
	if !json.Valid(value) {
		return nil, ErrInvalidSyncJSON
	}
	now := s.now().UnixMilli()
	if updatedAt <= 0 {
		updatedAt = now
	}

	entry := &model.SyncEntry{Key: key, Value: compactJSON(value), UpdatedAt: updatedAt, ChangedAt: now}

	current, err := s.store.PutUserData(ctx, userID, entry)
	if errors.Is(err, repository.ErrSyncConflict) {
		if current != nil {
			s.writeThrough(ctx, userID, current)
		}
		s.metrics.IncSyncWrite("conflict")
		return nil, &ConflictError{Current: current}
	}
	if err != nil {
		return nil, err
	}

	s.writeThrough(ctx, userID, entry)
	s.metrics.IncSyncWrite("accepted")
	return entry, nil
}

// writeThrough copies an entry Postgres holds into Redis. When Redis cannot
// take it, the cached field is dropped so reads fall back to Postgres.
func (s *SyncService) writeThrough(ctx context.Context, userID string, e *model.SyncEntry) {
	_, err := s.cache.PutSyncEntry(ctx, userID, e)
	if err == nil || errors.Is(err, cache.ErrSyncStale) {
		return
	}
	s.logger.Warn("sync cache write failed", slog.String("user_id", userID), slog.String("error", err.Error()))
	if err := s.cache.InvalidateSyncEntry(ctx, userID, e.Key); err != nil {
		s.logger.Error("sync cache invalidate failed",
			slog.String("user_id", userID),
			slog.String("key", e.Key),
			slog.String("error", err.Error()),
		)
	}
}

// Get returns one entry.
func (s *SyncService) Get(ctx context.Context, userID, key string) (*model.SyncEntry, error) {
	if !syncKeyPattern.MatchString(key) {
		return nil, ErrInvalidSyncKey
	}

	entry, err := s.cache.GetSyncEntry(ctx, userID, key)
	if err == nil {
		s.metrics.IncSyncRead("cache")
		return entry, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("sync cache read failed", slog.String("user_id", userID), slog.String("error", err.Error()))
	}

	version, versionErr := s.cache.SyncVersion(ctx, userID)
	entry, err = s.store.GetUserData(ctx, userID, key)
	if errors.Is(err, repository.ErrSyncKeyNotFound) {
		return nil, ErrSyncKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	s.metrics.IncSyncRead("database")

	if versionErr == nil {
		s.backfill(ctx, userID, version, []*model.SyncEntry{entry}, false)
	}
	return entry, nil
}

// List returns the user's entries accepted by the server after since (server
// unix ms), ordered by key. since = 0 returns everything. Entries accepted
// shortly before since are repeated; clients apply them idempotently.
func (s *SyncService) List(ctx context.Context, userID string, since int64) ([]*model.SyncEntry, error) {
	entries, err := s.cache.GetSyncEntries(ctx, userID)
	if err == nil {
		s.metrics.IncSyncRead("cache")
	} else {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("sync cache read failed", slog.String("user_id", userID), slog.String("error", err.Error()))
		}
		version, versionErr := s.cache.SyncVersion(ctx, userID)
		entries, err = s.store.ListUserData(ctx, userID, 0)
		if err != nil {
			return nil, err
		}
		s.metrics.IncSyncRead("database")
		if versionErr == nil {
			s.backfill(ctx, userID, version, entries, true)
		}
	}

	cutoff := since
	if since > 0 {
		cutoff = since - syncPollOverlap.Milliseconds()
	}
	result := make([]*model.SyncEntry, 0, len(entries))
	for _, e := range entries {
		if since == 0 || e.ChangedAt > cutoff {
			result = append(result, e)
		}
	}
	slices.SortFunc(result, func(a, b *model.SyncEntry) int { return strings.Compare(a.Key, b.Key) })
	return result, nil
}

func (s *SyncService) backfill(ctx context.Context, userID string, version int64, entries []*model.SyncEntry, complete bool) {
	err := s.cache.FillSyncEntries(ctx, userID, version, entries, complete)
	switch {
	case errors.Is(err, cache.ErrSyncChanged):
		s.logger.Debug("sync cache backfill skipped, hash changed", slog.String("user_id", userID))
	case err != nil:
		s.logger.Warn("sync cache backfill failed", slog.String("user_id", userID), slog.String("error", err.Error()))
	}
}

// Delete removes an entry.
func (s *SyncService) Delete(ctx context.Context, userID, key string) error {
	if !syncKeyPattern.MatchString(key) {
		return ErrInvalidSyncKey
	}
	err := s.store.DeleteUserData(ctx, userID, key)
	if err != nil && !errors.Is(err, repository.ErrSyncKeyNotFound) {
		return err
	}
	if cacheErr := s.cache.DeleteSyncEntry(ctx, userID, key); cacheErr != nil {
		s.logger.Warn("sync cache delete failed", slog.String("user_id", userID), slog.String("error", cacheErr.Error()))
	}
	if err != nil {
		return ErrSyncKeyNotFound
	}
	return nil
}

func compactJSON(v json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return v
	}
	return json.RawMessage(buf.Bytes())
}
