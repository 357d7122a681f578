package testutil

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/migrations"
)

// RequireEnv returns the value of key, skipping the test when it is unset.
// Integration tests use it so a plain go test run stays offline.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

// dbLockID is the advisory lock every database test holds while it owns the
// schema.
const dbLockID int64 = 0x6361626e

// LockDB serializes database tests across packages. The lock is released
// when t finishes.
func LockDB(t testing.TB, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection for test lock: %v", err)
	}
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", dbLockID); err != nil {
		conn.Release()
		t.Fatalf("acquire test lock: %v", err)
	}
	t.Cleanup(func() {
		defer conn.Release()
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", dbLockID); err != nil {
			t.Logf("release test lock: %v", err)
		}
	})
}

// DropSchema removes every table, including the migration bookkeeping.
func DropSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, "DROP SCHEMA public CASCADE; CREATE SCHEMA public"); err != nil {
		return fmt.Errorf("drop schema: %w", err)
	}
	return nil
}

// ResetSchema drops the public schema and replays every embedded up
// migration in order.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if err := DropSchema(ctx, pool); err != nil {
		return err
	}

	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(ups)
	for _, name := range ups {
		sql, err := fs.ReadFile(migrations.FS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// NewID returns a fresh ULID string.
func NewID() string {
	return ulid.Make().String()
}

// UniqueEmail generates a unique email address for tests.
func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%d@example.test", prefix, time.Now().UnixNano())
}

// NewTestUser creates a test user with sensible defaults.
func NewTestUser(t testing.TB) *model.User {
	t.Helper()
	now := time.Now().UTC()
	return &model.User{
		ID:           NewID(),
		Email:        UniqueEmail("user"),
		Name:         "Test User",
		PasswordHash: "$argon2id$v=19$m=1024,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2g",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestAccount creates a test reddit account owned by userID.
func NewTestAccount(t testing.TB, userID, username string) *model.RedditAccount {
	t.Helper()
	now := time.Now().UTC()
	return &model.RedditAccount{
		ID:            NewID(),
		UserID:        userID,
		RedditURL:     "https://www.reddit.com/user/" + username,
		Username:      username,
		Login:         username,
		Password:      "hunter2",
		SessionCookie: "reddit_session=abc",
		Status:        model.AccountStatusUnverified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewTestAPIKey creates a test API key with sensible defaults.
func NewTestAPIKey(t testing.TB, userID string) *model.APIKey {
	t.Helper()
	now := time.Now().UTC()
	return &model.APIKey{
		ID:        NewID(),
		UserID:    userID,
		KeyHash:   fmt.Sprintf("hash-%d", now.UnixNano()),
		KeyPrefix: "abc123",
		Scopes:    []string{model.ScopeExtension},
		Name:      "Test Key",
		CreatedAt: now,
	}
}

// NewTestTask creates a pending comment task for an account.
func NewTestTask(t testing.TB, userID, accountID string) *model.EngagementTask {
	t.Helper()
	now := time.Now().UTC()
	return &model.EngagementTask{
		ID:            NewID(),
		UserID:        userID,
		AccountID:     accountID,
		Action:        model.ActionComment,
		TargetURL:     "https://www.reddit.com/r/golang/comments/abc123/title/",
		CommentText:   "Nice post",
		Status:        model.TaskPending,
		MaxAttempts:   5,
		NextAttemptAt: now.Add(-time.Second),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
