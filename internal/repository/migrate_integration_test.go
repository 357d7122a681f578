//go:build integration

package repository

import (
	"context"
	"slices"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cabinet/cabinet/internal/testutil"
)

func TestIntegrationMigrate_FromEmptySchema(t *testing.T) {
	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(pool.Close)
	testutil.LockDB(t, ctx, pool)
	if err := testutil.DropSchema(ctx, pool); err != nil {
		t.Fatal(err)
	}

	for run := 1; run <= 2; run++ {
		version, err := Migrate(dbURL)
		if err != nil {
			t.Fatalf("run %d: Migrate failed: %v", run, err)
		}
		if version != 7 {
			t.Errorf("run %d: schema version = %d, want 7", run, version)
		}
	}

	rows, _ := pool.Query(ctx, `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'`)
	tables, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		t.Fatalf("list tables: %v", err)
	}
	for _, want := range []string{
		"users", "reddit_accounts", "cabinet_members", "cabinet_invitations", "subreddit_tabs",
		"subreddits", "user_data", "user_settings", "api_keys", "engagement_tasks",
	} {
		if !slices.Contains(tables, want) {
			t.Errorf("table %q missing after migrations, have %v", want, tables)
		}
	}
}

func TestIntegrationMigrate_CheckConstraints(t *testing.T) {
	ctx, repo := newTestEnv(t)
	user := createTestUser(t, ctx, repo)

	tests := []struct {
		name string
		sql  string
	}{
		{"unknown account status", `
			INSERT INTO reddit_accounts (id, user_id, reddit_url, username, status)
			VALUES ('acc-bad-status', $1, 'https://www.reddit.com/user/x', 'x', 'zombie')`},
		{"owner joins own cabinet", `
			INSERT INTO cabinet_members (id, owner_id, member_id) VALUES ('self-member', $1, $1)`},
		{"unsupported task action", `
			INSERT INTO engagement_tasks (id, user_id, account_id, action, target_url)
			VALUES ('task-bad-action', $1, 'missing', 'downvote', 'https://www.reddit.com/')`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.Pool().Exec(ctx, tt.sql, user.ID); err == nil {
				t.Error("insert should violate a constraint")
			}
		})
	}
}
