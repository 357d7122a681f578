//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/testutil"
)

// newTestEnv hands out a repository on a freshly migrated schema that no
// other test touches until t finishes.
func newTestEnv(t *testing.T) (context.Context, *Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}

	ctx := context.Background()
	repo, err := New(ctx, testutil.RequireEnv(t, "DATABASE_URL"))
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	testutil.LockDB(t, ctx, repo.Pool())
	if err := testutil.ResetSchema(ctx, repo.Pool()); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return ctx, repo
}

func createTestUser(t *testing.T, ctx context.Context, repo *Repository) *model.User {
	t.Helper()
	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}
