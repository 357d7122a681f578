package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cabinet/cabinet/internal/auth"
)

// fastParams keep Argon2id cheap in tests.
var fastParams = auth.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func newAuthService() (*AuthService, *auth.TokenIssuer) {
	tokens := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	return NewAuthService(newFakeUsers(), tokens, auth.NewHasher(fastParams)), tokens
}

func TestAuthRegisterAndLogin(t *testing.T) {
	svc, tokens := newAuthService()
	ctx := context.Background()

	session, err := svc.Register(ctx, RegisterInput{Email: " Alice@Example.com", Name: "Alice", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", session.User.Email)
	assert.NotEqual(t, "correct horse", session.User.PasswordHash)

	claims, err := tokens.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)

	_, err = svc.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "another one"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	login, err := svc.Login(ctx, "ALICE@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, login.User.ID)

	_, err = svc.Login(ctx, "alice@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	me, err := svc.Me(ctx, session.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", me.Name)
	_, err = svc.Me(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestAuthRegisterValidation(t *testing.T) {
	svc, _ := newAuthService()

	tests := []struct {
		name  string
		input RegisterInput
		want  error
	}{
		{"empty email", RegisterInput{Password: "long enough"}, ErrInvalidEmail},
		{"no domain dot", RegisterInput{Email: "a@localhost", Password: "long enough"}, ErrInvalidEmail},
		{"display name", RegisterInput{Email: "Bob <bob@example.com>", Password: "long enough"}, ErrInvalidEmail},
		{"short password", RegisterInput{Email: "bob@example.com", Password: "short"}, ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
