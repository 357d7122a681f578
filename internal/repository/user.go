package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cabinet/cabinet/internal/model"
)

// User lookup errors.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
)

const selectUser = `SELECT id, email, name, password_hash, created_at, updated_at FROM users`

// CreateUser stores a dashboard user. Emails are unique regardless of case.
func (r *Repository) CreateUser(ctx context.Context, u *model.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	switch {
	case isUniqueViolation(err):
		return ErrEmailExists
	case err != nil:
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID looks a user up by ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.getUser(ctx, selectUser+` WHERE id = $1`, id)
}

// GetUserByEmail looks a user up by email, ignoring case.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, selectUser+` WHERE LOWER(email) = LOWER($1)`, email)
}

func (r *Repository) getUser(ctx context.Context, query string, arg any) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}
