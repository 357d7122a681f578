package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/cabinet/cabinet/internal/auth"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/repository"
)

// Auth errors.
var (
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
)

const (
	minPasswordLength = 8
	maxPasswordLength = 256
	maxNameLength     = 100
)

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// AuthService registers users and issues session tokens.
type AuthService struct {
	users  UserStore
	tokens *auth.TokenIssuer
	hasher *auth.Hasher

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates an AuthService. A nil hasher uses the default
// Argon2id parameters.
func NewAuthService(users UserStore, tokens *auth.TokenIssuer, hasher *auth.Hasher) *AuthService {
	if hasher == nil {
		hasher = auth.NewHasher(auth.DefaultParams)
	}
	return &AuthService{users: users, tokens: tokens, hasher: hasher}
}

// Session is a signed-in user and their token.
type Session struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// RegisterInput defines input for creating an account.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
}

// Register creates a user and signs them in.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	email, err := validateEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if len(input.Password) < minPasswordLength || len(input.Password) > maxPasswordLength {
		return nil, ErrWeakPassword
	}
	name := strings.TrimSpace(input.Name)
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:           newID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return s.issue(user)
}

// Login checks the password and signs the user in.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrUserNotFound) {
		// Burn the same hashing time as a real check
		_, _ = s.hasher.Verify(password, s.dummy())
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

// Me returns the user behind a session.
func (s *AuthService) Me(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *AuthService) issue(user *model.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("cabinet-dummy-password")
	})
	return s.dummyHash
}

func validateEmail(raw string) (string, error) {
	email := normalizeEmail(raw)
	if email == "" || len(email) > 254 {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return "", ErrInvalidEmail
	}
	return email, nil
}
