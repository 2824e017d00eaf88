package users

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a user lookup fails.
	ErrNotFound = errors.New("user not found")

	// ErrEmailTaken is returned when registering with an existing email.
	ErrEmailTaken = errors.New("email is already taken")

	// ErrInvalidCredentials is returned when email/password authentication fails.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrSessionNotFound is returned for unknown or expired session tokens.
	ErrSessionNotFound = errors.New("session not found")
)

type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Credentials carries the stored password hash for authentication. Never
// leaves the users package.
type Credentials struct {
	UserID       string
	PasswordHash string
}

type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type CreateUserParams struct {
	Email        string
	Name         string
	PasswordHash string
}

type CreateSessionParams struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
}

type Repository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetCredentialsByEmail(ctx context.Context, email string) (*Credentials, error)

	CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error)
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}
