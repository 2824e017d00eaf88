package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crewcal/server/internal/auth"
	"github.com/crewcal/server/internal/sanitize"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// Service handles account registration and session-based authentication.
//
// Sessions are opaque random tokens; only their SHA-256 digest is stored.
// A session past its expiry is treated as absent, not as an error state.
type Service struct {
	repo       Repository
	logger     zerolog.Logger
	validator  *validator.Validate
	sessionTTL time.Duration
}

func NewService(repo Repository, logger zerolog.Logger, sessionTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		logger:     logger.With().Str("component", "users").Logger(),
		validator:  validator.New(),
		sessionTTL: sessionTTL,
	}
}

type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,min=1,max=200"`
	Password string `json:"password" validate:"required"`
}

// Register creates a user account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = sanitize.Text(strings.TrimSpace(input.Name))

	if err := s.validator.Struct(input); err != nil {
		return nil, fmt.Errorf("validate register input: %w", err)
	}

	if existing, err := s.repo.GetUserByEmail(ctx, input.Email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	}

	passwordHash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: passwordHash,
	})
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info().
		Str("user_id", user.ID).
		Str("email", user.Email).
		Msg("user registered")

	return user, nil
}

// Login verifies credentials and mints a new session. Returns the plaintext
// session token exactly once; only its hash is stored.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, *Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	creds, err := s.repo.GetCredentialsByEmail(ctx, email)
	if err != nil {
		// Do not reveal whether the email exists.
		return nil, "", nil, ErrInvalidCredentials
	}
	if !auth.CheckPassword(creds.PasswordHash, password) {
		return nil, "", nil, ErrInvalidCredentials
	}

	user, err := s.repo.GetUserByID(ctx, creds.UserID)
	if err != nil {
		return nil, "", nil, ErrInvalidCredentials
	}

	token, tokenHash, err := auth.NewSessionToken()
	if err != nil {
		return nil, "", nil, fmt.Errorf("mint session token: %w", err)
	}

	session, err := s.repo.CreateSession(ctx, CreateSessionParams{
		TokenHash: tokenHash,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.sessionTTL),
	})
	if err != nil {
		return nil, "", nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info().
		Str("user_id", user.ID).
		Msg("user logged in")

	return user, token, session, nil
}

// Logout removes the session for the token. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := auth.ValidateTokenFormat(token); err != nil {
		return nil
	}
	err := s.repo.DeleteSessionByTokenHash(ctx, auth.HashSessionToken(token))
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ValidateSession resolves a session token to its user. Expired or unknown
// sessions yield ErrSessionNotFound.
func (s *Service) ValidateSession(ctx context.Context, token string) (*User, error) {
	if err := auth.ValidateTokenFormat(token); err != nil {
		return nil, ErrSessionNotFound
	}

	session, err := s.repo.GetSessionByTokenHash(ctx, auth.HashSessionToken(token))
	if err != nil {
		return nil, ErrSessionNotFound
	}
	if time.Now().After(session.ExpiresAt) {
		// Lazily drop the expired row; absence is the contract either way.
		_ = s.repo.DeleteSessionByTokenHash(ctx, auth.HashSessionToken(token))
		return nil, ErrSessionNotFound
	}

	user, err := s.repo.GetUserByID(ctx, session.UserID)
	if err != nil {
		return nil, ErrSessionNotFound
	}
	return user, nil
}

// GetByID returns a user by id.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// CleanupExpiredSessions deletes sessions past their expiry and reports how
// many were removed. Meant to run periodically from the server process.
func (s *Service) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	deleted, err := s.repo.DeleteExpiredSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("expired sessions cleaned up")
	}
	return deleted, nil
}
