package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewcal/server/internal/domain/users"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

var _ users.Repository = (*UserRepository)(nil)

func (r *UserRepository) CreateUser(ctx context.Context, params users.CreateUserParams) (*users.User, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
INSERT INTO users (email, name, password_hash)
VALUES ($1, $2, $3)
RETURNING id::text, email, name, created_at, updated_at
`, params.Email, params.Name, params.PasswordHash)

	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, users.ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*users.User, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
SELECT id::text, email, name, created_at, updated_at
  FROM users
 WHERE id = $1
`, id)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*users.User, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
SELECT id::text, email, name, created_at, updated_at
  FROM users
 WHERE email = $1
`, email)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *UserRepository) GetCredentialsByEmail(ctx context.Context, email string) (*users.Credentials, error) {
	queryer := r.queryer()

	var creds users.Credentials
	err := queryer.QueryRow(ctx, `
SELECT id::text, password_hash
  FROM users
 WHERE email = $1
`, email).Scan(&creds.UserID, &creds.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get credentials: %w", err)
	}
	return &creds, nil
}

func (r *UserRepository) CreateSession(ctx context.Context, params users.CreateSessionParams) (*users.Session, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
INSERT INTO sessions (token_hash, user_id, expires_at)
VALUES ($1, $2, $3)
RETURNING id::text, user_id::text, expires_at, created_at
`, params.TokenHash, params.UserID, params.ExpiresAt)

	session, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

func (r *UserRepository) GetSessionByTokenHash(ctx context.Context, tokenHash string) (*users.Session, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
SELECT id::text, user_id::text, expires_at, created_at
  FROM sessions
 WHERE token_hash = $1
`, tokenHash)

	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (r *UserRepository) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	queryer := r.queryer()

	if _, err := queryer.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *UserRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	queryer := r.queryer()

	tag, err := queryer.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *UserRepository) queryer() queryer {
	return r.db.queryer()
}

func scanUser(row pgx.Row) (*users.User, error) {
	var user users.User
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&user.ID, &user.Email, &user.Name, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if createdAt.Valid {
		user.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		user.UpdatedAt = updatedAt.Time
	}
	return &user, nil
}

func scanSession(row pgx.Row) (*users.Session, error) {
	var session users.Session
	var expiresAt, createdAt pgtype.Timestamptz
	err := row.Scan(&session.ID, &session.UserID, &expiresAt, &createdAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		session.ExpiresAt = expiresAt.Time
	}
	if createdAt.Valid {
		session.CreatedAt = createdAt.Time
	}
	return &session, nil
}
