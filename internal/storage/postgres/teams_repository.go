package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/crewcal/server/internal/domain/teams"
	"github.com/crewcal/server/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

var _ storage.TeamRepository = (*TeamRepository)(nil)

func (r *TeamRepository) Create(ctx context.Context, params teams.CreateParams) (*teams.Team, error) {
	var team *teams.Team
	err := r.db.WithTx(ctx, func(ctx context.Context, txRepo storage.Repository) error {
		tr, ok := txRepo.Teams().(*TeamRepository)
		if !ok {
			return fmt.Errorf("unexpected team repository %T", txRepo.Teams())
		}
		var err error
		team, err = tr.createIn(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return team, nil
}

// createIn inserts the team and its owner membership as one unit. A team
// without at least one member is unreachable, so the two rows never exist
// apart. Only called on a transaction-bound repository.
func (r *TeamRepository) createIn(ctx context.Context, params teams.CreateParams) (*teams.Team, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
INSERT INTO teams (id, name, description)
VALUES ($1, $2, $3)
RETURNING id, name, description, created_at, updated_at
`, params.ID, params.Name, params.Description)

	team, err := scanTeam(row)
	if err != nil {
		return nil, fmt.Errorf("insert team: %w", err)
	}

	_, err = queryer.Exec(ctx, `
INSERT INTO team_members (team_id, user_id, role)
VALUES ($1, $2, $3)
`, params.ID, params.OwnerID, string(teams.RoleOwner))
	if err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}

	return team, nil
}

func (r *TeamRepository) GetByID(ctx context.Context, id string) (*teams.Team, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
SELECT id, name, description, created_at, updated_at
  FROM teams
 WHERE id = $1
`, id)

	team, err := scanTeam(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, teams.ErrNotFound
		}
		return nil, fmt.Errorf("get team: %w", err)
	}
	return team, nil
}

func (r *TeamRepository) ListForUser(ctx context.Context, userID string) ([]teams.Team, error) {
	queryer := r.queryer()

	rows, err := queryer.Query(ctx, `
SELECT t.id, t.name, t.description, t.created_at, t.updated_at
  FROM teams t
  JOIN team_members m ON m.team_id = t.id
 WHERE m.user_id = $1
 ORDER BY t.name ASC, t.id ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	items := make([]teams.Team, 0)
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		items = append(items, *team)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return items, nil
}

func (r *TeamRepository) ListMemberTeamIDs(ctx context.Context, userID string) ([]string, error) {
	queryer := r.queryer()

	rows, err := queryer.Query(ctx, `
SELECT team_id
  FROM team_members
 WHERE user_id = $1
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list member team ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan team id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate team ids: %w", err)
	}
	return ids, nil
}

func (r *TeamRepository) AddMember(ctx context.Context, params teams.AddMemberParams) (*teams.Membership, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
INSERT INTO team_members (team_id, user_id, role)
VALUES ($1, $2, $3)
RETURNING id::text, team_id, user_id::text, role, joined_at
`, params.TeamID, params.UserID, string(params.Role))

	var membership teams.Membership
	var role string
	var joinedAt pgtype.Timestamptz
	err := row.Scan(&membership.ID, &membership.TeamID, &membership.UserID, &role, &joinedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return nil, teams.ErrAlreadyMember
			case "23503":
				// The service checks the team before inserting, so a
				// foreign-key failure here points at the user row.
				return nil, teams.ErrUserNotFound
			}
		}
		return nil, fmt.Errorf("insert membership: %w", err)
	}
	membership.Role = teams.Role(role)
	if joinedAt.Valid {
		membership.JoinedAt = joinedAt.Time
	}
	return &membership, nil
}

func (r *TeamRepository) Exists(ctx context.Context, teamID string) (bool, error) {
	queryer := r.queryer()

	var exists bool
	err := queryer.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM teams WHERE id = $1)`, teamID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check team exists: %w", err)
	}
	return exists, nil
}

func (r *TeamRepository) queryer() queryer {
	return r.db.queryer()
}

func scanTeam(row pgx.Row) (*teams.Team, error) {
	var team teams.Team
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&team.ID, &team.Name, &team.Description, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if createdAt.Valid {
		team.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		team.UpdatedAt = updatedAt.Time
	}
	return &team, nil
}
