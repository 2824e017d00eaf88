package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crewcal/server/internal/domain/events"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

var _ events.Repository = (*EventRepository)(nil)

type eventRow struct {
	ID          string
	TeamID      string
	Title       string
	Description string
	Location    string
	StartDate   pgtype.Timestamptz
	EndDate     pgtype.Timestamptz
	Timezone    string
	CreatedBy   string
	UpdatedBy   *string
	CreatedAt   pgtype.Timestamptz
	UpdatedAt   pgtype.Timestamptz
}

const eventColumns = `e.id, e.team_id, e.title, e.description, e.location,
       e.start_date, e.end_date, e.timezone,
       e.created_by::text, e.updated_by::text, e.created_at, e.updated_at`

func (r *EventRepository) Create(ctx context.Context, params events.CreateParams) (*events.Event, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
INSERT INTO events (id, team_id, title, description, location, start_date, end_date, timezone, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, team_id, title, description, location,
          start_date, end_date, timezone,
          created_by::text, updated_by::text, created_at, updated_at
`,
		params.ID,
		params.TeamID,
		params.Title,
		params.Description,
		params.Location,
		params.StartDate,
		params.EndDate,
		params.Timezone,
		params.CreatedBy,
	)

	event, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) ListByTeams(ctx context.Context, teamIDs []string) ([]events.Event, error) {
	queryer := r.queryer()

	rows, err := queryer.Query(ctx, `
SELECT `+eventColumns+`
  FROM events e
 WHERE e.team_id = ANY($1)
 ORDER BY e.start_date ASC, e.id ASC
`, teamIDs)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	items := make([]events.Event, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		items = append(items, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return items, nil
}

func (r *EventRepository) GetByID(ctx context.Context, id string) (*events.Event, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
SELECT `+eventColumns+`
  FROM events e
 WHERE e.id = $1
`, id)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) GetByIDWithRelations(ctx context.Context, id string) (*events.EventWithRelations, error) {
	queryer := r.queryer()

	row := queryer.QueryRow(ctx, `
SELECT `+eventColumns+`,
       cu.id::text, cu.name, cu.email,
       uu.id::text, uu.name, uu.email,
       t.id, t.name, t.description
  FROM events e
  JOIN teams t ON t.id = e.team_id
  LEFT JOIN users cu ON cu.id = e.created_by
  LEFT JOIN users uu ON uu.id = e.updated_by
 WHERE e.id = $1
`, id)

	var er eventRow
	var creatorID, creatorName, creatorEmail *string
	var updaterID, updaterName, updaterEmail *string
	var teamRef events.TeamRef
	err := row.Scan(
		&er.ID, &er.TeamID, &er.Title, &er.Description, &er.Location,
		&er.StartDate, &er.EndDate, &er.Timezone,
		&er.CreatedBy, &er.UpdatedBy, &er.CreatedAt, &er.UpdatedAt,
		&creatorID, &creatorName, &creatorEmail,
		&updaterID, &updaterName, &updaterEmail,
		&teamRef.ID, &teamRef.Name, &teamRef.Description,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("get event with relations: %w", err)
	}

	result := &events.EventWithRelations{
		Event: rowToEvent(er),
		Team:  &teamRef,
	}
	if creatorID != nil {
		result.Creator = &events.UserRef{
			ID:    *creatorID,
			Name:  textOrEmpty(creatorName),
			Email: textOrEmpty(creatorEmail),
		}
	}
	if updaterID != nil {
		result.Updater = &events.UserRef{
			ID:    *updaterID,
			Name:  textOrEmpty(updaterName),
			Email: textOrEmpty(updaterEmail),
		}
	}
	return result, nil
}

func (r *EventRepository) Update(ctx context.Context, id string, params events.UpdateParams, guard *time.Time) (*events.Event, error) {
	queryer := r.queryer()

	// The guard comparison lives inside the statement so a concurrent write
	// between the caller's read and this write still loses the row match.
	// updated_at advances by at least a full second per write, keeping
	// lock tokens strictly ordered even when writes land within one clock
	// second.
	row := queryer.QueryRow(ctx, `
UPDATE events
   SET title       = COALESCE($2, title),
       description = COALESCE($3, description),
       location    = COALESCE($4, location),
       start_date  = COALESCE($5, start_date),
       end_date    = COALESCE($6, end_date),
       timezone    = COALESCE($7, timezone),
       updated_by  = $8,
       updated_at  = GREATEST(now(), updated_at + interval '1 second')
 WHERE id = $1
   AND ($9::timestamptz IS NULL OR updated_at <= $9::timestamptz)
RETURNING id, team_id, title, description, location,
          start_date, end_date, timezone,
          created_by::text, updated_by::text, created_at, updated_at
`,
		id,
		params.Title,
		params.Description,
		params.Location,
		params.StartDate,
		params.EndDate,
		params.Timezone,
		params.UpdatedBy,
		guard,
	)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the row is gone or the guard missed; tell them apart.
			var exists bool
			if existsErr := queryer.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists); existsErr != nil {
				return nil, fmt.Errorf("update event: %w", existsErr)
			}
			if exists {
				return nil, events.ErrConflict
			}
			return nil, events.ErrNotFound
		}
		return nil, fmt.Errorf("update event: %w", err)
	}
	return event, nil
}

func (r *EventRepository) Delete(ctx context.Context, id string) error {
	queryer := r.queryer()

	tag, err := queryer.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return events.ErrNotFound
	}
	return nil
}

func (r *EventRepository) queryer() queryer {
	return r.db.queryer()
}

func scanEvent(row pgx.Row) (*events.Event, error) {
	var er eventRow
	err := row.Scan(
		&er.ID, &er.TeamID, &er.Title, &er.Description, &er.Location,
		&er.StartDate, &er.EndDate, &er.Timezone,
		&er.CreatedBy, &er.UpdatedBy, &er.CreatedAt, &er.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	event := rowToEvent(er)
	return &event, nil
}

func rowToEvent(er eventRow) events.Event {
	event := events.Event{
		ID:          er.ID,
		TeamID:      er.TeamID,
		Title:       er.Title,
		Description: er.Description,
		Location:    er.Location,
		Timezone:    er.Timezone,
		CreatedBy:   er.CreatedBy,
		UpdatedBy:   er.UpdatedBy,
	}
	if er.StartDate.Valid {
		event.StartDate = er.StartDate.Time
	}
	if er.EndDate.Valid {
		event.EndDate = er.EndDate.Time
	}
	if er.CreatedAt.Valid {
		event.CreatedAt = er.CreatedAt.Time
	}
	if er.UpdatedAt.Valid {
		event.UpdatedAt = er.UpdatedAt.Time
	}
	return event
}

// textOrEmpty flattens a nullable text column for display structs.
func textOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
