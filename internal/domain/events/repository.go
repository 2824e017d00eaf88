package events

import (
	"context"
	"time"
)

type Event struct {
	ID          string
	TeamID      string
	Title       string
	Description string
	Location    string
	StartDate   time.Time
	EndDate     time.Time
	Timezone    string
	CreatedBy   string
	UpdatedBy   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserRef is the read-only projection of a user embedded in relation lookups.
type UserRef struct {
	ID    string
	Name  string
	Email string
}

// TeamRef is the read-only projection of the owning team.
type TeamRef struct {
	ID          string
	Name        string
	Description string
}

type EventWithRelations struct {
	Event
	Creator *UserRef
	Updater *UserRef
	Team    *TeamRef
}

type CreateParams struct {
	ID          string
	TeamID      string
	Title       string
	Description string
	Location    string
	StartDate   time.Time
	EndDate     time.Time
	Timezone    string
	CreatedBy   string
}

// UpdateParams is a partial field replacement: nil pointers leave the stored
// value untouched. TeamID, CreatedBy, and CreatedAt are never updatable.
type UpdateParams struct {
	Title       *string
	Description *string
	Location    *string
	StartDate   *time.Time
	EndDate     *time.Time
	Timezone    *string
	UpdatedBy   string
}

type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Event, error)
	// ListByTeams returns events whose team is in the set, ordered by
	// start date ascending. Never called with an empty set.
	ListByTeams(ctx context.Context, teamIDs []string) ([]Event, error)
	GetByID(ctx context.Context, id string) (*Event, error)
	GetByIDWithRelations(ctx context.Context, id string) (*EventWithRelations, error)
	// Update applies params to the event row. When guard is non-nil the
	// write only succeeds if the stored updated_at is not past the guard;
	// a guard miss yields ErrConflict. The comparison happens inside the
	// UPDATE statement itself so the lock holds under concurrent writers.
	Update(ctx context.Context, id string, params UpdateParams, guard *time.Time) (*Event, error)
	Delete(ctx context.Context, id string) error
}

// TeamDirectory is the slice of the teams store the event service needs:
// a bare existence check at create time.
type TeamDirectory interface {
	Exists(ctx context.Context, teamID string) (bool, error)
}
