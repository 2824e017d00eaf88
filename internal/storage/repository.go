package storage

import (
	"context"

	"github.com/crewcal/server/internal/domain/events"
	"github.com/crewcal/server/internal/domain/teams"
	"github.com/crewcal/server/internal/domain/users"
)

// Repository groups data access by domain.
type Repository interface {
	Events() events.Repository
	Teams() TeamRepository
	Users() users.Repository

	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}

// TeamRepository is the full team store plus the existence check the event
// service uses at create time.
type TeamRepository interface {
	teams.Repository
	events.TeamDirectory
}
