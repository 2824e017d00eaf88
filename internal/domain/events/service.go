package events

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/crewcal/server/internal/domain/ids"
	"github.com/crewcal/server/internal/sanitize"
	"github.com/rs/zerolog"
)

// Service is the single authorizing and consistency-enforcing gateway for
// event reads and writes. No operation on an event bypasses it.
//
// Authorization is flat team membership: an operation on an event is allowed
// exactly when the event's team id is in the caller's team set. Membership
// roles are stored but never consulted here.
type Service struct {
	repo   Repository
	teams  TeamDirectory
	logger zerolog.Logger
}

func NewService(repo Repository, teams TeamDirectory, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		teams:  teams,
		logger: logger.With().Str("component", "events").Logger(),
	}
}

func canAccess(event *Event, teamIDs []string) bool {
	return slices.Contains(teamIDs, event.TeamID)
}

// CanCreate is the create-time access predicate: the target team must be in
// the caller's membership set.
func CanCreate(teamID string, teamIDs []string) bool {
	return slices.Contains(teamIDs, teamID)
}

// Create validates team access and existence, then persists a new event with
// the acting user recorded as creator. Timestamps are store-assigned.
func (s *Service) Create(ctx context.Context, input CreateEventInput, teamIDs []string, actorID string) (*Event, error) {
	s.logger.Info().
		Str("team_id", input.TeamID).
		Str("user_id", actorID).
		Msg("event.create.start")

	if err := input.Validate(); err != nil {
		s.logger.Warn().
			Str("team_id", input.TeamID).
			Str("user_id", actorID).
			Str("reason", "validation").
			Err(err).
			Msg("event.create.failed")
		return nil, err
	}

	if !CanCreate(input.TeamID, teamIDs) {
		s.logger.Warn().
			Str("team_id", input.TeamID).
			Str("user_id", actorID).
			Str("reason", "access_denied").
			Msg("event.create.failed")
		return nil, ErrAccessDenied
	}

	// Membership was just confirmed, yet the team row may have vanished in
	// the meantime. A hard existence check guards the foreign key.
	exists, err := s.teams.Exists(ctx, input.TeamID)
	if err != nil {
		return nil, fmt.Errorf("check team existence: %w", err)
	}
	if !exists {
		s.logger.Warn().
			Str("team_id", input.TeamID).
			Str("user_id", actorID).
			Str("reason", "team_not_found").
			Msg("event.create.failed")
		return nil, ErrTeamNotFound
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint event id: %w", err)
	}

	timezone := strings.TrimSpace(input.Timezone)
	if timezone == "" {
		timezone = DefaultTimezone
	}

	event, err := s.repo.Create(ctx, CreateParams{
		ID:          id,
		TeamID:      input.TeamID,
		Title:       sanitize.Text(input.Title),
		Description: sanitize.HTML(input.Description),
		Location:    sanitize.Text(input.Location),
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		Timezone:    timezone,
		CreatedBy:   actorID,
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	s.logger.Info().
		Str("event_id", event.ID).
		Str("team_id", event.TeamID).
		Str("user_id", actorID).
		Msg("event.create.success")

	return event, nil
}

// ListByTeams returns all events visible through the given team set, ordered
// by start date ascending. An empty set short-circuits to an empty list
// without touching the store.
func (s *Service) ListByTeams(ctx context.Context, teamIDs []string) ([]Event, error) {
	if len(teamIDs) == 0 {
		return []Event{}, nil
	}
	list, err := s.repo.ListByTeams(ctx, teamIDs)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if list == nil {
		list = []Event{}
	}
	return list, nil
}

// GetByID fetches an event and enforces team access. Existence is checked
// first: a missing id is ErrNotFound regardless of the caller's teams.
func (s *Service) GetByID(ctx context.Context, eventID string, teamIDs []string) (*Event, error) {
	event, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !canAccess(event, teamIDs) {
		return nil, ErrAccessDenied
	}
	return event, nil
}

// GetByIDWithRelations behaves like GetByID with the creator, updater, and
// owning team embedded as read-only projections. Purely a projection
// difference, not an authorization one.
func (s *Service) GetByIDWithRelations(ctx context.Context, eventID string, teamIDs []string) (*EventWithRelations, error) {
	event, err := s.repo.GetByIDWithRelations(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !canAccess(&event.Event, teamIDs) {
		return nil, ErrAccessDenied
	}
	return event, nil
}

// Update applies a partial patch after enforcing access and the optimistic
// lock. When the client supplies its last-read updatedAt and the stored value
// has moved past it, the update fails with ErrConflict; when omitted, the
// write overwrites unconditionally (the documented force path).
func (s *Service) Update(ctx context.Context, eventID string, input UpdateEventInput, teamIDs []string, actorID string) (*Event, error) {
	s.logger.Info().
		Str("event_id", eventID).
		Str("user_id", actorID).
		Msg("event.update.start")

	if err := input.Validate(); err != nil {
		s.logger.Warn().
			Str("event_id", eventID).
			Str("user_id", actorID).
			Str("reason", "validation").
			Err(err).
			Msg("event.update.failed")
		return nil, err
	}

	current, err := s.GetByID(ctx, eventID, teamIDs)
	if err != nil {
		s.logger.Warn().
			Str("event_id", eventID).
			Str("user_id", actorID).
			Err(err).
			Msg("event.update.failed")
		return nil, err
	}

	if input.ClientUpdatedAt != nil && current.UpdatedAt.After(*input.ClientUpdatedAt) {
		s.logConflict(eventID, actorID, *input.ClientUpdatedAt, current.UpdatedAt)
		return nil, ConflictError{
			ClientUpdatedAt: *input.ClientUpdatedAt,
			ServerUpdatedAt: current.UpdatedAt,
		}
	}

	params := UpdateParams{
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		UpdatedBy: actorID,
	}
	if input.Title != nil {
		title := sanitize.Text(*input.Title)
		params.Title = &title
	}
	if input.Description != nil {
		description := sanitize.HTML(*input.Description)
		params.Description = &description
	}
	if input.Location != nil {
		location := sanitize.Text(*input.Location)
		params.Location = &location
	}
	if input.Timezone != nil {
		timezone := strings.TrimSpace(*input.Timezone)
		if timezone == "" {
			timezone = DefaultTimezone
		}
		params.Timezone = &timezone
	}

	// The guard repeats the comparison inside the UPDATE itself, so a write
	// that sneaks in between the read above and this statement still loses.
	updated, err := s.repo.Update(ctx, eventID, params, input.ClientUpdatedAt)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			client := current.UpdatedAt
			if input.ClientUpdatedAt != nil {
				client = *input.ClientUpdatedAt
			}
			s.logConflict(eventID, actorID, client, current.UpdatedAt)
			return nil, ConflictError{
				ClientUpdatedAt: client,
				ServerUpdatedAt: current.UpdatedAt,
			}
		}
		return nil, fmt.Errorf("update event: %w", err)
	}

	s.logger.Info().
		Str("event_id", updated.ID).
		Str("user_id", actorID).
		Time("updated_at", updated.UpdatedAt).
		Msg("event.update.success")

	return updated, nil
}

// Delete removes an event after the same existence and access checks as a
// read. No optimistic-lock check applies to delete.
func (s *Service) Delete(ctx context.Context, eventID string, teamIDs []string) error {
	event, err := s.GetByID(ctx, eventID, teamIDs)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, event.ID); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	s.logger.Info().
		Str("event_id", event.ID).
		Str("team_id", event.TeamID).
		Msg("event.delete.success")

	return nil
}

func (s *Service) logConflict(eventID, actorID string, clientUpdatedAt, serverUpdatedAt time.Time) {
	s.logger.Warn().
		Str("event_id", eventID).
		Str("user_id", actorID).
		Time("client_updated_at", clientUpdatedAt).
		Time("server_updated_at", serverUpdatedAt).
		Msg("event.update.conflict")
}
