package teams

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/crewcal/server/internal/domain/ids"
	"github.com/crewcal/server/internal/sanitize"
	"github.com/rs/zerolog"
)

// Service owns team lifecycle and membership resolution. Membership is the
// sole authorization signal for event access: the team-id set it resolves is
// recomputed per request and never cached.
type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("component", "teams").Logger(),
	}
}

type CreateTeamInput struct {
	Name        string `json:"name" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=10000"`
}

// Create creates a team and makes the acting user its owner member in a
// single transaction.
func (s *Service) Create(ctx context.Context, input CreateTeamInput, actorID string) (*Team, error) {
	name := sanitize.Text(strings.TrimSpace(input.Name))
	if name == "" {
		return nil, ErrInvalidName
	}

	id, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint team id: %w", err)
	}

	team, err := s.repo.Create(ctx, CreateParams{
		ID:          id,
		Name:        name,
		Description: sanitize.HTML(strings.TrimSpace(input.Description)),
		OwnerID:     actorID,
	})
	if err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}

	s.logger.Info().
		Str("team_id", team.ID).
		Str("user_id", actorID).
		Msg("team created")

	return team, nil
}

// GetByID returns a team by id, restricted to the caller's membership set.
func (s *Service) GetByID(ctx context.Context, teamID string, teamIDs []string) (*Team, error) {
	team, err := s.repo.GetByID(ctx, teamID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(teamIDs, team.ID) {
		return nil, ErrAccessDenied
	}
	return team, nil
}

// ListForUser returns all teams the user belongs to, regardless of role.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Team, error) {
	if userID == "" {
		return []Team{}, nil
	}
	return s.repo.ListForUser(ctx, userID)
}

// ResolveTeamIDs returns the set of team ids the user belongs to. An empty
// or unknown user yields an empty slice, never an error.
func (s *Service) ResolveTeamIDs(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return []string{}, nil
	}
	teamIDs, err := s.repo.ListMemberTeamIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve team ids: %w", err)
	}
	if teamIDs == nil {
		teamIDs = []string{}
	}
	return teamIDs, nil
}

// AddMember adds a user to a team. The acting user must itself be a member
// of the team; the new member's role is recorded but grants no differential
// rights.
func (s *Service) AddMember(ctx context.Context, teamID, userID string, role Role, actorTeamIDs []string) (*Membership, error) {
	if role == "" {
		role = RoleMember
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if !slices.Contains(actorTeamIDs, teamID) {
		return nil, ErrAccessDenied
	}
	if _, err := s.repo.GetByID(ctx, teamID); err != nil {
		return nil, err
	}

	membership, err := s.repo.AddMember(ctx, AddMemberParams{
		TeamID: teamID,
		UserID: userID,
		Role:   role,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("team_id", teamID).
		Str("user_id", userID).
		Str("role", string(role)).
		Msg("team member added")

	return membership, nil
}
