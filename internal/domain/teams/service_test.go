package teams

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stubTeamsRepo struct {
	createFn        func(params CreateParams) (*Team, error)
	getFn           func(id string) (*Team, error)
	listForUserFn   func(userID string) ([]Team, error)
	listTeamIDsFn   func(userID string) ([]string, error)
	addMemberFn     func(params AddMemberParams) (*Membership, error)
	listTeamIDCalls int
}

func (s *stubTeamsRepo) Create(_ context.Context, params CreateParams) (*Team, error) {
	return s.createFn(params)
}

func (s *stubTeamsRepo) GetByID(_ context.Context, id string) (*Team, error) {
	if s.getFn == nil {
		return nil, ErrNotFound
	}
	return s.getFn(id)
}

func (s *stubTeamsRepo) ListForUser(_ context.Context, userID string) ([]Team, error) {
	return s.listForUserFn(userID)
}

func (s *stubTeamsRepo) ListMemberTeamIDs(_ context.Context, userID string) ([]string, error) {
	s.listTeamIDCalls++
	return s.listTeamIDsFn(userID)
}

func (s *stubTeamsRepo) AddMember(_ context.Context, params AddMemberParams) (*Membership, error) {
	return s.addMemberFn(params)
}

func TestCreateMakesActorOwner(t *testing.T) {
	var captured CreateParams
	repo := &stubTeamsRepo{
		createFn: func(params CreateParams) (*Team, error) {
			captured = params
			return &Team{ID: params.ID, Name: params.Name, Description: params.Description}, nil
		},
	}
	svc := NewService(repo, zerolog.Nop())

	team, err := svc.Create(context.Background(), CreateTeamInput{Name: "Engineering"}, "user-1")

	require.NoError(t, err)
	require.Equal(t, "user-1", captured.OwnerID)
	require.Equal(t, "Engineering", team.Name)
	require.Len(t, captured.ID, 26)
}

func TestCreateSanitizesName(t *testing.T) {
	repo := &stubTeamsRepo{
		createFn: func(params CreateParams) (*Team, error) {
			return &Team{ID: params.ID, Name: params.Name}, nil
		},
	}
	svc := NewService(repo, zerolog.Nop())

	team, err := svc.Create(context.Background(), CreateTeamInput{Name: "<script>x</script>Engineering"}, "user-1")

	require.NoError(t, err)
	require.Equal(t, "Engineering", team.Name)
}

func TestCreateRejectsEmptyName(t *testing.T) {
	svc := NewService(&stubTeamsRepo{}, zerolog.Nop())

	_, err := svc.Create(context.Background(), CreateTeamInput{Name: "  <b></b> "}, "user-1")

	require.ErrorIs(t, err, ErrInvalidName)
}

func TestResolveTeamIDsEmptyUserShortCircuits(t *testing.T) {
	repo := &stubTeamsRepo{
		listTeamIDsFn: func(string) ([]string, error) {
			return nil, errors.New("should not be called")
		},
	}
	svc := NewService(repo, zerolog.Nop())

	teamIDs, err := svc.ResolveTeamIDs(context.Background(), "")

	require.NoError(t, err)
	require.Empty(t, teamIDs)
	require.Zero(t, repo.listTeamIDCalls)
}

func TestResolveTeamIDsReturnsEmptySliceNotNil(t *testing.T) {
	repo := &stubTeamsRepo{
		listTeamIDsFn: func(string) ([]string, error) {
			return nil, nil
		},
	}
	svc := NewService(repo, zerolog.Nop())

	teamIDs, err := svc.ResolveTeamIDs(context.Background(), "user-1")

	require.NoError(t, err)
	require.NotNil(t, teamIDs)
	require.Empty(t, teamIDs)
}

func TestGetByIDDeniesNonMember(t *testing.T) {
	repo := &stubTeamsRepo{
		getFn: func(id string) (*Team, error) {
			return &Team{ID: id, Name: "Engineering"}, nil
		},
	}
	svc := NewService(repo, zerolog.Nop())

	_, err := svc.GetByID(context.Background(), "team-1", []string{"team-2"})

	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestAddMemberRequiresActorMembership(t *testing.T) {
	svc := NewService(&stubTeamsRepo{}, zerolog.Nop())

	_, err := svc.AddMember(context.Background(), "team-1", "user-2", RoleMember, []string{"team-9"})

	require.ErrorIs(t, err, ErrAccessDenied)
}

func TestAddMemberValidatesRole(t *testing.T) {
	svc := NewService(&stubTeamsRepo{}, zerolog.Nop())

	_, err := svc.AddMember(context.Background(), "team-1", "user-2", Role("superuser"), []string{"team-1"})

	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestAddMemberDefaultsRoleToMember(t *testing.T) {
	var captured AddMemberParams
	repo := &stubTeamsRepo{
		getFn: func(id string) (*Team, error) {
			return &Team{ID: id}, nil
		},
		addMemberFn: func(params AddMemberParams) (*Membership, error) {
			captured = params
			return &Membership{TeamID: params.TeamID, UserID: params.UserID, Role: params.Role}, nil
		},
	}
	svc := NewService(repo, zerolog.Nop())

	membership, err := svc.AddMember(context.Background(), "team-1", "user-2", "", []string{"team-1"})

	require.NoError(t, err)
	require.Equal(t, RoleMember, captured.Role)
	require.Equal(t, RoleMember, membership.Role)
}

func TestAddMemberMissingTeam(t *testing.T) {
	repo := &stubTeamsRepo{
		getFn: func(string) (*Team, error) {
			return nil, ErrNotFound
		},
	}
	svc := NewService(repo, zerolog.Nop())

	_, err := svc.AddMember(context.Background(), "team-1", "user-2", RoleMember, []string{"team-1"})

	require.ErrorIs(t, err, ErrNotFound)
}
