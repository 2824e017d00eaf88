package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crewcal/server/internal/api/middleware"
	"github.com/crewcal/server/internal/domain/teams"
	"github.com/crewcal/server/internal/domain/users"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type memoryTeamsRepo struct {
	teams       map[string]*teams.Team
	memberships map[string][]teams.Membership
	// missingUsers mimics the foreign-key check the store runs on insert.
	missingUsers map[string]bool
}

func newMemoryTeamsRepo() *memoryTeamsRepo {
	return &memoryTeamsRepo{
		teams:        make(map[string]*teams.Team),
		memberships:  make(map[string][]teams.Membership),
		missingUsers: make(map[string]bool),
	}
}

func (m *memoryTeamsRepo) Create(_ context.Context, params teams.CreateParams) (*teams.Team, error) {
	now := time.Now().UTC()
	team := &teams.Team{
		ID:          params.ID,
		Name:        params.Name,
		Description: params.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.teams[team.ID] = team
	m.memberships[team.ID] = []teams.Membership{{
		ID:       uuid.New().String(),
		TeamID:   team.ID,
		UserID:   params.OwnerID,
		Role:     teams.RoleOwner,
		JoinedAt: now,
	}}
	return team, nil
}

func (m *memoryTeamsRepo) GetByID(_ context.Context, id string) (*teams.Team, error) {
	team, ok := m.teams[id]
	if !ok {
		return nil, teams.ErrNotFound
	}
	return team, nil
}

func (m *memoryTeamsRepo) ListForUser(_ context.Context, userID string) ([]teams.Team, error) {
	var list []teams.Team
	for teamID, members := range m.memberships {
		for _, member := range members {
			if member.UserID == userID {
				list = append(list, *m.teams[teamID])
			}
		}
	}
	return list, nil
}

func (m *memoryTeamsRepo) ListMemberTeamIDs(_ context.Context, userID string) ([]string, error) {
	var out []string
	for teamID, members := range m.memberships {
		for _, member := range members {
			if member.UserID == userID {
				out = append(out, teamID)
			}
		}
	}
	return out, nil
}

func (m *memoryTeamsRepo) AddMember(_ context.Context, params teams.AddMemberParams) (*teams.Membership, error) {
	if m.missingUsers[params.UserID] {
		return nil, teams.ErrUserNotFound
	}
	for _, member := range m.memberships[params.TeamID] {
		if member.UserID == params.UserID {
			return nil, teams.ErrAlreadyMember
		}
	}
	membership := teams.Membership{
		ID:       uuid.New().String(),
		TeamID:   params.TeamID,
		UserID:   params.UserID,
		Role:     params.Role,
		JoinedAt: time.Now().UTC(),
	}
	m.memberships[params.TeamID] = append(m.memberships[params.TeamID], membership)
	return &membership, nil
}

// newTeamsAPI routes the teams handler behind session auth. Membership
// resolution goes through the real service so created teams immediately
// appear in the caller's team set.
func newTeamsAPI(t *testing.T) http.Handler {
	return newTeamsAPIWith(t, newMemoryTeamsRepo())
}

func newTeamsAPIWith(t *testing.T, repo teams.Repository) http.Handler {
	t.Helper()

	service := teams.NewService(repo, zerolog.Nop())
	handler := NewTeamsHandler(service, testEnvName)

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/teams", middleware.RequireAuth(http.HandlerFunc(handler.Create)))
	mux.Handle("GET /api/v1/teams", middleware.RequireAuth(http.HandlerFunc(handler.List)))
	mux.Handle("GET /api/v1/teams/{id}", middleware.RequireAuth(http.HandlerFunc(handler.Get)))
	mux.Handle("POST /api/v1/teams/{id}/members", middleware.RequireAuth(http.HandlerFunc(handler.AddMember)))

	sessions := fixedSessions{user: &users.User{ID: testUserID, Email: "ada@example.com", Name: "Ada"}}
	return middleware.SessionAuth(sessions, service, cookieName)(mux)
}

func createTeam(t *testing.T, api http.Handler, name string) teamResponse {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"name": name})
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/teams", body))
	require.Equal(t, http.StatusCreated, rec.Code)

	var got teamResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	return got
}

func TestTeamsCreate(t *testing.T) {
	api := newTeamsAPI(t)

	got := createTeam(t, api, "Engineering")
	require.Equal(t, "Engineering", got.Name)
	require.Len(t, got.ID, 26)
}

func TestTeamsCreateEmptyName(t *testing.T) {
	api := newTeamsAPI(t)

	body, _ := json.Marshal(map[string]any{"name": "   "})
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/teams", body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTeamsCreateRequiresAuth(t *testing.T) {
	api := newTeamsAPI(t)

	body := bytes.NewReader([]byte(`{"name":"Engineering"}`))
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/teams", body))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTeamsList(t *testing.T) {
	api := newTeamsAPI(t)
	createTeam(t, api, "Engineering")
	createTeam(t, api, "Design")

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/teams", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Items []teamResponse `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Items, 2)
}

func TestTeamsGet(t *testing.T) {
	api := newTeamsAPI(t)
	created := createTeam(t, api, "Engineering")

	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/teams/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/teams/bogus", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/v1/teams/01JMJ5E8QJF2K3M4N5P6Q7R8T9", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTeamsAddMember(t *testing.T) {
	api := newTeamsAPI(t)
	created := createTeam(t, api, "Engineering")

	newUser := uuid.New().String()
	body, _ := json.Marshal(map[string]any{"userId": newUser, "role": "admin"})
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/teams/"+created.ID+"/members", body))
	require.Equal(t, http.StatusCreated, rec.Code)

	var got membershipResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, newUser, got.UserID)
	require.Equal(t, "admin", got.Role)

	// Adding the same user again conflicts.
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/teams/"+created.ID+"/members", body))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestTeamsAddMemberValidation(t *testing.T) {
	api := newTeamsAPI(t)
	created := createTeam(t, api, "Engineering")

	body, _ := json.Marshal(map[string]any{"role": "member"})
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/teams/"+created.ID+"/members", body))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ = json.Marshal(map[string]any{"userId": uuid.New().String(), "role": "superuser"})
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/teams/"+created.ID+"/members", body))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ = json.Marshal(map[string]any{"userId": "not-a-uuid", "role": "member"})
	rec = httptest.NewRecorder()
	api.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/teams/"+created.ID+"/members", body))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestTeamsAddMemberUnknownUser(t *testing.T) {
	repo := newMemoryTeamsRepo()
	ghost := uuid.New().String()
	repo.missingUsers[ghost] = true
	api := newTeamsAPIWith(t, repo)
	created := createTeam(t, api, "Engineering")

	body, _ := json.Marshal(map[string]any{"userId": ghost, "role": "member"})
	rec := httptest.NewRecorder()
	api.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/v1/teams/"+created.ID+"/members", body))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
