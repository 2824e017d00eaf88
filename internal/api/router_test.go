package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/crewcal/server/internal/api/middleware"
	"github.com/crewcal/server/internal/config"
	"github.com/crewcal/server/internal/domain/events"
	"github.com/crewcal/server/internal/domain/teams"
	"github.com/crewcal/server/internal/domain/users"
	"github.com/crewcal/server/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMethodMux(t *testing.T) {
	getHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("GET response"))
	})
	postHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("POST response"))
	})

	mux := methodMux(map[string]http.Handler{
		http.MethodGet:  getHandler,
		http.MethodPost: postHandler,
	})

	tests := []struct {
		name         string
		method       string
		expectStatus int
		expectBody   string
		expectAllow  string
	}{
		{"GET allowed", http.MethodGet, http.StatusOK, "GET response", ""},
		{"POST allowed", http.MethodPost, http.StatusCreated, "POST response", ""},
		{"PUT not allowed", http.MethodPut, http.StatusMethodNotAllowed, "", "GET, POST"},
		{"DELETE not allowed", http.MethodDelete, http.StatusMethodNotAllowed, "", "GET, POST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/test", nil)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			require.Equal(t, tt.expectStatus, w.Code)
			if tt.expectBody != "" {
				require.Equal(t, tt.expectBody, w.Body.String())
			}
			if tt.expectAllow != "" {
				require.Equal(t, tt.expectAllow, w.Header().Get("Allow"))
			}
		})
	}
}

func TestAllowedMethods(t *testing.T) {
	noop := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	require.Equal(t, "GET", allowedMethods(map[string]http.Handler{
		http.MethodGet: noop,
	}))
	require.Equal(t, "DELETE, GET, PATCH, POST", allowedMethods(map[string]http.Handler{
		http.MethodPost:   noop,
		http.MethodGet:    noop,
		http.MethodPatch:  noop,
		http.MethodDelete: noop,
	}))
}

// memStore is an in-memory storage.Repository for exercising the full
// middleware and routing chain without a database.
type memStore struct {
	events *memEventsRepo
	teams  *memTeamsRepo
	users  *memUsersRepo
}

func newMemStore() *memStore {
	return &memStore{
		events: &memEventsRepo{events: make(map[string]*events.Event)},
		teams: &memTeamsRepo{
			teams:   make(map[string]*teams.Team),
			members: make(map[string][]teams.Membership),
		},
		users: &memUsersRepo{
			users:    make(map[string]*users.User),
			creds:    make(map[string]string),
			sessions: make(map[string]*users.Session),
		},
	}
}

func (s *memStore) Events() events.Repository      { return s.events }
func (s *memStore) Teams() storage.TeamRepository  { return s.teams }
func (s *memStore) Users() users.Repository        { return s.users }
func (s *memStore) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	return fn(ctx, s)
}

type memEventsRepo struct {
	events map[string]*events.Event
}

func (m *memEventsRepo) Create(_ context.Context, params events.CreateParams) (*events.Event, error) {
	now := time.Now().UTC()
	event := &events.Event{
		ID: params.ID, TeamID: params.TeamID, Title: params.Title,
		Description: params.Description, Location: params.Location,
		StartDate: params.StartDate, EndDate: params.EndDate,
		Timezone: params.Timezone, CreatedBy: params.CreatedBy,
		CreatedAt: now, UpdatedAt: now,
	}
	m.events[event.ID] = event
	return event, nil
}

func (m *memEventsRepo) ListByTeams(_ context.Context, teamIDs []string) ([]events.Event, error) {
	var out []events.Event
	for _, event := range m.events {
		for _, teamID := range teamIDs {
			if event.TeamID == teamID {
				out = append(out, *event)
			}
		}
	}
	return out, nil
}

func (m *memEventsRepo) GetByID(_ context.Context, id string) (*events.Event, error) {
	event, ok := m.events[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	copied := *event
	return &copied, nil
}

func (m *memEventsRepo) GetByIDWithRelations(ctx context.Context, id string) (*events.EventWithRelations, error) {
	event, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &events.EventWithRelations{Event: *event}, nil
}

func (m *memEventsRepo) Update(_ context.Context, id string, params events.UpdateParams, guard *time.Time) (*events.Event, error) {
	event, ok := m.events[id]
	if !ok {
		return nil, events.ErrNotFound
	}
	if guard != nil && event.UpdatedAt.After(*guard) {
		return nil, events.ErrConflict
	}
	if params.Title != nil {
		event.Title = *params.Title
	}
	updatedBy := params.UpdatedBy
	event.UpdatedBy = &updatedBy
	event.UpdatedAt = event.UpdatedAt.Add(time.Second)
	copied := *event
	return &copied, nil
}

func (m *memEventsRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.events[id]; !ok {
		return events.ErrNotFound
	}
	delete(m.events, id)
	return nil
}

type memTeamsRepo struct {
	teams   map[string]*teams.Team
	members map[string][]teams.Membership
}

func (m *memTeamsRepo) Create(_ context.Context, params teams.CreateParams) (*teams.Team, error) {
	now := time.Now().UTC()
	team := &teams.Team{ID: params.ID, Name: params.Name, Description: params.Description, CreatedAt: now, UpdatedAt: now}
	m.teams[team.ID] = team
	m.members[team.ID] = []teams.Membership{{
		ID: uuid.New().String(), TeamID: team.ID, UserID: params.OwnerID,
		Role: teams.RoleOwner, JoinedAt: now,
	}}
	return team, nil
}

func (m *memTeamsRepo) GetByID(_ context.Context, id string) (*teams.Team, error) {
	team, ok := m.teams[id]
	if !ok {
		return nil, teams.ErrNotFound
	}
	return team, nil
}

func (m *memTeamsRepo) ListForUser(_ context.Context, userID string) ([]teams.Team, error) {
	var out []teams.Team
	for teamID, members := range m.members {
		for _, member := range members {
			if member.UserID == userID {
				out = append(out, *m.teams[teamID])
			}
		}
	}
	return out, nil
}

func (m *memTeamsRepo) ListMemberTeamIDs(_ context.Context, userID string) ([]string, error) {
	var out []string
	for teamID, members := range m.members {
		for _, member := range members {
			if member.UserID == userID {
				out = append(out, teamID)
			}
		}
	}
	return out, nil
}

func (m *memTeamsRepo) AddMember(_ context.Context, params teams.AddMemberParams) (*teams.Membership, error) {
	for _, member := range m.members[params.TeamID] {
		if member.UserID == params.UserID {
			return nil, teams.ErrAlreadyMember
		}
	}
	membership := teams.Membership{
		ID: uuid.New().String(), TeamID: params.TeamID, UserID: params.UserID,
		Role: params.Role, JoinedAt: time.Now().UTC(),
	}
	m.members[params.TeamID] = append(m.members[params.TeamID], membership)
	return &membership, nil
}

func (m *memTeamsRepo) Exists(_ context.Context, id string) (bool, error) {
	_, ok := m.teams[id]
	return ok, nil
}

type memUsersRepo struct {
	users    map[string]*users.User
	creds    map[string]string
	sessions map[string]*users.Session
}

func (m *memUsersRepo) CreateUser(_ context.Context, params users.CreateUserParams) (*users.User, error) {
	for _, u := range m.users {
		if u.Email == params.Email {
			return nil, users.ErrEmailTaken
		}
	}
	now := time.Now().UTC()
	user := &users.User{ID: uuid.New().String(), Email: params.Email, Name: params.Name, CreatedAt: now, UpdatedAt: now}
	m.users[user.ID] = user
	m.creds[params.Email] = params.PasswordHash
	return user, nil
}

func (m *memUsersRepo) GetUserByID(_ context.Context, id string) (*users.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	return user, nil
}

func (m *memUsersRepo) GetUserByEmail(_ context.Context, email string) (*users.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, users.ErrNotFound
}

func (m *memUsersRepo) GetCredentialsByEmail(_ context.Context, email string) (*users.Credentials, error) {
	hash, ok := m.creds[email]
	if !ok {
		return nil, users.ErrNotFound
	}
	for _, u := range m.users {
		if u.Email == email {
			return &users.Credentials{UserID: u.ID, PasswordHash: hash}, nil
		}
	}
	return nil, users.ErrNotFound
}

func (m *memUsersRepo) CreateSession(_ context.Context, params users.CreateSessionParams) (*users.Session, error) {
	session := &users.Session{
		ID: uuid.New().String(), UserID: params.UserID,
		ExpiresAt: params.ExpiresAt, CreatedAt: time.Now().UTC(),
	}
	m.sessions[params.TokenHash] = session
	return session, nil
}

func (m *memUsersRepo) GetSessionByTokenHash(_ context.Context, tokenHash string) (*users.Session, error) {
	session, ok := m.sessions[tokenHash]
	if !ok {
		return nil, users.ErrSessionNotFound
	}
	return session, nil
}

func (m *memUsersRepo) DeleteSessionByTokenHash(_ context.Context, tokenHash string) error {
	delete(m.sessions, tokenHash)
	return nil
}

func (m *memUsersRepo) DeleteExpiredSessions(_ context.Context) (int64, error) {
	return 0, nil
}

func testConfig() config.Config {
	return config.Config{
		Auth: config.AuthConfig{
			SessionCookieName: "crewcal_session",
			SessionTTL:        time.Hour,
		},
		RateLimit: config.RateLimitConfig{
			PublicPerMinute: 1000,
			LoginPerMinute:  1000,
		},
		Environment: "test",
	}
}

// TestRouterEndToEnd drives the full chain: register, login, create a team,
// create an event in it, then read it back with the session cookie.
func TestRouterEndToEnd(t *testing.T) {
	router := newRouter(testConfig(), zerolog.Nop(), newMemStore(), nil)
	handler := router.Handler

	do := func(method, path string, payload map[string]any, cookie *http.Cookie) *httptest.ResponseRecorder {
		var req *http.Request
		if payload != nil {
			body, err := json.Marshal(payload)
			require.NoError(t, err)
			req = httptest.NewRequest(method, path, bytes.NewReader(body))
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/api/v1/auth/register", map[string]any{
		"email": "ada@example.com", "name": "Ada", "password": "correct horse battery",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(http.MethodPost, "/api/v1/auth/login", map[string]any{
		"email": "ada@example.com", "password": "correct horse battery",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	session := cookies[0]

	// Unauthenticated event listing is rejected.
	rec = do(http.MethodGet, "/api/v1/events", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(http.MethodPost, "/api/v1/teams", map[string]any{"name": "Engineering"}, session)
	require.Equal(t, http.StatusCreated, rec.Code)
	var team struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &team))

	rec = do(http.MethodPost, "/api/v1/events", map[string]any{
		"teamId":    team.ID,
		"title":     "Standup",
		"location":  "Room A",
		"startDate": "2025-03-01T10:00:00Z",
		"endDate":   "2025-03-01T11:00:00Z",
	}, session)
	require.Equal(t, http.StatusCreated, rec.Code)
	var event struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &event))

	rec = do(http.MethodGet, "/api/v1/events/"+event.ID, nil, session)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(http.MethodGet, "/api/v1/events", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Items, 1)

	// Responses carry a request id for correlation.
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterHealthEndpoints(t *testing.T) {
	router := newRouter(testConfig(), zerolog.Nop(), newMemStore(), nil)

	rec := httptest.NewRecorder()
	router.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterSetsSecurityHeaders(t *testing.T) {
	router := newRouter(testConfig(), zerolog.Nop(), newMemStore(), nil)

	rec := httptest.NewRecorder()
	router.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRouterCapsRequestBodies(t *testing.T) {
	router := newRouter(testConfig(), zerolog.Nop(), newMemStore(), nil)

	payload, _ := json.Marshal(map[string]any{
		"email":    "ada@example.com",
		"name":     strings.Repeat("x", int(middleware.MaxBodyBytes)),
		"password": "correct horse battery",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
