package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/crewcal/server/internal/api/middleware"
	"github.com/crewcal/server/internal/api/problem"
	"github.com/crewcal/server/internal/domain/ids"
	"github.com/crewcal/server/internal/domain/teams"
)

type TeamsHandler struct {
	Service *teams.Service
	Env     string
}

func NewTeamsHandler(service *teams.Service, env string) *TeamsHandler {
	return &TeamsHandler{Service: service, Env: env}
}

type teamResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toTeamResponse(team *teams.Team) teamResponse {
	return teamResponse{
		ID:          team.ID,
		Name:        team.Name,
		Description: team.Description,
		CreatedAt:   team.CreatedAt,
		UpdatedAt:   team.UpdatedAt,
	}
}

type membershipResponse struct {
	ID       string    `json:"id"`
	TeamID   string    `json:"teamId"`
	UserID   string    `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}

func (h *TeamsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var input teams.CreateTeamInput
	if err := decodeJSON(r, &input); err != nil {
		writeDecodeError(w, r, err, h.Env)
		return
	}

	team, err := h.Service.Create(r.Context(), input, user.ID)
	if err != nil {
		if errors.Is(err, teams.ErrInvalidName) {
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusCreated, toTeamResponse(team))
}

func (h *TeamsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	list, err := h.Service.ListForUser(r.Context(), user.ID)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	items := make([]teamResponse, 0, len(list))
	for i := range list {
		items = append(items, toTeamResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *TeamsHandler) Get(w http.ResponseWriter, r *http.Request) {
	teamID := pathParam(r, "id")
	if err := ids.ValidateULID(teamID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env,
			problem.WithDetail("id must be a valid ULID"))
		return
	}

	team, err := h.Service.GetByID(r.Context(), teamID, middleware.TeamIDsFromContext(r.Context()))
	if err != nil {
		writeTeamError(w, r, err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, toTeamResponse(team))
}

type addMemberRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (h *TeamsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	teamID := pathParam(r, "id")
	if err := ids.ValidateULID(teamID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env,
			problem.WithDetail("id must be a valid ULID"))
		return
	}

	var input addMemberRequest
	if err := decodeJSON(r, &input); err != nil {
		writeDecodeError(w, r, err, h.Env)
		return
	}
	if input.UserID == "" {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", nil, h.Env,
			problem.WithDetail("userId is required"))
		return
	}
	if err := ids.ValidateUUID(input.UserID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env,
			problem.WithDetail("userId must be a valid UUID"))
		return
	}

	membership, err := h.Service.AddMember(r.Context(), teamID, input.UserID,
		teams.Role(input.Role), middleware.TeamIDsFromContext(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, teams.ErrInvalidRole):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		case errors.Is(err, teams.ErrAlreadyMember):
			problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Conflict", err, h.Env)
		case errors.Is(err, teams.ErrUserNotFound):
			problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, h.Env,
				problem.WithDetail("user does not exist"))
		default:
			writeTeamError(w, r, err, h.Env)
		}
		return
	}

	writeJSON(w, http.StatusCreated, membershipResponse{
		ID:       membership.ID,
		TeamID:   membership.TeamID,
		UserID:   membership.UserID,
		Role:     string(membership.Role),
		JoinedAt: membership.JoinedAt,
	})
}

func writeTeamError(w http.ResponseWriter, r *http.Request, err error, env string) {
	switch {
	case errors.Is(err, teams.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, env)
	case errors.Is(err, teams.ErrAccessDenied):
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", err, env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, env)
	}
}
