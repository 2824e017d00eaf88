package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/crewcal/server/internal/api/middleware"
	"github.com/crewcal/server/internal/api/problem"
	"github.com/crewcal/server/internal/domain/events"
	"github.com/crewcal/server/internal/domain/ids"
	"github.com/crewcal/server/internal/metrics"
)

type EventsHandler struct {
	Service *events.Service
	Env     string
}

func NewEventsHandler(service *events.Service, env string) *EventsHandler {
	return &EventsHandler{Service: service, Env: env}
}

type eventResponse struct {
	ID          string    `json:"id"`
	TeamID      string    `json:"teamId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	Timezone    string    `json:"timezone"`
	CreatedBy   string    `json:"createdBy"`
	UpdatedBy   *string   `json:"updatedBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type userRefResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type teamRefResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type eventWithRelationsResponse struct {
	eventResponse
	Creator *userRefResponse `json:"creator,omitempty"`
	Updater *userRefResponse `json:"updater,omitempty"`
	Team    *teamRefResponse `json:"team,omitempty"`
}

func toEventResponse(event *events.Event) eventResponse {
	return eventResponse{
		ID:          event.ID,
		TeamID:      event.TeamID,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		StartDate:   event.StartDate,
		EndDate:     event.EndDate,
		Timezone:    event.Timezone,
		CreatedBy:   event.CreatedBy,
		UpdatedBy:   event.UpdatedBy,
		CreatedAt:   event.CreatedAt,
		UpdatedAt:   event.UpdatedAt,
	}
}

func toUserRefResponse(ref *events.UserRef) *userRefResponse {
	if ref == nil {
		return nil
	}
	return &userRefResponse{ID: ref.ID, Name: ref.Name, Email: ref.Email}
}

func (h *EventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	teamIDs := middleware.TeamIDsFromContext(r.Context())

	var input events.CreateEventInput
	if err := decodeJSON(r, &input); err != nil {
		writeDecodeError(w, r, err, h.Env)
		return
	}

	event, err := h.Service.Create(r.Context(), input, teamIDs, user.ID)
	if err != nil {
		writeEventError(w, r, err, h.Env)
		return
	}

	writeJSON(w, http.StatusCreated, toEventResponse(event))
}

func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	teamIDs := middleware.TeamIDsFromContext(r.Context())

	list, err := h.Service.ListByTeams(r.Context(), teamIDs)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	items := make([]eventResponse, 0, len(list))
	for i := range list {
		items = append(items, toEventResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	eventID := pathParam(r, "id")
	if err := ids.ValidateULID(eventID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env,
			problem.WithDetail("id must be a valid ULID"))
		return
	}

	teamIDs := middleware.TeamIDsFromContext(r.Context())

	if r.URL.Query().Get("include") == "relations" {
		event, err := h.Service.GetByIDWithRelations(r.Context(), eventID, teamIDs)
		if err != nil {
			writeEventError(w, r, err, h.Env)
			return
		}
		response := eventWithRelationsResponse{
			eventResponse: toEventResponse(&event.Event),
			Creator:       toUserRefResponse(event.Creator),
			Updater:       toUserRefResponse(event.Updater),
		}
		if event.Team != nil {
			response.Team = &teamRefResponse{
				ID:          event.Team.ID,
				Name:        event.Team.Name,
				Description: event.Team.Description,
			}
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	event, err := h.Service.GetByID(r.Context(), eventID, teamIDs)
	if err != nil {
		writeEventError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func (h *EventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	eventID := pathParam(r, "id")
	if err := ids.ValidateULID(eventID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env,
			problem.WithDetail("id must be a valid ULID"))
		return
	}

	user := middleware.UserFromContext(r.Context())
	teamIDs := middleware.TeamIDsFromContext(r.Context())

	var input events.UpdateEventInput
	if err := decodeJSON(r, &input); err != nil {
		writeDecodeError(w, r, err, h.Env)
		return
	}

	event, err := h.Service.Update(r.Context(), eventID, input, teamIDs, user.ID)
	if err != nil {
		var conflict events.ConflictError
		if errors.As(err, &conflict) {
			metrics.EventConflictsTotal.Inc()
			problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Conflict", err, h.Env,
				problem.WithDetail("the event was modified since it was last read"),
				problem.WithErrors(map[string]interface{}{
					"clientUpdatedAt": conflict.ClientUpdatedAt,
					"serverUpdatedAt": conflict.ServerUpdatedAt,
				}))
			return
		}
		writeEventError(w, r, err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, toEventResponse(event))
}

func (h *EventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	eventID := pathParam(r, "id")
	if err := ids.ValidateULID(eventID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env,
			problem.WithDetail("id must be a valid ULID"))
		return
	}

	if err := h.Service.Delete(r.Context(), eventID, middleware.TeamIDsFromContext(r.Context())); err != nil {
		writeEventError(w, r, err, h.Env)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeEventError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var validationErr events.ValidationError
	switch {
	case errors.As(err, &validationErr):
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, env,
			problem.WithDetail(validationErr.Error()))
	case errors.Is(err, events.ErrNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, env)
	case errors.Is(err, events.ErrAccessDenied):
		problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", err, env,
			problem.WithDetail("you are not a member of this event's team"))
	case errors.Is(err, events.ErrTeamNotFound):
		problem.Write(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", err, env,
			problem.WithDetail("team does not exist"))
	case errors.Is(err, events.ErrConflict):
		problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Conflict", err, env)
	default:
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, env)
	}
}
