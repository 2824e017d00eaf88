package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/crewcal/server/internal/api/middleware"
	"github.com/crewcal/server/internal/api/problem"
	"github.com/crewcal/server/internal/auth"
	"github.com/crewcal/server/internal/config"
	"github.com/crewcal/server/internal/domain/users"
	"github.com/crewcal/server/internal/metrics"
	"github.com/go-playground/validator/v10"
)

type AuthHandler struct {
	Users *users.Service
	Auth  config.AuthConfig
	Env   string
}

func NewAuthHandler(service *users.Service, authCfg config.AuthConfig, env string) *AuthHandler {
	return &AuthHandler{Users: service, Auth: authCfg, Env: env}
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func toUserResponse(user *users.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		CreatedAt: user.CreatedAt,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input users.RegisterInput
	if err := decodeJSON(r, &input); err != nil {
		writeDecodeError(w, r, err, h.Env)
		return
	}

	user, err := h.Users.Register(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrEmailTaken):
			problem.Write(w, r, http.StatusConflict, problem.TypeConflict, "Email taken", err, h.Env,
				problem.WithDetail("an account with this email already exists"))
		case isValidationError(err):
			problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, h.Env)
		default:
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		}
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input loginRequest
	if err := decodeJSON(r, &input); err != nil {
		writeDecodeError(w, r, err, h.Env)
		return
	}

	user, token, session, err := h.Users.Login(r.Context(), input.Email, input.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			metrics.LoginFailuresTotal.Inc()
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, h.Env,
				problem.WithDetail("invalid email or password"))
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
		return
	}

	http.SetCookie(w, h.sessionCookie(token, session.ExpiresAt))
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.Auth.SessionCookieName); err == nil {
		if err := h.Users.Logout(r.Context(), cookie.Value); err != nil {
			problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError, "Server error", err, h.Env)
			return
		}
	}

	http.SetCookie(w, h.clearedSessionCookie())
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", nil, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) sessionCookie(token string, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     h.Auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.Auth.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

func (h *AuthHandler) clearedSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     h.Auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Auth.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

func isValidationError(err error) bool {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) {
		return true
	}
	return errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong)
}
