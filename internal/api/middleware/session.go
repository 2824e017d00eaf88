package middleware

import (
	"context"
	"net/http"

	"github.com/crewcal/server/internal/api/problem"
	"github.com/crewcal/server/internal/domain/users"
)

type contextKeySession string

const (
	userKey    contextKeySession = "sessionUser"
	teamIDsKey contextKeySession = "sessionTeamIDs"
)

// SessionValidator resolves a raw session token to its user.
type SessionValidator interface {
	ValidateSession(ctx context.Context, token string) (*users.User, error)
}

// TeamResolver returns the ids of every team the user belongs to.
type TeamResolver interface {
	ResolveTeamIDs(ctx context.Context, userID string) ([]string, error)
}

// SessionAuth resolves the session cookie to a user and that user's team
// memberships, attaching both to the request context. Requests without a
// valid session pass through unauthenticated; RequireAuth turns them away.
//
// The team set is resolved once per request. Every authorization decision
// further down uses this snapshot, so a request observes one consistent
// membership view from start to finish.
func SessionAuth(sessions SessionValidator, teams TeamResolver, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := sessions.ValidateSession(r.Context(), cookie.Value)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			teamIDs, err := teams.ResolveTeamIDs(r.Context(), user.ID)
			if err != nil {
				logger := LoggerFromContext(r.Context())
				logger.Error().Err(err).Str("user_id", user.ID).Msg("resolve team memberships")
				problem.Write(w, r, http.StatusInternalServerError, problem.TypeServerError,
					"Internal Server Error", nil, "",
					problem.WithDetail("failed to resolve team memberships"))
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, teamIDsKey, teamIDs)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that did not authenticate with a valid session.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized,
				"Unauthorized", nil, "",
				problem.WithDetail("a valid session is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *users.User {
	if user, ok := ctx.Value(userKey).(*users.User); ok {
		return user
	}
	return nil
}

// TeamIDsFromContext returns the authenticated user's team ids. The slice is
// empty, never nil, for an authenticated user with no memberships.
func TeamIDsFromContext(ctx context.Context) []string {
	if ids, ok := ctx.Value(teamIDsKey).([]string); ok {
		return ids
	}
	return nil
}
