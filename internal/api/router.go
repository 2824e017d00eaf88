package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/crewcal/server/internal/api/handlers"
	"github.com/crewcal/server/internal/api/middleware"
	"github.com/crewcal/server/internal/config"
	"github.com/crewcal/server/internal/domain/events"
	"github.com/crewcal/server/internal/domain/teams"
	"github.com/crewcal/server/internal/domain/users"
	"github.com/crewcal/server/internal/metrics"
	"github.com/crewcal/server/internal/storage"
	"github.com/crewcal/server/internal/storage/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Router bundles the HTTP handler with the services the server process needs
// to drive outside of request handling (session cleanup).
type Router struct {
	Handler http.Handler
	Users   *users.Service
}

// NewRouter wires repositories, services, handlers, and the middleware chain.
// The caller owns the pool lifecycle.
func NewRouter(cfg config.Config, logger zerolog.Logger, pool *pgxpool.Pool) (*Router, error) {
	repo, err := postgres.NewRepository(pool)
	if err != nil {
		return nil, err
	}
	return newRouter(cfg, logger, repo, pool), nil
}

func newRouter(cfg config.Config, logger zerolog.Logger, repo storage.Repository, pool *pgxpool.Pool) *Router {
	usersService := users.NewService(repo.Users(), logger, cfg.Auth.SessionTTL)
	teamsService := teams.NewService(repo.Teams(), logger)
	eventsService := events.NewService(repo.Events(), repo.Teams(), logger)

	authHandler := handlers.NewAuthHandler(usersService, cfg.Auth, cfg.Environment)
	teamsHandler := handlers.NewTeamsHandler(teamsService, cfg.Environment)
	eventsHandler := handlers.NewEventsHandler(eventsService, cfg.Environment)

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("/api/v1/auth/register", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(authHandler.Register),
	}))
	mux.Handle("/api/v1/auth/login", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(authHandler.Login),
	}))
	mux.Handle("/api/v1/auth/logout", methodMux(map[string]http.Handler{
		http.MethodPost: http.HandlerFunc(authHandler.Logout),
	}))
	mux.Handle("/api/v1/auth/me", methodMux(map[string]http.Handler{
		http.MethodGet: middleware.RequireAuth(http.HandlerFunc(authHandler.Me)),
	}))

	mux.Handle("/api/v1/teams", methodMux(map[string]http.Handler{
		http.MethodGet:  middleware.RequireAuth(http.HandlerFunc(teamsHandler.List)),
		http.MethodPost: middleware.RequireAuth(http.HandlerFunc(teamsHandler.Create)),
	}))
	mux.Handle("/api/v1/teams/{id}", methodMux(map[string]http.Handler{
		http.MethodGet: middleware.RequireAuth(http.HandlerFunc(teamsHandler.Get)),
	}))
	mux.Handle("/api/v1/teams/{id}/members", methodMux(map[string]http.Handler{
		http.MethodPost: middleware.RequireAuth(http.HandlerFunc(teamsHandler.AddMember)),
	}))

	mux.Handle("/api/v1/events", methodMux(map[string]http.Handler{
		http.MethodGet:  middleware.RequireAuth(http.HandlerFunc(eventsHandler.List)),
		http.MethodPost: middleware.RequireAuth(http.HandlerFunc(eventsHandler.Create)),
	}))
	mux.Handle("/api/v1/events/{id}", methodMux(map[string]http.Handler{
		http.MethodGet:    middleware.RequireAuth(http.HandlerFunc(eventsHandler.Get)),
		http.MethodPatch:  middleware.RequireAuth(http.HandlerFunc(eventsHandler.Update)),
		http.MethodDelete: middleware.RequireAuth(http.HandlerFunc(eventsHandler.Delete)),
	}))

	// Session resolution happens once per request; handlers read the user
	// and team-id set from the context.
	var handler http.Handler = mux
	handler = middleware.RequestSize(middleware.MaxBodyBytes)(handler)
	handler = middleware.SessionAuth(usersService, teamsService, cfg.Auth.SessionCookieName)(handler)
	handler = middleware.RateLimit(cfg.RateLimit)(handler)
	handler = loginRateTier(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.SecurityHeaders(cfg.Environment == "production")(handler)
	handler = middleware.CORS(cfg.CORS, logger)(handler)
	handler = middleware.CorrelationID(logger)(handler)

	return &Router{Handler: handler, Users: usersService}
}

// loginRateTier tags login requests so the rate limiter applies the stricter
// login bucket. Must sit outside the RateLimit middleware in the chain.
func loginRateTier(next http.Handler) http.Handler {
	login := middleware.WithRateLimitTierHandler(middleware.TierLogin)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/v1/auth/login" {
			login.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
