package server

import (
	"log/slog"
	"net/http"

	authHandlers "universe-server/internal/auth/handlers"
	"universe-server/internal/middleware"
	serverHandlers "universe-server/internal/server/handlers"
	"universe-server/internal/shared/database"
	"universe-server/internal/shared/redis"
	"universe-server/internal/simulation"
	simulationHandlers "universe-server/internal/simulation/handlers"
)

type Routes struct {
	db                *database.DB
	cache             *redis.Client
	simulationService *simulation.Service
	authenticator     *middleware.Authenticator
	sessionHandler    *authHandlers.SessionHandler
	logger            *slog.Logger
}

// NewRoutes wires the API. db and cache are nil when the matching backend
// is disabled.
func NewRoutes(
	db *database.DB,
	cache *redis.Client,
	simulationService *simulation.Service,
	authenticator *middleware.Authenticator,
	sessionHandler *authHandlers.SessionHandler,
	logger *slog.Logger,
) *Routes {
	return &Routes{
		db:                db,
		cache:             cache,
		simulationService: simulationService,
		authenticator:     authenticator,
		sessionHandler:    sessionHandler,
		logger:            logger,
	}
}

func (r *Routes) Setup() *http.ServeMux {
	logger := r.logger.With("component", "routes", "operation", "setup")
	logger.Debug("Setting up application routes")

	mux := http.NewServeMux()

	healthHandler := serverHandlers.NewHealthHandler(r.db, r.cache, func() int {
		return len(r.simulationService.List())
	})
	simulationHandler := simulationHandlers.NewSimulationHandler(r.simulationService)

	admin := func(h http.HandlerFunc) http.Handler {
		return r.authenticator.RequireAdmin(h)
	}

	// Public endpoints
	mux.Handle("GET /api/server/health", healthHandler)
	mux.HandleFunc("GET /api/simulations", simulationHandler.List)
	mux.HandleFunc("GET /api/simulations/{id}", simulationHandler.Get)
	mux.HandleFunc("GET /api/simulations/{id}/bodies", simulationHandler.Bodies)

	// Session endpoints
	mux.HandleFunc("POST /api/auth/session", r.sessionHandler.Login)
	mux.HandleFunc("POST /api/auth/logout", r.sessionHandler.Logout)
	mux.Handle("GET /api/auth/me", r.authenticator.JWT(r.sessionHandler.Me(middleware.GetUserFromContext)))

	// Admin-only endpoints
	mux.Handle("POST /api/simulations", admin(simulationHandler.Create))
	mux.Handle("POST /api/simulations/load", admin(simulationHandler.Load))
	mux.Handle("POST /api/simulations/{id}/run", admin(simulationHandler.Run))
	mux.Handle("POST /api/simulations/{id}/stop", admin(simulationHandler.Stop))
	mux.Handle("POST /api/simulations/{id}/save", admin(simulationHandler.Save))
	mux.Handle("POST /api/simulations/{id}/save-initial", admin(simulationHandler.SaveInitial))
	mux.Handle("DELETE /api/simulations/{id}", admin(simulationHandler.Delete))
	mux.Handle("GET /api/simulations/{id}/iterations", admin(simulationHandler.Iterations))
	mux.Handle("GET /api/simulations/{id}/iterations/{n}", admin(simulationHandler.Iteration))

	logger.Info("Routes configured successfully",
		"public_endpoints", []string{"/api/server/health", "/api/simulations", "/api/simulations/{id}", "/api/simulations/{id}/bodies"},
		"session_endpoints", []string{"/api/auth/session", "/api/auth/logout", "/api/auth/me"},
		"admin_endpoints", []string{
			"/api/simulations (POST)", "/api/simulations/load", "/api/simulations/{id}/run",
			"/api/simulations/{id}/stop", "/api/simulations/{id}/save", "/api/simulations/{id}/save-initial",
			"/api/simulations/{id} (DELETE)", "/api/simulations/{id}/iterations",
		},
	)

	return mux
}
