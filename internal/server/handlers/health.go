package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"universe-server/internal/shared/database"
	"universe-server/internal/shared/redis"
	"universe-server/internal/shared/response"
)

const (
	statusConnected     = "connected"
	statusDisconnected  = "disconnected"
	statusNotConfigured = "not_configured"
)

type HealthResponse struct {
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	Database    string `json:"database"`
	Redis       string `json:"redis"`
	Simulations int    `json:"simulations"`
}

// HealthHandler reports backend connectivity. db and cache may be nil
// when the matching backend is not configured.
type HealthHandler struct {
	db          *database.DB
	cache       *redis.Client
	simulations func() int
}

func NewHealthHandler(db *database.DB, cache *redis.Client, simulations func() int) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, simulations: simulations}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "health")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	dbStatus := statusNotConfigured
	if h.db != nil {
		dbStatus = statusConnected
		if err := h.db.PingContext(ctx); err != nil {
			dbStatus = statusDisconnected
			logger.Warn("Database ping failed", "error", err)
		}
	}

	redisStatus := statusNotConfigured
	if h.cache != nil {
		redisStatus = statusConnected
		if err := h.cache.Ping(ctx).Err(); err != nil {
			redisStatus = statusDisconnected
			logger.Warn("Redis ping failed", "error", err)
		}
	}

	status := "healthy"
	if dbStatus == statusDisconnected || redisStatus == statusDisconnected {
		status = "degraded"
	}

	resp := HealthResponse{
		Status:    status,
		Timestamp: time.Now().Format(time.RFC3339),
		Database:  dbStatus,
		Redis:     redisStatus,
	}
	if h.simulations != nil {
		resp.Simulations = h.simulations()
	}

	response.Success(w, http.StatusOK, resp)
}
