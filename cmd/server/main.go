package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authHandlers "universe-server/internal/auth/handlers"
	"universe-server/internal/middleware"
	"universe-server/internal/server"
	"universe-server/internal/shared/config"
	"universe-server/internal/shared/cookies"
	"universe-server/internal/shared/database"
	"universe-server/internal/shared/logger"
	"universe-server/internal/shared/redis"
	"universe-server/internal/simulation"
	"universe-server/internal/storage"
	"universe-server/internal/storage/postgres"
	"universe-server/internal/storage/redisstore"
	"universe-server/internal/storage/textfile"
	"universe-server/migrations"
)

func main() {
	if err := config.Init(); err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	logger.Init()

	if err := run(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.GlobalConfig
	log := slog.With("component", "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *database.DB
	if cfg.UsesPostgres() {
		var err error
		db, err = database.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.RunMigrations(ctx, migrations.FS); err != nil {
			return err
		}
	}

	cache, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer cache.Close()

	store, err := newStore(cfg, db)
	if err != nil {
		return err
	}

	var opts []simulation.Option
	switch cfg.Storage.SnapshotBackend {
	case config.SnapshotBackendPostgres:
		opts = append(opts, simulation.WithSnapshots(postgres.NewStore(db, slog.Default())))
	case config.SnapshotBackendRedis:
		opts = append(opts, simulation.WithSnapshots(redisstore.NewStore(cache, cfg.Storage.SnapshotTTL, slog.Default())))
	}

	simulationService := simulation.NewService(store, cfg.Simulation, slog.Default(), opts...)

	sessionHandler := authHandlers.NewSessionHandler(cfg.Auth.JWTSecret, cookies.NewPolicy(cfg.Auth, cfg.Frontend))
	routes := server.NewRoutes(db, cache, simulationService, middleware.NewAuthenticator(cfg.Auth.JWTSecret), sessionHandler, slog.Default())
	rateLimiter := middleware.NewRateLimiter(ctx, cfg.RateLimit)
	cors := middleware.NewCORS(cfg.Frontend)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      cors.Middleware(rateLimiter.Middleware(routes.Setup())),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Universe server starting",
			"port", cfg.Server.Port,
			"environment", cfg.Server.Environment,
			"storage_backend", cfg.Storage.Backend,
			"snapshot_backend", cfg.Storage.SnapshotBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := simulationService.Shutdown(shutdownCtx); err != nil {
		log.Warn("Simulation runs did not stop in time", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("Server stopped")
	return nil
}

func newStore(cfg *config.Config, db *database.DB) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendPostgres:
		return postgres.NewStore(db, slog.Default()), nil
	case config.StorageBackendText:
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			return nil, err
		}
		return textfile.NewStore(cfg.Storage.DataDir, slog.Default()), nil
	default:
		return nil, errors.New("unknown storage backend " + cfg.Storage.Backend)
	}
}
