package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/safespace/server/internal/app"
	"github.com/safespace/server/internal/auth"
	"github.com/safespace/server/internal/config"
	"github.com/safespace/server/internal/db"
	"github.com/safespace/server/internal/events"
	"github.com/safespace/server/internal/logging"
	"github.com/safespace/server/internal/repo/memrepo"
)

func main() {
	// Load .env from CWD or server/ so it works from repo root or server/ (env vars override)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	repos, closeRepos, err := openRepos(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRepos()

	publisher, err := openPublisher(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	opts := app.Options{
		JWTSecret:                cfg.JWTSecret,
		AccessTTL:                cfg.AccessTokenTTL,
		RefreshTTL:               cfg.RefreshTokenTTL,
		AppURL:                   cfg.AppURL,
		DefaultRoute:             cfg.DefaultRoute,
		AllowedOrigins:           cfg.CORSAllowedOrigins,
		SecureCookies:            !cfg.DevMode,
		RequireEmailConfirmation: cfg.RequireEmailConfirmation,
		AccountRequestsPerWindow: cfg.AccountRateLimit,
		Publisher:                publisher,
		Logger:                   logger,
	}
	// Google stays a nil interface when disabled so the handlers report provider_disabled
	if cfg.Google.Enabled() {
		google, err := auth.NewGoogleProvider(ctx, cfg.Google)
		if err != nil {
			return err
		}
		opts.Google = google
		logger.Info("google identity linking enabled", zap.String("issuer", cfg.Google.ProviderURL))
	}

	api := app.New(repos, opts)
	defer api.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("server exited")
	return nil
}

func openRepos(ctx context.Context, cfg *config.Config, logger *zap.Logger) (app.Repos, func(), error) {
	if cfg.DatabaseURL == config.MemoryDatabaseURL {
		logger.Warn("using in-memory store; data is lost on exit")
		return app.MemoryRepos(memrepo.New()), func() {}, nil
	}

	database, err := db.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return app.Repos{}, nil, err
	}
	if err := db.Migrate(database); err != nil {
		_ = database.Close()
		return app.Repos{}, nil, err
	}
	return app.PostgresRepos(database), func() { _ = database.Close() }, nil
}

func openPublisher(cfg *config.Config, logger *zap.Logger) (events.Publisher, error) {
	if cfg.NATSURL == "" {
		return &events.NoopPublisher{}, nil
	}
	publisher, err := events.NewNATSPublisher(cfg.NATSURL)
	if err != nil {
		return nil, err
	}
	logger.Info("publishing auth events", zap.String("nats", cfg.NATSURL))
	return publisher, nil
}
