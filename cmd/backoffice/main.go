package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	app "github.com/apex-authority/backoffice/internal/app"
	"github.com/apex-authority/backoffice/internal/app/httpapi"
	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/app/storage/postgres"
	"github.com/apex-authority/backoffice/internal/app/storage/supabase"
	"github.com/apex-authority/backoffice/internal/config"
	"github.com/apex-authority/backoffice/internal/database"
	"github.com/apex-authority/backoffice/internal/logging"
	"github.com/apex-authority/backoffice/internal/metrics"
	"github.com/apex-authority/backoffice/internal/middleware"
	"github.com/apex-authority/backoffice/internal/platform/migrations"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to the YAML configuration file")
		envFile    = flag.String("env", ".env", "Path to an optional .env file")
	)
	flag.Parse()

	_ = godotenv.Load(*envFile)

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("backoffice", cfg.Logging.Level, cfg.Logging.Format)

	stores, cleanup, err := buildStores(cfg, logger)
	if err != nil {
		log.Fatalf("configure storage: %v", err)
	}
	defer cleanup()

	reg := metrics.New()

	opts := app.Options{
		PollInterval:       cfg.Settings.PollInterval,
		FetchTimeout:       cfg.Settings.FetchTimeout,
		AuditRetentionDays: cfg.Audit.RetentionDays,
		AuditPruneSchedule: cfg.Audit.PruneSchedule,
		Metrics:            reg,
	}
	if cfg.Redis.Addr != "" {
		opts.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		opts.RedisChannel = cfg.Redis.Channel
	}

	application, err := app.New(stores, opts, logger)
	if err != nil {
		log.Fatalf("build application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("start application: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := application.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Error("stop application")
		}
	}()

	auth := middleware.NewAuthMiddleware([]byte(cfg.Auth.JWTSecret), logger, nil)
	handler := httpapi.NewHandler(application, auth, reg, logger)

	limiter := middleware.NewRateLimiter(cfg.Server.RatePerSecond, cfg.Server.RateBurst, logger)
	limiter.StartCleanup(10 * time.Minute)

	chain := middleware.NewTracingMiddleware(logger).Handler(
		middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins).Handler(
			limiter.Handler(handler)))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           chain,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("listening")
		errs <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown")
	}
}

// buildStores selects the storage backend. A nil field in the returned
// Stores falls back to the in-memory implementation inside app.New.
func buildStores(cfg *config.Config, logger *logging.Logger) (app.Stores, func(), error) {
	noop := func() {}

	switch cfg.Storage.Backend {
	case "supabase":
		client, err := database.NewClient(database.Config{
			URL:        cfg.Storage.Supabase.URL,
			ServiceKey: cfg.Storage.Supabase.ServiceKey,
			Timeout:    cfg.Storage.Supabase.Timeout,
		})
		if err != nil {
			return app.Stores{}, noop, err
		}
		store := supabase.New(client)
		logger.WithField("backend", "supabase").Info("storage configured")
		return storesFrom(store), noop, nil

	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		store, err := postgres.Open(ctx, cfg.Storage.Postgres.DSN)
		if err != nil {
			return app.Stores{}, noop, err
		}
		if err := migrations.Apply(ctx, store.DB()); err != nil {
			return app.Stores{}, noop, fmt.Errorf("apply migrations: %w", err)
		}
		logger.WithField("backend", "postgres").Info("storage configured")
		return storesFrom(store), func() { _ = store.Close() }, nil

	case "memory":
		logger.WithField("backend", "memory").Warn("storage configured; data will not survive restarts")
		return app.Stores{}, noop, nil

	default:
		return app.Stores{}, noop, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// backendStore is satisfied by both persistent store implementations.
type backendStore interface {
	storage.SettingsStore
	storage.ApplicationStore
	storage.ContactStore
	storage.ContentStore
	storage.LicenseStore
	storage.PaymentAddressStore
	storage.AuditStore
	storage.ExportStore
}

func storesFrom(store backendStore) app.Stores {
	return app.Stores{
		Settings:         store,
		Applications:     store,
		Contacts:         store,
		Content:          store,
		Licenses:         store,
		PaymentAddresses: store,
		Audit:            store,
		Export:           store,
	}
}
