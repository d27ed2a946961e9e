package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/api"
	"github.com/abdul-hamid-achik/trackdrop/internal/config"
	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/health"
	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
	"github.com/abdul-hamid-achik/trackdrop/internal/metrics"
	"github.com/abdul-hamid-achik/trackdrop/internal/queue"
	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
	"github.com/abdul-hamid-achik/trackdrop/internal/tracing"
	"github.com/abdul-hamid-achik/trackdrop/internal/upload"
	"github.com/abdul-hamid-achik/trackdrop/internal/version"
	"github.com/abdul-hamid-achik/trackdrop/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()

	log.Info("configuration loaded", "storage", cfg.StorageBackend, "queue", cfg.QueueBackend)

	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    cfg.OTelServiceName + "-api",
		ServiceVersion: version.Short(),
		Environment:    cfg.Environment,
		Role:           "api",
		QueueBackend:   cfg.QueueBackend,
		OTLPEndpoint:   cfg.OTelEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRate:     cfg.OTelSamplingRate,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	log.Info("connecting to database")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info("database connected")

	log.Info("connecting to object storage")
	store, err := storage.New(ctx, cfg.StorageBackend, cfg.StorageConfig())
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	log.Info("object storage connected")

	log.Info("connecting to redis")
	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpt)
	defer func() { _ = redisClient.Close() }()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	b, closeBroker, err := queue.Open(cfg.QueueBackend, redisClient, fmt.Sprintf("api-%d", os.Getpid()), queue.Config{
		MaxRetry: cfg.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}
	defer func() { _ = closeBroker() }()
	log.Info("broker initialized")

	metrics.SetAppInfo(version.Short(), cfg.Environment, "api")

	repo := db.NewStore(pool)
	instrumentedStore := metrics.NewInstrumentedStorage(store)

	orchestrator := upload.NewOrchestrator(
		repo,
		instrumentedStore,
		worker.NewEnqueuer(b),
		upload.NewCompensator(instrumentedStore),
		upload.NewValidator(upload.Limits{MaxAudioSize: cfg.MaxAudioSize, MaxCoverSize: cfg.MaxCoverSize}),
	)

	router := api.NewRouter(&api.Config{
		Orchestrator: orchestrator,
		Status:       upload.NewStatusService(repo),
		Health:       health.NewChecker(pool, redisClient).WithStorage(store),
		Limiter:      api.NewRedisRateLimiter(redisClient, cfg.RateLimitRPM, time.Minute),
		JWTSecret:    cfg.JWTSecret,
		BaseURL:      cfg.BaseURL,
		MaxAudioSize: cfg.MaxAudioSize,
		MaxCoverSize: cfg.MaxCoverSize,
	})

	var handler http.Handler = router
	handler = api.CORS(cfg.BaseURL, cfg.PublicBaseURL)(handler)
	handler = api.SecurityHeaders(metrics.HTTPMetricsMiddleware(api.Recovery(api.RequestID(api.RequestLogger(handler)))))
	if cfg.OTelEnabled {
		handler = tracing.HTTPMiddleware("api")(handler)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "url", cfg.BaseURL)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			_ = server.Close()
			return fmt.Errorf("forced shutdown: %w", err)
		}
	}

	log.Info("server stopped gracefully")
	return nil
}
