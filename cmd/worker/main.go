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

	"github.com/abdul-hamid-achik/trackdrop/internal/config"
	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
	"github.com/abdul-hamid-achik/trackdrop/internal/metadata"
	"github.com/abdul-hamid-achik/trackdrop/internal/metrics"
	"github.com/abdul-hamid-achik/trackdrop/internal/queue"
	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
	"github.com/abdul-hamid-achik/trackdrop/internal/tracing"
	"github.com/abdul-hamid-achik/trackdrop/internal/upload"
	"github.com/abdul-hamid-achik/trackdrop/internal/version"
	"github.com/abdul-hamid-achik/trackdrop/internal/webhook"
	tdworker "github.com/abdul-hamid-achik/trackdrop/internal/worker"
	"github.com/abdul-hamid-achik/job-queue/pkg/broker"
	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"
	"github.com/abdul-hamid-achik/job-queue/pkg/worker"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
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

	log.Info("configuration loaded", "queue", cfg.QueueBackend, "extractor", cfg.MetadataExtractor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    cfg.OTelServiceName + "-worker",
		ServiceVersion: version.Short(),
		Environment:    cfg.Environment,
		Role:           "worker",
		QueueBackend:   cfg.QueueBackend,
		Extractor:      cfg.MetadataExtractor,
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

	extractor, err := metadata.New(cfg.MetadataExtractor, "")
	if err != nil {
		return fmt.Errorf("failed to create metadata extractor: %w", err)
	}
	log.Info("metadata extractor ready", "strategy", cfg.MetadataExtractor)

	metrics.SetAppInfo(version.Short(), cfg.Environment, "worker")
	metrics.SetWorkerPoolSize(cfg.WorkerConcurrency)

	instrumentedStore := metrics.NewInstrumentedStorage(store)
	processor := upload.NewProcessor(
		db.NewStore(pool),
		instrumentedStore,
		extractor,
		upload.NewCompensator(instrumentedStore),
		upload.ProcessorConfig{
			MaxAttempts:        cfg.MaxRetries + 1,
			ExtractTimeout:     cfg.ExtractTimeout,
			RejectZeroDuration: cfg.RejectZeroDuration,
			TempDir:            os.TempDir(),
		},
	)
	if cfg.WebhookURL != "" {
		processor.WithNotifier(webhook.NewNotifier(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout))
		log.Info("webhook notifications enabled")
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler: metricsMux(),
	}
	go func() {
		log.Info("metrics server starting", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()

	var (
		runErr = make(chan error, 1)
		stop   func(context.Context) error
	)

	switch cfg.QueueBackend {
	case "asynq":
		srv := asynq.NewServer(queue.RedisClientOpt(redisOpt), asynq.Config{
			Concurrency:    cfg.WorkerConcurrency,
			Queues:         map[string]int{"default": 1},
			RetryDelayFunc: queue.ExponentialBackoff(cfg.RetryBaseDelay, cfg.RetryMaxDelay),
			Logger:         tdworker.NewAsynqLogger(log),
		})
		mux := asynq.NewServeMux()
		mux.HandleFunc(upload.JobTypeProcess, tdworker.AsynqProcessUploadHandler(processor))

		go func() {
			log.Info("starting asynq server", "concurrency", cfg.WorkerConcurrency)
			runErr <- srv.Run(mux)
		}()
		stop = func(context.Context) error {
			srv.Shutdown()
			return nil
		}

	default:
		zerologger := zerolog.New(os.Stdout).With().Timestamp().Logger()

		b := broker.NewRedisStreamsBroker(redisClient,
			broker.WithWorkerID(fmt.Sprintf("worker-%d", os.Getpid())),
		)

		registry := worker.NewRegistry()
		if err := registry.Register(upload.JobTypeProcess, tdworker.ProcessUploadHandler(processor)); err != nil {
			return fmt.Errorf("failed to register handler: %w", err)
		}
		registry.Use(
			middleware.RecoveryMiddleware(zerologger),
			middleware.LoggingMiddleware(zerologger),
			middleware.TimeoutMiddleware(cfg.JobTimeout),
			middleware.MetricsMiddleware(metrics.NewPrometheusCollector()),
		)
		log.Info("handlers registered", "count", len(registry.Types()))

		workerPool := worker.NewPool(b, registry,
			worker.WithConcurrency(cfg.WorkerConcurrency),
			worker.WithPoolQueues([]string{"default"}),
			worker.WithPoolPollInterval(time.Second),
			worker.WithShutdownTimeout(30*time.Second),
			worker.WithPoolLogger(zerologger),
		)

		go func() {
			log.Info("starting worker pool", "concurrency", cfg.WorkerConcurrency)
			runErr <- workerPool.Start(ctx)
		}()
		stop = workerPool.Stop
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := stop(shutdownCtx); err != nil {
			log.Error("error stopping worker", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("error stopping metrics server", "error", err)
		}
		cancel()
	}

	log.Info("worker stopped gracefully")
	return nil
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
