package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/config"
	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
	"github.com/abdul-hamid-achik/trackdrop/internal/metrics"
	"github.com/abdul-hamid-achik/trackdrop/internal/queue"
	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
	"github.com/abdul-hamid-achik/trackdrop/internal/upload"
	"github.com/abdul-hamid-achik/trackdrop/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		slog.Error("cleanup failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		interval  time.Duration
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Compensate failed uploads and recover stale ones",
		Long: `Sweeps the upload table once, or every --interval when set.

A pass deletes the blobs of failed uploads that were not cleaned up, fails
pending uploads whose intake never finished, and requeues processing
uploads whose job was lost.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), interval, batchSize)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "sweep repeatedly at this interval instead of once")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per category per pass (default from config)")
	return cmd
}

func run(ctx context.Context, interval time.Duration, batchSize int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(cfg.LogLevel)
	log := logger.Default()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("connecting to database")
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := storage.New(ctx, cfg.StorageBackend, cfg.StorageConfig())
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	redisOpt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpt)
	defer func() { _ = redisClient.Close() }()

	b, closeBroker, err := queue.Open(cfg.QueueBackend, redisClient, fmt.Sprintf("cleanup-%d", os.Getpid()), queue.Config{
		MaxRetry: cfg.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}
	defer func() { _ = closeBroker() }()

	if batchSize <= 0 {
		batchSize = cfg.SweepBatchSize
	}

	instrumentedStore := metrics.NewInstrumentedStorage(store)
	sweeper := worker.NewSweeper(
		db.NewStore(pool),
		upload.NewCompensator(instrumentedStore),
		worker.NewEnqueuer(b),
		worker.SweeperConfig{
			BatchSize:            int32(batchSize),
			StalePendingAfter:    cfg.StalePendingAfter,
			StaleProcessingAfter: cfg.StaleProcessingAfter,
			MaxAttempts:          cfg.MaxRetries + 1,
		},
	)

	ctx = logger.WithLogger(ctx, log)
	if interval <= 0 {
		_, err := sweeper.RunOnce(ctx)
		return err
	}

	log.Info("sweeping periodically", "interval", interval)
	if err := sweeper.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("cleanup stopped")
	return nil
}
