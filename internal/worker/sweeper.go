package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
	"github.com/abdul-hamid-achik/trackdrop/internal/metrics"
	"github.com/abdul-hamid-achik/trackdrop/internal/upload"
	"github.com/jackc/pgx/v5/pgtype"
)

// Requeuer re-enqueues the current attempt of an upload whose job was lost.
type Requeuer interface {
	Requeue(ctx context.Context, u db.Upload) (string, error)
}

type SweeperConfig struct {
	BatchSize            int32
	StalePendingAfter    time.Duration
	StaleProcessingAfter time.Duration
	// MaxAttempts matches the processor's setting; a stale row that used all
	// of them is failed instead of requeued.
	MaxAttempts int
}

type SweepStats struct {
	Compensated        int
	CompensationErrors int
	StalePendingFailed int
	Requeued           int
	StillQueued        int
	ExhaustedFailed    int
	DatabaseErrors     int
}

// Sweeper repairs what crashed processes leave behind: uncompensated failed
// uploads, pending rows whose intake died, and processing rows whose job
// vanished.
type Sweeper struct {
	repo  db.Querier
	comp  *upload.Compensator
	queue Requeuer
	cfg   SweeperConfig
	now   func() time.Time
}

func NewSweeper(repo db.Querier, comp *upload.Compensator, queue Requeuer, cfg SweeperConfig) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.StalePendingAfter <= 0 {
		cfg.StalePendingAfter = 15 * time.Minute
	}
	if cfg.StaleProcessingAfter <= 0 {
		cfg.StaleProcessingAfter = time.Hour
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	return &Sweeper{repo: repo, comp: comp, queue: queue, cfg: cfg, now: time.Now}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			logger.FromContext(ctx).Error("sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce makes a single pass. Each category handles at most one batch, so
// rows that keep failing cannot stall a pass.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepStats, error) {
	log := logger.FromContext(ctx)
	log.Info("starting sweep")
	start := time.Now()

	stats := &SweepStats{}
	var errs []error

	if err := s.compensateFailed(ctx, stats); err != nil {
		log.Error("failed to sweep failed uploads", "error", err)
		errs = append(errs, err)
	}
	if err := s.failStalePending(ctx, stats); err != nil {
		log.Error("failed to sweep stale pending uploads", "error", err)
		errs = append(errs, err)
	}
	if err := s.recoverStaleProcessing(ctx, stats); err != nil {
		log.Error("failed to sweep stale processing uploads", "error", err)
		errs = append(errs, err)
	}

	log.Info("sweep completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"compensated", stats.Compensated,
		"compensation_errors", stats.CompensationErrors,
		"stale_pending_failed", stats.StalePendingFailed,
		"requeued", stats.Requeued,
		"still_queued", stats.StillQueued,
		"exhausted_failed", stats.ExhaustedFailed,
		"database_errors", stats.DatabaseErrors,
	)
	return stats, errors.Join(errs...)
}

func (s *Sweeper) compensateFailed(ctx context.Context, stats *SweepStats) error {
	rows, err := s.repo.ListUncompensatedFailedUploads(ctx, s.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list uncompensated uploads: %w", err)
	}
	for _, row := range rows {
		s.compensate(ctx, row, stats)
	}
	return nil
}

func (s *Sweeper) failStalePending(ctx context.Context, stats *SweepStats) error {
	rows, err := s.stale(ctx, db.UploadStatusPending, s.cfg.StalePendingAfter)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if s.fail(ctx, row, "intake did not finish", stats) {
			stats.StalePendingFailed++
		}
	}
	return nil
}

func (s *Sweeper) recoverStaleProcessing(ctx context.Context, stats *SweepStats) error {
	rows, err := s.stale(ctx, db.UploadStatusProcessing, s.cfg.StaleProcessingAfter)
	if err != nil {
		return err
	}
	for _, row := range rows {
		ctx := logger.WithUploadID(ctx, row.UploadID)
		log := logger.FromContext(ctx)

		if int(row.AttemptCount) >= s.cfg.MaxAttempts {
			if s.fail(ctx, row, "processing attempts exhausted", stats) {
				stats.ExhaustedFailed++
			}
			continue
		}

		jobID, err := s.queue.Requeue(ctx, row)
		switch {
		case errors.Is(err, upload.ErrAlreadyQueued):
			// the queue still holds the job; give it another window
			if err := s.repo.TouchUpload(ctx, row.UploadID); err != nil {
				stats.DatabaseErrors++
			}
			stats.StillQueued++
			metrics.RecordSweeperAction("still_queued", nil)
		case err != nil:
			log.Warn("failed to requeue upload", "error", err)
			metrics.RecordSweeperAction("requeue", err)
		default:
			if err := s.repo.TouchUpload(ctx, row.UploadID); err != nil {
				stats.DatabaseErrors++
			}
			stats.Requeued++
			metrics.RecordSweeperAction("requeue", nil)
			log.Info("requeued stale upload", "job_id", jobID, "attempt", row.AttemptCount)
		}
	}
	return nil
}

func (s *Sweeper) stale(ctx context.Context, status db.UploadStatus, age time.Duration) ([]db.Upload, error) {
	rows, err := s.repo.ListStaleUploads(ctx, db.ListStaleUploadsParams{
		Status:        status,
		UpdatedBefore: pgtype.Timestamptz{Time: s.now().Add(-age), Valid: true},
		Limit:         s.cfg.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list stale %s uploads: %w", status, err)
	}
	return rows, nil
}

// fail moves an active row to FAILED and compensates it. It reports whether
// this call made the transition.
func (s *Sweeper) fail(ctx context.Context, row db.Upload, reason string, stats *SweepStats) bool {
	log := logger.FromContext(ctx).With("upload_id", row.UploadID)

	lastError := reason
	if row.LastError.Valid {
		lastError = reason + ": " + row.LastError.String
	}
	n, err := s.repo.MarkUploadFailed(ctx, db.MarkUploadFailedParams{
		UploadID:  row.UploadID,
		LastError: pgtype.Text{String: lastError, Valid: true},
	})
	metrics.RecordSweeperAction("fail", err)
	if err != nil {
		log.Warn("failed to mark stale upload failed", "error", err)
		stats.DatabaseErrors++
		return false
	}
	if n == 0 {
		// settled since it was listed
		return false
	}
	metrics.RecordTransition(string(db.UploadStatusFailed))
	log.Info("stale upload failed", "reason", reason, "status", row.Status)

	s.compensate(ctx, row, stats)
	return true
}

func (s *Sweeper) compensate(ctx context.Context, row db.Upload, stats *SweepStats) {
	log := logger.FromContext(ctx).With("upload_id", row.UploadID)

	if !s.comp.Cleanup(ctx, "sweeper", upload.BlobsOf(row)) {
		stats.CompensationErrors++
		metrics.RecordSweeperAction("compensate", errors.New("incomplete"))
		return
	}
	if err := s.repo.MarkUploadCompensated(ctx, row.UploadID); err != nil {
		log.Warn("failed to mark upload compensated", "error", err)
		stats.DatabaseErrors++
		return
	}
	stats.Compensated++
	metrics.RecordSweeperAction("compensate", nil)
}
