package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/job"
	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
	"github.com/abdul-hamid-achik/trackdrop/internal/metrics"
	"github.com/abdul-hamid-achik/trackdrop/internal/tracing"
	"github.com/abdul-hamid-achik/trackdrop/internal/upload"
	"github.com/hibiken/asynq"
)

// UploadProcessor is the part of upload.Processor the handlers need.
type UploadProcessor interface {
	Process(ctx context.Context, uploadID string) (*db.Track, error)
}

// errInvalidPayload marks a job that can never be processed.
var errInvalidPayload = errors.New("invalid job payload")

// ProcessUploadHandler handles upload:process jobs from the job-queue worker pool.
// The streams broker retries every error up to the job's MaxRetries, so a
// terminal failure is acked here: the upload row already records it.
// Undecodable payloads keep failing and end up in the dead letter queue.
func ProcessUploadHandler(p UploadProcessor) func(context.Context, *job.Job) error {
	return func(ctx context.Context, j *job.Job) error {
		var payload ProcessUploadPayload
		if err := j.UnmarshalPayload(&payload); err != nil {
			logger.FromContext(ctx).Error("invalid payload", "job_id", j.ID, "error", err)
			return fmt.Errorf("%w: %w", errInvalidPayload, err)
		}

		err := handle(ctx, p, j.ID, payload)
		if errors.Is(err, upload.ErrTerminal) {
			return nil
		}
		return err
	}
}

// AsynqProcessUploadHandler handles the same jobs on the asynq backend.
func AsynqProcessUploadHandler(p UploadProcessor) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		jobID, _ := asynq.GetTaskID(ctx)

		var payload ProcessUploadPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.FromContext(ctx).Error("invalid payload", "job_id", jobID, "error", err)
			return fmt.Errorf("%w: %w: %w", errInvalidPayload, err, asynq.SkipRetry)
		}

		err := handle(ctx, p, jobID, payload)
		if isFinal(err) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
}

func isFinal(err error) bool {
	return errors.Is(err, upload.ErrTerminal) || errors.Is(err, errInvalidPayload)
}

func handle(ctx context.Context, p UploadProcessor, jobID string, payload ProcessUploadPayload) error {
	if payload.UploadID == "" {
		return fmt.Errorf("%w: missing upload_id", errInvalidPayload)
	}

	ctx = tracing.ExtractTraceContext(ctx, payload.Trace)
	ctx, span := tracing.StartProcessSpan(ctx, payload.UploadID, jobID, payload.RetryCount)
	defer span.End()

	log := logger.FromContext(ctx).With("job_id", jobID, "job_type", upload.JobTypeProcess)
	ctx = logger.WithLogger(ctx, log)
	log.Info("job started", "upload_id", payload.UploadID, "retry_count", payload.RetryCount)
	start := time.Now()

	track, err := p.Process(ctx, payload.UploadID)
	metrics.RecordJobStage(upload.JobTypeProcess, "process", time.Since(start).Seconds())
	durationMs := time.Since(start).Milliseconds()

	switch {
	case err != nil && isFinal(err):
		tracing.RecordError(ctx, err)
		log.Error("job failed permanently", "upload_id", payload.UploadID, "duration_ms", durationMs, "error", err)
	case err != nil:
		tracing.RecordError(ctx, err)
		log.Warn("job failed, will be retried", "upload_id", payload.UploadID, "duration_ms", durationMs, "error", err)
	case track == nil:
		log.Info("job acknowledged without work", "upload_id", payload.UploadID, "duration_ms", durationMs)
	default:
		log.Info("job completed", "upload_id", payload.UploadID, "duration_ms", durationMs)
	}
	return err
}
