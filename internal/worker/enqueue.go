package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/trackdrop/internal/db"
	"github.com/abdul-hamid-achik/trackdrop/internal/metrics"
	"github.com/abdul-hamid-achik/trackdrop/internal/queue"
	"github.com/abdul-hamid-achik/trackdrop/internal/tracing"
	"github.com/abdul-hamid-achik/trackdrop/internal/upload"
)

// releaser is implemented by brokers that keep their own dedup marker.
type releaser interface {
	Release(ctx context.Context, jobID string) error
}

// Enqueuer puts upload processing jobs on a queue.Broker.
type Enqueuer struct {
	broker queue.Broker
}

var _ upload.Enqueuer = (*Enqueuer)(nil)

func NewEnqueuer(broker queue.Broker) *Enqueuer {
	return &Enqueuer{broker: broker}
}

func (e *Enqueuer) EnqueueProcessing(ctx context.Context, u db.Upload) (string, error) {
	jobID := upload.JobID(u.UploadID, u.RetryCount)
	ctx, span := tracing.StartEnqueueSpan(ctx, u.UploadID, jobID, u.RetryCount)
	defer span.End()

	payload := NewProcessUploadPayload(u, tracing.InjectTraceContext(ctx))
	_, err := e.broker.Enqueue(ctx, upload.JobTypeProcess, jobID, payload)
	switch {
	case errors.Is(err, queue.ErrDuplicateJob):
		metrics.RecordJobEnqueued(upload.JobTypeProcess, "duplicate")
		return jobID, upload.ErrAlreadyQueued
	case err != nil:
		tracing.RecordError(ctx, err)
		metrics.RecordJobEnqueued(upload.JobTypeProcess, "error")
		return "", fmt.Errorf("enqueue %s: %w", jobID, err)
	}

	metrics.RecordJobEnqueued(upload.JobTypeProcess, "success")
	return jobID, nil
}

// Requeue enqueues the current attempt again after its job was lost. Brokers
// with a dedup marker drop it first so the same job id is accepted.
func (e *Enqueuer) Requeue(ctx context.Context, u db.Upload) (string, error) {
	if r, ok := e.broker.(releaser); ok {
		if err := r.Release(ctx, upload.JobID(u.UploadID, u.RetryCount)); err != nil {
			return "", fmt.Errorf("release dedup marker: %w", err)
		}
	}
	return e.EnqueueProcessing(ctx, u)
}
