package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/hibiken/asynq"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqBroker enqueues asynq tasks. Deduplication uses asynq.TaskID.
type AsynqBroker struct {
	client taskEnqueuer
	cfg    Config
}

func NewAsynqBroker(client *asynq.Client, cfg Config) *AsynqBroker {
	return newAsynqBroker(client, cfg)
}

func newAsynqBroker(client taskEnqueuer, cfg Config) *AsynqBroker {
	if cfg.Queue == "" {
		cfg.Queue = "default"
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &AsynqBroker{client: client, cfg: cfg}
}

func (b *AsynqBroker) Enqueue(ctx context.Context, jobType, jobID string, payload any) (string, error) {
	data, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}

	opts := []asynq.Option{
		asynq.Queue(b.cfg.Queue),
		asynq.MaxRetry(b.cfg.MaxRetry),
		asynq.Retention(b.cfg.Retention),
	}
	if jobID != "" {
		opts = append(opts, asynq.TaskID(jobID))
	}

	info, err := b.client.EnqueueContext(ctx, asynq.NewTask(jobType, data), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
			return jobID, ErrDuplicateJob
		}
		return "", fmt.Errorf("failed to enqueue task: %w", err)
	}
	return info.ID, nil
}

// ExponentialBackoff returns an asynq retry delay of base·2^n capped at max,
// with up to 20% jitter.
func ExponentialBackoff(base, max time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		return backoff(n, base, max)
	}
}

func backoff(n int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	d := base
	for i := 0; i < n && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	jitter := time.Duration(rand.Int64N(int64(d)/5 + 1))
	return d - jitter
}
