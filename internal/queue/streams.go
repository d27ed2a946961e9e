package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/job-queue/pkg/broker"
	"github.com/abdul-hamid-achik/job-queue/pkg/job"
	"github.com/redis/go-redis/v9"
)

const (
	defaultDedupTTL    = 7 * 24 * time.Hour
	defaultDedupPrefix = "trackdrop:jobid:"
	defaultMaxRetries  = 3
)

type jobEnqueuer interface {
	Enqueue(ctx context.Context, j *job.Job) error
}

// StreamsBroker enqueues onto job-queue's Redis Streams broker. The streams
// broker has no notion of caller ids, so a SETNX marker keyed by job id
// guards against duplicate enqueues.
type StreamsBroker struct {
	broker     jobEnqueuer
	rdb        redis.Cmdable
	dedupTTL   time.Duration
	prefix     string
	maxRetries int
}

type StreamsOption func(*StreamsBroker)

func WithDedupTTL(ttl time.Duration) StreamsOption {
	return func(b *StreamsBroker) { b.dedupTTL = ttl }
}

func WithDedupPrefix(prefix string) StreamsOption {
	return func(b *StreamsBroker) { b.prefix = prefix }
}

// WithMaxRetries sets how many times the worker pool redelivers a failed
// job before moving it to the dead letter queue.
func WithMaxRetries(n int) StreamsOption {
	return func(b *StreamsBroker) {
		if n >= 0 {
			b.maxRetries = n
		}
	}
}

func NewStreamsBroker(rdb *redis.Client, workerID string, opts ...StreamsOption) *StreamsBroker {
	return newStreamsBroker(broker.NewRedisStreamsBroker(rdb, broker.WithWorkerID(workerID)), rdb, opts...)
}

func newStreamsBroker(b jobEnqueuer, rdb redis.Cmdable, opts ...StreamsOption) *StreamsBroker {
	s := &StreamsBroker{
		broker:   b,
		rdb:      rdb,
		dedupTTL:   defaultDedupTTL,
		prefix:     defaultDedupPrefix,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *StreamsBroker) Enqueue(ctx context.Context, jobType, jobID string, payload any) (string, error) {
	j, err := job.NewWithOptions(jobType, payload, job.WithMaxRetries(s.maxRetries))
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}
	if jobID == "" {
		if err := s.broker.Enqueue(ctx, j); err != nil {
			return "", fmt.Errorf("enqueue job: %w", err)
		}
		return j.ID, nil
	}
	j.ID = jobID

	key := s.prefix + jobID
	ok, err := s.rdb.SetNX(ctx, key, jobType, s.dedupTTL).Result()
	if err != nil {
		return "", fmt.Errorf("reserve job id: %w", err)
	}
	if !ok {
		return jobID, ErrDuplicateJob
	}

	if err := s.broker.Enqueue(ctx, j); err != nil {
		// release the reservation so a later attempt can enqueue
		_ = s.rdb.Del(context.WithoutCancel(ctx), key).Err()
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

// Release drops the dedup marker for jobID. The sweeper calls it before
// re-enqueueing a job that vanished from the stream.
func (s *StreamsBroker) Release(ctx context.Context, jobID string) error {
	return s.rdb.Del(ctx, s.prefix+jobID).Err()
}
