// Package queue is the durable job queue used to hand uploads to the
// background processor. Every backend deduplicates on the caller-supplied
// job id, so two enqueues of the same id collapse to one job.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// ErrDuplicateJob is returned when a job with the same id is already queued.
// Callers treat it as a successful enqueue.
var ErrDuplicateJob = errors.New("queue: duplicate job id")

// Config holds the per-job settings both Redis backends stamp on enqueue.
// Queue and Retention apply to asynq only.
type Config struct {
	Queue     string
	MaxRetry  int
	Retention time.Duration
}

type Broker interface {
	Enqueue(ctx context.Context, jobType, jobID string, payload any) (string, error)
}

func marshalPayload(payload any) ([]byte, error) {
	if raw, ok := payload.([]byte); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// Open builds the broker for backend. The returned close func releases the
// asynq client and is a no-op for streams.
func Open(backend string, rdb *redis.Client, workerID string, cfg Config) (Broker, func() error, error) {
	switch backend {
	case "streams":
		return NewStreamsBroker(rdb, workerID, WithMaxRetries(cfg.MaxRetry)), func() error { return nil }, nil
	case "asynq":
		client := asynq.NewClient(RedisClientOpt(rdb.Options()))
		return NewAsynqBroker(client, cfg), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown queue backend %q", backend)
}

// RedisClientOpt points asynq at the same Redis the go-redis client uses.
func RedisClientOpt(o *redis.Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Network:   o.Network,
		Addr:      o.Addr,
		Username:  o.Username,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLSConfig,
	}
}
