package upload

import (
	"context"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/logger"
	"github.com/abdul-hamid-achik/trackdrop/internal/metrics"
	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
)

const defaultCleanupTimeout = 30 * time.Second

// Compensator deletes the blobs of a failed upload attempt.
type Compensator struct {
	store   storage.Storage
	timeout time.Duration
}

func NewCompensator(store storage.Storage) *Compensator {
	return &Compensator{store: store, timeout: defaultCleanupTimeout}
}

// Cleanup deletes every key in b concurrently. It never fails: delete errors
// are logged and the return value reports whether every key is gone.
// source labels the caller in metrics (intake, processor, sweeper).
func (c *Compensator) Cleanup(ctx context.Context, source string, b Blobs) bool {
	keys := b.Keys()
	if len(keys) == 0 {
		return true
	}

	// cleanup runs on error paths, often after the caller's context is done
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	log := logger.FromContext(ctx)
	results := make([]bool, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			if err := c.store.Delete(ctx, key); err != nil {
				log.Warn("compensation delete failed", "key", key, "source", source, "error", err)
				return
			}
			results[i] = true
		}(i, key)
	}
	wg.Wait()

	complete := true
	for _, ok := range results {
		complete = complete && ok
	}
	metrics.RecordCompensation(source, complete)
	if complete {
		log.Debug("compensation complete", "keys", keys, "source", source)
	}
	return complete
}
