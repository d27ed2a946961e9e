package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
)

type Job struct {
	Type    string
	ID      string
	Payload []byte
}

func (j Job) Unmarshal(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// MemoryBroker is an in-process Broker for tests. It deduplicates by job id
// the way the real backends do.
type MemoryBroker struct {
	mu      sync.Mutex
	jobs    []Job
	seen    map[string]bool
	failErr error
	seq     int
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{seen: make(map[string]bool)}
}

func (m *MemoryBroker) Enqueue(ctx context.Context, jobType, jobID string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := marshalPayload(payload)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failErr != nil {
		return "", m.failErr
	}
	if jobID == "" {
		m.seq++
		jobID = jobType + ":" + strconv.Itoa(m.seq)
	}
	if m.seen[jobID] {
		return jobID, ErrDuplicateJob
	}
	m.seen[jobID] = true
	m.jobs = append(m.jobs, Job{Type: jobType, ID: jobID, Payload: data})
	return jobID, nil
}

// FailWith makes every later Enqueue return err. Pass nil to recover.
func (m *MemoryBroker) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Forget drops a job id so it can be enqueued again, as if it expired.
func (m *MemoryBroker) Forget(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, jobID)
}

// Release satisfies the dedup-marker contract of StreamsBroker.
func (m *MemoryBroker) Release(ctx context.Context, jobID string) error {
	m.Forget(jobID)
	return nil
}

func (m *MemoryBroker) Jobs() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Job(nil), m.jobs...)
}

// Drain returns the queued jobs and empties the queue. Seen ids stay seen.
func (m *MemoryBroker) Drain() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := m.jobs
	m.jobs = nil
	return jobs
}
