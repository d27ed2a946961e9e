package metrics

import (
	"context"
	"io"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
)

// InstrumentedStorage records operation counts, latency and bytes for any
// Storage backend.
type InstrumentedStorage struct {
	storage.Storage
}

func NewInstrumentedStorage(s storage.Storage) *InstrumentedStorage {
	return &InstrumentedStorage{Storage: s}
}

func observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StorageOperationsTotal.WithLabelValues(op, status).Inc()
	StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *InstrumentedStorage) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	start := time.Now()
	err := s.Storage.Put(ctx, key, reader, size, contentType)
	observe("put", start, err)
	if err == nil {
		StorageBytesTotal.WithLabelValues("put").Add(float64(size))
	}
	return err
}

func (s *InstrumentedStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	reader, err := s.Storage.Get(ctx, key)
	observe("get", start, err)
	if err != nil {
		return nil, err
	}
	return &instrumentedReadCloser{ReadCloser: reader}, nil
}

func (s *InstrumentedStorage) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Storage.Delete(ctx, key)
	observe("delete", start, err)
	return err
}

func (s *InstrumentedStorage) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	exists, err := s.Storage.Exists(ctx, key)
	observe("exists", start, err)
	return exists, err
}

type instrumentedReadCloser struct {
	io.ReadCloser
	bytesRead int64
}

func (r *instrumentedReadCloser) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	r.bytesRead += int64(n)
	return n, err
}

func (r *instrumentedReadCloser) Close() error {
	StorageBytesTotal.WithLabelValues("get").Add(float64(r.bytesRead))
	return r.ReadCloser.Close()
}
