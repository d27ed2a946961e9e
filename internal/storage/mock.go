package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryStorage is an in-memory Storage for tests. Failures can be injected
// per operation and key suffix.
type MemoryStorage struct {
	mu      sync.RWMutex
	files   map[string]memoryFile
	faults  []fault
	deletes []string
	baseURL string
}

type memoryFile struct {
	data        []byte
	contentType string
}

type fault struct {
	op        string
	keySuffix string
	err       error
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		files:   make(map[string]memoryFile),
		baseURL: "http://blobs.test",
	}
}

var _ Storage = (*MemoryStorage)(nil)

// FailOn makes op ("put", "get", "delete") fail with err for every key
// ending in keySuffix. An empty suffix matches every key.
func (s *MemoryStorage) FailOn(op, keySuffix string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, fault{op: op, keySuffix: keySuffix, err: err})
}

func (s *MemoryStorage) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = nil
}

func (s *MemoryStorage) faultFor(op, key string) error {
	for _, f := range s.faults {
		if f.op == op && strings.HasSuffix(key, f.keySuffix) {
			return f.err
		}
	}
	return nil
}

func (s *MemoryStorage) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read data: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faultFor("put", key); err != nil {
		return err
	}
	s.files[key] = memoryFile{data: data, contentType: contentType}
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.faultFor("get", key); err != nil {
		return nil, err
	}
	file, exists := s.files[key]
	if !exists {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(file.data)), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.faultFor("delete", key); err != nil {
		return err
	}
	delete(s.files, key)
	s.deletes = append(s.deletes, key)
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.files[key]
	return exists, nil
}

func (s *MemoryStorage) PublicURL(key string) string {
	return joinURL(s.baseURL, key)
}

func (s *MemoryStorage) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// GetData returns the raw data for a key (test helper).
func (s *MemoryStorage) GetData(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, exists := s.files[key]
	return file.data, exists
}

// GetContentType returns the content type for a key (test helper).
func (s *MemoryStorage) GetContentType(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, exists := s.files[key]
	return file.contentType, exists
}

// Deletes lists every key passed to a successful Delete (test helper).
func (s *MemoryStorage) Deletes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.deletes...)
}

// Count returns the number of stored blobs (test helper).
func (s *MemoryStorage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
