package metrics

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/trackdrop/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/v1/uploads", "/v1/uploads"},
		{"/v1/uploads/my-client-id:42/status", "/v1/uploads/:id/status"},
		{"/v1/tracks/0190f3a2-7b1c-7d2e-8f00-123456789abc", "/v1/tracks/:id"},
		{"/health/ready", "/health/ready"},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.path); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestPrometheusCollector(t *testing.T) {
	c := NewPrometheusCollector()
	before := testutil.ToFloat64(JobsProcessedTotal.WithLabelValues("test:collector", "success"))

	c.JobStarted("test:collector", "default")
	if got := testutil.ToFloat64(WorkerPoolActiveJobs); got < 1 {
		t.Errorf("active jobs = %v, want >= 1", got)
	}
	c.JobCompleted("test:collector", "default", 20*time.Millisecond)

	after := testutil.ToFloat64(JobsProcessedTotal.WithLabelValues("test:collector", "success"))
	if after-before != 1 {
		t.Errorf("processed delta = %v, want 1", after-before)
	}
}

func TestInstrumentedStorage(t *testing.T) {
	s := NewInstrumentedStorage(storage.NewMemoryStorage())
	ctx := context.Background()

	putsBefore := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("put", "success"))
	bytesBefore := testutil.ToFloat64(StorageBytesTotal.WithLabelValues("get"))

	data := []byte("audio bytes")
	if err := s.Put(ctx, "uploads/a/audio", bytes.NewReader(data), int64(len(data)), "audio/mpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	rc, err := s.Get(ctx, "uploads/a/audio")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, err := io.ReadAll(rc); err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	_ = rc.Close()

	if d := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("put", "success")) - putsBefore; d != 1 {
		t.Errorf("put count delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(StorageBytesTotal.WithLabelValues("get")) - bytesBefore; d != float64(len(data)) {
		t.Errorf("get bytes delta = %v, want %d", d, len(data))
	}

	errsBefore := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("get", "error"))
	if _, err := s.Get(ctx, "uploads/missing"); err == nil {
		t.Fatal("Get() on missing key should fail")
	}
	if d := testutil.ToFloat64(StorageOperationsTotal.WithLabelValues("get", "error")) - errsBefore; d != 1 {
		t.Errorf("get error delta = %v, want 1", d)
	}
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	h := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{}`))
	}))

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/v1/uploads", "202"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/uploads", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if d := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/v1/uploads", "202")) - before; d != 1 {
		t.Errorf("request count delta = %v, want 1", d)
	}
}
