package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLatencyWindow_Percentile(t *testing.T) {
	w := newLatencyWindow(200)
	if p := w.percentile(0.95); p != 0 {
		t.Errorf("empty window p95 = %d, want 0", p)
	}

	for i := int64(100); i >= 1; i-- {
		w.add(i)
	}
	if p := w.percentile(0.95); p != 96 {
		t.Errorf("p95 = %d, want 96", p)
	}
	if p := w.percentile(1); p != 100 {
		t.Errorf("p100 = %d, want 100", p)
	}
}

func TestLatencyWindow_Wraps(t *testing.T) {
	w := newLatencyWindow(3)
	for _, ms := range []int64{900, 900, 900, 1, 2, 3} {
		w.add(ms)
	}
	if p := w.percentile(1); p != 3 {
		t.Errorf("max after wrap = %d, want 3 (old samples evicted)", p)
	}

	w.reset()
	if p := w.percentile(0.5); p != 0 {
		t.Errorf("after reset = %d, want 0", p)
	}
}

func TestHTTPMetricsMiddleware_SkipsHealthAndMetrics(t *testing.T) {
	handler := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/health/ready", "/metrics"} {
		before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", path, "200"))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
		if d := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", path, "200")) - before; d != 0 {
			t.Errorf("%s recorded %v requests, want 0", path, d)
		}
	}
}

func TestHTTPMetricsMiddleware_FeedsLatency(t *testing.T) {
	latencies.reset()
	t.Cleanup(latencies.reset)

	handler := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/uploads/song-1/status", nil))

	latencies.mu.Lock()
	n := latencies.next
	latencies.mu.Unlock()
	if n != 1 {
		t.Errorf("recorded %d samples, want 1", n)
	}
}
