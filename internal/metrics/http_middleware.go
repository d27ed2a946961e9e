package metrics

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// latencies keeps the most recent API request latencies for the health report.
var latencies = newLatencyWindow(1000)

type latencyWindow struct {
	mu      sync.Mutex
	samples []int64
	next    int
	full    bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]int64, size)}
}

func (w *latencyWindow) add(ms int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.next] = ms
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
}

func (w *latencyWindow) percentile(p float64) int64 {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	sorted := slices.Clone(w.samples[:n])
	w.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (w *latencyWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next, w.full = 0, false
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

// HTTPMetricsMiddleware records request counts, durations and response sizes
// per normalized route. Health and metrics scrapes are not recorded.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/health") {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		route := NormalizePath(r.URL.Path)

		inFlight := HTTPRequestsInFlight.WithLabelValues(r.Method)
		inFlight.Inc()
		defer inFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		code := strconv.Itoa(sw.status)
		HTTPRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route, code).Observe(elapsed.Seconds())
		HTTPResponseSize.WithLabelValues(r.Method, route, code).Observe(float64(sw.bytes))
		latencies.add(elapsed.Milliseconds())
	})
}

// GetLatencyP95 reports the 95th percentile of recent request latencies in milliseconds.
func GetLatencyP95() int64 {
	return latencies.percentile(0.95)
}
