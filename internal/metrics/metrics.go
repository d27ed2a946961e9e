package metrics

import (
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uuidRegex     = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	uploadIDRegex = regexp.MustCompile(`^(/v1/uploads/)[^/]+(/status)$`)
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
		[]string{"method"},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path", "status"},
	)

	UploadSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackdrop_upload_submissions_total",
			Help: "Upload submissions by intake outcome",
		},
		[]string{"outcome"},
	)

	UploadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackdrop_upload_bytes",
			Help:    "Size of accepted upload parts in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		},
		[]string{"part"},
	)

	IntakeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trackdrop_intake_duration_seconds",
			Help:    "Duration of the synchronous intake path in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	UploadTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackdrop_upload_transitions_total",
			Help: "Upload record state transitions by target status",
		},
		[]string{"status"},
	)

	CompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackdrop_compensations_total",
			Help: "Blob cleanup runs by result",
		},
		[]string{"source", "result"},
	)

	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackdrop_metadata_extractions_total",
			Help: "Metadata extraction runs by extractor and result",
		},
		[]string{"extractor", "result"},
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackdrop_metadata_extraction_duration_seconds",
			Help:    "Duration of metadata extraction in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"extractor"},
	)

	SweeperActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackdrop_sweeper_actions_total",
			Help: "Recovery actions taken by the orphan sweeper",
		},
		[]string{"action", "status"},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	StorageBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_bytes_total",
			Help: "Total bytes transferred to/from storage",
		},
		[]string{"operation"},
	)

	JobsEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"type", "status"},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Total number of jobs processed",
		},
		[]string{"type", "status"},
	)

	JobsProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobs_processing_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"type", "stage"},
	)

	WorkerPoolActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_pool_active_jobs",
			Help: "Number of jobs currently being processed by workers",
		},
	)

	WorkerPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_pool_size",
			Help: "Size of the worker pool",
		},
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackdrop_webhook_deliveries_total",
			Help: "Upload lifecycle webhook deliveries by outcome",
		},
		[]string{"event", "outcome"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackdrop_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application information",
		},
		[]string{"version", "environment", "service"},
	)

	AppUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_up",
			Help: "Application is up and running",
		},
	)
)

// NormalizePath collapses ids in a request path so label cardinality stays bounded.
func NormalizePath(path string) string {
	path = uploadIDRegex.ReplaceAllString(path, "${1}:id${2}")
	return uuidRegex.ReplaceAllString(path, ":id")
}

func RecordSubmission(outcome string, audioBytes, coverBytes int64, durationSeconds float64) {
	UploadSubmissionsTotal.WithLabelValues(outcome).Inc()
	IntakeDuration.Observe(durationSeconds)
	if outcome == "accepted" {
		UploadBytes.WithLabelValues("audio").Observe(float64(audioBytes))
		if coverBytes > 0 {
			UploadBytes.WithLabelValues("cover").Observe(float64(coverBytes))
		}
	}
}

func RecordTransition(status string) {
	UploadTransitionsTotal.WithLabelValues(status).Inc()
}

func RecordCompensation(source string, complete bool) {
	result := "complete"
	if !complete {
		result = "partial"
	}
	CompensationsTotal.WithLabelValues(source, result).Inc()
}

func RecordExtraction(extractor string, err error, durationSeconds float64) {
	result := "success"
	if err != nil {
		result = "degraded"
	}
	ExtractionsTotal.WithLabelValues(extractor, result).Inc()
	ExtractionDuration.WithLabelValues(extractor).Observe(durationSeconds)
}

func RecordSweeperAction(action string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SweeperActionsTotal.WithLabelValues(action, status).Inc()
}

func RecordJobEnqueued(jobType, status string) {
	JobsEnqueuedTotal.WithLabelValues(jobType, status).Inc()
}

func RecordJobProcessed(jobType, status string, durationSeconds float64) {
	JobsProcessedTotal.WithLabelValues(jobType, status).Inc()
	JobsProcessingDuration.WithLabelValues(jobType, "total").Observe(durationSeconds)
}

func RecordJobStage(jobType, stage string, durationSeconds float64) {
	JobsProcessingDuration.WithLabelValues(jobType, stage).Observe(durationSeconds)
}

func RecordWebhookDelivery(event, outcome string) {
	WebhookDeliveriesTotal.WithLabelValues(event, outcome).Inc()
}

func RecordRateLimitHit(route string) {
	RateLimitHits.WithLabelValues(route).Inc()
}

func SetAppInfo(version, environment, service string) {
	AppInfo.WithLabelValues(version, environment, service).Set(1)
	AppUp.Set(1)
}

func SetWorkerPoolSize(size int) {
	WorkerPoolSize.Set(float64(size))
}
