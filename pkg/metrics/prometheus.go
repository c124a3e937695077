// Package metrics provides Prometheus metrics for the leaderboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultNamespace = "leaderboard"
	subsystem        = "service"
)

// latencyBuckets are in milliseconds.
var latencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}

// Submission outcomes used as the "outcome" label.
const (
	OutcomeInserted  = "inserted"
	OutcomeImproved  = "improved"
	OutcomeUnchanged = "unchanged"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// Manager manages all Prometheus metrics for the leaderboard service.
type Manager struct {
	namespace   string
	enabled     bool
	constLabels map[string]string
	registry    prometheus.Registerer

	// Submissions
	submissions      *prometheus.CounterVec
	submitLatency    prometheus.Histogram
	conflictRetries  prometheus.Counter
	importsAccepted  prometheus.Counter
	importsDuplicate prometheus.Counter

	// Reads
	rankingLatency *prometheus.HistogramVec
	queryLatency   prometheus.Histogram

	// Store
	storeOpLatency *prometheus.HistogramVec
	storeRecords   prometheus.Gauge
	storePlayers   prometheus.Gauge
	storeCleared   prometheus.Counter

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     *prometheus.CounterVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Init replaces the global metrics with a Manager built from opts on a fresh
// registry, which GetRegistry returns from then on. Call it once at startup
// before anything records.
func Init(opts ...Option) {
	reg := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(reg))...)
	customRegistry = reg
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: defaultNamespace,
		enabled:   true,
		registry:  prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// Enabled reports whether recorders on m update their collectors.
func (m *Manager) Enabled() bool { return m.enabled }

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.constLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.submissions = auto.NewCounterVec(m.counterOpts("submissions_total",
		"Score submissions by outcome"), []string{"outcome"})
	m.submitLatency = auto.NewHistogram(m.histogramOpts("submit_latency_milliseconds",
		"End-to-end latency of a single submission including retries", latencyBuckets))
	m.conflictRetries = auto.NewCounter(m.counterOpts("submit_conflict_retries_total",
		"Submission attempts retried after a store conflict"))
	m.importsAccepted = auto.NewCounter(m.counterOpts("imports_accepted_total",
		"Bulk import batches accepted for processing"))
	m.importsDuplicate = auto.NewCounter(m.counterOpts("imports_duplicate_total",
		"Bulk import batches skipped because the idempotency key was seen"))

	m.rankingLatency = auto.NewHistogramVec(m.histogramOpts("ranking_latency_milliseconds",
		"Latency of building the ranked order for a level", latencyBuckets), []string{"level"})
	m.queryLatency = auto.NewHistogram(m.histogramOpts("query_latency_milliseconds",
		"Latency of resolving a paginated leaderboard query", latencyBuckets))

	m.storeOpLatency = auto.NewHistogramVec(m.histogramOpts("store_operation_latency_milliseconds",
		"Score store operation latency in milliseconds", latencyBuckets), []string{"operation"})
	m.storeRecords = auto.NewGauge(m.gaugeOpts("store_records",
		"Number of score records including aggregates"))
	m.storePlayers = auto.NewGauge(m.gaugeOpts("store_players",
		"Number of distinct players"))
	m.storeCleared = auto.NewCounter(m.counterOpts("store_cleared_records_total",
		"Records removed by clear-all"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size",
		"Current size of the import queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity",
		"Maximum import queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio",
		"Queue utilization ratio (current size / capacity)"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total",
		"Total number of jobs enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total",
		"Total number of jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total",
		"Total number of rejected enqueues"))
	m.queueProcessingLatency = auto.NewHistogram(m.histogramOpts("queue_processing_latency_milliseconds",
		"Time from enqueue to processing in milliseconds", latencyBuckets))

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count",
		"Number of import workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count",
		"Number of workers currently applying a job"))
	m.workerIdleCount = auto.NewGauge(m.gaugeOpts("worker_idle_count",
		"Number of idle workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds",
		"Worker processing latency in milliseconds", latencyBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total",
		"Jobs that finished with an error"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"Total number of HTTP requests by endpoint and method"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", latencyBuckets), []string{"endpoint", "method", "status_code"})
	m.httpRateLimited = auto.NewCounterVec(m.counterOpts("http_rate_limited_total",
		"Requests rejected by the per-client limiter"), []string{"endpoint"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total",
		"Total number of errors by component"), []string{"component", "error_type"})
	m.errorsByEndpoint = auto.NewCounterVec(m.counterOpts("errors_by_endpoint_total",
		"Total number of errors by endpoint"), []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes",
		"System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count",
		"Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds",
		"GC pause time in milliseconds", []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// Submission metrics.

// RecordSubmission counts a submission with the given outcome.
func RecordSubmission(outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// RecordSubmitLatency records submission latency in milliseconds.
func RecordSubmitLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.submitLatency.Observe(latencyMs)
}

// RecordConflictRetry increments the conflict retry counter.
func RecordConflictRetry() {
	if !globalManager.enabled {
		return
	}
	globalManager.conflictRetries.Inc()
}

// RecordImportAccepted increments the accepted import batches counter.
func RecordImportAccepted() {
	if !globalManager.enabled {
		return
	}
	globalManager.importsAccepted.Inc()
}

// RecordImportDuplicate increments the duplicate import batches counter.
func RecordImportDuplicate() {
	if !globalManager.enabled {
		return
	}
	globalManager.importsDuplicate.Inc()
}

// Read metrics.

// RecordRankingLatency records how long ranking a level took.
func RecordRankingLatency(level string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.rankingLatency.WithLabelValues(level).Observe(latencyMs)
}

// RecordQueryLatency records paginated query latency.
func RecordQueryLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.queryLatency.Observe(latencyMs)
}

// Store metrics.

// RecordStoreOperation records the latency of a named store operation.
func RecordStoreOperation(operation string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeOpLatency.WithLabelValues(operation).Observe(latencyMs)
}

// UpdateStoreRecords sets the record count gauge.
func UpdateStoreRecords(count int64) {
	if !globalManager.enabled {
		return
	}
	globalManager.storeRecords.Set(float64(count))
}

// UpdateStorePlayers sets the player count gauge.
func UpdateStorePlayers(count int64) {
	if !globalManager.enabled {
		return
	}
	globalManager.storePlayers.Set(float64(count))
}

// RecordStoreCleared adds n to the cleared records counter.
func RecordStoreCleared(n int64) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.storeCleared.Add(float64(n))
}

// Queue metrics.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker metrics.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerCount.Set(float64(count))
}

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerIdleCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	if !globalManager.enabled {
		return
	}
	globalManager.workerErrors.Inc()
}

// HTTP metrics.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited(endpoint string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRateLimited.WithLabelValues(endpoint).Inc()
}

// Error metrics.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System metrics.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
