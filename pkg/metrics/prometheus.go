// Package metrics provides Prometheus metrics for the watchtower service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// latencyBuckets are milliseconds, sized for network fetches and model calls.
var latencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000} //nolint:gochecknoglobals // constant bucket layout

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Tracker runs
	runsStarted    prometheus.Counter
	runsCompleted  prometheus.Counter
	runsFailed     *prometheus.CounterVec
	runsRejected   *prometheus.CounterVec
	runDuration    prometheus.Histogram
	pendingRuns    prometheus.Gauge
	activeTrackers prometheus.Gauge

	// Change detection and analysis
	changeEvents     *prometheus.CounterVec
	analysisOutcomes *prometheus.CounterVec
	notifications    *prometheus.CounterVec

	// Sources
	fetchLatency *prometheus.HistogramVec
	fetchErrors  *prometheus.CounterVec

	// Access control
	rateLimitDecisions *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueTotal  prometheus.Counter
	queueDequeueTotal  prometheus.Counter
	queueEnqueueErrors *prometheus.CounterVec

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "watchtower",
		subsystem:        "engine",
		histogramBuckets: latencyBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.runsStarted = auto.NewCounter(m.counterOpts("runs_started_total", "Tracker runs that entered the pending state"))
	m.runsCompleted = auto.NewCounter(m.counterOpts("runs_completed_total", "Tracker runs finalized as completed"))
	m.runsFailed = auto.NewCounterVec(m.counterOpts("runs_failed_total", "Tracker runs finalized as failed, by stage"), []string{"stage"})
	m.runsRejected = auto.NewCounterVec(m.counterOpts("runs_rejected_total", "Run requests rejected before a run was created"), []string{"reason"})
	m.runDuration = auto.NewHistogram(m.histogramOpts("run_duration_milliseconds", "End-to-end tracker run duration in milliseconds", m.histogramBuckets))
	m.pendingRuns = auto.NewGauge(m.gaugeOpts("pending_runs", "Runs currently pending in this process"))
	m.activeTrackers = auto.NewGauge(m.gaugeOpts("active_trackers", "Trackers in the active state at the last scheduler tick"))

	m.changeEvents = auto.NewCounterVec(m.counterOpts("change_events_total", "Change events detected, by type"), []string{"type"})
	m.analysisOutcomes = auto.NewCounterVec(m.counterOpts("analysis_outcomes_total", "Analysis results, by analysis type and trigger state"), []string{"type", "triggered"})
	m.notifications = auto.NewCounterVec(m.counterOpts("notifications_total", "Notification gate decisions, by outcome"), []string{"outcome"})

	m.fetchLatency = auto.NewHistogramVec(m.histogramOpts("fetch_latency_milliseconds", "Source fetch latency in milliseconds, by target type", m.histogramBuckets), []string{"target"})
	m.fetchErrors = auto.NewCounterVec(m.counterOpts("fetch_errors_total", "Source fetch failures, by target type"), []string{"target"})

	m.rateLimitDecisions = auto.NewCounterVec(m.counterOpts("ratelimit_decisions_total", "Rate limiter decisions, by resource class and outcome"), []string{"resource_class", "outcome"})

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Run requests waiting in the queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (size / capacity)"))
	m.queueEnqueueTotal = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Run requests enqueued"))
	m.queueDequeueTotal = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Run requests dequeued"))
	m.queueEnqueueErrors = auto.NewCounterVec(m.counterOpts("queue_enqueue_errors_total", "Rejected enqueue attempts, by reason"), []string{"reason"})

	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of running workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", m.histogramBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Run requests that ended in an error"))

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"), []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.histogramBuckets), []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_by_component_total", "Errors by component and type"), []string{"component", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "Heap bytes allocated"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(m.histogramOpts("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}))
}

// RecordRunStarted counts a run entering pending.
func RecordRunStarted() {
	globalManager.runsStarted.Inc()
	globalManager.pendingRuns.Inc()
}

// RecordRunCompleted counts a completed run and its duration.
func RecordRunCompleted(durationMs float64) {
	globalManager.runsCompleted.Inc()
	globalManager.pendingRuns.Dec()
	globalManager.runDuration.Observe(durationMs)
}

// RecordRunFailed counts a failed run at the given stage.
func RecordRunFailed(stage string, durationMs float64) {
	globalManager.runsFailed.WithLabelValues(stage).Inc()
	globalManager.pendingRuns.Dec()
	globalManager.runDuration.Observe(durationMs)
}

// RecordRunRejected counts a run request refused before creation.
func RecordRunRejected(reason string) {
	globalManager.runsRejected.WithLabelValues(reason).Inc()
}

// UpdateActiveTrackers sets the number of active trackers.
func UpdateActiveTrackers(count int) {
	globalManager.activeTrackers.Set(float64(count))
}

// RecordChangeEvents adds n change events of the given type.
func RecordChangeEvents(changeType string, n int) {
	if n <= 0 {
		return
	}
	globalManager.changeEvents.WithLabelValues(changeType).Add(float64(n))
}

// RecordAnalysisOutcome counts an analysis result.
func RecordAnalysisOutcome(analysisType string, triggered bool) {
	t := "false"
	if triggered {
		t = "true"
	}
	globalManager.analysisOutcomes.WithLabelValues(analysisType, t).Inc()
}

// RecordNotification counts a notification gate outcome.
func RecordNotification(outcome string) {
	globalManager.notifications.WithLabelValues(outcome).Inc()
}

// RecordFetchLatency records a source fetch latency.
func RecordFetchLatency(target string, latencyMs float64) {
	globalManager.fetchLatency.WithLabelValues(target).Observe(latencyMs)
}

// RecordFetchError counts a failed source fetch.
func RecordFetchError(target string) {
	globalManager.fetchErrors.WithLabelValues(target).Inc()
}

// RecordRateLimitDecision counts a limiter decision (allowed, denied, bypass).
func RecordRateLimitDecision(resourceClass, outcome string) {
	globalManager.rateLimitDecisions.WithLabelValues(resourceClass, outcome).Inc()
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueTotal.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueTotal.Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
