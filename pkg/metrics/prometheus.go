// Package metrics provides Prometheus metrics for the anchor drift service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for sample sources outside the known set.
const unknownLabel = "unknown"

// ratioBuckets cover scores and thresholds, which all live in [0, 1].
var ratioBuckets = []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1} //nolint:gochecknoglobals // fixed bucket layout

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace      string
	subsystem      string
	latencyBuckets []float64
	registry       prometheus.Registerer

	// Drift pipeline
	samplesIngested  *prometheus.CounterVec
	samplesDuplicate *prometheus.CounterVec
	evaluations      prometheus.Counter
	resetDecisions   *prometheus.CounterVec
	floorChanges     prometheus.Counter
	quality          prometheus.Histogram
	sourceConfidence *prometheus.HistogramVec
	thresholdValue   prometheus.Histogram
	activeSessions   prometheus.Gauge

	// Queue and workers
	queueSize               prometheus.Gauge
	queueCapacity           prometheus.Gauge
	queueEnqueued           prometheus.Counter
	queueDequeued           prometheus.Counter
	queueEnqueueErrors      prometheus.Counter
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Decision sinks
	sinkErrors    *prometheus.CounterVec
	streamClients prometheus.Gauge
	mqttMessages  *prometheus.CounterVec
	journalWrites prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Gauge
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
		namespace:      "anchordrift",
		subsystem:      "monitor",
		latencyBuckets: prometheus.DefBuckets,
		registry:       prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // flat list of collectors
	auto := promauto.With(m.registry)

	m.samplesIngested = auto.NewCounterVec(
		m.counterOpts("samples_ingested_total", "Samples applied to a session monitor by source"),
		[]string{"source"},
	)
	m.samplesDuplicate = auto.NewCounterVec(
		m.counterOpts("samples_duplicate_total", "Redelivered samples dropped before reaching a monitor"),
		[]string{"source"},
	)
	m.evaluations = auto.NewCounter(m.counterOpts("evaluations_total", "Reset decisions computed"))
	m.resetDecisions = auto.NewCounterVec(
		m.counterOpts("reset_decisions_total", "Positive reset decisions by rule"),
		[]string{"rule"},
	)
	m.floorChanges = auto.NewCounter(m.counterOpts("floor_changes_total", "Indoor floor changes that cleared a session"))
	m.quality = auto.NewHistogram(m.histogramOpts("quality", "Combined quality score per evaluation", ratioBuckets))
	m.sourceConfidence = auto.NewHistogramVec(
		m.histogramOpts("source_confidence", "Per-source freshness confidence per evaluation", ratioBuckets),
		[]string{"source"},
	)
	m.thresholdValue = auto.NewHistogram(m.histogramOpts("threshold_value", "Refresh threshold after each evaluation", ratioBuckets))
	m.activeSessions = auto.NewGauge(m.gaugeOpts("active_sessions", "Live AR sessions"))

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Events waiting across all worker queues"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Total capacity of all worker queues"))
	m.queueEnqueued = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Events enqueued"))
	m.queueDequeued = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Events dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Events rejected by a full or closed queue"))
	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Running workers"))
	m.workerProcessingLatency = auto.NewHistogram(m.histogramOpts(
		"worker_processing_latency_milliseconds", "Time to apply one event to its session", m.latencyBuckets))
	m.workerErrors = auto.NewCounter(m.counterOpts("worker_errors_total", "Events a worker failed to apply"))

	m.sinkErrors = auto.NewCounterVec(
		m.counterOpts("sink_errors_total", "Decision deliveries that failed by sink"),
		[]string{"sink"},
	)
	m.streamClients = auto.NewGauge(m.gaugeOpts("stream_clients", "Connected WebSocket decision subscribers"))
	m.mqttMessages = auto.NewCounterVec(
		m.counterOpts("mqtt_messages_total", "MQTT messages by direction"),
		[]string{"direction"},
	)
	m.journalWrites = auto.NewCounter(m.counterOpts("journal_writes_total", "Decisions written to the journal"))

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", m.latencyBuckets),
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system", Name: "memory_usage_bytes", Help: "Heap bytes allocated",
	})
	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system", Name: "goroutines", Help: "Live goroutines",
	})
	m.systemGCPauseTime = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "system", Name: "gc_pause_milliseconds", Help: "Average GC pause",
	})
}

func sourceLabel(source string) string {
	switch source {
	case "ar", "indoor":
		return source
	default:
		return unknownLabel
	}
}

// Drift pipeline.

// RecordSampleIngested counts a sample applied to a monitor.
func RecordSampleIngested(source string) {
	globalManager.samplesIngested.WithLabelValues(sourceLabel(source)).Inc()
}

// RecordSampleDuplicate counts a redelivered sample.
func RecordSampleDuplicate(source string) {
	globalManager.samplesDuplicate.WithLabelValues(sourceLabel(source)).Inc()
}

// RecordEvaluation records the scores and outcome of one decision.
func RecordEvaluation(reset bool, rule string, quality, arConfidence, indoorConfidence, thresholdValue float64) {
	globalManager.evaluations.Inc()
	globalManager.quality.Observe(quality)
	globalManager.sourceConfidence.WithLabelValues("ar").Observe(arConfidence)
	globalManager.sourceConfidence.WithLabelValues("indoor").Observe(indoorConfidence)
	globalManager.thresholdValue.Observe(thresholdValue)
	if reset {
		globalManager.resetDecisions.WithLabelValues(rule).Inc()
	}
}

// RecordFloorChange counts a floor change.
func RecordFloorChange() {
	globalManager.floorChanges.Inc()
}

// UpdateActiveSessions sets the number of live sessions.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// Queue and worker metrics.

// UpdateQueueSize sets the current backlog.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the total queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records how long one event took to apply.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Sinks.

// RecordSinkError counts a failed decision delivery.
func RecordSinkError(sink string) {
	globalManager.sinkErrors.WithLabelValues(sink).Inc()
}

// UpdateStreamClients sets the number of WebSocket subscribers.
func UpdateStreamClients(count int) {
	globalManager.streamClients.Set(float64(count))
}

// RecordMQTTMessage counts an MQTT message; direction is "in" or "out".
func RecordMQTTMessage(direction string) {
	globalManager.mqttMessages.WithLabelValues(direction).Inc()
}

// RecordJournalWrite counts a journaled decision.
func RecordJournalWrite() {
	globalManager.journalWrites.Inc()
}

// HTTP.

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

// Process.

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime sets the average GC pause.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Set(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
