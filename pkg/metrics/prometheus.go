// Package metrics provides Prometheus metrics for the iqscore service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the iqscore service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Core Business Metrics
	predictions     *prometheus.CounterVec
	inputRejections *prometheus.CounterVec
	modelErrors     prometheus.Counter
	scoringLatency  prometheus.Histogram
	derivedIQ       prometheus.Histogram
	historyRecords  prometheus.Counter
	exports         prometheus.Counter
	exportErrors    prometheus.Counter
	exportBytes     prometheus.Histogram
	exportLatency   prometheus.Histogram
	artifactsLoaded *prometheus.GaugeVec
	activeSessions  prometheus.Gauge
	sessionsOpened  prometheus.Counter
	sessionsEvicted prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByType     *prometheus.CounterVec
	errorRateByEndpoint *prometheus.CounterVec

	// System Performance Metrics
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

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "iqscore",
		subsystem:        "predictor",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.predictions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "predictions_total",
			Help:        "Total number of successful predictions by category and outcome",
			ConstLabels: m.constLabels,
		},
		[]string{"category", "outcome"},
	)

	m.inputRejections = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "input_rejections_total",
			Help:        "Total number of submissions rejected by input validation",
			ConstLabels: m.constLabels,
		},
		[]string{"reason"},
	)

	m.modelErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "model_errors_total",
		Help:        "Total number of scaler or classifier failures",
		ConstLabels: m.constLabels,
	})

	m.scoringLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "scoring_latency_milliseconds",
		Help:        "Histogram of scoring pipeline latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.derivedIQ = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "derived_iq",
		Help:        "Distribution of derived IQ scores",
		Buckets:     []float64{40, 56, 70, 85, 92, 100, 110, 120, 130, 145},
		ConstLabels: m.constLabels,
	})

	m.historyRecords = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "history_records_total",
		Help:        "Total number of records appended to session histories",
		ConstLabels: m.constLabels,
	})

	m.exports = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "exports_total",
		Help:        "Total number of spreadsheet exports served",
		ConstLabels: m.constLabels,
	})

	m.exportErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "export_errors_total",
		Help:        "Total number of spreadsheet exports that failed to serialize",
		ConstLabels: m.constLabels,
	})

	m.exportBytes = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "export_size_bytes",
		Help:        "Size of generated spreadsheet files in bytes",
		Buckets:     prometheus.ExponentialBuckets(4096, 2, 10),
		ConstLabels: m.constLabels,
	})

	m.exportLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "export_latency_milliseconds",
		Help:        "Spreadsheet serialization latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})

	m.artifactsLoaded = auto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "artifact_loaded",
			Help:        "Whether a model artifact is loaded (1) or not (0)",
			ConstLabels: m.constLabels,
		},
		[]string{"artifact", "kind"},
	)

	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "active_sessions",
		Help:        "Current number of live sessions holding a history",
		ConstLabels: m.constLabels,
	})

	m.sessionsOpened = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "sessions_opened_total",
		Help:        "Total number of sessions created",
		ConstLabels: m.constLabels,
	})

	m.sessionsEvicted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "sessions_evicted_total",
		Help:        "Total number of sessions ended by expiry, capacity or explicit close",
		ConstLabels: m.constLabels,
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "http_request_duration_milliseconds",
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_type_total",
			Help:        "Total number of errors by type and severity",
			ConstLabels: m.constLabels,
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        "errors_by_endpoint_total",
			Help:        "Total number of errors by endpoint, method and type",
			ConstLabels: m.constLabels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_memory_bytes",
		Help:        "Heap bytes allocated by the process",
		ConstLabels: m.constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_goroutines",
		Help:        "Current number of goroutines",
		ConstLabels: m.constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "system_gc_pause_milliseconds",
		Help:        "Average GC pause time in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
}

// RecordPrediction counts a successful prediction and its derived IQ.
func RecordPrediction(category, outcome string, derivedIQ float64) {
	globalManager.predictions.WithLabelValues(category, outcome).Inc()
	globalManager.derivedIQ.Observe(derivedIQ)
}

// RecordInputRejection counts a submission rejected before scoring.
func RecordInputRejection(reason string) {
	globalManager.inputRejections.WithLabelValues(reason).Inc()
}

// RecordModelError increments the model errors counter.
func RecordModelError() {
	globalManager.modelErrors.Inc()
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordHistoryAppend increments the appended history records counter.
func RecordHistoryAppend() {
	globalManager.historyRecords.Inc()
}

// RecordExport records a served export, its size and serialization latency.
func RecordExport(sizeBytes int, latencyMs float64) {
	globalManager.exports.Inc()
	globalManager.exportBytes.Observe(float64(sizeBytes))
	globalManager.exportLatency.Observe(latencyMs)
}

// RecordExportError increments the export errors counter.
func RecordExportError() {
	globalManager.exportErrors.Inc()
}

// SetArtifactLoaded flags whether an artifact of the given kind is loaded.
func SetArtifactLoaded(artifact, kind string, loaded bool) {
	v := 0.0
	if loaded {
		v = 1
	}
	globalManager.artifactsLoaded.WithLabelValues(artifact, kind).Set(v)
}

// UpdateActiveSessions sets the live session count.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// RecordSessionOpened increments the opened sessions counter.
func RecordSessionOpened() {
	globalManager.sessionsOpened.Inc()
}

// RecordSessionEvicted increments the ended sessions counter.
func RecordSessionEvicted() {
	globalManager.sessionsEvicted.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
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
