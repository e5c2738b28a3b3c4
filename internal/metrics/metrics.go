package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer
)

// Decryption outcome labels.
const (
	OutcomeDecrypted   = "decrypted"
	OutcomeNotRequired = "not_required"
	OutcomeDegraded    = "degraded"
	OutcomeError       = "error"
)

// Metrics holds all application metrics.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	decryptionsTotal    *prometheus.CounterVec
	decryptionDuration  *prometheus.HistogramVec
	keyScopeFallbacks   prometheus.Counter
	integrityFailures   prometheus.Counter
	metadataRemapped    prometheus.Counter
	objectInfoLookups   *prometheus.CounterVec
	buildInfo           *prometheus.GaugeVec
	goroutines          prometheus.Gauge
	memoryAllocBytes    prometheus.Gauge
	memorySysBytes      prometheus.Gauge
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(defaultRegistry)
}

// NewMetricsWithRegistry creates a new metrics instance with a custom registry (for testing).
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "handler", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "handler", "status"},
		),
		decryptionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decryptions_total",
				Help: "Total number of response decryption attempts by outcome",
			},
			[]string{"handler", "outcome"},
		),
		decryptionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "decryption_duration_seconds",
				Help:    "Response decryption duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"handler"},
		),
		keyScopeFallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "key_scope_fallbacks_total",
				Help: "Total number of reads degraded from object to container key scope",
			},
		),
		integrityFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "etag_integrity_failures_total",
				Help: "Total number of responses refused because the decrypted ETag copies disagreed",
			},
		),
		metadataRemapped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "metadata_headers_remapped_total",
				Help: "Total number of encrypted metadata headers rewritten to the plaintext namespace",
			},
		),
		objectInfoLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "object_info_lookups_total",
				Help: "Total number of object info lookups",
			},
			[]string{"source"}, // "cache" or "upstream"
		),
		buildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, handler string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, handler, http.StatusText(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, handler, http.StatusText(status)).Observe(duration.Seconds())
}

// RecordDecryption records a decryption attempt and its outcome.
func (m *Metrics) RecordDecryption(handler, outcome string, duration time.Duration) {
	m.decryptionsTotal.WithLabelValues(handler, outcome).Inc()
	m.decryptionDuration.WithLabelValues(handler).Observe(duration.Seconds())
}

// RecordKeyScopeFallback records a read degraded to container key scope.
func (m *Metrics) RecordKeyScopeFallback() {
	m.keyScopeFallbacks.Inc()
}

// RecordIntegrityFailure records a refused response due to ETag mismatch.
func (m *Metrics) RecordIntegrityFailure() {
	m.integrityFailures.Inc()
}

// RecordMetadataRemapped records rewritten metadata headers.
func (m *Metrics) RecordMetadataRemapped(count int) {
	m.metadataRemapped.Add(float64(count))
}

// RecordObjectInfoLookup records an object info lookup and where it was served from.
func (m *Metrics) RecordObjectInfoLookup(source string) {
	m.objectInfoLookups.WithLabelValues(source).Inc()
}

// SetVersion records the running build version.
func (m *Metrics) SetVersion(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
