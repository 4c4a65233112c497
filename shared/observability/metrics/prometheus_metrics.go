// Package metrics provides the Prometheus implementation of types.Metrics.
// Collectors are named <namespace>_<subsystem>_<metric>, where the subsystem
// is the component that requested them (catalog, fetch, convert, ...).
package metrics

import (
	"errors"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// SanitizeName turns a component or service name ("client.http",
// "phytofetch-cli") into a valid Prometheus name fragment.
func SanitizeName(name string) string {
	name = invalidNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "unnamed"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

// PrometheusMetrics implements the Metrics interface using Prometheus client library.
type PrometheusMetrics struct {
	subsystem string

	// processedTotal counts operations by status (success/error) and type
	processedTotal *prometheus.CounterVec
	// errorsTotal counts errors by category and operation
	errorsTotal *prometheus.CounterVec
	// durationSeconds observes operation latency
	durationSeconds *prometheus.HistogramVec
	// fileSizeBytes observes archive and database sizes
	fileSizeBytes *prometheus.HistogramVec
	// inProgress tracks operations currently running
	inProgress *prometheus.GaugeVec
}

// New creates the collectors for one component and registers them with reg
// (prometheus.DefaultRegisterer when nil). Registering the same component
// twice reuses the collectors that are already registered.
func New(namespace, component string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	namespace = SanitizeName(namespace)
	subsystem := SanitizeName(component)

	m := &PrometheusMetrics{subsystem: subsystem}

	m.processedTotal = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "processed_total",
			Help:      "Processed operations by status and type.",
		},
		[]string{"status", "type"},
	))

	m.errorsTotal = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Errors by category and operation.",
		},
		[]string{"error_type", "operation"},
	))

	// Downloads of multi-hundred megabyte archives take minutes, so the
	// buckets extend well past prometheus.DefBuckets.
	m.durationSeconds = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Operation duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 180, 600, 1800},
		},
		[]string{"operation"},
	))

	m.fileSizeBytes = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "file_size_bytes",
			Help:      "Sizes of processed files in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1024, 10, 7), // 1KiB .. ~1GB
		},
		[]string{"file_type"},
	))

	m.inProgress = register(reg, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "in_progress",
			Help:      "Operations currently in progress.",
		},
		[]string{"operation"},
	))

	return m
}

// register registers c, or returns the already registered collector of the
// same description.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// RecordSuccess increments processed_total{status="success"}.
func (m *PrometheusMetrics) RecordSuccess(operationType string) {
	m.processedTotal.WithLabelValues("success", operationType).Inc()
}

// RecordError increments processed_total{status="error"} and errors_total.
func (m *PrometheusMetrics) RecordError(operationType string, errorType string) {
	m.processedTotal.WithLabelValues("error", operationType).Inc()
	m.errorsTotal.WithLabelValues(errorType, operationType).Inc()
}

// RecordDuration observes duration (seconds) for operation.
func (m *PrometheusMetrics) RecordDuration(operation string, duration float64) {
	m.durationSeconds.WithLabelValues(operation).Observe(duration)
}

// RecordFileSize observes a file size in bytes.
func (m *PrometheusMetrics) RecordFileSize(fileType string, bytes int64) {
	m.fileSizeBytes.WithLabelValues(fileType).Observe(float64(bytes))
}

// StartOperation increments the in-progress gauge.
func (m *PrometheusMetrics) StartOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Inc()
}

// EndOperation decrements the in-progress gauge.
func (m *PrometheusMetrics) EndOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Dec()
}
