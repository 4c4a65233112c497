// Package types holds the observability contracts shared by every phytofetch
// component: a context-aware structured logger and a small metrics surface.
//
// Concrete implementations live in the logger and metrics packages; the
// provider in the parent package hands them out per component.
package types

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// ContextKey is the type of the context keys the logger extracts values from.
type ContextKey string

const (
	// RunIDKey carries the identifier of one fetch/convert run.
	RunIDKey ContextKey = "run_id"
	// EntityKey carries the species identifier currently being processed.
	EntityKey ContextKey = "entity"
	// StageKey carries the pipeline stage name (sign_on, catalog, fetch, mirror, convert).
	StageKey ContextKey = "stage"
)

// Logger defines the contract for structured logging.
// Implementations emit one JSON object per entry and pull run correlation
// values out of the context.
type Logger interface {
	// Info logs an informational message, e.g. skip/download decisions.
	Info(ctx context.Context, msg string, fields Fields)

	// Error logs a failure together with the error that caused it.
	Error(ctx context.Context, msg string, err error, fields Fields)

	// Warn logs a condition that does not stop the run.
	Warn(ctx context.Context, msg string, fields Fields)

	// Debug logs detail useful only when troubleshooting (catalog bodies, request URLs).
	Debug(ctx context.Context, msg string, fields Fields)

	// WithFields returns a logger that adds fields to every entry.
	WithFields(fields Fields) Logger
}

// Metrics defines the contract for metrics collection.
// Implementations are Prometheus backed; operation and error type names are
// used as label values, so keep them low-cardinality (never file paths).
type Metrics interface {
	// RecordSuccess counts a successful operation ("sign_on", "download", "convert").
	RecordSuccess(operationType string)

	// RecordError counts a failed operation together with its error category.
	RecordError(operationType string, errorType string)

	// RecordDuration observes the duration of an operation in seconds.
	RecordDuration(operation string, duration float64)

	// RecordFileSize observes the size in bytes of a processed file.
	RecordFileSize(fileType string, bytes int64)

	// StartOperation increments the in-progress gauge for an operation.
	// Must be paired with EndOperation.
	StartOperation(operation string)

	// EndOperation decrements the in-progress gauge for an operation.
	EndOperation(operation string)
}

// Fields represents structured logging fields as key-value pairs.
// Values must be JSON-serializable.
type Fields map[string]interface{}

// Config holds observability configuration for the provider.
type Config struct {
	// ServiceName prefixes the service field of every log entry.
	ServiceName string

	// Environment is copied into every log entry ("local", "production", ...).
	Environment string

	// LogLevel is the minimum level written: "debug", "info", "warn" or "error".
	LogLevel string

	// LogOutput receives log entries. Defaults to os.Stderr so that stdout
	// stays free for command output.
	LogOutput io.Writer

	// Registerer receives the metric collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// AdditionalFields are included in every log entry.
	AdditionalFields Fields
}

// Provider hands out per-component loggers and metrics.
// Repeated calls with the same component return the same instance.
type Provider interface {
	// Logger returns the logger for component.
	Logger(component string) Logger

	// Metrics returns the metrics collector for component.
	Metrics(component string) Metrics

	// Close releases the log output if it is closable.
	Close() error
}
