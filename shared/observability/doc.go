/*
Package observability provides structured logging and metrics collection for
phytofetch.

	Provider (one per process)
	    ├── Logger  (JSON lines on stderr)
	    └── Metrics (Prometheus collectors, pushed to a Pushgateway after a run)

Every component asks the provider for its own logger and metrics by name
("portal", "catalog", "fetch", "mirror", "convert", "setup"). The same name
always returns the same instance, so collectors are registered once.

# Usage

	provider := observability.NewProvider(&observability.Config{
	    ServiceName: "phytofetch",
	    Environment: "local",
	    LogLevel:    "info",
	})
	defer provider.Close()

	log := provider.Logger("fetch")
	m := provider.Metrics("fetch")

	ctx = context.WithValue(ctx, types.EntityKey, "Athaliana")
	log.Info(ctx, "File is out of date, downloading", observability.Fields{
	    "file": "Athaliana_167_TAIR10.cds.fa.gz",
	})
	m.RecordSuccess("download")

# Context Integration

The logger copies these context values into each entry when present:
run_id (types.RunIDKey), entity (types.EntityKey) and stage (types.StageKey).

# Metrics

Per component, named {service}_{component}_...:

  - processed_total{status,type}
  - errors_total{error_type,operation}
  - duration_seconds{operation}
  - file_size_bytes{file_type}
  - in_progress{operation}

# Testing

Use the mocks package. For tests that do not assert on logging, the
permissive constructors accept any call:

	log := mocks.NewPermissiveLogger()
	m := mocks.NewPermissiveMetrics()
*/
package observability
