package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Push sends everything gathered by g to the Pushgateway at url under job.
// Batch runs end before Prometheus could scrape them, so this is how their
// metrics are published. Grouping adds extra grouping labels (e.g. "base").
func Push(ctx context.Context, url, job string, g prometheus.Gatherer, grouping map[string]string) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}

	pusher := push.New(url, job).Gatherer(g)
	for name, value := range grouping {
		pusher = pusher.Grouping(name, value)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
