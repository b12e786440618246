package handlers

import (
	"net/http"

	"github.com/flowmesh/memcache/internal/metrics"
)

// MetricsHandler serves the collector's registry in the Prometheus text
// format. A nil collector serves the default registry.
func MetricsHandler(collector *metrics.Collector) http.Handler {
	if collector == nil {
		return metrics.Handler(nil)
	}
	return metrics.Handler(collector.GetRegistry())
}
