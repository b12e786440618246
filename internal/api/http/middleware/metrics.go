package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/flowmesh/memcache/internal/metrics"
)

// Metrics records request count and latency per route template
func Metrics(m *metrics.APIMetrics, route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := wrapResponseWriter(w)

			next.ServeHTTP(ww, r)

			m.RecordRequest(metrics.TransportHTTP, r.Method, route(r), strconv.Itoa(ww.statusCode), time.Since(start))
		})
	}
}
