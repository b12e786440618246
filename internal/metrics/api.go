package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// APIMetrics tracks HTTP and gRPC request metrics
type APIMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authFailures    *prometheus.CounterVec
}

// NewAPIMetrics initializes API metrics with the collector
func NewAPIMetrics(collector *Collector) *APIMetrics {
	return &APIMetrics{
		requestsTotal: collector.RegisterCounter(
			MetricAPIRequestsTotal,
			"Total HTTP/gRPC requests by transport, method, endpoint, and status",
			[]string{LabelTransport, LabelMethod, LabelEndpoint, LabelStatus},
		),
		requestDuration: collector.RegisterHistogram(
			MetricAPIRequestDuration,
			"API request latency in seconds",
			[]string{LabelTransport, LabelMethod, LabelEndpoint},
			prometheus.DefBuckets,
		),
		authFailures: collector.RegisterCounter(
			MetricAuthFailuresTotal,
			"Total rejected requests by transport and reason",
			[]string{LabelTransport, LabelReason},
		),
	}
}

// RecordRequest records an API request
func (m *APIMetrics) RecordRequest(transport, method, endpoint, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(transport, method, endpoint).Observe(duration.Seconds())
	m.requestsTotal.WithLabelValues(transport, method, endpoint, status).Inc()
}

// RecordAuthFailure records a rejected request
func (m *APIMetrics) RecordAuthFailure(transport, reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(transport, reason).Inc()
}
