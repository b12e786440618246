package metrics

// Metric name constants following Prometheus naming conventions
// Format: memcache_{component}_{metric}_{unit}

// Cache metrics
const (
	MetricCacheEntries          = "memcache_cache_entries"
	MetricCacheHitsTotal        = "memcache_cache_hits_total"
	MetricCacheMissesTotal      = "memcache_cache_misses_total"
	MetricCacheSetsTotal        = "memcache_cache_sets_total"
	MetricCacheRemovalsTotal    = "memcache_cache_removals_total"
	MetricCacheExpirationsTotal = "memcache_cache_expirations_total"
	MetricCacheClearedTotal     = "memcache_cache_cleared_entries_total"
)

// Checkpoint metrics
const (
	MetricCheckpointsTotal      = "memcache_checkpoints_total"
	MetricCheckpointDuration    = "memcache_checkpoint_duration_seconds"
	MetricCheckpointEntries     = "memcache_checkpoint_entries"
	MetricCheckpointLastSuccess = "memcache_checkpoint_last_success_timestamp_seconds"
)

// API metrics
const (
	MetricAPIRequestsTotal   = "memcache_api_requests_total"
	MetricAPIRequestDuration = "memcache_api_request_duration_seconds"
	MetricAuthFailuresTotal  = "memcache_auth_failures_total"
)

// Label name constants
const (
	LabelStatus    = "status"
	LabelMethod    = "method"
	LabelEndpoint  = "endpoint"
	LabelTransport = "transport"
	LabelReason    = "reason"
)

// Label values
const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	TransportHTTP = "http"
	TransportGRPC = "grpc"
)
