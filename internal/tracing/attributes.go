package tracing

// Span attribute keys following OpenTelemetry semantic conventions
const (
	// Cache attributes
	AttrKey         = "memcache.key"
	AttrHit         = "memcache.hit"
	AttrExpires     = "memcache.expires_ms"
	AttrTTL         = "memcache.ttl_ms"
	AttrEntryCount  = "memcache.entry.count"
	AttrRestored    = "memcache.restored"
	AttrValueLength = "memcache.value.length"

	// Operation attributes
	AttrOperation = "memcache.operation"
	AttrStatus    = "memcache.status"
	AttrError     = "memcache.error"

	// HTTP attributes (OpenTelemetry semantic conventions)
	AttrHTTPMethod       = "http.method"
	AttrHTTPRoute        = "http.route"
	AttrHTTPStatusCode   = "http.status_code"
	AttrHTTPUserAgent    = "http.user_agent"
	AttrHTTPRequestSize  = "http.request.size"
	AttrHTTPResponseSize = "http.response.size"

	// gRPC attributes (OpenTelemetry semantic conventions)
	AttrRPCService = "rpc.service"
	AttrRPCMethod  = "rpc.method"
	AttrRPCStatus  = "rpc.status_code"
)
