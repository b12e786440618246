package tracing

// Sampling strategies
const (
	SamplingAlways = "always"
	SamplingNever  = "never"
	SamplingRatio  = "ratio"
	// SamplingRate treats SamplingRate as traces per second against a
	// baseline of BaselineRequestRate requests per second
	SamplingRate = "rate"
)

// BaselineRequestRate is the request rate assumed by the "rate" strategy
const BaselineRequestRate = 100.0

// TracingConfig holds configuration for OpenTelemetry tracing
type TracingConfig struct {
	// Enabled enables/disables tracing
	Enabled bool

	// ServiceName is the service name for traces
	ServiceName string

	// ServiceVersion is the service version
	ServiceVersion string

	// Endpoint is the OTLP endpoint URL
	Endpoint string

	// Insecure skips TLS verification
	Insecure bool

	// Headers contains additional headers for OTLP export
	Headers map[string]string

	// ExporterType specifies the exporter type: "grpc" or "http"
	ExporterType string

	// SamplingStrategy is one of "always", "never", "ratio", "rate"
	SamplingStrategy string

	// SamplingRate is a probability for "ratio" and traces/sec for "rate"
	SamplingRate float64
}

// DefaultTracingConfig returns a default tracing configuration
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:          false,
		ServiceName:      "memcache",
		ServiceVersion:   "0.1.0",
		Endpoint:         "",
		Insecure:         false,
		Headers:          make(map[string]string),
		ExporterType:     "grpc",
		SamplingStrategy: SamplingAlways,
		SamplingRate:     1.0,
	}
}
