package middleware

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmesh/memcache/internal/tracing"
)

// Tracing creates tracing middleware for HTTP requests. route maps a request
// to its low-cardinality route template.
func Tracing(route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Extract trace context from HTTP headers
			ctx := tracing.ExtractFromHTTP(r.Context(), r.Header)

			tracer := otel.Tracer("memcache.http")

			template := route(r)
			ctx, span := tracer.Start(ctx, "HTTP "+r.Method+" "+template,
				trace.WithSpanKind(trace.SpanKindServer),
			)

			span.SetAttributes(
				attribute.String(tracing.AttrHTTPMethod, r.Method),
				attribute.String(tracing.AttrHTTPRoute, template),
				attribute.String(tracing.AttrHTTPUserAgent, r.UserAgent()),
				attribute.Int64(tracing.AttrHTTPRequestSize, r.ContentLength),
				attribute.String("http.host", r.Host),
				attribute.String("http.remote_addr", r.RemoteAddr),
			)

			ww := wrapResponseWriter(w)

			// Call next handler with context containing span
			next.ServeHTTP(ww, r.WithContext(ctx))

			span.SetAttributes(
				attribute.Int(tracing.AttrHTTPStatusCode, ww.statusCode),
				attribute.Int(tracing.AttrHTTPResponseSize, ww.written),
			)

			// 4xx are caller errors, not span failures
			if ww.statusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(ww.statusCode))
			} else {
				span.SetStatus(codes.Ok, "")
			}

			span.End()
		})
	}
}
