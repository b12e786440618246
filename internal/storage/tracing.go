package storage

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmesh/memcache/internal/tracing"
)

const tracerName = "memcache.cache"

// startKeySpan starts a span for a single-key operation
func startKeySpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "cache."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String(tracing.AttrKey, key),
		attribute.String(tracing.AttrOperation, operation),
	)
	return ctx, span
}

// startSpan starts a span for an operation over the whole cache
func startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, "cache."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(attribute.String(tracing.AttrOperation, operation))
	return ctx, span
}

// endSpan records err on span, if any, and ends it
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(tracing.AttrError, err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
