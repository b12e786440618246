package grpc

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/flowmesh/memcache/internal/tracing"
)

// tracingInterceptor starts a server span per call, continuing the caller's
// trace when the metadata carries one
func (s *Server) tracingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	ctx = tracing.ExtractFromIncomingMetadata(ctx)

	tracer := otel.Tracer("memcache.grpc")

	ctx, span := tracer.Start(ctx, info.FullMethod,
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	service, method := splitMethodName(info.FullMethod)
	span.SetAttributes(
		attribute.String("rpc.system", "grpc"),
		attribute.String(tracing.AttrRPCService, service),
		attribute.String(tracing.AttrRPCMethod, method),
	)

	resp, err := handler(ctx, req)

	st, _ := status.FromError(err)
	span.SetAttributes(attribute.String(tracing.AttrRPCStatus, st.Code().String()))
	if err != nil {
		span.SetStatus(codes.Error, st.Message())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return resp, err
}

// splitMethodName splits "/package.Service/Method" into service and method
func splitMethodName(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndex(fullMethod, "/"); i >= 0 {
		return fullMethod[:i], fullMethod[i+1:]
	}
	return "unknown", fullMethod
}
