package grpc

import (
	"context"
	"errors"
	"runtime/debug"
	"strings"
	"time"

	"github.com/flowmesh/memcache/api/proto/cachepb"
	"github.com/flowmesh/memcache/internal/api/auth"
	"github.com/flowmesh/memcache/internal/api/validation"
	"github.com/flowmesh/memcache/internal/metrics"
	"github.com/flowmesh/memcache/internal/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// methodPermissions maps cache methods to the permission they require
var methodPermissions = map[string]auth.Permission{
	cachepb.CacheService_Get_FullMethodName:    auth.PermissionCacheRead,
	cachepb.CacheService_Keys_FullMethodName:   auth.PermissionCacheRead,
	cachepb.CacheService_Set_FullMethodName:    auth.PermissionCacheWrite,
	cachepb.CacheService_Remove_FullMethodName: auth.PermissionCacheWrite,
	cachepb.CacheService_Clear_FullMethodName:  auth.PermissionCacheAdmin,

	cachepb.CacheService_Export_FullMethodName:     auth.PermissionCacheAdmin,
	cachepb.CacheService_Import_FullMethodName:     auth.PermissionCacheAdmin,
	cachepb.CacheService_Checkpoint_FullMethodName: auth.PermissionCacheAdmin,
}

const healthServicePrefix = "/grpc.health.v1.Health/"

// unaryInterceptors returns the interceptors in order: recovery, tracing,
// logging, metrics, auth, error conversion
func (s *Server) unaryInterceptors() []grpc.UnaryServerInterceptor {
	return []grpc.UnaryServerInterceptor{
		s.recoveryInterceptor,
		s.tracingInterceptor,
		s.loggingInterceptor,
		s.metricsInterceptor,
		s.authInterceptor,
		s.errorInterceptor,
	}
}

// recoveryInterceptor turns handler panics into Internal errors
func (s *Server) recoveryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("error", r).
				Str("method", info.FullMethod).
				Bytes("stack", debug.Stack()).
				Msg("gRPC handler panic recovered")
			resp, err = nil, status.Error(codes.Internal, "internal server error")
		}
	}()

	return handler(ctx, req)
}

// loggingInterceptor logs requests and responses
func (s *Server) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()

	log := s.log.With().Str("method", info.FullMethod).Logger()
	log.Debug().Msg("gRPC request started")

	// Call handler
	resp, err := handler(ctx, req)

	log = log.With().
		Str("code", status.Code(err).String()).
		Dur("duration", time.Since(start)).
		Logger()

	if err != nil {
		log.Warn().Err(err).Msg("gRPC request failed")
	} else {
		log.Info().Msg("gRPC request completed")
	}

	return resp, err
}

// metricsInterceptor records request count and latency
func (s *Server) metricsInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if s.apiMetrics == nil {
		return handler(ctx, req)
	}

	start := time.Now()
	resp, err := handler(ctx, req)

	service, method := splitMethodName(info.FullMethod)
	s.apiMetrics.RecordRequest(metrics.TransportGRPC, method, service, status.Code(err).String(), time.Since(start))

	return resp, err
}

// authInterceptor authenticates and authorizes cache calls. Health checks
// are always allowed.
func (s *Server) authInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if s.tokenStore == nil || strings.HasPrefix(info.FullMethod, healthServicePrefix) {
		return handler(ctx, req)
	}

	permission, known := methodPermissions[info.FullMethod]
	if !known {
		return nil, status.Error(codes.Unimplemented, "unknown method")
	}

	// Extract token from metadata
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("authorization"); len(values) > 0 {
			header = values[0]
		}
	}

	token, err := auth.ExtractBearerToken(header)
	if err != nil {
		s.apiMetrics.RecordAuthFailure(metrics.TransportGRPC, "missing_token")
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	apiToken, err := s.tokenStore.ValidateToken(token)
	if err != nil {
		s.apiMetrics.RecordAuthFailure(metrics.TransportGRPC, "invalid_token")
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}

	authCtx := auth.NewAuthContext(apiToken)
	if err := s.authorizer.Authorize(authCtx, permission); err != nil {
		s.apiMetrics.RecordAuthFailure(metrics.TransportGRPC, "forbidden")
		return nil, convertToGRPCStatus(err)
	}

	// Attach auth context to request context
	return handler(auth.WithAuthContext(ctx, authCtx), req)
}

// errorInterceptor handles errors and converts them to gRPC status
func (s *Server) errorInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		return nil, convertToGRPCStatus(err)
	}
	return resp, nil
}

// convertToGRPCStatus converts an error to a gRPC status
func convertToGRPCStatus(err error) error {
	if err == nil {
		return nil
	}

	// Check if it's already a gRPC status
	if _, ok := status.FromError(err); ok {
		return err
	}

	var (
		validationErr validation.ValidationError
		unauthorized  auth.UnauthorizedError
		forbidden     auth.ForbiddenError
	)

	switch {
	case errors.As(err, &validationErr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &unauthorized):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.As(err, &forbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, storage.ErrNotReady), errors.Is(err, storage.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	// Default to internal error
	return status.Error(codes.Internal, err.Error())
}
