package grpc

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/flowmesh/memcache/api/proto/cachepb"
	"github.com/flowmesh/memcache/internal/api/auth"
	"github.com/flowmesh/memcache/internal/logger"
	"github.com/flowmesh/memcache/internal/metrics"
	"github.com/flowmesh/memcache/internal/storage"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Option configures a Server
type Option func(*Server)

// WithAuth requires bearer tokens from tokenStore on the cache service
func WithAuth(tokenStore auth.TokenStore) Option {
	return func(s *Server) {
		s.tokenStore = tokenStore
	}
}

// WithMetrics records request metrics
func WithMetrics(apiMetrics *metrics.APIMetrics) Option {
	return func(s *Server) {
		s.apiMetrics = apiMetrics
	}
}

// Server represents a gRPC server
type Server struct {
	storage    storage.StorageBackend
	grpcServer *grpc.Server
	addr       string
	listener   net.Listener
	log        zerolog.Logger
	ready      bool
	mu         sync.RWMutex
	healthSvc  *health.Server
	cacheSvc   *CacheService
	tokenStore auth.TokenStore
	authorizer auth.Authorizer
	apiMetrics *metrics.APIMetrics
}

// NewServer creates a new gRPC server
func NewServer(addr string, storage storage.StorageBackend, opts ...Option) *Server {
	s := &Server{
		storage:    storage,
		addr:       addr,
		log:        logger.WithComponent("grpc"),
		healthSvc:  health.NewServer(),
		cacheSvc:   NewCacheService(storage),
		authorizer: auth.NewPermissionAuthorizer(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Create gRPC server with interceptors
	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.unaryInterceptors()...),
	)

	// Register services
	s.registerServices()

	return s
}

// Start listens on the configured address and serves in the background
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener in the background
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		listener.Close()
		return nil
	}

	s.listener = listener
	s.log.Info().Str("addr", listener.Addr().String()).Msg("Starting gRPC server")

	s.updateHealth()

	// Start server in a goroutine
	go func() {
		if err := s.grpcServer.Serve(listener); err != nil {
			s.log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	s.ready = true
	s.log.Info().Str("addr", listener.Addr().String()).Msg("gRPC server started")

	return nil
}

// Stop gracefully stops the gRPC server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}

	s.log.Info().Msg("Stopping gRPC server")

	// Health watchers see NOT_SERVING before connections drain
	s.healthSvc.Shutdown()
	s.ready = false

	// Graceful stop with context
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		// Context expired, force stop
		s.grpcServer.Stop()
		return ctx.Err()
	case <-stopped:
		// Graceful stop completed
	}

	s.log.Info().Msg("gRPC server stopped")

	return nil
}

// Ready returns true if the server is ready
func (s *Server) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Addr returns the bound address once started, the configured one before
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// registerServices registers all gRPC services
func (s *Server) registerServices() {
	// Register health service
	healthpb.RegisterHealthServer(s.grpcServer, s.healthSvc)

	// Register cache service
	cachepb.RegisterCacheServiceServer(s.grpcServer, s.cacheSvc)
}

// updateHealth reports SERVING once storage is ready
func (s *Server) updateHealth() {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if s.storage != nil && s.storage.Ready() {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.healthSvc.SetServingStatus("", st)
	s.healthSvc.SetServingStatus(cachepb.ServiceName, st)
}
