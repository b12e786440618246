package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmesh/memcache/internal/api/auth"
	grpcapi "github.com/flowmesh/memcache/internal/api/grpc"
	httpapi "github.com/flowmesh/memcache/internal/api/http"
	"github.com/flowmesh/memcache/internal/logger"
	"github.com/flowmesh/memcache/internal/metrics"
	"github.com/flowmesh/memcache/internal/storage"
	"github.com/rs/zerolog"
)

// Server manages both gRPC and HTTP servers
type Server struct {
	storage    storage.StorageBackend
	grpcServer *grpcapi.Server
	httpServer *httpapi.Server
	tokenStore auth.TokenStore
	log        zerolog.Logger
	ready      bool
	mu         sync.RWMutex
}

// Config holds configuration for the API server
type Config struct {
	GRPCAddr string
	HTTPAddr string

	// AuthEnabled requires bearer tokens on the cache API
	AuthEnabled bool
	// AuthTokens are "token:perm|perm" entries
	AuthTokens []string

	// Collector is served on /metrics and receives API metrics; may be nil
	Collector *metrics.Collector
}

// NewServer creates a new API server
func NewServer(cfg Config, storage storage.StorageBackend) (*Server, error) {
	s := &Server{
		storage: storage,
		log:     logger.WithComponent("api"),
	}

	var (
		grpcOpts []grpcapi.Option
		httpOpts []httpapi.Option
	)

	if cfg.AuthEnabled {
		tokenStore, err := auth.NewTokenStoreFromSpecs(cfg.AuthTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to load auth tokens: %w", err)
		}

		// Create default token for development/testing
		if tokenStore.Len() == 0 {
			if _, err := tokenStore.AddDefaultToken(); err != nil {
				return nil, err
			}
		}

		s.tokenStore = tokenStore
		grpcOpts = append(grpcOpts, grpcapi.WithAuth(tokenStore))
		httpOpts = append(httpOpts, httpapi.WithAuth(tokenStore))
	}

	if cfg.Collector != nil {
		apiMetrics := metrics.NewAPIMetrics(cfg.Collector)
		grpcOpts = append(grpcOpts, grpcapi.WithMetrics(apiMetrics))
		httpOpts = append(httpOpts, httpapi.WithMetrics(cfg.Collector, apiMetrics))
	}

	s.grpcServer = grpcapi.NewServer(cfg.GRPCAddr, storage, grpcOpts...)
	s.httpServer = httpapi.NewServer(cfg.HTTPAddr, storage, httpOpts...)

	return s, nil
}

// Start starts storage, then the gRPC and HTTP servers
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}

	s.log.Info().Msg("Starting API server")

	// Start storage first
	if err := s.storage.Start(ctx); err != nil {
		return err
	}

	// Start gRPC server
	if err := s.grpcServer.Start(ctx); err != nil {
		return err
	}

	// Start HTTP server
	if err := s.httpServer.Start(ctx); err != nil {
		// Stop gRPC server if HTTP fails
		s.grpcServer.Stop(ctx)
		return err
	}

	s.ready = true
	s.log.Info().
		Str("grpc_addr", s.grpcServer.Addr()).
		Str("http_addr", s.httpServer.Addr()).
		Bool("auth", s.tokenStore != nil).
		Msg("API server started")

	return nil
}

// Stop gracefully stops both servers, then storage, which writes the final
// checkpoint
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return nil
	}

	s.log.Info().Msg("Stopping API server")

	// Stop HTTP server first
	if err := s.httpServer.Stop(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Error stopping HTTP server")
	}

	// Stop gRPC server
	if err := s.grpcServer.Stop(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Error stopping gRPC server")
	}

	// Stop storage
	if err := s.storage.Stop(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Error stopping storage")
	}

	s.ready = false
	s.log.Info().Msg("API server stopped")

	return nil
}

// Ready returns true if the server is ready
func (s *Server) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready && s.grpcServer.Ready() && s.httpServer.Ready() && s.storage.Ready()
}

// GRPCAddr returns the bound gRPC address
func (s *Server) GRPCAddr() string {
	return s.grpcServer.Addr()
}

// HTTPAddr returns the bound HTTP address
func (s *Server) HTTPAddr() string {
	return s.httpServer.Addr()
}

// TokenStore returns the token store, nil when auth is disabled
func (s *Server) TokenStore() auth.TokenStore {
	return s.tokenStore
}
