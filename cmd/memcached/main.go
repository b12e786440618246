package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowmesh/memcache/internal/api"
	"github.com/flowmesh/memcache/internal/config"
	"github.com/flowmesh/memcache/internal/logger"
	"github.com/flowmesh/memcache/internal/metrics"
	"github.com/flowmesh/memcache/internal/storage"
	"github.com/flowmesh/memcache/internal/tracing"
	"github.com/flowmesh/memcache/internal/version"
	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "version" || os.Args[1] == "--version") {
		fmt.Println(version.String())
		return
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "memcached: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	if err := logger.Init(&logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		Rotation:   cfg.Logging.Rotation,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info().Str("version", version.String()).Msg("Starting memcache")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	tracingConfig := tracing.DefaultTracingConfig()
	tracingConfig.Enabled = cfg.Metrics.TracingEnabled
	tracingConfig.Endpoint = cfg.Metrics.TracingEndpoint
	tracingConfig.ExporterType = cfg.Metrics.TracingExporter
	tracingConfig.Insecure = cfg.Metrics.TracingInsecure
	tracingConfig.SamplingStrategy = cfg.Metrics.TracingSampling
	tracingConfig.SamplingRate = cfg.Metrics.TracingSamplingRate
	tracingConfig.ServiceVersion = version.Version

	tracerProvider, err := tracing.NewProvider(tracingConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Metrics
	var (
		collector     *metrics.Collector
		cacheMetrics  *metrics.CacheMetrics
		metricsServer *metrics.Server
	)
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
		collector.RegisterRuntimeCollectors()
		cacheMetrics = metrics.NewCacheMetrics(collector)

		if cfg.Metrics.Addr != "" {
			metricsServer = metrics.NewServer(cfg.Metrics.Addr, collector.GetRegistry())
			if err := metricsServer.Start(ctx); err != nil {
				return err
			}
		}
	}

	// Storage
	storageConfig := storage.DefaultConfig()
	storageConfig.DataDir = cfg.Storage.DataDir
	storageConfig.SnapshotBackend = cfg.Storage.SnapshotBackend
	storageConfig.CheckpointInterval = cfg.Storage.CheckpointInterval
	storageConfig.DefaultAliveSeconds = cfg.Cache.DefaultAliveSeconds
	storageConfig.RestoreUnexpiring = cfg.Cache.RestoreUnexpiring

	builder := storage.NewBuilder().WithConfig(storageConfig)
	if cacheMetrics != nil {
		builder = builder.
			WithObserver(cacheMetrics).
			WithCheckpointHook(cacheMetrics.RecordCheckpoint)
	}
	store, err := builder.Build()
	if err != nil {
		return fmt.Errorf("failed to build storage: %w", err)
	}

	// API
	server, err := api.NewServer(api.Config{
		GRPCAddr:    cfg.Server.GRPCAddr,
		HTTPAddr:    cfg.Server.HTTPAddr,
		AuthEnabled: cfg.Auth.Enabled,
		AuthTokens:  cfg.Auth.Tokens,
		Collector:   collector,
	}, store)
	if err != nil {
		return err
	}

	if err := server.Start(ctx); err != nil {
		store.Stop(context.Background())
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping server")
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping metrics server")
		}
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down tracing")
	}

	log.Info().Msg("memcache stopped")
	return nil
}
