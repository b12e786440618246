package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `json:"server"`

	// Cache configuration
	Cache CacheConfig `json:"cache"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics"`

	// Auth configuration
	Auth AuthConfig `json:"auth"`

	// Configuration file path
	ConfigFile string `env:"CONFIG_FILE" json:"-"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	// gRPC server address
	GRPCAddr string `env:"GRPC_ADDR" envDefault:":50051" json:"grpc_addr"`

	// HTTP server address
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080" json:"http_addr"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s" json:"shutdown_timeout"`
}

// CacheConfig holds cache behavior configuration
type CacheConfig struct {
	// Default alive duration in seconds (0 = no automatic expiry)
	DefaultAliveSeconds int `env:"CACHE_DEFAULT_ALIVE" envDefault:"0" json:"default_alive_seconds"`

	// Restore entries without expiry from snapshots
	RestoreUnexpiring bool `env:"CACHE_RESTORE_UNEXPIRING" envDefault:"false" json:"restore_unexpiring"`
}

// StorageConfig holds storage-related configuration
type StorageConfig struct {
	// Data directory path
	DataDir string `env:"DATA_DIR" envDefault:"./data" json:"data_dir"`

	// Snapshot backend: "pebble", "file", "none"
	SnapshotBackend string `env:"SNAPSHOT_BACKEND" envDefault:"pebble" json:"snapshot_backend"`

	// Checkpoint interval (0 = only on shutdown)
	CheckpointInterval time.Duration `env:"CHECKPOINT_INTERVAL" envDefault:"30s" json:"checkpoint_interval"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Log level: "debug", "info", "warn", "error"
	Level string `env:"LOG_LEVEL" envDefault:"info" json:"level"`

	// Log format: "json", "text"
	Format string `env:"LOG_FORMAT" envDefault:"json" json:"format"`

	// Log file path (empty for stdout)
	Output string `env:"LOG_OUTPUT" envDefault:"" json:"output"`

	// Enable log rotation
	Rotation bool `env:"LOG_ROTATION" envDefault:"true" json:"rotation"`

	// Max log file size in MB
	MaxSize int `env:"LOG_MAX_SIZE" envDefault:"100" json:"max_size"`

	// Number of backup files to keep
	MaxBackups int `env:"LOG_MAX_BACKUPS" envDefault:"7" json:"max_backups"`

	// Max age in days
	MaxAge int `env:"LOG_MAX_AGE" envDefault:"30" json:"max_age"`
}

// MetricsConfig holds metrics-related configuration
type MetricsConfig struct {
	// Enable Prometheus metrics
	Enabled bool `env:"METRICS_ENABLED" envDefault:"true" json:"enabled"`

	// Metrics server address (empty serves metrics on the HTTP API only)
	Addr string `env:"METRICS_ADDR" envDefault:":9090" json:"addr"`

	// Enable OpenTelemetry tracing
	TracingEnabled bool `env:"TRACING_ENABLED" envDefault:"false" json:"tracing_enabled"`

	// OpenTelemetry endpoint
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"" json:"tracing_endpoint"`

	// OTLP exporter: "grpc", "http"
	TracingExporter string `env:"TRACING_EXPORTER" envDefault:"grpc" json:"tracing_exporter"`

	// Disable TLS for the OTLP exporter
	TracingInsecure bool `env:"TRACING_INSECURE" envDefault:"true" json:"tracing_insecure"`

	// Sampling strategy: "always", "never", "ratio", "rate"
	TracingSampling string `env:"TRACING_SAMPLING" envDefault:"always" json:"tracing_sampling"`

	// Probability for "ratio", traces per second for "rate"
	TracingSamplingRate float64 `env:"TRACING_SAMPLING_RATE" envDefault:"1.0" json:"tracing_sampling_rate"`
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	// Require bearer tokens on /api/v1 and the cache gRPC service
	Enabled bool `env:"AUTH_ENABLED" envDefault:"false" json:"enabled"`

	// Tokens in the form token:perm|perm, comma separated
	Tokens []string `env:"AUTH_TOKENS" envSeparator:"," json:"tokens"`
}

// Load loads configuration from multiple sources:
// 1. Default values
// 2. Environment variables
// 3. Configuration file (JSON)
// 4. Command line flags
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	// Load from environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	fs := flag.NewFlagSet("memcached", flag.ContinueOnError)
	configFile := fs.String("config", cfg.ConfigFile, "Path to configuration file")
	if err := fs.Parse(filterFlag(args, "config")); err != nil {
		return nil, err
	}
	cfg.ConfigFile = *configFile

	// Load from config file if specified
	if cfg.ConfigFile != "" {
		if err := loadFromFile(cfg, cfg.ConfigFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Command line flags win over everything else
	fs = flag.NewFlagSet("memcached", flag.ContinueOnError)
	fs.String("config", cfg.ConfigFile, "Path to configuration file")
	fs.StringVar(&cfg.Server.GRPCAddr, "grpc-addr", cfg.Server.GRPCAddr, "gRPC server address")
	fs.StringVar(&cfg.Server.HTTPAddr, "http-addr", cfg.Server.HTTPAddr, "HTTP server address")
	fs.StringVar(&cfg.Storage.DataDir, "data-dir", cfg.Storage.DataDir, "Data directory path")
	fs.StringVar(&cfg.Storage.SnapshotBackend, "snapshot-backend", cfg.Storage.SnapshotBackend, "Snapshot backend (pebble, file, none)")
	fs.IntVar(&cfg.Cache.DefaultAliveSeconds, "default-alive", cfg.Cache.DefaultAliveSeconds, "Default alive duration in seconds (0 = no expiry)")
	fs.StringVar(&cfg.Logging.Level, "log-level", cfg.Logging.Level, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Logging.Format, "log-format", cfg.Logging.Format, "Log format (json, text)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Normalize paths
	cfg.Storage.DataDir = filepath.Clean(cfg.Storage.DataDir)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.GRPCAddr == "" {
		return fmt.Errorf("grpc server address cannot be empty")
	}

	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("http server address cannot be empty")
	}

	if c.Storage.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if c.Cache.DefaultAliveSeconds < 0 {
		return fmt.Errorf("default alive cannot be negative: %d", c.Cache.DefaultAliveSeconds)
	}

	if c.Storage.CheckpointInterval < 0 {
		return fmt.Errorf("checkpoint interval cannot be negative: %s", c.Storage.CheckpointInterval)
	}

	validBackends := map[string]bool{
		"pebble": true,
		"file":   true,
		"none":   true,
	}
	if !validBackends[strings.ToLower(c.Storage.SnapshotBackend)] {
		return fmt.Errorf("invalid snapshot backend: %s", c.Storage.SnapshotBackend)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if c.Metrics.TracingEnabled && c.Metrics.TracingEndpoint == "" {
		return fmt.Errorf("tracing endpoint is required when tracing is enabled")
	}

	validSampling := map[string]bool{
		"always": true,
		"never":  true,
		"ratio":  true,
		"rate":   true,
	}
	if !validSampling[strings.ToLower(c.Metrics.TracingSampling)] {
		return fmt.Errorf("invalid tracing sampling strategy: %s", c.Metrics.TracingSampling)
	}

	for _, spec := range c.Auth.Tokens {
		if token, _, _ := strings.Cut(spec, ":"); strings.TrimSpace(token) == "" {
			return fmt.Errorf("invalid auth token entry: %q", spec)
		}
	}

	return nil
}

// loadFromFile overlays a JSON configuration file onto cfg. Fields absent
// from the file keep their current values.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// filterFlag keeps only the named flag (and its value) from args so the
// config file can be located before the remaining flags are applied.
func filterFlag(args []string, name string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		trimmed := strings.TrimLeft(arg, "-")
		if trimmed == arg {
			continue
		}
		if trimmed == name && i+1 < len(args) {
			out = append(out, arg, args[i+1])
			i++
			continue
		}
		if strings.HasPrefix(trimmed, name+"=") {
			out = append(out, arg)
		}
	}
	return out
}
