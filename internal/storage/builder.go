package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowmesh/memcache/internal/logger"
	"github.com/flowmesh/memcache/internal/storage/memory"
	"github.com/flowmesh/memcache/internal/storage/snapshot"
	"github.com/rs/zerolog"
)

// Builder provides a fluent interface for building Storage instances
type Builder struct {
	config    *Config
	snapshots snapshot.Store
	observer  memory.Observer
	hook      CheckpointHook
	log       zerolog.Logger
}

// NewBuilder creates a new Storage builder
func NewBuilder() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    logger.WithComponent("storage.builder"),
	}
}

// WithConfig sets the configuration
func (b *Builder) WithConfig(config *Config) *Builder {
	b.config = config
	return b
}

// WithDataDir sets the data directory (convenience method)
func (b *Builder) WithDataDir(dataDir string) *Builder {
	if b.config == nil {
		b.config = DefaultConfig()
	}
	b.config.DataDir = dataDir
	return b
}

// WithSnapshotStore sets a custom snapshot store (optional, opened from
// the configured backend if not set)
func (b *Builder) WithSnapshotStore(store snapshot.Store) *Builder {
	b.snapshots = store
	return b
}

// WithObserver sets the cache event observer (optional)
func (b *Builder) WithObserver(observer memory.Observer) *Builder {
	b.observer = observer
	return b
}

// WithCheckpointHook sets a hook called after every checkpoint (optional)
func (b *Builder) WithCheckpointHook(hook CheckpointHook) *Builder {
	b.hook = hook
	return b
}

// Build creates and initializes the Storage instance
func (b *Builder) Build() (*Storage, error) {
	if b.config == nil {
		b.config = DefaultConfig()
	}

	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize directories
	paths, err := InitDirectories(b.config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize directories: %w", err)
	}

	// Open snapshot store if not provided
	if b.snapshots == nil {
		store, err := snapshot.Open(b.config.SnapshotBackend, paths.SnapshotDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		b.snapshots = store
	}

	opts := []memory.Option{
		memory.WithRestoreUnexpiring(b.config.RestoreUnexpiring),
	}
	if b.observer != nil {
		opts = append(opts, memory.WithObserver(b.observer))
	}

	storage := &Storage{
		paths:     paths,
		config:    b.config,
		cache:     memory.New[json.RawMessage](b.config.DefaultAliveSeconds, opts...),
		snapshots: b.snapshots,
		log:       logger.WithComponent("storage"),
		ready:     false,
		closed:    false,
	}
	storage.checkpoint = NewCheckpointManager(storage.save, b.config.CheckpointInterval)
	if b.hook != nil {
		storage.checkpoint.SetHook(b.hook)
	}

	b.log.Info().
		Str("data_dir", b.config.DataDir).
		Str("snapshot_backend", b.config.SnapshotBackend).
		Int("default_alive_seconds", b.config.DefaultAliveSeconds).
		Msg("Storage built successfully")

	return storage, nil
}

// BuildAndStart creates, initializes, and starts the Storage instance
func (b *Builder) BuildAndStart(ctx context.Context) (*Storage, error) {
	storage, err := b.Build()
	if err != nil {
		return nil, err
	}

	if err := storage.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start storage: %w", err)
	}

	return storage, nil
}
