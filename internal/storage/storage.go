package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowmesh/memcache/internal/storage/memory"
	"github.com/flowmesh/memcache/internal/storage/snapshot"
	"github.com/flowmesh/memcache/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrNotReady is returned when storage has not been started
	ErrNotReady = errors.New("storage is not ready")
	// ErrClosed is returned when a stopped storage is started again
	ErrClosed = errors.New("storage is closed")
)

// Storage owns the cache, its snapshot store and the checkpoint loop
type Storage struct {
	paths      *StoragePaths
	config     *Config
	cache      *memory.Store[json.RawMessage]
	snapshots  snapshot.Store
	checkpoint *CheckpointManager
	log        zerolog.Logger
	mu         sync.RWMutex
	ready      bool
	closed     bool
}

// New creates a storage system with default settings rooted at dataDir
func New(dataDir string) (*Storage, error) {
	return NewBuilder().WithDataDir(dataDir).Build()
}

// Start restores the last snapshot and starts checkpointing
func (s *Storage) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return nil
	}
	if s.closed {
		return ErrClosed
	}

	s.log.Info().Msg("Starting storage...")

	entries, err := s.snapshots.Load(ctx)
	if err != nil {
		// A cache can always start cold
		s.log.Error().Err(err).Msg("Failed to load snapshot, starting with an empty cache")
		entries = nil
	}

	restored := s.cache.ResetCache(snapshot.ToRecords(entries))
	s.log.Info().
		Int("restored", restored).
		Int("dropped", len(entries)-restored).
		Msg("Cache restored from snapshot")

	s.checkpoint.Start()

	s.ready = true
	s.log.Info().Msg("Storage started")

	return nil
}

// Stop saves a final checkpoint, closes the snapshot store and empties the cache
func (s *Storage) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.log.Info().Msg("Stopping storage...")

	var lastErr error

	if s.ready {
		if err := s.checkpoint.Stop(ctx); err != nil {
			s.log.Error().Err(err).Msg("Failed to stop checkpoint manager")
			lastErr = err
		}
	}

	if err := s.snapshots.Close(); err != nil {
		s.log.Error().Err(err).Msg("Failed to close snapshot store")
		lastErr = err
	}

	s.cache.Clear()

	s.ready = false
	s.closed = true
	s.log.Info().Msg("Storage stopped")

	return lastErr
}

// Ready returns true if storage is started
func (s *Storage) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Cache returns the underlying store
func (s *Storage) Cache() *memory.Store[json.RawMessage] {
	return s.cache
}

// Paths returns the storage paths
func (s *Storage) Paths() *StoragePaths {
	return s.paths
}

// Config returns the storage configuration
func (s *Storage) Config() *Config {
	return s.config
}

// LastCheckpointAt returns the time of the last successful checkpoint
func (s *Storage) LastCheckpointAt() time.Time {
	return s.checkpoint.LastCheckpointAt()
}

// Get returns the record stored under key
func (s *Storage) Get(ctx context.Context, key string) (memory.Record[json.RawMessage], bool) {
	_, span := startKeySpan(ctx, "get", key)
	rec, ok := s.cache.Get(key)
	span.SetAttributes(attribute.Bool(tracing.AttrHit, ok))
	endSpan(span, nil)
	return rec, ok
}

// Set stores value under key. expires follows memory.Store.Set.
func (s *Storage) Set(ctx context.Context, key string, value json.RawMessage, expires int64) json.RawMessage {
	_, span := startKeySpan(ctx, "set", key)
	span.SetAttributes(
		attribute.Int64(tracing.AttrExpires, expires),
		attribute.Int(tracing.AttrValueLength, len(value)),
	)
	defer endSpan(span, nil)

	return s.cache.Set(key, value, expires)
}

// SetTTL stores value under key for ttl
func (s *Storage) SetTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) json.RawMessage {
	_, span := startKeySpan(ctx, "set", key)
	span.SetAttributes(
		attribute.Int64(tracing.AttrTTL, ttl.Milliseconds()),
		attribute.Int(tracing.AttrValueLength, len(value)),
	)
	defer endSpan(span, nil)

	return s.cache.SetTTL(key, value, ttl)
}

// Remove deletes key
func (s *Storage) Remove(ctx context.Context, key string) (json.RawMessage, bool) {
	_, span := startKeySpan(ctx, "remove", key)
	value, ok := s.cache.Remove(key)
	span.SetAttributes(attribute.Bool(tracing.AttrHit, ok))
	endSpan(span, nil)
	return value, ok
}

// Clear removes every record
func (s *Storage) Clear(ctx context.Context) {
	_, span := startSpan(ctx, "clear")
	span.SetAttributes(attribute.Int(tracing.AttrEntryCount, s.cache.Len()))
	defer endSpan(span, nil)

	s.cache.Clear()
}

// Keys returns all keys in ascending order
func (s *Storage) Keys(ctx context.Context) []string {
	_, span := startSpan(ctx, "keys")
	keys := s.cache.Keys()
	span.SetAttributes(attribute.Int(tracing.AttrEntryCount, len(keys)))
	endSpan(span, nil)
	return keys
}

// Export captures the current records as snapshot entries
func (s *Storage) Export(ctx context.Context) map[string]snapshot.Entry {
	_, span := startSpan(ctx, "export")
	entries := snapshot.FromRecords(s.cache.Copy())
	span.SetAttributes(attribute.Int(tracing.AttrEntryCount, len(entries)))
	endSpan(span, nil)
	return entries
}

// Import restores entries into the cache. Entries without a future expiry
// are dropped unless RestoreUnexpiring is set.
func (s *Storage) Import(ctx context.Context, entries map[string]snapshot.Entry) int {
	_, span := startSpan(ctx, "import")
	restored := s.cache.ResetCache(snapshot.ToRecords(entries))
	span.SetAttributes(
		attribute.Int(tracing.AttrEntryCount, len(entries)),
		attribute.Int(tracing.AttrRestored, restored),
	)
	endSpan(span, nil)

	s.log.Info().
		Int("restored", restored).
		Int("dropped", len(entries)-restored).
		Msg("Snapshot imported")
	return restored
}

// Checkpoint persists the current records
func (s *Storage) Checkpoint(ctx context.Context) error {
	if !s.Ready() {
		return ErrNotReady
	}
	return s.checkpoint.SaveCheckpoint(ctx)
}

// save exports the cache and writes it to the snapshot store
func (s *Storage) save(ctx context.Context) (int, error) {
	ctx, span := startSpan(ctx, "checkpoint")

	entries := s.Export(ctx)
	span.SetAttributes(attribute.Int(tracing.AttrEntryCount, len(entries)))

	err := s.snapshots.Save(ctx, entries)
	endSpan(span, err)
	if err != nil {
		return 0, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return len(entries), nil
}
