package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/flowmesh/memcache/internal/storage/memory"
	"github.com/flowmesh/memcache/internal/storage/snapshot"
)

// Lifecycle manages component lifecycle
type Lifecycle interface {
	// Start initializes and starts the component
	Start(ctx context.Context) error
	// Stop gracefully stops the component
	Stop(ctx context.Context) error
	// Ready returns true if the component is ready
	Ready() bool
}

// CacheReader defines the read side of the cache
type CacheReader interface {
	// Get returns the record stored under key
	Get(ctx context.Context, key string) (memory.Record[json.RawMessage], bool)
	// Keys returns all keys in ascending order
	Keys(ctx context.Context) []string
}

// CacheWriter defines the write side of the cache
type CacheWriter interface {
	// Set stores value with the dual absolute/relative millisecond expiry
	Set(ctx context.Context, key string, value json.RawMessage, expires int64) json.RawMessage
	// SetTTL stores value for a relative ttl
	SetTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) json.RawMessage
	// Remove deletes key and returns its value
	Remove(ctx context.Context, key string) (json.RawMessage, bool)
	// Clear removes every record
	Clear(ctx context.Context)
}

// SnapshotManager defines snapshot export, import and persistence
type SnapshotManager interface {
	// Export captures the current records
	Export(ctx context.Context) map[string]snapshot.Entry
	// Import restores entries with a future expiry and returns how many were restored
	Import(ctx context.Context, entries map[string]snapshot.Entry) int
	// Checkpoint persists the current records
	Checkpoint(ctx context.Context) error
}

// StorageBackend is everything the API layer needs from storage
type StorageBackend interface {
	Lifecycle
	CacheReader
	CacheWriter
	SnapshotManager
}

var _ StorageBackend = (*Storage)(nil)
