package storage

import (
	"time"

	"github.com/flowmesh/memcache/internal/storage/snapshot"
)

// DefaultCheckpointInterval is how often to save checkpoints
const DefaultCheckpointInterval = 30 * time.Second

// Config holds configuration for the storage system
type Config struct {
	// DataDir is the base directory for storage
	DataDir string

	// DefaultAliveSeconds is the default record lifetime (0 = no expiry)
	DefaultAliveSeconds int

	// SnapshotBackend selects the snapshot store ("pebble", "file", "none")
	SnapshotBackend string

	// CheckpointInterval is the interval between snapshots (0 = only on stop)
	CheckpointInterval time.Duration

	// RestoreUnexpiring restores snapshot entries that carry no expiry
	RestoreUnexpiring bool
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:             "./data",
		DefaultAliveSeconds: 0,
		SnapshotBackend:     snapshot.BackendPebble,
		CheckpointInterval:  DefaultCheckpointInterval,
		RestoreUnexpiring:   false,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrInvalidConfig{Field: "DataDir", Reason: "cannot be empty"}
	}
	if c.DefaultAliveSeconds < 0 {
		return ErrInvalidConfig{Field: "DefaultAliveSeconds", Reason: "cannot be negative"}
	}
	if c.CheckpointInterval < 0 {
		return ErrInvalidConfig{Field: "CheckpointInterval", Reason: "cannot be negative"}
	}
	switch c.SnapshotBackend {
	case snapshot.BackendPebble, snapshot.BackendFile, snapshot.BackendNone:
	default:
		return ErrInvalidConfig{Field: "SnapshotBackend", Reason: "must be 'pebble', 'file' or 'none'"}
	}
	return nil
}

// ErrInvalidConfig indicates an invalid configuration
type ErrInvalidConfig struct {
	Field  string
	Reason string
}

func (e ErrInvalidConfig) Error() string {
	return "invalid config: " + e.Field + ": " + e.Reason
}
