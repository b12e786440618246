package snapshot

import (
	"context"
	"encoding/json"

	"github.com/flowmesh/memcache/internal/storage/memory"
)

const (
	// BackendPebble stores one key per entry in a pebble database
	BackendPebble = "pebble"
	// BackendFile stores the whole snapshot as a single JSON document
	BackendFile = "file"
	// BackendNone disables persistence
	BackendNone = "none"
)

// Entry is the persisted form of a cache record
type Entry struct {
	Value json.RawMessage `json:"value"`
	Time  int64           `json:"time,omitempty"`
	Alive int64           `json:"alive,omitempty"`
}

// Store persists cache snapshots
type Store interface {
	// Save replaces the stored snapshot with entries
	Save(ctx context.Context, entries map[string]Entry) error

	// Load returns the stored snapshot. Malformed entries are skipped.
	Load(ctx context.Context) (map[string]Entry, error)

	// Close releases the backend
	Close() error
}

// FromRecords converts store records into snapshot entries
func FromRecords(records memory.Snapshot[json.RawMessage]) map[string]Entry {
	entries := make(map[string]Entry, len(records))
	for key, rec := range records {
		if rec == nil {
			continue
		}
		entries[key] = Entry{Value: rec.Value, Time: rec.Time, Alive: rec.Alive}
	}
	return entries
}

// ToRecords converts snapshot entries into store records
func ToRecords(entries map[string]Entry) memory.Snapshot[json.RawMessage] {
	records := make(memory.Snapshot[json.RawMessage], len(entries))
	for key, e := range entries {
		records[key] = &memory.Record[json.RawMessage]{Value: e.Value, Time: e.Time, Alive: e.Alive}
	}
	return records
}
