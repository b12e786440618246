package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/flowmesh/memcache/internal/logger"
	"github.com/rs/zerolog"
)

var (
	entryPrefix = []byte("e/")
	// entryUpper is the exclusive upper bound of the entry keyspace ('/'+1)
	entryUpper  = []byte("e0")
	savedAtKey  = []byte("m/saved_at")
)

// PebbleStore keeps one pebble key per snapshot entry
type PebbleStore struct {
	mu  sync.Mutex
	db  *pebble.DB
	dir string
	log zerolog.Logger
}

// OpenPebble opens (or creates) a pebble snapshot database in dir
func OpenPebble(dir string) (*PebbleStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	opts := &pebble.Options{}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open Pebble DB: %w", err)
	}

	return &PebbleStore{
		db:  db,
		dir: dir,
		log: logger.WithComponent("snapshot"),
	}, nil
}

// Save replaces the previous snapshot in a single synced batch
func (p *PebbleStore) Save(ctx context.Context, entries map[string]Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return ClosedError{}
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	if err := batch.DeleteRange(entryPrefix, entryUpper, nil); err != nil {
		return fmt.Errorf("failed to clear previous snapshot: %w", err)
	}

	for key, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal entry %q: %w", key, err)
		}
		if err := batch.Set(encodeKey(key), data, nil); err != nil {
			return fmt.Errorf("failed to stage entry %q: %w", key, err)
		}
	}

	savedAt := strconv.FormatInt(time.Now().UnixMilli(), 10)
	if err := batch.Set(savedAtKey, []byte(savedAt), nil); err != nil {
		return fmt.Errorf("failed to stage snapshot time: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	p.log.Debug().Int("entries", len(entries)).Msg("Snapshot saved")
	return nil
}

// Load reads every stored entry
func (p *PebbleStore) Load(ctx context.Context) (map[string]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil, ClosedError{}
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: entryPrefix,
		UpperBound: entryUpper,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	raw := make(map[string][]byte)
	for iter.First(); iter.Valid(); iter.Next() {
		valueBytes, err := iter.ValueAndErr()
		if err != nil {
			return nil, fmt.Errorf("failed to read snapshot value: %w", err)
		}

		// Copy value bytes (the iterator reuses its buffers)
		value := make([]byte, len(valueBytes))
		copy(value, valueBytes)
		raw[decodeKey(iter.Key())] = value
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshot: %w", err)
	}

	entries := decodeEntries(raw, func(err error) {
		p.log.Warn().Err(err).Msg("Skipping malformed snapshot entry")
	})
	return entries, nil
}

// SavedAt returns the time of the last successful Save
func (p *PebbleStore) SavedAt() (time.Time, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return time.Time{}, false, ClosedError{}
	}

	value, closer, err := p.db.Get(savedAtKey)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to read snapshot time: %w", err)
	}
	defer closer.Close()

	ms, err := strconv.ParseInt(string(value), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt snapshot time: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

// Close closes the database. Closing twice is a no-op.
func (p *PebbleStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	if err != nil {
		p.log.Error().Err(err).Str("dir", p.dir).Msg("Failed to close Pebble DB")
		return err
	}
	return nil
}

func encodeKey(key string) []byte {
	out := make([]byte, 0, len(entryPrefix)+len(key))
	out = append(out, entryPrefix...)
	return append(out, key...)
}

func decodeKey(encoded []byte) string {
	return string(encoded[len(entryPrefix):])
}
