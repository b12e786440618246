package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/flowmesh/memcache/internal/logger"
	"github.com/rs/zerolog"
)

const (
	// DefaultSnapshotFile is the filename used by FileStore
	DefaultSnapshotFile = "snapshot.json"
)

// FileStore keeps the snapshot as a single JSON document
type FileStore struct {
	mu       sync.Mutex
	filePath string
	log      zerolog.Logger
}

// NewFileStore creates a file snapshot store in dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		filePath: filepath.Join(dir, DefaultSnapshotFile),
		log:      logger.WithComponent("snapshot"),
	}
}

// Path returns the snapshot file path
func (f *FileStore) Path() string {
	return f.filePath
}

// Save writes entries to a temporary file and renames it into place
func (f *FileStore) Save(ctx context.Context, entries map[string]Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if entries == nil {
		entries = map[string]Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	// Write to temporary file first, then rename (atomic write)
	tmpFile := f.filePath + ".tmp"
	if err := writeSynced(tmpFile, data); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}

	if err := os.Rename(tmpFile, f.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename snapshot file: %w", err)
	}

	f.log.Debug().Str("file", f.filePath).Int("entries", len(entries)).Msg("Snapshot saved")
	return nil
}

// Load reads the snapshot file. A missing file is an empty snapshot.
func (f *FileStore) Load(ctx context.Context) (map[string]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			f.log.Info().Str("file", f.filePath).Msg("Snapshot file does not exist, starting empty")
			return map[string]Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	raw := make(map[string][]byte, len(doc))
	for key, msg := range doc {
		raw[key] = msg
	}

	return decodeEntries(raw, func(err error) {
		f.log.Warn().Err(err).Str("file", f.filePath).Msg("Skipping malformed snapshot entry")
	}), nil
}

// Close is a no-op
func (f *FileStore) Close() error {
	return nil
}

// writeSynced writes data to path and flushes it to stable storage before
// returning, so a rename over the live file never exposes a partial write.
func writeSynced(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
