package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/flowmesh/memcache/internal/storage/snapshot"
	"github.com/flowmesh/memcache/internal/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStorage(t *testing.T, backend string, dataDir string) *Storage {
	t.Helper()

	config := DefaultConfig()
	config.DataDir = dataDir
	config.SnapshotBackend = backend
	config.CheckpointInterval = 0

	s, err := NewBuilder().WithConfig(config).BuildAndStart(context.Background())
	require.NoError(t, err)
	return s
}

type failingStore struct {
	snapshot.NopStore
	loadErr error
	saveErr error
}

func (f failingStore) Load(context.Context) (map[string]snapshot.Entry, error) {
	return nil, f.loadErr
}

func (f failingStore) Save(context.Context, map[string]snapshot.Entry) error {
	return f.saveErr
}

func TestNew(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	assert.NotNil(t, s.Cache())
	assert.NotNil(t, s.Paths())
	assert.Equal(t, snapshot.BackendPebble, s.Config().SnapshotBackend)
	assert.False(t, s.Ready())

	require.NoError(t, s.Stop(context.Background()))
}

func TestStorage_StartStopIdempotent(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t, snapshot.BackendFile, t.TempDir())

	assert.True(t, s.Ready())
	require.NoError(t, s.Start(ctx))

	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Ready())
	require.NoError(t, s.Stop(ctx))

	assert.ErrorIs(t, s.Start(ctx), ErrClosed, "restarting a stopped storage is not supported")
}

func TestStorage_CacheOperations(t *testing.T) {
	ctx := context.Background()
	s := setupTestStorage(t, snapshot.BackendNone, t.TempDir())
	defer s.Stop(ctx)

	got := s.Set(ctx, "b", json.RawMessage(`{"n":1}`), 0)
	assert.JSONEq(t, `{"n":1}`, string(got))
	s.SetTTL(ctx, "a", json.RawMessage(`"x"`), time.Minute)

	rec, ok := s.Get(ctx, "a")
	require.True(t, ok)
	assert.JSONEq(t, `"x"`, string(rec.Value))
	assert.Equal(t, int64(60_000), rec.Alive)

	assert.Equal(t, []string{"a", "b"}, s.Keys(ctx))

	value, ok := s.Remove(ctx, "b")
	require.True(t, ok)
	assert.JSONEq(t, `{"n":1}`, string(value))
	_, ok = s.Remove(ctx, "b")
	assert.False(t, ok)

	s.Clear(ctx)
	assert.Empty(t, s.Keys(ctx))
}

func TestStorage_RestartRestoresLiveKeys(t *testing.T) {
	for _, backend := range []string{snapshot.BackendPebble, snapshot.BackendFile} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			dataDir := t.TempDir()

			s := setupTestStorage(t, backend, dataDir)
			s.Set(ctx, "live", json.RawMessage(`"still here"`), 60_000)
			s.Set(ctx, "short", json.RawMessage(`1`), 30)
			s.Set(ctx, "pinned", json.RawMessage(`true`), 0)
			require.NoError(t, s.Stop(ctx))

			// Let "short" pass its deadline while the process is down
			time.Sleep(60 * time.Millisecond)

			s = setupTestStorage(t, backend, dataDir)
			defer s.Stop(ctx)

			assert.Equal(t, []string{"live"}, s.Keys(ctx))
			rec, ok := s.Get(ctx, "live")
			require.True(t, ok)
			assert.JSONEq(t, `"still here"`, string(rec.Value))
			assert.Greater(t, rec.Time, time.Now().UnixMilli())
		})
	}
}

func TestStorage_RestoreUnexpiring(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()

	s := setupTestStorage(t, snapshot.BackendFile, dataDir)
	s.Set(ctx, "pinned", json.RawMessage(`true`), 0)
	require.NoError(t, s.Stop(ctx))

	config := DefaultConfig()
	config.DataDir = dataDir
	config.SnapshotBackend = snapshot.BackendFile
	config.CheckpointInterval = 0
	config.RestoreUnexpiring = true

	s, err := NewBuilder().WithConfig(config).BuildAndStart(ctx)
	require.NoError(t, err)
	defer s.Stop(ctx)

	rec, ok := s.Get(ctx, "pinned")
	require.True(t, ok)
	assert.Zero(t, rec.Time)
}

func TestStorage_ExportImport(t *testing.T) {
	ctx := context.Background()
	src := setupTestStorage(t, snapshot.BackendNone, t.TempDir())
	defer src.Stop(ctx)

	src.Set(ctx, "a", json.RawMessage(`1`), 60_000)
	src.Set(ctx, "b", json.RawMessage(`2`), 0)

	entries := src.Export(ctx)
	require.Len(t, entries, 2)
	assert.Greater(t, entries["a"].Time, time.Now().UnixMilli())
	assert.Zero(t, entries["b"].Time)

	dst := setupTestStorage(t, snapshot.BackendNone, t.TempDir())
	defer dst.Stop(ctx)

	restored := dst.Import(ctx, entries)
	assert.Equal(t, 1, restored)
	assert.Equal(t, []string{"a"}, dst.Keys(ctx))
}

func TestStorage_LoadFailureStartsCold(t *testing.T) {
	ctx := context.Background()
	s, err := NewBuilder().
		WithDataDir(t.TempDir()).
		WithSnapshotStore(failingStore{loadErr: errors.New("disk on fire")}).
		BuildAndStart(ctx)
	require.NoError(t, err)
	defer s.Stop(ctx)

	assert.True(t, s.Ready())
	assert.Empty(t, s.Keys(ctx))
}

func TestStorage_Checkpoint(t *testing.T) {
	ctx := context.Background()
	dataDir := t.TempDir()

	var hookEntries int
	var hookErr error
	config := DefaultConfig()
	config.DataDir = dataDir
	config.SnapshotBackend = snapshot.BackendFile
	config.CheckpointInterval = 0

	s, err := NewBuilder().
		WithConfig(config).
		WithCheckpointHook(func(entries int, _ time.Duration, err error) {
			hookEntries, hookErr = entries, err
		}).
		Build()
	require.NoError(t, err)

	assert.ErrorIs(t, s.Checkpoint(ctx), ErrNotReady, "checkpoint requires a started storage")

	require.NoError(t, s.Start(ctx))
	defer s.Stop(ctx)

	s.Set(ctx, "k", json.RawMessage(`"v"`), 60_000)
	require.NoError(t, s.Checkpoint(ctx))
	assert.Equal(t, 1, hookEntries)
	assert.NoError(t, hookErr)
	assert.False(t, s.LastCheckpointAt().IsZero())

	test.AssertFileExists(t, snapshot.NewFileStore(s.Paths().SnapshotDir).Path())
}

func TestStorage_CheckpointFailure(t *testing.T) {
	ctx := context.Background()
	s, err := NewBuilder().
		WithDataDir(t.TempDir()).
		WithSnapshotStore(failingStore{saveErr: errors.New("read-only")}).
		BuildAndStart(ctx)
	require.NoError(t, err)

	assert.Error(t, s.Checkpoint(ctx))
	assert.True(t, s.LastCheckpointAt().IsZero())
	assert.Error(t, s.Stop(ctx), "final checkpoint failure is reported")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "empty data dir", mutate: func(c *Config) { c.DataDir = "" }, field: "DataDir"},
		{name: "negative alive", mutate: func(c *Config) { c.DefaultAliveSeconds = -1 }, field: "DefaultAliveSeconds"},
		{name: "negative interval", mutate: func(c *Config) { c.CheckpointInterval = -time.Second }, field: "CheckpointInterval"},
		{name: "unknown backend", mutate: func(c *Config) { c.SnapshotBackend = "redis" }, field: "SnapshotBackend"},
	}

	require.NoError(t, DefaultConfig().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			var invalid ErrInvalidConfig
			require.ErrorAs(t, config.Validate(), &invalid)
			assert.Equal(t, tt.field, invalid.Field)
		})
	}
}
