package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/flowmesh/memcache/internal/metrics"
	"github.com/flowmesh/memcache/internal/storage"
	"github.com/flowmesh/memcache/internal/storage/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()

	config := storage.DefaultConfig()
	config.DataDir = t.TempDir()
	config.SnapshotBackend = snapshot.BackendFile
	config.CheckpointInterval = 0

	s, err := storage.NewBuilder().WithConfig(config).Build()
	require.NoError(t, err)
	return s
}

func TestServer_Lifecycle(t *testing.T) {
	store := newTestStorage(t)
	s, err := NewServer(Config{
		GRPCAddr:  "127.0.0.1:0",
		HTTPAddr:  "127.0.0.1:0",
		Collector: metrics.NewCollector(),
	}, store)
	require.NoError(t, err)
	assert.Nil(t, s.TokenStore())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.Ready())
	assert.True(t, store.Ready())

	base := "http://" + s.HTTPAddr()
	req, err := http.NewRequest(http.MethodPut, base+"/api/v1/cache/keys/a", strings.NewReader(`{"value":1}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), metrics.MetricAPIRequestsTotal)

	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Ready())
	assert.False(t, store.Ready())
	require.NoError(t, s.Stop(ctx))
}

func TestServer_AuthTokens(t *testing.T) {
	t.Run("configured", func(t *testing.T) {
		s, err := NewServer(Config{
			GRPCAddr:    "127.0.0.1:0",
			HTTPAddr:    "127.0.0.1:0",
			AuthEnabled: true,
			AuthTokens:  []string{"secret:read"},
		}, newTestStorage(t))
		require.NoError(t, err)

		_, err = s.TokenStore().ValidateToken("secret")
		assert.NoError(t, err)
	})

	t.Run("development token", func(t *testing.T) {
		s, err := NewServer(Config{
			GRPCAddr:    "127.0.0.1:0",
			HTTPAddr:    "127.0.0.1:0",
			AuthEnabled: true,
		}, newTestStorage(t))
		require.NoError(t, err)
		require.NotNil(t, s.TokenStore())
	})

	t.Run("invalid spec", func(t *testing.T) {
		_, err := NewServer(Config{
			AuthEnabled: true,
			AuthTokens:  []string{"secret:everything"},
		}, newTestStorage(t))
		assert.Error(t, err)
	})
}
