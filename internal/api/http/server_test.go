package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flowmesh/memcache/internal/api/auth"
	"github.com/flowmesh/memcache/internal/api/http/handlers"
	"github.com/flowmesh/memcache/internal/api/http/middleware"
	"github.com/flowmesh/memcache/internal/api/validation"
	"github.com/flowmesh/memcache/internal/metrics"
	"github.com/flowmesh/memcache/internal/storage"
	"github.com/flowmesh/memcache/internal/storage/memory"
	"github.com/flowmesh/memcache/internal/storage/snapshot"
	"github.com/flowmesh/memcache/internal/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_StartStop(t *testing.T) {
	storageBackend := newMockStorageBackend(true)

	// :0 picks a free port
	server := NewServer("127.0.0.1:0", storageBackend)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := server.Start(ctx)
	require.NoError(t, err)
	assert.True(t, server.Ready())
	assert.NotEqual(t, "127.0.0.1:0", server.Addr())

	resp, err := http.Get("http://" + server.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	err = server.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, server.Ready())
	require.NoError(t, server.Stop(ctx))
}

func TestHealthCheck(t *testing.T) {
	router := NewRouter(newMockStorageBackend(true))

	w := serve(router, "GET", "/health", "", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestReadinessCheck(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		router := NewRouter(newMockStorageBackend(true))

		w := serve(router, "GET", "/ready", "", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ready")
	})

	t.Run("not ready", func(t *testing.T) {
		router := NewRouter(newMockStorageBackend(false))

		w := serve(router, "GET", "/ready", "", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "not ready")
	})
}

func TestRequestIDPropagated(t *testing.T) {
	router := NewRouter(newMockStorageBackend(true))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get(middleware.RequestIDHeader))
}

func TestCacheRoutes(t *testing.T) {
	backend := newMockStorageBackend(true)
	router := NewRouter(backend)

	w := serve(router, "PUT", "/api/v1/cache/keys/user/1", `{"value":{"name":"ada"}}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var set handlers.ValueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &set))
	assert.Equal(t, "user/1", set.Key)
	assert.JSONEq(t, `{"name":"ada"}`, string(set.Value))

	w = serve(router, "GET", "/api/v1/cache/keys/user/1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec handlers.RecordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.JSONEq(t, `{"name":"ada"}`, string(rec.Value))
	assert.Zero(t, rec.Time)

	w = serve(router, "PUT", "/api/v1/cache/keys/b?ttl=30s", `{"value":2}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	r, ok := backend.cache.Get("b")
	require.True(t, ok)
	assert.Equal(t, int64(30000), r.Alive)
	assert.Greater(t, r.Time, time.Now().UnixMilli())

	w = serve(router, "GET", "/api/v1/cache/keys", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var keys handlers.KeysResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keys))
	assert.Equal(t, []string{"b", "user/1"}, keys.Keys)
	assert.Equal(t, 2, keys.Count)

	w = serve(router, "DELETE", "/api/v1/cache/keys/user/1", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ada")

	w = serve(router, "GET", "/api/v1/cache/keys/user/1", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"error"`)

	w = serve(router, "DELETE", "/api/v1/cache/keys/user/1", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, "DELETE", "/api/v1/cache", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, backend.cache.Len())
}

func TestCacheRoutes_BadRequests(t *testing.T) {
	router := NewRouter(newMockStorageBackend(true))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"empty body", "PUT", "/api/v1/cache/keys/a", "", http.StatusBadRequest},
		{"invalid json", "PUT", "/api/v1/cache/keys/a", `{"value":`, http.StatusBadRequest},
		{"missing value", "PUT", "/api/v1/cache/keys/a", `{}`, http.StatusBadRequest},
		{"expires with ttl", "PUT", "/api/v1/cache/keys/a", `{"value":1,"expires":10,"ttl_ms":10}`, http.StatusBadRequest},
		{"negative ttl_ms", "PUT", "/api/v1/cache/keys/a", `{"value":1,"ttl_ms":-1}`, http.StatusBadRequest},
		{"bad ttl query", "PUT", "/api/v1/cache/keys/a?ttl=soon", `{"value":1}`, http.StatusBadRequest},
		{"unknown route", "GET", "/api/v1/cache/unknown", "", http.StatusNotFound},
		{"ttl_ms beyond max", "PUT", "/api/v1/cache/keys/a", `{"value":1,"ttl_ms":` + jsonInt(validation.MaxTTL.Milliseconds()+1) + `}`, http.StatusBadRequest},
		{"ttl_ms wraps duration", "PUT", "/api/v1/cache/keys/a", `{"value":1,"ttl_ms":` + jsonInt(1<<58+60_000) + `}`, http.StatusBadRequest},
		{"non-canonical key", "PUT", "/api/v1/cache/keys/a//b", `{"value":1}`, http.StatusMovedPermanently},
		{"unknown api", "GET", "/api/v1/other", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, tt.path, tt.body, "")
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestCacheRoutes_MethodNotAllowed(t *testing.T) {
	router := NewRouter(newMockStorageBackend(true))

	tests := []struct {
		method string
		path   string
		allow  string
	}{
		{"POST", "/api/v1/cache/keys/x", "DELETE, GET, PUT"},
		{"DELETE", "/api/v1/cache/keys", "GET"},
		{"GET", "/api/v1/cache", "DELETE"},
		{"POST", "/api/v1/cache/snapshot", "GET, PUT"},
		{"GET", "/api/v1/cache/checkpoint", "POST"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(router, tt.method, tt.path, "", "")
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code, w.Body.String())
			assert.Equal(t, tt.allow, w.Header().Get("Allow"))
			assert.Contains(t, w.Body.String(), "method not allowed")
		})
	}
}

func TestCacheRoutes_LargeExpiresStaysLive(t *testing.T) {
	router := NewRouter(newMockStorageBackend(true))

	far := time.Date(2500, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	w := serve(router, "PUT", "/api/v1/cache/keys/far", `{"value":1,"expires":`+jsonInt(far)+`}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	time.Sleep(50 * time.Millisecond)

	w = serve(router, "GET", "/api/v1/cache/keys/far", "", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSnapshotRoutes(t *testing.T) {
	backend := newMockStorageBackend(true)
	router := NewRouter(backend)

	future := test.Deadline(time.Hour)
	body := `{"live":{"value":"x","time":` + jsonInt(future) + `,"alive":3600000},"stale":{"value":"y","time":1}}`

	w := serve(router, "PUT", "/api/v1/cache/snapshot", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var imported handlers.ImportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &imported))
	assert.Equal(t, 1, imported.Restored)
	assert.Equal(t, 1, imported.Dropped)

	w = serve(router, "GET", "/api/v1/cache/snapshot", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var exported map[string]snapshot.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exported))
	require.Contains(t, exported, "live")
	assert.Equal(t, future, exported["live"].Time)
	assert.NotContains(t, exported, "stale")

	w = serve(router, "PUT", "/api/v1/cache/snapshot", `{"bad":{"time":5}}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckpointRoute(t *testing.T) {
	backend := newMockStorageBackend(true)
	router := NewRouter(backend)

	w := serve(router, "POST", "/api/v1/cache/checkpoint", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, backend.checkpoints)

	backend.ready = false
	w = serve(router, "POST", "/api/v1/cache/checkpoint", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAuth(t *testing.T) {
	tokens := auth.NewInMemoryTokenStore()
	tokens.AddToken("reader", "reader", []auth.Permission{auth.PermissionCacheRead}, 0)
	tokens.AddToken("writer", "writer", []auth.Permission{auth.PermissionCacheWrite}, 0)
	tokens.AddToken("admin", "admin", []auth.Permission{auth.PermissionCacheAdmin}, 0)
	tokens.AddToken("expired", "expired", []auth.Permission{auth.PermissionCacheAdmin}, 1)

	collector := metrics.NewCollector()
	router := NewRouter(newMockStorageBackend(true), WithAuth(tokens), WithMetrics(collector, metrics.NewAPIMetrics(collector)))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		token  string
		want   int
	}{
		{"health is open", "GET", "/health", "", "", http.StatusOK},
		{"metrics is open", "GET", "/metrics", "", "", http.StatusOK},
		{"missing token", "GET", "/api/v1/cache/keys", "", "", http.StatusUnauthorized},
		{"unknown token", "GET", "/api/v1/cache/keys", "", "nope", http.StatusUnauthorized},
		{"expired token", "GET", "/api/v1/cache/keys", "", "expired", http.StatusUnauthorized},
		{"reader lists", "GET", "/api/v1/cache/keys", "", "reader", http.StatusOK},
		{"reader cannot write", "PUT", "/api/v1/cache/keys/a", `{"value":1}`, "reader", http.StatusForbidden},
		{"writer writes", "PUT", "/api/v1/cache/keys/a", `{"value":1}`, "writer", http.StatusOK},
		{"writer reads", "GET", "/api/v1/cache/keys/a", "", "writer", http.StatusOK},
		{"writer cannot clear", "DELETE", "/api/v1/cache", "", "writer", http.StatusForbidden},
		{"admin clears", "DELETE", "/api/v1/cache", "", "admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(router, tt.method, tt.path, tt.body, tt.token)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusUnauthorized || tt.want == http.StatusForbidden {
				assert.Contains(t, w.Body.String(), `"status":"error"`)
			}
		})
	}

	w := serve(router, "GET", "/metrics", "", "")
	assert.Contains(t, w.Body.String(), metrics.MetricAuthFailuresTotal)
	assert.Contains(t, w.Body.String(), metrics.MetricAPIRequestsTotal)
	assert.Contains(t, w.Body.String(), `endpoint="/api/v1/cache/keys/{key}"`)
}

func TestRecoveryMiddleware(t *testing.T) {
	backend := newMockStorageBackend(true)
	backend.panicOnKeys = true
	router := NewRouter(backend)

	w := serve(router, "GET", "/api/v1/cache/keys", "", "")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
	assert.Contains(t, w.Body.String(), `"request_id":"`+w.Header().Get(middleware.RequestIDHeader)+`"`)
}

func serve(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// mockStorageBackend is a mock implementation of StorageBackend for testing
type mockStorageBackend struct {
	ready       bool
	cache       *memory.Store[json.RawMessage]
	checkpoints int
	panicOnKeys bool
}

var _ storage.StorageBackend = (*mockStorageBackend)(nil)

func newMockStorageBackend(ready bool) *mockStorageBackend {
	return &mockStorageBackend{
		ready: ready,
		cache: memory.New[json.RawMessage](0),
	}
}

func (m *mockStorageBackend) Start(ctx context.Context) error { return nil }

func (m *mockStorageBackend) Stop(ctx context.Context) error {
	m.cache.Clear()
	return nil
}

func (m *mockStorageBackend) Ready() bool { return m.ready }

func (m *mockStorageBackend) Get(ctx context.Context, key string) (memory.Record[json.RawMessage], bool) {
	return m.cache.Get(key)
}

func (m *mockStorageBackend) Keys(ctx context.Context) []string {
	if m.panicOnKeys {
		panic("keys exploded")
	}
	return m.cache.Keys()
}

func (m *mockStorageBackend) Set(ctx context.Context, key string, value json.RawMessage, expires int64) json.RawMessage {
	return m.cache.Set(key, value, expires)
}

func (m *mockStorageBackend) SetTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) json.RawMessage {
	return m.cache.SetTTL(key, value, ttl)
}

func (m *mockStorageBackend) Remove(ctx context.Context, key string) (json.RawMessage, bool) {
	return m.cache.Remove(key)
}

func (m *mockStorageBackend) Clear(ctx context.Context) { m.cache.Clear() }

func (m *mockStorageBackend) Export(ctx context.Context) map[string]snapshot.Entry {
	return snapshot.FromRecords(m.cache.Copy())
}

func (m *mockStorageBackend) Import(ctx context.Context, entries map[string]snapshot.Entry) int {
	return m.cache.ResetCache(snapshot.ToRecords(entries))
}

func (m *mockStorageBackend) Checkpoint(ctx context.Context) error {
	if !m.ready {
		return storage.ErrNotReady
	}
	m.checkpoints++
	return nil
}
