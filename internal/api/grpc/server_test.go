package grpc

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/flowmesh/memcache/api/proto/cachepb"
	"github.com/flowmesh/memcache/internal/api/auth"
	"github.com/flowmesh/memcache/internal/api/validation"
	"github.com/flowmesh/memcache/internal/metrics"
	"github.com/flowmesh/memcache/internal/storage"
	"github.com/flowmesh/memcache/internal/storage/memory"
	"github.com/flowmesh/memcache/internal/storage/snapshot"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// startTestServer serves s over an in-process listener and returns a
// connection to it
func startTestServer(t *testing.T, s *Server) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	require.NoError(t, s.Serve(context.Background(), lis))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func withToken(token string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", newMockStorageBackend(true))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.Ready())
	assert.NotEqual(t, "127.0.0.1:0", s.Addr())

	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Ready())
	require.NoError(t, s.Stop(ctx))
}

func TestHealth(t *testing.T) {
	t.Run("serving", func(t *testing.T) {
		conn := startTestServer(t, NewServer("bufnet", newMockStorageBackend(true)))
		client := healthpb.NewHealthClient(conn)

		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

		resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: cachepb.ServiceName})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
	})

	t.Run("storage not ready", func(t *testing.T) {
		conn := startTestServer(t, NewServer("bufnet", newMockStorageBackend(false)))

		resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
		require.NoError(t, err)
		assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
	})
}

func TestCacheService(t *testing.T) {
	backend := newMockStorageBackend(true)
	conn := startTestServer(t, NewServer("bufnet", backend))
	client := cachepb.NewCacheServiceClient(conn)
	ctx := context.Background()

	req, err := structpb.NewStruct(map[string]interface{}{
		"key":   "user",
		"value": map[string]interface{}{"name": "ada", "age": 36},
	})
	require.NoError(t, err)

	stored, err := client.Set(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "ada", stored.GetStructValue().GetFields()["name"].GetStringValue())

	rec, err := client.Get(ctx, wrapperspb.String("user"))
	require.NoError(t, err)
	assert.Equal(t, "user", rec.Fields[cachepb.FieldKey].GetStringValue())
	assert.Equal(t, float64(36), rec.Fields[cachepb.FieldValue].GetStructValue().Fields["age"].GetNumberValue())
	assert.Zero(t, rec.Fields[cachepb.FieldTime].GetNumberValue())

	req, err = structpb.NewStruct(map[string]interface{}{
		"key":    "short",
		"value":  "x",
		"ttl_ms": 60000,
	})
	require.NoError(t, err)
	_, err = client.Set(ctx, req)
	require.NoError(t, err)

	r, ok := backend.cache.Get("short")
	require.True(t, ok)
	assert.Equal(t, int64(60000), r.Alive)

	keys, err := client.Keys(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	require.Len(t, keys.Values, 2)
	assert.Equal(t, "short", keys.Values[0].GetStringValue())
	assert.Equal(t, "user", keys.Values[1].GetStringValue())

	removed, err := client.Remove(ctx, wrapperspb.String("short"))
	require.NoError(t, err)
	assert.Equal(t, "x", removed.GetStringValue())

	_, err = client.Remove(ctx, wrapperspb.String("short"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.Get(ctx, wrapperspb.String("short"))
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = client.Clear(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Zero(t, backend.cache.Len())
}

func TestCacheService_Snapshot(t *testing.T) {
	backend := newMockStorageBackend(true)
	conn := startTestServer(t, NewServer("bufnet", backend))
	client := cachepb.NewCacheServiceClient(conn)
	ctx := context.Background()

	future := time.Now().Add(time.Hour).UnixMilli()
	req, err := structpb.NewStruct(map[string]interface{}{
		"live":  map[string]interface{}{"value": map[string]interface{}{"n": 1}, "time": float64(future), "alive": 3_600_000},
		"stale": map[string]interface{}{"value": "y", "time": 1},
		"plain": map[string]interface{}{"value": nil},
	})
	require.NoError(t, err)

	resp, err := client.Import(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, float64(1), resp.Fields[cachepb.FieldRestored].GetNumberValue())
	assert.Equal(t, float64(2), resp.Fields[cachepb.FieldDropped].GetNumberValue())

	exported, err := client.Export(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	require.Len(t, exported.Fields, 1)

	value, at, alive, err := cachepb.EntryFromValue(exported.Fields["live"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(value))
	assert.Equal(t, future, at)
	assert.Equal(t, int64(3_600_000), alive)

	bad, err := structpb.NewStruct(map[string]interface{}{
		"ok":  map[string]interface{}{"value": 1},
		"bad": map[string]interface{}{"time": 5},
	})
	require.NoError(t, err)
	_, err = client.Import(ctx, bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, ok := backend.cache.Get("ok")
	assert.False(t, ok, "invalid import applies nothing")

	_, err = client.Checkpoint(ctx, &emptypb.Empty{})
	require.NoError(t, err)
	assert.Equal(t, 1, backend.checkpoints)

	backend.checkpointErr = storage.ErrNotReady
	_, err = client.Checkpoint(ctx, &emptypb.Empty{})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestCacheService_InvalidArguments(t *testing.T) {
	conn := startTestServer(t, NewServer("bufnet", newMockStorageBackend(true)))
	client := cachepb.NewCacheServiceClient(conn)
	ctx := context.Background()

	tests := []struct {
		name   string
		fields map[string]interface{}
	}{
		{"missing key", map[string]interface{}{"value": 1}},
		{"missing value", map[string]interface{}{"key": "a"}},
		{"fractional expires", map[string]interface{}{"key": "a", "value": 1, "expires": 1.5}},
		{"negative ttl", map[string]interface{}{"key": "a", "value": 1, "ttl_ms": -5}},
		{"expires with ttl", map[string]interface{}{"key": "a", "value": 1, "expires": 10, "ttl_ms": 10}},
		{"ttl beyond max", map[string]interface{}{"key": "a", "value": 1, "ttl_ms": float64(validation.MaxTTL.Milliseconds() + 1)}},
		{"ttl wraps duration", map[string]interface{}{"key": "a", "value": 1, "ttl_ms": float64(1<<58 + 60_032)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)

			_, err = client.Set(ctx, req)
			assert.Equal(t, codes.InvalidArgument, status.Code(err), err)
		})
	}

	_, err := client.Get(ctx, wrapperspb.String(""))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCacheService_FarFutureExpires(t *testing.T) {
	backend := newMockStorageBackend(true)
	conn := startTestServer(t, NewServer("bufnet", backend))
	client := cachepb.NewCacheServiceClient(conn)

	far := time.Date(2500, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	req, err := structpb.NewStruct(map[string]interface{}{"key": "far", "value": "v", "expires": float64(far)})
	require.NoError(t, err)
	_, err = client.Set(context.Background(), req)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	rec, err := client.Get(context.Background(), wrapperspb.String("far"))
	require.NoError(t, err)
	assert.Equal(t, float64(far), rec.GetFields()[cachepb.FieldTime].GetNumberValue())
}

func TestAuthInterceptor(t *testing.T) {
	tokens := auth.NewInMemoryTokenStore()
	tokens.AddToken("reader", "reader", []auth.Permission{auth.PermissionCacheRead}, 0)
	tokens.AddToken("admin", "admin", []auth.Permission{auth.PermissionCacheAdmin}, 0)

	collector := metrics.NewCollector()
	apiMetrics := metrics.NewAPIMetrics(collector)
	conn := startTestServer(t, NewServer("bufnet", newMockStorageBackend(true), WithAuth(tokens), WithMetrics(apiMetrics)))
	client := cachepb.NewCacheServiceClient(conn)

	// Health is exempt
	_, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)

	_, err = client.Keys(context.Background(), &emptypb.Empty{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.Keys(withToken("bogus"), &emptypb.Empty{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = client.Keys(withToken("reader"), &emptypb.Empty{})
	require.NoError(t, err)

	_, err = client.Clear(withToken("reader"), &emptypb.Empty{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = client.Clear(withToken("admin"), &emptypb.Empty{})
	require.NoError(t, err)

	_, err = client.Export(withToken("reader"), &emptypb.Empty{})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	_, err = client.Export(withToken("admin"), &emptypb.Empty{})
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(collector.GetRegistry(), metrics.MetricAuthFailuresTotal)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = testutil.GatherAndCount(collector.GetRegistry(), metrics.MetricAPIRequestsTotal)
	require.NoError(t, err)
	assert.Positive(t, n)
}

func TestRecoveryInterceptor(t *testing.T) {
	backend := newMockStorageBackend(true)
	backend.panicOnKeys = true
	conn := startTestServer(t, NewServer("bufnet", backend))

	_, err := cachepb.NewCacheServiceClient(conn).Keys(context.Background(), &emptypb.Empty{})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestConvertToGRPCStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{auth.UnauthorizedError{Reason: "x"}, codes.Unauthenticated},
		{auth.ForbiddenError{Action: "a", Reason: "b"}, codes.PermissionDenied},
		{storage.ErrNotReady, codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{status.Error(codes.NotFound, "gone"), codes.NotFound},
		{assert.AnError, codes.Internal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(convertToGRPCStatus(tt.err)), tt.err.Error())
	}
	assert.NoError(t, convertToGRPCStatus(nil))
}

func TestSplitMethodName(t *testing.T) {
	service, method := splitMethodName(cachepb.CacheService_Get_FullMethodName)
	assert.Equal(t, cachepb.ServiceName, service)
	assert.Equal(t, "Get", method)
}

// mockStorageBackend is a mock implementation of StorageBackend for testing
type mockStorageBackend struct {
	ready         bool
	cache         *memory.Store[json.RawMessage]
	panicOnKeys   bool
	checkpoints   int
	checkpointErr error
}

var _ storage.StorageBackend = (*mockStorageBackend)(nil)

func newMockStorageBackend(ready bool) *mockStorageBackend {
	return &mockStorageBackend{
		ready: ready,
		cache: memory.New[json.RawMessage](0),
	}
}

func (m *mockStorageBackend) Start(ctx context.Context) error { return nil }

func (m *mockStorageBackend) Stop(ctx context.Context) error { return nil }

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
	m.checkpoints++
	return m.checkpointErr
}
