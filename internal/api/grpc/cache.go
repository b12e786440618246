package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowmesh/memcache/api/proto/cachepb"
	"github.com/flowmesh/memcache/internal/api/validation"
	"github.com/flowmesh/memcache/internal/storage"
	"github.com/flowmesh/memcache/internal/storage/snapshot"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// CacheService implements memcache.v1.CacheService
type CacheService struct {
	cachepb.UnimplementedCacheServiceServer
	storage storage.StorageBackend
}

// NewCacheService creates a new cache service
func NewCacheService(storage storage.StorageBackend) *CacheService {
	return &CacheService{
		storage: storage,
	}
}

// Get returns the record stored under the requested key
func (s *CacheService) Get(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	key := req.GetValue()
	if err := validation.ValidateKey(key); err != nil {
		return nil, err
	}

	rec, found := s.storage.Get(ctx, key)
	if !found {
		return nil, status.Errorf(codes.NotFound, "key not found: %s", key)
	}

	value, err := cachepb.ValueFromJSON(rec.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value of %s: %w", key, err)
	}

	return &structpb.Struct{Fields: map[string]*structpb.Value{
		cachepb.FieldKey:   structpb.NewStringValue(key),
		cachepb.FieldValue: value,
		cachepb.FieldTime:  structpb.NewNumberValue(float64(rec.Time)),
		cachepb.FieldAlive: structpb.NewNumberValue(float64(rec.Alive)),
	}}, nil
}

// Set stores a value. expires keeps its absolute-or-relative meaning;
// ttl_ms is always relative.
func (s *CacheService) Set(ctx context.Context, req *structpb.Struct) (*structpb.Value, error) {
	fields := req.GetFields()

	key := fields[cachepb.FieldKey].GetStringValue()

	raw, err := cachepb.ValueToJSON(fields[cachepb.FieldValue])
	if err != nil {
		return nil, validation.Wrap(cachepb.FieldValue, err)
	}

	expires, ok := cachepb.IntField(req, cachepb.FieldExpires)
	if !ok {
		return nil, validation.ValidationError{Field: cachepb.FieldExpires, Reason: "must be an integer"}
	}
	ttlMs, ok := cachepb.IntField(req, cachepb.FieldTTLMs)
	if !ok {
		return nil, validation.ValidationError{Field: cachepb.FieldTTLMs, Reason: "must be an integer"}
	}
	ttl, err := validation.TTLFromMillis(cachepb.FieldTTLMs, ttlMs)
	if err != nil {
		return nil, err
	}

	if err := validation.ValidateSetRequest(key, raw, expires, ttl); err != nil {
		return nil, err
	}

	var stored json.RawMessage
	if ttl > 0 {
		stored = s.storage.SetTTL(ctx, key, raw, ttl)
	} else {
		stored = s.storage.Set(ctx, key, raw, expires)
	}

	return cachepb.ValueFromJSON(stored)
}

// Remove deletes the requested key and returns its value
func (s *CacheService) Remove(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Value, error) {
	key := req.GetValue()
	if err := validation.ValidateKey(key); err != nil {
		return nil, err
	}

	value, found := s.storage.Remove(ctx, key)
	if !found {
		return nil, status.Errorf(codes.NotFound, "key not found: %s", key)
	}

	return cachepb.ValueFromJSON(value)
}

// Clear removes every record
func (s *CacheService) Clear(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	s.storage.Clear(ctx)
	return &emptypb.Empty{}, nil
}

// Keys lists all keys in ascending order
func (s *CacheService) Keys(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	keys := s.storage.Keys(ctx)

	values := make([]*structpb.Value, len(keys))
	for i, key := range keys {
		values[i] = structpb.NewStringValue(key)
	}
	return &structpb.ListValue{Values: values}, nil
}

// Export returns every record as key -> {value, time, alive}
func (s *CacheService) Export(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	entries := s.storage.Export(ctx)

	fields := make(map[string]*structpb.Value, len(entries))
	for key, entry := range entries {
		v, err := cachepb.EntryToValue(entry.Value, entry.Time, entry.Alive)
		if err != nil {
			return nil, fmt.Errorf("failed to encode entry %s: %w", key, err)
		}
		fields[key] = v
	}
	return &structpb.Struct{Fields: fields}, nil
}

// Import restores a snapshot. Every entry is validated before any is applied.
func (s *CacheService) Import(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	if err := validation.ValidateSnapshotKeys(keys); err != nil {
		return nil, err
	}

	entries := make(map[string]snapshot.Entry, len(fields))
	for key, v := range fields {
		data, err := protojson.Marshal(v)
		if err != nil {
			return nil, validation.Wrap("snapshot", err)
		}
		entry, err := snapshot.DecodeEntry(key, data)
		if err != nil {
			return nil, validation.Wrap("snapshot", err)
		}
		entries[key] = entry
	}

	restored := s.storage.Import(ctx, entries)
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		cachepb.FieldRestored: structpb.NewNumberValue(float64(restored)),
		cachepb.FieldDropped:  structpb.NewNumberValue(float64(len(entries) - restored)),
	}}, nil
}

// Checkpoint persists the cache to the snapshot backend
func (s *CacheService) Checkpoint(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.storage.Checkpoint(ctx); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}
