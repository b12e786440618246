package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/flowmesh/memcache/api/proto/cachepb"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Record is a cached value with its expiry
type Record struct {
	Key   string
	Value json.RawMessage
	// Time is the epoch-millisecond deadline, 0 when the record never expires
	Time int64
	// Alive is the lifetime in milliseconds the record was stored with
	Alive int64
}

// ExpiresAt returns the deadline and whether the record expires at all
func (r Record) ExpiresAt() (time.Time, bool) {
	if r.Time <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(r.Time), true
}

// Get returns the record stored under key. A missing key is ErrNotFound.
func (c *Client) Get(ctx context.Context, key string) (Record, error) {
	resp, err := c.cacheClient.Get(c.outgoing(ctx), wrapperspb.String(key))
	if err != nil {
		return Record{}, wrapError(err, "get")
	}

	fields := resp.GetFields()
	value, err := cachepb.ValueToJSON(fields[cachepb.FieldValue])
	if err != nil {
		return Record{}, fmt.Errorf("get: %w", err)
	}

	return Record{
		Key:   fields[cachepb.FieldKey].GetStringValue(),
		Value: value,
		Time:  int64(fields[cachepb.FieldTime].GetNumberValue()),
		Alive: int64(fields[cachepb.FieldAlive].GetNumberValue()),
	}, nil
}

// Set stores value, a JSON document, under key. expires is in milliseconds:
// an epoch deadline when it lies in the future, otherwise a lifetime; zero
// uses the server default.
func (c *Client) Set(ctx context.Context, key string, value json.RawMessage, expires int64) (json.RawMessage, error) {
	fields := map[string]*structpb.Value{}
	if expires > 0 {
		fields[cachepb.FieldExpires] = structpb.NewNumberValue(float64(expires))
	}
	return c.set(ctx, key, value, fields)
}

// SetTTL stores value under key for ttl
func (c *Client) SetTTL(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) (json.RawMessage, error) {
	fields := map[string]*structpb.Value{}
	if ttl > 0 {
		ms := ttl.Milliseconds()
		if ms == 0 {
			ms = 1
		}
		fields[cachepb.FieldTTLMs] = structpb.NewNumberValue(float64(ms))
	}
	return c.set(ctx, key, value, fields)
}

func (c *Client) set(ctx context.Context, key string, value json.RawMessage, fields map[string]*structpb.Value) (json.RawMessage, error) {
	v, err := cachepb.ValueFromJSON(value)
	if err != nil {
		return nil, fmt.Errorf("set: invalid JSON value: %w", err)
	}
	fields[cachepb.FieldKey] = structpb.NewStringValue(key)
	fields[cachepb.FieldValue] = v

	resp, err := c.cacheClient.Set(c.outgoing(ctx), &structpb.Struct{Fields: fields})
	if err != nil {
		return nil, wrapError(err, "set")
	}
	return cachepb.ValueToJSON(resp)
}

// Remove deletes key and returns its value. A missing key is ErrNotFound.
func (c *Client) Remove(ctx context.Context, key string) (json.RawMessage, error) {
	resp, err := c.cacheClient.Remove(c.outgoing(ctx), wrapperspb.String(key))
	if err != nil {
		return nil, wrapError(err, "remove")
	}
	return cachepb.ValueToJSON(resp)
}

// Clear removes every record
func (c *Client) Clear(ctx context.Context) error {
	_, err := c.cacheClient.Clear(c.outgoing(ctx), &emptypb.Empty{})
	return wrapError(err, "clear")
}

// Keys lists all keys in ascending order
func (c *Client) Keys(ctx context.Context) ([]string, error) {
	resp, err := c.cacheClient.Keys(c.outgoing(ctx), &emptypb.Empty{})
	if err != nil {
		return nil, wrapError(err, "keys")
	}

	keys := make([]string, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		keys = append(keys, v.GetStringValue())
	}
	return keys, nil
}

// Entry is one record of an exported snapshot
type Entry struct {
	Value json.RawMessage
	Time  int64
	Alive int64
}

// Export returns every record currently cached
func (c *Client) Export(ctx context.Context) (map[string]Entry, error) {
	resp, err := c.cacheClient.Export(c.outgoing(ctx), &emptypb.Empty{})
	if err != nil {
		return nil, wrapError(err, "export")
	}

	entries := make(map[string]Entry, len(resp.GetFields()))
	for key, v := range resp.GetFields() {
		value, at, alive, err := cachepb.EntryFromValue(v)
		if err != nil {
			return nil, fmt.Errorf("export: entry %q: %w", key, err)
		}
		entries[key] = Entry{Value: value, Time: at, Alive: alive}
	}
	return entries, nil
}

// Import restores entries whose Time lies in the future. The server rejects
// the whole request if any entry is malformed.
func (c *Client) Import(ctx context.Context, entries map[string]Entry) (restored, dropped int, err error) {
	fields := make(map[string]*structpb.Value, len(entries))
	for key, e := range entries {
		v, err := cachepb.EntryToValue(e.Value, e.Time, e.Alive)
		if err != nil {
			return 0, 0, fmt.Errorf("import: entry %q: %w", key, err)
		}
		fields[key] = v
	}

	resp, err := c.cacheClient.Import(c.outgoing(ctx), &structpb.Struct{Fields: fields})
	if err != nil {
		return 0, 0, wrapError(err, "import")
	}

	counts := resp.GetFields()
	return int(counts[cachepb.FieldRestored].GetNumberValue()), int(counts[cachepb.FieldDropped].GetNumberValue()), nil
}

// Checkpoint asks the server to persist its cache now
func (c *Client) Checkpoint(ctx context.Context) error {
	_, err := c.cacheClient.Checkpoint(c.outgoing(ctx), &emptypb.Empty{})
	return wrapError(err, "checkpoint")
}
