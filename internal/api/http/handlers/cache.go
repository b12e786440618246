package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flowmesh/memcache/internal/api/validation"
	"github.com/flowmesh/memcache/internal/logger"
	"github.com/flowmesh/memcache/internal/storage"
	"github.com/flowmesh/memcache/internal/storage/snapshot"
	"github.com/rs/zerolog"
)

const (
	// KeysPath is the collection path; single keys live below it
	KeysPath = "/api/v1/cache/keys"

	maxSetBodySize      = 2 * validation.MaxValueSize
	maxSnapshotBodySize = 256 << 20

	errKeyPath = "key is required and cannot contain empty, '.' or '..' segments"
)

// CacheHandlers handles cache-related HTTP requests
type CacheHandlers struct {
	storage storage.StorageBackend
	log     zerolog.Logger
}

// NewCacheHandlers creates new cache handlers
func NewCacheHandlers(storage storage.StorageBackend) *CacheHandlers {
	return &CacheHandlers{
		storage: storage,
		log:     logger.WithComponent("http.cache"),
	}
}

// SetRequest represents a request to store a value
type SetRequest struct {
	Value json.RawMessage `json:"value"`
	// Expires is an absolute epoch-millisecond deadline when it lies in the
	// future, otherwise a relative lifetime in milliseconds
	Expires int64 `json:"expires,omitempty"`
	// TTLMillis is always a relative lifetime in milliseconds
	TTLMillis int64 `json:"ttl_ms,omitempty"`
}

// RecordResponse represents a stored record
type RecordResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	Time  int64           `json:"time,omitempty"`
	Alive int64           `json:"alive,omitempty"`
}

// ValueResponse represents the value returned by set and remove
type ValueResponse struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// KeysResponse represents the key listing
type KeysResponse struct {
	Keys  []string `json:"keys"`
	Count int      `json:"count"`
}

// ImportResponse represents the outcome of a snapshot import
type ImportResponse struct {
	Restored int `json:"restored"`
	Dropped  int `json:"dropped"`
}

// CheckpointResponse represents a forced checkpoint
type CheckpointResponse struct {
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
}

// KeyFromPath extracts the key from /api/v1/cache/keys/{key}. Keys may
// contain slashes, but not empty, "." or ".." segments: ServeMux rewrites
// such paths, so those keys are only reachable over gRPC.
func KeyFromPath(path string) (string, bool) {
	key, ok := strings.CutPrefix(path, KeysPath+"/")
	if !ok || key == "" {
		return "", false
	}
	for _, segment := range strings.Split(key, "/") {
		switch segment {
		case "", ".", "..":
			return "", false
		}
	}
	return key, true
}

// Get handles GET /api/v1/cache/keys/{key}
func (h *CacheHandlers) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := KeyFromPath(r.URL.Path)
	if !ok {
		writeMessage(w, http.StatusBadRequest, errKeyPath)
		return
	}
	if err := validation.ValidateKey(key); err != nil {
		writeError(w, err)
		return
	}

	rec, found := h.storage.Get(r.Context(), key)
	if !found {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("key not found: %s", key))
		return
	}

	writeJSON(w, http.StatusOK, RecordResponse{
		Key:   key,
		Value: rec.Value,
		Time:  rec.Time,
		Alive: rec.Alive,
	})
}

// Set handles PUT /api/v1/cache/keys/{key}
func (h *CacheHandlers) Set(w http.ResponseWriter, r *http.Request) {
	key, ok := KeyFromPath(r.URL.Path)
	if !ok {
		writeMessage(w, http.StatusBadRequest, errKeyPath)
		return
	}

	var req SetRequest
	if err := decodeBody(w, r, maxSetBodySize, &req); err != nil {
		writeError(w, err)
		return
	}

	ttl, err := validation.TTLFromMillis("ttl_ms", req.TTLMillis)
	if err != nil {
		writeError(w, err)
		return
	}
	if raw := r.URL.Query().Get("ttl"); raw != "" && ttl == 0 {
		parsed, err := parseTTL(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		ttl = parsed
	}

	if err := validation.ValidateSetRequest(key, req.Value, req.Expires, ttl); err != nil {
		writeError(w, err)
		return
	}

	var stored json.RawMessage
	if ttl > 0 {
		stored = h.storage.SetTTL(r.Context(), key, req.Value, ttl)
	} else {
		stored = h.storage.Set(r.Context(), key, req.Value, req.Expires)
	}

	writeJSON(w, http.StatusOK, ValueResponse{Key: key, Value: stored})
}

// Remove handles DELETE /api/v1/cache/keys/{key}
func (h *CacheHandlers) Remove(w http.ResponseWriter, r *http.Request) {
	key, ok := KeyFromPath(r.URL.Path)
	if !ok {
		writeMessage(w, http.StatusBadRequest, errKeyPath)
		return
	}
	if err := validation.ValidateKey(key); err != nil {
		writeError(w, err)
		return
	}

	value, found := h.storage.Remove(r.Context(), key)
	if !found {
		writeMessage(w, http.StatusNotFound, fmt.Sprintf("key not found: %s", key))
		return
	}

	writeJSON(w, http.StatusOK, ValueResponse{Key: key, Value: value})
}

// Keys handles GET /api/v1/cache/keys
func (h *CacheHandlers) Keys(w http.ResponseWriter, r *http.Request) {
	keys := h.storage.Keys(r.Context())
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, KeysResponse{Keys: keys, Count: len(keys)})
}

// Clear handles DELETE /api/v1/cache
func (h *CacheHandlers) Clear(w http.ResponseWriter, r *http.Request) {
	h.storage.Clear(r.Context())
	h.log.Info().Msg("Cache cleared via API")
	writeJSON(w, http.StatusOK, StatusResponse{Status: "success", Message: "cache cleared"})
}

// ExportSnapshot handles GET /api/v1/cache/snapshot
func (h *CacheHandlers) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.storage.Export(r.Context()))
}

// ImportSnapshot handles PUT /api/v1/cache/snapshot. Every entry is
// validated before any is applied.
func (h *CacheHandlers) ImportSnapshot(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := decodeBody(w, r, maxSnapshotBodySize, &raw); err != nil {
		writeError(w, err)
		return
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	if err := validation.ValidateSnapshotKeys(keys); err != nil {
		writeError(w, err)
		return
	}

	entries := make(map[string]snapshot.Entry, len(raw))
	for key, data := range raw {
		entry, err := snapshot.DecodeEntry(key, data)
		if err != nil {
			writeError(w, validation.Wrap("snapshot", err))
			return
		}
		entries[key] = entry
	}

	restored := h.storage.Import(r.Context(), entries)
	writeJSON(w, http.StatusOK, ImportResponse{
		Restored: restored,
		Dropped:  len(entries) - restored,
	})
}

// Checkpoint handles POST /api/v1/cache/checkpoint
func (h *CacheHandlers) Checkpoint(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Checkpoint(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("Checkpoint via API failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckpointResponse{
		Status:      "success",
		CompletedAt: time.Now().UTC(),
	})
}

// decodeBody decodes a size-limited JSON body into v
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return validation.ValidationError{Field: "body", Reason: "cannot be empty"}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return validation.ValidationError{Field: "body", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// parseTTL parses a TTL string (e.g., "30s", "1h")
func parseTTL(s string) (time.Duration, error) {
	ttl, err := time.ParseDuration(s)
	if err != nil {
		return 0, validation.ValidationError{Field: "ttl", Reason: fmt.Sprintf("invalid duration: %v", err)}
	}
	if err := validation.ValidateTTL(ttl); err != nil {
		return 0, err
	}
	if ttl == 0 {
		return 0, validation.ValidationError{Field: "ttl", Reason: "must be positive"}
	}
	return ttl, nil
}
