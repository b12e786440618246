package memory

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/flowmesh/memcache/internal/logger"
	"github.com/rs/zerolog"
)

// maxDelayMillis is the longest delay a time.Duration can hold
const maxDelayMillis = math.MaxInt64 / int64(time.Millisecond)

// Store is an in-memory key-value store. Every record with a finite expiry
// owns exactly one scheduled removal callback.
type Store[V any] struct {
	mu    sync.Mutex
	cache Snapshot[V]
	alive int64 // default alive duration in milliseconds
	opts  options
	log   zerolog.Logger
}

// New creates a store whose records expire after defaultAliveSeconds unless
// a per-call expiry is given. Zero means records never expire by default.
func New[V any](defaultAliveSeconds int, opts ...Option) *Store[V] {
	o := options{
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	log := logger.WithComponent("memory")
	if o.log != nil {
		log = *o.log
	}

	if defaultAliveSeconds < 0 {
		defaultAliveSeconds = NotAlive
	}

	return &Store[V]{
		cache: make(Snapshot[V]),
		alive: int64(defaultAliveSeconds) * 1000,
		opts:  o,
		log:   log,
	}
}

// DefaultAlive returns the default alive duration
func (s *Store[V]) DefaultAlive() time.Duration {
	return time.Duration(s.alive) * time.Millisecond
}

// Get returns a copy of the record stored under key
func (s *Store[V]) Get(key string) (Record[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.cache[key]
	if !ok || rec == nil {
		s.opts.observer.Miss(key)
		return Record[V]{}, false
	}

	s.opts.observer.Hit(key)
	return Record[V]{Value: rec.Value, Time: rec.Time, Alive: rec.Alive}, true
}

// Set inserts or replaces the record for key and returns value.
//
// expires is in milliseconds. Values <= 0 fall back to the default alive
// duration. A value greater than the current epoch-millisecond clock is an
// absolute deadline; anything else is an offset from now.
func (s *Store[V]) Set(key string, value V, expires int64) V {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setLocked(key, value, expires, s.nowMillis())
	return value
}

// SetTTL stores value for ttl. Unlike Set, ttl is always relative.
func (s *Store[V]) SetTTL(key string, value V, ttl time.Duration) V {
	s.mu.Lock()
	defer s.mu.Unlock()

	alive := s.alive
	if ttl > 0 {
		alive = ttl.Milliseconds()
		if alive == 0 {
			alive = 1
		}
	}

	rec := s.putLocked(key, value, alive)
	if alive == 0 {
		rec.Time = 0
		return value
	}

	s.scheduleLocked(key, rec, s.nowMillis()+alive, alive)
	return value
}

// SetUntil stores value until deadline. A deadline that is not in the future
// removes key.
func (s *Store[V]) SetUntil(key string, value V, deadline time.Time) V {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	at := deadline.UnixMilli()
	if at <= now {
		s.removeLocked(key)
		return value
	}

	rec := s.putLocked(key, value, at-now)
	s.scheduleLocked(key, rec, at, at-now)
	return value
}

// Remove deletes key and cancels its pending callback. It returns the removed
// value, or false when no record existed.
func (s *Store[V]) Remove(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeLocked(key)
}

// Clear cancels every pending callback and empties the store
func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.cache)
	for _, rec := range s.cache {
		if rec != nil {
			rec.stop()
			rec.gen++
		}
	}
	s.cache = make(Snapshot[V])

	s.opts.observer.Clear(n)
	s.opts.observer.Entries(0)
	s.log.Debug().Int("removed", n).Msg("Cache cleared")
}

// Cache returns the underlying mapping by reference. Callers that mutate it
// own the consistency of the result.
func (s *Store[V]) Cache() Snapshot[V] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache
}

// Copy returns a detached copy of every record, safe to read while timers
// keep firing.
func (s *Store[V]) Copy() Snapshot[V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(Snapshot[V], len(s.cache))
	for key, rec := range s.cache {
		if rec != nil {
			out[key] = &Record[V]{Value: rec.Value, Time: rec.Time, Alive: rec.Alive}
		}
	}
	return out
}

// SetCache replaces the mapping wholesale. Nothing is validated or
// rescheduled; follow with ResetCache to re-arm expiry.
func (s *Store[V]) SetCache(cache Snapshot[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cache == nil {
		cache = make(Snapshot[V])
	}

	// Callbacks of records dropped by the swap would otherwise linger until
	// they fire as no-ops.
	for key, rec := range s.cache {
		if rec != nil && cache[key] != rec {
			rec.stop()
			rec.gen++
		}
	}

	s.cache = cache
	s.opts.observer.Entries(len(s.cache))
}

// ResetCache re-inserts every entry of cache whose Time is a future absolute
// deadline and re-arms its removal callback. Entries without Time or with a
// past Time are dropped, unless the store was built with
// WithRestoreUnexpiring, in which case entries without Time are restored
// with no expiry. It returns the number of restored entries.
func (s *Store[V]) ResetCache(cache Snapshot[V]) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowMillis()
	restored := 0
	for key, item := range cache {
		if item == nil {
			continue
		}

		switch {
		case item.Time > now:
			s.setLocked(key, item.Value, item.Time, now)
			restored++
		case item.Time <= 0 && s.opts.restoreUnexpiring:
			s.putLocked(key, item.Value, 0).Time = 0
			restored++
		}
	}

	s.log.Debug().
		Int("restored", restored).
		Int("dropped", len(cache)-restored).
		Msg("Cache reset from snapshot")

	return restored
}

// Len returns the number of records
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cache)
}

// Keys returns all keys in ascending order
func (s *Store[V]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.cache))
	for key, rec := range s.cache {
		if rec != nil {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (s *Store[V]) nowMillis() int64 {
	return s.opts.now().UnixMilli()
}

func (s *Store[V]) setLocked(key string, value V, expires, now int64) {
	if expires <= 0 {
		expires = s.alive
	}

	rec := s.putLocked(key, value, expires)
	if expires == 0 {
		rec.Time = 0
		return
	}

	if expires > now {
		// absolute deadline
		s.scheduleLocked(key, rec, expires, expires-now)
		return
	}
	s.scheduleLocked(key, rec, now+expires, expires)
}

// putLocked installs value under key, cancelling the callback of an existing
// record first. The returned record has no pending callback.
func (s *Store[V]) putLocked(key string, value V, alive int64) *Record[V] {
	rec, ok := s.cache[key]
	if ok && rec != nil {
		rec.stop()
		rec.gen++
		rec.Value = value
		rec.Alive = alive
	} else {
		rec = &Record[V]{Value: value, Alive: alive}
		s.cache[key] = rec
		s.opts.observer.Entries(len(s.cache))
	}

	s.opts.observer.Set(key)
	return rec
}

func (s *Store[V]) scheduleLocked(key string, rec *Record[V], deadline, delay int64) {
	rec.Time = deadline
	if delay > maxDelayMillis {
		delay = maxDelayMillis
	}
	gen := rec.gen
	rec.timer = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		s.expire(key, rec, gen)
	})
}

// expire is the removal callback. It only removes the record it was
// scheduled for.
func (s *Store[V]) expire(key string, rec *Record[V], gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.cache[key]
	if !ok || cur != rec || rec.gen != gen {
		return
	}

	rec.timer = nil
	delete(s.cache, key)

	s.opts.observer.Expire(key)
	s.opts.observer.Entries(len(s.cache))
	s.log.Debug().Str("key", key).Int64("alive_ms", rec.Alive).Msg("Record expired")
}

func (s *Store[V]) removeLocked(key string) (V, bool) {
	rec, ok := s.cache[key]
	delete(s.cache, key)
	if !ok || rec == nil {
		var zero V
		return zero, false
	}

	rec.stop()
	rec.gen++

	s.opts.observer.Remove(key)
	s.opts.observer.Entries(len(s.cache))
	return rec.Value, true
}
