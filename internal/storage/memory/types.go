package memory

import (
	"time"
)

// NotAlive is the default alive duration: records never expire unless a
// per-call expiry is given.
const NotAlive = 0

// Record is one entry of the store.
type Record[V any] struct {
	// Value is the stored payload
	Value V `json:"value"`
	// Time is the absolute expiry in epoch milliseconds (0 = no expiry computed)
	Time int64 `json:"time,omitempty"`
	// Alive is the duration in milliseconds that produced Time
	Alive int64 `json:"alive,omitempty"`

	timer *time.Timer
	gen   uint64
}

// Snapshot maps keys to records. It is the shape returned by Store.Cache and
// consumed by Store.SetCache and Store.ResetCache.
type Snapshot[V any] map[string]*Record[V]

// ExpiresAt returns the absolute expiry as a time.Time.
func (r Record[V]) ExpiresAt() (time.Time, bool) {
	if r.Time <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(r.Time), true
}

// Expiring reports whether the record carries an expiry.
func (r Record[V]) Expiring() bool {
	return r.Time > 0
}

// stop cancels the pending removal callback, if any.
func (r *Record[V]) stop() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
