package memory

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Store
type Option func(*options)

type options struct {
	observer          Observer
	now               func() time.Time
	restoreUnexpiring bool
	log               *zerolog.Logger
}

// WithObserver sets the event observer (metrics)
func WithObserver(o Observer) Option {
	return func(opts *options) {
		if o != nil {
			opts.observer = o
		}
	}
}

// WithClock sets the clock used for expiry arithmetic. Timers still run on
// the runtime clock.
func WithClock(now func() time.Time) Option {
	return func(opts *options) {
		if now != nil {
			opts.now = now
		}
	}
}

// WithRestoreUnexpiring makes ResetCache keep entries that carry no expiry.
// They are restored as persistent records with no timer.
func WithRestoreUnexpiring(restore bool) Option {
	return func(opts *options) {
		opts.restoreUnexpiring = restore
	}
}

// WithLogger sets the logger used for debug events
func WithLogger(log zerolog.Logger) Option {
	return func(opts *options) {
		opts.log = &log
	}
}
