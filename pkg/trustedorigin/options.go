package trustedorigin

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// Option configures a Registry.
type Option func(*Registry)

// WithBaseOrigins sets origins that are always trusted, such as the platform's
// own marketing site. Entries may be full origins ("https://www.example.com")
// or bare domains, which trust both the https and the http origin.
func WithBaseOrigins(entries ...string) Option {
	return func(r *Registry) {
		r.base = r.base[:0]
		for _, e := range entries {
			r.base = append(r.base, expand(e)...)
		}
	}
}

// WithEmergencyOrigins sets the known-critical origins trusted even when the
// store has never been listed successfully. Entries follow WithBaseOrigins.
func WithEmergencyOrigins(entries ...string) Option {
	return func(r *Registry) {
		r.emergency = make(map[string]struct{}, len(entries)*2)
		for _, e := range entries {
			for _, o := range expand(e) {
				r.emergency[o] = struct{}{}
			}
		}
	}
}

// WithRefreshInterval sets how often the snapshot is rebuilt.
func WithRefreshInterval(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithRefreshTimeout bounds a single store listing.
func WithRefreshTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.refreshTimeout = d
		}
	}
}

// WithDevelopmentMode trusts every localhost and loopback origin.
func WithDevelopmentMode(enabled bool) Option {
	return func(r *Registry) {
		r.devMode = enabled
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clock.Clock) Option {
	return func(r *Registry) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records refresh results and snapshot state.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}
