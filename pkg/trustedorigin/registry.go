package trustedorigin

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrymomot/tenantgate/pkg/logger"
	"github.com/dmitrymomot/tenantgate/pkg/tenant"
)

const (
	// DefaultRefreshInterval is how often the registry rebuilds its snapshot.
	DefaultRefreshInterval = 5 * time.Minute
	// DefaultRefreshTimeout bounds a single store listing.
	DefaultRefreshTimeout = 10 * time.Second
)

// Registry decides which cross-origin callers are trusted. It holds a
// snapshot of every servable tenant domain plus configured base origins and
// rebuilds it on a timer, independently of request handling.
//
// When the store cannot be listed the registry prefers staleness over
// rejecting every tenant: the previous snapshot stays in service, and on a
// cold start the emergency origins are used instead.
type Registry struct {
	lister         tenant.Lister
	base           []string
	emergency      map[string]struct{}
	interval       time.Duration
	refreshTimeout time.Duration
	devMode        bool
	clock          clock.Clock
	logger         *slog.Logger
	metrics        *Metrics

	snapshot atomic.Pointer[Snapshot]
	group    singleflight.Group

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
	done    chan struct{}
}

// NewRegistry creates a registry over lister. The registry serves the
// emergency snapshot until the first refresh; call Start to load it.
func NewRegistry(lister tenant.Lister, opts ...Option) *Registry {
	if lister == nil {
		panic("trustedorigin: lister cannot be nil")
	}

	r := &Registry{
		lister:         lister,
		emergency:      map[string]struct{}{},
		interval:       DefaultRefreshInterval,
		refreshTimeout: DefaultRefreshTimeout,
		clock:          clock.New(),
		logger:         slog.Default(),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("trustedorigin"))

	return r
}

// IsTrusted reports whether origin may make cross-origin calls. It checks the
// current snapshot, then the development relaxation for local origins, then
// the emergency origins, which are honored even when a fresh snapshot exists.
func (r *Registry) IsTrusted(origin string) bool {
	o := NormalizeOrigin(origin)
	if o == "" {
		return false
	}
	if r.snapshot.Load().Contains(o) {
		return true
	}
	if r.devMode && isLocalOrigin(o) {
		return true
	}
	_, ok := r.emergency[o]
	return ok
}

// Snapshot returns the snapshot currently in service, or nil before the first refresh.
func (r *Registry) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Refresh rebuilds the snapshot now. Concurrent calls share a single store listing.
// On failure the fallback snapshot is installed and an error wrapping ErrRefreshFailed is returned.
func (r *Registry) Refresh(ctx context.Context) error {
	if r.isClosed() {
		return ErrRegistryClosed
	}

	ch := r.group.DoChan("refresh", func() (any, error) {
		// Detached so that one caller giving up does not fail the refresh for the others.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.refreshTimeout)
		defer cancel()
		return nil, r.refresh(ctx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) refresh(ctx context.Context) error {
	start := r.clock.Now()
	tenants, err := r.lister.ListServable(ctx)
	if err != nil {
		r.fallback(ctx, err)
		return errors.Join(ErrRefreshFailed, err)
	}

	domains := make([]string, 0, len(tenants)*4)
	for _, t := range tenants {
		if !t.Status.Servable() {
			continue
		}
		for _, d := range t.Domains() {
			domains = append(domains, domainOrigins(d)...)
		}
	}

	snap := newSnapshot(SourceFresh, r.clock.Now(), r.base, domains)
	r.snapshot.Store(snap)
	r.metrics.observe(snap, "success")

	r.logger.DebugContext(ctx, "trusted origins refreshed",
		slog.Int("tenants", len(tenants)),
		slog.Int("origins", snap.Len()),
		logger.Duration(r.clock.Since(start)),
	)
	return nil
}

func (r *Registry) fallback(ctx context.Context, cause error) {
	now := r.clock.Now()
	prev := r.snapshot.Load()

	if prev != nil && prev.Source != SourceEmergency {
		snap := prev.extend(now)
		r.snapshot.Store(snap)
		r.metrics.observe(snap, "stale")
		r.logger.WarnContext(ctx, "trusted origin refresh failed, serving stale snapshot",
			logger.Error(cause),
			slog.Time("generated_at", prev.GeneratedAt),
			logger.Duration(now.Sub(prev.GeneratedAt)),
		)
		return
	}

	snap := newSnapshot(SourceEmergency, now, r.base, r.emergencyOrigins())
	r.snapshot.Store(snap)
	r.metrics.observe(snap, "emergency")
	r.logger.ErrorContext(ctx, "trusted origin refresh failed without a previous snapshot, serving emergency origins",
		logger.Error(cause),
		slog.Int("origins", snap.Len()),
	)
}

func (r *Registry) emergencyOrigins() []string {
	list := make([]string, 0, len(r.emergency))
	for o := range r.emergency {
		list = append(list, o)
	}
	return list
}

// Start loads the first snapshot and keeps refreshing it every refresh
// interval until ctx is done or Close is called. A failed first load is
// not fatal: the emergency snapshot is served until the store recovers.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return ErrRegistryClosed
	case r.started:
		r.mu.Unlock()
		return ErrRegistryStarted
	}
	r.started = true
	r.mu.Unlock()

	_ = r.Refresh(ctx)

	ticker := r.clock.Ticker(r.interval)
	go func() {
		defer close(r.done)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = r.Refresh(ctx)
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			}
		}
	}()

	return nil
}

// Close stops background refreshes and waits for an in-flight refresh to finish.
// It is safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	started := r.started
	close(r.stop)
	r.mu.Unlock()

	if started {
		<-r.done
	}
	return nil
}

func (r *Registry) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
