package ratelimiter

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/tenantgate/pkg/logger"
)

// KeyFunc extracts the bucket key from a request. An empty key is never limited.
type KeyFunc func(r *http.Request) string

// FailureGuard throttles clients that keep producing failures, such as
// probing for domains that resolve to no tenant. Only failures reported
// through Fail spend tokens; once a key's bucket is empty its requests are
// rejected with 429 until it refills.
//
// Store errors fail open: the request proceeds and the error is logged.
type FailureGuard struct {
	bucket  *Bucket
	key     KeyFunc
	clock   clock.Clock
	logger  *slog.Logger
	metrics *Metrics
}

// GuardOption configures a FailureGuard.
type GuardOption func(*FailureGuard)

// WithGuardLogger sets the guard logger.
func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(g *FailureGuard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithGuardClock replaces the clock used for Retry-After.
func WithGuardClock(c clock.Clock) GuardOption {
	return func(g *FailureGuard) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithGuardMetrics attaches Prometheus metrics.
func WithGuardMetrics(m *Metrics) GuardOption {
	return func(g *FailureGuard) {
		g.metrics = m
	}
}

// NewFailureGuard creates a guard spending bucket tokens per key.
func NewFailureGuard(bucket *Bucket, key KeyFunc, opts ...GuardOption) *FailureGuard {
	if bucket == nil {
		panic("ratelimiter: bucket cannot be nil")
	}
	if key == nil {
		panic("ratelimiter: key func cannot be nil")
	}

	g := &FailureGuard{
		bucket: bucket,
		key:    key,
		clock:  clock.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(logger.Component("ratelimiter.guard"))
	return g
}

// Middleware rejects requests whose key has no tokens left.
func (g *FailureGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := g.key(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		res, err := g.bucket.Status(r.Context(), key)
		if err != nil {
			g.logger.ErrorContext(r.Context(), "failed to read failure budget", logger.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if res.Exhausted() {
			g.metrics.throttled()
			w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter(g.clock.Now()).Seconds())+1))
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Fail spends one token for the request's key.
func (g *FailureGuard) Fail(r *http.Request) {
	key := g.key(r)
	if key == "" {
		return
	}

	g.metrics.failed()
	res, err := g.bucket.Allow(r.Context(), key)
	if err != nil {
		g.logger.ErrorContext(r.Context(), "failed to spend failure budget", logger.Error(err))
		return
	}
	if res.Exhausted() {
		g.logger.WarnContext(r.Context(), "failure budget exhausted, throttling client",
			slog.String("key", key),
			slog.Time("reset_at", res.ResetAt),
		)
	}
}

// Metrics counts guard activity.
type Metrics struct {
	Failures  prometheus.Counter
	Throttled prometheus.Counter
}

// NewMetrics creates guard metrics. Register them with PrometheusCollectors.
func NewMetrics() *Metrics {
	const (
		namespace = "tenantgate"
		subsystem = "failure_guard"
	)

	return &Metrics{
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failures_total",
			Help:      "Count of failures charged to a client budget",
		}),
		Throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "throttled_total",
			Help:      "Count of requests rejected because the client budget was exhausted",
		}),
	}
}

// PrometheusCollectors returns the collectors to register.
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.Failures, m.Throttled}
}

func (m *Metrics) failed() {
	if m != nil {
		m.Failures.Inc()
	}
}

func (m *Metrics) throttled() {
	if m != nil {
		m.Throttled.Inc()
	}
}
