package tenant

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/tenantgate/pkg/logger"
)

// Interceptor observes tenant store lookups. Interceptors are declared when the
// store is wrapped with Instrument and run synchronously around every call,
// so they must be cheap and must not block.
type Interceptor interface {
	BeforeLookup(ctx context.Context, domain string)
	AfterLookup(ctx context.Context, domain string, t *Tenant, err error, elapsed time.Duration)
}

// InterceptorFuncs adapts plain functions to an Interceptor. Nil fields are skipped.
type InterceptorFuncs struct {
	Before func(ctx context.Context, domain string)
	After  func(ctx context.Context, domain string, t *Tenant, err error, elapsed time.Duration)
}

func (f InterceptorFuncs) BeforeLookup(ctx context.Context, domain string) {
	if f.Before != nil {
		f.Before(ctx, domain)
	}
}

func (f InterceptorFuncs) AfterLookup(ctx context.Context, domain string, t *Tenant, err error, elapsed time.Duration) {
	if f.After != nil {
		f.After(ctx, domain, t, err, elapsed)
	}
}

type instrumentedStore struct {
	next         Store
	interceptors []Interceptor
	now          func() time.Time
}

// Instrument wraps store so every FindByDomain call is reported to interceptors.
// The wrapper keeps the Lister capability of store when it has one.
func Instrument(store Store, interceptors ...Interceptor) Store {
	clean := make([]Interceptor, 0, len(interceptors))
	for _, i := range interceptors {
		if i != nil {
			clean = append(clean, i)
		}
	}
	if len(clean) == 0 {
		return store
	}

	is := &instrumentedStore{next: store, interceptors: clean, now: time.Now}
	if lister, ok := store.(Lister); ok {
		return &instrumentedListerStore{instrumentedStore: is, lister: lister}
	}
	return is
}

func (s *instrumentedStore) FindByDomain(ctx context.Context, domain string) (*Tenant, error) {
	for _, i := range s.interceptors {
		i.BeforeLookup(ctx, domain)
	}

	start := s.now()
	t, err := s.next.FindByDomain(ctx, domain)
	elapsed := s.now().Sub(start)

	for _, i := range s.interceptors {
		i.AfterLookup(ctx, domain, t, err, elapsed)
	}
	return t, err
}

type instrumentedListerStore struct {
	*instrumentedStore
	lister Lister
}

func (s *instrumentedListerStore) ListServable(ctx context.Context) ([]*Tenant, error) {
	return s.lister.ListServable(ctx)
}

// LogInterceptor logs slow or failed lookups. Lookups slower than slow are
// logged at warn level; zero disables the slow-lookup report.
func LogInterceptor(log *slog.Logger, slow time.Duration) Interceptor {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("tenant.store"))

	return InterceptorFuncs{
		After: func(ctx context.Context, domain string, _ *Tenant, err error, elapsed time.Duration) {
			switch {
			case err != nil && !errors.Is(err, ErrTenantNotFound):
				log.ErrorContext(ctx, "tenant store lookup failed",
					logger.Domain(domain), logger.Duration(elapsed), logger.Error(err))
			case slow > 0 && elapsed >= slow:
				log.WarnContext(ctx, "slow tenant store lookup",
					logger.Domain(domain), logger.Duration(elapsed))
			default:
				log.DebugContext(ctx, "tenant store lookup",
					logger.Domain(domain), logger.Duration(elapsed))
			}
		},
	}
}

// Lookup results used as metric labels.
const (
	LookupFound    = "found"
	LookupNotFound = "not_found"
	LookupError    = "error"
)

// StoreMetrics counts and times tenant store lookups.
type StoreMetrics struct {
	Lookups       *prometheus.CounterVec
	LookupLatency *prometheus.HistogramVec
}

// NewStoreMetrics creates store lookup metrics. Register them with PrometheusCollectors.
func NewStoreMetrics() *StoreMetrics {
	const (
		namespace = "tenantgate"
		subsystem = "tenant_store"
	)

	return &StoreMetrics{
		Lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lookups_total",
			Help:      "Count of tenant store lookups by result",
		}, []string{"result"}),

		LookupLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lookup_duration_seconds",
			Help:      "Histogram of tenant store lookup latency",
			Buckets:   prometheus.ExponentialBuckets(1e-3, 4, 7),
		}, []string{"result"}),
	}
}

// PrometheusCollectors returns the collectors to register.
func (m *StoreMetrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.Lookups, m.LookupLatency}
}

// BeforeLookup implements Interceptor.
func (m *StoreMetrics) BeforeLookup(context.Context, string) {}

// AfterLookup implements Interceptor.
func (m *StoreMetrics) AfterLookup(_ context.Context, _ string, _ *Tenant, err error, elapsed time.Duration) {
	result := LookupFound
	switch {
	case errors.Is(err, ErrTenantNotFound):
		result = LookupNotFound
	case err != nil:
		result = LookupError
	}
	m.Lookups.WithLabelValues(result).Inc()
	m.LookupLatency.WithLabelValues(result).Observe(elapsed.Seconds())
}
