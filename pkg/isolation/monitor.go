package isolation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/tenantgate/pkg/logger"
)

// DefaultBufferSize is the number of violations a Monitor keeps in memory.
const DefaultBufferSize = 1000

// Sink receives every recorded violation, for example to hand it to the audit log.
// Write is called on the recording goroutine and should not block for long.
type Sink interface {
	Write(ctx context.Context, v Violation) error
}

// SinkFunc is an adapter to allow the use of ordinary functions as a Sink.
type SinkFunc func(ctx context.Context, v Violation) error

// Write calls f(ctx, v).
func (f SinkFunc) Write(ctx context.Context, v Violation) error {
	return f(ctx, v)
}

// Stats are violation totals since start or the last Clear.
type Stats struct {
	Total      uint64              `json:"total"`
	Buffered   int                 `json:"buffered"`
	Capacity   int                 `json:"capacity"`
	BySeverity map[Severity]uint64 `json:"by_severity"`
	ByField    map[Field]uint64    `json:"by_field"`
}

// Monitor keeps the most recent violations in a fixed-size ring and counts
// all of them. It does not grade or persist violations; sinks do the latter.
type Monitor struct {
	mu         sync.RWMutex
	ring       []Violation
	next       int
	size       int
	total      uint64
	bySeverity map[Severity]uint64
	byField    map[Field]uint64

	sinks   []Sink
	metrics *Metrics
	logger  *slog.Logger
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithBufferSize sets how many recent violations are kept.
func WithBufferSize(n int) MonitorOption {
	return func(m *Monitor) {
		if n > 0 {
			m.ring = make([]Violation, n)
		}
	}
}

// WithSinks adds sinks that receive every recorded violation.
func WithSinks(sinks ...Sink) MonitorOption {
	return func(m *Monitor) {
		for _, s := range sinks {
			if s != nil {
				m.sinks = append(m.sinks, s)
			}
		}
	}
}

// WithMetrics counts violations in Prometheus.
func WithMetrics(metrics *Metrics) MonitorOption {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

// WithLogger sets the monitor logger.
func WithLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMonitor creates a monitor.
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		ring:       make([]Violation, DefaultBufferSize),
		bySeverity: make(map[Severity]uint64),
		byField:    make(map[Field]uint64),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("isolation.monitor"))

	return m
}

// Record stores v, overwriting the oldest violation when the buffer is full,
// and forwards it to every sink.
func (m *Monitor) Record(ctx context.Context, v Violation) {
	m.mu.Lock()
	m.ring[m.next] = v
	m.next = (m.next + 1) % len(m.ring)
	if m.size < len(m.ring) {
		m.size++
	}
	m.total++
	m.bySeverity[v.Severity]++
	m.byField[v.Field]++
	m.mu.Unlock()

	m.metrics.observe(v)
	m.logger.WarnContext(ctx, "tenant isolation violation",
		slog.String("violation_id", v.ID.String()),
		logger.RequestID(v.RequestID),
		slog.String("client_ip", v.ClientIP),
		slog.String("attempted_tenant_id", v.AttemptedTenantID),
		slog.String("actual_tenant_id", v.ActualTenantID),
		slog.String("field", string(v.Field)),
		logger.Severity(string(v.Severity)),
		slog.String("reason", v.Reason),
	)

	for _, s := range m.sinks {
		if err := s.Write(ctx, v); err != nil {
			m.logger.ErrorContext(ctx, "failed to forward isolation violation",
				slog.String("violation_id", v.ID.String()),
				logger.Error(err),
			)
		}
	}
}

// Recent returns up to n violations, most recent first. n <= 0 returns all buffered violations.
func (m *Monitor) Recent(n int) []Violation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if n <= 0 || n > m.size {
		n = m.size
	}
	out := make([]Violation, 0, n)
	for i := 1; i <= n; i++ {
		idx := (m.next - i + len(m.ring)) % len(m.ring)
		out = append(out, m.ring[idx])
	}
	return out
}

// Stats returns a copy of the counters.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		Total:      m.total,
		Buffered:   m.size,
		Capacity:   len(m.ring),
		BySeverity: make(map[Severity]uint64, len(m.bySeverity)),
		ByField:    make(map[Field]uint64, len(m.byField)),
	}
	for k, v := range m.bySeverity {
		s.BySeverity[k] = v
	}
	for k, v := range m.byField {
		s.ByField[k] = v
	}
	return s
}

// Clear drops buffered violations and resets the counters.
// Prometheus counters are monotonic and are not reset.
func (m *Monitor) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.ring)
	m.next = 0
	m.size = 0
	m.total = 0
	clear(m.bySeverity)
	clear(m.byField)
}

// Metrics counts violations by severity and field.
type Metrics struct {
	Violations *prometheus.CounterVec
}

// NewMetrics creates isolation metrics. Register them with PrometheusCollectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenantgate",
			Subsystem: "isolation",
			Name:      "violations_total",
			Help:      "Count of tenant isolation violations by severity and field",
		}, []string{"severity", "field"}),
	}
}

// PrometheusCollectors returns the collectors to register.
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.Violations}
}

func (m *Metrics) observe(v Violation) {
	if m == nil {
		return
	}
	m.Violations.WithLabelValues(string(v.Severity), string(v.Field)).Inc()
}
