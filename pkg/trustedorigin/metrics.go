package trustedorigin

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes registry refresh results and the state of the snapshot in service.
type Metrics struct {
	Refreshes   *prometheus.CounterVec
	Origins     prometheus.Gauge
	GeneratedAt prometheus.Gauge
	Stale       prometheus.Gauge
}

// NewMetrics creates registry metrics. Register them with PrometheusCollectors.
func NewMetrics() *Metrics {
	const (
		namespace = "tenantgate"
		subsystem = "trusted_origins"
	)

	return &Metrics{
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "refreshes_total",
			Help:      "Count of registry refreshes by result",
		}, []string{"result"}),

		Origins: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "origins",
			Help:      "Number of origins in the snapshot in service",
		}),

		GeneratedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "snapshot_generated_timestamp_seconds",
			Help:      "Unix time the snapshot in service was built",
		}),

		Stale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "snapshot_stale",
			Help:      "1 when the snapshot in service is stale or emergency, 0 when fresh",
		}),
	}
}

// PrometheusCollectors returns the collectors to register.
func (m *Metrics) PrometheusCollectors() []prometheus.Collector {
	return []prometheus.Collector{m.Refreshes, m.Origins, m.GeneratedAt, m.Stale}
}

func (m *Metrics) observe(s *Snapshot, result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
	m.Origins.Set(float64(s.Len()))
	m.GeneratedAt.Set(float64(s.GeneratedAt.Unix()))
	if s.Source == SourceFresh {
		m.Stale.Set(0)
	} else {
		m.Stale.Set(1)
	}
}
