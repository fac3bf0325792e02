package isolation_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantgate/pkg/isolation"
)

func violation(reason string, field isolation.Field, severity isolation.Severity) isolation.Violation {
	return isolation.Violation{
		ID:       uuid.New(),
		Field:    field,
		Severity: severity,
		Reason:   reason,
	}
}

func TestMonitor_RecentIsMostRecentFirstAndBounded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := isolation.NewMonitor(isolation.WithBufferSize(3))

	assert.Empty(t, m.Recent(10))

	for i := range 5 {
		m.Record(ctx, violation(fmt.Sprintf("v%d", i), isolation.FieldPath, isolation.SeverityHigh))
	}

	recent := m.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "v4", recent[0].Reason)
	assert.Equal(t, "v3", recent[1].Reason)
	assert.Equal(t, "v2", recent[2].Reason)

	top := m.Recent(2)
	require.Len(t, top, 2)
	assert.Equal(t, "v4", top[0].Reason)

	assert.Len(t, m.Recent(100), 3)

	stats := m.Stats()
	assert.Equal(t, uint64(5), stats.Total, "totals count dropped violations too")
	assert.Equal(t, 3, stats.Buffered)
	assert.Equal(t, 3, stats.Capacity)
}

func TestMonitor_Stats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := isolation.NewMonitor()

	m.Record(ctx, violation(isolation.ReasonCrossTenant, isolation.FieldPath, isolation.SeverityHigh))
	m.Record(ctx, violation(isolation.ReasonCrossTenant, isolation.FieldQuery, isolation.SeverityMedium))
	m.Record(ctx, violation(isolation.ReasonCrossTenant, isolation.FieldBody, isolation.SeverityCritical))
	m.Record(ctx, violation(isolation.ReasonCrossTenant, isolation.FieldBody, isolation.SeverityCritical))

	stats := m.Stats()
	assert.Equal(t, uint64(4), stats.Total)
	assert.Equal(t, isolation.DefaultBufferSize, stats.Capacity)
	assert.Equal(t, map[isolation.Severity]uint64{
		isolation.SeverityHigh:     1,
		isolation.SeverityMedium:   1,
		isolation.SeverityCritical: 2,
	}, stats.BySeverity)
	assert.Equal(t, map[isolation.Field]uint64{
		isolation.FieldPath:  1,
		isolation.FieldQuery: 1,
		isolation.FieldBody:  2,
	}, stats.ByField)

	// Stats hands out copies.
	stats.BySeverity[isolation.SeverityHigh] = 100
	assert.Equal(t, uint64(1), m.Stats().BySeverity[isolation.SeverityHigh])
}

func TestMonitor_Clear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := isolation.NewMonitor(isolation.WithBufferSize(2))
	m.Record(ctx, violation("a", isolation.FieldPath, isolation.SeverityHigh))
	m.Record(ctx, violation("b", isolation.FieldPath, isolation.SeverityHigh))

	m.Clear()
	assert.Empty(t, m.Recent(0))
	assert.Zero(t, m.Stats().Total)
	assert.Empty(t, m.Stats().BySeverity)

	m.Record(ctx, violation("c", isolation.FieldQuery, isolation.SeverityMedium))
	recent := m.Recent(0)
	require.Len(t, recent, 1)
	assert.Equal(t, "c", recent[0].Reason)
}

func TestMonitor_Sinks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	var (
		mu  sync.Mutex
		got []isolation.Violation
	)
	ok := isolation.SinkFunc(func(_ context.Context, v isolation.Violation) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, v)
		return nil
	})
	failing := isolation.SinkFunc(func(context.Context, isolation.Violation) error {
		return assert.AnError
	})

	m := isolation.NewMonitor(isolation.WithSinks(failing, nil, ok))
	v := violation(isolation.ReasonCrossTenant, isolation.FieldBody, isolation.SeverityCritical)
	m.Record(ctx, v)

	require.Len(t, got, 1, "a failing sink does not stop the others")
	assert.Equal(t, v, got[0])
	assert.Equal(t, uint64(1), m.Stats().Total)
}

func TestMonitor_Metrics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	metrics := isolation.NewMetrics()
	m := isolation.NewMonitor(isolation.WithMetrics(metrics))

	m.Record(ctx, violation(isolation.ReasonCrossTenant, isolation.FieldPath, isolation.SeverityHigh))
	m.Record(ctx, violation(isolation.ReasonCrossTenant, isolation.FieldPath, isolation.SeverityHigh))
	m.Clear()
	m.Record(ctx, violation(isolation.ReasonCrossTenant, isolation.FieldQuery, isolation.SeverityMedium))

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Violations.WithLabelValues("high", "path")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Violations.WithLabelValues("medium", "query")))
	assert.Len(t, metrics.PrometheusCollectors(), 1)
}

func TestMonitor_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := isolation.NewMonitor(isolation.WithBufferSize(50))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				m.Record(ctx, violation(isolation.ReasonCrossTenant, isolation.FieldQuery, isolation.SeverityMedium))
				_ = m.Recent(5)
				_ = m.Stats()
			}
		}()
	}
	wg.Wait()

	stats := m.Stats()
	assert.Equal(t, uint64(1000), stats.Total)
	assert.Equal(t, 50, stats.Buffered)
}
