package metrics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type mockGCStatsProvider struct {
	pending  int
	eligible int
	err      error
	scans    atomic.Int32
}

func (m *mockGCStatsProvider) PendingOrphanCount(ctx context.Context) (int, error) {
	m.scans.Add(1)
	if m.err != nil {
		return 0, m.err
	}
	return m.pending, nil
}

func (m *mockGCStatsProvider) EligibleOrphanCount(ctx context.Context) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.eligible, nil
}

var _ GCStatsProvider = (*mockGCStatsProvider)(nil)

// getGaugeValue extracts the current value of a gauge metric from the registry.
func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			if metrics := family.GetMetric(); len(metrics) > 0 {
				if g := metrics[0].GetGauge(); g != nil {
					return g.GetValue()
				}
				return metrics[0].GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestGCMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGCMetricsWithRegistry(reg)

	m.RecordPendingOrphans(4)
	m.RecordEligibleOrphans(2)
	m.RecordDeletedObjects(3)
	m.RecordDeletedObjects(0)
	m.RecordSweepFailure()

	if v := getGaugeValue(t, reg, "gridlake_gc_pending_orphans"); v != 4 {
		t.Errorf("pending orphans = %v, want 4", v)
	}
	if v := getGaugeValue(t, reg, "gridlake_gc_eligible_orphans"); v != 2 {
		t.Errorf("eligible orphans = %v, want 2", v)
	}
	if v := getGaugeValue(t, reg, "gridlake_gc_deleted_objects_total"); v != 3 {
		t.Errorf("deleted objects = %v, want 3", v)
	}
	if v := getGaugeValue(t, reg, "gridlake_gc_sweep_failures_total"); v != 1 {
		t.Errorf("sweep failures = %v, want 1", v)
	}
}

func TestGCBacklogScanner_ScanOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGCMetricsWithRegistry(reg)

	scanner := NewGCBacklogScanner(m, &mockGCStatsProvider{pending: 7, eligible: 3}, time.Hour)
	scanner.ScanOnce()

	if v := getGaugeValue(t, reg, "gridlake_gc_pending_orphans"); v != 7 {
		t.Errorf("expected pending 7, got %v", v)
	}
	if v := getGaugeValue(t, reg, "gridlake_gc_eligible_orphans"); v != 3 {
		t.Errorf("expected eligible 3, got %v", v)
	}
}

func TestGCBacklogScanner_ErrorKeepsPreviousValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGCMetricsWithRegistry(reg)
	m.RecordPendingOrphans(99)

	scanner := NewGCBacklogScanner(m, &mockGCStatsProvider{err: errors.New("connection failed")}, time.Hour)
	scanner.ScanOnce()

	if v := getGaugeValue(t, reg, "gridlake_gc_pending_orphans"); v != 99 {
		t.Errorf("expected pending 99 (unchanged), got %v", v)
	}
}

func TestGCBacklogScanner_ImmediateRunOnStart(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewGCMetricsWithRegistry(reg)
	provider := &mockGCStatsProvider{pending: 123}

	scanner := NewGCBacklogScanner(m, provider, time.Hour)
	scanner.Start()

	deadline := time.Now().Add(time.Second)
	for provider.scans.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	scanner.Stop()

	if v := getGaugeValue(t, reg, "gridlake_gc_pending_orphans"); v != 123 {
		t.Errorf("expected pending 123 from initial scan, got %v", v)
	}
}
