package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetadataMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetadataMetricsWithRegistry(reg)

	m.RecordGet(0.001, true)
	m.RecordGet(0.002, true)
	m.RecordPut(0.003, false)
	m.RecordDelete(0.001, true)
	m.RecordList(0.010, true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	requests := findMetricFamily(mfs, "gridlake_metadata_operations_total")
	if requests == nil {
		t.Fatal("gridlake_metadata_operations_total not found")
	}
	tests := []struct {
		op     string
		status string
		want   float64
	}{
		{OpMetaGet, StatusSuccess, 2},
		{OpMetaPut, StatusFailure, 1},
		{OpMetaPut, StatusSuccess, 0},
		{OpMetaDelete, StatusSuccess, 1},
		{OpMetaList, StatusSuccess, 1},
	}
	for _, tt := range tests {
		if got := getCounterValue(requests, map[string]string{"operation": tt.op, "status": tt.status}); got != tt.want {
			t.Errorf("%s/%s = %f, want %f", tt.op, tt.status, got, tt.want)
		}
	}

	latency := findMetricFamily(mfs, "gridlake_metadata_operation_latency_seconds")
	if latency == nil {
		t.Fatal("gridlake_metadata_operation_latency_seconds not found")
	}
	if got := getHistogramCount(latency, map[string]string{"operation": OpMetaGet, "status": StatusSuccess}); got != 2 {
		t.Errorf("get latency samples = %d, want 2", got)
	}
}
