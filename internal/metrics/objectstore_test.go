package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestObjectStoreMetrics_NewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	// Vec types are only gathered once they have observations.
	m.RecordPut(0.01, true, 100)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if len(mfs) != 4 {
		t.Errorf("Expected 4 metric families, got %d", len(mfs))
	}
}

func TestObjectStoreMetrics_Operations(t *testing.T) {
	tests := []struct {
		name   string
		record func(m *ObjectStoreMetrics)
		op     string
	}{
		{"put", func(m *ObjectStoreMetrics) { m.RecordPut(0.1, true, 1); m.RecordPut(0.2, false, 1) }, OpObjPut},
		{"part", func(m *ObjectStoreMetrics) { m.RecordPart(0.1, true, 1); m.RecordPart(0.2, false, 1) }, OpObjPart},
		{"get", func(m *ObjectStoreMetrics) { m.RecordGet(0.1, true, 1); m.RecordGet(0.2, false, 0) }, OpObjGet},
		{"head", func(m *ObjectStoreMetrics) { m.RecordHead(0.1, true); m.RecordHead(0.2, false) }, OpObjHead},
		{"delete", func(m *ObjectStoreMetrics) { m.RecordDelete(0.1, true); m.RecordDelete(0.2, false) }, OpObjDelete},
		{"list", func(m *ObjectStoreMetrics) { m.RecordList(0.1, true); m.RecordList(0.2, false) }, OpObjList},
		{"delete batch", func(m *ObjectStoreMetrics) { m.RecordDeleteBatch(0.1, true, 3); m.RecordDeleteBatch(0.2, false, 2) }, OpObjDeleteBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			m := NewObjectStoreMetricsWithRegistry(reg)
			tt.record(m)

			mfs, err := reg.Gather()
			if err != nil {
				t.Fatalf("Failed to gather metrics: %v", err)
			}
			requestsMF := findMetricFamily(mfs, "gridlake_objectstore_operations_total")
			if requestsMF == nil {
				t.Fatal("gridlake_objectstore_operations_total not found")
			}
			for _, status := range []string{StatusSuccess, StatusFailure} {
				if got := getCounterValue(requestsMF, map[string]string{"operation": tt.op, "status": status}); got != 1 {
					t.Errorf("%s %s = %f, want 1", tt.op, status, got)
				}
			}
			if findMetricFamily(mfs, "gridlake_objectstore_operation_latency_seconds") == nil {
				t.Error("latency histogram not found")
			}
		})
	}
}

func TestObjectStoreMetrics_BytesByDirection(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	m.RecordPut(0.1, true, 1024)
	m.RecordPart(0.1, true, 4096)
	m.RecordPut(0.2, false, 512)
	m.RecordGet(0.05, true, 2048)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	bytesMF := findMetricFamily(mfs, "gridlake_objectstore_bytes_total")
	if bytesMF == nil {
		t.Fatal("gridlake_objectstore_bytes_total not found")
	}
	if got := getCounterValue(bytesMF, map[string]string{"direction": DirectionWrite}); got != 5120 {
		t.Errorf("Expected 5120 bytes written, got %f", got)
	}
	if got := getCounterValue(bytesMF, map[string]string{"direction": DirectionRead}); got != 2048 {
		t.Errorf("Expected 2048 bytes read, got %f", got)
	}
}

func TestObjectStoreMetrics_KeysDeletedOnlyOnSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	m.RecordDeleteBatch(0.1, true, 1000)
	m.RecordDeleteBatch(0.1, true, 7)
	m.RecordDeleteBatch(0.1, false, 50)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	keysMF := findMetricFamily(mfs, "gridlake_objectstore_keys_deleted_total")
	if keysMF == nil {
		t.Fatal("gridlake_objectstore_keys_deleted_total not found")
	}
	if got := getCounterValue(keysMF, map[string]string{}); got != 1007 {
		t.Errorf("Expected 1007 keys deleted, got %f", got)
	}
}

func TestObjectStoreMetrics_LatencyBuckets(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	m.RecordPut(0.001, true, 100)
	m.RecordPut(0.05, true, 100)
	m.RecordPut(5.0, true, 100)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	latencyMF := findMetricFamily(mfs, "gridlake_objectstore_operation_latency_seconds")
	if latencyMF == nil {
		t.Fatal("gridlake_objectstore_operation_latency_seconds not found")
	}
	for _, metric := range latencyMF.Metric {
		if metric.Histogram == nil {
			continue
		}
		if len(metric.Histogram.Bucket) != len(DefaultObjectStoreLatencyBuckets) {
			t.Errorf("Expected %d buckets, got %d", len(DefaultObjectStoreLatencyBuckets), len(metric.Histogram.Bucket))
		}
		if metric.Histogram.GetSampleCount() != 3 {
			t.Errorf("Expected 3 samples, got %d", metric.Histogram.GetSampleCount())
		}
	}
}

func TestObjectStoreMetrics_ZeroBytesNotRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	m.RecordPut(0.01, true, 0)
	m.RecordGet(0.01, true, 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if bytesMF := findMetricFamily(mfs, "gridlake_objectstore_bytes_total"); bytesMF != nil {
		t.Errorf("expected no bytes series, got %v", bytesMF)
	}
}

func findMetricFamily(mfs []*io_prometheus_client.MetricFamily, name string) *io_prometheus_client.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func getCounterValue(mf *io_prometheus_client.MetricFamily, labels map[string]string) float64 {
	for _, metric := range mf.Metric {
		if matchLabels(metric.Label, labels) && metric.Counter != nil {
			return metric.Counter.GetValue()
		}
	}
	return 0
}

func getHistogramCount(mf *io_prometheus_client.MetricFamily, labels map[string]string) uint64 {
	for _, metric := range mf.Metric {
		if matchLabels(metric.Label, labels) && metric.Histogram != nil {
			return metric.Histogram.GetSampleCount()
		}
	}
	return 0
}

func matchLabels(metricLabels []*io_prometheus_client.LabelPair, expected map[string]string) bool {
	if len(metricLabels) != len(expected) {
		return false
	}
	for _, lp := range metricLabels {
		if expected[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}
