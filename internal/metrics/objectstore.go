package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ObjectStoreMetrics holds metrics related to object store operations.
type ObjectStoreMetrics struct {
	// LatencyHistogram tracks operation latencies.
	// Labels: operation (put, part, get, head, delete, list), status (success, failure)
	LatencyHistogram *prometheus.HistogramVec

	// RequestsTotal tracks total object store operations by operation and status.
	RequestsTotal *prometheus.CounterVec

	// BytesTotal tracks total bytes transferred.
	// Labels: direction (read, write)
	BytesTotal *prometheus.CounterVec

	// KeysDeletedTotal counts keys removed by batch deletes.
	KeysDeletedTotal prometheus.Counter
}

// Object store operation label values.
const (
	OpObjPut    = "put"
	OpObjPart   = "part"
	OpObjGet    = "get"
	OpObjHead   = "head"
	OpObjDelete = "delete"
	OpObjList   = "list"

	OpObjDeleteBatch = "delete_batch"
)

// Bytes direction label values.
const (
	DirectionRead  = "read"
	DirectionWrite = "write"
)

// DefaultObjectStoreLatencyBuckets range from tens of ms to a minute, the
// span of S3 calls including multipart parts.
var DefaultObjectStoreLatencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0,
}

// NewObjectStoreMetrics creates object store metrics registered with the
// default registry.
func NewObjectStoreMetrics() *ObjectStoreMetrics {
	return newObjectStoreMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewObjectStoreMetricsWithRegistry creates object store metrics registered
// with reg.
func NewObjectStoreMetricsWithRegistry(reg prometheus.Registerer) *ObjectStoreMetrics {
	return newObjectStoreMetrics(promauto.With(reg))
}

func newObjectStoreMetrics(f promauto.Factory) *ObjectStoreMetrics {
	return &ObjectStoreMetrics{
		LatencyHistogram: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gridlake",
				Subsystem: "objectstore",
				Name:      "operation_latency_seconds",
				Help:      "Object store operation latency in seconds, broken down by operation and status.",
				Buckets:   DefaultObjectStoreLatencyBuckets,
			},
			[]string{"operation", "status"},
		),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gridlake",
				Subsystem: "objectstore",
				Name:      "operations_total",
				Help:      "Total number of object store operations, broken down by operation and status.",
			},
			[]string{"operation", "status"},
		),
		BytesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gridlake",
				Subsystem: "objectstore",
				Name:      "bytes_total",
				Help:      "Total bytes transferred by direction (read/write).",
			},
			[]string{"direction"},
		),
		KeysDeletedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gridlake",
				Subsystem: "objectstore",
				Name:      "keys_deleted_total",
				Help:      "Total number of keys removed by successful batch deletes.",
			},
		),
	}
}

// RecordOperation records an operation latency and increments the request counter.
func (m *ObjectStoreMetrics) RecordOperation(operation string, durationSeconds float64, success bool) {
	status := statusLabel(success)
	m.LatencyHistogram.WithLabelValues(operation, status).Observe(durationSeconds)
	m.RequestsTotal.WithLabelValues(operation, status).Inc()
}

func (m *ObjectStoreMetrics) recordBytes(direction string, success bool, bytes int64) {
	if success && bytes > 0 {
		m.BytesTotal.WithLabelValues(direction).Add(float64(bytes))
	}
}

// RecordPut records a single-request upload.
func (m *ObjectStoreMetrics) RecordPut(durationSeconds float64, success bool, bytes int64) {
	m.RecordOperation(OpObjPut, durationSeconds, success)
	m.recordBytes(DirectionWrite, success, bytes)
}

// RecordPart records one multipart part upload.
func (m *ObjectStoreMetrics) RecordPart(durationSeconds float64, success bool, bytes int64) {
	m.RecordOperation(OpObjPart, durationSeconds, success)
	m.recordBytes(DirectionWrite, success, bytes)
}

// RecordGet records a Get operation.
func (m *ObjectStoreMetrics) RecordGet(durationSeconds float64, success bool, bytes int64) {
	m.RecordOperation(OpObjGet, durationSeconds, success)
	m.recordBytes(DirectionRead, success, bytes)
}

// RecordHead records a Head operation.
func (m *ObjectStoreMetrics) RecordHead(durationSeconds float64, success bool) {
	m.RecordOperation(OpObjHead, durationSeconds, success)
}

// RecordDelete records a Delete operation.
func (m *ObjectStoreMetrics) RecordDelete(durationSeconds float64, success bool) {
	m.RecordOperation(OpObjDelete, durationSeconds, success)
}

// RecordList records a List operation.
func (m *ObjectStoreMetrics) RecordList(durationSeconds float64, success bool) {
	m.RecordOperation(OpObjList, durationSeconds, success)
}

// RecordDeleteBatch records one batch delete covering keys objects.
func (m *ObjectStoreMetrics) RecordDeleteBatch(durationSeconds float64, success bool, keys int) {
	m.RecordOperation(OpObjDeleteBatch, durationSeconds, success)
	if success {
		m.KeysDeletedTotal.Add(float64(keys))
	}
}
