package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// IngestMetrics holds metrics for the ingestion pipeline.
type IngestMetrics struct {
	// FilesTotal counts processed files.
	// Labels: operation (ADD, APPEND, REPLACE, DELETE, CANCEL), status (success, failure)
	FilesTotal *prometheus.CounterVec

	// FileLatency tracks end-to-end processing time of one file.
	// Labels: operation, status
	FileLatency *prometheus.HistogramVec

	// RowsTotal counts data rows read from input streams.
	RowsTotal prometheus.Counter

	// BytesTotal counts bytes written per branch.
	// Labels: branch (raw, columnar)
	BytesTotal *prometheus.CounterVec

	// RowErrorsTotal counts row-level anomalies.
	// Labels: kind (column_count, type_mismatch)
	RowErrorsTotal *prometheus.CounterVec

	// CollisionsTotal counts collision records produced by checks.
	// Labels: type (SAME_SCHEMA, SCHEMA_CHANGED, IDENTICAL)
	CollisionsTotal *prometheus.CounterVec
}

// Branch label values.
const (
	BranchRaw      = "raw"
	BranchColumnar = "columnar"
)

// DefaultFileLatencyBuckets span small uploads to multi-gigabyte streams.
var DefaultFileLatencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800,
}

// NewIngestMetrics creates ingestion metrics registered with the default
// registry.
func NewIngestMetrics() *IngestMetrics {
	return newIngestMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewIngestMetricsWithRegistry creates ingestion metrics registered with reg.
func NewIngestMetricsWithRegistry(reg prometheus.Registerer) *IngestMetrics {
	return newIngestMetrics(promauto.With(reg))
}

func newIngestMetrics(f promauto.Factory) *IngestMetrics {
	return &IngestMetrics{
		FilesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gridlake",
				Subsystem: "ingest",
				Name:      "files_total",
				Help:      "Total number of files processed, broken down by operation and status.",
			},
			[]string{"operation", "status"},
		),
		FileLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gridlake",
				Subsystem: "ingest",
				Name:      "file_latency_seconds",
				Help:      "Time to process one file, broken down by operation and status.",
				Buckets:   DefaultFileLatencyBuckets,
			},
			[]string{"operation", "status"},
		),
		RowsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gridlake",
				Subsystem: "ingest",
				Name:      "rows_total",
				Help:      "Total number of data rows read from input streams.",
			},
		),
		BytesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gridlake",
				Subsystem: "ingest",
				Name:      "bytes_total",
				Help:      "Total bytes written by each conversion branch.",
			},
			[]string{"branch"},
		),
		RowErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gridlake",
				Subsystem: "ingest",
				Name:      "row_errors_total",
				Help:      "Total number of row-level anomalies, broken down by kind.",
			},
			[]string{"kind"},
		),
		CollisionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gridlake",
				Subsystem: "ingest",
				Name:      "collisions_total",
				Help:      "Total number of collisions reported, broken down by collision type.",
			},
			[]string{"type"},
		),
	}
}

// RecordFile records one processed file.
func (m *IngestMetrics) RecordFile(operation string, durationSeconds float64, success bool) {
	status := statusLabel(success)
	m.FilesTotal.WithLabelValues(operation, status).Inc()
	m.FileLatency.WithLabelValues(operation, status).Observe(durationSeconds)
}

// RecordRows adds n rows.
func (m *IngestMetrics) RecordRows(n int64) {
	if n > 0 {
		m.RowsTotal.Add(float64(n))
	}
}

// RecordBytes adds n bytes written by branch.
func (m *IngestMetrics) RecordBytes(branch string, n int64) {
	if n > 0 {
		m.BytesTotal.WithLabelValues(branch).Add(float64(n))
	}
}

// RecordRowErrors adds n anomalies of kind.
func (m *IngestMetrics) RecordRowErrors(kind string, n int) {
	if n > 0 {
		m.RowErrorsTotal.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordCollision counts one collision record.
func (m *IngestMetrics) RecordCollision(collisionType string) {
	m.CollisionsTotal.WithLabelValues(collisionType).Inc()
}
