// Package metrics provides Prometheus metrics for the ingestion pipeline.
//
// Metrics cover:
//   - object store operation latency, counts and bytes (raw and columnar uploads)
//   - metadata store operation latency and counts
//   - files ingested by operation and status, rows, row-level errors and per-file latency
//   - query gateway job latency, polls and timeouts
//   - orphan garbage collection progress
//
// Every family has a constructor that registers with the default registry and
// a WithRegistry variant for tests. Metrics are exposed via a dedicated HTTP
// server on /metrics in Prometheus format.
//
// Usage:
//
//	ingestMetrics := metrics.NewIngestMetrics()
//	store := objectstore.NewInstrumentedStore(s3Store, metrics.NewObjectStoreMetrics())
//
//	metricsServer := metrics.NewServer(":9090")
//	metricsServer.Start()
package metrics

// Label values shared by every family.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

func statusLabel(success bool) string {
	if success {
		return StatusSuccess
	}
	return StatusFailure
}
