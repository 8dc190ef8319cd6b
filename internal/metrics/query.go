package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueryMetrics holds metrics for the query service gateway.
type QueryMetrics struct {
	// LatencyHistogram tracks time from submission to a terminal outcome.
	// Labels: backend (athena, duckdb), outcome (success, failure, timeout)
	LatencyHistogram *prometheus.HistogramVec

	// QueriesTotal counts queries by backend and outcome.
	QueriesTotal *prometheus.CounterVec

	// PollsTotal counts status polls by backend.
	PollsTotal *prometheus.CounterVec
}

// Query outcome label values. Success and failure reuse the status values.
const (
	OutcomeSuccess = StatusSuccess
	OutcomeFailure = StatusFailure
	OutcomeTimeout = "timeout"
)

// DefaultQueryLatencyBuckets run from tens of milliseconds to the longest
// configured timeouts.
var DefaultQueryLatencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewQueryMetrics creates query metrics registered with the default registry.
func NewQueryMetrics() *QueryMetrics {
	return newQueryMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewQueryMetricsWithRegistry creates query metrics registered with reg.
func NewQueryMetricsWithRegistry(reg prometheus.Registerer) *QueryMetrics {
	return newQueryMetrics(promauto.With(reg))
}

func newQueryMetrics(f promauto.Factory) *QueryMetrics {
	return &QueryMetrics{
		LatencyHistogram: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gridlake",
				Subsystem: "query",
				Name:      "latency_seconds",
				Help:      "Query latency from submission to terminal outcome, broken down by backend and outcome.",
				Buckets:   DefaultQueryLatencyBuckets,
			},
			[]string{"backend", "outcome"},
		),
		QueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gridlake",
				Subsystem: "query",
				Name:      "queries_total",
				Help:      "Total number of queries, broken down by backend and outcome.",
			},
			[]string{"backend", "outcome"},
		),
		PollsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gridlake",
				Subsystem: "query",
				Name:      "polls_total",
				Help:      "Total number of job status polls, broken down by backend.",
			},
			[]string{"backend"},
		),
	}
}

// RecordQuery records a query that reached outcome after durationSeconds.
func (m *QueryMetrics) RecordQuery(backend string, durationSeconds float64, outcome string) {
	m.LatencyHistogram.WithLabelValues(backend, outcome).Observe(durationSeconds)
	m.QueriesTotal.WithLabelValues(backend, outcome).Inc()
}

// RecordPoll counts one status poll.
func (m *QueryMetrics) RecordPoll(backend string) {
	m.PollsTotal.WithLabelValues(backend).Inc()
}
