// Package query runs SQL against an asynchronous, job based query service.
//
// A [JobClient] adapts one backend (Athena, or the in-process DuckDB runner
// in localjobs). The [Gateway] owns the submit, poll and fetch loop on top
// of it: one submission, a status check every poll interval, and a wall
// clock deadline measured from submission. Nothing is retried.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gridlake-io/gridlake/internal/errs"
	"github.com/gridlake-io/gridlake/internal/logging"
)

// State is the lifecycle state of a submitted job.
type State string

const (
	StateQueued    State = "QUEUED"
	StateRunning   State = "RUNNING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Status is a job's state plus the service's reason for it, if any.
type Status struct {
	State  State
	Reason string
}

// Row is one result row keyed by column name.
type Row map[string]any

// JobClient is one query service backend.
type JobClient interface {
	// Name labels metrics and logs, e.g. "athena".
	Name() string

	Submit(ctx context.Context, sql string) (jobID string, err error)
	Status(ctx context.Context, jobID string) (Status, error)

	// Results returns every row of a succeeded job. A statement without a
	// result set returns an empty slice.
	Results(ctx context.Context, jobID string) ([]Row, error)
}

// Canceler is implemented by clients that can stop a running job. The
// gateway uses it after a timeout.
type Canceler interface {
	Cancel(ctx context.Context, jobID string) error
}

// MetricsRecorder records gateway outcomes. It keeps this package
// independent of the metrics package.
type MetricsRecorder interface {
	RecordQuery(backend string, durationSeconds float64, outcome string)
	RecordPoll(backend string)
}

// Outcome label values passed to MetricsRecorder.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Defaults for zero Options fields.
const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultTimeout      = 10 * time.Second
)

// Options configures a Gateway.
type Options struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// Gateway runs queries through a JobClient.
type Gateway struct {
	client  JobClient
	opts    Options
	metrics MetricsRecorder

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// NewGateway creates a Gateway.
func NewGateway(client JobClient, opts Options) *Gateway {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Gateway{
		client: client,
		opts:   opts,
		now:    time.Now,
		after:  time.After,
	}
}

// SetMetrics installs a recorder. Passing nil disables recording.
func (g *Gateway) SetMetrics(m MetricsRecorder) {
	g.metrics = m
}

// Backend returns the client's name.
func (g *Gateway) Backend() string {
	return g.client.Name()
}

// Run executes sql with the default wait budget.
func (g *Gateway) Run(ctx context.Context, sql string) ([]Row, error) {
	return g.RunWithTimeout(ctx, sql, g.opts.Timeout)
}

// RunWithTimeout executes sql and waits at most timeout, measured from
// submission, for the job to finish.
//
// Errors are typed by kind: errs.ErrQueryTimeout when the job is still
// running at the deadline, errs.ErrQueryExecution when the service reports
// failure, errs.ErrInvalidOperation for transport faults.
func (g *Gateway) RunWithTimeout(ctx context.Context, sql string, timeout time.Duration) ([]Row, error) {
	backend := g.client.Name()
	start := g.now()

	rows, err := g.run(ctx, sql, timeout)

	if g.metrics != nil {
		outcome := OutcomeSuccess
		switch {
		case err == nil:
		case isTimeout(err):
			outcome = OutcomeTimeout
		default:
			outcome = OutcomeFailure
		}
		g.metrics.RecordQuery(backend, g.now().Sub(start).Seconds(), outcome)
	}
	return rows, err
}

func (g *Gateway) run(ctx context.Context, sql string, timeout time.Duration) ([]Row, error) {
	backend := g.client.Name()
	log := logging.FromCtx(ctx).With(map[string]any{"backend": backend})

	deadline := g.now().Add(timeout)
	jobID, err := g.client.Submit(ctx, sql)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidOperation, "query.Submit", errs.Subject("backend", backend), err)
	}
	subject := errs.Subject("backend", backend, "job", jobID)
	log.Debugf("query submitted", map[string]any{"job": jobID, "sql": abbreviate(sql)})

	for {
		st, err := g.client.Status(ctx, jobID)
		if g.metrics != nil {
			g.metrics.RecordPoll(backend)
		}
		if err != nil {
			return nil, errs.Wrap(errs.ErrInvalidOperation, "query.Status", subject, err)
		}

		switch st.State {
		case StateSucceeded:
			rows, err := g.client.Results(ctx, jobID)
			if err != nil {
				return nil, errs.Wrap(errs.ErrInvalidOperation, "query.Results", subject, err)
			}
			if rows == nil {
				rows = []Row{}
			}
			return rows, nil
		case StateFailed, StateCancelled:
			log.Warnf("query failed", map[string]any{"job": jobID, "state": string(st.State), "reason": st.Reason})
			return nil, errs.New(errs.ErrQueryExecution, "query.Run", "", subject, fmt.Sprintf("job %s: %s", st.State, st.Reason))
		}

		remaining := deadline.Sub(g.now())
		if remaining <= 0 {
			g.cancel(ctx, jobID, log)
			return nil, errs.New(errs.ErrQueryTimeout, "query.Run", "", subject,
				fmt.Sprintf("still %s after %s", st.State, timeout))
		}

		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.ErrInvalidOperation, "query.Run", subject, ctx.Err())
		case <-g.after(min(g.opts.PollInterval, remaining)):
		}
	}
}

func (g *Gateway) cancel(ctx context.Context, jobID string, log *logging.Logger) {
	c, ok := g.client.(Canceler)
	if !ok {
		return
	}
	if err := c.Cancel(context.WithoutCancel(ctx), jobID); err != nil {
		log.Warnf("cancel timed out query", map[string]any{"job": jobID, "error": err.Error()})
	}
}

func isTimeout(err error) bool {
	return errors.Is(err, errs.ErrQueryTimeout)
}

func abbreviate(sql string) string {
	const limit = 200
	if len(sql) <= limit {
		return sql
	}
	return sql[:limit] + "..."
}
