// Package localjobs is an in-process query service: statements run on an
// embedded DuckDB database in background goroutines and are observed
// through the same submit and poll contract as a remote service.
package localjobs

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/gridlake-io/gridlake/internal/query"
)

// DefaultRetention is how long finished jobs stay queryable.
const DefaultRetention = 10 * time.Minute

// Options configures a Runner.
type Options struct {
	// InitSQL runs once when the runner opens, e.g. extension loading and
	// S3 secrets.
	InitSQL []string

	// Retention bounds how long finished jobs are kept.
	Retention time.Duration
}

// Runner executes statements asynchronously against DuckDB.
type Runner struct {
	db        *sql.DB
	retention time.Duration

	mu   sync.Mutex
	jobs map[string]*job
	wg   sync.WaitGroup

	closed bool
}

type job struct {
	state    query.State
	reason   string
	rows     []query.Row
	cancel   context.CancelFunc
	finished time.Time
}

// Open opens a DuckDB database at path ("" for in-memory) and runs the
// init statements.
func Open(ctx context.Context, path string, opts Options) (*Runner, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("localjobs: open duckdb: %w", err)
	}
	for _, stmt := range opts.InitSQL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("localjobs: init %q: %w", firstLine(stmt), err)
		}
	}
	return New(db, opts), nil
}

// New wraps an open database. The runner takes ownership of db.
func New(db *sql.DB, opts Options) *Runner {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Runner{
		db:        db,
		retention: opts.Retention,
		jobs:      make(map[string]*job),
	}
}

// DB exposes the underlying database.
func (r *Runner) DB() *sql.DB {
	return r.db
}

func (r *Runner) Name() string { return "duckdb" }

// Submit queues stmt and returns immediately.
func (r *Runner) Submit(_ context.Context, stmt string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", fmt.Errorf("localjobs: runner closed")
	}
	r.pruneLocked(time.Now())

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	r.jobs[id] = &job{state: query.StateQueued, cancel: cancel}

	r.wg.Add(1)
	go r.run(ctx, id, stmt)
	return id, nil
}

func (r *Runner) run(ctx context.Context, id, stmt string) {
	defer r.wg.Done()
	r.setState(id, query.StateRunning, "", nil)

	rows, err := r.execute(ctx, stmt)
	switch {
	case ctx.Err() != nil:
		r.setState(id, query.StateCancelled, "cancelled", nil)
	case err != nil:
		r.setState(id, query.StateFailed, err.Error(), nil)
	default:
		r.setState(id, query.StateSucceeded, "", rows)
	}
}

func (r *Runner) execute(ctx context.Context, stmt string) ([]query.Row, error) {
	rs, err := r.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	out := []query.Row{}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rs.Next() {
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(query.Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

func (r *Runner) setState(id string, state query.State, reason string, rows []query.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return
	}
	if j.state.Terminal() {
		return
	}
	j.state = state
	j.reason = reason
	j.rows = rows
	if state.Terminal() {
		j.finished = time.Now()
		j.cancel()
	}
}

func (r *Runner) Status(_ context.Context, id string) (query.Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return query.Status{}, fmt.Errorf("localjobs: unknown job %s", id)
	}
	return query.Status{State: j.state, Reason: j.reason}, nil
}

// Results returns the rows of a succeeded job and forgets it.
func (r *Runner) Results(_ context.Context, id string) ([]query.Row, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("localjobs: unknown job %s", id)
	}
	if j.state != query.StateSucceeded {
		return nil, fmt.Errorf("localjobs: job %s is %s", id, j.state)
	}
	delete(r.jobs, id)
	return j.rows, nil
}

// Cancel stops a queued or running job.
func (r *Runner) Cancel(_ context.Context, id string) error {
	r.mu.Lock()
	j, ok := r.jobs[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("localjobs: unknown job %s", id)
	}
	j.cancel()
	return nil
}

func (r *Runner) pruneLocked(now time.Time) {
	for id, j := range r.jobs {
		if j.state.Terminal() && now.Sub(j.finished) > r.retention {
			delete(r.jobs, id)
		}
	}
}

// Close cancels running jobs, waits for them and closes the database.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, j := range r.jobs {
		j.cancel()
	}
	r.mu.Unlock()

	r.wg.Wait()
	return r.db.Close()
}

// S3SecretSQL returns the statements that let DuckDB read s3:// objects
// with static credentials.
func S3SecretSQL(keyID, secret, endpoint, region string) []string {
	stmts := []string{"INSTALL httpfs; LOAD httpfs;"}
	if keyID == "" {
		return stmts
	}
	parts := []string{
		"TYPE S3",
		"KEY_ID " + quoteLiteral(keyID),
		"SECRET " + quoteLiteral(secret),
	}
	if region != "" {
		parts = append(parts, "REGION "+quoteLiteral(region))
	}
	if endpoint != "" {
		host := strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
		parts = append(parts, "ENDPOINT "+quoteLiteral(host), "URL_STYLE 'path'")
		if strings.HasPrefix(endpoint, "http://") {
			parts = append(parts, "USE_SSL false")
		}
	}
	return append(stmts, "CREATE OR REPLACE SECRET gridlake_s3 (\n\t"+strings.Join(parts, ",\n\t")+"\n)")
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var (
	_ query.JobClient = (*Runner)(nil)
	_ query.Canceler  = (*Runner)(nil)
)
