package query

import (
	"context"
	"fmt"
	"sync"
)

// Handler answers one statement for MockClient. Returning an error marks
// the job FAILED with the error text as reason.
type Handler func(sql string) ([]Row, error)

// MockClient is an in-memory JobClient for testing. Each job reports
// RUNNING for PendingPolls status checks before it resolves.
type MockClient struct {
	mu           sync.Mutex
	handler      Handler
	pendingPolls int
	hang         bool
	jobs         map[string]*mockJob
	statements   []string
	statusCalls  int
	cancelled    []string
	submitErr    error
}

type mockJob struct {
	sql   string
	polls int
	rows  []Row
	err   error
	done  bool
}

// NewMockClient creates a MockClient. A nil handler answers every
// statement with no rows.
func NewMockClient(h Handler) *MockClient {
	if h == nil {
		h = func(string) ([]Row, error) { return nil, nil }
	}
	return &MockClient{handler: h, jobs: make(map[string]*mockJob)}
}

// SetPendingPolls sets how many status checks report RUNNING before a job
// resolves.
func (c *MockClient) SetPendingPolls(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingPolls = n
}

// Hang makes every job report RUNNING forever.
func (c *MockClient) Hang() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hang = true
}

// FailSubmit makes Submit return err.
func (c *MockClient) FailSubmit(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitErr = err
}

// Statements returns every submitted statement in order.
func (c *MockClient) Statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.statements))
	copy(out, c.statements)
	return out
}

// StatusCalls returns the number of Status calls so far.
func (c *MockClient) StatusCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusCalls
}

// Cancelled returns the ids passed to Cancel.
func (c *MockClient) Cancelled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cancelled...)
}

func (c *MockClient) Name() string { return "mock" }

func (c *MockClient) Submit(_ context.Context, sql string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.submitErr != nil {
		return "", c.submitErr
	}
	c.statements = append(c.statements, sql)
	id := fmt.Sprintf("job-%d", len(c.statements))
	c.jobs[id] = &mockJob{sql: sql}
	return id, nil
}

func (c *MockClient) Status(_ context.Context, jobID string) (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCalls++
	job, ok := c.jobs[jobID]
	if !ok {
		return Status{}, fmt.Errorf("mock: unknown job %s", jobID)
	}
	if c.hang || job.polls < c.pendingPolls {
		job.polls++
		return Status{State: StateRunning}, nil
	}
	if !job.done {
		job.rows, job.err = c.handler(job.sql)
		job.done = true
	}
	if job.err != nil {
		return Status{State: StateFailed, Reason: job.err.Error()}, nil
	}
	return Status{State: StateSucceeded}, nil
}

func (c *MockClient) Results(_ context.Context, jobID string) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job, ok := c.jobs[jobID]
	if !ok || !job.done {
		return nil, fmt.Errorf("mock: job %s has no results", jobID)
	}
	return job.rows, nil
}

func (c *MockClient) Cancel(_ context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, jobID)
	return nil
}

var (
	_ JobClient = (*MockClient)(nil)
	_ Canceler  = (*MockClient)(nil)
)
