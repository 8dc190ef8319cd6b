package localjobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridlake-io/gridlake/internal/errs"
	"github.com/gridlake-io/gridlake/internal/query"
)

func openRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := Open(context.Background(), "", Options{})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRunnerThroughGateway(t *testing.T) {
	r := openRunner(t)
	g := query.NewGateway(r, query.Options{PollInterval: 5 * time.Millisecond, Timeout: 10 * time.Second})
	ctx := context.Background()

	_, err := g.Run(ctx, "CREATE TABLE sales (id DOUBLE, region VARCHAR)")
	require.NoError(t, err)

	_, err = g.Run(ctx, "INSERT INTO sales VALUES (1, 'north'), (2, 'south')")
	require.NoError(t, err)

	rows, err := g.Run(ctx, "SELECT id, region FROM sales ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 1.0, rows[0]["id"])
	assert.Equal(t, "south", rows[1]["region"])

	rows, err = g.Run(ctx, "SELECT table_name FROM information_schema.tables WHERE table_name = 'sales'")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRunnerFailedStatement(t *testing.T) {
	r := openRunner(t)
	g := query.NewGateway(r, query.Options{PollInterval: 5 * time.Millisecond, Timeout: 10 * time.Second})

	_, err := g.Run(context.Background(), "SELECT * FROM missing_table")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrQueryExecution), "err = %v", err)
	assert.Contains(t, strings.ToLower(err.Error()), "missing_table")
}

func TestRunnerResultsForgetJob(t *testing.T) {
	r := openRunner(t)
	ctx := context.Background()

	id, err := r.Submit(ctx, "SELECT 42 AS answer")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		st, err := r.Status(ctx, id)
		return err == nil && st.State == query.StateSucceeded
	}, 5*time.Second, 5*time.Millisecond)

	rows, err := r.Results(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	_, err = r.Status(ctx, id)
	assert.Error(t, err, "job should be forgotten after its results are read")
}

func TestRunnerSubmitAfterClose(t *testing.T) {
	r, err := Open(context.Background(), "", Options{})
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Submit(context.Background(), "SELECT 1")
	assert.Error(t, err)
}

func TestOpenRunsInitSQL(t *testing.T) {
	r, err := Open(context.Background(), "", Options{InitSQL: []string{"CREATE TABLE seeded AS SELECT 1 AS x"}})
	require.NoError(t, err)
	defer r.Close()

	var x int
	require.NoError(t, r.DB().QueryRow("SELECT x FROM seeded").Scan(&x))
	assert.Equal(t, 1, x)
}

func TestS3SecretSQL(t *testing.T) {
	assert.Equal(t, []string{"INSTALL httpfs; LOAD httpfs;"}, S3SecretSQL("", "", "", ""))

	stmts := S3SecretSQL("key", "it's", "http://localhost:9000", "us-east-1")
	require.Len(t, stmts, 2)
	secret := stmts[1]
	assert.Contains(t, secret, "KEY_ID 'key'")
	assert.Contains(t, secret, "SECRET 'it''s'")
	assert.Contains(t, secret, "ENDPOINT 'localhost:9000'")
	assert.Contains(t, secret, "USE_SSL false")
}
