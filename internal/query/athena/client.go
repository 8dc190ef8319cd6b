// Package athena adapts Amazon Athena to the query.JobClient contract.
package athena

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/gridlake-io/gridlake/internal/query"
)

// API is the subset of *athena.Client used here.
type API interface {
	StartQueryExecution(ctx context.Context, in *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, in *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, in *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
	StopQueryExecution(ctx context.Context, in *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error)
}

// Config selects where queries run and where Athena writes results.
type Config struct {
	Database       string
	Workgroup      string
	OutputLocation string
}

// Client is a query.JobClient backed by Athena.
type Client struct {
	api API
	cfg Config
}

// New creates a Client over api.
func New(api API, cfg Config) *Client {
	return &Client{api: api, cfg: cfg}
}

// NewFromConfig creates a Client from an AWS configuration.
func NewFromConfig(awsCfg aws.Config, cfg Config) *Client {
	return New(athena.NewFromConfig(awsCfg), cfg)
}

func (c *Client) Name() string { return "athena" }

func (c *Client) Submit(ctx context.Context, sql string) (string, error) {
	in := &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
	}
	if c.cfg.Database != "" {
		in.QueryExecutionContext = &types.QueryExecutionContext{Database: aws.String(c.cfg.Database)}
	}
	if c.cfg.Workgroup != "" {
		in.WorkGroup = aws.String(c.cfg.Workgroup)
	}
	if c.cfg.OutputLocation != "" {
		in.ResultConfiguration = &types.ResultConfiguration{OutputLocation: aws.String(c.cfg.OutputLocation)}
	}

	out, err := c.api.StartQueryExecution(ctx, in)
	if err != nil {
		return "", fmt.Errorf("athena: start query: %w", err)
	}
	if out.QueryExecutionId == nil {
		return "", errors.New("athena: start query returned no execution id")
	}
	return *out.QueryExecutionId, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (query.Status, error) {
	out, err := c.api.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(jobID),
	})
	if err != nil {
		return query.Status{}, fmt.Errorf("athena: get query execution %s: %w", jobID, err)
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return query.Status{}, fmt.Errorf("athena: query execution %s has no status", jobID)
	}

	st := out.QueryExecution.Status
	status := query.Status{State: mapState(st.State)}
	if st.StateChangeReason != nil {
		status.Reason = *st.StateChangeReason
	}
	if st.AthenaError != nil && st.AthenaError.ErrorMessage != nil && status.Reason == "" {
		status.Reason = *st.AthenaError.ErrorMessage
	}
	return status, nil
}

func mapState(s types.QueryExecutionState) query.State {
	switch s {
	case types.QueryExecutionStateQueued:
		return query.StateQueued
	case types.QueryExecutionStateRunning:
		return query.StateRunning
	case types.QueryExecutionStateSucceeded:
		return query.StateSucceeded
	case types.QueryExecutionStateFailed:
		return query.StateFailed
	case types.QueryExecutionStateCancelled:
		return query.StateCancelled
	default:
		return query.StateRunning
	}
}

// Results pages through the result set. Athena repeats the column names as
// the first row of a SELECT; that row is dropped.
func (c *Client) Results(ctx context.Context, jobID string) ([]query.Row, error) {
	rows := []query.Row{}
	var names []string
	var token *string
	first := true

	for {
		out, err := c.api.GetQueryResults(ctx, &athena.GetQueryResultsInput{
			QueryExecutionId: aws.String(jobID),
			NextToken:        token,
		})
		if err != nil {
			return nil, fmt.Errorf("athena: get query results %s: %w", jobID, err)
		}
		if out.ResultSet == nil {
			return rows, nil
		}
		if names == nil && out.ResultSet.ResultSetMetadata != nil {
			for _, ci := range out.ResultSet.ResultSetMetadata.ColumnInfo {
				names = append(names, aws.ToString(ci.Name))
			}
		}

		for i, r := range out.ResultSet.Rows {
			if first && i == 0 && isHeader(r, names) {
				continue
			}
			row := make(query.Row, len(names))
			for j, d := range r.Data {
				if j >= len(names) {
					break
				}
				if d.VarCharValue == nil {
					row[names[j]] = nil
					continue
				}
				row[names[j]] = *d.VarCharValue
			}
			rows = append(rows, row)
		}
		first = false

		if out.NextToken == nil || *out.NextToken == "" {
			return rows, nil
		}
		token = out.NextToken
	}
}

func isHeader(r types.Row, names []string) bool {
	if len(names) == 0 || len(r.Data) != len(names) {
		return false
	}
	for i, d := range r.Data {
		if aws.ToString(d.VarCharValue) != names[i] {
			return false
		}
	}
	return true
}

// Cancel stops a running execution.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	_, err := c.api.StopQueryExecution(ctx, &athena.StopQueryExecutionInput{
		QueryExecutionId: aws.String(jobID),
	})
	if err != nil {
		return fmt.Errorf("athena: stop query %s: %w", jobID, err)
	}
	return nil
}

var (
	_ query.JobClient = (*Client)(nil)
	_ query.Canceler  = (*Client)(nil)
)
