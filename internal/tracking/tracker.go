// Package tracking records the lifecycle of ingestion processes so that
// callers can poll a process by id.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status is the state of a tracked process.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus converts a case-insensitive name into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(s)); st {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed:
		return st, nil
	default:
		return "", fmt.Errorf("tracking: unknown status %q", s)
	}
}

var (
	// ErrNotFound is returned for an unknown process id.
	ErrNotFound = errors.New("tracking: process not found")

	// ErrFinished is returned when updating a process that already
	// completed or failed.
	ErrFinished = errors.New("tracking: process already finished")
)

// Record is one tracked process.
type Record struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Tracker stores process records.
type Tracker interface {
	// Create starts tracking a new PENDING process.
	Create(ctx context.Context, name string) (Record, error)

	// Update moves a process to status. Finished processes cannot change.
	Update(ctx context.Context, id string, status Status, detail string) (Record, error)

	// Get returns a process, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)
}

// transition applies an update to rec.
func transition(rec Record, status Status, detail string, now time.Time) (Record, error) {
	if rec.Status.Terminal() {
		return rec, fmt.Errorf("%w: %s is %s", ErrFinished, rec.ID, rec.Status)
	}
	rec.Status = status
	rec.Detail = detail
	rec.UpdatedAt = now.UnixMilli()
	return rec, nil
}
