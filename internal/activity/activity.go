// Package activity emits one audit event per ingestion. Recording never
// fails the caller: sinks log their own delivery errors.
package activity

import (
	"context"
	"time"

	"github.com/gridlake-io/gridlake/internal/logging"
)

// Event is one audit record.
type Event struct {
	Type      string         `json:"type"`
	ProcessID string         `json:"processId,omitempty"`
	ClientID  string         `json:"clientId"`
	ModelID   string         `json:"modelId"`
	Status    string         `json:"status,omitempty"`
	Time      time.Time      `json:"time"`
	Details   map[string]any `json:"details,omitempty"`
}

// Event types.
const (
	TypeIngestion = "INGESTION"
	TypeGC        = "GC_SWEEP"
)

// Logger records events.
type Logger interface {
	Record(ctx context.Context, e Event)
}

// LogSink writes events as log lines.
type LogSink struct {
	log *logging.Logger
}

// NewLogSink creates a sink writing to log, or the global logger when nil.
func NewLogSink(log *logging.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Record(ctx context.Context, e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	fields := map[string]any{
		"type":     e.Type,
		"clientId": e.ClientID,
		"modelId":  e.ModelID,
		"status":   e.Status,
		"time":     e.Time.UTC().Format(time.RFC3339Nano),
	}
	if e.ProcessID != "" {
		fields["processId"] = e.ProcessID
	}
	for k, v := range e.Details {
		fields[k] = v
	}
	logging.ContextLogger(ctx, s.log).Infof("activity", fields)
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

var (
	_ Logger = (*LogSink)(nil)
	_ Logger = Nop{}
)
