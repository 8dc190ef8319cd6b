package logging

import (
	"context"
)

type contextKey int

const (
	processIDKey contextKey = iota
	scopeKey
	loggerKey
)

type scope struct {
	clientID string
	modelID  string
}

// WithProcessIDCtx returns a new context carrying an ingestion process ID.
func WithProcessIDCtx(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, processIDKey, id)
}

// ProcessIDFromCtx extracts the process ID from the context.
func ProcessIDFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(processIDKey).(string); ok {
		return id
	}
	return ""
}

// WithScopeCtx returns a new context carrying a client and model ID.
func WithScopeCtx(ctx context.Context, clientID, modelID string) context.Context {
	return context.WithValue(ctx, scopeKey, scope{clientID: clientID, modelID: modelID})
}

// ScopeFromCtx extracts the client and model ID from the context.
func ScopeFromCtx(ctx context.Context) (clientID, modelID string) {
	if s, ok := ctx.Value(scopeKey).(scope); ok {
		return s.clientID, s.modelID
	}
	return "", ""
}

// WithLoggerCtx returns a new context with the logger attached.
func WithLoggerCtx(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// LoggerFromCtx returns the logger from context, or nil if not set.
func LoggerFromCtx(ctx context.Context) *Logger {
	l, _ := ctx.Value(loggerKey).(*Logger)
	return l
}

// FromCtx returns the logger attached to ctx. Without one, it returns the
// global logger tagged with the process ID and scope found in ctx.
func FromCtx(ctx context.Context) *Logger {
	if l := LoggerFromCtx(ctx); l != nil {
		return l
	}
	return tag(ctx, Global())
}

// ContextLogger returns the logger from ctx, falling back to base and then
// the global logger, tagged with any IDs the context carries.
func ContextLogger(ctx context.Context, base *Logger) *Logger {
	l := LoggerFromCtx(ctx)
	if l == nil {
		l = base
	}
	if l == nil {
		l = Global()
	}
	return tag(ctx, l)
}

func tag(ctx context.Context, l *Logger) *Logger {
	if id := ProcessIDFromCtx(ctx); id != "" {
		l = l.WithProcessID(id)
	}
	if c, m := ScopeFromCtx(ctx); c != "" || m != "" {
		l = l.WithScope(c, m)
	}
	return l
}

// PropagateIDs copies the logger's process ID and scope into ctx.
func PropagateIDs(ctx context.Context, l *Logger) context.Context {
	if l == nil {
		return ctx
	}
	if t := l.tags; t.processID != "" {
		ctx = WithProcessIDCtx(ctx, t.processID)
	}
	if t := l.tags; t.clientID != "" || t.modelID != "" {
		ctx = WithScopeCtx(ctx, t.clientID, t.modelID)
	}
	return ctx
}
