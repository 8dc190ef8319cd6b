// Package logging provides structured logging that carries the ingestion
// process ID and the client/model scope of the work being logged.
package logging

import (
	"encoding/json"
	"io"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the severity of an entry.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"debug", "info", "warn", "error"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLevel reads a config value. Matching ignores case, "warning" is an
// alias of warn and anything else is info.
func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return LevelWarn
	}
	for i, name := range levelNames {
		if s == name {
			return Level(i)
		}
	}
	return LevelInfo
}

// Format selects how entries are rendered.
type Format int

const (
	// FormatJSON writes one JSON object per line.
	FormatJSON Format = iota
	// FormatText writes "time [level] message key=value ..." lines.
	FormatText
)

// ParseFormat reads a config value. Only "text" selects FormatText.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "text") {
		return FormatText
	}
	return FormatJSON
}

// Entry is one rendered log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	ProcessID string         `json:"processId,omitempty"`
	ClientID  string         `json:"clientId,omitempty"`
	ModelID   string         `json:"modelId,omitempty"`
	File      string         `json:"file,omitempty"`
	Line      int            `json:"line,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// tags identify the ingestion work an entry belongs to.
type tags struct {
	processID string
	clientID  string
	modelID   string
}

// sink serializes writes from a logger and all loggers derived from it.
type sink struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *sink) write(p []byte) {
	s.mu.Lock()
	_, _ = s.out.Write(p)
	s.mu.Unlock()
}

// Logger writes structured entries. Derived loggers share the level and
// destination of their parent; fields and tags are copied.
type Logger struct {
	sink       *sink
	level      *atomic.Int32
	format     Format
	addCaller  bool
	callerSkip int
	fields     map[string]any
	tags       tags
}

// Config holds configuration for a Logger.
type Config struct {
	Level      Level
	Format     Format
	Output     io.Writer
	AddCaller  bool
	CallerSkip int
}

// New creates a Logger. A nil Output writes to stderr.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	level := new(atomic.Int32)
	level.Store(int32(cfg.Level))
	return &Logger{
		sink:       &sink{out: out},
		level:      level,
		format:     cfg.Format,
		addCaller:  cfg.AddCaller,
		callerSkip: cfg.CallerSkip,
	}
}

// DefaultLogger returns an info-level JSON logger writing to stderr.
func DefaultLogger() *Logger {
	return New(Config{Level: LevelInfo, Format: FormatJSON})
}

// SetLevel changes the minimum level of l and every logger derived from it.
func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// GetLevel returns the current minimum level.
func (l *Logger) GetLevel() Level {
	return Level(l.level.Load())
}

func (l *Logger) derive() *Logger {
	c := *l
	return &c
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	c := l.derive()
	c.fields = make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		c.fields[k] = v
	}
	for k, v := range fields {
		c.fields[k] = v
	}
	return c
}

// WithProcessID returns a logger tagged with an ingestion process ID.
func (l *Logger) WithProcessID(id string) *Logger {
	c := l.derive()
	c.tags.processID = id
	return c
}

// WithScope returns a logger tagged with a client and model.
func (l *Logger) WithScope(clientID, modelID string) *Logger {
	c := l.derive()
	c.tags.clientID = clientID
	c.tags.modelID = modelID
	return c
}

func (l *Logger) Debug(msg string)                         { l.log(LevelDebug, msg, nil) }
func (l *Logger) Debugf(msg string, fields map[string]any) { l.log(LevelDebug, msg, fields) }
func (l *Logger) Info(msg string)                          { l.log(LevelInfo, msg, nil) }
func (l *Logger) Infof(msg string, fields map[string]any)  { l.log(LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string)                          { l.log(LevelWarn, msg, nil) }
func (l *Logger) Warnf(msg string, fields map[string]any)  { l.log(LevelWarn, msg, fields) }
func (l *Logger) Error(msg string)                         { l.log(LevelError, msg, nil) }
func (l *Logger) Errorf(msg string, fields map[string]any) { l.log(LevelError, msg, fields) }

func (l *Logger) log(level Level, msg string, extra map[string]any) {
	if level < l.GetLevel() {
		return
	}
	e := Entry{
		Timestamp: time.Now().UTC(),
		Level:     level.String(),
		Message:   msg,
		ProcessID: l.tags.processID,
		ClientID:  l.tags.clientID,
		ModelID:   l.tags.modelID,
	}
	if l.addCaller {
		if _, file, line, ok := runtime.Caller(2 + l.callerSkip); ok {
			e.File, e.Line = file, line
		}
	}
	if n := len(l.fields) + len(extra); n > 0 {
		e.Fields = make(map[string]any, n)
		for k, v := range l.fields {
			e.Fields[k] = v
		}
		for k, v := range extra {
			// Errors marshal to {} otherwise.
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			e.Fields[k] = v
		}
	}

	if l.format == FormatText {
		l.sink.write(formatText(e))
		return
	}
	data, _ := json.Marshal(e)
	l.sink.write(append(data, '\n'))
}

func formatText(e Entry) []byte {
	var b strings.Builder
	b.WriteString(e.Timestamp.Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(e.Level)
	b.WriteString("] ")
	b.WriteString(e.Message)

	pair := func(k, v string) {
		if v == "" {
			return
		}
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		if strings.ContainsAny(v, " \t\n\"=") {
			v = strconv.Quote(v)
		}
		b.WriteString(v)
	}
	pair("processId", e.ProcessID)
	pair("clientId", e.ClientID)
	pair("modelId", e.ModelID)
	if e.File != "" {
		pair("file", e.File+":"+strconv.Itoa(e.Line))
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := e.Fields[k].(type) {
		case string:
			pair(k, v)
		default:
			data, _ := json.Marshal(v)
			pair(k, string(data))
		}
	}
	b.WriteByte('\n')
	return []byte(b.String())
}
