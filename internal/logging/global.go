package logging

import (
	"io"
	"os"
	"sync/atomic"
)

// global backs FromCtx when a context carries no logger, and the package
// level helpers used by background loops.
var global atomic.Pointer[Logger]

func init() {
	global.Store(DefaultLogger())
}

// SetGlobal replaces the global logger.
func SetGlobal(l *Logger) {
	global.Store(l)
}

// Global returns the global logger.
func Global() *Logger {
	return global.Load()
}

// Configure installs a stderr logger built from the observability config
// values and returns it.
func Configure(level, format string) *Logger {
	return ConfigureOutput(os.Stderr, level, format)
}

// ConfigureOutput is Configure with an explicit destination. Debug level
// also records the caller's file and line.
func ConfigureOutput(w io.Writer, level, format string) *Logger {
	lvl := ParseLevel(level)
	l := New(Config{
		Level:     lvl,
		Format:    ParseFormat(format),
		Output:    w,
		AddCaller: lvl == LevelDebug,
	})
	SetGlobal(l)
	return l
}

// Infof logs to the global logger.
func Infof(msg string, fields map[string]any) {
	Global().Infof(msg, fields)
}

// Warnf logs to the global logger.
func Warnf(msg string, fields map[string]any) {
	Global().Warnf(msg, fields)
}
