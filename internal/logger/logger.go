// Package logger provides a simple logging interface for pilot components.
// It allows packages to log debug, info, warn, and error messages without
// being coupled to a specific logging implementation. The default
// implementation writes through a zerolog console writer.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// DebugEnv enables debug output when set to any non-empty value.
const DebugEnv = "PILOT_DEBUG"

var (
	outMu sync.RWMutex
	base  = newBase(os.Stderr)
)

func newBase(w io.Writer) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05"}
	return zerolog.New(cw).With().Timestamp().Logger()
}

// SetOutput redirects every env logger to w. The dashboard uses this to keep
// log lines off the alternate screen.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	base = newBase(w)
}

// OpenFile redirects log output to the file at path, appending to it.
// The returned closer restores stderr output and closes the file.
func OpenFile(path string) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	SetOutput(f)
	return closerFunc(func() error {
		SetOutput(os.Stderr)
		return f.Close()
	}), nil
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }

func current() *zerolog.Logger {
	outMu.RLock()
	defer outMu.RUnlock()
	l := base
	return &l
}

// envLogger implements Logger and writes through zerolog.
// Debug messages are only printed when PILOT_DEBUG is set.
type envLogger struct {
	prefix string
}

// NewEnvLogger creates a logger that respects the PILOT_DEBUG environment variable.
// The prefix is prepended to all log messages (e.g., "[stream]" or "[nodeapi]").
func NewEnvLogger(prefix string) Logger {
	return &envLogger{prefix: prefix}
}

func (l *envLogger) msg(format string, args ...interface{}) string {
	if l.prefix == "" {
		return fmt.Sprintf(format, args...)
	}
	return l.prefix + " " + fmt.Sprintf(format, args...)
}

func (l *envLogger) Debug(format string, args ...interface{}) {
	if os.Getenv(DebugEnv) != "" {
		current().Debug().Msg(l.msg(format, args...))
	}
}

func (l *envLogger) Info(format string, args ...interface{}) {
	current().Info().Msg(l.msg(format, args...))
}

func (l *envLogger) Warn(format string, args ...interface{}) {
	current().Warn().Msg(l.msg(format, args...))
}

func (l *envLogger) Error(format string, args ...interface{}) {
	current().Error().Msg(l.msg(format, args...))
}

// noopLogger implements Logger but discards all messages.
type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(format string, args ...interface{}) {}
func (l *noopLogger) Info(format string, args ...interface{})  {}
func (l *noopLogger) Warn(format string, args ...interface{})  {}
func (l *noopLogger) Error(format string, args ...interface{}) {}

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger captures log messages for testing.
// Safe for use from the goroutines a stream session runs.
type BufferLogger struct {
	mu       sync.Mutex
	Messages []LogMessage
}

// NewBufferLogger creates a logger that captures messages for inspection.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{
		Messages: make([]LogMessage, 0),
	}
}

func (l *BufferLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = append(l.Messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Debug(format string, args ...interface{}) { l.add("debug", format, args...) }
func (l *BufferLogger) Info(format string, args ...interface{})  { l.add("info", format, args...) }
func (l *BufferLogger) Warn(format string, args ...interface{})  { l.add("warn", format, args...) }
func (l *BufferLogger) Error(format string, args ...interface{}) { l.add("error", format, args...) }

// Snapshot returns a copy of the captured messages.
func (l *BufferLogger) Snapshot() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogMessage, len(l.Messages))
	copy(out, l.Messages)
	return out
}

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level string) bool {
	for _, m := range l.Snapshot() {
		if m.Level == level {
			return true
		}
	}
	return false
}

// Clear removes all captured messages.
func (l *BufferLogger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Messages = l.Messages[:0]
}

// defaultLogger is the package-level default logger.
var defaultLogger = NewEnvLogger("")

// Default returns the default logger for the package.
func Default() Logger {
	return defaultLogger
}

// SetDefault sets the default logger for the package.
func SetDefault(l Logger) {
	defaultLogger = l
}
