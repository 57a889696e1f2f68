package logging

import (
	"log/slog"
	"strings"
)

// Logger takes a message plus alternating key/value pairs, like slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LogLevel is the backend-neutral severity.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < LogLevelDebug || l > LogLevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel accepts debug, info, warn, warning and error in any case.
// Anything else is info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	}
	return LogLevelInfo
}

// SlogAdapter is the default backend.
type SlogAdapter struct {
	l *slog.Logger
}

// NewSlogAdapter wraps logger; nil uses slog.Default().
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{l: logger}
}

func (s *SlogAdapter) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *SlogAdapter) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *SlogAdapter) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *SlogAdapter) Error(msg string, args ...any) { s.l.Error(msg, args...) }

// NoOpLogger drops everything. It is the default of every Options struct.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
