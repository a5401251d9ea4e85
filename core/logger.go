package core

import (
	"github.com/go-logr/logr"
)

// Logger interface for structured logging
// Implementations can provide custom logging behavior; NewLogrLogger bridges any logr sink (zap, testr, ...).
type Logger interface {
	// Debug logs a debug message with optional fields
	Debug(msg string, fields ...Field)

	// Info logs an info message with optional fields
	Info(msg string, fields ...Field)

	// Warn logs a warning message with optional fields
	Warn(msg string, fields ...Field)

	// Error logs an error message with optional fields
	Error(msg string, fields ...Field)
}

// Field represents a key-value pair for structured logging
type Field struct {
	Key   string
	Value any
}

// F creates a new Field with the given key and value
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// LogrLogger adapts a logr.Logger. Debug maps to V(1); Warn is an Info line tagged
// with severity=warn since logr has no warning level.
type LogrLogger struct {
	log logr.Logger
}

// NewLogrLogger wraps l.
func NewLogrLogger(l logr.Logger) *LogrLogger {
	return &LogrLogger{log: l}
}

// Logr returns the underlying logr.Logger.
func (l *LogrLogger) Logr() logr.Logger { return l.log }

func (l *LogrLogger) Debug(msg string, fields ...Field) {
	l.log.V(1).Info(msg, keysAndValues(fields)...)
}

func (l *LogrLogger) Info(msg string, fields ...Field) {
	l.log.Info(msg, keysAndValues(fields)...)
}

func (l *LogrLogger) Warn(msg string, fields ...Field) {
	l.log.Info(msg, append(keysAndValues(fields), "severity", "warn")...)
}

func (l *LogrLogger) Error(msg string, fields ...Field) {
	var err error
	kv := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		if e, ok := f.Value.(error); ok && f.Key == "error" && err == nil {
			err = e
			continue
		}
		kv = append(kv, f.Key, f.Value)
	}
	l.log.Error(err, msg, kv...)
}

func keysAndValues(fields []Field) []any {
	kv := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}

// NoOpLogger is a logger that discards all log messages
// Useful for tests or when logging is not desired
type NoOpLogger struct{}

// NewNoOpLogger creates a new NoOpLogger
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...Field) {}
func (l *NoOpLogger) Info(msg string, fields ...Field)  {}
func (l *NoOpLogger) Warn(msg string, fields ...Field)  {}
func (l *NoOpLogger) Error(msg string, fields ...Field) {}
