// Package telemetry implements the telemetry sinks: a structured logger, an
// asynchronous forwarder to a remote publisher and a Kafka publisher that
// ships messages as CloudEvents.
package telemetry

import (
	"log/slog"

	"github.com/jittakal/replayintake/pkg/telemetry"
)

// Ensure implementations satisfy interface at compile time.
var (
	_ telemetry.Telemetry = (*Logger)(nil)
	_ telemetry.Telemetry = Multi{}
)

// Logger writes telemetry messages to a slog logger.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a telemetry logger.
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger.With("component", "telemetry")}
}

// Debug logs a debug-level message.
func (l *Logger) Debug(message string) {
	l.logger.Debug(message)
}

// Info logs an informational message.
func (l *Logger) Info(message string) {
	l.logger.Info(message)
}

// Error logs an error-level message.
func (l *Logger) Error(message, kind, stack string) {
	attrs := make([]any, 0, 4)
	if kind != "" {
		attrs = append(attrs, "kind", kind)
	}
	if stack != "" {
		attrs = append(attrs, "stack", stack)
	}
	l.logger.Error(message, attrs...)
}

// Multi fans every message out to all of its sinks.
type Multi []telemetry.Telemetry

func (m Multi) Debug(message string) {
	for _, t := range m {
		t.Debug(message)
	}
}

func (m Multi) Info(message string) {
	for _, t := range m {
		t.Info(message)
	}
}

func (m Multi) Error(message, kind, stack string) {
	for _, t := range m {
		t.Error(message, kind, stack)
	}
}
