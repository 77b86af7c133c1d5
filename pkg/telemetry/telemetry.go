// Package telemetry defines the contract for reporting SDK-level diagnostics
// (build failures, clock synchronization status) to a telemetry sink.
//
// Calls are fire-and-forget: implementations must not block the caller on
// network I/O and must never fail the operation that reported.
package telemetry

import "context"

// Telemetry receives diagnostic messages.
type Telemetry interface {
	// Debug reports a debug-level message.
	Debug(message string)

	// Info reports an informational message.
	Info(message string)

	// Error reports an error-level message. kind and stack may be empty.
	Error(message, kind, stack string)
}

// Level is the severity of a telemetry message.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Message is a telemetry entry as handed to a publisher.
type Message struct {
	Level   Level
	Text    string
	Kind    string
	Stack   string
	Service string
}

// Publisher ships telemetry messages to a remote sink.
type Publisher interface {
	// Publish sends one message.
	Publish(ctx context.Context, msg Message) error

	// Close flushes pending messages and releases resources.
	Close() error
}

// Nop discards every message.
type Nop struct{}

func (Nop) Debug(string) {}

func (Nop) Info(string) {}

func (Nop) Error(string, string, string) {}
