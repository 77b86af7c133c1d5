package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jittakal/replayintake/pkg/telemetry"
)

var _ telemetry.Telemetry = (*Forwarder)(nil)

// MetricsCollector defines metrics operations for telemetry forwarding.
type MetricsCollector interface {
	IncTelemetryPublished(status string)
	IncTelemetryDropped()
}

// ForwarderConfig configures a Forwarder.
type ForwarderConfig struct {
	Service        string
	BufferSize     int
	PublishTimeout time.Duration
	// MinLevel drops messages below this level. Empty forwards everything.
	MinLevel telemetry.Level
}

// Forwarder queues messages and publishes them from a single goroutine.
// Reporting never blocks: when the buffer is full the message is dropped.
type Forwarder struct {
	config    ForwarderConfig
	publisher telemetry.Publisher
	logger    *slog.Logger
	metrics   MetricsCollector

	mu     sync.RWMutex
	closed bool
	queue  chan telemetry.Message
	done   chan struct{}
}

// NewForwarder starts a forwarder draining into publisher.
func NewForwarder(config ForwarderConfig, publisher telemetry.Publisher, logger *slog.Logger, metrics MetricsCollector) *Forwarder {
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}

	f := &Forwarder{
		config:    config,
		publisher: publisher,
		logger:    logger.With("component", "telemetry_forwarder"),
		metrics:   metrics,
		queue:     make(chan telemetry.Message, config.BufferSize),
		done:      make(chan struct{}),
	}
	go f.run()
	return f
}

func (f *Forwarder) Debug(message string) {
	f.enqueue(telemetry.Message{Level: telemetry.LevelDebug, Text: message})
}

func (f *Forwarder) Info(message string) {
	f.enqueue(telemetry.Message{Level: telemetry.LevelInfo, Text: message})
}

func (f *Forwarder) Error(message, kind, stack string) {
	f.enqueue(telemetry.Message{Level: telemetry.LevelError, Text: message, Kind: kind, Stack: stack})
}

func (f *Forwarder) enqueue(msg telemetry.Message) {
	if levelRank(msg.Level) < levelRank(f.config.MinLevel) {
		return
	}
	msg.Service = f.config.Service

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		f.metrics.IncTelemetryDropped()
		return
	}

	select {
	case f.queue <- msg:
	default:
		f.metrics.IncTelemetryDropped()
	}
}

func (f *Forwarder) run() {
	defer close(f.done)
	for msg := range f.queue {
		ctx, cancel := context.WithTimeout(context.Background(), f.config.PublishTimeout)
		err := f.publisher.Publish(ctx, msg)
		cancel()

		if err != nil {
			f.metrics.IncTelemetryPublished("failed")
			f.logger.Debug("failed to publish telemetry", "level", msg.Level, "error", err)
			continue
		}
		f.metrics.IncTelemetryPublished("success")
	}
}

// Close stops accepting messages, drains the queue and closes the publisher.
func (f *Forwarder) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.queue)
	f.mu.Unlock()

	<-f.done
	return f.publisher.Close()
}

func levelRank(level telemetry.Level) int {
	switch level {
	case telemetry.LevelDebug:
		return 1
	case telemetry.LevelInfo:
		return 2
	case telemetry.LevelError:
		return 3
	default:
		return 0
	}
}
