package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/jittakal/replayintake/pkg/telemetry"
)

type mockMetrics struct {
	mu        sync.Mutex
	published map[string]int
	dropped   int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{published: make(map[string]int)}
}

func (m *mockMetrics) IncTelemetryPublished(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[status]++
}

func (m *mockMetrics) IncTelemetryDropped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped++
}

// recordingPublisher stores published messages. When block is set, Publish
// waits on it before recording.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []telemetry.Message
	err      error
	block    chan struct{}
	closed   bool
}

func (p *recordingPublisher) Publish(ctx context.Context, msg telemetry.Message) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}
