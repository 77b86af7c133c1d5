package deadletter

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jittakal/replayintake/pkg/event"
)

// mockMetricsCollector implements MetricsCollector for testing
type mockMetricsCollector struct {
	mu                 sync.Mutex
	writes             map[string]int
	fileSizes          []float64
	durations          []float64
	lastErrorBackend   string
	lastErrorOperation string
}

func newMockMetrics() *mockMetricsCollector {
	return &mockMetricsCollector{writes: make(map[string]int)}
}

func (m *mockMetricsCollector) IncArchiveWrites(backend, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[backend+"/"+status]++
}

func (m *mockMetricsCollector) ObserveArchiveFileSize(backend string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileSizes = append(m.fileSizes, size)
}

func (m *mockMetricsCollector) ObserveArchiveWriteDuration(backend string, duration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations = append(m.durations, duration)
}

func (m *mockMetricsCollector) IncArchiveErrors(backend, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastErrorBackend = backend
	m.lastErrorOperation = operation
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var archivedAt = time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

func testLetter() event.DeadLetter {
	return event.DeadLetter{
		Category:   event.CategorySegment,
		FileName:   "1748781000000",
		Payload:    []byte(`[{"broken"]`),
		Reason:     "decoding error",
		Attempts:   3,
		ArchivedAt: archivedAt,
	}
}
