package persistence

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jittakal/replayintake/internal/clock"
	"github.com/jittakal/replayintake/pkg/event"
)

// mockMetricsCollector implements MetricsCollector for testing
type mockMetricsCollector struct {
	mu               sync.Mutex
	filesCreated     int
	filesDeleted     map[string]int
	storageErrors    map[string]int
	eventsWritten    map[string]int
	batchesRead      int
	batchesCommitted int
	batchSizes       []float64
}

func newMockMetrics() *mockMetricsCollector {
	return &mockMetricsCollector{
		filesDeleted:  make(map[string]int),
		storageErrors: make(map[string]int),
		eventsWritten: make(map[string]int),
	}
}

func (m *mockMetricsCollector) IncFilesCreated(category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filesCreated++
}

func (m *mockMetricsCollector) IncFilesDeleted(category, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filesDeleted[reason]++
}

func (m *mockMetricsCollector) IncStorageErrors(category, operation string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storageErrors[operation]++
}

func (m *mockMetricsCollector) IncEventsWritten(category, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventsWritten[status]++
}

func (m *mockMetricsCollector) IncBatchesRead(category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchesRead++
}

func (m *mockMetricsCollector) IncBatchesCommitted(category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchesCommitted++
}

func (m *mockMetricsCollector) ObserveBatchSize(category string, size float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batchSizes = append(m.batchSizes, size)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// testConfig disables every threshold; tests enable the ones they exercise.
func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Category:  event.CategorySegment,
		Directory: t.TempDir(),
	}
}

func newTestOrchestrator(t *testing.T, config Config, clk clock.Clock) (*FilesOrchestrator, *mockMetricsCollector) {
	t.Helper()
	metrics := newMockMetrics()
	o, err := NewFilesOrchestrator(config, NewPolicy(config.PolicyConfig(), clk), clk, newTestLogger(), metrics)
	if err != nil {
		t.Fatalf("NewFilesOrchestrator() error = %v", err)
	}
	return o, metrics
}

// testPipeline wires a writer and reader over one directory.
type testPipeline struct {
	clock   *clock.FakeClock
	orch    *FilesOrchestrator
	queue   *Queue
	writer  *FileWriter
	reader  *FileReader
	metrics *mockMetricsCollector
}

func newTestPipeline(t *testing.T, config Config) *testPipeline {
	t.Helper()
	clk := clock.Fake(testStart)
	orch, metrics := newTestOrchestrator(t, config, clk)
	queue := NewQueue(16)
	t.Cleanup(queue.Close)

	return &testPipeline{
		clock:   clk,
		orch:    orch,
		queue:   queue,
		writer:  NewFileWriter(config, orch, queue, nil, newTestLogger(), metrics),
		reader:  NewFileReader(config, orch, queue, newTestLogger(), metrics),
		metrics: metrics,
	}
}
