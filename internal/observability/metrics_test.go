package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/jittakal/replayintake/internal/deadletter"
	"github.com/jittakal/replayintake/internal/persistence"
	"github.com/jittakal/replayintake/internal/sessionreplay"
	"github.com/jittakal/replayintake/internal/telemetry"
	"github.com/jittakal/replayintake/internal/timesync"
	"github.com/jittakal/replayintake/internal/upload"
)

// Metrics is shared by every component.
var (
	_ persistence.MetricsCollector   = (*Metrics)(nil)
	_ timesync.MetricsCollector      = (*Metrics)(nil)
	_ sessionreplay.MetricsCollector = (*Metrics)(nil)
	_ upload.MetricsCollector        = (*Metrics)(nil)
	_ deadletter.MetricsCollector    = (*Metrics)(nil)
	_ telemetry.MetricsCollector     = (*Metrics)(nil)
)

// value reads the current value of a counter or gauge.
func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.Write(&out); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	default:
		t.Fatalf("metric is neither a counter nor a gauge")
		return 0
	}
}

// seriesCount returns how many labelled series a collector exposes.
func seriesCount(t *testing.T, c prometheus.Collector) int {
	t.Helper()
	ch := make(chan prometheus.Metric, 64)
	c.Collect(ch)
	close(ch)
	return len(ch)
}

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestMetrics_Queue(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.IncFilesCreated("segment")
	metrics.IncFilesCreated("segment")
	metrics.IncFilesDeleted("segment", "committed")
	metrics.IncFilesDeleted("resource", "obsolete")
	metrics.IncStorageErrors("segment", "append")
	metrics.IncEventsWritten("segment", "success")
	metrics.IncBatchesRead("segment")
	metrics.IncBatchesCommitted("segment")
	metrics.ObserveBatchSize("segment", 2048)

	if got := value(t, metrics.FilesCreated.WithLabelValues("segment")); got != 2 {
		t.Errorf("files created = %v, want 2", got)
	}
	if got := value(t, metrics.FilesDeleted.WithLabelValues("resource", "obsolete")); got != 1 {
		t.Errorf("files deleted = %v, want 1", got)
	}
	if got := seriesCount(t, metrics.BatchSize); got != 1 {
		t.Errorf("batch size series = %d, want 1", got)
	}
}

func TestMetrics_Clock(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.SetClockOffset(1.5)
	metrics.SetClockOffset(-0.25)
	metrics.IncClockSyncs("success")
	metrics.IncClockSyncs("failure")

	if got := value(t, metrics.ClockOffset); got != -0.25 {
		t.Errorf("clock offset = %v, want -0.25", got)
	}
	if got := value(t, metrics.ClockSyncs.WithLabelValues("failure")); got != 1 {
		t.Errorf("clock syncs = %v, want 1", got)
	}
}

func TestMetrics_Upload(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.IncRequestsBuilt("segment", "success")
	metrics.IncUploads("segment", "success")
	metrics.IncUploads("segment", "failed")
	metrics.IncUploads("segment", "failed")
	metrics.ObserveUploadDuration("202", 0.3)
	metrics.IncDeadLetters("resource")

	if got := value(t, metrics.Uploads.WithLabelValues("segment", "failed")); got != 2 {
		t.Errorf("failed uploads = %v, want 2", got)
	}
	if got := value(t, metrics.DeadLetters.WithLabelValues("resource")); got != 1 {
		t.Errorf("dead letters = %v, want 1", got)
	}
}

func TestMetrics_Archive(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	backends := []string{"s3", "gcs", "azure", "file"}
	for _, backend := range backends {
		metrics.IncArchiveWrites(backend, "success")
		metrics.ObserveArchiveFileSize(backend, 4096)
		metrics.ObserveArchiveWriteDuration(backend, 0.8)
		metrics.IncArchiveErrors(backend, "upload")
	}

	if got := seriesCount(t, metrics.ArchiveErrors); got != len(backends) {
		t.Errorf("archive error series = %d, want %d", got, len(backends))
	}
}

func TestMetrics_Telemetry(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	metrics.IncTelemetryPublished("success")
	metrics.IncTelemetryDropped()
	metrics.IncTelemetryDropped()

	if got := value(t, metrics.TelemetryDropped); got != 2 {
		t.Errorf("telemetry dropped = %v, want 2", got)
	}
}

func TestMetrics_Registered(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	metrics.IncFilesCreated("segment")
	metrics.SetClockOffset(0)
	metrics.IncTelemetryDropped()

	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	want := map[string]bool{
		"queue_files_created_total": false,
		"clock_offset_seconds":      false,
		"telemetry_dropped_total":   false,
	}
	for _, mf := range metricFamilies {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("metric %s not registered", name)
		}
	}
}
