package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Queue metrics
	FilesCreated     *prometheus.CounterVec
	FilesDeleted     *prometheus.CounterVec
	StorageErrors    *prometheus.CounterVec
	EventsWritten    *prometheus.CounterVec
	BatchesRead      *prometheus.CounterVec
	BatchesCommitted *prometheus.CounterVec
	BatchSize        *prometheus.HistogramVec

	// Clock metrics
	ClockOffset prometheus.Gauge
	ClockSyncs  *prometheus.CounterVec

	// Upload metrics
	RequestsBuilt  *prometheus.CounterVec
	Uploads        *prometheus.CounterVec
	UploadDuration *prometheus.HistogramVec
	DeadLetters    *prometheus.CounterVec

	// Archive metrics
	ArchiveWrites        *prometheus.CounterVec
	ArchiveFileSize      *prometheus.HistogramVec
	ArchiveWriteDuration *prometheus.HistogramVec
	ArchiveErrors        *prometheus.CounterVec

	// Telemetry metrics
	TelemetryPublished *prometheus.CounterVec
	TelemetryDropped   prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Queue metrics
		FilesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_files_created_total",
				Help: "Total number of queue files created",
			},
			[]string{"category"},
		),
		FilesDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_files_deleted_total",
				Help: "Total number of queue files deleted",
			},
			[]string{"category", "reason"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_storage_errors_total",
				Help: "Total number of queue file system errors",
			},
			[]string{"category", "operation"},
		),
		EventsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_events_written_total",
				Help: "Total number of events appended to the queue",
			},
			[]string{"category", "status"},
		),
		BatchesRead: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_batches_read_total",
				Help: "Total number of batches handed to uploaders",
			},
			[]string{"category"},
		),
		BatchesCommitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queue_batches_committed_total",
				Help: "Total number of batches committed and deleted",
			},
			[]string{"category"},
		),
		BatchSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "queue_batch_size_bytes",
				Help:    "Size of batches read from the queue",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8), // 1KB to 16MB
			},
			[]string{"category"},
		),

		// Clock metrics
		ClockOffset: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "clock_offset_seconds",
				Help: "Current correction offset between server and device time",
			},
		),
		ClockSyncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clock_syncs_total",
				Help: "Total number of clock synchronization attempts",
			},
			[]string{"status"},
		),

		// Upload metrics
		RequestsBuilt: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upload_requests_built_total",
				Help: "Total number of intake requests built",
			},
			[]string{"category", "status"},
		),
		Uploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upload_batches_total",
				Help: "Total number of batch upload attempts",
			},
			[]string{"category", "status"},
		),
		UploadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "upload_duration_seconds",
				Help:    "Duration of intake requests",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"status"},
		),
		DeadLetters: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upload_dead_letters_total",
				Help: "Total number of batches moved to the dead letter archive",
			},
			[]string{"category"},
		),

		// Archive metrics
		ArchiveWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_files_written_total",
				Help: "Total number of dead letter files written",
			},
			[]string{"backend", "status"},
		),
		ArchiveFileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_file_size_bytes",
				Help:    "Size of dead letter files written",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
			[]string{"backend"},
		),
		ArchiveWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "archive_write_duration_seconds",
				Help:    "Duration of dead letter writes including encoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		ArchiveErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "archive_errors_total",
				Help: "Total number of dead letter archive errors",
			},
			[]string{"backend", "operation"},
		),

		// Telemetry metrics
		TelemetryPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "telemetry_published_total",
				Help: "Total number of telemetry messages published",
			},
			[]string{"status"},
		),
		TelemetryDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "telemetry_dropped_total",
				Help: "Total number of telemetry messages dropped on a full buffer",
			},
		),
	}
}

// IncFilesCreated increments files created counter.
func (m *Metrics) IncFilesCreated(category string) {
	m.FilesCreated.WithLabelValues(category).Inc()
}

// IncFilesDeleted increments files deleted counter.
func (m *Metrics) IncFilesDeleted(category, reason string) {
	m.FilesDeleted.WithLabelValues(category, reason).Inc()
}

// IncStorageErrors increments queue storage errors counter.
func (m *Metrics) IncStorageErrors(category, operation string) {
	m.StorageErrors.WithLabelValues(category, operation).Inc()
}

// IncEventsWritten increments events written counter.
func (m *Metrics) IncEventsWritten(category, status string) {
	m.EventsWritten.WithLabelValues(category, status).Inc()
}

// IncBatchesRead increments batches read counter.
func (m *Metrics) IncBatchesRead(category string) {
	m.BatchesRead.WithLabelValues(category).Inc()
}

// IncBatchesCommitted increments batches committed counter.
func (m *Metrics) IncBatchesCommitted(category string) {
	m.BatchesCommitted.WithLabelValues(category).Inc()
}

// ObserveBatchSize observes batch size.
func (m *Metrics) ObserveBatchSize(category string, size float64) {
	m.BatchSize.WithLabelValues(category).Observe(size)
}

// SetClockOffset sets the clock offset gauge.
func (m *Metrics) SetClockOffset(seconds float64) {
	m.ClockOffset.Set(seconds)
}

// IncClockSyncs increments clock syncs counter.
func (m *Metrics) IncClockSyncs(status string) {
	m.ClockSyncs.WithLabelValues(status).Inc()
}

// IncRequestsBuilt increments requests built counter.
func (m *Metrics) IncRequestsBuilt(category, status string) {
	m.RequestsBuilt.WithLabelValues(category, status).Inc()
}

// IncUploads increments uploads counter.
func (m *Metrics) IncUploads(category, status string) {
	m.Uploads.WithLabelValues(category, status).Inc()
}

// ObserveUploadDuration observes upload duration.
func (m *Metrics) ObserveUploadDuration(status string, seconds float64) {
	m.UploadDuration.WithLabelValues(status).Observe(seconds)
}

// IncDeadLetters increments dead letters counter.
func (m *Metrics) IncDeadLetters(category string) {
	m.DeadLetters.WithLabelValues(category).Inc()
}

// IncArchiveWrites increments archive writes counter.
func (m *Metrics) IncArchiveWrites(backend, status string) {
	m.ArchiveWrites.WithLabelValues(backend, status).Inc()
}

// ObserveArchiveFileSize observes archive file size.
func (m *Metrics) ObserveArchiveFileSize(backend string, size float64) {
	m.ArchiveFileSize.WithLabelValues(backend).Observe(size)
}

// ObserveArchiveWriteDuration observes archive write duration.
func (m *Metrics) ObserveArchiveWriteDuration(backend string, duration float64) {
	m.ArchiveWriteDuration.WithLabelValues(backend).Observe(duration)
}

// IncArchiveErrors increments archive errors counter.
func (m *Metrics) IncArchiveErrors(backend, operation string) {
	m.ArchiveErrors.WithLabelValues(backend, operation).Inc()
}

// IncTelemetryPublished increments telemetry published counter.
func (m *Metrics) IncTelemetryPublished(status string) {
	m.TelemetryPublished.WithLabelValues(status).Inc()
}

// IncTelemetryDropped increments telemetry dropped counter.
func (m *Metrics) IncTelemetryDropped() {
	m.TelemetryDropped.Inc()
}
