package persistence

import (
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/storage"
)

// eventSeparator joins consecutive events within a file. The reader wraps
// the joined content in brackets to form a JSON array.
const eventSeparator = ','

// FileWriter appends serialized events to the writable file of a queue.
type FileWriter struct {
	category      event.Category
	orchestrator  storage.Orchestrator
	queue         *Queue
	validator     event.Validator
	maxObjectSize int64
	logger        *slog.Logger
	metrics       MetricsCollector
}

// NewFileWriter creates a writer. validator may be nil.
func NewFileWriter(
	config Config,
	orchestrator storage.Orchestrator,
	queue *Queue,
	validator event.Validator,
	logger *slog.Logger,
	metrics MetricsCollector,
) *FileWriter {
	return &FileWriter{
		category:      config.Category,
		orchestrator:  orchestrator,
		queue:         queue,
		validator:     validator,
		maxObjectSize: config.MaxObjectSize,
		logger:        logger.With("component", "writer", "category", string(config.Category)),
		metrics:       metrics,
	}
}

// Append stores one serialized event. Failures are logged and counted; the
// returned error lets callers react but never needs handling for
// correctness.
func (w *FileWriter) Append(data []byte) error {
	if w.validator != nil {
		if err := w.validator.Validate(w.category, data); err != nil {
			w.logger.Warn("rejected invalid event", "error", err)
			w.metrics.IncEventsWritten(string(w.category), "invalid")
			return err
		}
	}

	if w.maxObjectSize > 0 && int64(len(data)) > w.maxObjectSize {
		w.logger.Warn("rejected oversized event", "size", len(data), "max_object_size", w.maxObjectSize)
		w.metrics.IncEventsWritten(string(w.category), "too_large")
		return fmt.Errorf("%w: %d bytes", errors.ErrObjectTooLarge, len(data))
	}

	var writeErr error
	if err := w.queue.Sync(func() { writeErr = w.write(data) }); err != nil {
		w.logger.Error("failed to schedule write", "error", err)
		w.metrics.IncEventsWritten(string(w.category), "error")
		return err
	}

	if writeErr != nil {
		w.logger.Error("failed to write event", "error", writeErr)
		w.metrics.IncEventsWritten(string(w.category), "error")
		return writeErr
	}

	w.metrics.IncEventsWritten(string(w.category), "success")
	return nil
}

// AppendValue serializes v as JSON and appends it.
func (w *FileWriter) AppendValue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		w.logger.Error("failed to serialize event", "error", err)
		w.metrics.IncEventsWritten(string(w.category), "invalid")
		return fmt.Errorf("marshal event: %w", err)
	}
	return w.Append(data)
}

// write runs on the queue.
func (w *FileWriter) write(data []byte) error {
	file := w.orchestrator.WritableFile(int64(len(data)) + 1)
	if file == nil {
		return errors.ErrNoWritableFile
	}

	size, err := file.Size()
	if err != nil {
		return err
	}

	payload := data
	if size > 0 {
		payload = make([]byte, 0, len(data)+1)
		payload = append(payload, eventSeparator)
		payload = append(payload, data...)
	}
	return file.Append(payload)
}
