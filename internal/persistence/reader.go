package persistence

import (
	"log/slog"

	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/storage"
)

// Batch is the content of one queue file wrapped as a JSON array.
type Batch struct {
	// Data is "[" + file content + "]".
	Data []byte

	file storage.File
}

// FileName returns the name of the file the batch was read from.
func (b *Batch) FileName() string {
	if b.file == nil {
		return ""
	}
	return b.file.Name()
}

// FileReader hands out batches oldest file first and deletes their files
// once the caller commits them.
type FileReader struct {
	category     event.Category
	orchestrator storage.Orchestrator
	queue        *Queue
	logger       *slog.Logger
	metrics      MetricsCollector

	// filesRead is only accessed on the queue.
	filesRead map[string]struct{}
}

// NewFileReader creates a reader sharing queue with the directory's writer.
func NewFileReader(
	config Config,
	orchestrator storage.Orchestrator,
	queue *Queue,
	logger *slog.Logger,
	metrics MetricsCollector,
) *FileReader {
	return &FileReader{
		category:     config.Category,
		orchestrator: orchestrator,
		queue:        queue,
		logger:       logger.With("component", "reader", "category", string(config.Category)),
		metrics:      metrics,
		filesRead:    make(map[string]struct{}),
	}
}

// NextBatch returns the next batch, or nil when no file is ready. A batch
// that is never committed is returned again by a later call.
func (r *FileReader) NextBatch() *Batch {
	return r.NextBatchExcept(nil)
}

// NextBatchExcept is NextBatch ignoring the files named in skip.
func (r *FileReader) NextBatchExcept(skip map[string]struct{}) *Batch {
	var batch *Batch
	if err := r.queue.Sync(func() { batch = r.next(skip) }); err != nil {
		r.logger.Error("failed to schedule read", "error", err)
		return nil
	}
	return batch
}

func (r *FileReader) next(skip map[string]struct{}) *Batch {
	excluded := r.filesRead
	if len(skip) > 0 {
		excluded = make(map[string]struct{}, len(r.filesRead)+len(skip))
		for name := range r.filesRead {
			excluded[name] = struct{}{}
		}
		for name := range skip {
			excluded[name] = struct{}{}
		}
	}

	for {
		file := r.orchestrator.ReadableFile(excluded)
		if file == nil {
			return nil
		}

		data, err := file.Read()
		if err != nil {
			r.logger.Error("failed to read file", "file", file.Name(), "error", err)
			r.metrics.IncStorageErrors(string(r.category), "read")
			return nil
		}

		if len(data) == 0 {
			// Created but never written to; nothing to upload.
			r.orchestrator.Delete(file)
			r.filesRead[file.Name()] = struct{}{}
			excluded[file.Name()] = struct{}{}
			continue
		}

		wrapped := make([]byte, 0, len(data)+2)
		wrapped = append(wrapped, '[')
		wrapped = append(wrapped, data...)
		wrapped = append(wrapped, ']')

		r.metrics.IncBatchesRead(string(r.category))
		r.metrics.ObserveBatchSize(string(r.category), float64(len(wrapped)))
		return &Batch{Data: wrapped, file: file}
	}
}

// Commit deletes the batch's file and marks it consumed. Call only after
// the batch was delivered.
func (r *FileReader) Commit(batch *Batch) {
	if batch == nil || batch.file == nil {
		return
	}

	if err := r.queue.Sync(func() {
		r.orchestrator.Delete(batch.file)
		r.filesRead[batch.file.Name()] = struct{}{}
	}); err != nil {
		r.logger.Error("failed to schedule commit", "file", batch.file.Name(), "error", err)
		return
	}
	r.metrics.IncBatchesCommitted(string(r.category))
}
