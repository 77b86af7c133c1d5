// Package upload drains the file queue: it reads batches, turns them into
// intake requests, sends them and commits what was delivered.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/jittakal/replayintake/internal/clock"
	apperrors "github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/internal/persistence"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/request"
	"github.com/jittakal/replayintake/pkg/telemetry"
)

// MetricsCollector defines metrics operations for uploads.
type MetricsCollector interface {
	IncUploads(category, status string)
	IncDeadLetters(category string)
	ObserveUploadDuration(status string, seconds float64)
}

// BatchSource hands out queued batches and deletes them on commit.
type BatchSource interface {
	// NextBatchExcept returns the oldest ready batch whose file is not
	// named in skip, or nil.
	NextBatchExcept(skip map[string]struct{}) *persistence.Batch
	Commit(batch *persistence.Batch)
}

// DeadLetterSink archives batches that can never be encoded.
type DeadLetterSink interface {
	Archive(ctx context.Context, letter event.DeadLetter) error
}

// errDecodePending marks a batch that failed to decode and stays queued.
var errDecodePending = errors.New("undecodable batch kept")

// DefaultInterval is the upload period used when none is configured.
const DefaultInterval = 5 * time.Second

// ContextProvider returns the ambient context for the next request.
type ContextProvider func() event.Context

// Config configures a worker.
type Config struct {
	Category event.Category
	Interval time.Duration
	// BatchesPerTick caps how many batches one tick delivers.
	BatchesPerTick int
	// MaxDecodeAttempts dead-letters a batch after this many decoding
	// failures, or drops it when there is no dead-letter sink. Zero keeps
	// undecodable batches in the queue.
	MaxDecodeAttempts int
	// MaxConsecutiveFailures marks the worker unhealthy. Zero disables.
	MaxConsecutiveFailures int
}

// Worker uploads the batches of one queue directory.
type Worker struct {
	config      Config
	source      BatchSource
	builder     request.Builder
	transport   request.Transport
	context     ContextProvider
	deadLetters DeadLetterSink
	telemetry   telemetry.Telemetry
	clock       clock.Clock
	logger      *slog.Logger
	metrics     MetricsCollector

	mu       sync.Mutex
	attempts map[string]int

	failures    atomic.Int32
	lastSuccess atomic.Int64
}

// NewWorker creates a worker. deadLetters may be nil.
func NewWorker(
	config Config,
	source BatchSource,
	builder request.Builder,
	transport request.Transport,
	contextProvider ContextProvider,
	deadLetters DeadLetterSink,
	tel telemetry.Telemetry,
	clk clock.Clock,
	logger *slog.Logger,
	metrics MetricsCollector,
) *Worker {
	if config.BatchesPerTick <= 0 {
		config.BatchesPerTick = 1
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}

	return &Worker{
		config:      config,
		source:      source,
		builder:     builder,
		transport:   transport,
		context:     contextProvider,
		deadLetters: deadLetters,
		telemetry:   tel,
		clock:       clk,
		logger:      logger.With("component", "upload", "category", string(config.Category)),
		metrics:     metrics,
		attempts:    make(map[string]int),
	}
}

// Run flushes every Interval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Info("upload worker started", "interval", w.config.Interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("upload worker stopped")
			return
		case <-ticker.C:
			if _, err := w.Flush(ctx); err != nil && ctx.Err() == nil {
				w.logger.Warn("upload tick failed", "error", err, "retryable", apperrors.IsRetryable(err))
			}
		}
	}
}

// Flush delivers up to BatchesPerTick batches and returns how many left the
// queue. A batch that fails to decode is skipped for the rest of the tick;
// any other failure stops the tick. Failed batches stay queued.
func (w *Worker) Flush(ctx context.Context) (int, error) {
	done := 0
	var skipped map[string]struct{}
	var decodeErr error
	for done < w.config.BatchesPerTick {
		if err := ctx.Err(); err != nil {
			return done, err
		}

		batch := w.source.NextBatchExcept(skipped)
		if batch == nil {
			return done, decodeErr
		}
		err := w.process(ctx, batch)
		if errors.Is(err, errDecodePending) {
			if skipped == nil {
				skipped = make(map[string]struct{})
			}
			skipped[batch.FileName()] = struct{}{}
			if decodeErr == nil {
				decodeErr = err
			}
			continue
		}
		if err != nil {
			return done, err
		}
		done++
	}
	return done, decodeErr
}

func (w *Worker) process(ctx context.Context, batch *persistence.Batch) error {
	category := string(w.config.Category)

	desc, err := w.builder.BuildBatch(batch.Data, w.context())
	if err != nil {
		var decErr *apperrors.DecodingError
		switch {
		case errors.Is(err, apperrors.ErrNoEvents):
			w.source.Commit(batch)
			return nil
		case errors.As(err, &decErr):
			return w.decodingFailed(ctx, batch, err)
		default:
			w.metrics.IncUploads(category, "build_error")
			w.failures.Inc()
			return fmt.Errorf("build request: %w", err)
		}
	}

	if err := w.transport.Send(ctx, desc); err != nil {
		w.metrics.IncUploads(category, "failed")
		w.failures.Inc()
		return fmt.Errorf("send batch %s: %w", batch.FileName(), err)
	}

	w.source.Commit(batch)
	w.forget(batch.FileName())
	w.failures.Store(0)
	w.lastSuccess.Store(w.clock.Now().Unix())
	w.metrics.IncUploads(category, "success")
	w.logger.Debug("uploaded batch", "file", batch.FileName(), "bytes", len(batch.Data))
	return nil
}

func (w *Worker) decodingFailed(ctx context.Context, batch *persistence.Batch, cause error) error {
	category := string(w.config.Category)
	name := batch.FileName()
	w.metrics.IncUploads(category, "decode_error")

	w.mu.Lock()
	w.attempts[name]++
	attempts := w.attempts[name]
	w.mu.Unlock()

	if w.config.MaxDecodeAttempts <= 0 || attempts < w.config.MaxDecodeAttempts {
		return fmt.Errorf("%w: batch %s (attempt %d): %w", errDecodePending, name, attempts, cause)
	}

	if w.deadLetters == nil {
		w.source.Commit(batch)
		w.forget(name)
		w.metrics.IncUploads(category, "dropped")
		w.logger.Error("dropped undecodable batch", "file", name, "attempts", attempts, "error", cause)
		w.telemetry.Error(fmt.Sprintf("[SR] Dropped undecodable %s batch after %d attempts", category, attempts),
			"DecodingError", "")
		return nil
	}

	letter := event.DeadLetter{
		Category:   w.config.Category,
		FileName:   name,
		Payload:    batch.Data,
		Reason:     cause.Error(),
		Attempts:   attempts,
		ArchivedAt: w.clock.Now(),
	}
	if err := w.deadLetters.Archive(ctx, letter); err != nil {
		w.logger.Error("failed to archive dead letter", "file", name, "error", err)
		return fmt.Errorf("archive batch %s: %w", name, err)
	}

	w.source.Commit(batch)
	w.forget(name)
	w.metrics.IncDeadLetters(category)
	w.logger.Warn("moved undecodable batch to dead letters", "file", name, "attempts", attempts)
	return nil
}

func (w *Worker) forget(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, name)
}

// Healthy reports whether recent uploads are succeeding.
func (w *Worker) Healthy() bool {
	if w.config.MaxConsecutiveFailures <= 0 {
		return true
	}
	return int(w.failures.Load()) < w.config.MaxConsecutiveFailures
}

// Status returns the worker's health details.
func (w *Worker) Status() map[string]string {
	status := map[string]string{
		"consecutive_failures": fmt.Sprintf("%d", w.failures.Load()),
	}
	if ts := w.lastSuccess.Load(); ts > 0 {
		status["last_success"] = time.Unix(ts, 0).UTC().Format(time.RFC3339)
	}
	return status
}
