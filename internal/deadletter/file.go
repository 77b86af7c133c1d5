package deadletter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jittakal/replayintake/internal/encoder"
	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*FileWriter)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// Validate checks the configuration.
func (c FileConfig) Validate() error {
	if c.BasePath == "" {
		return &errors.ConfigurationError{Field: "deadletter.file.base_path", Value: c.BasePath, Err: fmt.Errorf("base path is required")}
	}
	return nil
}

// FileWriter writes dead letters below a local base directory.
type FileWriter struct {
	basePath       string
	encoderFactory *encoder.Factory
	namer          fileNamer
	logger         *slog.Logger
	metrics        MetricsCollector
}

// NewFileWriter creates a new filesystem writer.
func NewFileWriter(
	config FileConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FileWriter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger = logger.With("component", "deadletter", "backend", BackendFile)
	logger.Info("dead letter writer created",
		"base_path", config.BasePath,
		"format", format,
		"compression", compression,
	)

	return &FileWriter{
		basePath:       config.BasePath,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes letters into a new file under path.
func (w *FileWriter) Write(
	ctx context.Context,
	letters []event.DeadLetter,
	path string,
	format event.FileFormat,
) (int64, error) {
	if len(letters) == 0 {
		return 0, fmt.Errorf("no dead letters to write")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	startTime := time.Now()

	enc, err := w.encoderFactory.CreateEncoder()
	if err != nil {
		w.metrics.IncArchiveErrors(BackendFile, "encoder_create")
		return 0, fmt.Errorf("failed to create encoder: %w", err)
	}

	dir := filepath.Join(w.basePath, objectKey(path, Protocol(BackendFile), false))
	fullPath := filepath.Join(dir, w.namer.next(startTime, enc.FileExtension()))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.metrics.IncArchiveErrors(BackendFile, "mkdir")
		return 0, &errors.StorageError{Operation: "create", Path: dir, Err: err}
	}

	stats, err := enc.Encode(fullPath, letters)
	if err != nil {
		w.metrics.IncArchiveErrors(BackendFile, "encode")
		return 0, fmt.Errorf("failed to encode dead letters: %w", err)
	}

	duration := time.Since(startTime)
	w.logger.Info("wrote dead letters",
		"path", fullPath,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	w.metrics.IncArchiveWrites(BackendFile, "success")
	w.metrics.ObserveArchiveFileSize(BackendFile, float64(stats.SizeBytes))
	w.metrics.ObserveArchiveWriteDuration(BackendFile, duration.Seconds())
	return stats.SizeBytes, nil
}

// Close closes the writer.
func (w *FileWriter) Close() error {
	w.logger.Info("closing dead letter writer")
	return nil
}
