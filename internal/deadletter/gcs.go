package deadletter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/jittakal/replayintake/internal/encoder"
	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*GCSWriter)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// Validate checks the configuration.
func (c GCSConfig) Validate() error {
	if c.Bucket == "" {
		return &errors.ConfigurationError{Field: "deadletter.gcs.bucket", Err: fmt.Errorf("bucket is required")}
	}
	return nil
}

// clientOptions resolves authentication: default credentials, inline JSON,
// then a credentials file.
func (c GCSConfig) clientOptions() []option.ClientOption {
	var opts []option.ClientOption
	if c.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.Endpoint))
	}

	switch {
	case c.UseDefaultCredential:
	case c.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.CredentialsJSON)))
	case c.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(c.CredentialsFile))
	}
	return opts
}

// GCSWriter writes dead letters to a Google Cloud Storage bucket.
type GCSWriter struct {
	client         *gcs.Client
	bucket         string
	encoderFactory *encoder.Factory
	namer          fileNamer
	logger         *slog.Logger
	metrics        MetricsCollector
}

// NewGCSWriter creates a new Google Cloud Storage writer.
func NewGCSWriter(
	cfg GCSConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*GCSWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := gcs.NewClient(context.Background(), cfg.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger = logger.With("component", "deadletter", "backend", BackendGCS)
	logger.Info("dead letter writer created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
		"format", format,
		"compression", compression,
	)

	return &GCSWriter{
		client:         client,
		bucket:         cfg.Bucket,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes letters and uploads them as one object under path.
func (w *GCSWriter) Write(
	ctx context.Context,
	letters []event.DeadLetter,
	path string,
	format event.FileFormat,
) (int64, error) {
	if len(letters) == 0 {
		return 0, fmt.Errorf("no dead letters to write")
	}

	startTime := time.Now()

	encoded, err := encodeTemp(w.encoderFactory, letters, BackendGCS)
	if err != nil {
		w.metrics.IncArchiveErrors(BackendGCS, "encode")
		return 0, err
	}
	defer encoded.remove()

	file, err := os.Open(encoded.path)
	if err != nil {
		w.metrics.IncArchiveErrors(BackendGCS, "file_open")
		return 0, fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	objectPath := objectKey(path, Protocol(BackendGCS), true) + w.namer.next(startTime, encoded.ext)

	gcsWriter := w.client.Bucket(w.bucket).Object(objectPath).NewWriter(ctx)
	gcsWriter.ContentType = contentType(format)

	bytesWritten, err := io.Copy(gcsWriter, file)
	if err != nil {
		w.metrics.IncArchiveErrors(BackendGCS, "upload")
		gcsWriter.Close()
		return 0, &errors.StorageError{Operation: "upload", Path: "gs://" + w.bucket + "/" + objectPath, Err: err}
	}

	// Close finalizes the upload.
	if err := gcsWriter.Close(); err != nil {
		w.metrics.IncArchiveErrors(BackendGCS, "close")
		return 0, &errors.StorageError{Operation: "upload", Path: "gs://" + w.bucket + "/" + objectPath, Err: err}
	}

	duration := time.Since(startTime)
	w.logger.Info("wrote dead letters",
		"bucket", w.bucket,
		"object", objectPath,
		"record_count", encoded.stats.RecordCount,
		"bytes_written", bytesWritten,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	w.metrics.IncArchiveWrites(BackendGCS, "success")
	w.metrics.ObserveArchiveFileSize(BackendGCS, float64(encoded.stats.SizeBytes))
	w.metrics.ObserveArchiveWriteDuration(BackendGCS, duration.Seconds())
	return encoded.stats.SizeBytes, nil
}

func contentType(format event.FileFormat) string {
	if format == event.FormatAvro {
		return "application/avro"
	}
	return "application/octet-stream"
}

// Close closes the GCS client.
func (w *GCSWriter) Close() error {
	w.logger.Info("closing dead letter writer")
	return w.client.Close()
}
