// Package deadletter archives batches that can never be encoded into an
// upload request. Batches are written as Parquet or Avro files to the local
// filesystem or to S3, GCS or Azure Blob storage.
package deadletter

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jittakal/replayintake/internal/encoder"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/storage"
)

// MetricsCollector defines metrics operations for the archive.
type MetricsCollector interface {
	IncArchiveWrites(backend, status string)
	ObserveArchiveFileSize(backend string, size float64)
	ObserveArchiveWriteDuration(backend string, duration float64)
	IncArchiveErrors(backend, operation string)
}

// Backend names.
const (
	BackendFile  = "file"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendAzure = "azure"
)

// Protocol returns the path scheme used by the router for a backend.
func Protocol(backend string) string {
	switch backend {
	case BackendS3:
		return "s3"
	case BackendAzure:
		return "wasbs"
	case BackendGCS:
		return "gs"
	default:
		return "file"
	}
}

// Config selects and configures the archive backend.
type Config struct {
	Backend     string
	Format      event.FileFormat
	Compression string
	BasePath    string
	File        FileConfig
	S3          S3Config
	GCS         GCSConfig
	Azure       AzureConfig
}

// Bucket returns the bucket or container of the configured backend.
func (c Config) Bucket() string {
	switch c.Backend {
	case BackendS3:
		return c.S3.Bucket
	case BackendGCS:
		return c.GCS.Bucket
	case BackendAzure:
		return c.Azure.ContainerName
	default:
		return ""
	}
}

// NewWriter creates the writer for the configured backend.
func NewWriter(cfg Config, logger *slog.Logger, metrics MetricsCollector) (storage.Writer, error) {
	compression := cfg.Compression
	if compression == "" {
		compression = encoder.DefaultCompression(cfg.Format)
	}

	var (
		w   storage.Writer
		err error
	)
	switch cfg.Backend {
	case BackendFile, "":
		w, err = NewFileWriter(cfg.File, cfg.Format, compression, logger, metrics)
	case BackendS3:
		w, err = NewS3Writer(cfg.S3, cfg.Format, compression, logger, metrics)
	case BackendGCS:
		w, err = NewGCSWriter(cfg.GCS, cfg.Format, compression, logger, metrics)
	case BackendAzure:
		w, err = NewAzureWriter(cfg.Azure, cfg.Format, compression, logger, metrics)
	default:
		return nil, fmt.Errorf("unsupported dead letter backend: %s (supported: file, s3, gcs, azure)", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// fileNamer generates deadletters_YYYYMMDD_HHMMSS_NNN names, unique per
// writer within a second.
type fileNamer struct {
	mu            sync.Mutex
	sequence      int
	lastTimestamp string
}

func (n *fileNamer) next(now time.Time, ext string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	timestamp := now.UTC().Format("20060102_150405")
	if timestamp == n.lastTimestamp {
		n.sequence++
	} else {
		n.sequence = 1
		n.lastTimestamp = timestamp
	}
	return fmt.Sprintf("deadletters_%s_%03d%s", timestamp, n.sequence, ext)
}

// encodedFile is a temporary archive file waiting for upload.
type encodedFile struct {
	path  string
	ext   string
	stats *event.FileStats
}

func (f *encodedFile) remove() {
	os.Remove(f.path)
}

// encodeTemp encodes letters to a temporary file. Callers remove it once
// uploaded.
func encodeTemp(factory *encoder.Factory, letters []event.DeadLetter, backend string) (*encodedFile, error) {
	enc, err := factory.CreateEncoder()
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	tmp, err := os.CreateTemp("", backend+"-deadletters-*"+enc.FileExtension())
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp.Close()
	f := &encodedFile{path: tmp.Name(), ext: enc.FileExtension()}

	f.stats, err = enc.Encode(f.path, letters)
	if err != nil {
		f.remove()
		return nil, fmt.Errorf("failed to encode dead letters: %w", err)
	}
	return f, nil
}
