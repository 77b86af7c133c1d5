package deadletter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/jittakal/replayintake/internal/encoder"
	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*AzureWriter)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// Validate checks the configuration.
func (c AzureConfig) Validate() error {
	if c.AccountName == "" {
		return &errors.ConfigurationError{Field: "deadletter.azure.account_name", Err: fmt.Errorf("account name is required")}
	}
	if c.AccountKey == "" {
		return &errors.ConfigurationError{Field: "deadletter.azure.account_key", Err: fmt.Errorf("account key is required")}
	}
	if c.ContainerName == "" {
		return &errors.ConfigurationError{Field: "deadletter.azure.container", Err: fmt.Errorf("container is required")}
	}
	return nil
}

// ConnectionString builds the storage account connection string.
func (c AzureConfig) ConnectionString() string {
	if c.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			c.AccountName, c.AccountKey, c.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		c.AccountName, c.AccountKey)
}

// AzureWriter writes dead letters to an Azure Blob container.
type AzureWriter struct {
	client         *azblob.Client
	containerName  string
	encoderFactory *encoder.Factory
	namer          fileNamer
	logger         *slog.Logger
	metrics        MetricsCollector
}

// NewAzureWriter creates a new Azure Blob writer.
func NewAzureWriter(
	cfg AzureConfig,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*AzureWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger = logger.With("component", "deadletter", "backend", BackendAzure)
	logger.Info("dead letter writer created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
		"format", format,
		"compression", compression,
	)

	return &AzureWriter{
		client:         client,
		containerName:  cfg.ContainerName,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes letters and uploads them as one blob under path.
func (w *AzureWriter) Write(ctx context.Context, letters []event.DeadLetter, path string, format event.FileFormat) (int64, error) {
	if len(letters) == 0 {
		return 0, fmt.Errorf("no dead letters to write")
	}

	startTime := time.Now()

	encoded, err := encodeTemp(w.encoderFactory, letters, BackendAzure)
	if err != nil {
		w.metrics.IncArchiveErrors(BackendAzure, "encode")
		return 0, err
	}
	defer encoded.remove()

	file, err := os.Open(encoded.path)
	if err != nil {
		w.metrics.IncArchiveErrors(BackendAzure, "file_open")
		return 0, fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	blobPath := objectKey(path, Protocol(BackendAzure), true) + w.namer.next(startTime, encoded.ext)

	if _, err := w.client.UploadFile(ctx, w.containerName, blobPath, file, nil); err != nil {
		w.metrics.IncArchiveErrors(BackendAzure, "upload")
		return 0, &errors.StorageError{Operation: "upload", Path: "wasbs://" + w.containerName + "/" + blobPath, Err: err}
	}

	duration := time.Since(startTime)
	w.logger.Info("wrote dead letters",
		"container", w.containerName,
		"blob", blobPath,
		"record_count", encoded.stats.RecordCount,
		"file_size", encoded.stats.SizeBytes,
		"format", format,
		"total_duration_ms", duration.Milliseconds(),
	)

	w.metrics.IncArchiveWrites(BackendAzure, "success")
	w.metrics.ObserveArchiveFileSize(BackendAzure, float64(encoded.stats.SizeBytes))
	w.metrics.ObserveArchiveWriteDuration(BackendAzure, duration.Seconds())
	return encoded.stats.SizeBytes, nil
}

// Close closes the Azure writer.
func (w *AzureWriter) Close() error {
	w.logger.Info("closing dead letter writer")
	return nil
}
