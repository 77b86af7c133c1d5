package deadletter

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/replayintake/internal/encoder"
	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Writer = (*S3Writer)(nil)

// S3Config contains AWS S3 configuration. Static keys are optional and meant
// for S3-compatible stores; otherwise the default credential chain is used.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	UsePathStyle    bool
	SSEEnabled      bool
	SSEKMSKeyID     string
	AccessKeyID     string
	SecretAccessKey string
}

// Validate checks the configuration.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return &errors.ConfigurationError{Field: "deadletter.s3.bucket", Err: fmt.Errorf("bucket is required")}
	}
	if c.Region == "" {
		return &errors.ConfigurationError{Field: "deadletter.s3.region", Err: fmt.Errorf("region is required")}
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return &errors.ConfigurationError{Field: "deadletter.s3.access_key_id", Err: fmt.Errorf("access key id and secret must be set together")}
	}
	return nil
}

// S3Writer writes dead letters to S3 through the multipart upload manager.
type S3Writer struct {
	uploader       *manager.Uploader
	bucket         string
	sseEnabled     bool
	sseKMSKeyID    string
	encoderFactory *encoder.Factory
	namer          fileNamer
	logger         *slog.Logger
	metrics        MetricsCollector
}

// NewS3Writer creates a new S3 writer.
func NewS3Writer(
	cfg S3Config,
	format event.FileFormat,
	compression string,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsConfig, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024
		u.Concurrency = 5
	})

	encoderFactory := encoder.NewFactory(format, compression)
	if _, err := encoderFactory.CreateEncoder(); err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	logger = logger.With("component", "deadletter", "backend", BackendS3)
	logger.Info("dead letter writer created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"format", format,
		"compression", compression,
		"sse_enabled", cfg.SSEEnabled,
	)

	return &S3Writer{
		uploader:       uploader,
		bucket:         cfg.Bucket,
		sseEnabled:     cfg.SSEEnabled,
		sseKMSKeyID:    cfg.SSEKMSKeyID,
		encoderFactory: encoderFactory,
		logger:         logger,
		metrics:        metrics,
	}, nil
}

// Write encodes letters and uploads them as one object under path.
func (w *S3Writer) Write(
	ctx context.Context,
	letters []event.DeadLetter,
	path string,
	format event.FileFormat,
) (int64, error) {
	if len(letters) == 0 {
		return 0, fmt.Errorf("no dead letters to write")
	}

	startTime := time.Now()

	encoded, err := encodeTemp(w.encoderFactory, letters, BackendS3)
	if err != nil {
		w.metrics.IncArchiveErrors(BackendS3, "encode")
		return 0, err
	}
	defer encoded.remove()
	stats := encoded.stats

	file, err := os.Open(encoded.path)
	if err != nil {
		w.metrics.IncArchiveErrors(BackendS3, "file_open")
		return 0, fmt.Errorf("failed to open encoded file: %w", err)
	}
	defer file.Close()

	key := objectKey(path, Protocol(BackendS3), true) + w.namer.next(startTime, encoded.ext)

	input := &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   file,
	}
	if w.sseEnabled {
		if w.sseKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(w.sseKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}

	result, err := w.uploader.Upload(ctx, input)
	if err != nil {
		w.metrics.IncArchiveErrors(BackendS3, "upload")
		return 0, &errors.StorageError{Operation: "upload", Path: "s3://" + w.bucket + "/" + key, Err: err}
	}

	duration := time.Since(startTime)
	w.logger.Info("wrote dead letters",
		"bucket", w.bucket,
		"key", key,
		"record_count", stats.RecordCount,
		"file_size", stats.SizeBytes,
		"format", format,
		"location", result.Location,
		"total_duration_ms", duration.Milliseconds(),
	)

	w.metrics.IncArchiveWrites(BackendS3, "success")
	w.metrics.ObserveArchiveFileSize(BackendS3, float64(stats.SizeBytes))
	w.metrics.ObserveArchiveWriteDuration(BackendS3, duration.Seconds())
	return stats.SizeBytes, nil
}

// Close closes the S3 writer.
func (w *S3Writer) Close() error {
	w.logger.Info("closing dead letter writer")
	return nil
}
