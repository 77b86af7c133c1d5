// Package config loads the agent configuration from a YAML file, APP_*
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/replayintake/internal/config/dto"
	"github.com/jittakal/replayintake/internal/encoder"
	apperrors "github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/internal/sessionreplay"
	"github.com/jittakal/replayintake/pkg/event"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Only values containing ${...} are expanded.
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "replayagent")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Storage defaults
	l.v.SetDefault("storage.root_dir", "./data")
	l.v.SetDefault("storage.queue_capacity", 1024)

	// Rotation defaults
	l.v.SetDefault("rotation.max_file_size_bytes", 4*1024*1024)
	l.v.SetDefault("rotation.max_directory_size_bytes", 512*1024*1024)
	l.v.SetDefault("rotation.max_objects_in_file", 500)
	l.v.SetDefault("rotation.max_object_size_bytes", 4*1024*1024)
	l.v.SetDefault("rotation.max_file_age_for_write", "4750ms")
	l.v.SetDefault("rotation.min_file_age_for_read", "5s")
	l.v.SetDefault("rotation.max_file_age_for_read", "18h")
	l.v.SetDefault("rotation.strategy", "composite")

	// Upload defaults
	l.v.SetDefault("upload.interval", "5s")
	l.v.SetDefault("upload.batches_per_tick", 1)
	l.v.SetDefault("upload.timeout", "30s")
	l.v.SetDefault("upload.requests_per_second", 0)
	l.v.SetDefault("upload.burst", 1)
	l.v.SetDefault("upload.max_decode_attempts", 3)
	l.v.SetDefault("upload.max_consecutive_failures", 10)

	// Intake defaults
	l.v.SetDefault("intake.site", "us1")
	l.v.SetDefault("intake.client_token", "")
	l.v.SetDefault("intake.custom_url", "")
	l.v.SetDefault("intake.source", "android")
	l.v.SetDefault("intake.application_name", "replayagent")
	l.v.SetDefault("intake.version", "1.0.0")
	l.v.SetDefault("intake.sdk_version", "1.0.0")

	// Clock defaults
	l.v.SetDefault("clock.enabled", true)
	l.v.SetDefault("clock.servers", []string{
		"0.datadog.pool.ntp.org",
		"1.datadog.pool.ntp.org",
		"2.datadog.pool.ntp.org",
		"3.datadog.pool.ntp.org",
	})
	l.v.SetDefault("clock.query_timeout", "5s")
	l.v.SetDefault("clock.resync_interval", "0s")

	// Dead letter defaults
	l.v.SetDefault("deadletter.enabled", false)
	l.v.SetDefault("deadletter.backend", "file")
	l.v.SetDefault("deadletter.format", "parquet")
	l.v.SetDefault("deadletter.file.base_path", "./data/deadletters")
	l.v.SetDefault("deadletter.s3.sse_enabled", true)

	// Telemetry defaults
	l.v.SetDefault("telemetry.service", "replayagent")
	l.v.SetDefault("telemetry.buffer_size", 256)
	l.v.SetDefault("telemetry.publish_timeout", "5s")
	l.v.SetDefault("telemetry.kafka.enabled", false)
	l.v.SetDefault("telemetry.kafka.topic", "sdk-telemetry")
	l.v.SetDefault("telemetry.kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("telemetry.kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("telemetry.kafka.compression", "snappy")

	// Generator defaults
	l.v.SetDefault("generator.enabled", false)
	l.v.SetDefault("generator.interval", "1s")
	l.v.SetDefault("generator.views_per_tick", 1)
	l.v.SetDefault("generator.records_per_view", 10)
	l.v.SetDefault("generator.resources_per_tick", 0)

	// Server defaults
	l.v.SetDefault("server.ingest_enabled", true)
	l.v.SetDefault("server.max_body_bytes", 10*1024*1024)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.health.port", 8080)

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period", "30s")
}

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	// Intake validation
	if config.Intake.CustomURL != "" {
		u, err := url.Parse(config.Intake.CustomURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return &apperrors.ConfigurationError{Field: "intake.custom_url", Value: config.Intake.CustomURL, Err: errors.New("must be an absolute URL")}
		}
		if u.RawQuery != "" {
			return &apperrors.ConfigurationError{Field: "intake.custom_url", Value: config.Intake.CustomURL, Err: errors.New("query strings are not supported")}
		}
	} else if !slices.Contains(event.Sites(), event.Site(config.Intake.Site)) {
		return &apperrors.ConfigurationError{Field: "intake.site", Value: config.Intake.Site, Err: apperrors.ErrUnknownSite}
	}
	if _, ok := sessionreplay.ParseSource(config.Intake.Source); !ok {
		return &apperrors.ConfigurationError{Field: "intake.source", Value: config.Intake.Source, Err: errors.New("unsupported SDK source")}
	}

	// Rotation validation
	switch config.Rotation.Strategy {
	case "composite", "size", "time", "count":
	default:
		return fmt.Errorf("unsupported rotation strategy: %s", config.Rotation.Strategy)
	}
	if config.Rotation.MinFileAgeForRead <= config.Rotation.MaxFileAgeForWrite {
		return fmt.Errorf("rotation.min_file_age_for_read (%s) must exceed rotation.max_file_age_for_write (%s)",
			config.Rotation.MinFileAgeForRead, config.Rotation.MaxFileAgeForWrite)
	}
	if config.Rotation.MaxObjectSizeBytes > config.Rotation.MaxFileSizeBytes {
		return fmt.Errorf("rotation.max_object_size_bytes cannot exceed rotation.max_file_size_bytes")
	}

	// Clock validation
	if config.Clock.Enabled && len(config.Clock.Servers) == 0 {
		return errors.New("clock.servers is required when clock correction is enabled")
	}

	// Dead letter validation
	if config.DeadLetter.Enabled {
		if err := validateDeadLetter(&config.DeadLetter); err != nil {
			return err
		}
	}

	// Telemetry validation
	if err := config.Telemetry.Kafka.Validate(); err != nil {
		return err
	}

	// Port validation
	if config.Observability.Metrics.Port < 1 || config.Observability.Metrics.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Port < 1 || config.Observability.Health.Port > 65535 {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}
	if config.Observability.Metrics.Port == config.Observability.Health.Port {
		return fmt.Errorf("metrics and health ports must differ: %d", config.Observability.Health.Port)
	}

	return nil
}

func validateDeadLetter(config *dto.DeadLetterConfig) error {
	switch config.Backend {
	case "s3":
		if err := config.S3.Validate(); err != nil {
			return err
		}
	case "azure":
		if err := config.Azure.Validate(); err != nil {
			return err
		}
	case "gcs":
		if config.GCS.Bucket == "" {
			return errors.New("deadletter.gcs.bucket is required for GCS backend")
		}
	case "file":
		if err := config.File.Validate(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported dead letter backend: %s", config.Backend)
	}

	format, err := encoder.ParseFormat(config.Format)
	if err != nil {
		return fmt.Errorf("deadletter.format: %w", err)
	}
	if err := encoder.ValidateCompression(format, config.Compression); err != nil {
		return fmt.Errorf("deadletter.compression: %w", err)
	}
	return nil
}
