// Package dto holds the configuration structures decoded by the loader.
package dto

import (
	"fmt"
	"time"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Rotation      RotationConfig      `mapstructure:"rotation"`
	Upload        UploadConfig        `mapstructure:"upload"`
	Intake        IntakeConfig        `mapstructure:"intake"`
	Clock         ClockConfig         `mapstructure:"clock"`
	DeadLetter    DeadLetterConfig    `mapstructure:"deadletter"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Generator     GeneratorConfig     `mapstructure:"generator"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// StorageConfig locates the on-disk queues. Each category gets its own
// directory below RootDir.
type StorageConfig struct {
	RootDir       string `mapstructure:"root_dir"`
	QueueCapacity int    `mapstructure:"queue_capacity"`
}

// RotationConfig contains queue file rotation and retention settings
type RotationConfig struct {
	MaxFileSizeBytes      int64         `mapstructure:"max_file_size_bytes"`
	MaxDirectorySizeBytes int64         `mapstructure:"max_directory_size_bytes"`
	MaxObjectsInFile      int           `mapstructure:"max_objects_in_file"`
	MaxObjectSizeBytes    int64         `mapstructure:"max_object_size_bytes"`
	MaxFileAgeForWrite    time.Duration `mapstructure:"max_file_age_for_write"`
	MinFileAgeForRead     time.Duration `mapstructure:"min_file_age_for_read"`
	MaxFileAgeForRead     time.Duration `mapstructure:"max_file_age_for_read"`
	Strategy              string        `mapstructure:"strategy"`
}

// UploadConfig contains upload worker and transport settings
type UploadConfig struct {
	Interval               time.Duration `mapstructure:"interval"`
	BatchesPerTick         int           `mapstructure:"batches_per_tick"`
	Timeout                time.Duration `mapstructure:"timeout"`
	RequestsPerSecond      float64       `mapstructure:"requests_per_second"`
	Burst                  int           `mapstructure:"burst"`
	MaxDecodeAttempts      int           `mapstructure:"max_decode_attempts"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
}

// IntakeConfig describes where uploads go and how the sender identifies
// itself
type IntakeConfig struct {
	Site            string       `mapstructure:"site"`
	ClientToken     string       `mapstructure:"client_token"`
	CustomURL       string       `mapstructure:"custom_url"`
	Source          string       `mapstructure:"source"`
	ApplicationName string       `mapstructure:"application_name"`
	Version         string       `mapstructure:"version"`
	SDKVersion      string       `mapstructure:"sdk_version"`
	Device          DeviceConfig `mapstructure:"device"`
}

// DeviceConfig describes the recording host
type DeviceConfig struct {
	Name      string `mapstructure:"name"`
	OSName    string `mapstructure:"os_name"`
	OSVersion string `mapstructure:"os_version"`
}

// ClockConfig contains clock correction settings
type ClockConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Servers        []string      `mapstructure:"servers"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
}

// DeadLetterConfig contains dead letter archive settings
type DeadLetterConfig struct {
	Enabled     bool        `mapstructure:"enabled"`
	Backend     string      `mapstructure:"backend"`
	Format      string      `mapstructure:"format"`
	Compression string      `mapstructure:"compression"`
	BasePath    string      `mapstructure:"base_path"`
	S3          S3Config    `mapstructure:"s3"`
	Azure       AzureConfig `mapstructure:"azure"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	File        FileConfig  `mapstructure:"file"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
	SSEEnabled      bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID     string `mapstructure:"sse_kms_key_id"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	Endpoint             string `mapstructure:"endpoint"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// TelemetryConfig contains SDK telemetry settings. Messages are always
// logged; Kafka forwarding is optional.
type TelemetryConfig struct {
	Service        string        `mapstructure:"service"`
	MinLevel       string        `mapstructure:"min_level"`
	BufferSize     int           `mapstructure:"buffer_size"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	Kafka          KafkaConfig   `mapstructure:"kafka"`
}

// KafkaConfig contains Kafka producer configuration for telemetry
type KafkaConfig struct {
	Enabled          bool      `mapstructure:"enabled"`
	BootstrapServers []string  `mapstructure:"bootstrap_servers"`
	Topic            string    `mapstructure:"topic"`
	Source           string    `mapstructure:"source"`
	SecurityProtocol string    `mapstructure:"security_protocol"`
	SASLMechanism    string    `mapstructure:"sasl_mechanism"`
	SASLUsername     string    `mapstructure:"sasl_username"`
	SASLPassword     string    `mapstructure:"sasl_password"`
	AWSRegion        string    `mapstructure:"aws_region"`
	Compression      string    `mapstructure:"compression"`
	TLS              TLSConfig `mapstructure:"tls"`
}

// TLSConfig contains TLS settings
type TLSConfig struct {
	CACertFile         string `mapstructure:"ca_cert_file"`
	ClientCertFile     string `mapstructure:"client_cert_file"`
	ClientKeyFile      string `mapstructure:"client_key_file"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// GeneratorConfig contains synthetic recorder settings
type GeneratorConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Interval         time.Duration `mapstructure:"interval"`
	ViewsPerTick     int           `mapstructure:"views_per_tick"`
	RecordsPerView   int           `mapstructure:"records_per_view"`
	ResourcesPerTick int           `mapstructure:"resources_per_tick"`
	ApplicationID    string        `mapstructure:"application_id"`
}

// ServerConfig contains local ingest settings
type ServerConfig struct {
	IngestEnabled bool  `mapstructure:"ingest_enabled"`
	MaxBodyBytes  int64 `mapstructure:"max_body_bytes"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Port int `mapstructure:"port"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if c.Storage.RootDir == "" {
		return fmt.Errorf("storage root dir is required")
	}
	if c.Intake.ClientToken == "" {
		return fmt.Errorf("intake client token is required")
	}
	return nil
}

// Validate validates S3 configuration.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("s3 bucket is required")
	}
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	return nil
}

// Validate validates Azure configuration.
func (c *AzureConfig) Validate() error {
	if c.AccountName == "" {
		return fmt.Errorf("azure account name is required")
	}
	if c.Container == "" {
		return fmt.Errorf("azure container is required")
	}
	return nil
}

// Validate validates file configuration.
func (c *FileConfig) Validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("file base path is required")
	}
	return nil
}

// Validate validates Kafka telemetry configuration. A disabled publisher
// needs nothing.
func (c *KafkaConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.BootstrapServers) == 0 {
		return fmt.Errorf("telemetry kafka bootstrap servers are required")
	}
	if c.Topic == "" {
		return fmt.Errorf("telemetry kafka topic is required")
	}
	return nil
}
