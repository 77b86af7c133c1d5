package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/telemetry"
)

// Ensure implementation satisfies interface at compile time.
var _ telemetry.Publisher = (*KafkaPublisher)(nil)

// EventTypePrefix prefixes the CloudEvents type of telemetry messages; the
// level is appended.
const EventTypePrefix = "com.replayintake.telemetry."

// KafkaConfig contains Kafka producer configuration.
type KafkaConfig struct {
	Brokers          []string
	Topic            string
	Source           string
	SecurityProtocol string
	SASLMechanism    string
	SASLUsername     string
	SASLPassword     string
	AWSRegion        string
	Compression      string
	TLS              TLSConfig
}

// TLSConfig contains TLS settings for SSL and SASL_SSL.
type TLSConfig struct {
	CACertFile         string
	ClientCertFile     string
	ClientKeyFile      string
	InsecureSkipVerify bool
}

// Validate checks the configuration.
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return &errors.ConfigurationError{Field: "telemetry.kafka.brokers", Err: fmt.Errorf("at least one broker is required")}
	}
	if c.Topic == "" {
		return &errors.ConfigurationError{Field: "telemetry.kafka.topic", Err: fmt.Errorf("topic is required")}
	}
	return nil
}

// telemetryData is the CloudEvent data of a telemetry message.
type telemetryData struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
	Stack   string `json:"stack,omitempty"`
	Service string `json:"service,omitempty"`
}

// KafkaPublisher produces telemetry messages to a Kafka topic as
// structured-mode JSON CloudEvents.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	source   string
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewKafkaPublisher connects a producer to the configured brokers.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V2_8_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = compressionCodec(cfg.Compression)

	if err := configureSecurity(saramaConfig, cfg); err != nil {
		return nil, fmt.Errorf("failed to configure security: %w", err)
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync producer: %w", err)
	}

	logger.Info("telemetry publisher created",
		"bootstrap_servers", cfg.Brokers,
		"topic", cfg.Topic,
		"security_protocol", cfg.SecurityProtocol,
	)
	return newKafkaPublisher(producer, cfg, logger), nil
}

func newKafkaPublisher(producer sarama.SyncProducer, cfg KafkaConfig, logger *slog.Logger) *KafkaPublisher {
	source := cfg.Source
	if source == "" {
		source = "replayintake"
	}
	return &KafkaPublisher{
		producer: producer,
		topic:    cfg.Topic,
		source:   source,
		logger:   logger.With("component", "telemetry_publisher"),
	}
}

// Publish sends msg as a CloudEvent keyed by its id.
func (p *KafkaPublisher) Publish(ctx context.Context, msg telemetry.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrPublisherClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ce, err := p.cloudEvent(msg)
	if err != nil {
		return err
	}
	value, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("failed to marshal CloudEvent: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ce.ID()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("ce_specversion"), Value: []byte(ce.SpecVersion())},
			{Key: []byte("ce_type"), Value: []byte(ce.Type())},
			{Key: []byte("ce_source"), Value: []byte(ce.Source())},
			{Key: []byte("ce_id"), Value: []byte(ce.ID())},
		},
		Timestamp: ce.Time(),
	}

	partition, offset, err := p.producer.SendMessage(kafkaMsg)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConnectionLost, err)
	}

	p.logger.Debug("published telemetry",
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
		"event_id", ce.ID(),
		"level", msg.Level,
	)
	return nil
}

func (p *KafkaPublisher) cloudEvent(msg telemetry.Message) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(uuid.NewString())
	ce.SetSource(p.source)
	ce.SetType(EventTypePrefix + string(msg.Level))
	ce.SetTime(time.Now().UTC())
	if msg.Service != "" {
		ce.SetSubject(msg.Service)
	}

	data := telemetryData{
		Level:   string(msg.Level),
		Message: msg.Text,
		Kind:    msg.Kind,
		Stack:   msg.Stack,
		Service: msg.Service,
	}
	if err := ce.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return ce, fmt.Errorf("failed to set CloudEvent data: %w", err)
	}
	if err := ce.Validate(); err != nil {
		return ce, fmt.Errorf("invalid CloudEvent: %w", err)
	}
	return ce, nil
}

// Close closes the producer.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.producer.Close(); err != nil {
		p.logger.Error("error closing producer", "error", err)
		return err
	}
	p.logger.Info("telemetry publisher closed")
	return nil
}

func compressionCodec(name string) sarama.CompressionCodec {
	switch strings.ToLower(name) {
	case "gzip":
		return sarama.CompressionGZIP
	case "snappy":
		return sarama.CompressionSnappy
	case "lz4":
		return sarama.CompressionLZ4
	case "zstd":
		return sarama.CompressionZSTD
	default:
		return sarama.CompressionNone
	}
}
