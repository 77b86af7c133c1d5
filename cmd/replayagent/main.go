package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/replayintake/internal/clock"
	"github.com/jittakal/replayintake/internal/config"
	"github.com/jittakal/replayintake/internal/config/dto"
	"github.com/jittakal/replayintake/internal/deadletter"
	"github.com/jittakal/replayintake/internal/encoder"
	"github.com/jittakal/replayintake/internal/generator"
	"github.com/jittakal/replayintake/internal/observability"
	"github.com/jittakal/replayintake/internal/persistence"
	"github.com/jittakal/replayintake/internal/server"
	"github.com/jittakal/replayintake/internal/sessionreplay"
	apptelemetry "github.com/jittakal/replayintake/internal/telemetry"
	"github.com/jittakal/replayintake/internal/timesync"
	"github.com/jittakal/replayintake/internal/upload"
	"github.com/jittakal/replayintake/internal/validator"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/request"
	"github.com/jittakal/replayintake/pkg/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize observability
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:   cfg.Observability.Logging.Level,
		Format:  cfg.Observability.Logging.Format,
		Output:  cfg.Observability.Logging.Output,
		Service: cfg.Application.Name,
		Version: cfg.Application.Version,
	})
	logger.Info("starting replay agent",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
		"root_dir", cfg.Storage.RootDir,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Cleanups run in reverse registration order.
	var cleanupFuncs []func() error
	addCleanup := func(name string, fn func() error) {
		cleanupFuncs = append(cleanupFuncs, func() error {
			if err := fn(); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
		logger.Debug("registered cleanup", "component", name)
	}
	defer func() {
		for i := len(cleanupFuncs) - 1; i >= 0; i-- {
			if err := cleanupFuncs[i](); err != nil {
				logger.Error("cleanup failed", "error", err)
			}
		}
	}()

	// Telemetry
	tel, err := newTelemetry(cfg, logger, metrics, addCleanup)
	if err != nil {
		return fmt.Errorf("failed to create telemetry: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Clock correction
	device := clock.Real()
	corrected := device
	var corrector *timesync.Corrector
	if cfg.Clock.Enabled {
		corrector, err = timesync.NewCorrector(
			timesync.Config{Servers: cfg.Clock.Servers, ResyncInterval: cfg.Clock.ResyncInterval},
			rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
			timesync.NewNTPProvider(cfg.Clock.QueryTimeout, device),
			device,
			logger,
			tel,
			metrics,
		)
		if err != nil {
			return fmt.Errorf("failed to create clock corrector: %w", err)
		}
		corrector.Start(ctx)
		corrected = corrector
		logger.Info("clock correction enabled", "server", corrector.Server())
	}

	// Queues
	eventValidator := validator.NewEventValidator()
	segments, err := newQueue(cfg, event.CategorySegment, eventValidator, device, logger, metrics, addCleanup)
	if err != nil {
		return err
	}
	resources, err := newQueue(cfg, event.CategoryResource, eventValidator, device, logger, metrics, addCleanup)
	if err != nil {
		return err
	}

	// Dead letters
	var deadLetters upload.DeadLetterSink
	if cfg.DeadLetter.Enabled {
		dlConfig, err := deadLetterConfig(&cfg.DeadLetter)
		if err != nil {
			return fmt.Errorf("invalid dead letter configuration: %w", err)
		}
		archive, err := deadletter.Open(dlConfig, logger, metrics)
		if err != nil {
			return fmt.Errorf("failed to open dead letter archive: %w", err)
		}
		addCleanup("deadletter-archive", archive.Close)
		deadLetters = archive
		logger.Info("dead letter archive enabled", "backend", cfg.DeadLetter.Backend, "format", cfg.DeadLetter.Format)
	}

	// Upload
	builderConfig := sessionreplay.Config{CustomURL: cfg.Intake.CustomURL}
	transport := upload.NewHTTPTransport(upload.TransportConfig{
		Timeout:           cfg.Upload.Timeout,
		RequestsPerSecond: cfg.Upload.RequestsPerSecond,
		Burst:             cfg.Upload.Burst,
	}, logger, metrics)
	contextProvider := intakeContext(&cfg.Intake)

	checker := server.NewChecker()
	workers := []*upload.Worker{
		newWorker(cfg, event.CategorySegment, segments.reader,
			sessionreplay.NewSegmentBuilder(builderConfig, tel, metrics),
			transport, contextProvider, deadLetters, tel, corrected, logger, metrics),
		newWorker(cfg, event.CategoryResource, resources.reader,
			sessionreplay.NewResourceBuilder(builderConfig, tel, metrics),
			transport, contextProvider, deadLetters, tel, corrected, logger, metrics),
	}
	checker.Register("upload_segment", workers[0])
	checker.Register("upload_resource", workers[1])

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *upload.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}

	// Synthetic traffic
	if cfg.Generator.Enabled {
		gen := generator.NewGenerator(generator.Config{
			Interval:         cfg.Generator.Interval,
			ViewsPerTick:     cfg.Generator.ViewsPerTick,
			RecordsPerView:   cfg.Generator.RecordsPerView,
			ResourcesPerTick: cfg.Generator.ResourcesPerTick,
			ApplicationID:    cfg.Generator.ApplicationID,
		}, corrected, segments.writer, resources.writer, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen.Run(ctx)
		}()
	}

	// Start HTTP server
	var ingest server.Ingest
	if cfg.Server.IngestEnabled {
		ingest = server.Ingest{Records: segments.writer, Resources: resources.writer}
	}
	httpServer := server.NewServer(server.Config{
		HealthPort:   cfg.Observability.Health.Port,
		MetricsPort:  cfg.Observability.Metrics.Port,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	}, checker, registry, ingest, logger)

	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	addCleanup("http-server", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(ctx)
	})

	checker.SetReady(true)
	logger.Info("application started successfully")

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("received termination signal")

	// Graceful shutdown
	logger.Info("initiating graceful shutdown")
	checker.SetReady(false)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		if corrector != nil {
			corrector.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Shutdown.GracePeriod):
		logger.Warn("grace period elapsed before workers stopped", "grace_period", cfg.Shutdown.GracePeriod)
	}

	logger.Info("application stopped successfully")
	return nil
}

// queue bundles the writer and reader sharing one directory.
type queue struct {
	writer *persistence.FileWriter
	reader *persistence.FileReader
}

func newQueue(
	cfg *dto.ApplicationConfig,
	category event.Category,
	eventValidator event.Validator,
	clk clock.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
	addCleanup func(string, func() error),
) (*queue, error) {
	qc := persistence.Config{
		Category:           category,
		Directory:          filepath.Join(cfg.Storage.RootDir, string(category)),
		MaxFileSize:        cfg.Rotation.MaxFileSizeBytes,
		MaxDirectorySize:   cfg.Rotation.MaxDirectorySizeBytes,
		MaxObjectsInFile:   cfg.Rotation.MaxObjectsInFile,
		MaxObjectSize:      cfg.Rotation.MaxObjectSizeBytes,
		MaxFileAgeForWrite: cfg.Rotation.MaxFileAgeForWrite,
		MinFileAgeForRead:  cfg.Rotation.MinFileAgeForRead,
		MaxFileAgeForRead:  cfg.Rotation.MaxFileAgeForRead,
		Strategy:           cfg.Rotation.Strategy,
	}

	policy := persistence.NewPolicy(qc.PolicyConfig(), clk)
	orchestrator, err := persistence.NewFilesOrchestrator(qc, policy, clk, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s queue: %w", category, err)
	}

	q := persistence.NewQueue(cfg.Storage.QueueCapacity)
	addCleanup(string(category)+"-queue", func() error {
		q.Close()
		return nil
	})

	return &queue{
		writer: persistence.NewFileWriter(qc, orchestrator, q, eventValidator, logger, metrics),
		reader: persistence.NewFileReader(qc, orchestrator, q, logger, metrics),
	}, nil
}

func newWorker(
	cfg *dto.ApplicationConfig,
	category event.Category,
	source upload.BatchSource,
	builder request.Builder,
	transport request.Transport,
	contextProvider upload.ContextProvider,
	deadLetters upload.DeadLetterSink,
	tel telemetry.Telemetry,
	clk clock.Clock,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *upload.Worker {
	return upload.NewWorker(upload.Config{
		Category:               category,
		Interval:               cfg.Upload.Interval,
		BatchesPerTick:         cfg.Upload.BatchesPerTick,
		MaxDecodeAttempts:      cfg.Upload.MaxDecodeAttempts,
		MaxConsecutiveFailures: cfg.Upload.MaxConsecutiveFailures,
	}, source, builder, transport, contextProvider, deadLetters, tel, clk, logger, metrics)
}

// intakeContext returns a provider of the ambient request context. The
// configuration is fixed for the process lifetime.
func intakeContext(cfg *dto.IntakeConfig) upload.ContextProvider {
	ctx := event.Context{
		Site:            event.Site(cfg.Site),
		ClientToken:     cfg.ClientToken,
		Version:         cfg.Version,
		Source:          cfg.Source,
		SDKVersion:      cfg.SDKVersion,
		ApplicationName: cfg.ApplicationName,
		Device: event.Device{
			Name:      cfg.Device.Name,
			OSName:    cfg.Device.OSName,
			OSVersion: cfg.Device.OSVersion,
		},
	}
	return func() event.Context { return ctx }
}

// newTelemetry always logs; it also forwards to Kafka when enabled.
func newTelemetry(
	cfg *dto.ApplicationConfig,
	logger *slog.Logger,
	metrics *observability.Metrics,
	addCleanup func(string, func() error),
) (telemetry.Telemetry, error) {
	tel := apptelemetry.Multi{apptelemetry.NewLogger(logger)}

	kc := cfg.Telemetry.Kafka
	if !kc.Enabled {
		return tel, nil
	}

	publisher, err := apptelemetry.NewKafkaPublisher(apptelemetry.KafkaConfig{
		Brokers:          kc.BootstrapServers,
		Topic:            kc.Topic,
		Source:           kc.Source,
		SecurityProtocol: kc.SecurityProtocol,
		SASLMechanism:    kc.SASLMechanism,
		SASLUsername:     kc.SASLUsername,
		SASLPassword:     kc.SASLPassword,
		AWSRegion:        kc.AWSRegion,
		Compression:      kc.Compression,
		TLS: apptelemetry.TLSConfig{
			CACertFile:         kc.TLS.CACertFile,
			ClientCertFile:     kc.TLS.ClientCertFile,
			ClientKeyFile:      kc.TLS.ClientKeyFile,
			InsecureSkipVerify: kc.TLS.InsecureSkipVerify,
		},
	}, logger)
	if err != nil {
		return nil, err
	}

	forwarder := apptelemetry.NewForwarder(apptelemetry.ForwarderConfig{
		Service:        cfg.Telemetry.Service,
		BufferSize:     cfg.Telemetry.BufferSize,
		PublishTimeout: cfg.Telemetry.PublishTimeout,
		MinLevel:       telemetry.Level(cfg.Telemetry.MinLevel),
	}, publisher, logger, metrics)
	addCleanup("telemetry-forwarder", forwarder.Close)

	logger.Info("telemetry forwarding enabled", "topic", kc.Topic, "brokers", kc.BootstrapServers)
	return append(tel, forwarder), nil
}

func deadLetterConfig(cfg *dto.DeadLetterConfig) (deadletter.Config, error) {
	format, err := encoder.ParseFormat(cfg.Format)
	if err != nil {
		return deadletter.Config{}, err
	}

	return deadletter.Config{
		Backend:     cfg.Backend,
		Format:      format,
		Compression: cfg.Compression,
		BasePath:    cfg.BasePath,
		File:        deadletter.FileConfig{BasePath: cfg.File.BasePath},
		S3: deadletter.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			UsePathStyle:    cfg.S3.UsePathStyle,
			SSEEnabled:      cfg.S3.SSEEnabled,
			SSEKMSKeyID:     cfg.S3.SSEKMSKeyID,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		},
		GCS: deadletter.GCSConfig{
			Bucket:               cfg.GCS.Bucket,
			ProjectID:            cfg.GCS.ProjectID,
			CredentialsFile:      cfg.GCS.CredentialsFile,
			CredentialsJSON:      cfg.GCS.CredentialsJSON,
			Endpoint:             cfg.GCS.Endpoint,
			UseDefaultCredential: cfg.GCS.UseDefaultCredential,
		},
		Azure: deadletter.AzureConfig{
			AccountName:   cfg.Azure.AccountName,
			AccountKey:    cfg.Azure.AccountKey,
			ContainerName: cfg.Azure.Container,
			Endpoint:      cfg.Azure.Endpoint,
		},
	}, nil
}
