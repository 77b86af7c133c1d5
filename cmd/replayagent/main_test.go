package main

import (
	"testing"

	"github.com/jittakal/replayintake/internal/config/dto"
	"github.com/jittakal/replayintake/pkg/event"
)

func TestIntakeContext(t *testing.T) {
	provider := intakeContext(&dto.IntakeConfig{
		Site:            "eu1",
		ClientToken:     "token",
		Source:          "ios",
		ApplicationName: "shop",
		Version:         "2.0.0",
		SDKVersion:      "1.4.0",
		Device:          dto.DeviceConfig{Name: "iPhone", OSName: "iOS", OSVersion: "17.1"},
	})

	ctx := provider()
	if ctx.Site != event.SiteEU1 {
		t.Errorf("Site = %q, want eu1", ctx.Site)
	}
	if ctx.ClientToken != "token" || ctx.Source != "ios" {
		t.Errorf("context = %+v", ctx)
	}
	if ctx.Device.Name != "iPhone" || ctx.Device.OSVersion != "17.1" {
		t.Errorf("Device = %+v", ctx.Device)
	}
}

func TestDeadLetterConfig(t *testing.T) {
	tests := []struct {
		name       string
		config     dto.DeadLetterConfig
		wantFormat event.FileFormat
		wantBucket string
	}{
		{
			name:       "file parquet",
			config:     dto.DeadLetterConfig{Backend: "file", Format: "parquet", File: dto.FileConfig{BasePath: "/tmp/dl"}},
			wantFormat: event.FormatParquet,
		},
		{
			name:       "s3 avro",
			config:     dto.DeadLetterConfig{Backend: "s3", Format: "avro", S3: dto.S3Config{Bucket: "archive", Region: "us-east-1"}},
			wantFormat: event.FormatAvro,
			wantBucket: "archive",
		},
		{
			name:       "azure container",
			config:     dto.DeadLetterConfig{Backend: "azure", Format: "parquet", Azure: dto.AzureConfig{AccountName: "acct", Container: "letters"}},
			wantFormat: event.FormatParquet,
			wantBucket: "letters",
		},
		{
			name:       "gcs bucket",
			config:     dto.DeadLetterConfig{Backend: "gcs", Format: "parquet", GCS: dto.GCSConfig{Bucket: "gcs-archive"}},
			wantFormat: event.FormatParquet,
			wantBucket: "gcs-archive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := deadLetterConfig(&tt.config)
			if err != nil {
				t.Fatalf("deadLetterConfig() error = %v", err)
			}
			if got.Format != tt.wantFormat {
				t.Errorf("Format = %q, want %q", got.Format, tt.wantFormat)
			}
			if got.Bucket() != tt.wantBucket {
				t.Errorf("Bucket() = %q, want %q", got.Bucket(), tt.wantBucket)
			}
		})
	}
}

func TestDeadLetterConfig_UnknownFormat(t *testing.T) {
	if _, err := deadLetterConfig(&dto.DeadLetterConfig{Backend: "file", Format: "csv"}); err == nil {
		t.Fatal("deadLetterConfig() should reject csv")
	}
}
