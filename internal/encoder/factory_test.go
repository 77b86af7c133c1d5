package encoder

import (
	"testing"
	"time"

	"github.com/jittakal/replayintake/pkg/event"
)

var archivedAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testLetters() []event.DeadLetter {
	return []event.DeadLetter{
		{
			Category:   event.CategorySegment,
			FileName:   "1748779200000",
			Payload:    []byte(`[{"broken"]`),
			Reason:     "decoding error",
			Attempts:   3,
			ArchivedAt: archivedAt,
		},
		{
			Category:   event.CategoryResource,
			FileName:   "1748779200001",
			Payload:    []byte(`[garbage]`),
			Reason:     "decoding error",
			Attempts:   1,
			ArchivedAt: archivedAt.Add(time.Second),
		},
	}
}

func TestFactory_CreateEncoder(t *testing.T) {
	tests := []struct {
		name    string
		format  event.FileFormat
		wantExt string
		wantErr bool
	}{
		{"parquet format", event.FormatParquet, ".parquet", false},
		{"avro format", event.FormatAvro, ".avro.gz", false},
		{"unsupported format", event.FileFormat("csv"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := NewFactory(tt.format, DefaultCompression(tt.format))
			enc, err := factory.CreateEncoder()

			if (err != nil) != tt.wantErr {
				t.Fatalf("CreateEncoder() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if enc.Format() != tt.format {
				t.Errorf("Format() = %v, want %v", enc.Format(), tt.format)
			}
			if enc.FileExtension() != tt.wantExt {
				t.Errorf("FileExtension() = %v, want %v", enc.FileExtension(), tt.wantExt)
			}
		})
	}
}

func TestSupportedCompressions(t *testing.T) {
	tests := []struct {
		format event.FileFormat
		want   int
	}{
		{event.FormatParquet, 5},
		{event.FormatAvro, 2},
		{event.FileFormat("csv"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := len(SupportedCompressions(tt.format)); got != tt.want {
				t.Errorf("len(SupportedCompressions()) = %d, want %d", got, tt.want)
			}
		})
	}

	if len(SupportedFormats()) != 2 {
		t.Errorf("SupportedFormats() = %v", SupportedFormats())
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    event.FileFormat
		wantErr bool
	}{
		{name: "parquet", want: event.FormatParquet},
		{name: "AVRO", want: event.FormatAvro},
		{name: "csv", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateCompression(t *testing.T) {
	tests := []struct {
		format      event.FileFormat
		compression string
		wantErr     bool
	}{
		{event.FormatParquet, "", false},
		{event.FormatParquet, "ZSTD", false},
		{event.FormatParquet, "none", false},
		{event.FormatParquet, "brotli", true},
		{event.FormatAvro, "gzip", false},
		{event.FormatAvro, "snappy", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.format)+"/"+tt.compression, func(t *testing.T) {
			err := ValidateCompression(tt.format, tt.compression)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCompression() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFactory_CreateEncoderRejectsCompression(t *testing.T) {
	if _, err := NewFactory(event.FormatAvro, "lz4").CreateEncoder(); err == nil {
		t.Fatal("CreateEncoder() should reject lz4 for avro")
	}
}
