// Package encoder implements the dead-letter file encoders.
package encoder

import (
	"fmt"
	"slices"
	"strings"

	"github.com/jittakal/replayintake/pkg/encoder"
	"github.com/jittakal/replayintake/pkg/event"
)

// Factory builds the encoder for one archive format. The compression name
// is checked when the encoder is created, not when the factory is.
type Factory struct {
	format      event.FileFormat
	compression string
}

// NewFactory creates a factory. An empty compression selects the format's
// default.
func NewFactory(format event.FileFormat, compression string) *Factory {
	if compression == "" {
		compression = DefaultCompression(format)
	}
	return &Factory{
		format:      format,
		compression: compression,
	}
}

// CreateEncoder returns a fresh encoder for the configured format.
func (f *Factory) CreateEncoder() (encoder.Encoder, error) {
	if err := ValidateCompression(f.format, f.compression); err != nil {
		return nil, err
	}

	switch f.format {
	case event.FormatParquet:
		return NewParquetEncoder(f.compression), nil
	case event.FormatAvro:
		return NewAvroEncoder(f.compression)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", f.format)
	}
}

// ParseFormat maps a configured format name to a FileFormat.
func ParseFormat(name string) (event.FileFormat, error) {
	format := event.FileFormat(strings.ToLower(name))
	if !slices.Contains(SupportedFormats(), format) {
		return "", fmt.Errorf("unsupported file format: %q (supported: %v)", name, SupportedFormats())
	}
	return format, nil
}

// SupportedFormats lists the archive formats.
func SupportedFormats() []event.FileFormat {
	return []event.FileFormat{
		event.FormatParquet,
		event.FormatAvro,
	}
}

// SupportedCompressions lists the codecs a format accepts.
func SupportedCompressions(format event.FileFormat) []string {
	switch format {
	case event.FormatParquet:
		return []string{"uncompressed", "snappy", "gzip", "lz4", "zstd"}
	case event.FormatAvro:
		return []string{"uncompressed", "gzip"}
	default:
		return []string{}
	}
}

// ValidateCompression reports whether format accepts compression. Names are
// case-insensitive, "none" is an alias of "uncompressed" and empty means the
// default.
func ValidateCompression(format event.FileFormat, compression string) error {
	name := strings.ToLower(compression)
	switch name {
	case "":
		return nil
	case "none":
		name = "uncompressed"
	}
	if !slices.Contains(SupportedCompressions(format), name) {
		return fmt.Errorf("unsupported %s compression: %q", format, compression)
	}
	return nil
}

// DefaultCompression returns the codec used when none is configured.
func DefaultCompression(format event.FileFormat) string {
	switch format {
	case event.FormatParquet:
		return "snappy"
	case event.FormatAvro:
		return "gzip"
	default:
		return "uncompressed"
	}
}
