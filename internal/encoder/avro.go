// Package encoder implements file format encoders.
package encoder

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/replayintake/pkg/encoder"
	"github.com/jittakal/replayintake/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*AvroEncoder)(nil)

// AvroEncoder implements encoder.Encoder for Apache Avro OCF files with
// optional gzip compression.
type AvroEncoder struct {
	codec       *goavro.Codec
	compression string
}

// NewAvroEncoder creates a new Avro encoder with specified compression.
func NewAvroEncoder(compression string) (*AvroEncoder, error) {
	codec, err := goavro.NewCodec(avroSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create avro codec: %w", err)
	}

	return &AvroEncoder{
		codec:       codec,
		compression: compression,
	}, nil
}

// avroSchema returns the Avro schema for dead-letter rows.
func avroSchema() string {
	return `{
		"type": "record",
		"name": "DeadLetter",
		"namespace": "com.replayintake.deadletter",
		"fields": [
			{"name": "category", "type": "string"},
			{"name": "file_name", "type": "string"},
			{"name": "payload", "type": "bytes"},
			{"name": "reason", "type": "string"},
			{"name": "attempts", "type": "int"},
			{"name": "archived_at", "type": "string"}
		]
	}`
}

// Encode writes letters to an Avro file.
func (e *AvroEncoder) Encode(filePath string, letters []event.DeadLetter) (*event.FileStats, error) {
	if len(letters) == 0 {
		return nil, fmt.Errorf("no dead letters to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := e.encodeTo(file, letters); err != nil {
		return nil, err
	}

	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	now := time.Now()
	return &event.FileStats{
		RecordCount:    len(letters),
		SizeBytes:      fileInfo.Size(),
		FirstWriteTime: now,
		LastWriteTime:  now,
	}, nil
}

// EncodeToBytes encodes letters in memory.
func (e *AvroEncoder) EncodeToBytes(letters []event.DeadLetter) ([]byte, error) {
	if len(letters) == 0 {
		return nil, fmt.Errorf("no dead letters to encode")
	}

	var buf bytes.Buffer
	if err := e.encodeTo(&buf, letters); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (e *AvroEncoder) encodeTo(w io.Writer, letters []event.DeadLetter) error {
	var gzipWriter *gzip.Writer
	if e.gzip() {
		gzipWriter = gzip.NewWriter(w)
		w = gzipWriter
	}

	ocfWriter, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:     w,
		Codec: e.codec,
	})
	if err != nil {
		return fmt.Errorf("failed to create OCF writer: %w", err)
	}

	rows := make([]interface{}, 0, len(letters))
	for _, letter := range letters {
		rows = append(rows, toAvroMap(letter))
	}
	if err := ocfWriter.Append(rows); err != nil {
		return fmt.Errorf("failed to write dead letters: %w", err)
	}

	if gzipWriter != nil {
		if err := gzipWriter.Close(); err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	}
	return nil
}

func toAvroMap(letter event.DeadLetter) map[string]interface{} {
	return map[string]interface{}{
		"category":    string(letter.Category),
		"file_name":   letter.FileName,
		"payload":     letter.Payload,
		"reason":      letter.Reason,
		"attempts":    int32(letter.Attempts),
		"archived_at": letter.ArchivedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (e *AvroEncoder) gzip() bool {
	return e.compression == "gzip" || e.compression == "GZIP"
}

// Format returns the file format.
func (e *AvroEncoder) Format() event.FileFormat {
	return event.FormatAvro
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	if e.gzip() {
		return ".avro.gz"
	}
	return ".avro"
}
