package encoder

import (
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/jittakal/replayintake/pkg/encoder"
	"github.com/jittakal/replayintake/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ encoder.Encoder = (*ParquetEncoder)(nil)

// DeadLetterParquet is the Parquet row of an archived batch.
type DeadLetterParquet struct {
	Category   string    `parquet:"category,dict"`
	FileName   string    `parquet:"file_name"`
	Payload    []byte    `parquet:"payload"`
	Reason     string    `parquet:"reason"`
	Attempts   int32     `parquet:"attempts"`
	ArchivedAt time.Time `parquet:"archived_at,timestamp(microsecond)"`
}

// ParquetEncoder implements encoder.Encoder for Apache Parquet files.
// Supports SNAPPY (default), GZIP, LZ4, ZSTD and uncompressed output.
type ParquetEncoder struct {
	compressionName string
}

// NewParquetEncoder creates a new Parquet encoder with specified compression.
func NewParquetEncoder(compression string) *ParquetEncoder {
	return &ParquetEncoder{
		compressionName: compression,
	}
}

// compressionCodec converts a compression name to a parquet WriterOption.
func compressionCodec(compression string) parquet.WriterOption {
	switch compression {
	case "gzip", "GZIP":
		return parquet.Compression(&parquet.Gzip)
	case "lz4", "LZ4":
		return parquet.Compression(&parquet.Lz4Raw)
	case "zstd", "ZSTD":
		return parquet.Compression(&parquet.Zstd)
	case "uncompressed", "UNCOMPRESSED", "none", "NONE":
		return parquet.Compression(&parquet.Uncompressed)
	default:
		return parquet.Compression(&parquet.Snappy)
	}
}

// Encode writes letters to a Parquet file.
func (e *ParquetEncoder) Encode(filePath string, letters []event.DeadLetter) (*event.FileStats, error) {
	if len(letters) == 0 {
		return nil, fmt.Errorf("no dead letters to encode")
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	rows := make([]DeadLetterParquet, len(letters))
	for i, letter := range letters {
		rows[i] = toParquetRow(letter)
	}

	writer := parquet.NewGenericWriter[DeadLetterParquet](
		file,
		compressionCodec(e.compressionName),
		parquet.CreatedBy("replayintake", "1.0", "0"),
	)

	if _, err := writer.Write(rows); err != nil {
		writer.Close()
		file.Close()
		return nil, fmt.Errorf("failed to write dead letters: %w", err)
	}

	if err := writer.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	// Close before stat so the footer is on disk.
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

func toParquetRow(letter event.DeadLetter) DeadLetterParquet {
	return DeadLetterParquet{
		Category:   string(letter.Category),
		FileName:   letter.FileName,
		Payload:    letter.Payload,
		Reason:     letter.Reason,
		Attempts:   int32(letter.Attempts),
		ArchivedAt: letter.ArchivedAt.UTC(),
	}
}

// Format returns the file format.
func (e *ParquetEncoder) Format() event.FileFormat {
	return event.FormatParquet
}

// FileExtension returns the file extension.
func (e *ParquetEncoder) FileExtension() string {
	return ".parquet"
}
