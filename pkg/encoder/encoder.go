// Package encoder defines interfaces for encoding dead letters to various file formats.
package encoder

import "github.com/jittakal/replayintake/pkg/event"

// Encoder encodes dead letters to a specific file format.
type Encoder interface {
	// Encode writes letters to a file and returns file statistics.
	Encode(filePath string, letters []event.DeadLetter) (*event.FileStats, error)

	// Format returns the file format this encoder produces.
	Format() event.FileFormat

	// FileExtension returns the file extension (e.g., ".parquet", ".avro").
	FileExtension() string
}
