// Package event defines the core record types exchanged between the
// recorder, the on-disk queue and the request builders.
package event

import (
	"time"

	"github.com/goccy/go-json"
)

// Category identifies which kind of upload a stored event belongs to.
type Category string

const (
	CategorySegment  Category = "segment"
	CategoryResource Category = "resource"
)

// RecordContext identifies the application, session and view a group of
// records was captured in.
type RecordContext struct {
	ApplicationID string `json:"applicationID"`
	SessionID     string `json:"sessionID"`
	ViewID        string `json:"viewID"`
}

// EnrichedRecord is the unit the recorder appends to the segment queue: the
// records captured for one view over a short period plus their context.
// Timestamps are Unix milliseconds already adjusted by the clock correction.
type EnrichedRecord struct {
	Context           RecordContext     `json:"context"`
	Records           []json.RawMessage `json:"records"`
	HasFullSnapshot   bool              `json:"hasFullSnapshot"`
	EarliestTimestamp int64             `json:"earliestTimestamp"`
	LatestTimestamp   int64             `json:"latestTimestamp"`
}

// Start returns the earliest record time.
func (r *EnrichedRecord) Start() time.Time {
	return time.UnixMilli(r.EarliestTimestamp)
}

// End returns the latest record time.
func (r *EnrichedRecord) End() time.Time {
	return time.UnixMilli(r.LatestTimestamp)
}

// ResourceContext carries the application a resource was captured for.
type ResourceContext struct {
	ApplicationID string `json:"applicationID"`
}

// ResourceRecord is a binary asset (image, font) referenced by segments.
// Data is base64 encoded in JSON.
type ResourceRecord struct {
	Identifier string          `json:"identifier"`
	MimeType   string          `json:"mimeType"`
	Data       []byte          `json:"data"`
	Context    ResourceContext `json:"context"`
}

// FileStats contains statistics about a queue file.
type FileStats struct {
	RecordCount    int
	SizeBytes      int64
	FirstWriteTime time.Time
	LastWriteTime  time.Time
}

// FileFormat represents the dead-letter archive file format.
type FileFormat string

const (
	FormatParquet FileFormat = "parquet"
	FormatAvro    FileFormat = "avro"
)

// DeadLetter is a batch that repeatedly failed to decode and was moved out
// of the upload queue.
type DeadLetter struct {
	Category   Category
	FileName   string
	Payload    []byte
	Reason     string
	Attempts   int
	ArchivedAt time.Time
}

// ArchivedAtUnix returns the archive time as Unix seconds.
func (d *DeadLetter) ArchivedAtUnix() int64 {
	return d.ArchivedAt.Unix()
}

// Validator validates serialized events before they are queued.
type Validator interface {
	// Validate checks that data is a single JSON object of the expected shape.
	Validate(category Category, data []byte) error
}
