// Package storage defines interfaces for the on-disk event queue and the
// dead-letter archive.
//
// The queue side (File, Orchestrator, RotationPolicy) is backed by a local
// directory. The archive side (Writer, Router) writes rejected batches to
// object storage (S3, GCS, Azure Blob) or the local filesystem.
package storage

import (
	"context"
	"time"

	"github.com/jittakal/replayintake/pkg/event"
)

// File is one queue file. Its identity is its name, which encodes the
// creation time so that names order files oldest first.
type File interface {
	// Name returns the file name within the queue directory.
	Name() string

	// Created returns the creation time encoded in the name.
	Created() time.Time

	// Append writes data at the end of the file.
	Append(data []byte) error

	// Read returns the full content of the file.
	Read() ([]byte, error)

	// Size returns the current size in bytes.
	Size() (int64, error)

	// Delete removes the file. Deleting a missing file is not an error.
	Delete() error
}

// Orchestrator decides which file to write to and which file to read next.
// Implementations are not safe for concurrent use; callers serialize access.
type Orchestrator interface {
	// WritableFile returns the file the next write of writeSize bytes should
	// go to, rotating when needed. Returns nil when no file is available.
	WritableFile(writeSize int64) File

	// ReadableFile returns the oldest file whose name is not in excluded and
	// which is not currently being written. Returns nil when none exists.
	ReadableFile(excluded map[string]struct{}) File

	// Delete removes a file. Repeated deletes are no-ops.
	Delete(file File)
}

// RotationPolicy determines when the writable file must be replaced.
type RotationPolicy interface {
	// ShouldRotate returns true if the file described by stats must not
	// receive more data.
	ShouldRotate(stats event.FileStats) bool
}

// Writer writes dead letters to archive storage.
type Writer interface {
	// Write writes letters to storage at the specified path.
	// Returns the number of bytes written.
	Write(ctx context.Context, letters []event.DeadLetter, path string, format event.FileFormat) (int64, error)

	// Close closes the writer and releases resources.
	Close() error
}

// Router determines archive paths for dead letters.
type Router interface {
	// Route returns the archive directory for a category at a given time.
	// timestamp is Unix seconds.
	Route(category event.Category, timestamp int64) string
}
