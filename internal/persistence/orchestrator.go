// Package persistence implements the file-backed event queue: rotation of
// writable files, oldest-first selection of readable files, and the writer
// and reader that operate on them through a single ordered queue.
package persistence

import (
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/jittakal/replayintake/internal/clock"
	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/storage"
)

var _ storage.Orchestrator = (*FilesOrchestrator)(nil)

// MetricsCollector defines metrics operations for the file queue.
type MetricsCollector interface {
	IncFilesCreated(category string)
	IncFilesDeleted(category, reason string)
	IncStorageErrors(category, operation string)
	IncEventsWritten(category, status string)
	IncBatchesRead(category string)
	IncBatchesCommitted(category string)
	ObserveBatchSize(category string, size float64)
}

// Config configures one queue directory.
type Config struct {
	Category           event.Category
	Directory          string
	MaxFileSize        int64
	MaxDirectorySize   int64
	MaxObjectsInFile   int
	MaxObjectSize      int64
	MaxFileAgeForWrite time.Duration
	MinFileAgeForRead  time.Duration
	MaxFileAgeForRead  time.Duration
	Strategy           string
}

// DefaultConfig returns the default thresholds for a queue directory.
func DefaultConfig(category event.Category, dir string) Config {
	return Config{
		Category:           category,
		Directory:          dir,
		MaxFileSize:        4 * 1024 * 1024,
		MaxDirectorySize:   512 * 1024 * 1024,
		MaxObjectsInFile:   500,
		MaxObjectSize:      4 * 1024 * 1024,
		MaxFileAgeForWrite: 4750 * time.Millisecond,
		MinFileAgeForRead:  5 * time.Second,
		MaxFileAgeForRead:  18 * time.Hour,
		Strategy:           string(StrategyComposite),
	}
}

// PolicyConfig returns the rotation thresholds of c.
func (c Config) PolicyConfig() PolicyConfig {
	return PolicyConfig{
		MaxFileSize:        c.MaxFileSize,
		MaxObjectsInFile:   c.MaxObjectsInFile,
		MaxFileAgeForWrite: c.MaxFileAgeForWrite,
		Strategy:           c.Strategy,
	}
}

// FilesOrchestrator manages the files of one queue directory. It is not
// safe for concurrent use; all calls go through the directory's Queue.
type FilesOrchestrator struct {
	config      Config
	policy      storage.RotationPolicy
	clock       clock.Clock
	logger      *slog.Logger
	metrics     MetricsCollector
	writable    fileTracker
	lastCreated time.Time
}

// NewFilesOrchestrator creates the queue directory if needed.
func NewFilesOrchestrator(
	config Config,
	policy storage.RotationPolicy,
	clk clock.Clock,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*FilesOrchestrator, error) {
	if err := os.MkdirAll(config.Directory, 0o700); err != nil {
		return nil, &errors.StorageError{Operation: "create", Path: config.Directory, Err: err}
	}

	return &FilesOrchestrator{
		config:  config,
		policy:  policy,
		clock:   clk,
		logger:  logger.With("component", "orchestrator", "category", string(config.Category)),
		metrics: metrics,
	}, nil
}

// WritableFile returns the file the next write should go to.
func (o *FilesOrchestrator) WritableFile(writeSize int64) storage.File {
	now := o.clock.Now()

	if o.writable.file != nil {
		size, err := o.writable.file.Size()
		if err == nil && !o.policy.ShouldRotate(o.writable.stats(size, writeSize)) {
			o.writable.add(now)
			return o.writable.file
		}
	}

	o.purgeDirectory()

	file, err := o.createFile(now)
	if err != nil {
		o.logger.Error("failed to create writable file", "error", err)
		o.metrics.IncStorageErrors(string(o.config.Category), "create")
		o.writable.reset()
		return nil
	}

	o.writable.track(file)
	o.writable.add(now)
	o.metrics.IncFilesCreated(string(o.config.Category))
	o.logger.Debug("rotated writable file", "file", file.Name())
	return file
}

// ReadableFile returns the oldest file eligible for upload.
func (o *FilesOrchestrator) ReadableFile(excluded map[string]struct{}) storage.File {
	files, err := o.listFiles()
	if err != nil {
		o.logger.Error("failed to list queue files", "error", err)
		o.metrics.IncStorageErrors(string(o.config.Category), "list")
		return nil
	}

	now := o.clock.Now()
	o.releaseStaleWritable(now)

	for _, f := range files {
		age := now.Sub(f.Created())
		if o.config.MaxFileAgeForRead > 0 && age > o.config.MaxFileAgeForRead {
			o.deleteFile(f, "obsolete")
			continue
		}
		if _, skip := excluded[f.Name()]; skip {
			continue
		}
		if o.writable.is(f) {
			continue
		}
		if o.config.MinFileAgeForRead > 0 && age < o.config.MinFileAgeForRead {
			// Files are sorted oldest first.
			return nil
		}
		return f
	}
	return nil
}

// Delete removes file. Deleting an already deleted file is a no-op.
func (o *FilesOrchestrator) Delete(file storage.File) {
	if file == nil {
		return
	}
	o.deleteFile(file, "consumed")
}

func (o *FilesOrchestrator) deleteFile(file storage.File, reason string) {
	if o.writable.is(file) {
		o.writable.reset()
	}

	if err := file.Delete(); err != nil {
		o.logger.Error("failed to delete file", "file", file.Name(), "error", err)
		o.metrics.IncStorageErrors(string(o.config.Category), "delete")
		return
	}
	o.metrics.IncFilesDeleted(string(o.config.Category), reason)
}

// releaseStaleWritable drops the writable designation of a file that the
// next write would rotate away from anyway, so that it can be uploaded even
// when no further writes arrive.
func (o *FilesOrchestrator) releaseStaleWritable(now time.Time) {
	if o.writable.file == nil || o.config.MaxFileAgeForWrite <= 0 {
		return
	}
	if now.Sub(o.writable.file.Created()) >= o.config.MaxFileAgeForWrite {
		o.writable.reset()
	}
}

// createFile creates a new, empty file whose name is strictly newer than
// every name this orchestrator handed out before.
func (o *FilesOrchestrator) createFile(now time.Time) (*diskFile, error) {
	created := now.Truncate(time.Millisecond)
	if !created.After(o.lastCreated) {
		created = o.lastCreated.Add(time.Millisecond)
	}

	file := newDiskFile(o.config.Directory, created)
	for file.exists() {
		created = created.Add(time.Millisecond)
		file = newDiskFile(o.config.Directory, created)
	}

	if err := file.Append(nil); err != nil {
		return nil, err
	}
	o.lastCreated = created
	return file, nil
}

// purgeDirectory deletes the oldest files while the directory exceeds its
// size cap.
func (o *FilesOrchestrator) purgeDirectory() {
	if o.config.MaxDirectorySize <= 0 {
		return
	}

	files, err := o.listFiles()
	if err != nil {
		o.logger.Error("failed to list queue files", "error", err)
		o.metrics.IncStorageErrors(string(o.config.Category), "list")
		return
	}

	sizes := make([]int64, len(files))
	var total int64
	for i, f := range files {
		size, err := f.Size()
		if err != nil {
			continue
		}
		sizes[i] = size
		total += size
	}

	for i := 0; i < len(files) && total > o.config.MaxDirectorySize; i++ {
		o.logger.Warn("queue directory over capacity, purging oldest file",
			"file", files[i].Name(),
			"directory_size", total,
			"max_directory_size", o.config.MaxDirectorySize,
		)
		o.deleteFile(files[i], "purged")
		total -= sizes[i]
	}
}

// listFiles returns the queue files sorted oldest first. Entries that are
// not queue files are ignored.
func (o *FilesOrchestrator) listFiles() ([]*diskFile, error) {
	entries, err := os.ReadDir(o.config.Directory)
	if err != nil {
		return nil, &errors.StorageError{Operation: "list", Path: o.config.Directory, Err: err}
	}

	files := make([]*diskFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if f, ok := parseDiskFile(o.config.Directory, entry.Name()); ok {
			files = append(files, f)
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Created().Before(files[j].Created())
	})
	return files, nil
}
