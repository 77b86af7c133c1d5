package persistence

import (
	"time"

	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/storage"
)

// fileTracker holds the in-memory statistics of the current writable file.
// Counts start at zero for a new file; after a restart the previous file is
// never resumed, so a fresh file is always started.
type fileTracker struct {
	file          storage.File
	records       int
	lastWriteTime time.Time
}

// track designates file as the writable file and resets statistics.
func (t *fileTracker) track(file storage.File) {
	t.file = file
	t.records = 0
	t.lastWriteTime = time.Time{}
}

// reset clears the writable designation.
func (t *fileTracker) reset() {
	t.track(nil)
}

// add records one write.
func (t *fileTracker) add(now time.Time) {
	t.records++
	t.lastWriteTime = now
}

func (t *fileTracker) is(file storage.File) bool {
	return t.file != nil && file != nil && t.file.Name() == file.Name()
}

// stats returns statistics for the rotation policy as if pending bytes
// were appended to a file currently holding size bytes.
func (t *fileTracker) stats(size, pending int64) event.FileStats {
	return event.FileStats{
		RecordCount:    t.records,
		SizeBytes:      size + pending,
		FirstWriteTime: t.file.Created(),
		LastWriteTime:  t.lastWriteTime,
	}
}
