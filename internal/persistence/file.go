package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/storage"
)

var _ storage.File = (*diskFile)(nil)

// diskFile is a queue file named after its creation time in Unix
// milliseconds.
type diskFile struct {
	path    string
	name    string
	created time.Time
}

func newDiskFile(dir string, created time.Time) *diskFile {
	name := strconv.FormatInt(created.UnixMilli(), 10)
	return &diskFile{
		path:    filepath.Join(dir, name),
		name:    name,
		created: time.UnixMilli(created.UnixMilli()),
	}
}

// parseDiskFile returns the file for an existing directory entry, or false
// when the name is not a queue file name.
func parseDiskFile(dir, name string) (*diskFile, bool) {
	ms, err := strconv.ParseInt(name, 10, 64)
	if err != nil || ms < 0 {
		return nil, false
	}
	return &diskFile{
		path:    filepath.Join(dir, name),
		name:    name,
		created: time.UnixMilli(ms),
	}, true
}

// writeFile is replaced in tests to simulate short writes.
var writeFile = func(fh *os.File, data []byte) (int, error) {
	return fh.Write(data)
}

func (f *diskFile) Name() string { return f.name }

func (f *diskFile) Created() time.Time { return f.created }

func (f *diskFile) Append(data []byte) error {
	fh, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return &errors.StorageError{Operation: "write", Path: f.path, Err: err}
	}

	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return &errors.StorageError{Operation: "stat", Path: f.path, Err: err}
	}

	if _, err := writeFile(fh, data); err != nil {
		// Drop the partial event so the next append starts on a clean
		// separator.
		if terr := fh.Truncate(info.Size()); terr != nil {
			err = fmt.Errorf("%w (truncate: %v)", err, terr)
		}
		fh.Close()
		return &errors.StorageError{Operation: "write", Path: f.path, Err: err}
	}

	if err := fh.Close(); err != nil {
		return &errors.StorageError{Operation: "write", Path: f.path, Err: fmt.Errorf("close: %w", err)}
	}
	return nil
}

func (f *diskFile) Read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, &errors.StorageError{Operation: "read", Path: f.path, Err: err}
	}
	return data, nil
}

func (f *diskFile) Size() (int64, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return 0, &errors.StorageError{Operation: "stat", Path: f.path, Err: err}
	}
	return info.Size(), nil
}

func (f *diskFile) Delete() error {
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return &errors.StorageError{Operation: "delete", Path: f.path, Err: err}
	}
	return nil
}

func (f *diskFile) exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}
