package deadletter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/storage"
)

// Archive stores dead letters, one file per letter, under the routed
// category/day partition.
type Archive struct {
	writer storage.Writer
	router storage.Router
	format event.FileFormat
	logger *slog.Logger
}

// NewArchive creates an archive on top of writer.
func NewArchive(writer storage.Writer, router storage.Router, format event.FileFormat, logger *slog.Logger) *Archive {
	return &Archive{
		writer: writer,
		router: router,
		format: format,
		logger: logger.With("component", "deadletter"),
	}
}

// Open creates the configured backend writer and an archive around it.
func Open(cfg Config, logger *slog.Logger, metrics MetricsCollector) (*Archive, error) {
	writer, err := NewWriter(cfg, logger, metrics)
	if err != nil {
		return nil, err
	}
	router := NewRouter(Protocol(cfg.Backend), cfg.Bucket(), cfg.BasePath)
	return NewArchive(writer, router, cfg.Format, logger), nil
}

// Archive writes letter to the archive.
func (a *Archive) Archive(ctx context.Context, letter event.DeadLetter) error {
	path := a.router.Route(letter.Category, letter.ArchivedAtUnix())

	size, err := a.writer.Write(ctx, []event.DeadLetter{letter}, path, a.format)
	if err != nil {
		return fmt.Errorf("archive %s: %w", letter.FileName, err)
	}

	a.logger.Debug("archived dead letter",
		"category", letter.Category,
		"file", letter.FileName,
		"path", path,
		"bytes", size,
	)
	return nil
}

// Close closes the underlying writer.
func (a *Archive) Close() error {
	return a.writer.Close()
}
