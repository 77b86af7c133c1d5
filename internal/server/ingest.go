package server

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	apperrors "github.com/jittakal/replayintake/internal/errors"
)

// DefaultMaxBodyBytes caps ingest bodies when no limit is configured.
const DefaultMaxBodyBytes = 10 << 20

// Appender stores one serialized event.
type Appender interface {
	Append(data []byte) error
}

// IngestResponse is the body returned by the ingest endpoints.
type IngestResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// IngestHandler returns a handler that appends the request body as one
// event. It answers 202 when stored, 413 when oversized, 422 when invalid
// and 503 when the queue cannot take it.
func IngestHandler(appender Appender, maxBodyBytes int64, logger *slog.Logger) http.HandlerFunc {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeJSON(w, http.StatusRequestEntityTooLarge, IngestResponse{Status: "rejected", Error: err.Error()}, logger)
				return
			}
			writeJSON(w, http.StatusBadRequest, IngestResponse{Status: "rejected", Error: err.Error()}, logger)
			return
		}

		if err := appender.Append(body); err != nil {
			statusCode := http.StatusServiceUnavailable
			switch {
			case errors.Is(err, apperrors.ErrObjectTooLarge):
				statusCode = http.StatusRequestEntityTooLarge
			case errors.Is(err, apperrors.ErrInvalidEvent):
				statusCode = http.StatusUnprocessableEntity
			}
			logger.Debug("ingest rejected", "path", r.URL.Path, "status", statusCode, "error", err)
			writeJSON(w, statusCode, IngestResponse{Status: "rejected", Error: err.Error()}, logger)
			return
		}

		writeJSON(w, http.StatusAccepted, IngestResponse{Status: "accepted"}, logger)
	}
}
