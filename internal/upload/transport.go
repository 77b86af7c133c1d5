package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/request"
)

var _ request.Transport = (*HTTPTransport)(nil)

// maxDrainBytes bounds how much of a response body is read before closing.
const maxDrainBytes = 64 * 1024

// TransportConfig configures the HTTP transport.
type TransportConfig struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// HTTPTransport sends descriptors over HTTP, paced by a token bucket.
type HTTPTransport struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics MetricsCollector
}

// NewHTTPTransport creates a transport. A zero RequestsPerSecond disables
// pacing.
func NewHTTPTransport(config TransportConfig, logger *slog.Logger, metrics MetricsCollector) *HTTPTransport {
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPTransport{
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With("component", "transport"),
		metrics: metrics,
	}
}

// Send performs the request. Network failures wrap errors.ErrConnectionLost;
// non-2xx responses are returned as *errors.StatusError.
func (t *HTTPTransport) Send(ctx context.Context, desc *request.Descriptor) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for send slot: %w", err)
	}

	req, err := desc.HTTPRequest(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		t.metrics.ObserveUploadDuration("network_error", time.Since(start).Seconds())
		return fmt.Errorf("%w: %w", errors.ErrConnectionLost, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	t.metrics.ObserveUploadDuration(strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		t.logger.Debug("intake rejected request",
			"status", resp.StatusCode,
			"request_id", desc.Header.Get("DD-REQUEST-ID"),
		)
		return &errors.StatusError{StatusCode: resp.StatusCode, URL: desc.URL}
	}
	return nil
}
