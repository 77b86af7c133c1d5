// Package sessionreplay builds multipart upload requests for the replay
// intake: segments (compressed record sets) and resources (binary assets).
package sessionreplay

import (
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/request"
	"github.com/jittakal/replayintake/pkg/telemetry"
)

const telemetryPrefix = "[SR] "

// maxReportedValue caps how much of an offending input a telemetry message
// quotes. Batches can reach several megabytes.
const maxReportedValue = 256

// MetricsCollector defines metrics operations for request building.
type MetricsCollector interface {
	IncRequestsBuilt(category, status string)
}

// Config configures a request builder.
type Config struct {
	// CustomURL replaces the per-site intake URL when set.
	CustomURL string
}

// builder holds what segment and resource builders share: URL resolution,
// headers and failure reporting. It has no mutable state.
type builder struct {
	category  event.Category
	customURL string
	telemetry telemetry.Telemetry
	metrics   MetricsCollector
	newUUID   func() uuid.UUID
}

func newBuilder(category event.Category, config Config, tel telemetry.Telemetry, metrics MetricsCollector) builder {
	return builder{
		category:  category,
		customURL: config.CustomURL,
		telemetry: tel,
		metrics:   metrics,
		newUUID:   uuid.New,
	}
}

// descriptor creates the request envelope shared by every category.
func (b *builder) descriptor(ctx event.Context) (*request.Descriptor, error) {
	url, err := IntakeURL(ctx.Site, b.customURL)
	if err != nil {
		return nil, err
	}

	boundary := b.newUUID().String()

	h := make(http.Header)
	h.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	h.Set("User-Agent", userAgent(ctx))
	h.Set("DD-API-KEY", ctx.ClientToken)
	h.Set("DD-EVP-ORIGIN", ctx.Source)
	h.Set("DD-EVP-ORIGIN-VERSION", ctx.SDKVersion)
	h.Set("DD-REQUEST-ID", b.newUUID().String())

	return &request.Descriptor{
		Method:   http.MethodPost,
		URL:      url,
		Header:   h,
		Boundary: boundary,
	}, nil
}

func userAgent(ctx event.Context) string {
	return fmt.Sprintf("%s/%s CFNetwork (%s; %s/%s)",
		ctx.ApplicationName, ctx.Version, ctx.Device.Name, ctx.Device.OSName, ctx.Device.OSVersion)
}

// splitBatch decodes a batch array into its raw events.
func (b *builder) splitBatch(data []byte) ([][]byte, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	events := make([][]byte, len(raw))
	for i, r := range raw {
		events[i] = r
	}
	return events, nil
}

// decodingFailure reports value once to telemetry and returns the error the
// build fails with.
func (b *builder) decodingFailure(subject, value string, err error) error {
	b.telemetry.Error(
		fmt.Sprintf("%sCould not create %s from provided string '%s'", telemetryPrefix, subject, excerpt(value)),
		"DecodingError",
		"",
	)
	b.metrics.IncRequestsBuilt(string(b.category), "decoding_error")
	return &errors.DecodingError{Value: value, Err: err}
}

// configurationFailure reports an invalid configured literal.
func (b *builder) configurationFailure(subject, field, value string) error {
	b.telemetry.Error(
		fmt.Sprintf("%sCould not create %s from provided string '%s'", telemetryPrefix, subject, value),
		"",
		"",
	)
	b.metrics.IncRequestsBuilt(string(b.category), "configuration_error")
	return &errors.ConfigurationError{Field: field, Value: value}
}

// excerpt shortens s to maxReportedValue bytes without splitting a rune.
func excerpt(s string) string {
	if len(s) <= maxReportedValue {
		return s
	}
	n := maxReportedValue
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
