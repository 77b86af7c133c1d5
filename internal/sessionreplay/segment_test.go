package sessionreplay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	apperrors "github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/request"
)

var uuidPattern = `[0-9A-Fa-f]{8}(-[0-9A-Fa-f]{4}){3}-[0-9A-Fa-f]{12}`

type telemetryEntry struct {
	level   string
	message string
	kind    string
	stack   string
}

// mockTelemetry records every message.
type mockTelemetry struct {
	mu      sync.Mutex
	entries []telemetryEntry
}

func (m *mockTelemetry) Debug(message string) {
	m.add(telemetryEntry{level: "debug", message: message})
}

func (m *mockTelemetry) Info(message string) { m.add(telemetryEntry{level: "info", message: message}) }

func (m *mockTelemetry) Error(message, kind, stack string) {
	m.add(telemetryEntry{level: "error", message: message, kind: kind, stack: stack})
}

func (m *mockTelemetry) add(e telemetryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

type mockMetrics struct {
	mu     sync.Mutex
	builds map[string]int
}

func (m *mockMetrics) IncRequestsBuilt(category, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.builds == nil {
		m.builds = make(map[string]int)
	}
	m.builds[category+"/"+status]++
}

var testRecordContext = event.RecordContext{
	ApplicationID: "app-123",
	SessionID:     "session-456",
	ViewID:        "view-789",
}

// mockEvents returns three enriched records with 5, 10 and 15 records.
func mockEvents(t *testing.T) [][]byte {
	t.Helper()
	var events [][]byte
	for i, count := range []int{5, 10, 15} {
		records := make([]json.RawMessage, count)
		for j := range records {
			records[j] = json.RawMessage(fmt.Sprintf(`{"type":%d,"timestamp":%d}`, 10, 1000+j))
		}
		rec := event.EnrichedRecord{
			Context:           testRecordContext,
			Records:           records,
			HasFullSnapshot:   i == 1,
			EarliestTimestamp: int64(2000 - i*100),
			LatestTimestamp:   int64(3000 + i*100),
		}
		data, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		events = append(events, data)
	}
	return events
}

func testContext() event.Context {
	return event.Context{
		Site:            event.SiteUS1,
		ClientToken:     "client-token",
		Version:         "1.2.3",
		Source:          "ios",
		SDKVersion:      "2.5.0",
		ApplicationName: "ReplayApp",
		Device: event.Device{
			Name:      "iPhone",
			OSName:    "iOS",
			OSVersion: "17.2",
		},
	}
}

func newTestSegmentBuilder(customURL string) (*SegmentBuilder, *mockTelemetry, *mockMetrics) {
	tel := &mockTelemetry{}
	metrics := &mockMetrics{}
	return NewSegmentBuilder(Config{CustomURL: customURL}, tel, metrics), tel, metrics
}

func mustBuild(t *testing.T, b request.Builder, events [][]byte, ctx event.Context) *request.Descriptor {
	t.Helper()
	desc, err := b.Build(events, ctx)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return desc
}

func TestSegmentBuilder_CreatesPOSTRequest(t *testing.T) {
	b, _, _ := newTestSegmentBuilder("")

	desc := mustBuild(t, b, mockEvents(t), testContext())

	if desc.Method != http.MethodPost {
		t.Errorf("Method = %s, want POST", desc.Method)
	}
}

func TestSegmentBuilder_SetsIntakeURL(t *testing.T) {
	b, _, _ := newTestSegmentBuilder("")

	tests := []struct {
		site event.Site
		want string
	}{
		{event.SiteUS1, "https://browser-intake-datadoghq.com/api/v2/replay"},
		{event.SiteUS3, "https://browser-intake-us3-datadoghq.com/api/v2/replay"},
		{event.SiteUS5, "https://browser-intake-us5-datadoghq.com/api/v2/replay"},
		{event.SiteEU1, "https://browser-intake-datadoghq.eu/api/v2/replay"},
		{event.SiteAP1, "https://browser-intake-ap1-datadoghq.com/api/v2/replay"},
		{event.SiteUS1Fed, "https://browser-intake-ddog-gov.com/api/v2/replay"},
	}

	for _, tt := range tests {
		t.Run(string(tt.site), func(t *testing.T) {
			ctx := testContext()
			ctx.Site = tt.site
			desc := mustBuild(t, b, mockEvents(t), ctx)
			if desc.URL != tt.want {
				t.Errorf("URL = %s, want %s", desc.URL, tt.want)
			}
		})
	}
}

func TestSegmentBuilder_SetsCustomIntakeURL(t *testing.T) {
	custom := "https://proxy.example.com/replay-intake"
	b, _, _ := newTestSegmentBuilder(custom)

	for _, site := range event.Sites() {
		t.Run(string(site), func(t *testing.T) {
			ctx := testContext()
			ctx.Site = site
			desc := mustBuild(t, b, mockEvents(t), ctx)
			if desc.URL != custom {
				t.Errorf("URL = %s, want %s", desc.URL, custom)
			}
		})
	}
}

func TestSegmentBuilder_SetsNoQueryParameters(t *testing.T) {
	b, _, _ := newTestSegmentBuilder("")

	desc := mustBuild(t, b, mockEvents(t), testContext())
	req, err := desc.HTTPRequest(t.Context())
	if err != nil {
		t.Fatalf("HTTPRequest() error = %v", err)
	}
	if req.URL.RawQuery != "" {
		t.Errorf("RawQuery = %q, want empty", req.URL.RawQuery)
	}
}

func TestSegmentBuilder_UnknownSite(t *testing.T) {
	b, tel, _ := newTestSegmentBuilder("")
	ctx := testContext()
	ctx.Site = "mars1"

	_, err := b.Build(mockEvents(t), ctx)
	if !errors.Is(err, apperrors.ErrUnknownSite) {
		t.Errorf("Build() error = %v, want ErrUnknownSite", err)
	}
	if len(tel.entries) != 0 {
		t.Errorf("telemetry entries = %d, want 0", len(tel.entries))
	}
}

func TestSegmentBuilder_SetsHTTPHeaders(t *testing.T) {
	b, _, _ := newTestSegmentBuilder("")

	desc := mustBuild(t, b, mockEvents(t), testContext())

	contentType := desc.Header.Get("Content-Type")
	if !regexp.MustCompile(`^multipart/form-data; boundary=` + uuidPattern + `$`).MatchString(contentType) {
		t.Errorf("Content-Type = %q", contentType)
	}
	if !strings.HasSuffix(contentType, desc.Boundary) {
		t.Errorf("Content-Type boundary does not match descriptor boundary %q", desc.Boundary)
	}

	tests := []struct {
		header string
		want   string
	}{
		{"User-Agent", "ReplayApp/1.2.3 CFNetwork (iPhone; iOS/17.2)"},
		{"DD-API-KEY", "client-token"},
		{"DD-EVP-ORIGIN", "ios"},
		{"DD-EVP-ORIGIN-VERSION", "2.5.0"},
	}
	for _, tt := range tests {
		if got := desc.Header.Get(tt.header); got != tt.want {
			t.Errorf("%s = %q, want %q", tt.header, got, tt.want)
		}
	}

	if _, ok := desc.Header["Content-Encoding"]; ok {
		t.Error("Content-Encoding must not be set")
	}

	requestID := desc.Header.Get("DD-REQUEST-ID")
	if !regexp.MustCompile(`^` + uuidPattern + `$`).MatchString(requestID) {
		t.Errorf("DD-REQUEST-ID = %q, want UUID", requestID)
	}

	other := mustBuild(t, b, mockEvents(t), testContext())
	if other.Header.Get("DD-REQUEST-ID") == requestID {
		t.Error("DD-REQUEST-ID reused across requests")
	}
}

func TestSegmentBuilder_SetsFormFields(t *testing.T) {
	b, _, metrics := newTestSegmentBuilder("")

	desc := mustBuild(t, b, mockEvents(t), testContext())

	want := map[string]string{
		"segment":           "session-456",
		"application.id":    "app-123",
		"view.id":           "view-789",
		"has_full_snapshot": "true",
		"records_count":     "30",
		"start":             "1800",
		"end":               "3200",
		"source":            "ios",
	}
	for name, value := range want {
		got, ok := desc.Field(name)
		if !ok {
			t.Errorf("missing form field %q", name)
			continue
		}
		if got != value {
			t.Errorf("field %s = %q, want %q", name, got, value)
		}
	}

	if len(desc.Files) != 1 {
		t.Fatalf("len(Files) = %d, want 1", len(desc.Files))
	}
	file := desc.Files[0]
	if file.Name != "segment" || file.Filename != "session-456" || file.MimeType != "application/octet-stream" {
		t.Errorf("file part = %s/%s/%s", file.Name, file.Filename, file.MimeType)
	}

	segment, err := DecodeSegment(file.Data)
	if err != nil {
		t.Fatalf("DecodeSegment() error = %v", err)
	}
	raw, _ := desc.Field("raw_segment_size")
	size, err := strconv.Atoi(raw)
	if err != nil || size <= 0 {
		t.Errorf("raw_segment_size = %q, want positive integer", raw)
	}
	if len(segment.Records) != 30 {
		t.Errorf("decoded records = %d, want 30", len(segment.Records))
	}
	if metrics.builds["segment/success"] != 1 {
		t.Errorf("success builds = %d, want 1", metrics.builds["segment/success"])
	}
}

func TestSegmentBuilder_HasFullSnapshotFalse(t *testing.T) {
	b, _, _ := newTestSegmentBuilder("")

	data, _ := json.Marshal(event.EnrichedRecord{
		Context: testRecordContext,
		Records: []json.RawMessage{json.RawMessage(`{"type":1}`)},
	})
	desc := mustBuild(t, b, [][]byte{data}, testContext())

	if got, _ := desc.Field("has_full_snapshot"); got != "false" {
		t.Errorf("has_full_snapshot = %q, want false", got)
	}
}

func TestSegmentBuilder_RoundTripsIdentifiers(t *testing.T) {
	b, _, _ := newTestSegmentBuilder("")

	desc := mustBuild(t, b, mockEvents(t), testContext())
	segment, err := DecodeSegment(desc.Files[0].Data)
	if err != nil {
		t.Fatalf("DecodeSegment() error = %v", err)
	}

	if segment.Session.ID != testRecordContext.SessionID {
		t.Errorf("session.id = %s", segment.Session.ID)
	}
	if segment.Application.ID != testRecordContext.ApplicationID {
		t.Errorf("application.id = %s", segment.Application.ID)
	}
	if segment.View.ID != testRecordContext.ViewID {
		t.Errorf("view.id = %s", segment.View.ID)
	}
	if segment.Source != SourceIOS {
		t.Errorf("source = %s", segment.Source)
	}
}

func TestSegmentBuilder_BodyIsMultipart(t *testing.T) {
	b, _, _ := newTestSegmentBuilder("")

	desc := mustBuild(t, b, mockEvents(t), testContext())
	body, err := desc.Body()
	if err != nil {
		t.Fatalf("Body() error = %v", err)
	}

	r := multipart.NewReader(strings.NewReader(string(body)), desc.Boundary)
	form, err := r.ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("ReadForm() error = %v", err)
	}
	defer form.RemoveAll()

	if got := form.Value["records_count"]; len(got) != 1 || got[0] != "30" {
		t.Errorf("records_count = %v", got)
	}
	files := form.File["segment"]
	if len(files) != 1 {
		t.Fatalf("segment files = %d, want 1", len(files))
	}
	f, err := files[0].Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if _, err := DecodeSegment(data); err != nil {
		t.Errorf("DecodeSegment(file part) error = %v", err)
	}
}

func TestSegmentBuilder_MalformedEvent(t *testing.T) {
	b, tel, metrics := newTestSegmentBuilder("")

	_, err := b.Build([][]byte{[]byte("abc")}, testContext())

	var decErr *apperrors.DecodingError
	if !errors.As(err, &decErr) {
		t.Fatalf("Build() error = %v, want DecodingError", err)
	}
	if decErr.Value != "abc" {
		t.Errorf("DecodingError.Value = %q, want abc", decErr.Value)
	}
	if len(tel.entries) != 1 {
		t.Fatalf("telemetry entries = %d, want 1", len(tel.entries))
	}
	entry := tel.entries[0]
	if entry.level != "error" {
		t.Errorf("telemetry level = %s, want error", entry.level)
	}
	if want := "[SR] Could not create segment source from provided string 'abc'"; entry.message != want {
		t.Errorf("telemetry message = %q, want %q", entry.message, want)
	}
	if metrics.builds["segment/decoding_error"] != 1 {
		t.Errorf("decoding_error builds = %d, want 1", metrics.builds["segment/decoding_error"])
	}
}

func TestSegmentBuilder_NoPartialSuccess(t *testing.T) {
	b, tel, _ := newTestSegmentBuilder("")

	events := append(mockEvents(t), []byte(`{"context":{}}`))
	desc, err := b.Build(events, testContext())
	if err == nil || desc != nil {
		t.Fatalf("Build() = %v, %v; want failure", desc, err)
	}
	if len(tel.entries) != 1 {
		t.Errorf("telemetry entries = %d, want 1", len(tel.entries))
	}
}

func TestSegmentBuilder_InvalidSource(t *testing.T) {
	b, tel, _ := newTestSegmentBuilder("")
	ctx := testContext()
	ctx.Source = "invalid source"

	_, err := b.Build(mockEvents(t), ctx)

	var configErr *apperrors.ConfigurationError
	if !errors.As(err, &configErr) {
		t.Fatalf("Build() error = %v, want ConfigurationError", err)
	}
	if len(tel.entries) != 1 {
		t.Fatalf("telemetry entries = %d, want 1", len(tel.entries))
	}
	want := telemetryEntry{
		level:   "error",
		message: "[SR] Could not create segment source from provided string 'invalid source'",
	}
	if tel.entries[0] != want {
		t.Errorf("telemetry = %+v, want %+v", tel.entries[0], want)
	}
}

func TestSegmentBuilder_AcceptsEverySource(t *testing.T) {
	b, _, _ := newTestSegmentBuilder("")

	for _, src := range []string{"android", "ios", "flutter", "react-native"} {
		t.Run(src, func(t *testing.T) {
			ctx := testContext()
			ctx.Source = src
			desc := mustBuild(t, b, mockEvents(t), ctx)
			if got, _ := desc.Field("source"); got != src {
				t.Errorf("source = %q, want %q", got, src)
			}
		})
	}
}

func TestSegmentBuilder_NoEvents(t *testing.T) {
	b, tel, _ := newTestSegmentBuilder("")

	if _, err := b.Build(nil, testContext()); !errors.Is(err, apperrors.ErrNoEvents) {
		t.Errorf("Build() error = %v, want ErrNoEvents", err)
	}
	if len(tel.entries) != 0 {
		t.Errorf("telemetry entries = %d, want 0", len(tel.entries))
	}
}

func TestSegmentBuilder_BuildBatch(t *testing.T) {
	b, _, _ := newTestSegmentBuilder("")

	events := mockEvents(t)
	batch := "[" + string(events[0]) + "," + string(events[1]) + "," + string(events[2]) + "]"

	desc, err := b.BuildBatch([]byte(batch), testContext())
	if err != nil {
		t.Fatalf("BuildBatch() error = %v", err)
	}
	if got, _ := desc.Field("records_count"); got != "30" {
		t.Errorf("records_count = %q, want 30", got)
	}
}

func TestSegmentBuilder_BuildBatchMalformed(t *testing.T) {
	b, tel, _ := newTestSegmentBuilder("")

	_, err := b.BuildBatch([]byte(`[{"context":`), testContext())

	var decErr *apperrors.DecodingError
	if !errors.As(err, &decErr) {
		t.Fatalf("BuildBatch() error = %v, want DecodingError", err)
	}
	if len(tel.entries) != 1 {
		t.Errorf("telemetry entries = %d, want 1", len(tel.entries))
	}
}

func TestSegmentBuilder_BuildBatchMalformedReportsExcerpt(t *testing.T) {
	tests := []struct {
		name    string
		batch   string
		wantLen int
	}{
		{name: "short batch quoted whole", batch: `[{"context":`, wantLen: len(`[{"context":`)},
		{name: "large batch cut", batch: "[" + strings.Repeat("x", 4<<20), wantLen: maxReportedValue + len("...")},
		{name: "cut keeps runes whole", batch: "[" + strings.Repeat("é", maxReportedValue), wantLen: maxReportedValue - 1 + len("...")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, tel, _ := newTestSegmentBuilder("")

			_, err := b.BuildBatch([]byte(tt.batch), testContext())

			var decErr *apperrors.DecodingError
			if !errors.As(err, &decErr) {
				t.Fatalf("BuildBatch() error = %v, want DecodingError", err)
			}
			if len(tel.entries) != 1 {
				t.Fatalf("telemetry entries = %d, want 1", len(tel.entries))
			}
			prefix := "[SR] Could not create segment source from provided string '"
			msg := tel.entries[0].message
			if !strings.HasPrefix(msg, prefix) || !strings.HasSuffix(msg, "'") {
				t.Fatalf("telemetry message = %.100q", msg)
			}
			quoted := strings.TrimSuffix(strings.TrimPrefix(msg, prefix), "'")
			if len(quoted) != tt.wantLen {
				t.Errorf("quoted value length = %d, want %d", len(quoted), tt.wantLen)
			}
			if !utf8.ValidString(quoted) {
				t.Error("quoted value is not valid UTF-8")
			}
		})
	}
}
