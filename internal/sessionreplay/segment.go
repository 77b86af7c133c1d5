package sessionreplay

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zlib"

	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/request"
	"github.com/jittakal/replayintake/pkg/telemetry"
)

var _ request.Builder = (*SegmentBuilder)(nil)

// Segment is the JSON document carried, compressed, in the segment file part.
type Segment struct {
	Application     idRef             `json:"application"`
	Session         idRef             `json:"session"`
	View            idRef             `json:"view"`
	Start           int64             `json:"start"`
	End             int64             `json:"end"`
	HasFullSnapshot bool              `json:"has_full_snapshot"`
	RecordsCount    int64             `json:"records_count"`
	Records         []json.RawMessage `json:"records"`
	Source          Source            `json:"source"`
}

type idRef struct {
	ID string `json:"id"`
}

// SegmentBuilder builds segment upload requests.
type SegmentBuilder struct {
	builder
}

// NewSegmentBuilder creates a segment request builder.
func NewSegmentBuilder(config Config, tel telemetry.Telemetry, metrics MetricsCollector) *SegmentBuilder {
	return &SegmentBuilder{builder: newBuilder(event.CategorySegment, config, tel, metrics)}
}

// BuildBatch decodes a batch array and builds it.
func (b *SegmentBuilder) BuildBatch(data []byte, ctx event.Context) (*request.Descriptor, error) {
	events, err := b.splitBatch(data)
	if err != nil {
		return nil, b.decodingFailure("segment source", string(data), err)
	}
	return b.Build(events, ctx)
}

// Build merges the enriched records of all events into one segment.
// Events are expected to belong to the same session; the context of the
// first event identifies the segment.
func (b *SegmentBuilder) Build(events [][]byte, ctx event.Context) (*request.Descriptor, error) {
	if len(events) == 0 {
		b.metrics.IncRequestsBuilt(string(b.category), "empty")
		return nil, errors.ErrNoEvents
	}

	records := make([]event.EnrichedRecord, 0, len(events))
	for _, data := range events {
		rec, err := decodeEnrichedRecord(data)
		if err != nil {
			return nil, b.decodingFailure("segment source", string(data), err)
		}
		records = append(records, rec)
	}

	source, ok := ParseSource(ctx.Source)
	if !ok {
		return nil, b.configurationFailure("segment source", "source", ctx.Source)
	}

	segment := newSegment(records, source)

	raw, err := json.Marshal(segment)
	if err != nil {
		b.metrics.IncRequestsBuilt(string(b.category), "error")
		return nil, fmt.Errorf("marshal segment: %w", err)
	}

	compressed, err := compress(raw)
	if err != nil {
		b.metrics.IncRequestsBuilt(string(b.category), "error")
		return nil, fmt.Errorf("compress segment: %w", err)
	}

	desc, err := b.descriptor(ctx)
	if err != nil {
		b.metrics.IncRequestsBuilt(string(b.category), "configuration_error")
		return nil, err
	}

	desc.Fields = []request.Field{
		{Name: "segment", Value: segment.Session.ID},
		{Name: "application.id", Value: segment.Application.ID},
		{Name: "view.id", Value: segment.View.ID},
		{Name: "has_full_snapshot", Value: strconv.FormatBool(segment.HasFullSnapshot)},
		{Name: "records_count", Value: strconv.FormatInt(segment.RecordsCount, 10)},
		{Name: "raw_segment_size", Value: strconv.Itoa(len(raw))},
		{Name: "start", Value: strconv.FormatInt(segment.Start, 10)},
		{Name: "end", Value: strconv.FormatInt(segment.End, 10)},
		{Name: "source", Value: string(segment.Source)},
	}
	desc.Files = []request.FilePart{{
		Name:     "segment",
		Filename: segment.Session.ID,
		MimeType: "application/octet-stream",
		Data:     compressed,
	}}

	b.metrics.IncRequestsBuilt(string(b.category), "success")
	return desc, nil
}

func decodeEnrichedRecord(data []byte) (event.EnrichedRecord, error) {
	var rec event.EnrichedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, err
	}
	if rec.Context.SessionID == "" || rec.Context.ApplicationID == "" {
		return rec, &errors.ValidationError{Field: "context", Reason: "application and session ids are required"}
	}
	return rec, nil
}

func newSegment(records []event.EnrichedRecord, source Source) Segment {
	first := records[0]
	s := Segment{
		Application: idRef{ID: first.Context.ApplicationID},
		Session:     idRef{ID: first.Context.SessionID},
		View:        idRef{ID: first.Context.ViewID},
		Start:       first.EarliestTimestamp,
		End:         first.LatestTimestamp,
		Records:     make([]json.RawMessage, 0),
		Source:      source,
	}

	for _, rec := range records {
		s.Records = append(s.Records, rec.Records...)
		s.RecordsCount += int64(len(rec.Records))
		s.HasFullSnapshot = s.HasFullSnapshot || rec.HasFullSnapshot
		if rec.EarliestTimestamp < s.Start {
			s.Start = rec.EarliestTimestamp
		}
		if rec.LatestTimestamp > s.End {
			s.End = rec.LatestTimestamp
		}
	}
	return s
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeSegment reverses the file part encoding. Used by tooling and tests
// that inspect uploaded payloads.
func DecodeSegment(data []byte) (*Segment, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open zlib stream: %w", err)
	}
	defer r.Close()

	var s Segment
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode segment: %w", err)
	}
	return &s, nil
}
