package sessionreplay

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/request"
	"github.com/jittakal/replayintake/pkg/telemetry"
)

var _ request.Builder = (*ResourceBuilder)(nil)

// resourceMetadata is the "event" part describing a resource upload.
type resourceMetadata struct {
	Type        string `json:"type"`
	Application idRef  `json:"application"`
}

// ResourceBuilder builds resource upload requests: one file part per
// resource plus a JSON metadata part.
type ResourceBuilder struct {
	builder
}

// NewResourceBuilder creates a resource request builder.
func NewResourceBuilder(config Config, tel telemetry.Telemetry, metrics MetricsCollector) *ResourceBuilder {
	return &ResourceBuilder{builder: newBuilder(event.CategoryResource, config, tel, metrics)}
}

// BuildBatch decodes a batch array and builds it.
func (b *ResourceBuilder) BuildBatch(data []byte, ctx event.Context) (*request.Descriptor, error) {
	events, err := b.splitBatch(data)
	if err != nil {
		return nil, b.decodingFailure("resource", string(data), err)
	}
	return b.Build(events, ctx)
}

// Build encodes every resource as a file part named after its identifier.
func (b *ResourceBuilder) Build(events [][]byte, ctx event.Context) (*request.Descriptor, error) {
	if len(events) == 0 {
		b.metrics.IncRequestsBuilt(string(b.category), "empty")
		return nil, errors.ErrNoEvents
	}

	resources := make([]event.ResourceRecord, 0, len(events))
	for _, data := range events {
		var res event.ResourceRecord
		if err := json.Unmarshal(data, &res); err != nil {
			return nil, b.decodingFailure("resource", string(data), err)
		}
		if res.Identifier == "" || res.Context.ApplicationID == "" {
			return nil, b.decodingFailure("resource", string(data),
				&errors.ValidationError{Field: "identifier", Reason: "identifier and application id are required"})
		}
		resources = append(resources, res)
	}

	metadata, err := json.Marshal(resourceMetadata{
		Type:        "resource",
		Application: idRef{ID: resources[0].Context.ApplicationID},
	})
	if err != nil {
		b.metrics.IncRequestsBuilt(string(b.category), "error")
		return nil, fmt.Errorf("marshal resource metadata: %w", err)
	}

	desc, err := b.descriptor(ctx)
	if err != nil {
		b.metrics.IncRequestsBuilt(string(b.category), "configuration_error")
		return nil, err
	}

	desc.Files = make([]request.FilePart, 0, len(resources)+1)
	for _, res := range resources {
		mimeType := res.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		desc.Files = append(desc.Files, request.FilePart{
			Name:     "image",
			Filename: res.Identifier,
			MimeType: mimeType,
			Data:     res.Data,
		})
	}
	desc.Files = append(desc.Files, request.FilePart{
		Name:     "event",
		Filename: "blob",
		MimeType: "application/json",
		Data:     metadata,
	})

	b.metrics.IncRequestsBuilt(string(b.category), "success")
	return desc, nil
}
