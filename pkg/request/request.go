// Package request defines the multipart upload request produced from a
// batch and the contracts for building and sending it.
package request

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/jittakal/replayintake/pkg/event"
)

// Field is a named multipart form field.
type Field struct {
	Name  string
	Value string
}

// FilePart is a multipart file part.
type FilePart struct {
	Name     string
	Filename string
	MimeType string
	Data     []byte
}

// Descriptor describes a fully built upload request. It is immutable once
// returned by a Builder.
type Descriptor struct {
	Method   string
	URL      string
	Header   http.Header
	Boundary string
	Fields   []Field
	Files    []FilePart
}

// Body encodes the multipart body using the descriptor's boundary.
func (d *Descriptor) Body() ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(d.Boundary); err != nil {
		return nil, fmt.Errorf("set boundary: %w", err)
	}

	for _, f := range d.Fields {
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f.Name, err)
		}
	}

	for _, f := range d.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="%s"; filename="%s"`, f.Name, f.Filename))
		h.Set("Content-Type", f.MimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create part %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write part %s: %w", f.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

// HTTPRequest converts the descriptor into an *http.Request.
func (d *Descriptor) HTTPRequest(ctx context.Context) (*http.Request, error) {
	body, err := d.Body()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, d.Method, d.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = d.Header.Clone()
	return req, nil
}

// Field returns the value of the named form field.
func (d *Descriptor) Field(name string) (string, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Builder turns queued events into an upload request for one category.
type Builder interface {
	// Build encodes events into a request descriptor.
	Build(events [][]byte, ctx event.Context) (*Descriptor, error)

	// BuildBatch decodes a JSON array batch into events and builds it.
	BuildBatch(data []byte, ctx event.Context) (*Descriptor, error)
}

// Transport executes a built request.
type Transport interface {
	// Send performs the request and returns nil on a 2xx response.
	Send(ctx context.Context, req *Descriptor) error
}
