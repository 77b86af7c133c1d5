// Package validator checks serialized events before they are queued.
package validator

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/event"
)

// Ensure implementation satisfies interface at compile time.
var _ event.Validator = (*EventValidator)(nil)

// EventValidator validates enriched records and resources.
type EventValidator struct{}

// NewEventValidator creates a new event validator.
func NewEventValidator() *EventValidator {
	return &EventValidator{}
}

// Validate checks that data is a single JSON object carrying the fields its
// category needs to be grouped into a request.
func (v *EventValidator) Validate(category event.Category, data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &errors.ValidationError{Field: "$", Reason: "event must be a JSON object"}
	}
	if !json.Valid(trimmed) {
		return &errors.ValidationError{Field: "$", Reason: "malformed JSON"}
	}

	switch category {
	case event.CategorySegment:
		return validateRecord(trimmed)
	case event.CategoryResource:
		return validateResource(trimmed)
	default:
		return &errors.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category: %s", category)}
	}
}

func validateRecord(data []byte) error {
	var rec event.EnrichedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return &errors.ValidationError{Field: "$", Reason: err.Error()}
	}

	required := []struct {
		field string
		value string
	}{
		{"context.applicationID", rec.Context.ApplicationID},
		{"context.sessionID", rec.Context.SessionID},
		{"context.viewID", rec.Context.ViewID},
	}
	for _, r := range required {
		if r.value == "" {
			return &errors.ValidationError{Field: r.field, Reason: "required field is missing"}
		}
	}

	if len(rec.Records) == 0 {
		return &errors.ValidationError{Field: "records", Reason: "at least one record is required"}
	}
	if rec.LatestTimestamp < rec.EarliestTimestamp {
		return &errors.ValidationError{
			Field:  "latestTimestamp",
			Reason: fmt.Sprintf("%d is before earliestTimestamp %d", rec.LatestTimestamp, rec.EarliestTimestamp),
		}
	}
	return nil
}

func validateResource(data []byte) error {
	var res event.ResourceRecord
	if err := json.Unmarshal(data, &res); err != nil {
		return &errors.ValidationError{Field: "$", Reason: err.Error()}
	}

	if res.Identifier == "" {
		return &errors.ValidationError{Field: "identifier", Reason: "required field is missing"}
	}
	if res.Context.ApplicationID == "" {
		return &errors.ValidationError{Field: "context.applicationID", Reason: "required field is missing"}
	}
	return nil
}
