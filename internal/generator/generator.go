// Package generator produces synthetic session replay traffic so the agent
// can be exercised without a recording SDK attached.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jaswdr/faker"

	"github.com/jittakal/replayintake/internal/clock"
	"github.com/jittakal/replayintake/pkg/event"
)

// Record types of the replay wire format.
const (
	recordTypeFullSnapshot = 10
	recordTypeIncremental  = 11
	recordTypeMeta         = 4
	recordTypeFocus        = 6
)

// Appender queues one serialized event.
type Appender interface {
	AppendValue(v any) error
}

// Config configures the generator.
type Config struct {
	Interval         time.Duration
	ViewsPerTick     int
	RecordsPerView   int
	ResourcesPerTick int
	// ApplicationID is generated when empty.
	ApplicationID string
}

// Generator appends fake enriched records and resources to the queues.
// It is not safe for concurrent use.
type Generator struct {
	config    Config
	faker     faker.Faker
	clock     clock.Clock
	segments  Appender
	resources Appender
	logger    *slog.Logger

	sessionID string
	views     int
}

// NewGenerator creates a generator. resources may be nil. clk should be the
// corrected clock so timestamps match what the intake expects.
func NewGenerator(config Config, clk clock.Clock, segments, resources Appender, logger *slog.Logger) *Generator {
	if config.Interval <= 0 {
		config.Interval = time.Second
	}
	if config.ViewsPerTick <= 0 {
		config.ViewsPerTick = 1
	}
	if config.RecordsPerView <= 0 {
		config.RecordsPerView = 10
	}
	if config.ApplicationID == "" {
		config.ApplicationID = uuid.NewString()
	}

	return &Generator{
		config:    config,
		faker:     faker.New(),
		clock:     clk,
		segments:  segments,
		resources: resources,
		logger:    logger.With("component", "generator"),
		sessionID: uuid.NewString(),
	}
}

// Run generates on every Interval until ctx is done.
func (g *Generator) Run(ctx context.Context) {
	ticker := time.NewTicker(g.config.Interval)
	defer ticker.Stop()

	g.logger.Info("generator started",
		"interval", g.config.Interval,
		"application_id", g.config.ApplicationID,
		"session_id", g.sessionID,
	)
	for {
		select {
		case <-ctx.Done():
			g.logger.Info("generator stopped", "views", g.views)
			return
		case <-ticker.C:
			if err := g.Tick(); err != nil {
				g.logger.Warn("generator tick failed", "error", err)
			}
		}
	}
}

// Tick appends one round of views and resources.
func (g *Generator) Tick() error {
	for i := 0; i < g.config.ViewsPerTick; i++ {
		record, err := g.EnrichedRecord(uuid.NewString())
		if err != nil {
			return err
		}
		if err := g.segments.AppendValue(record); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
		g.views++
	}

	if g.resources == nil {
		return nil
	}
	for i := 0; i < g.config.ResourcesPerTick; i++ {
		if err := g.resources.AppendValue(g.Resource()); err != nil {
			return fmt.Errorf("append resource: %w", err)
		}
	}
	return nil
}

// EnrichedRecord builds the records of one view. Every view opens with a
// meta record and a full snapshot.
func (g *Generator) EnrichedRecord(viewID string) (event.EnrichedRecord, error) {
	start := g.clock.Now().UnixMilli()
	record := event.EnrichedRecord{
		Context: event.RecordContext{
			ApplicationID: g.config.ApplicationID,
			SessionID:     g.sessionID,
			ViewID:        viewID,
		},
		HasFullSnapshot:   g.config.RecordsPerView > 1,
		EarliestTimestamp: start,
	}

	ts := start
	for i := 0; i < g.config.RecordsPerView; i++ {
		if i > 0 {
			ts += int64(g.faker.IntBetween(5, 50))
		}
		raw, err := json.Marshal(g.record(i, ts))
		if err != nil {
			return event.EnrichedRecord{}, fmt.Errorf("marshal record: %w", err)
		}
		record.Records = append(record.Records, raw)
	}
	record.LatestTimestamp = ts

	return record, nil
}

func (g *Generator) record(i int, ts int64) map[string]any {
	switch i {
	case 0:
		return map[string]any{
			"type":      recordTypeMeta,
			"timestamp": ts,
			"data": map[string]any{
				"href":   g.faker.Internet().URL(),
				"width":  g.faker.IntBetween(320, 1440),
				"height": g.faker.IntBetween(480, 2560),
			},
		}
	case 1:
		return map[string]any{
			"type":      recordTypeFullSnapshot,
			"timestamp": ts,
			"data": map[string]any{
				"wireframes": []map[string]any{{
					"id":   g.faker.IntBetween(1, 1000),
					"type": "text",
					"text": g.faker.Lorem().Sentence(4),
				}},
			},
		}
	}

	if g.faker.IntBetween(1, 100) <= 10 {
		return map[string]any{
			"type":      recordTypeFocus,
			"timestamp": ts,
			"data":      map[string]any{"has_focus": g.faker.Bool()},
		}
	}
	return map[string]any{
		"type":      recordTypeIncremental,
		"timestamp": ts,
		"data": map[string]any{
			"source": "pointer_interaction",
			"x":      g.faker.IntBetween(0, 1440),
			"y":      g.faker.IntBetween(0, 2560),
		},
	}
}

// Resource builds a fake image resource.
func (g *Generator) Resource() event.ResourceRecord {
	return event.ResourceRecord{
		Identifier: g.faker.UUID().V4(),
		MimeType:   "image/png",
		Data:       []byte(g.faker.RandomStringWithLength(g.faker.IntBetween(64, 512))),
		Context:    event.ResourceContext{ApplicationID: g.config.ApplicationID},
	}
}

// SessionID returns the session all generated views belong to.
func (g *Generator) SessionID() string {
	return g.sessionID
}
