package persistence

import (
	"time"

	"github.com/jittakal/replayintake/internal/clock"
	"github.com/jittakal/replayintake/pkg/event"
	"github.com/jittakal/replayintake/pkg/storage"
)

var _ storage.RotationPolicy = (*CompositePolicy)(nil)

// RotationStrategy determines which thresholds trigger rotation.
type RotationStrategy string

const (
	StrategyComposite RotationStrategy = "composite"
	StrategySizeOnly  RotationStrategy = "size"
	StrategyTimeOnly  RotationStrategy = "time"
	StrategyCount     RotationStrategy = "count"
)

// PolicyConfig configures rotation behavior.
type PolicyConfig struct {
	MaxFileSize        int64
	MaxObjectsInFile   int
	MaxFileAgeForWrite time.Duration
	Strategy           string
}

// CompositePolicy rotates the writable file when it would grow past its size
// limit, already holds the maximum number of events, or is too old.
type CompositePolicy struct {
	maxSizeBytes int64
	maxRecords   int
	maxAge       time.Duration
	strategy     RotationStrategy
	clock        clock.Clock
}

// NewPolicy creates a new rotation policy. Zero thresholds are disabled.
func NewPolicy(config PolicyConfig, clk clock.Clock) *CompositePolicy {
	strategy := RotationStrategy(config.Strategy)
	if strategy == "" {
		strategy = StrategyComposite
	}
	return &CompositePolicy{
		maxSizeBytes: config.MaxFileSize,
		maxRecords:   config.MaxObjectsInFile,
		maxAge:       config.MaxFileAgeForWrite,
		strategy:     strategy,
		clock:        clk,
	}
}

// ShouldRotate reports whether the file described by stats must be replaced.
// stats.SizeBytes is the size the file would reach with the pending write;
// stats.RecordCount is the number of events already in the file.
func (p *CompositePolicy) ShouldRotate(stats event.FileStats) bool {
	switch p.strategy {
	case StrategySizeOnly:
		return p.sizeExceeded(stats)
	case StrategyTimeOnly:
		return p.tooOld(stats)
	case StrategyCount:
		return p.full(stats)
	default:
		return p.sizeExceeded(stats) || p.full(stats) || p.tooOld(stats)
	}
}

func (p *CompositePolicy) sizeExceeded(stats event.FileStats) bool {
	return p.maxSizeBytes > 0 && stats.SizeBytes > p.maxSizeBytes
}

func (p *CompositePolicy) full(stats event.FileStats) bool {
	return p.maxRecords > 0 && stats.RecordCount >= p.maxRecords
}

func (p *CompositePolicy) tooOld(stats event.FileStats) bool {
	if p.maxAge <= 0 || stats.FirstWriteTime.IsZero() {
		return false
	}
	return p.clock.Now().Sub(stats.FirstWriteTime) >= p.maxAge
}
