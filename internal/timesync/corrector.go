// Package timesync estimates the offset between the device clock and
// network time so that recorded events can be stamped with server time.
package timesync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/jittakal/replayintake/internal/clock"
	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/telemetry"
)

// DefaultServers is the NTP pool one server is chosen from.
var DefaultServers = []string{
	"0.datadog.pool.ntp.org",
	"1.datadog.pool.ntp.org",
	"2.datadog.pool.ntp.org",
	"3.datadog.pool.ntp.org",
}

// State is the synchronization state of a Corrector.
type State int32

const (
	StateUninitialized State = iota
	StateSynchronizing
	StateCorrected
	StateUncorrected
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSynchronizing:
		return "synchronizing"
	case StateCorrected:
		return "corrected"
	case StateUncorrected:
		return "uncorrected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Correction is an immutable offset measurement.
type Correction struct {
	Offset     time.Duration
	MeasuredAt time.Time
}

// Apply shifts a device time by the offset.
func (c Correction) Apply(t time.Time) time.Time {
	return t.Add(c.Offset)
}

// RandomSource picks the server index. *math/rand/v2.Rand satisfies it.
type RandomSource interface {
	IntN(n int) int
}

// ServerTimeProvider returns the current time according to a time server.
type ServerTimeProvider interface {
	ServerTime(ctx context.Context, server string) (time.Time, error)
}

// MetricsCollector defines metrics operations for clock synchronization.
type MetricsCollector interface {
	SetClockOffset(seconds float64)
	IncClockSyncs(status string)
}

// Config configures a Corrector.
type Config struct {
	Servers        []string
	ResyncInterval time.Duration
}

// Corrector holds the current clock correction. Reads are lock-free; each
// synchronization replaces the correction wholesale.
type Corrector struct {
	server         string
	resyncInterval time.Duration
	provider       ServerTimeProvider
	device         clock.Clock
	logger         *slog.Logger
	telemetry      telemetry.Telemetry
	metrics        MetricsCollector

	correction *atomic.Pointer[Correction]
	state      *atomic.Int32
	wg         sync.WaitGroup
}

// NewCorrector picks one server uniformly at random from the pool. The
// correction is zero until Synchronize completes.
func NewCorrector(
	config Config,
	random RandomSource,
	provider ServerTimeProvider,
	device clock.Clock,
	logger *slog.Logger,
	tel telemetry.Telemetry,
	metrics MetricsCollector,
) (*Corrector, error) {
	if len(config.Servers) == 0 {
		return nil, &errors.ConfigurationError{Field: "clock.servers", Value: ""}
	}

	return &Corrector{
		server:         config.Servers[random.IntN(len(config.Servers))],
		resyncInterval: config.ResyncInterval,
		provider:       provider,
		device:         device,
		logger:         logger.With("component", "timesync"),
		telemetry:      tel,
		metrics:        metrics,
		correction:     atomic.NewPointer(&Correction{}),
		state:          atomic.NewInt32(int32(StateUninitialized)),
	}, nil
}

// Server returns the server chosen at construction.
func (c *Corrector) Server() string { return c.server }

// State returns the synchronization state.
func (c *Corrector) State() State { return State(c.state.Load()) }

// Current returns the latest correction.
func (c *Corrector) Current() Correction { return *c.correction.Load() }

// Apply returns t adjusted by the current offset.
func (c *Corrector) Apply(t time.Time) time.Time { return c.Current().Apply(t) }

// Now returns the corrected current time, so a Corrector can stand in for
// a clock.Clock.
func (c *Corrector) Now() time.Time { return c.Apply(c.device.Now()) }

// Synchronize queries the server once and replaces the correction. On
// failure the offset falls back to zero and device time is used.
func (c *Corrector) Synchronize(ctx context.Context) error {
	c.state.Store(int32(StateSynchronizing))

	serverTime, err := c.provider.ServerTime(ctx, c.server)
	deviceTime := c.device.Now()
	if err != nil {
		c.correction.Store(&Correction{MeasuredAt: deviceTime})
		c.state.Store(int32(StateUncorrected))
		c.metrics.SetClockOffset(0)
		c.metrics.IncClockSyncs("failure")

		c.logger.Warn("NTP time synchronization failed, device time will be used for signing events",
			"server", c.server,
			"device_time", deviceTime.UTC().Format(time.RFC3339Nano),
			"error", err,
		)
		c.telemetry.Info(fmt.Sprintf(
			"NTP time synchronization failed. Device time will be used for signing events (current device time is %s).",
			deviceTime.UTC().Format(time.RFC3339)))
		return &errors.SynchronizationError{Server: c.server, Err: err}
	}

	offset := serverTime.Sub(deviceTime)
	c.correction.Store(&Correction{Offset: offset, MeasuredAt: deviceTime})
	c.state.Store(int32(StateCorrected))
	c.metrics.SetClockOffset(offset.Seconds())
	c.metrics.IncClockSyncs("success")

	c.logger.Info("NTP time synchronization completed, server time will be used for signing events",
		"server", c.server,
		"offset_seconds", offset.Seconds(),
	)
	c.telemetry.Info(fmt.Sprintf(
		"NTP time synchronization completed. Server time will be used for signing events (%.3fs difference with device time).",
		offset.Seconds()))
	return nil
}

// Start synchronizes in the background and, when a resync interval is
// configured, keeps re-synchronizing until ctx is done.
func (c *Corrector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		_ = c.Synchronize(ctx)

		if c.resyncInterval <= 0 {
			return
		}

		ticker := time.NewTicker(c.resyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = c.Synchronize(ctx)
			}
		}
	}()
}

// Wait blocks until background synchronization started by Start returns.
func (c *Corrector) Wait() {
	c.wg.Wait()
}
