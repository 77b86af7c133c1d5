package timesync

import (
	"context"
	"fmt"
	"time"

	"github.com/beevik/ntp"

	"github.com/jittakal/replayintake/internal/clock"
)

var _ ServerTimeProvider = (*NTPProvider)(nil)

// NTPProvider queries NTP servers.
type NTPProvider struct {
	timeout time.Duration
	device  clock.Clock
	query   func(host string, opts ntp.QueryOptions) (*ntp.Response, error)
}

// NewNTPProvider creates a provider with the given per-query timeout. The
// measured offset is applied to device, the clock the corrector reads.
func NewNTPProvider(timeout time.Duration, device clock.Clock) *NTPProvider {
	return &NTPProvider{
		timeout: timeout,
		device:  device,
		query:   ntp.QueryWithOptions,
	}
}

// ServerTime returns device time shifted by the measured NTP clock offset,
// which compensates for the round trip.
func (p *NTPProvider) ServerTime(ctx context.Context, server string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}

	opts := ntp.QueryOptions{Timeout: p.timeout}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); opts.Timeout == 0 || remaining < opts.Timeout {
			opts.Timeout = remaining
		}
	}

	resp, err := p.query(server, opts)
	if err != nil {
		return time.Time{}, fmt.Errorf("query %s: %w", server, err)
	}
	if err := resp.Validate(); err != nil {
		return time.Time{}, fmt.Errorf("invalid response from %s: %w", server, err)
	}
	return p.device.Now().Add(resp.ClockOffset), nil
}
