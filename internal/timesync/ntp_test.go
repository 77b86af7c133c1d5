package timesync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beevik/ntp"

	"github.com/jittakal/replayintake/internal/clock"
)

func TestNTPProvider_ServerTime(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		resp    *ntp.Response
		err     error
		wantErr bool
	}{
		{
			name: "valid response",
			resp: &ntp.Response{
				Stratum:       2,
				Time:          now,
				ReferenceTime: now,
				ClockOffset:   3 * time.Second,
			},
		},
		{
			name:    "query error",
			err:     errors.New("i/o timeout"),
			wantErr: true,
		},
		{
			name:    "kiss of death",
			resp:    &ntp.Response{Stratum: 0, Time: now, ReferenceTime: now},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewNTPProvider(time.Second, clock.Real())
			var gotHost string
			p.query = func(host string, opts ntp.QueryOptions) (*ntp.Response, error) {
				gotHost = host
				return tt.resp, tt.err
			}

			got, err := p.ServerTime(context.Background(), "0.datadog.pool.ntp.org")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ServerTime() error = %v, wantErr %v", err, tt.wantErr)
			}
			if gotHost != "0.datadog.pool.ntp.org" {
				t.Errorf("queried host = %q", gotHost)
			}
			if tt.wantErr {
				return
			}
			if offset := time.Until(got); offset < 2*time.Second || offset > 4*time.Second {
				t.Errorf("server time offset = %v, want about 3s", offset)
			}
		})
	}
}

func TestNTPProvider_UsesContextDeadline(t *testing.T) {
	p := NewNTPProvider(time.Minute, clock.Real())
	var gotTimeout time.Duration
	p.query = func(host string, opts ntp.QueryOptions) (*ntp.Response, error) {
		gotTimeout = opts.Timeout
		return nil, errors.New("stop")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, _ = p.ServerTime(ctx, "pool.ntp.org")

	if gotTimeout <= 0 || gotTimeout > 100*time.Millisecond {
		t.Errorf("query timeout = %v, want bounded by context deadline", gotTimeout)
	}
}

func TestNTPProvider_CanceledContext(t *testing.T) {
	p := NewNTPProvider(time.Second, clock.Real())
	called := false
	p.query = func(host string, opts ntp.QueryOptions) (*ntp.Response, error) {
		called = true
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.ServerTime(ctx, "pool.ntp.org"); !errors.Is(err, context.Canceled) {
		t.Errorf("ServerTime() error = %v, want context.Canceled", err)
	}
	if called {
		t.Error("query ran with canceled context")
	}
}

func TestNTPProvider_OffsetFollowsDeviceClock(t *testing.T) {
	device := clock.Fake(deviceNow)
	p := NewNTPProvider(time.Second, device)
	p.query = func(host string, opts ntp.QueryOptions) (*ntp.Response, error) {
		return &ntp.Response{
			Stratum:       2,
			Time:          deviceNow,
			ReferenceTime: deviceNow,
			ClockOffset:   -90 * time.Minute,
		}, nil
	}

	c, _, metrics := newTestCorrector(t, p, nil)
	c.device = device
	if err := c.Synchronize(context.Background()); err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}

	if got := c.Current().Offset; got != -90*time.Minute {
		t.Errorf("offset = %v, want -1h30m", got)
	}
	if want := deviceNow.Add(-90 * time.Minute); !c.Now().Equal(want) {
		t.Errorf("Now() = %v, want %v", c.Now(), want)
	}
	if metrics.offset != (-90 * time.Minute).Seconds() {
		t.Errorf("offset metric = %v", metrics.offset)
	}
}
