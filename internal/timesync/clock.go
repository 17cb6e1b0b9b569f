// Package timesync tracks whether the node has a trustworthy wall clock.
//
// The node boots with no idea what time it is. Until the first successful
// SNTP exchange, captures carry an epoch of 0 and land in the unsynced
// folders; the backend is told ntp_synced=false so it can decide how much
// to trust capture timestamps.
package timesync

import (
	"fmt"
	"time"

	"github.com/beevik/ntp"
	"github.com/franz/fieldcam/internal/util"
)

// Clock is the node's single time source.
type Clock struct {
	server    string
	timeout   time.Duration
	offset    time.Duration
	synced    bool
	bootedAt  time.Time
	lastQuery time.Time
}

// New creates a Clock querying the given SNTP server. An empty server
// disables sync attempts entirely (the clock stays unsynced forever).
func New(server string) *Clock {
	return &Clock{
		server:   server,
		timeout:  5 * time.Second,
		bootedAt: time.Now(),
	}
}

// Sync performs one SNTP query. Failure is non-fatal; the scheduler just
// tries again on its timer.
func (c *Clock) Sync() error {
	if c.server == "" {
		return nil
	}
	c.lastQuery = time.Now()
	resp, err := ntp.QueryWithOptions(c.server, ntp.QueryOptions{
		Timeout: c.timeout,
	})
	if err != nil {
		return fmt.Errorf("ntp query %s: %w", c.server, err)
	}
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("ntp response from %s invalid: %w", c.server, err)
	}
	c.offset = resp.ClockOffset
	if !c.synced {
		util.InfoLog("Time: synchronized via %s (offset %v)", c.server, resp.ClockOffset.Round(time.Millisecond))
	}
	c.synced = true
	return nil
}

// Synced reports whether the clock has ever been synchronized.
func (c *Clock) Synced() bool {
	return c.synced
}

// Now returns the corrected wall-clock time. Only meaningful once Synced
// reports true.
func (c *Clock) Now() time.Time {
	return time.Now().Add(c.offset)
}

// Epoch returns the current capture timestamp and whether it is real.
// Unsynced nodes report 0; downstream ordering treats epoch-0 items as
// "after anything with a real timestamp".
func (c *Clock) Epoch() (uint32, bool) {
	if !c.synced {
		return 0, false
	}
	return uint32(c.Now().Unix()), true
}

// Uptime returns seconds since process start, for telemetry.
func (c *Clock) Uptime() uint32 {
	return uint32(time.Since(c.bootedAt) / time.Second)
}
