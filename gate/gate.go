// Package gate implements the emission cadence policy for decoded video.
// Frames are decoded as fast as they arrive to keep codec reference state
// intact, but converted output is forwarded at most once per configured
// interval; the gate decides which decode iterations are emission ticks.
package gate

import (
	"time"

	"golang.org/x/time/rate"
)

// Gate answers whether a video payload may be forwarded at a given instant.
// It is consulted and advanced only by the decode worker goroutine, so it
// needs no locking of its own. A tick, once granted, is consumed whether or
// not the caller ends up forwarding anything: a failed conversion waits for
// the next interval rather than retrying immediately.
type Gate struct {
	interval time.Duration
	limiter  *rate.Limiter
}

// New creates a Gate that grants at most one emission per interval. An
// interval of zero or less disables gating entirely. Burst stays at one: a
// long idle stretch never earns catch-up emissions.
func New(interval time.Duration) *Gate {
	return &Gate{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Allow reports whether an emission may happen at now, consuming the tick
// when it returns true. The first call is always granted.
func (g *Gate) Allow(now time.Time) bool {
	return g.limiter.AllowN(now, 1)
}

// Interval returns the configured minimum spacing between emissions.
func (g *Gate) Interval() time.Duration {
	return g.interval
}
