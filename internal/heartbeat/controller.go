// Package heartbeat implements ping/pong heartbeat tracking: given a transport that
// emits ping frames, reply with a byte-identical pong within
// pongResponseTimeout, signal heartbeat_lost if no ping arrives within
// pingTimeoutThreshold, and maintain a heartbeatScore in [0,1].
//
// Built as a transport-agnostic controller around the familiar
// gorilla/websocket ping/pong plumbing (ping handler, pong handler,
// read-deadline reset) so a connection manager can drive it without
// importing gorilla/websocket directly.
package heartbeat

import (
	"sync"
	"time"

	"github.com/exchangecollector/core/pkg/clock"
)

// Config tunes the controller.
type Config struct {
	PongResponseTimeout  time.Duration // default 5s
	PingTimeoutThreshold time.Duration // default 60s
	AllowUnsolicitedPing bool          // default false
	ExpectedInterval     time.Duration // Binance drives ~20s cadence
	EWMAAlpha            float64       // default 0.2
	DriftWindow          int           // N, default 10
}

// DefaultConfig returns default tunables.
func DefaultConfig() Config {
	return Config{
		PongResponseTimeout:  5 * time.Second,
		PingTimeoutThreshold: 60 * time.Second,
		AllowUnsolicitedPing: false,
		ExpectedInterval:     20 * time.Second,
		EWMAAlpha:            0.2,
		DriftWindow:          10,
	}
}

// Controller tracks ping/pong timing for a single connection and
// computes the heartbeatScore. It performs no I/O itself: the owning
// ConnectionManager calls OnPingReceived to learn what pong payload to
// write, then RecordPongDispatched once the write completes so the
// controller can measure real dispatch latency.
type Controller struct {
	cfg Config
	clk clock.Clock

	mu             sync.Mutex
	lastPingAt     time.Time
	havePing       bool
	intervals      []time.Duration
	ewmaScore      float64
	haveEWMA       bool
}

// New builds a Controller.
func New(cfg Config, clk clock.Clock) *Controller {
	return &Controller{cfg: cfg, clk: clk, ewmaScore: 1.0}
}

// OnPingReceived records a server ping's arrival time and returns the
// byte-identical payload the caller must echo back as a pong.
func (c *Controller) OnPingReceived(payload []byte) []byte {
	now := c.clk.Now()
	c.mu.Lock()
	if c.havePing {
		interval := now.Sub(c.lastPingAt)
		c.intervals = append(c.intervals, interval)
		if len(c.intervals) > c.cfg.DriftWindow {
			c.intervals = c.intervals[len(c.intervals)-c.cfg.DriftWindow:]
		}
	}
	c.lastPingAt = now
	c.havePing = true
	c.mu.Unlock()

	out := make([]byte, len(payload))
	copy(out, payload)
	return out
}

// RecordPongDispatched reports how long it took from OnPingReceived
// until the pong write completed, updating the EWMA heartbeatScore:
// score = 1 - min(1, latency/pongResponseTimeout), averaged with
// EWMA(alpha=0.2) over the last N intervals, multiplied by 0.7 if the
// mean observed ping interval has drifted >20% from expected.
func (c *Controller) RecordPongDispatched(latency time.Duration) {
	raw := 1.0 - minFloat(1.0, latency.Seconds()/c.cfg.PongResponseTimeout.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.haveEWMA {
		c.ewmaScore = raw
		c.haveEWMA = true
	} else {
		c.ewmaScore = c.cfg.EWMAAlpha*raw + (1-c.cfg.EWMAAlpha)*c.ewmaScore
	}

	if c.driftExceeded() {
		c.ewmaScore *= 0.7
	}
}

// driftExceeded reports whether the mean of the last N observed ping
// intervals differs from ExpectedInterval by more than 20%. Caller
// must hold c.mu.
func (c *Controller) driftExceeded() bool {
	if c.cfg.ExpectedInterval <= 0 || len(c.intervals) == 0 {
		return false
	}
	var sum time.Duration
	for _, iv := range c.intervals {
		sum += iv
	}
	mean := sum / time.Duration(len(c.intervals))
	expected := c.cfg.ExpectedInterval
	diff := mean - expected
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) > 0.2*float64(expected)
}

// Score returns the current heartbeatScore in [0,1].
func (c *Controller) Score() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ewmaScore
}

// TimedOut reports whether more than pingTimeoutThreshold has elapsed
// since the last ping — the caller treats a true result as
// heartbeat_lost. Until the first ping after construction or Reset it
// always returns false, so a connection on which no ping ever arrives
// is never reported as timed out.
func (c *Controller) TimedOut(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.havePing {
		return false
	}
	return now.Sub(c.lastPingAt) > c.cfg.PingTimeoutThreshold
}

// Reset clears accumulated ping/pong history, used after a reconnect
// establishes a fresh connection.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.havePing = false
	c.intervals = nil
	c.ewmaScore = 1.0
	c.haveEWMA = false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
