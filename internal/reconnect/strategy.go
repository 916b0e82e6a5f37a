// Package reconnect decides reconnect timing: given the last error
// kind and the attempt count since the last success, decide whether
// and after how long to reconnect, using exponential backoff with
// jitter and a per-error-kind decision table.
//
// The backoff shape (doubling, capped at a max, attempt counter with
// max-attempts escalation) follows the usual reconnect-loop pattern
// for long-lived WebSocket clients, extended here with jitter and a
// decision table that also handles non-network error kinds.
package reconnect

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/exchangecollector/core/pkg/errkind"
)

// Config tunes the strategy.
type Config struct {
	InitialDelay         time.Duration // default 1s
	MaxDelay             time.Duration // default 60s
	Jitter               float64       // default 0.2
	MaxRetries           int           // default 10
	StableActiveDuration time.Duration // default 30s
}

// DefaultConfig returns default tunables.
func DefaultConfig() Config {
	return Config{
		InitialDelay:         1 * time.Second,
		MaxDelay:             60 * time.Second,
		Jitter:               0.2,
		MaxRetries:           10,
		StableActiveDuration: 30 * time.Second,
	}
}

// Decision is the output of Decide.
type Decision struct {
	ShouldReconnect bool
	Delay           time.Duration
	Escalate        bool // terminal: mark the connection `error`, no automatic recovery
}

// Strategy tracks consecutive reconnect attempts for one connection.
// It is not safe for concurrent use — the owning ConnectionManager's
// single cooperative loop is the only caller.
type Strategy struct {
	cfg      Config
	attempt  int
	jitterFn func() float64 // returns a value in [0,1); overridable for deterministic tests
}

// New builds a Strategy. jitterFn may be nil to use math/rand/v2 —
// no ecosystem jitter library appears anywhere in the retrieval pack
// (see DESIGN.md), so this is one of the few places stdlib is used
// directly rather than through an example-grounded library.
func New(cfg Config, jitterFn func() float64) *Strategy {
	if jitterFn == nil {
		jitterFn = rand.Float64
	}
	return &Strategy{cfg: cfg, jitterFn: jitterFn}
}

// Decide applies the  decision table for the given error kind.
func (s *Strategy) Decide(kind errkind.Kind) Decision {
	switch {
	case kind.Escalates():
		// AUTHENTICATION / CONFIG -> no reconnect; escalate.
		return Decision{Escalate: true}
	case kind.Local():
		// DATA_PARSING -> no reconnect (drop the frame); not an escalation.
		return Decision{}
	case !kind.Reconnectable():
		return Decision{}
	}

	// CONNECTION / NETWORK / TIMEOUT / HEARTBEAT_LOST / PROTOCOL -> reconnect.
	s.attempt++
	if s.attempt > s.cfg.MaxRetries {
		return Decision{Escalate: true}
	}

	return Decision{ShouldReconnect: true, Delay: s.computeDelay(s.attempt)}
}

func (s *Strategy) computeDelay(attempt int) time.Duration {
	base := float64(s.cfg.InitialDelay) * math.Pow(2, float64(attempt-1))
	if maxD := float64(s.cfg.MaxDelay); base > maxD {
		base = maxD
	}

	jitter := s.cfg.Jitter
	factor := (1 - jitter) + s.jitterFn()*2*jitter // uniform in [1-jitter, 1+jitter]
	delay := time.Duration(base * factor)

	if max := s.cfg.MaxDelay; delay > max {
		delay = max
	}
	return delay
}

// NotifyStableActive is called by the ConnectionManager once a
// connection has remained `active` for at least StableActiveDuration;
// this resets the attempt counter.
func (s *Strategy) NotifyStableActive() {
	s.attempt = 0
}

// Attempts returns the current consecutive-attempt count, for metrics.
func (s *Strategy) Attempts() int {
	return s.attempt
}
