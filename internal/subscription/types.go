// Package subscription translates abstract
// (symbol, data-type) subscriptions into exchange stream names,
// builds combined-stream URLs, and tracks per-stream Subscription
// lifecycle.
//
// Stream-name construction sits behind a Profile interface so a
// non-Binance exchange can supply its own stream-name rules without
// touching the combined-URL building, dedup, or cap-enforcement logic
// below.
package subscription

import (
	"time"

	"github.com/exchangecollector/core/internal/marketdata"
)

// StreamName is an exchange-specific wire-level stream identifier,
// e.g. "btcusdt@trade" or "adausdt@depth10@100ms".
type StreamName string

// Params carries the optional per-subscription parameters: order-book
// depth level count and update speed.
type Params struct {
	DepthLevels int // 5, 10, or 20; 0 = unset
	DepthSpeed  int // 100 or 1000 (ms); 0 = unset
}

// Original is the abstract (symbol, type[, params]) tuple a caller
// asked to subscribe to, before exchange-specific translation.
type Original struct {
	Symbol string
	Type   marketdata.Type
	Params Params
}

// Status is a Subscription's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Subscription is the per-stream lifecycle record.
type Subscription struct {
	ID           string
	Original     Original
	StreamName   StreamName
	ConnectionID string
	Status       Status
	SubscribedAt time.Time
	LastActiveAt time.Time
	MessageCount int64
	ErrorCount   int64
}

// MarkActive transitions a pending/paused/failed subscription to
// active on first successful frame or subscribe ack.
func (s *Subscription) MarkActive(now time.Time) {
	s.Status = StatusActive
	s.LastActiveAt = now
}

// MarkFailed transitions to failed — retryable, not terminal.
func (s *Subscription) MarkFailed() {
	s.Status = StatusFailed
}

// MarkCancelled transitions to cancelled — terminal.
func (s *Subscription) MarkCancelled() {
	s.Status = StatusCancelled
}

// RecordMessage bumps the message counter and last-active timestamp,
// called each time a frame for this stream is processed.
func (s *Subscription) RecordMessage(now time.Time) {
	s.MessageCount++
	s.LastActiveAt = now
	if s.Status == StatusPending || s.Status == StatusPaused || s.Status == StatusFailed {
		s.MarkActive(now)
	}
}

// RecordError bumps the error counter.
func (s *Subscription) RecordError() {
	s.ErrorCount++
}
