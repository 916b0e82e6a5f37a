// Package proxysink adapts the dataflow engine's Sink interface onto
// the websocket proxy's subscriber fan-out, so the proxy participates
// in the same engine/outbox/retry machinery as every other sink.
package proxysink

import (
	"context"

	"github.com/exchangecollector/core/internal/dataflow"
	"github.com/exchangecollector/core/internal/marketdata"
)

// Forwarder is the subset of the websocket proxy a sink needs: deliver
// one record to whichever connected clients are subscribed to it.
type Forwarder interface {
	ForwardMessage(m marketdata.MarketData)
}

// Sink forwards every record it receives to the proxy's subscriber
// index. It never fails: a client with no one listening, or a slow
// client the proxy itself has already dropped, is not the engine's
// problem to retry.
type Sink struct {
	name string
	fwd  Forwarder
}

// New builds a Sink over an already-running Forwarder.
func New(name string, fwd Forwarder) *Sink {
	return &Sink{name: name, fwd: fwd}
}

func (s *Sink) Name() string { return s.name }

func (s *Sink) Write(_ context.Context, batch []dataflow.DataFlowMessage) error {
	for _, msg := range batch {
		s.fwd.ForwardMessage(msg.Data)
	}
	return nil
}

// Health always reports true: a forwarding sink has nothing of its own
// to be unhealthy about.
func (s *Sink) Health() bool { return true }

// Close is a no-op: the proxy owns its own HTTP/websocket shutdown
// lifecycle independently of the engine.
func (s *Sink) Close(context.Context) error { return nil }
