package dataflow

import (
	"context"

	"github.com/exchangecollector/core/internal/marketdata"
)

// Sink is anything the engine can deliver batches of MarketData
// records to: a managed pub/sub topic, an in-memory cache, or the
// browser-facing proxy. Write acks or fails the whole batch — a sink
// with no natural batch boundary may still iterate it record by
// record, but it reports one error for the engine's retry/DLQ
// accounting. Write must not block indefinitely past ctx's deadline.
// Health reports whether the sink should be considered live for
// aggregated health checks. Close flushes and releases whatever
// Write acquired; the engine calls it once per sink, in registration
// order, while shutting down.
type Sink interface {
	Name() string
	Write(ctx context.Context, batch []DataFlowMessage) error
	Health() bool
	Close(ctx context.Context) error
}

// Transformer is applied to every record before routing. Returning
// ok == false drops the record instead of passing it on — used both
// for a transformer's own filtering decision and to represent a
// transformer failure, which this engine treats as a drop rather than
// surfacing an error.
type Transformer func(marketdata.MarketData) (marketdata.MarketData, bool)

// RouteRule selects which sinks a record is delivered to. Match
// returns the subset of candidate sink names the record should reach.
type RouteRule func(m marketdata.MarketData, sinkNames []string) []string

// RouteAll is the default RouteRule: every record reaches every
// registered sink.
func RouteAll(_ marketdata.MarketData, sinkNames []string) []string {
	return sinkNames
}
