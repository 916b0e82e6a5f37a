package dataflow

import (
	"time"

	"github.com/exchangecollector/core/internal/marketdata"
)

// DataFlowMessage wraps one MarketData record for its trip through the
// engine, carrying the bookkeeping MarketData itself has no business
// knowing about: when it was accepted onto the ingress queue, which
// routing tuple it belongs to, and how many sink-write attempts it has
// already cost.
type DataFlowMessage struct {
	Data       marketdata.MarketData
	EnqueuedAt time.Time
	RoutingKey string
	Attempts   int
}
