package marketdata

import (
	"fmt"

	"github.com/exchangecollector/core/pkg/errkind"
)

// maxClockSkewMs bounds how far in the past received_timestamp may
// trail event_timestamp before a record is rejected as stale/out of order.
const maxClockSkewMs = 5_000

// Validate enforces MarketData invariants. A failure is a
// local *errkind.Error of Kind Validation carrying the failing field —
// this is never escalated, only dropped and counted.
func Validate(m MarketData) error {
	const op = "marketdata.Validate"

	if m.EventTimestamp <= 0 {
		return errkind.New(errkind.Validation, op, "event_timestamp must be > 0").WithField("event_timestamp")
	}
	if m.ReceivedTimestamp < m.EventTimestamp-maxClockSkewMs {
		return errkind.New(errkind.Validation, op,
			fmt.Sprintf("received_timestamp %d is more than %dms before event_timestamp %d",
				m.ReceivedTimestamp, maxClockSkewMs, m.EventTimestamp)).WithField("received_timestamp")
	}
	if !ValidSymbol(m.Symbol) {
		return errkind.New(errkind.Validation, op, "symbol must match ^[A-Z0-9]+/[A-Z0-9]+$").WithField("symbol")
	}
	if err := validatePayloadShape(m); err != nil {
		return err
	}
	return nil
}

func validatePayloadShape(m MarketData) error {
	const op = "marketdata.Validate"
	switch {
	case m.Type == TypeTrade:
		if m.Payload.Trade == nil {
			return errkind.New(errkind.Validation, op, "trade type requires Payload.Trade").WithField("payload")
		}
	case m.Type == TypeTicker:
		if m.Payload.Ticker == nil {
			return errkind.New(errkind.Validation, op, "ticker type requires Payload.Ticker").WithField("payload")
		}
	case m.Type.IsKline():
		if m.Payload.Kline == nil {
			return errkind.New(errkind.Validation, op, "kline type requires Payload.Kline").WithField("payload")
		}
	case m.Type == TypeDepth || m.Type == TypeOrderBook:
		if m.Payload.Depth == nil {
			return errkind.New(errkind.Validation, op, "depth type requires Payload.Depth").WithField("payload")
		}
	default:
		return errkind.New(errkind.Validation, op, "unknown market data type "+string(m.Type)).WithField("type")
	}
	return nil
}
