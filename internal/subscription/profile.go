package subscription

import "github.com/exchangecollector/core/internal/marketdata"

// Profile is the exchange-specific stream-name translation contract.
// internal/exchange/binance.Profile is the Binance implementation
// shipped with this core.
type Profile interface {
	// Exchange returns the lowercase exchange name.
	Exchange() string

	// BuildStreamName translates an abstract (symbol, type, params)
	// subscription into the exchange's wire-level stream name.
	BuildStreamName(symbol string, dataType marketdata.Type, params Params) (StreamName, error)

	// ParseStreamName is the inverse of BuildStreamName.
	ParseStreamName(name StreamName) (symbol string, dataType marketdata.Type, params Params, err error)

	// MaxStreamsPerConnection returns the exchange's combined-stream cap.
	MaxStreamsPerConnection() int
}
