// Package marketdata defines the canonical MarketData record and the
// pure validation/quality-scoring/symbol-normalization functions a
// message normalizer applies to every frame, regardless of which
// exchange produced it.
package marketdata

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// Type enumerates the canonical MarketData.type values.
type Type string

const (
	TypeTrade     Type = "trade"
	TypeTicker    Type = "ticker"
	TypeDepth     Type = "depth"
	TypeOrderBook Type = "order_book"
	TypeKline1m   Type = "kline_1m"
	TypeKline5m   Type = "kline_5m"
	TypeKline15m  Type = "kline_15m"
	TypeKline30m  Type = "kline_30m"
	TypeKline1h   Type = "kline_1h"
	TypeKline4h   Type = "kline_4h"
	TypeKline1d   Type = "kline_1d"
)

// KlineType builds a kline_<interval> Type for any supported interval string.
func KlineType(interval string) Type {
	return Type("kline_" + interval)
}

// IsKline reports whether t is one of the kline_* variants.
func (t Type) IsKline() bool {
	return len(t) > 6 && t[:6] == "kline_"
}

// KlineInterval returns the interval suffix of a kline_* type, or "" otherwise.
func (t Type) KlineInterval() string {
	if !t.IsKline() {
		return ""
	}
	return string(t[6:])
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]+/[A-Z0-9]+$`)

// ValidSymbol reports whether s matches BASE/QUOTE shape.
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

// TradeSide is the canonical buy/sell side of a trade.
type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// TradePayload is the typed variant for Type == TypeTrade.
type TradePayload struct {
	ID        string          `json:"id"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Side      TradeSide       `json:"side"`
	Timestamp int64           `json:"timestamp"`
}

// TickerPayload is the typed variant for Type == TypeTicker.
type TickerPayload struct {
	LastPrice          decimal.Decimal `json:"last_price"`
	OpenPrice          decimal.Decimal `json:"open_price"`
	HighPrice          decimal.Decimal `json:"high_price"`
	LowPrice           decimal.Decimal `json:"low_price"`
	Volume             decimal.Decimal `json:"volume"`
	QuoteVolume        decimal.Decimal `json:"quote_volume"`
	PriceChangePercent decimal.Decimal `json:"price_change_percent"`
}

// KlinePayload is the typed variant for Type == kline_*.
type KlinePayload struct {
	Interval    string          `json:"interval"`
	OpenTime    int64           `json:"open_time"`
	CloseTime   int64           `json:"close_time"`
	Open        decimal.Decimal `json:"open"`
	High        decimal.Decimal `json:"high"`
	Low         decimal.Decimal `json:"low"`
	Close       decimal.Decimal `json:"close"`
	Volume      decimal.Decimal `json:"volume"`
	QuoteVolume decimal.Decimal `json:"quote_volume"`
	TradeCount  int64           `json:"trade_count"`
	Closed      bool            `json:"closed"`
}

// DepthLevel is one (price, quantity) level of an order book side.
type DepthLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// DepthPayload is the typed variant for Type == TypeDepth or TypeOrderBook.
type DepthPayload struct {
	FirstUpdateID int64        `json:"first_update_id"`
	FinalUpdateID int64        `json:"final_update_id"`
	Bids          []DepthLevel `json:"bids"`
	Asks          []DepthLevel `json:"asks"`
}

// Payload is a closed tagged union over the four payload variants.
// A raw map[string]any is permitted only inside the exchange-specific
// decoder that builds this struct — it must never leak past
// this type into sinks.
type Payload struct {
	Trade  *TradePayload  `json:"trade,omitempty"`
	Ticker *TickerPayload `json:"ticker,omitempty"`
	Kline  *KlinePayload  `json:"kline,omitempty"`
	Depth  *DepthPayload  `json:"depth,omitempty"`
}

// MarketData is the canonical record produced by a message normalizer.
type MarketData struct {
	Exchange          string            `json:"exchange"`
	Symbol            string            `json:"symbol"`
	Type              Type              `json:"type"`
	EventTimestamp    int64             `json:"event_timestamp"`
	ReceivedTimestamp int64             `json:"received_timestamp"`
	Payload           Payload           `json:"payload"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Quality           float64           `json:"quality"`
}

// Tag returns the (exchange, symbol, type) routing tuple used for
// per-tuple FIFO ordering and cache-sink keys.
func (m MarketData) Tag() string {
	return m.Exchange + "|" + m.Symbol + "|" + string(m.Type)
}

// WithMetadata returns a copy of m with key=value merged into Metadata.
// Used by dataflow transformers, which must be side-effect-free beyond
// metadata tagging.
func (m MarketData) WithMetadata(key, value string) MarketData {
	next := make(map[string]string, len(m.Metadata)+1)
	for k, v := range m.Metadata {
		next[k] = v
	}
	next[key] = value
	m.Metadata = next
	return m
}
