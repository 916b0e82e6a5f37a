package binance

import (
	"encoding/json"
	"fmt"

	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/internal/subscription"
	"github.com/exchangecollector/core/pkg/clock"
	"github.com/exchangecollector/core/pkg/errkind"
	"github.com/shopspring/decimal"
)

type peekEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
}

// Normalizer decodes raw Binance WebSocket frames into canonical
// MarketData records, stamping ReceivedTimestamp from an injected
// clock and scoring each record's quality.
type Normalizer struct {
	profile Profile
	clk     clock.Clock
}

// NewNormalizer builds a Normalizer.
func NewNormalizer(clk clock.Clock) *Normalizer {
	return &Normalizer{profile: NewProfile(), clk: clk}
}

// Normalize decodes one raw frame, combined-stream enveloped or bare,
// into a canonical MarketData record.
func (n *Normalizer) Normalize(raw []byte) (marketdata.MarketData, error) {
	const op = "binance.Normalizer.Normalize"

	streamName, payload, err := unwrapFrame(raw)
	if err != nil {
		return marketdata.MarketData{}, err
	}

	var peek peekEvent
	_ = json.Unmarshal(payload, &peek)

	switch peek.EventType {
	case eventTrade, eventAggTrade:
		return n.normalizeTrade(payload)
	case eventTicker:
		return n.normalizeTicker(payload)
	case eventKline:
		return n.normalizeKline(payload)
	case eventDepthUpdate:
		return n.normalizeDepthUpdate(payload)
	case "":
		if streamName != "" {
			return n.normalizePartialDepth(streamName, payload)
		}
		return marketdata.MarketData{}, errkind.New(errkind.DataParsing, op, "frame carries no event type and no stream name")
	default:
		return marketdata.MarketData{}, errkind.New(errkind.DataParsing, op, fmt.Sprintf("unrecognized event type %q", peek.EventType))
	}
}

func (n *Normalizer) normalizeTrade(payload []byte) (marketdata.MarketData, error) {
	const op = "binance.Normalizer.normalizeTrade"
	var ev tradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return marketdata.MarketData{}, errkind.Wrap(errkind.DataParsing, op, "malformed trade frame", err)
	}

	missing := 0
	price, ok := parseDecimal(ev.Price)
	if !ok {
		missing++
	}
	qty, ok := parseDecimal(ev.Quantity)
	if !ok {
		missing++
	}

	side := marketdata.SideBuy
	if ev.BuyerMkr {
		side = marketdata.SideSell
	}

	m := marketdata.MarketData{
		Exchange:       ExchangeName,
		Symbol:         marketdata.SplitSymbol(ev.Symbol),
		Type:           marketdata.TypeTrade,
		EventTimestamp: ev.EventTime,
		Payload: marketdata.Payload{Trade: &marketdata.TradePayload{
			ID:        fmt.Sprintf("%d", ev.TradeID),
			Price:     price,
			Quantity:  qty,
			Side:      side,
			Timestamp: ev.TradeTime,
		}},
	}
	return n.finish(m, missing), nil
}

func (n *Normalizer) normalizeTicker(payload []byte) (marketdata.MarketData, error) {
	const op = "binance.Normalizer.normalizeTicker"
	var ev tickerEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return marketdata.MarketData{}, errkind.Wrap(errkind.DataParsing, op, "malformed ticker frame", err)
	}

	missing := 0
	parse := func(s string) decimal.Decimal {
		v, ok := parseDecimal(s)
		if !ok {
			missing++
		}
		return v
	}

	m := marketdata.MarketData{
		Exchange:       ExchangeName,
		Symbol:         marketdata.SplitSymbol(ev.Symbol),
		Type:           marketdata.TypeTicker,
		EventTimestamp: ev.EventTime,
		Payload: marketdata.Payload{Ticker: &marketdata.TickerPayload{
			LastPrice:          parse(ev.LastPrice),
			OpenPrice:          parse(ev.OpenPrice),
			HighPrice:          parse(ev.HighPrice),
			LowPrice:           parse(ev.LowPrice),
			Volume:             parse(ev.Volume),
			QuoteVolume:        parse(ev.QuoteVolume),
			PriceChangePercent: parse(ev.PriceChangePercent),
		}},
	}
	return n.finish(m, missing), nil
}

func (n *Normalizer) normalizeKline(payload []byte) (marketdata.MarketData, error) {
	const op = "binance.Normalizer.normalizeKline"
	var ev klineEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return marketdata.MarketData{}, errkind.Wrap(errkind.DataParsing, op, "malformed kline frame", err)
	}

	missing := 0
	parse := func(s string) decimal.Decimal {
		v, ok := parseDecimal(s)
		if !ok {
			missing++
		}
		return v
	}

	m := marketdata.MarketData{
		Exchange:       ExchangeName,
		Symbol:         marketdata.SplitSymbol(ev.Symbol),
		Type:           marketdata.KlineType(ev.Kline.Interval),
		EventTimestamp: ev.EventTime,
		Payload: marketdata.Payload{Kline: &marketdata.KlinePayload{
			Interval:    ev.Kline.Interval,
			OpenTime:    ev.Kline.OpenTime,
			CloseTime:   ev.Kline.CloseTime,
			Open:        parse(ev.Kline.OpenPrice),
			High:        parse(ev.Kline.HighPrice),
			Low:         parse(ev.Kline.LowPrice),
			Close:       parse(ev.Kline.ClosePrice),
			Volume:      parse(ev.Kline.BaseVolume),
			QuoteVolume: parse(ev.Kline.QuoteVolume),
			TradeCount:  ev.Kline.TradeCount,
			Closed:      ev.Kline.IsClosed,
		}},
	}
	return n.finish(m, missing), nil
}

func (n *Normalizer) normalizeDepthUpdate(payload []byte) (marketdata.MarketData, error) {
	const op = "binance.Normalizer.normalizeDepthUpdate"
	var ev depthUpdateEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return marketdata.MarketData{}, errkind.Wrap(errkind.DataParsing, op, "malformed depth update frame", err)
	}

	missing := 0
	bids, m1 := levelsFrom(ev.Bids)
	asks, m2 := levelsFrom(ev.Asks)
	missing += m1 + m2

	m := marketdata.MarketData{
		Exchange:       ExchangeName,
		Symbol:         marketdata.SplitSymbol(ev.Symbol),
		Type:           marketdata.TypeDepth,
		EventTimestamp: ev.EventTime,
		Payload: marketdata.Payload{Depth: &marketdata.DepthPayload{
			FirstUpdateID: ev.FirstUpdateID,
			FinalUpdateID: ev.FinalUpdateID,
			Bids:          bids,
			Asks:          asks,
		}},
	}
	return n.finish(m, missing), nil
}

// normalizePartialDepth decodes a <symbol>@depthN[@speedms] combined
// frame, which carries neither an event type nor a symbol field — both
// are recovered from the stream name via the profile.
func (n *Normalizer) normalizePartialDepth(streamName subscription.StreamName, payload []byte) (marketdata.MarketData, error) {
	const op = "binance.Normalizer.normalizePartialDepth"

	symbol, dataType, _, err := n.profile.ParseStreamName(streamName)
	if err != nil {
		return marketdata.MarketData{}, errkind.Wrap(errkind.DataParsing, op, "cannot recover symbol from stream name", err)
	}

	var ev partialDepthEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return marketdata.MarketData{}, errkind.Wrap(errkind.DataParsing, op, "malformed partial depth frame", err)
	}

	missing := 0
	bids, m1 := levelsFrom(ev.Bids)
	asks, m2 := levelsFrom(ev.Asks)
	missing += m1 + m2

	m := marketdata.MarketData{
		Exchange:       ExchangeName,
		Symbol:         symbol,
		Type:           dataType,
		EventTimestamp: n.clk.Now().UnixMilli(),
		Payload: marketdata.Payload{Depth: &marketdata.DepthPayload{
			FinalUpdateID: ev.LastUpdateID,
			Bids:          bids,
			Asks:          asks,
		}},
	}
	return n.finish(m, missing), nil
}

// finish stamps ReceivedTimestamp and quality on a decoded record.
func (n *Normalizer) finish(m marketdata.MarketData, missing int) marketdata.MarketData {
	m.ReceivedTimestamp = n.clk.Now().UnixMilli()
	m.Quality = marketdata.Score(m, marketdata.ScoreInputs{MissingFields: missing})
	return m
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, false
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return v, true
}

func levelsFrom(raw [][]string) ([]marketdata.DepthLevel, int) {
	missing := 0
	out := make([]marketdata.DepthLevel, 0, len(raw))
	for _, lvl := range raw {
		if len(lvl) != 2 {
			missing++
			continue
		}
		price, okP := parseDecimal(lvl[0])
		qty, okQ := parseDecimal(lvl[1])
		if !okP || !okQ {
			missing++
		}
		out = append(out, marketdata.DepthLevel{Price: price, Quantity: qty})
	}
	return out, missing
}
