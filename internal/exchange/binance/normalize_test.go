package binance

import (
	"testing"
	"time"

	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/pkg/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTradeFrame(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	n := NewNormalizer(clk)

	raw := []byte(`{
		"stream": "btcusdt@trade",
		"data": {
			"e": "trade", "E": 1767225600500, "s": "BTCUSDT", "t": 12345,
			"p": "50000.10", "q": "0.015", "T": 1767225600400, "m": true
		}
	}`)

	m, err := n.Normalize(raw)
	require.NoError(t, err)

	require.Equal(t, "binance", m.Exchange)
	require.Equal(t, "BTC/USDT", m.Symbol)
	require.Equal(t, marketdata.TypeTrade, m.Type)
	require.Equal(t, int64(1767225600500), m.EventTimestamp)
	require.NotNil(t, m.Payload.Trade)
	require.True(t, decimal.RequireFromString("50000.10").Equal(m.Payload.Trade.Price))
	require.True(t, decimal.RequireFromString("0.015").Equal(m.Payload.Trade.Quantity))
	require.Equal(t, marketdata.SideSell, m.Payload.Trade.Side)
	require.Equal(t, clk.Now().UnixMilli(), m.ReceivedTimestamp)
	require.Equal(t, 1.0, m.Quality)
}

func TestNormalizeBareTradeFrameWithoutEnvelope(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	n := NewNormalizer(clk)

	raw := []byte(`{"e":"trade","E":1,"s":"ETHUSDT","t":1,"p":"3000","q":"1","T":1,"m":false}`)
	m, err := n.Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, marketdata.SideBuy, m.Payload.Trade.Side)
	require.Equal(t, "ETH/USDT", m.Symbol)
}

func TestNormalizePartialDepthFrame(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	n := NewNormalizer(clk)

	raw := []byte(`{
		"stream": "adausdt@depth5@100ms",
		"data": {
			"lastUpdateId": 999,
			"bids": [["0.50", "100"]],
			"asks": [["0.51", "200"]]
		}
	}`)

	m, err := n.Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, marketdata.TypeDepth, m.Type)
	require.Equal(t, "ADA/USDT", m.Symbol)
	require.Len(t, m.Payload.Depth.Bids, 1)
	require.Len(t, m.Payload.Depth.Asks, 1)
	require.Equal(t, int64(999), m.Payload.Depth.FinalUpdateID)
}

func TestNormalizeRejectsUnrecognizedEventType(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	n := NewNormalizer(clk)
	_, err := n.Normalize([]byte(`{"e":"somethingUnknown"}`))
	require.Error(t, err)
}
