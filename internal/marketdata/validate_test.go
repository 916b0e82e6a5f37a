package marketdata

import (
	"testing"

	"github.com/exchangecollector/core/pkg/errkind"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func validTrade() MarketData {
	return MarketData{
		Exchange:          "binance",
		Symbol:            "BTC/USDT",
		Type:              TypeTrade,
		EventTimestamp:    1699123456789,
		ReceivedTimestamp: 1699123456790,
		Payload: Payload{Trade: &TradePayload{
			ID:       "12345",
			Price:    decimal.NewFromFloat(50000.0),
			Quantity: decimal.NewFromFloat(0.1),
			Side:     SideBuy,
		}},
	}
}

func TestValidateAcceptsWellFormedTrade(t *testing.T) {
	require.NoError(t, Validate(validTrade()))
}

func TestValidateRejectsZeroEventTimestamp(t *testing.T) {
	m := validTrade()
	m.EventTimestamp = 0
	err := Validate(m)
	require.Error(t, err)
	var e *errkind.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, errkind.Validation, e.Kind)
	require.Equal(t, "event_timestamp", e.Field)
}

func TestValidateRejectsStaleReceivedTimestamp(t *testing.T) {
	m := validTrade()
	m.ReceivedTimestamp = m.EventTimestamp - maxClockSkewMs - 1
	err := Validate(m)
	require.Error(t, err)
	var e *errkind.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "received_timestamp", e.Field)
}

func TestValidateRejectsBadSymbol(t *testing.T) {
	m := validTrade()
	m.Symbol = "btcusdt"
	err := Validate(m)
	require.Error(t, err)
	var e *errkind.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "symbol", e.Field)
}

func TestValidateRejectsMismatchedPayload(t *testing.T) {
	m := validTrade()
	m.Payload.Trade = nil
	err := Validate(m)
	require.Error(t, err)
	var e *errkind.Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, "payload", e.Field)
}
