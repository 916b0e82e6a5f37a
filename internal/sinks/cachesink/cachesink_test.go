package cachesink

import (
	"context"
	"testing"
	"time"

	"github.com/exchangecollector/core/internal/config"
	"github.com/exchangecollector/core/internal/dataflow"
	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/pkg/clock"
	"github.com/stretchr/testify/require"
)

func rec(price string, symbol string) marketdata.MarketData {
	return marketdata.MarketData{Exchange: "binance", Symbol: symbol, Type: marketdata.TypeTrade}
}

func single(m marketdata.MarketData) []dataflow.DataFlowMessage {
	return []dataflow.DataFlowMessage{{Data: m}}
}

func TestGetLatestReturnsMostRecentFirst(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := New("cache", clk, config.CacheSinkConfig{MaxEntriesPerKey: 3, TTL: time.Minute})

	for i := 0; i < 3; i++ {
		m := rec("", "BTC/USDT")
		m.EventTimestamp = int64(i + 1)
		require.NoError(t, s.Write(context.Background(), single(m)))
	}

	latest := s.GetLatest("binance|BTC/USDT|trade", 3)
	require.Len(t, latest, 3)
	require.Equal(t, int64(3), latest[0].EventTimestamp)
	require.Equal(t, int64(1), latest[2].EventTimestamp)
}

func TestWriteEvictsOldestBeyondCapacity(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := New("cache", clk, config.CacheSinkConfig{MaxEntriesPerKey: 2, TTL: time.Minute})

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Write(context.Background(), single(rec("", "BTC/USDT"))))
	}

	latest := s.GetLatest("binance|BTC/USDT|trade", 10)
	require.Len(t, latest, 2)
}

func TestGetLatestExcludesExpiredEntries(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := New("cache", clk, config.CacheSinkConfig{MaxEntriesPerKey: 3, TTL: time.Second})

	require.NoError(t, s.Write(context.Background(), single(rec("", "BTC/USDT"))))
	clk.Advance(2 * time.Second)

	require.Empty(t, s.GetLatest("binance|BTC/USDT|trade", 10))
}

func TestSizeCountsDistinctTags(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := New("cache", clk, config.CacheSinkConfig{MaxEntriesPerKey: 3, TTL: time.Minute})

	require.NoError(t, s.Write(context.Background(), single(rec("", "BTC/USDT"))))
	require.NoError(t, s.Write(context.Background(), single(rec("", "ETH/USDT"))))
	require.Equal(t, uint64(2), s.Size())

	s.Clear()
	require.Equal(t, uint64(0), s.Size())
}

func TestWriteHandlesMultiRecordBatch(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := New("cache", clk, config.CacheSinkConfig{MaxEntriesPerKey: 5, TTL: time.Minute})

	batch := []dataflow.DataFlowMessage{
		{Data: rec("", "BTC/USDT")},
		{Data: rec("", "BTC/USDT")},
		{Data: rec("", "ETH/USDT")},
	}
	require.NoError(t, s.Write(context.Background(), batch))
	require.Equal(t, uint64(2), s.Size())
	require.Len(t, s.GetLatest("binance|BTC/USDT|trade", 10), 2)
}

func TestHealthIsAlwaysTrue(t *testing.T) {
	s := New("cache", clock.NewFake(time.Unix(0, 0)), config.CacheSinkConfig{MaxEntriesPerKey: 1, TTL: time.Minute})
	require.True(t, s.Health())
}

func TestCloseClearsCache(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := New("cache", clk, config.CacheSinkConfig{MaxEntriesPerKey: 3, TTL: time.Minute})
	require.NoError(t, s.Write(context.Background(), single(rec("", "BTC/USDT"))))
	require.NoError(t, s.Close(context.Background()))
	require.Equal(t, uint64(0), s.Size())
}
