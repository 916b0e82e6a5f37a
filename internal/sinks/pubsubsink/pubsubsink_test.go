package pubsubsink

import (
	"context"
	"errors"
	"testing"

	"github.com/exchangecollector/core/internal/config"
	"github.com/exchangecollector/core/internal/dataflow"
	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	lastMsg *nats.Msg
	err     error
}

func (f *fakePublisher) PublishMsg(m *nats.Msg) (*nats.PubAck, error) {
	f.lastMsg = m
	if f.err != nil {
		return nil, f.err
	}
	return &nats.PubAck{}, nil
}

func batchOf(records ...marketdata.MarketData) []dataflow.DataFlowMessage {
	out := make([]dataflow.DataFlowMessage, len(records))
	for i, r := range records {
		out[i] = dataflow.DataFlowMessage{Data: r}
	}
	return out
}

func TestWritePublishesToDerivedSubjectWithAttributes(t *testing.T) {
	pub := &fakePublisher{}
	cfg := config.DefaultPubSubConfig()
	s := New("pubsub", pub, cfg)

	m := marketdata.MarketData{Exchange: "binance", Symbol: "BTC/USDT", Type: marketdata.TypeKline1m, EventTimestamp: 42}
	require.NoError(t, s.Write(context.Background(), batchOf(m)))

	require.NotNil(t, pub.lastMsg)
	require.Equal(t, "market-data-kline-binance", pub.lastMsg.Subject)
	require.Equal(t, "binance", pub.lastMsg.Header.Get("exchange"))
	require.Equal(t, "42", pub.lastMsg.Header.Get("timestamp"))
}

func TestWriteCollapsesAllKlineIntervalsOntoOneSubject(t *testing.T) {
	pub := &fakePublisher{}
	s := New("pubsub", pub, config.DefaultPubSubConfig())

	for _, kt := range []marketdata.Type{marketdata.TypeKline1m, marketdata.TypeKline1h, marketdata.TypeKline1d} {
		require.NoError(t, s.Write(context.Background(), batchOf(marketdata.MarketData{Exchange: "binance", Type: kt})))
		require.Equal(t, "market-data-kline-binance", pub.lastMsg.Subject)
	}
}

func TestWriteReturnsTransientErrorOnPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	s := New("pubsub", pub, config.DefaultPubSubConfig())

	err := s.Write(context.Background(), batchOf(marketdata.MarketData{Exchange: "binance", Type: marketdata.TypeTrade}))
	require.Error(t, err)
}

func TestHealthGoesFalseAfterRepeatedFailuresAndRecovers(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	s := New("pubsub", pub, config.DefaultPubSubConfig())

	for i := 0; i < unhealthyThreshold; i++ {
		_ = s.Write(context.Background(), batchOf(marketdata.MarketData{Exchange: "binance", Type: marketdata.TypeTrade}))
	}
	require.False(t, s.Health())

	pub.err = nil
	require.NoError(t, s.Write(context.Background(), batchOf(marketdata.MarketData{Exchange: "binance", Type: marketdata.TypeTrade})))
	require.True(t, s.Health())
}

func TestCloseIsNoop(t *testing.T) {
	s := New("pubsub", &fakePublisher{}, config.DefaultPubSubConfig())
	require.NoError(t, s.Close(context.Background()))
}
