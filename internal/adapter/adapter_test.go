package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/exchangecollector/core/internal/config"
	"github.com/exchangecollector/core/internal/connmgr"
	"github.com/exchangecollector/core/internal/dataflow"
	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/internal/obsvc"
	"github.com/exchangecollector/core/internal/subscription"
	"github.com/exchangecollector/core/pkg/clock"
	"github.com/exchangecollector/core/pkg/errkind"
	"github.com/exchangecollector/core/pkg/xlog"
	"github.com/stretchr/testify/require"
)

type stubNormalizer struct {
	result marketdata.MarketData
	err    error
}

func (s *stubNormalizer) Normalize(raw []byte) (marketdata.MarketData, error) {
	if s.err != nil {
		return marketdata.MarketData{}, s.err
	}
	return s.result, nil
}

type recordingSink struct {
	name string
	mu   sync.Mutex
	got  []marketdata.MarketData
}

func (s *recordingSink) Name() string { return s.name }
func (s *recordingSink) Write(_ context.Context, batch []dataflow.DataFlowMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range batch {
		s.got = append(s.got, msg.Data)
	}
	return nil
}
func (s *recordingSink) Health() bool                { return true }
func (s *recordingSink) Close(context.Context) error { return nil }
func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func newTestAdapter(t *testing.T, norm Normalizer) (*Adapter, *connmgr.Manager, *dataflow.Engine, *recordingSink) {
	t.Helper()
	clk := clock.New()
	metrics := obsvc.New()

	conn := connmgr.New(connmgr.DefaultConfig(), clk, xlog.Noop())

	cfg := config.DefaultDataFlowConfig()
	cfg.SinkParallelism = 1
	cfg.BatchSize = 1
	cfg.BatchTimeout = 10 * time.Millisecond
	engine := dataflow.New(cfg, clk, xlog.Noop(), metrics)
	sink := &recordingSink{name: "test"}
	require.NoError(t, engine.AddSink(sink))

	subs := subscription.New(stubProfile{}, "wss://example.test", clk)

	a := New("test-adapter", conn, subs, norm, engine, clk, xlog.Noop(), metrics)
	return a, conn, engine, sink
}

type stubProfile struct{}

func (stubProfile) Exchange() string           { return "stub" }
func (stubProfile) MaxStreamsPerConnection() int { return 10 }
func (stubProfile) BuildStreamName(symbol string, dataType marketdata.Type, params subscription.Params) (subscription.StreamName, error) {
	return subscription.StreamName(symbol), nil
}
func (stubProfile) ParseStreamName(name subscription.StreamName) (string, marketdata.Type, subscription.Params, error) {
	return string(name), marketdata.TypeTrade, subscription.Params{}, nil
}

func TestAdapterStartsIdleBeforeStart(t *testing.T) {
	a, _, _, _ := newTestAdapter(t, &stubNormalizer{})
	require.NoError(t, a.Initialize())
	require.Equal(t, StatusIdle, a.Status())
	require.False(t, a.Healthy())
}

func TestAdapterProcessesFrameAndSubmitsToEngine(t *testing.T) {
	sample := marketdata.MarketData{Exchange: "stub", Symbol: "BTC/USDT", Type: marketdata.TypeTrade, Quality: 1.0}
	a, conn, engine, sink := newTestAdapter(t, &stubNormalizer{result: sample})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	require.Equal(t, connmgr.StateIdle, conn.State())

	// Simulate a frame arriving without a live socket: emit it directly.
	a.handleEvent(ctx, connmgrFrameEvent([]byte(`{}`)))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	snap := a.Snapshot()
	require.Equal(t, int64(1), snap.MessagesProcessed)
	require.Equal(t, int64(1), snap.MessagesPublished)
	require.Equal(t, 1.0, snap.QualityScore)
}

func TestAdapterCountsProcessingErrorsOnNormalizeFailure(t *testing.T) {
	a, _, engine, _ := newTestAdapter(t, &stubNormalizer{err: errkind.New(errkind.DataParsing, "x", "bad frame")})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	a.handleEvent(ctx, connmgrFrameEvent([]byte(`garbage`)))
	snap := a.Snapshot()
	require.Equal(t, int64(1), snap.ProcessingErrors)
	require.Equal(t, int64(0), snap.MessagesProcessed)
}

func TestAdapterTracksStatusTransitions(t *testing.T) {
	a, _, _, _ := newTestAdapter(t, &stubNormalizer{})
	a.onStateChanged(connmgr.StateConnected)
	require.Equal(t, StatusConnected, a.Status())
	a.onStateChanged(connmgr.StateReconnecting)
	require.Equal(t, StatusConnecting, a.Status())
}

// connmgrFrameEvent builds a connmgr.ConnectionEvent carrying raw,
// mirroring what the connection manager's read loop emits.
func connmgrFrameEvent(raw []byte) connmgr.ConnectionEvent {
	return connmgr.ConnectionEvent{Kind: connmgr.EventFrame, Frame: raw}
}
