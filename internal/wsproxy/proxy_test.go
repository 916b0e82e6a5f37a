package wsproxy

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/exchangecollector/core/internal/config"
	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/internal/obsvc"
	"github.com/exchangecollector/core/pkg/clock"
	"github.com/exchangecollector/core/pkg/xlog"
	"github.com/stretchr/testify/require"
)

// fakeConn is a minimal in-memory Conn: ReadMessage replays a queued
// script of inbound frames then blocks until closed; WriteMessage
// records every frame the proxy sent back.
type fakeConn struct {
	mu       sync.Mutex
	inbound  [][]byte
	readIdx  int
	sent     [][]byte
	closed   bool
	closeSig chan struct{}
}

func newFakeConn(inbound ...[]byte) *fakeConn {
	return &fakeConn{inbound: inbound, closeSig: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	if f.readIdx < len(f.inbound) {
		msg := f.inbound[f.readIdx]
		f.readIdx++
		f.mu.Unlock()
		return 1, msg, nil
	}
	f.mu.Unlock()
	<-f.closeSig
	return 0, nil, errClosedConn
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeConn) WriteControl(_ int, _ []byte, _ time.Time) error { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error                 { return nil }
func (f *fakeConn) SetPongHandler(func(string) error)               {}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closeSig)
	}
	return nil
}

func (f *fakeConn) sentMessages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

var errClosedConn = &closedConnError{}

type closedConnError struct{}

func (*closedConnError) Error() string { return "fakeConn closed" }

func newTestProxy() *Proxy {
	cfg := config.DefaultProxyConfig()
	return New(cfg, clock.New(), xlog.Noop(), obsvc.New())
}

func TestAcceptSendsWelcomeMessage(t *testing.T) {
	p := newTestProxy()
	conn := newFakeConn()

	go p.Accept(conn)
	require.Eventually(t, func() bool { return len(conn.sentMessages()) >= 1 }, time.Second, 5*time.Millisecond)

	var welcome welcomeMessage
	require.NoError(t, json.Unmarshal(conn.sentMessages()[0], &welcome))
	require.Equal(t, "welcome", welcome.Event)
	require.NotEmpty(t, welcome.ClientID)

	conn.Close()
}

func TestSubscribeThenForwardMatchesMessage(t *testing.T) {
	p := newTestProxy()
	sub, _ := json.Marshal(inboundMessage{Action: actionSubscribe, Exchange: "binance", Symbol: "BTC/USDT", Type: "trade"})
	conn := newFakeConn(sub)

	go p.Accept(conn)
	require.Eventually(t, func() bool { return len(conn.sentMessages()) >= 2 }, time.Second, 5*time.Millisecond)

	p.ForwardMessage(marketdata.MarketData{Exchange: "binance", Symbol: "BTC/USDT", Type: marketdata.TypeTrade})
	require.Eventually(t, func() bool { return len(conn.sentMessages()) >= 3 }, time.Second, 5*time.Millisecond)

	conn.Close()
}

func TestForwardMessageSkipsUnsubscribedClient(t *testing.T) {
	p := newTestProxy()
	conn := newFakeConn()

	go p.Accept(conn)
	require.Eventually(t, func() bool { return len(conn.sentMessages()) >= 1 }, time.Second, 5*time.Millisecond)

	p.ForwardMessage(marketdata.MarketData{Exchange: "binance", Symbol: "BTC/USDT", Type: marketdata.TypeTrade})
	time.Sleep(20 * time.Millisecond)
	require.Len(t, conn.sentMessages(), 1) // only the welcome message

	conn.Close()
}

func TestAcceptRejectsBeyondMaxClients(t *testing.T) {
	cfg := config.DefaultProxyConfig()
	cfg.MaxClients = 1
	p := New(cfg, clock.New(), xlog.Noop(), obsvc.New())

	first := newFakeConn()
	go p.Accept(first)
	require.Eventually(t, func() bool { return len(first.sentMessages()) >= 1 }, time.Second, 5*time.Millisecond)

	second := newFakeConn()
	err := p.Accept(second)
	require.Error(t, err)

	first.Close()
}

func TestGetStatsReportsConnectedClients(t *testing.T) {
	p := newTestProxy()
	conn := newFakeConn()

	go p.Accept(conn)
	require.Eventually(t, func() bool { return p.GetStats().ConnectedClients == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return p.GetStats().ConnectedClients == 0 }, time.Second, 5*time.Millisecond)
}
