package wsproxy

import (
	"sync"

	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/pkg/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// client is one connected browser/downstream consumer of the proxy.
type client struct {
	id   string
	conn *websocket.Conn

	outbound chan []byte

	mu            sync.Mutex
	subscriptions map[string]subscriptionKey
	lastActivity  int64 // unix millis, updated on any inbound frame or pong
}

func newClient(conn *websocket.Conn, outboundCapacity int, clk clock.Clock) *client {
	return &client{
		id:            uuid.NewString(),
		conn:          conn,
		outbound:      make(chan []byte, outboundCapacity),
		subscriptions: make(map[string]subscriptionKey),
		lastActivity:  clk.Now().UnixMilli(),
	}
}

// enqueue attempts a non-blocking send. false means the client's
// outbound queue is full and it should be disconnected as a slow
// consumer.
func (c *client) enqueue(payload []byte) bool {
	select {
	case c.outbound <- payload:
		return true
	default:
		return false
	}
}

func (c *client) subscribe(key subscriptionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[key.String()] = key
}

func (c *client) unsubscribe(key subscriptionKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, key.String())
}

func (c *client) matchingSubscription(m marketdata.MarketData) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range c.subscriptions {
		if key.matches(m) {
			return true
		}
	}
	return false
}

func (c *client) subscriptionList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscriptions))
	for tag := range c.subscriptions {
		out = append(out, tag)
	}
	return out
}

func (c *client) touch(clk clock.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = clk.Now().UnixMilli()
}

func (c *client) idleSince(clk clock.Clock) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clk.Now().UnixMilli() - c.lastActivity
}
