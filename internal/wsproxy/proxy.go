// Package wsproxy re-exposes normalized MarketData records to
// downstream WebSocket clients: accept/assign/evict client lifecycle,
// a subscribe/unsubscribe/ping wire protocol, and per-client
// backpressure that disconnects slow consumers instead of blocking the
// dataflow engine that feeds them.
package wsproxy

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/exchangecollector/core/internal/config"
	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/internal/obsvc"
	"github.com/exchangecollector/core/pkg/clock"
	"github.com/exchangecollector/core/pkg/errkind"
	"github.com/exchangecollector/core/pkg/xlog"
	"github.com/gorilla/websocket"
)

// Close codes for the control frame the proxy sends just before it
// tears a connection down.
const (
	closeSlowConsumer   = 4000
	closeHeartbeatLost  = 4001
	closeCapacityReject = 1013
)

// Conn is the subset of *websocket.Conn the proxy needs, narrow enough
// to fake in tests without a real socket.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// Proxy owns every connected client and forwards MarketData records
// from the dataflow engine to whichever clients have a matching
// subscription.
type Proxy struct {
	cfg     config.ProxyConfig
	clk     clock.Clock
	log     *xlog.Logger
	metrics *obsvc.Metrics

	mu      sync.RWMutex
	clients map[string]*client
}

// New builds a Proxy. Call Accept for every upgraded connection.
func New(cfg config.ProxyConfig, clk clock.Clock, log *xlog.Logger, metrics *obsvc.Metrics) *Proxy {
	return &Proxy{
		cfg:     cfg,
		clk:     clk,
		log:     log.With("wsproxy"),
		metrics: metrics,
		clients: make(map[string]*client),
	}
}

// Accept registers a freshly upgraded connection, rejecting it once
// MaxClients is reached. On success it starts the client's read and
// write pumps and returns once the client has disconnected.
func (p *Proxy) Accept(conn Conn) error {
	c, err := p.register(conn)
	if err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeCapacityReject, "proxy at capacity"),
			p.clk.Now().Add(time.Second))
		conn.Close()
		return err
	}
	defer p.unregister(c.id)

	welcome, _ := json.Marshal(welcomeMessage{Event: "welcome", ClientID: c.id})
	c.enqueue(welcome)

	var wg sync.WaitGroup
	wg.Add(2)
	readDone := make(chan struct{})

	go func() {
		defer wg.Done()
		p.writePump(conn, c, readDone)
	}()
	go func() {
		defer wg.Done()
		defer close(readDone)
		p.readPump(conn, c)
	}()

	wg.Wait()
	return nil
}

func (p *Proxy) register(conn Conn) (*client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.clients) >= p.cfg.MaxClients {
		return nil, errkind.New(errkind.Backpressure, "wsproxy.Proxy.register", "at max client capacity")
	}

	c := newClient(conn, p.cfg.OutboundQueueSize, p.clk)
	p.clients[c.id] = c
	p.metrics.ProxyClientsConnected.Set(float64(len(p.clients)))
	return c, nil
}

func (p *Proxy) unregister(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, id)
	p.metrics.ProxyClientsConnected.Set(float64(len(p.clients)))
}

// ForwardMessage implements proxysink.Forwarder: it serializes m once
// and enqueues it on every subscribed client's outbound queue,
// disconnecting clients whose queue is already full.
func (p *Proxy) ForwardMessage(m marketdata.MarketData) {
	body, err := json.Marshal(m)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to marshal market data for proxy clients")
		return
	}

	p.mu.RLock()
	targets := make([]*client, 0, len(p.clients))
	for _, c := range p.clients {
		if c.matchingSubscription(m) {
			targets = append(targets, c)
		}
	}
	p.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(body) {
			p.metrics.ProxySlowConsumers.Inc()
			p.disconnect(c, closeSlowConsumer, "slow consumer")
			continue
		}
		p.metrics.ProxyMessagesSent.Inc()
	}
}

func (p *Proxy) disconnect(c *client, code int, reason string) {
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), p.clk.Now().Add(time.Second))
	c.conn.Close()
}

// Stats summarizes the proxy's current load for /stats.
type Stats struct {
	ConnectedClients int `json:"connected_clients"`
	MaxClients       int `json:"max_clients"`
}

// GetStats returns a snapshot of the proxy's current load.
func (p *Proxy) GetStats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Stats{ConnectedClients: len(p.clients), MaxClients: p.cfg.MaxClients}
}

func (p *Proxy) readPump(conn Conn, c *client) {
	conn.SetReadDeadline(p.clk.Now().Add(p.cfg.ConnectionTimeout))
	conn.SetPongHandler(func(string) error {
		c.touch(p.clk)
		conn.SetReadDeadline(p.clk.Now().Add(p.cfg.ConnectionTimeout))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		c.touch(p.clk)
		conn.SetReadDeadline(p.clk.Now().Add(p.cfg.ConnectionTimeout))
		p.handleInbound(c, raw)
	}
}

func (p *Proxy) handleInbound(c *client, raw []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		p.sendError(c, "malformed request")
		return
	}

	switch msg.Action {
	case actionSubscribe:
		key := newSubscriptionKey(msg.Exchange, msg.Symbol, msg.Type)
		c.subscribe(key)
		p.sendAck(c, "subscribed", key)
	case actionUnsubscribe:
		key := newSubscriptionKey(msg.Exchange, msg.Symbol, msg.Type)
		c.unsubscribe(key)
		p.sendAck(c, "unsubscribed", key)
	case actionPing:
		body, _ := json.Marshal(pongMessage{Event: "pong"})
		c.enqueue(body)
	default:
		p.sendError(c, "unsupported action: "+msg.Action)
	}
}

func (p *Proxy) sendAck(c *client, event string, key subscriptionKey) {
	body, _ := json.Marshal(ackMessage{Event: event, Exchange: key.Exchange, Symbol: key.Symbol, Type: key.Type})
	c.enqueue(body)
}

func (p *Proxy) sendError(c *client, reason string) {
	body, _ := json.Marshal(errorMessage{Event: "error", Message: reason})
	c.enqueue(body)
}

func (p *Proxy) writePump(conn Conn, c *client, readDone <-chan struct{}) {
	ticker := p.clk.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case payload := <-c.outbound:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C():
			if c.idleSince(p.clk) > p.cfg.ConnectionTimeout.Milliseconds() {
				p.disconnect(c, closeHeartbeatLost, "heartbeat lost")
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, p.clk.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
