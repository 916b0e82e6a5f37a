// Package connmgr owns a single combined-stream WebSocket connection
// to an exchange: dialing, the read/write loop pair, heartbeat
// tracking, and reconnect-on-failure. It exposes its lifecycle as a
// receive-only channel of typed events rather than registered
// callbacks, and every loop is driven by an explicit context.Context
// instead of relying on implicit goroutine cancellation.
package connmgr

import (
	"context"
	"sync"
	"time"

	"github.com/exchangecollector/core/internal/heartbeat"
	"github.com/exchangecollector/core/internal/reconnect"
	"github.com/exchangecollector/core/pkg/clock"
	"github.com/exchangecollector/core/pkg/errkind"
	"github.com/exchangecollector/core/pkg/xlog"
	"github.com/gorilla/websocket"
)

// State is the connection's lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateActive       State = "active"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
	StateError        State = "error"
)

// EventKind discriminates the variants of ConnectionEvent.
type EventKind string

const (
	EventFrame         EventKind = "frame"
	EventStateChanged  EventKind = "state_changed"
	EventHeartbeatLost EventKind = "heartbeat_lost"
	EventError         EventKind = "error"
)

// ConnectionEvent is the single typed message shape emitted on the
// channel returned by Observe. Kind selects which of Frame/State/Err
// is set; an EventHeartbeatLost event carries none of them.
type ConnectionEvent struct {
	Kind  EventKind
	Frame []byte
	State State
	Err   error
}

// Config tunes a Manager.
type Config struct {
	DialTimeout time.Duration
	Heartbeat   heartbeat.Config
	Reconnect   reconnect.Config
	// EventBuffer sizes the channel returned by Observe.
	EventBuffer int
}

// DefaultConfig returns the standard per-connection tunables.
func DefaultConfig() Config {
	return Config{
		DialTimeout: 10 * time.Second,
		Heartbeat:   heartbeat.DefaultConfig(),
		Reconnect:   reconnect.DefaultConfig(),
		EventBuffer: 256,
	}
}

// Manager owns one combined-stream connection and drives it through a
// single cooperative read/write loop per connect, re-dialing on
// recoverable failure according to its reconnect.Strategy.
type Manager struct {
	cfg Config
	clk clock.Clock
	log *xlog.Logger

	hb        *heartbeat.Controller
	reconnect *reconnect.Strategy

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	events chan ConnectionEvent
	writeC chan []byte
	cancel context.CancelFunc
}

// New builds a Manager. The connection URL is supplied later through
// Run's urlFn, which is called on each (re)connect attempt so the caller
// can rebuild the combined-stream URL from the current subscription set.
func New(cfg Config, clk clock.Clock, log *xlog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		clk:       clk,
		log:       log.With("connmgr"),
		hb:        heartbeat.New(cfg.Heartbeat, clk),
		reconnect: reconnect.New(cfg.Reconnect, nil),
		state:     StateIdle,
		events:    make(chan ConnectionEvent, cfg.EventBuffer),
		writeC:    make(chan []byte, 64),
	}
}

// Observe returns the receive-only stream of connection events. There
// is exactly one consumer per Manager instance.
func (m *Manager) Observe() <-chan ConnectionEvent {
	return m.events
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Run dials urlFn() and drives the connection until ctx is cancelled or
// the reconnect strategy escalates. It blocks until the connection is
// permanently closed; callers run it in its own goroutine.
func (m *Manager) Run(ctx context.Context, urlFn func() (string, error)) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	defer m.setState(StateClosed)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		url, err := urlFn()
		if err != nil {
			m.emitError(errkind.Wrap(errkind.Config, "connmgr.Manager.Run", "cannot build connection url", err))
			return
		}

		m.setState(StateConnecting)
		if err := m.connectOnce(ctx, url); err != nil {
			kind := classifyDialError(err)
			decision := m.reconnect.Decide(kind)
			if decision.Escalate {
				m.emitError(errkind.Wrap(kind, "connmgr.Manager.Run", "giving up after repeated failures", err))
				return
			}
			if !decision.ShouldReconnect {
				m.emitError(errkind.Wrap(kind, "connmgr.Manager.Run", "non-reconnectable dial failure", err))
				continue
			}
			m.setState(StateReconnecting)
			select {
			case <-ctx.Done():
				return
			case <-m.clk.After(decision.Delay):
			}
			continue
		}

		// connectOnce blocks for the life of the connection; on return,
		// loop back around to reconnect unless ctx was cancelled.
	}
}

// connectOnce dials, runs the read/write loops until either fails, and
// cleans up the connection before returning.
func (m *Manager) connectOnce(ctx context.Context, url string) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	m.hb.Reset()
	connectedAt := m.clk.Now()
	m.setState(StateConnected)

	conn.SetPingHandler(func(payload string) error {
		pong := m.hb.OnPingReceived([]byte(payload))
		start := m.clk.Now()
		err := conn.WriteControl(websocket.PongMessage, pong, m.clk.Now().Add(5*time.Second))
		m.hb.RecordPongDispatched(m.clk.Now().Sub(start))
		return err
	})

	loopDone := make(chan error, 2)
	loopCtx, loopCancel := context.WithCancel(ctx)
	defer loopCancel()

	go m.readLoop(loopCtx, conn, loopDone)
	go m.writeLoop(loopCtx, conn, loopDone)

	err = <-loopDone
	loopCancel()
	conn.Close()
	if m.clk.Now().Sub(connectedAt) >= m.cfg.Reconnect.StableActiveDuration {
		m.reconnect.NotifyStableActive()
	}

	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()

	return err
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn, done chan<- error) {
	for {
		select {
		case <-ctx.Done():
			done <- nil
			return
		default:
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			done <- err
			return
		}
		m.setState(StateActive)
		m.emit(ConnectionEvent{Kind: EventFrame, Frame: frame})
	}
}

func (m *Manager) writeLoop(ctx context.Context, conn *websocket.Conn, done chan<- error) {
	ticker := m.clk.NewTicker(m.cfg.Heartbeat.PingTimeoutThreshold / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-m.writeC:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				done <- err
				return
			}
		case <-ticker.C():
			if m.hb.TimedOut(m.clk.Now()) {
				m.emit(ConnectionEvent{Kind: EventHeartbeatLost})
				done <- errkind.New(errkind.HeartbeatLost, "connmgr.Manager.writeLoop", "no ping within threshold")
				return
			}
		}
	}
}

// Send enqueues a payload for write. It returns false if the outbound
// queue is full, signaling backpressure to the caller.
func (m *Manager) Send(payload []byte) bool {
	select {
	case m.writeC <- payload:
		return true
	default:
		return false
	}
}

// Close cancels the Manager's run loop, tearing down the connection.
func (m *Manager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.emit(ConnectionEvent{Kind: EventStateChanged, State: s})
}

func (m *Manager) emit(ev ConnectionEvent) {
	select {
	case m.events <- ev:
	default:
		m.log.WithStr("dropped_event", string(ev.Kind)).Warn().Msg("event channel full, dropping connection event")
	}
}

func (m *Manager) emitError(err error) {
	m.setState(StateError)
	m.emit(ConnectionEvent{Kind: EventError, Err: err})
}

func classifyDialError(err error) errkind.Kind {
	if err == nil {
		return errkind.Unknown
	}
	if _, ok := err.(*websocket.CloseError); ok {
		return errkind.Connection
	}
	return errkind.Network
}
