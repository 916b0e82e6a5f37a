// Package adapter bridges one exchange's connection manager and
// message normalizer into the dataflow engine, and reports its own
// lifecycle, throughput, and data-quality metrics. It replaces the
// init()-time global registration and callback-based subscribe this
// codebase used previously: an Adapter is an explicitly constructed
// object with a dependency-injected clock, logger, and engine.
package adapter

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/exchangecollector/core/internal/connmgr"
	"github.com/exchangecollector/core/internal/dataflow"
	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/internal/obsvc"
	"github.com/exchangecollector/core/internal/subscription"
	"github.com/exchangecollector/core/pkg/clock"
	"github.com/exchangecollector/core/pkg/errkind"
	"github.com/exchangecollector/core/pkg/xlog"
)

// Status is the adapter's externally visible lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusDegraded   Status = "degraded"
	StatusError      Status = "error"
	StatusStopped    Status = "stopped"
)

// numeric gives each Status a stable value for the adapter_status
// gauge, following the exchange-health-as-gauge convention.
func (s Status) numeric() float64 {
	switch s {
	case StatusConnected:
		return 1
	case StatusConnecting:
		return 0.5
	case StatusDegraded:
		return 0.25
	case StatusIdle:
		return 0
	case StatusStopped:
		return -1
	default:
		return -2 // error
	}
}

const unhealthyActivityWindow = 60 * time.Second

// Normalizer decodes one exchange's raw WebSocket frames into
// canonical MarketData, the shape binance.Normalizer implements.
type Normalizer interface {
	Normalize(raw []byte) (marketdata.MarketData, error)
}

// Metrics is a read-only snapshot of an Adapter's aggregated counters.
type Metrics struct {
	Status                Status    `json:"status"`
	MessagesProcessed      int64     `json:"messages_processed"`
	MessagesPublished      int64     `json:"messages_published"`
	ProcessingErrors       int64     `json:"processing_errors"`
	PublishErrors          int64     `json:"publish_errors"`
	AvgProcessingLatencyMs float64   `json:"avg_processing_latency_ms"`
	QualityScore           float64   `json:"quality_score"`
	LastActivity           time.Time `json:"last_activity"`
}

// Adapter owns one exchange connection's full pipeline: dial via
// connmgr, normalize frames, submit to the dataflow engine.
type Adapter struct {
	name string

	conn    *connmgr.Manager
	subs    *subscription.Manager
	norm    Normalizer
	engine  *dataflow.Engine
	clk     clock.Clock
	log     *xlog.Logger
	metrics *obsvc.Metrics

	mu     sync.RWMutex
	status Status

	messagesProcessed int64
	messagesPublished int64
	processingErrors  int64
	publishErrors     int64
	latencySumMs      int64
	latencyCount      int64
	lastQuality       atomicFloat
	lastActivity      atomic.Int64 // unix millis

	cancel context.CancelFunc
	done   chan struct{}
}

type atomicFloat struct {
	bits atomic.Uint64
}

func (f *atomicFloat) store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat) load() float64   { return math.Float64frombits(f.bits.Load()) }

// New constructs an Adapter. It does not start consuming events until Start is called.
func New(name string, conn *connmgr.Manager, subs *subscription.Manager, norm Normalizer, engine *dataflow.Engine, clk clock.Clock, log *xlog.Logger, metrics *obsvc.Metrics) *Adapter {
	return &Adapter{
		name:    name,
		conn:    conn,
		subs:    subs,
		norm:    norm,
		engine:  engine,
		clk:     clk,
		log:     log.With("adapter").WithStr("adapter_name", name),
		metrics: metrics,
		status:  StatusIdle,
		done:    make(chan struct{}),
	}
}

// Initialize is a no-op lifecycle hook kept distinct from New for
// symmetry with Start/Stop/Destroy: construction and initialization
// are the same step for an Adapter, since it holds no external
// resources until Start dials out.
func (a *Adapter) Initialize() error {
	a.setStatus(StatusIdle)
	return nil
}

// Start launches the connection manager's run loop and this adapter's
// event pump in the background. It returns once the pump goroutine has
// started; it does not block for the connection to become active.
func (a *Adapter) Start(ctx context.Context, urlFn func() (string, error)) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.setStatus(StatusConnecting)

	go a.conn.Run(ctx, urlFn)
	go a.pump(ctx)
}

// Stop cancels the adapter's connection and event pump, blocking until
// the pump has exited; it does not wait for the connection's Run loop
// to return.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	select {
	case <-a.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	a.setStatus(StatusStopped)
	return nil
}

// Destroy releases any resources Start acquired. For an Adapter that
// is just the connection manager, already torn down by Stop.
func (a *Adapter) Destroy() error {
	return nil
}

func (a *Adapter) pump(ctx context.Context) {
	defer close(a.done)
	events := a.conn.Observe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.handleEvent(ctx, ev)
		}
	}
}

func (a *Adapter) handleEvent(ctx context.Context, ev connmgr.ConnectionEvent) {
	switch ev.Kind {
	case connmgr.EventStateChanged:
		a.onStateChanged(ev.State)
	case connmgr.EventFrame:
		a.onFrame(ctx, ev.Frame)
	case connmgr.EventHeartbeatLost:
		a.setStatus(StatusDegraded)
	case connmgr.EventError:
		a.setStatus(StatusError)
		a.log.Error().Err(ev.Err).Msg("connection manager reported an error")
	}
}

func (a *Adapter) onStateChanged(s connmgr.State) {
	switch s {
	case connmgr.StateConnected, connmgr.StateActive:
		a.setStatus(StatusConnected)
	case connmgr.StateReconnecting, connmgr.StateConnecting:
		a.setStatus(StatusConnecting)
	case connmgr.StateClosed:
		a.setStatus(StatusStopped)
	case connmgr.StateError:
		a.setStatus(StatusError)
	}
}

func (a *Adapter) onFrame(ctx context.Context, raw []byte) {
	start := a.clk.Now()
	m, err := a.norm.Normalize(raw)
	if err != nil {
		atomic.AddInt64(&a.processingErrors, 1)
		a.metrics.AdapterProcessingErrs.WithLabelValues(a.name).Inc()
		a.log.WithStr("error_kind", classify(err)).Debug().Err(err).Msg("dropped unparseable frame")
		return
	}

	elapsed := a.clk.Now().Sub(start)
	atomic.AddInt64(&a.latencySumMs, elapsed.Milliseconds())
	atomic.AddInt64(&a.latencyCount, 1)
	atomic.AddInt64(&a.messagesProcessed, 1)
	a.metrics.AdapterMessages.WithLabelValues(a.name, "processed").Inc()
	a.metrics.AdapterProcessingLat.WithLabelValues(a.name).Observe(elapsed.Seconds())
	a.lastQuality.store(m.Quality)
	a.metrics.AdapterQualityScore.WithLabelValues(a.name).Set(m.Quality)
	a.lastActivity.Store(a.clk.Now().UnixMilli())

	if err := a.engine.Submit(ctx, m); err != nil {
		atomic.AddInt64(&a.publishErrors, 1)
		a.metrics.AdapterPublishErrs.WithLabelValues(a.name).Inc()
		return
	}
	atomic.AddInt64(&a.messagesPublished, 1)
	a.metrics.AdapterMessages.WithLabelValues(a.name, "published").Inc()
}

func (a *Adapter) setStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
	a.metrics.AdapterStatus.WithLabelValues(a.name).Set(s.numeric())
}

// Status reports the adapter's current lifecycle state.
func (a *Adapter) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Healthy reports false when the adapter is not connected or has seen
// no activity within the last 60 seconds.
func (a *Adapter) Healthy() bool {
	if a.Status() != StatusConnected {
		return false
	}
	last := a.lastActivity.Load()
	if last == 0 {
		return false
	}
	idle := a.clk.Now().UnixMilli() - last
	return time.Duration(idle)*time.Millisecond <= unhealthyActivityWindow
}

// Snapshot returns the adapter's aggregated metrics.
func (a *Adapter) Snapshot() Metrics {
	count := atomic.LoadInt64(&a.latencyCount)
	var avg float64
	if count > 0 {
		avg = float64(atomic.LoadInt64(&a.latencySumMs)) / float64(count)
	}

	var lastActivity time.Time
	if ms := a.lastActivity.Load(); ms > 0 {
		lastActivity = time.UnixMilli(ms)
	}

	return Metrics{
		Status:                 a.Status(),
		MessagesProcessed:      atomic.LoadInt64(&a.messagesProcessed),
		MessagesPublished:      atomic.LoadInt64(&a.messagesPublished),
		ProcessingErrors:       atomic.LoadInt64(&a.processingErrors),
		PublishErrors:          atomic.LoadInt64(&a.publishErrors),
		AvgProcessingLatencyMs: avg,
		QualityScore:           a.lastQuality.load(),
		LastActivity:           lastActivity,
	}
}

func classify(err error) string {
	if ke, ok := err.(*errkind.Error); ok {
		return ke.Kind.String()
	}
	return "unknown"
}
