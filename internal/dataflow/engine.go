package dataflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/exchangecollector/core/internal/config"
	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/internal/obsvc"
	"github.com/exchangecollector/core/pkg/clock"
	"github.com/exchangecollector/core/pkg/errkind"
	"github.com/exchangecollector/core/pkg/xlog"
)

// Engine is the single point every normalized MarketData record passes
// through on its way from an adapter to its sinks. One cooperative
// scheduler goroutine drains the bounded ingress queue and fans each
// record out to a per-sink outbox; exactly one worker per sink batches
// its outbox and applies retries, so a slow or failing sink never
// blocks another and per-tuple delivery to a given sink stays strictly
// serial.
type Engine struct {
	cfg     config.DataFlowConfig
	clk     clock.Clock
	log     *xlog.Logger
	metrics *obsvc.Metrics

	transformers []Transformer
	route        RouteRule

	mu                sync.RWMutex
	sinks             map[string]Sink
	outboxes          map[string]chan DataFlowMessage
	registrationOrder []string

	ingress chan DataFlowMessage
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds an Engine. Sinks are registered via AddSink before Run is
// started; the sink set is fixed once Run begins.
func New(cfg config.DataFlowConfig, clk clock.Clock, log *xlog.Logger, metrics *obsvc.Metrics) *Engine {
	return &Engine{
		cfg:      cfg,
		clk:      clk,
		log:      log.With("dataflow"),
		metrics:  metrics,
		route:    RouteAll,
		sinks:    make(map[string]Sink),
		outboxes: make(map[string]chan DataFlowMessage),
		ingress:  make(chan DataFlowMessage, cfg.IngressCapacity),
		done:     make(chan struct{}),
	}
}

// Use appends a Transformer to the chain applied to every record before routing.
func (e *Engine) Use(t Transformer) {
	e.transformers = append(e.transformers, t)
}

// SetRoute replaces the default route-to-everything RouteRule.
func (e *Engine) SetRoute(r RouteRule) {
	e.route = r
}

// AddSink registers a sink and its outbox. Must be called before Run.
// The engine runs exactly one worker per sink, so the number of
// registered sinks is capped at cfg.SinkParallelism — the global
// concurrency budget the config names.
func (e *Engine) AddSink(s Sink) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.sinks[s.Name()]; !exists && len(e.sinks) >= e.cfg.SinkParallelism {
		return errkind.New(errkind.Config, "dataflow.Engine.AddSink",
			fmt.Sprintf("registering sink %q would exceed sink_parallelism cap of %d", s.Name(), e.cfg.SinkParallelism))
	}
	if _, exists := e.sinks[s.Name()]; !exists {
		e.registrationOrder = append(e.registrationOrder, s.Name())
	}
	e.sinks[s.Name()] = s
	e.outboxes[s.Name()] = make(chan DataFlowMessage, e.cfg.OutboxCapacity)
	return nil
}

func (e *Engine) sinkNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.sinks))
	for name := range e.sinks {
		names = append(names, name)
	}
	return names
}

// Submit enqueues a record for processing, honoring the configured
// backpressure policy when the ingress queue is full.
func (e *Engine) Submit(ctx context.Context, m marketdata.MarketData) error {
	msg := DataFlowMessage{Data: m, EnqueuedAt: e.clk.Now(), RoutingKey: m.Tag()}

	select {
	case e.ingress <- msg:
		e.metrics.IngressEnqueued.Inc()
		e.metrics.IngressDepth.Set(float64(len(e.ingress)))
		return nil
	default:
	}

	switch e.cfg.BackpressurePolicy {
	case config.PolicyDropNew:
		e.metrics.IngressDropped.WithLabelValues(string(config.PolicyDropNew)).Inc()
		return errkind.New(errkind.Backpressure, "dataflow.Engine.Submit", "ingress queue full, dropping new record")

	case config.PolicyDropOldest:
		select {
		case <-e.ingress:
			e.metrics.IngressDropped.WithLabelValues(string(config.PolicyDropOldest)).Inc()
		default:
		}
		select {
		case e.ingress <- msg:
			e.metrics.IngressEnqueued.Inc()
			return nil
		default:
			return errkind.New(errkind.Backpressure, "dataflow.Engine.Submit", "ingress queue still full after eviction")
		}

	default: // PolicyBlock
		timer := e.clk.NewTimer(e.cfg.SubmitTimeout)
		defer timer.Stop()
		select {
		case e.ingress <- msg:
			e.metrics.IngressEnqueued.Inc()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C():
			return errkind.New(errkind.Backpressure, "dataflow.Engine.Submit", "ingress full, submit timed out")
		}
	}
}

// Run starts the scheduler and one worker per sink. It blocks until
// ctx is cancelled, drains outstanding work within DrainTimeout, then
// closes every sink in registration order before returning.
func (e *Engine) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	defer close(e.done)

	// Workers outlive ctx so they can flush what drain hands them; they
	// are cancelled once the drain deadline passes.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	names := e.sinkNames()
	for _, name := range names {
		e.wg.Add(1)
		go e.sinkWorker(workerCtx, e.sinks[name], e.outboxes[name])
	}

	e.scheduler(ctx)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), e.cfg.DrainTimeout)
	defer drainCancel()
	stopWorkers := context.AfterFunc(drainCtx, workerCancel)
	defer stopWorkers()
	e.drain(drainCtx)

	for _, outbox := range e.outboxes {
		close(outbox)
	}
	e.wg.Wait()

	e.closeSinks()
}

// closeSinks calls Close on every sink in registration order, bounded
// by SinkDrainTimeout per sink.
func (e *Engine) closeSinks() {
	e.mu.RLock()
	order := make([]string, len(e.registrationOrder))
	copy(order, e.registrationOrder)
	e.mu.RUnlock()

	for _, name := range order {
		sink := e.sinks[name]
		closeCtx, cancel := context.WithTimeout(context.Background(), e.cfg.SinkDrainTimeout)
		if err := sink.Close(closeCtx); err != nil {
			e.log.WithStr("sink", name).Warn().Err(err).Msg("error closing sink")
		}
		cancel()
	}
}

// scheduler pulls records off the ingress queue, applies the
// transformer chain, routes, and fans out to the selected outboxes. It
// runs until ctx is cancelled, at which point remaining queued records
// are handled by drain.
func (e *Engine) scheduler(ctx context.Context) {
	names := e.sinkNames()
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-e.ingress:
			e.metrics.IngressDepth.Set(float64(len(e.ingress)))
			e.dispatch(ctx, m, names)
		}
	}
}

// drain flushes whatever remains on the ingress queue after Run's
// context is cancelled, bounded by drainCtx.
func (e *Engine) drain(drainCtx context.Context) {
	names := e.sinkNames()
	for {
		select {
		case m := <-e.ingress:
			e.dispatch(drainCtx, m, names)
		case <-drainCtx.Done():
			return
		default:
			return
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, msg DataFlowMessage, names []string) {
	data := msg.Data
	for _, t := range e.transformers {
		transformed, ok := t(data)
		if !ok {
			e.metrics.TransformerDrops.Inc()
			return
		}
		data = transformed
	}
	msg.Data = data

	targets := e.route(msg.Data, names)
	if len(targets) == 0 {
		e.metrics.Unrouted.Inc()
		return
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, name := range targets {
		outbox, ok := e.outboxes[name]
		if !ok {
			continue
		}
		select {
		case outbox <- msg:
			e.metrics.OutboxDepth.WithLabelValues(name).Set(float64(len(outbox)))
			e.metrics.RoutedTo.WithLabelValues(name).Inc()
		case <-ctx.Done():
			return
		default:
			e.log.WithStr("sink", name).Warn().Msg("outbox full, dropping record for sink")
			e.metrics.IngressDropped.WithLabelValues("outbox_full").Inc()
		}
	}
}

// sinkWorker is the single worker for one sink: it accumulates
// DataFlowMessages off the outbox into a batch, flushing once the
// batch reaches BatchSize or BatchTimeout elapses since the first
// buffered message, whichever comes first. Running exactly one worker
// per sink keeps delivery to that sink strictly serial, preserving
// per-routing-key FIFO order.
func (e *Engine) sinkWorker(ctx context.Context, sink Sink, outbox <-chan DataFlowMessage) {
	defer e.wg.Done()

	batch := make([]DataFlowMessage, 0, e.cfg.BatchSize)
	timer := e.clk.NewTimer(e.cfg.BatchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		e.writeWithRetry(ctx, sink, batch)
		batch = make([]DataFlowMessage, 0, e.cfg.BatchSize)
	}

	for {
		select {
		case m, ok := <-outbox:
			if !ok {
				flush()
				return
			}
			batch = append(batch, m)
			if len(batch) == 1 {
				timer.Stop()
				timer.Reset(e.cfg.BatchTimeout)
			}
			if len(batch) >= e.cfg.BatchSize {
				timer.Stop()
				flush()
				timer.Reset(e.cfg.BatchTimeout)
			}
		case <-timer.C():
			flush()
			timer.Reset(e.cfg.BatchTimeout)
		case <-ctx.Done():
			flush()
			return
		}
	}
}

func (e *Engine) writeWithRetry(ctx context.Context, sink Sink, batch []DataFlowMessage) {
	delay := e.cfg.SinkBaseDelay
	approxBytes := batchBytes(batch)

	for attempt := 0; attempt <= e.cfg.SinkMaxRetries; attempt++ {
		for i := range batch {
			batch[i].Attempts++
		}

		writeCtx, cancel := context.WithTimeout(ctx, e.cfg.SinkDrainTimeout)
		start := e.clk.Now()
		err := sink.Write(writeCtx, batch)
		cancel()
		elapsed := e.clk.Now().Sub(start)
		e.metrics.SinkWriteLatency.WithLabelValues(sink.Name()).Observe(elapsed.Seconds())

		if err == nil {
			e.metrics.SinkWrites.WithLabelValues(sink.Name(), "ok").Inc()
			e.metrics.SinkBatches.WithLabelValues(sink.Name()).Inc()
			e.metrics.SinkBytes.WithLabelValues(sink.Name()).Add(float64(approxBytes))
			now := e.clk.Now()
			for _, m := range batch {
				e.metrics.E2ELatency.WithLabelValues(sink.Name()).Observe(now.Sub(m.EnqueuedAt).Seconds())
			}
			return
		}

		kind := errkind.SinkTransient
		if ke, ok := err.(*errkind.Error); ok {
			kind = ke.Kind
		}

		if kind == errkind.SinkPermanent || attempt == e.cfg.SinkMaxRetries {
			e.metrics.SinkWrites.WithLabelValues(sink.Name(), "failed").Inc()
			e.metrics.SinkPermanentLoss.WithLabelValues(sink.Name()).Add(float64(len(batch)))
			e.log.WithStr("sink", sink.Name()).Error().Err(err).Int("batch_size", len(batch)).
				Msg("sink batch write exhausted retries, dropping batch")
			return
		}

		e.metrics.SinkRetries.WithLabelValues(sink.Name()).Inc()
		select {
		case <-ctx.Done():
			return
		case <-e.clk.After(delay):
		}
		delay *= 2
		if delay > e.cfg.SinkMaxDelay {
			delay = e.cfg.SinkMaxDelay
		}
	}
}

// batchBytes estimates the wire size of a batch for the sink_bytes
// metric. The estimate is JSON-encoded MarketData, independent of
// whichever wire format a given sink actually uses.
func batchBytes(batch []DataFlowMessage) int {
	total := 0
	for _, m := range batch {
		if body, err := json.Marshal(m.Data); err == nil {
			total += len(body)
		}
	}
	return total
}

// SinksHealthy reports whether every registered sink currently
// reports itself healthy.
func (e *Engine) SinksHealthy() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, sink := range e.sinks {
		if !sink.Health() {
			return false
		}
	}
	return true
}

// Stop cancels the run loop and blocks until Run has finished draining
// and closing every sink.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	<-e.done
}
