// Package obsvc collects the process's Prometheus metrics behind a
// constructed registry rather than the client_golang default global
// registry, so tests can register independent instances without
// colliding on metric names.
package obsvc

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every collector the dataflow engine, websocket proxy,
// and adapter registry report through.
type Metrics struct {
	Registry *prometheus.Registry

	IngressDepth      prometheus.Gauge
	IngressEnqueued   prometheus.Counter
	IngressDropped    *prometheus.CounterVec // label: policy
	Unrouted          prometheus.Counter
	TransformerDrops  prometheus.Counter
	OutboxDepth       *prometheus.GaugeVec   // label: sink
	RoutedTo          *prometheus.CounterVec // label: sink
	SinkWrites        *prometheus.CounterVec // labels: sink, result
	SinkWriteLatency  *prometheus.HistogramVec
	SinkRetries       *prometheus.CounterVec
	SinkBatches       *prometheus.CounterVec // label: sink
	SinkBytes         *prometheus.CounterVec // label: sink
	SinkPermanentLoss *prometheus.CounterVec  // label: sink
	E2ELatency        *prometheus.HistogramVec // label: sink; submit -> sink.write return

	ProxyClientsConnected prometheus.Gauge
	ProxyMessagesSent     prometheus.Counter
	ProxySlowConsumers    prometheus.Counter

	AdapterStatus         *prometheus.GaugeVec // label: adapter, value = numeric status
	AdapterMessages       *prometheus.CounterVec
	AdapterProcessingLat  *prometheus.HistogramVec
	AdapterQualityScore   *prometheus.GaugeVec
	AdapterProcessingErrs *prometheus.CounterVec
	AdapterPublishErrs    *prometheus.CounterVec
}

// New builds and registers a fresh Metrics bundle. Each call returns an
// independent prometheus.Registry, safe to construct repeatedly in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		IngressDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dataflow_ingress_depth", Help: "current number of records queued at ingress",
		}),
		IngressEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dataflow_ingress_enqueued_total", Help: "records accepted onto the ingress queue",
		}),
		IngressDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataflow_ingress_dropped_total", Help: "records dropped at ingress by backpressure policy",
		}, []string{"policy"}),
		Unrouted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dataflow_unrouted_total", Help: "records whose route rule matched no registered sink",
		}),
		TransformerDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dataflow_transformer_drops_total", Help: "records dropped by a transformer, including transformer failures",
		}),
		OutboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dataflow_outbox_depth", Help: "current number of records queued per sink outbox",
		}, []string{"sink"}),
		RoutedTo: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataflow_routed_total", Help: "records routed to each sink",
		}, []string{"sink"}),
		SinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataflow_sink_writes_total", Help: "sink batch write attempts by result",
		}, []string{"sink", "result"}),
		SinkWriteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "dataflow_sink_write_latency_seconds", Help: "sink batch write latency",
		}, []string{"sink"}),
		SinkRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataflow_sink_retries_total", Help: "sink batch write retries",
		}, []string{"sink"}),
		SinkBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataflow_sink_batches_total", Help: "batches flushed to each sink",
		}, []string{"sink"}),
		SinkBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataflow_sink_bytes_total", Help: "approximate serialized bytes flushed to each sink",
		}, []string{"sink"}),
		SinkPermanentLoss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataflow_sink_permanent_loss_total", Help: "records permanently dropped after exhausting sink retries",
		}, []string{"sink"}),
		E2ELatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "dataflow_e2e_latency_seconds", Help: "time from engine submit to a successful sink write returning",
		}, []string{"sink"}),
		ProxyClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wsproxy_clients_connected", Help: "currently connected proxy clients",
		}),
		ProxyMessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsproxy_messages_sent_total", Help: "messages forwarded to proxy clients",
		}),
		ProxySlowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wsproxy_slow_consumers_total", Help: "clients disconnected for falling behind",
		}),
		AdapterStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adapter_status", Help: "adapter lifecycle status as a numeric gauge",
		}, []string{"adapter"}),
		AdapterMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adapter_messages_total", Help: "adapter message counters by stage",
		}, []string{"adapter", "stage"}),
		AdapterProcessingLat: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "adapter_processing_latency_seconds", Help: "adapter end-to-end processing latency",
		}, []string{"adapter"}),
		AdapterQualityScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adapter_quality_score", Help: "most recent data quality score observed by the adapter",
		}, []string{"adapter"}),
		AdapterProcessingErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adapter_processing_errors_total", Help: "normalization/validation failures",
		}, []string{"adapter"}),
		AdapterPublishErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "adapter_publish_errors_total", Help: "sink publish failures",
		}, []string{"adapter"}),
	}

	reg.MustRegister(
		m.IngressDepth, m.IngressEnqueued, m.IngressDropped, m.Unrouted, m.TransformerDrops,
		m.OutboxDepth, m.RoutedTo, m.SinkWrites, m.SinkWriteLatency, m.SinkRetries,
		m.SinkBatches, m.SinkBytes, m.SinkPermanentLoss, m.E2ELatency,
		m.ProxyClientsConnected, m.ProxyMessagesSent, m.ProxySlowConsumers,
		m.AdapterStatus, m.AdapterMessages, m.AdapterProcessingLat,
		m.AdapterQualityScore, m.AdapterProcessingErrs, m.AdapterPublishErrs,
	)

	return m
}
