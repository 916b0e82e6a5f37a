// Package config defines the finite, typed configuration surface the
// core consumes, following the same helper-method and YAML-file
// loading style as the rest of this codebase's config types.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a Config from a YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// LogFormat selects the ambient logging output shape.
type LogFormat string

const (
	LogFormatConsole LogFormat = "console"
	LogFormatJSON    LogFormat = "json"
)

// LogConfig is the ambient logging configuration.
type LogConfig struct {
	Level  string    `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// ConnectionConfig tunes a single exchange ConnectionManager.
type ConnectionConfig struct {
	BaseURL              string        `yaml:"base_url"`
	MaxStreamsPerConn    int           `yaml:"max_streams_per_conn"`   // default 1024
	PongResponseTimeout  time.Duration `yaml:"pong_response_timeout"`  // default 5s
	PingTimeoutThreshold time.Duration `yaml:"ping_timeout_threshold"` // default 60s
	AllowUnsolicitedPing bool          `yaml:"allow_unsolicited_ping"` // default false
	InitialBackoff       time.Duration `yaml:"initial_backoff"`        // default 1s
	MaxBackoff           time.Duration `yaml:"max_backoff"`            // default 60s
	BackoffJitter        float64       `yaml:"backoff_jitter"`         // default 0.2
	MaxRetries           int           `yaml:"max_retries"`            // default 10
	StableActiveDuration time.Duration `yaml:"stable_active_duration"` // default 30s
	DialTimeout          time.Duration `yaml:"dial_timeout"`           // default 10s
}

// DefaultConnectionConfig returns the standard per-connection tunables.
func DefaultConnectionConfig(baseURL string) ConnectionConfig {
	return ConnectionConfig{
		BaseURL:              baseURL,
		MaxStreamsPerConn:    1024,
		PongResponseTimeout:  5 * time.Second,
		PingTimeoutThreshold: 60 * time.Second,
		AllowUnsolicitedPing: false,
		InitialBackoff:       1 * time.Second,
		MaxBackoff:           60 * time.Second,
		BackoffJitter:        0.2,
		MaxRetries:           10,
		StableActiveDuration: 30 * time.Second,
		DialTimeout:          10 * time.Second,
	}
}

// BackpressurePolicy governs ingress-queue-full behavior.
type BackpressurePolicy string

const (
	PolicyBlock      BackpressurePolicy = "block"
	PolicyDropOldest BackpressurePolicy = "drop_oldest"
	PolicyDropNew    BackpressurePolicy = "drop_new"
)

// DataFlowConfig tunes the engine.
type DataFlowConfig struct {
	IngressCapacity    int                `yaml:"ingress_capacity"` // Q, default 10000
	OutboxCapacity     int                `yaml:"outbox_capacity"`  // O, default 1000
	BatchSize          int                `yaml:"batch_size"`
	BatchTimeout       time.Duration      `yaml:"batch_timeout"`
	BackpressurePolicy BackpressurePolicy `yaml:"backpressure_policy"` // default block
	SubmitTimeout      time.Duration      `yaml:"submit_timeout"`      // default 50ms
	DequeueBatchSize   int                `yaml:"dequeue_batch_size"`  // N per tick
	SinkMaxRetries     int                `yaml:"sink_max_retries"`    // default 3
	SinkBaseDelay      time.Duration      `yaml:"sink_base_delay"`
	SinkMaxDelay       time.Duration      `yaml:"sink_max_delay"`
	SinkParallelism    int                `yaml:"sink_parallelism"`   // max registered sinks, one worker each, default 8
	DrainTimeout       time.Duration      `yaml:"drain_timeout"`      // default 10s
	SinkDrainTimeout   time.Duration      `yaml:"sink_drain_timeout"` // default 5s
}

// DefaultDataFlowConfig returns default tunables.
func DefaultDataFlowConfig() DataFlowConfig {
	return DataFlowConfig{
		IngressCapacity:    10_000,
		OutboxCapacity:     1_000,
		BatchSize:          100,
		BatchTimeout:       200 * time.Millisecond,
		BackpressurePolicy: PolicyBlock,
		SubmitTimeout:      50 * time.Millisecond,
		DequeueBatchSize:   256,
		SinkMaxRetries:     3,
		SinkBaseDelay:      100 * time.Millisecond,
		SinkMaxDelay:       5 * time.Second,
		SinkParallelism:    8,
		DrainTimeout:       10 * time.Second,
		SinkDrainTimeout:   5 * time.Second,
	}
}

// ProxyConfig tunes the browser-facing WebSocket proxy.
type ProxyConfig struct {
	MaxClients        int           `yaml:"max_clients"`        // default 1000
	ConnectionTimeout time.Duration `yaml:"connection_timeout"` // default 60s
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // default 30s
	OutboundQueueSize int           `yaml:"outbound_queue_size"` // default 256
}

// DefaultProxyConfig returns default tunables.
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		MaxClients:        1000,
		ConnectionTimeout: 60 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		OutboundQueueSize: 256,
	}
}

// PubSubConfig describes the outbound managed pub/sub topic/attribute
// conventions. The concrete provider connection (NATS URL,
// credentials) is supplied by the caller; this struct only carries the
// routing/batching policy the sink needs.
type PubSubConfig struct {
	TopicPrefix      string        `yaml:"topic_prefix"` // default "market-data"
	OrderingEnabled  bool          `yaml:"ordering_enabled"`
	MaxBatchMessages int           `yaml:"max_batch_messages"`
	MaxBatchBytes    int           `yaml:"max_batch_bytes"`
	MaxBatchLatency  time.Duration `yaml:"max_batch_latency"`
	Source           string        `yaml:"source"` // default "exchange-collector"
}

// DefaultPubSubConfig returns default tunables.
func DefaultPubSubConfig() PubSubConfig {
	return PubSubConfig{
		TopicPrefix:      "market-data",
		OrderingEnabled:  true,
		MaxBatchMessages: 100,
		MaxBatchBytes:    1 << 20,
		MaxBatchLatency:  100 * time.Millisecond,
		Source:           "exchange-collector",
	}
}

// CacheSinkConfig tunes the in-memory cache sink.
type CacheSinkConfig struct {
	MaxEntriesPerKey int           `yaml:"max_entries_per_key"` // K, default 100
	TTL              time.Duration `yaml:"ttl"`                 // default 60s
}

// DefaultCacheSinkConfig returns default tunables.
func DefaultCacheSinkConfig() CacheSinkConfig {
	return CacheSinkConfig{MaxEntriesPerKey: 100, TTL: 60 * time.Second}
}

// String renders a compact summary, carrying a base URL directly
// rather than discrete host/port/param fields.
func (c ConnectionConfig) String() string {
	return fmt.Sprintf("ConnectionConfig{base_url=%s, max_streams=%d}", c.BaseURL, c.MaxStreamsPerConn)
}

// StartupSubscription names one (symbol, data type) pair an adapter
// subscribes to as soon as it starts, before any client-driven
// subscribe call arrives.
type StartupSubscription struct {
	Symbol string `yaml:"symbol"`
	Type   string `yaml:"type"` // marketdata.Type, e.g. "trade", "kline_1m"
}

// AdapterConfig names one exchange adapter instance to create via the registry.
type AdapterConfig struct {
	Name          string                `yaml:"name"`
	Exchange      string                `yaml:"exchange"`
	Connection    ConnectionConfig      `yaml:"connection"`
	Enabled       bool                  `yaml:"enabled"`
	Subscriptions []StartupSubscription `yaml:"subscriptions"`
}

// PostgresConfig names the connection parameters for the adapter
// lifecycle event log. Persistence is optional: a zero-value Enabled
// leaves the registry without a LifecycleStore.
type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DefaultPostgresConfig returns standard local-development tunables.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{Host: "localhost", Port: 5432, SSLMode: "disable"}
}

// NATSConfig names the JetStream connection the pub/sub sink publishes to.
type NATSConfig struct {
	URL    string `yaml:"url"`
	Stream string `yaml:"stream"` // default "MARKET_DATA"
}

// DefaultNATSConfig returns standard local-development tunables.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{URL: "nats://127.0.0.1:4222", Stream: "MARKET_DATA"}
}

// HTTPConfig tunes the process's single gin listener, serving the
// WebSocket proxy and the observability routes.
type HTTPConfig struct {
	ListenAddr string `yaml:"listen_addr"` // default ":8080"
}

// DefaultHTTPConfig returns standard local-development tunables.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{ListenAddr: ":8080"}
}

// Config is the root configuration object the core accepts. Unknown
// keys MUST be rejected by the external loader before reaching this
// struct.
type Config struct {
	Log      LogConfig       `yaml:"log"`
	HTTP     HTTPConfig      `yaml:"http"`
	DataFlow DataFlowConfig  `yaml:"dataflow"`
	Proxy    ProxyConfig     `yaml:"proxy"`
	PubSub   PubSubConfig    `yaml:"pubsub"`
	NATS     NATSConfig      `yaml:"nats"`
	Cache    CacheSinkConfig `yaml:"cache"`
	Postgres PostgresConfig  `yaml:"postgres"`
	Adapters []AdapterConfig `yaml:"adapters"`
}
