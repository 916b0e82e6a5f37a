// Command collector is the exchange-collector process entrypoint: it
// wires the connection manager, dataflow engine, channel sinks, the
// WebSocket proxy, and the adapter registry together from a single
// YAML config file, serves them on one gin engine, and shuts down
// gracefully on SIGINT.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/exchangecollector/core/internal/adapter"
	"github.com/exchangecollector/core/internal/config"
	"github.com/exchangecollector/core/internal/connmgr"
	"github.com/exchangecollector/core/internal/dataflow"
	"github.com/exchangecollector/core/internal/exchange/binance"
	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/internal/obsvc"
	"github.com/exchangecollector/core/internal/persistence"
	"github.com/exchangecollector/core/internal/registry"
	"github.com/exchangecollector/core/internal/sinks/cachesink"
	"github.com/exchangecollector/core/internal/sinks/proxysink"
	"github.com/exchangecollector/core/internal/sinks/pubsubsink"
	"github.com/exchangecollector/core/internal/subscription"
	"github.com/exchangecollector/core/internal/wsproxy"
	"github.com/exchangecollector/core/pkg/clock"
	"github.com/exchangecollector/core/pkg/shutdown"
	"github.com/exchangecollector/core/pkg/xlog"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "configs/collector.yaml", "path to the collector YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	format := xlog.FormatJSON
	if cfg.Log.Format == config.LogFormatConsole {
		format = xlog.FormatConsole
	}
	log := xlog.NewRoot(xlog.Options{Level: level, Format: format})

	clk := clock.New()
	metrics := obsvc.New()

	sd := shutdown.NewShutdown(log)

	engine := dataflow.New(cfg.DataFlow, clk, log, metrics)
	if err := wireSinks(cfg, engine, clk, log); err != nil {
		panic(fmt.Errorf("wire sinks: %w", err))
	}

	proxy := wsproxy.New(cfg.Proxy, clk, log, metrics)
	if err := engine.AddSink(proxysink.New("proxy", proxy)); err != nil {
		panic(fmt.Errorf("register proxy sink: %w", err))
	}

	var store *persistence.LifecycleStore
	if cfg.Postgres.Enabled {
		store, err = persistence.Open(persistence.DSN{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			DBName:   cfg.Postgres.DBName,
			SSLMode:  cfg.Postgres.SSLMode,
			TimeZone: "UTC",
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to open lifecycle store, continuing without persistence")
			store = nil
		}
	}

	reg := registry.New(log, store)
	registerAdapterFactories(reg, engine, clk, log, metrics)

	engineCtx, engineCancel := context.WithCancel(context.Background())
	go engine.Run(engineCtx)

	startErrs := reg.StartAutoAdapters(sd.Context(), cfg.Adapters, adapterURLFn)
	for _, e := range startErrs {
		log.Error().Err(e).Msg("failed to start adapter")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	rg := router.Group("/")
	wsproxy.NewRoutes(rg, proxy)
	obsvc.NewRoutes(rg, metrics, func() bool {
		return reg.AllHealthy() && engine.SinksHealthy()
	})

	srv := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: router}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()
	log.Info().Str("addr", cfg.HTTP.ListenAddr).Msg("collector listening")

	sd.HookShutdownCallback("http-server", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, 10*time.Second)

	sd.HookShutdownCallback("adapter-registry", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		for _, e := range reg.StopAllInstances(ctx) {
			log.Error().Err(e).Msg("error stopping adapter instance")
		}
	}, 20*time.Second)

	sd.HookShutdownCallback("dataflow-engine", func() {
		engine.Stop()
		engineCancel()
	}, 15*time.Second)

	sd.WaitForShutdown()
}

// wireSinks attaches the pub/sub and in-memory cache sinks configured
// for the process. The pub/sub sink is skipped if no NATS URL is set,
// so the collector still runs with just the proxy and cache sinks in
// local development.
func wireSinks(cfg *config.Config, engine *dataflow.Engine, clk clock.Clock, log *xlog.Logger) error {
	cache := cachesink.New("cache", clk, cfg.Cache)
	if err := engine.AddSink(cache); err != nil {
		return fmt.Errorf("register cache sink: %w", err)
	}

	if cfg.NATS.URL == "" {
		return nil
	}
	nc, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Error().Err(err).Msg("failed to connect to NATS, pub/sub sink disabled")
		return nil
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Error().Err(err).Msg("failed to acquire JetStream context, pub/sub sink disabled")
		return nil
	}
	if _, err := js.StreamInfo(cfg.NATS.Stream); err != nil {
		if _, err := js.AddStream(&nats.StreamConfig{
			Name:     cfg.NATS.Stream,
			Subjects: []string{cfg.PubSub.TopicPrefix + "-*"},
		}); err != nil {
			log.Error().Err(err).Msg("failed to ensure JetStream stream, pub/sub sink disabled")
			return nil
		}
	}
	if err := engine.AddSink(pubsubsink.New("pubsub", jetStreamPublisher{js}, cfg.PubSub)); err != nil {
		return fmt.Errorf("register pubsub sink: %w", err)
	}
	return nil
}

// jetStreamPublisher adapts nats.JetStreamContext's variadic
// PublishMsg to the narrow, fakeable pubsubsink.Publisher interface.
type jetStreamPublisher struct {
	js nats.JetStreamContext
}

func (p jetStreamPublisher) PublishMsg(m *nats.Msg) (*nats.PubAck, error) {
	return p.js.PublishMsg(m)
}

// registerAdapterFactories registers one adapter factory per known
// exchange. Each factory builds a fresh connmgr.Manager and
// subscription.Manager from the adapter's config, subscribes its
// startup streams, and wraps them in an Adapter bound to the shared
// dataflow engine.
func registerAdapterFactories(reg *registry.Registry, engine *dataflow.Engine, clk clock.Clock, log *xlog.Logger, metrics *obsvc.Metrics) {
	reg.Register(binance.ExchangeName, "v1", "Binance combined-stream market data", []string{"trade", "ticker", "kline", "depth"},
		func(ac config.AdapterConfig) (registry.Instance, error) {
			subs := subscription.New(binance.NewProfile(), ac.Connection.BaseURL, clk)
			for _, s := range ac.Subscriptions {
				if _, err := subs.Subscribe(s.Symbol, marketdata.Type(s.Type), subscription.Params{}); err != nil {
					return nil, fmt.Errorf("adapter %s: subscribe %s/%s: %w", ac.Name, s.Symbol, s.Type, err)
				}
			}

			connCfg := connmgr.DefaultConfig()
			connCfg.DialTimeout = ac.Connection.DialTimeout

			conn := connmgr.New(connCfg, clk, log)
			norm := binance.NewNormalizer(clk)
			return adapter.New(ac.Name, conn, subs, norm, engine, clk, log, metrics), nil
		})
}

// adapterURLFn rebuilds the combined-stream URL for an adapter from
// its static startup config. Because subscriptions here never change
// after construction, the URL function always resolves to the same
// built URL rather than recomputing against a live subscription.Manager.
func adapterURLFn(ac config.AdapterConfig) func() (string, error) {
	streams := make([]subscription.StreamName, 0, len(ac.Subscriptions))
	profile := binance.NewProfile()
	for _, s := range ac.Subscriptions {
		name, err := profile.BuildStreamName(s.Symbol, marketdata.Type(s.Type), subscription.Params{})
		if err != nil {
			continue
		}
		streams = append(streams, name)
	}
	return func() (string, error) {
		return subscription.BuildCombinedStreamURL(streams, ac.Connection.BaseURL, subscription.DefaultURLOptions())
	}
}
