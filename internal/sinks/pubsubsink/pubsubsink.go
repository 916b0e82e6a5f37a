// Package pubsubsink delivers MarketData records to a NATS JetStream
// subject, grouping kline intervals onto one topic and attaching
// routing attributes as NATS message headers.
package pubsubsink

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/exchangecollector/core/internal/config"
	"github.com/exchangecollector/core/internal/dataflow"
	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/pkg/errkind"
	"github.com/nats-io/nats.go"
)

// unhealthyThreshold is the number of consecutive publish failures
// after which Health reports false.
const unhealthyThreshold = 5

// Publisher is the subset of a JetStream context the sink needs, kept
// narrow so it can be faked in tests without a running NATS server.
type Publisher interface {
	PublishMsg(m *nats.Msg) (*nats.PubAck, error)
}

// Sink publishes every record it is given to a derived NATS subject.
// The underlying JetStream connection is owned by whoever constructs
// the Sink; Close does not tear it down.
type Sink struct {
	name string
	pub  Publisher
	cfg  config.PubSubConfig

	consecutiveFailures atomic.Int64
}

// New builds a Sink over an already-connected JetStream publisher.
func New(name string, pub Publisher, cfg config.PubSubConfig) *Sink {
	return &Sink{name: name, pub: pub, cfg: cfg}
}

func (s *Sink) Name() string { return s.name }

// Write publishes every message in batch to its derived subject,
// returning on the first failure. It classifies nats errors as
// SinkTransient so the engine retries them; callers needing
// permanent-failure semantics should wrap the Publisher to surface
// errkind.SinkPermanent where appropriate.
func (s *Sink) Write(ctx context.Context, batch []dataflow.DataFlowMessage) error {
	for _, msg := range batch {
		if err := s.publish(msg.Data); err != nil {
			s.consecutiveFailures.Add(1)
			return err
		}
	}
	s.consecutiveFailures.Store(0)
	return nil
}

func (s *Sink) publish(m marketdata.MarketData) error {
	body, err := json.Marshal(m)
	if err != nil {
		return errkind.Wrap(errkind.DataParsing, "pubsubsink.Sink.Write", "marshal market data", err)
	}

	msg := nats.NewMsg(subject(s.cfg.TopicPrefix, m))
	msg.Data = body
	msg.Header.Set("exchange", m.Exchange)
	msg.Header.Set("symbol", m.Symbol)
	msg.Header.Set("type", string(m.Type))
	msg.Header.Set("timestamp", strconv.FormatInt(m.EventTimestamp, 10))
	msg.Header.Set("source", s.cfg.Source)
	if s.cfg.OrderingEnabled {
		msg.Header.Set(nats.MsgIdHdr, m.Tag()+":"+strconv.FormatInt(m.EventTimestamp, 10))
	}

	if _, err := s.pub.PublishMsg(msg); err != nil {
		return errkind.Wrap(errkind.SinkTransient, "pubsubsink.Sink.Write", "publish to jetstream", err)
	}
	return nil
}

// Health reports false once publishing has failed unhealthyThreshold
// times in a row without an intervening success.
func (s *Sink) Health() bool {
	return s.consecutiveFailures.Load() < unhealthyThreshold
}

// Close is a no-op: the JetStream connection this Sink publishes over
// is owned and closed by whatever constructed it.
func (s *Sink) Close(ctx context.Context) error { return nil }

// subject derives "<prefix>-<bucket>-<exchange>" where bucket collapses
// every kline_* type down to "kline" so all intervals of one exchange
// share a subject.
func subject(prefix string, m marketdata.MarketData) string {
	bucket := string(m.Type)
	if m.Type.IsKline() {
		bucket = "kline"
	}
	return strings.Join([]string{prefix, bucket, m.Exchange}, "-")
}
