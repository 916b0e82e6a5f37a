// Package cachesink keeps the most recent MarketData records per
// (exchange, symbol, type) tag in memory, shaped like a small
// Set/GetLatest/Size/Clear cache interface but backed by a plain ring
// buffer per key instead of redis, since no redis client is among
// this codebase's dependencies.
package cachesink

import (
	"container/ring"
	"context"
	"sync"
	"time"

	"github.com/exchangecollector/core/internal/config"
	"github.com/exchangecollector/core/internal/dataflow"
	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/pkg/clock"
)

type entry struct {
	record    marketdata.MarketData
	expiresAt time.Time
}

// Sink is an in-memory, TTL-bounded, per-tag ring buffer of the most
// recent N records the engine has delivered to it.
type Sink struct {
	name string
	clk  clock.Clock
	cfg  config.CacheSinkConfig

	mu      sync.Mutex
	buffers map[string]*ring.Ring
}

// New builds a Sink holding at most cfg.MaxEntriesPerKey records per
// routing tag, each expiring after cfg.TTL.
func New(name string, clk clock.Clock, cfg config.CacheSinkConfig) *Sink {
	return &Sink{name: name, clk: clk, cfg: cfg, buffers: make(map[string]*ring.Ring)}
}

func (s *Sink) Name() string { return s.name }

// Write appends each message in batch to its tag's ring buffer,
// evicting the oldest entry once a buffer reaches MaxEntriesPerKey.
// Never returns an error: a full in-memory cache has no failure mode
// worth retrying.
func (s *Sink) Write(_ context.Context, batch []dataflow.DataFlowMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, msg := range batch {
		m := msg.Data
		tag := m.Tag()
		r, ok := s.buffers[tag]
		if !ok {
			r = ring.New(s.cfg.MaxEntriesPerKey)
			s.buffers[tag] = r
		}

		r.Value = entry{record: m, expiresAt: s.clk.Now().Add(s.cfg.TTL)}
		s.buffers[tag] = r.Next()
	}
	return nil
}

// Health always reports true: an in-memory cache has no external
// dependency to fail.
func (s *Sink) Health() bool { return true }

// Close clears every cached tag.
func (s *Sink) Close(context.Context) error {
	s.Clear()
	return nil
}

// GetLatest returns up to size of the most recent, non-expired records
// for tag, newest first.
func (s *Sink) GetLatest(tag string, size int) []marketdata.MarketData {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.buffers[tag]
	if !ok {
		return nil
	}

	now := s.clk.Now()
	out := make([]marketdata.MarketData, 0, size)
	cur := r.Prev()
	for i := 0; i < r.Len() && len(out) < size; i++ {
		if e, ok := cur.Value.(entry); ok && now.Before(e.expiresAt) {
			out = append(out, e.record)
		}
		cur = cur.Prev()
	}
	return out
}

// Size reports the number of distinct routing tags currently cached.
func (s *Sink) Size() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.buffers))
}

// Clear drops every cached tag.
func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers = make(map[string]*ring.Ring)
}
