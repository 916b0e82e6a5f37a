package subscription

import (
	"fmt"
	"sync"
	"time"

	"github.com/exchangecollector/core/internal/marketdata"
	"github.com/exchangecollector/core/pkg/clock"
	"github.com/exchangecollector/core/pkg/errkind"
	"github.com/google/uuid"
)

// Manager owns the Profile for one exchange, translates
// abstract subscriptions into StreamNames, and tracks each
// Subscription's lifecycle. It is safe for concurrent
// use, guarding its subscription maps with a sync.RWMutex.
type Manager struct {
	profile Profile
	baseURL string
	clk     clock.Clock

	mu     sync.RWMutex
	byID   map[string]*Subscription
	byName map[StreamName]*Subscription
}

// New builds a Manager for the given exchange Profile.
func New(profile Profile, baseURL string, clk clock.Clock) *Manager {
	return &Manager{
		profile: profile,
		baseURL: baseURL,
		clk:     clk,
		byID:    make(map[string]*Subscription),
		byName:  make(map[StreamName]*Subscription),
	}
}

// Subscribe creates a new pending Subscription for (symbol, dataType,
// params). If the stream is already subscribed it returns the existing
// Subscription; it rejects the stream if adding it would exceed the
// profile's per-connection stream cap.
func (m *Manager) Subscribe(symbol string, dataType marketdata.Type, params Params) (*Subscription, error) {
	const op = "subscription.Manager.Subscribe"

	name, err := m.profile.BuildStreamName(symbol, dataType, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byName[name]; ok {
		return existing, nil
	}

	if len(m.byName) >= m.profile.MaxStreamsPerConnection() {
		return nil, errkind.New(errkind.TooManyStreams, op,
			fmt.Sprintf("adding stream %q would exceed limit of %d", name, m.profile.MaxStreamsPerConnection()))
	}

	sub := &Subscription{
		ID:           uuid.NewString(),
		Original:     Original{Symbol: symbol, Type: dataType, Params: params},
		StreamName:   name,
		Status:       StatusPending,
		SubscribedAt: m.clk.Now(),
	}
	m.byID[sub.ID] = sub
	m.byName[name] = sub

	return sub, nil
}

// Unsubscribe removes the Subscription by ID, marking it cancelled.
// A cancelled subscription is terminal and destroyed.
func (m *Manager) Unsubscribe(id string) error {
	const op = "subscription.Manager.Unsubscribe"

	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.byID[id]
	if !ok {
		return errkind.New(errkind.InvalidState, op, "no such subscription: "+id)
	}

	sub.MarkCancelled()
	delete(m.byID, id)
	delete(m.byName, sub.StreamName)
	return nil
}

// ByStreamName looks up the Subscription owning a wire-level stream
// name, used to update message/error counters per frame.
func (m *Manager) ByStreamName(name StreamName) (*Subscription, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.byName[name]
	return sub, ok
}

// ActiveStreamNames returns the current set of stream names this
// manager is tracking, used to rebuild the combined-stream URL after
// a reconnect.
func (m *Manager) ActiveStreamNames() []StreamName {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]StreamName, 0, len(m.byName))
	for name := range m.byName {
		names = append(names, name)
	}
	return names
}

// BuildURL builds the combined-stream URL for the manager's current
// stream set using this manager's Profile-derived cap.
func (m *Manager) BuildURL(opts URLOptions) (string, error) {
	if opts.MaxStreams <= 0 {
		opts.MaxStreams = m.profile.MaxStreamsPerConnection()
	}
	return BuildCombinedStreamURL(m.ActiveStreamNames(), m.baseURL, opts)
}

// MarkConnectionAssigned records which ConnectionManager instance
// currently carries a subscription.
func (m *Manager) MarkConnectionAssigned(id, connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.byID[id]; ok {
		sub.ConnectionID = connectionID
	}
}

// RecordFrame marks a subscription active and bumps its message
// counter on receipt of a frame for its stream name.
func (m *Manager) RecordFrame(name StreamName, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.byName[name]; ok {
		sub.RecordMessage(at)
	}
}

// RecordFrameError bumps a subscription's error counter and, if the
// caller indicates the failure is terminal, marks it failed.
func (m *Manager) RecordFrameError(name StreamName, terminal bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.byName[name]; ok {
		sub.RecordError()
		if terminal {
			sub.MarkFailed()
		}
	}
}

// Snapshot returns a copy of every tracked Subscription, for health
// reporting and the proxy's `getStats` response.
func (m *Manager) Snapshot() []Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Subscription, 0, len(m.byID))
	for _, sub := range m.byID {
		out = append(out, *sub)
	}
	return out
}
