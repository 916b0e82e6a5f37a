package registry

import (
	"context"
	"testing"

	"github.com/exchangecollector/core/internal/adapter"
	"github.com/exchangecollector/core/internal/config"
	"github.com/exchangecollector/core/pkg/xlog"
	"github.com/stretchr/testify/require"
)

type fakeInstance struct {
	started bool
	stopped bool
	healthy bool
}

func (f *fakeInstance) Start(ctx context.Context, urlFn func() (string, error)) { f.started = true }
func (f *fakeInstance) Stop(ctx context.Context) error                         { f.stopped = true; return nil }
func (f *fakeInstance) Destroy() error                                         { return nil }
func (f *fakeInstance) Status() adapter.Status                                 { return adapter.StatusConnected }
func (f *fakeInstance) Healthy() bool                                          { return f.healthy }
func (f *fakeInstance) Snapshot() adapter.Metrics                              { return adapter.Metrics{} }

func newFakeFactory() (Factory, *fakeInstance) {
	fi := &fakeInstance{healthy: true}
	return func(cfg config.AdapterConfig) (Instance, error) { return fi, nil }, fi
}

func TestCreateInstanceFailsForUnregisteredAdapter(t *testing.T) {
	r := New(xlog.Noop(), nil)
	_, err := r.CreateInstance(config.AdapterConfig{Name: "missing"})
	require.Error(t, err)
}

func TestCreateInstanceFailsWhenDisabled(t *testing.T) {
	r := New(xlog.Noop(), nil)
	factory, _ := newFakeFactory()
	r.Register("binance", "v1", "binance market data", nil, factory)
	require.NoError(t, r.SetEnabled("binance", false))

	_, err := r.CreateInstance(config.AdapterConfig{Name: "binance"})
	require.Error(t, err)
}

func TestStartAndStopInstanceLifecycle(t *testing.T) {
	r := New(xlog.Noop(), nil)
	factory, fi := newFakeFactory()
	r.Register("binance", "v1", "binance market data", nil, factory)

	_, err := r.CreateInstance(config.AdapterConfig{Name: "binance"})
	require.NoError(t, err)

	require.NoError(t, r.StartInstance(context.Background(), "binance", func() (string, error) { return "wss://x", nil }))
	require.True(t, fi.started)

	require.NoError(t, r.StopInstance(context.Background(), "binance"))
	require.True(t, fi.stopped)
}

func TestStopAllInstancesUsesReverseRegistrationOrder(t *testing.T) {
	r := New(xlog.Noop(), nil)

	var order []string
	makeFactory := func(name string) Factory {
		return func(cfg config.AdapterConfig) (Instance, error) {
			return &orderTrackingInstance{name: name, order: &order}, nil
		}
	}

	r.Register("a", "v1", "", nil, makeFactory("a"))
	r.Register("b", "v1", "", nil, makeFactory("b"))

	_, err := r.CreateInstance(config.AdapterConfig{Name: "a"})
	require.NoError(t, err)
	_, err = r.CreateInstance(config.AdapterConfig{Name: "b"})
	require.NoError(t, err)

	require.NoError(t, r.StartInstance(context.Background(), "a", func() (string, error) { return "", nil }))
	require.NoError(t, r.StartInstance(context.Background(), "b", func() (string, error) { return "", nil }))

	errs := r.StopAllInstances(context.Background())
	require.Empty(t, errs)
	require.Equal(t, []string{"b", "a"}, order)
}

type orderTrackingInstance struct {
	name  string
	order *[]string
}

func (o *orderTrackingInstance) Start(ctx context.Context, urlFn func() (string, error)) {}
func (o *orderTrackingInstance) Stop(ctx context.Context) error {
	*o.order = append(*o.order, o.name)
	return nil
}
func (o *orderTrackingInstance) Destroy() error             { return nil }
func (o *orderTrackingInstance) Status() adapter.Status     { return adapter.StatusConnected }
func (o *orderTrackingInstance) Healthy() bool              { return true }
func (o *orderTrackingInstance) Snapshot() adapter.Metrics  { return adapter.Metrics{} }

func TestGetStatusReportsUnhealthyInstance(t *testing.T) {
	r := New(xlog.Noop(), nil)
	factory, fi := newFakeFactory()
	fi.healthy = false
	r.Register("binance", "v1", "", nil, factory)

	_, err := r.CreateInstance(config.AdapterConfig{Name: "binance"})
	require.NoError(t, err)

	statuses := r.GetStatus()
	require.Len(t, statuses, 1)
	require.False(t, statuses[0].Healthy)
	require.False(t, r.AllHealthy())
}
