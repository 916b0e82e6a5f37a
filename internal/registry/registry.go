// Package registry owns the set of known adapter factories and the
// running instances created from them. It replaces the previous
// init()-time global AdapterMap with an explicitly constructed
// Registry value threaded through the process entrypoint.
package registry

import (
	"context"
	"sync"

	"github.com/exchangecollector/core/internal/adapter"
	"github.com/exchangecollector/core/internal/config"
	"github.com/exchangecollector/core/internal/persistence"
	"github.com/exchangecollector/core/pkg/errkind"
	"github.com/exchangecollector/core/pkg/xlog"
)

// Instance is anything the registry can start, stop, and query health
// for. *adapter.Adapter implements it.
type Instance interface {
	Start(ctx context.Context, urlFn func() (string, error))
	Stop(ctx context.Context) error
	Destroy() error
	Status() adapter.Status
	Healthy() bool
	Snapshot() adapter.Metrics
}

// Factory constructs a new, unstarted Instance from an adapter config.
type Factory func(cfg config.AdapterConfig) (Instance, error)

type entry struct {
	factory     Factory
	version     string
	description string
	enabled     bool
	features    []string
}

type running struct {
	instance Instance
	urlFn    func() (string, error)
}

// Registry tracks adapter factories and their live instances.
type Registry struct {
	log   *xlog.Logger
	store *persistence.LifecycleStore

	mu                sync.Mutex
	entries           map[string]*entry
	instances         map[string]*running
	registrationOrder []string
}

// New builds an empty Registry. store may be nil, in which case
// lifecycle events are not persisted.
func New(log *xlog.Logger, store *persistence.LifecycleStore) *Registry {
	return &Registry{
		log:       log.With("registry"),
		store:     store,
		entries:   make(map[string]*entry),
		instances: make(map[string]*running),
	}
}

// Register adds a named adapter factory. Re-registering an existing
// name replaces its entry without affecting any running instance.
func (r *Registry) Register(name, version, description string, features []string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; !exists {
		r.registrationOrder = append(r.registrationOrder, name)
	}
	r.entries[name] = &entry{factory: factory, version: version, description: description, enabled: true, features: features}
}

// Unregister removes a factory entry. It does not stop any running instance.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// SetEnabled toggles whether createInstance will accept a name.
func (r *Registry) SetEnabled(name string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return errkind.New(errkind.InvalidState, "registry.Registry.SetEnabled", "no such adapter: "+name)
	}
	e.enabled = enabled
	return nil
}

// CreateInstance builds a new Instance for name via its registered
// factory. It fails with InvalidState if name is unregistered,
// disabled, or already has a running instance.
func (r *Registry) CreateInstance(cfg config.AdapterConfig) (Instance, error) {
	const op = "registry.Registry.CreateInstance"

	r.mu.Lock()
	e, ok := r.entries[cfg.Name]
	if !ok {
		r.mu.Unlock()
		return nil, errkind.New(errkind.InvalidState, op, "no such adapter: "+cfg.Name)
	}
	if !e.enabled {
		r.mu.Unlock()
		return nil, errkind.New(errkind.InvalidState, op, "adapter disabled: "+cfg.Name)
	}
	if _, running := r.instances[cfg.Name]; running {
		r.mu.Unlock()
		return nil, errkind.New(errkind.InvalidState, op, "instance already running: "+cfg.Name)
	}
	r.mu.Unlock()

	instance, err := e.factory(cfg)
	if err != nil {
		return nil, errkind.Wrap(errkind.InvalidState, op, "factory failed", err)
	}

	r.mu.Lock()
	r.instances[cfg.Name] = &running{instance: instance}
	r.mu.Unlock()
	return instance, nil
}

// StartInstance starts a previously created instance, dialing via urlFn.
func (r *Registry) StartInstance(ctx context.Context, name string, urlFn func() (string, error)) error {
	r.mu.Lock()
	run, ok := r.instances[name]
	r.mu.Unlock()
	if !ok {
		return errkind.New(errkind.InvalidState, "registry.Registry.StartInstance", "no such instance: "+name)
	}
	run.urlFn = urlFn
	run.instance.Start(ctx, urlFn)
	r.recordTransition(name, "started")
	return nil
}

// StopInstance stops and destroys the named instance.
func (r *Registry) StopInstance(ctx context.Context, name string) error {
	r.mu.Lock()
	run, ok := r.instances[name]
	r.mu.Unlock()
	if !ok {
		return errkind.New(errkind.InvalidState, "registry.Registry.StopInstance", "no such instance: "+name)
	}

	err := run.instance.Stop(ctx)
	if destroyErr := run.instance.Destroy(); destroyErr != nil && err == nil {
		err = destroyErr
	}

	r.mu.Lock()
	delete(r.instances, name)
	r.mu.Unlock()

	r.recordTransition(name, "stopped")
	return err
}

// StartAutoAdapters creates and starts every enabled config, in order.
// It collects and returns every individual failure rather than
// aborting on the first one, so one bad config doesn't block the rest.
func (r *Registry) StartAutoAdapters(ctx context.Context, cfgs []config.AdapterConfig, urlFnFor func(config.AdapterConfig) func() (string, error)) []error {
	var errs []error
	for _, cfg := range cfgs {
		if !cfg.Enabled {
			continue
		}
		if _, err := r.CreateInstance(cfg); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := r.StartInstance(ctx, cfg.Name, urlFnFor(cfg)); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// StopAllInstances stops every running instance in the reverse order
// their adapters were registered.
func (r *Registry) StopAllInstances(ctx context.Context) []error {
	r.mu.Lock()
	order := make([]string, len(r.registrationOrder))
	copy(order, r.registrationOrder)
	r.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		r.mu.Lock()
		_, ok := r.instances[name]
		r.mu.Unlock()
		if !ok {
			continue
		}
		if err := r.StopInstance(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Status is the aggregated, per-instance health the getStatus
// operation exposes.
type Status struct {
	Name    string          `json:"name"`
	Healthy bool            `json:"healthy"`
	Metrics adapter.Metrics `json:"metrics"`
}

// GetStatus returns one Status per running instance.
func (r *Registry) GetStatus() []Status {
	r.mu.Lock()
	names := make([]string, 0, len(r.instances))
	runs := make([]*running, 0, len(r.instances))
	for name, run := range r.instances {
		names = append(names, name)
		runs = append(runs, run)
	}
	r.mu.Unlock()

	out := make([]Status, 0, len(names))
	for i, name := range names {
		out = append(out, Status{Name: name, Healthy: runs[i].instance.Healthy(), Metrics: runs[i].instance.Snapshot()})
	}
	return out
}

// AllHealthy reports whether every running instance is healthy. An
// empty registry counts as healthy.
func (r *Registry) AllHealthy() bool {
	for _, s := range r.GetStatus() {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// recordTransition appends a best-effort lifecycle event. A
// persistence failure is logged and otherwise ignored: it must never
// block or fail the registry operation that triggered it.
func (r *Registry) recordTransition(name, event string) {
	if r.store == nil {
		return
	}
	if err := r.store.RecordTransition(context.Background(), name, event); err != nil {
		r.log.WithStr("adapter_name", name).Warn().Err(err).Msg("failed to persist lifecycle transition")
	}
}
