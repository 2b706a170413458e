// Package modules adapts the teacher's pluggable-module registry into a
// registry of EventBus subscribers that can be registered and enabled at
// runtime, the same named-component shape narrowed to wakegate's one
// extensibility point: what happens to an emitted event. There is no
// disable: once enabled, a subscriber stays on the bus.
package modules

import (
	"sync"

	"emperror.dev/errors"

	"github.com/hollowreach/wakegate/internal/eventbus"
)

// Subscriber is a named, independently enableable eventbus.Sink.
type Subscriber interface {
	eventbus.Sink
	Name() string
	Description() string
}

// Registry tracks every registered Subscriber and which ones are
// currently wired into the bus, mirroring the register/enable half of
// the teacher's surface without the database-backed persistence layer
// wakegate has no use for. Enabled subscribers cannot be disabled.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]Subscriber
	enabled map[string]bool
	bus     *eventbus.Bus
}

func NewRegistry(bus *eventbus.Bus) *Registry {
	return &Registry{
		byName:  make(map[string]Subscriber),
		enabled: make(map[string]bool),
		bus:     bus,
	}
}

// Register adds s to the registry without enabling it.
func (r *Registry) Register(s Subscriber) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[s.Name()]; exists {
		return errors.Errorf("subscriber %q already registered", s.Name())
	}
	r.byName[s.Name()] = s
	return nil
}

// Enable wires a registered subscriber into the bus. Idempotent.
func (r *Registry) Enable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byName[name]
	if !ok {
		return errors.Errorf("subscriber %q is not registered", name)
	}
	if r.enabled[name] {
		return nil
	}
	r.bus.Subscribe(s)
	r.enabled[name] = true
	return nil
}

// List returns the name and enabled state of every registered subscriber.
func (r *Registry) List() map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]bool, len(r.byName))
	for name := range r.byName {
		out[name] = r.enabled[name]
	}
	return out
}

// Get returns a registered subscriber by name.
func (r *Registry) Get(name string) (Subscriber, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}
