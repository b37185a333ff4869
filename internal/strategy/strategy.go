// Package strategy defines the Strategy interface for trading strategies and
// provides a Registry for managing multiple strategy implementations.
package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Strategy is the capability interface all strategies satisfy. The runtime
// holds strategy instances opaquely and never reaches into their internals;
// strategies keep whatever state they need across callbacks.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Initialize is called exactly once, before the first simulated step.
	// Use it to register indicators and set up strategy state.
	Initialize(ctx *Context) error

	// Next is called once per simulated step with the causal view of all
	// instruments. It reads series and indicators and emits order intents;
	// it never touches portfolio state directly.
	Next(ctx *Context) error
}

// Builder constructs a strategy instance from a parameter set, so sweeps and
// optimizations can build independent instances per run.
type Builder func(params map[string]float64) (Strategy, error)

// Registry holds named strategy builders for lookup and enumeration.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds a strategy builder under the given name.
func (r *Registry) Register(name string, b Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[name] = b
}

// Build constructs a fresh strategy instance by name.
func (r *Registry) Build(name string, params map[string]float64) (Strategy, error) {
	r.mu.RLock()
	b, ok := r.builders[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q not registered", name)
	}
	return b(params)
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
