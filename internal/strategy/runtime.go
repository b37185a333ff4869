package strategy

import (
	"fmt"
)

// State is the lifecycle state of a strategy runtime.
type State int

const (
	StateUninitialized State = iota
	StateRunning
)

// Runtime hosts one strategy instance for one run and enforces the lifecycle:
// Initialize is called exactly once before the first step, then Next once per
// step. The runtime owns no portfolio state; it is a pure producer of intents.
type Runtime struct {
	strat Strategy
	state State
}

// NewRuntime wraps a strategy instance for a single run.
func NewRuntime(s Strategy) *Runtime {
	return &Runtime{strat: s}
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	return r.state
}

// Initialize transitions UNINITIALIZED -> RUNNING. Calling it twice is a
// programming error.
func (r *Runtime) Initialize(ctx *Context) error {
	if r.state != StateUninitialized {
		return fmt.Errorf("strategy %s already initialized", r.strat.Name())
	}
	if err := r.strat.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing strategy %s: %w", r.strat.Name(), err)
	}
	r.state = StateRunning
	return nil
}

// Next invokes the strategy's per-step callback.
func (r *Runtime) Next(ctx *Context) error {
	if r.state != StateRunning {
		return fmt.Errorf("strategy %s not initialized", r.strat.Name())
	}
	return r.strat.Next(ctx)
}
