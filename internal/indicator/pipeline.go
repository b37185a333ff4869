// Package indicator provides incremental technical indicator computation.
//
// Indicators are registered against an instrument's frame before a run starts.
// Each time a new bar is appended the pipeline updates every indicator for that
// instrument exactly once, and each update appends exactly one derived value to
// the indicator's output series. Past values are never rewritten, so derived
// series obey the same causal contract as raw price series.
package indicator

import (
	"fmt"
	"sync"

	"algame/internal/series"
)

// Indicator is a single-output incremental transform. Update is invoked once
// per new source bar and returns the next derived value, series.Undefined
// while the indicator is inside its warmup window. Implementations carry their
// own accumulator state and must be deterministic pure functions of all prior
// input values and their parameters.
type Indicator interface {
	Name() string
	Update(f *series.Frame) float64
}

// MultiIndicator is an incremental transform with several named outputs
// updated together, e.g. MACD with its signal line.
type MultiIndicator interface {
	Name() string
	Outputs() []string
	Update(f *series.Frame) map[string]float64
}

type registration struct {
	instrument string
	single     Indicator
	multi      MultiIndicator
}

// Pipeline owns all registered indicators and their output series for one run.
type Pipeline struct {
	mu      sync.RWMutex
	regs    []registration
	outputs map[string]map[string]*series.Series // instrument -> indicator name -> output
}

// NewPipeline creates an empty indicator pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		outputs: make(map[string]map[string]*series.Series),
	}
}

// Register attaches a single-output indicator to an instrument and returns its
// output series. Parameter validation happens in the indicator constructors,
// before registration.
func (p *Pipeline) Register(instrument string, ind Indicator) *series.Series {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.regs = append(p.regs, registration{instrument: instrument, single: ind})
	out := series.New(instrument + "." + ind.Name())
	p.instrumentOutputs(instrument)[ind.Name()] = out
	return out
}

// RegisterMulti attaches a multi-output indicator and returns its output
// series keyed by output name.
func (p *Pipeline) RegisterMulti(instrument string, ind MultiIndicator) map[string]*series.Series {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.regs = append(p.regs, registration{instrument: instrument, multi: ind})
	outs := make(map[string]*series.Series, len(ind.Outputs()))
	for _, name := range ind.Outputs() {
		key := ind.Name() + "." + name
		out := series.New(instrument + "." + key)
		p.instrumentOutputs(instrument)[key] = out
		outs[name] = out
	}
	return outs
}

func (p *Pipeline) instrumentOutputs(instrument string) map[string]*series.Series {
	m, ok := p.outputs[instrument]
	if !ok {
		m = make(map[string]*series.Series)
		p.outputs[instrument] = m
	}
	return m
}

// OnBar recomputes every indicator registered for the instrument whose frame
// just received a new bar. Called by the engine once per bar, in registration
// order so chained indicators see their inputs first.
func (p *Pipeline) OnBar(instrument string, f *series.Frame) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, reg := range p.regs {
		if reg.instrument != instrument {
			continue
		}
		if reg.single != nil {
			p.outputs[instrument][reg.single.Name()].Append(reg.single.Update(f))
			continue
		}
		values := reg.multi.Update(f)
		for _, name := range reg.multi.Outputs() {
			p.outputs[instrument][reg.multi.Name()+"."+name].Append(values[name])
		}
	}
}

// Output looks up a registered output series, e.g. "SMA_20" or "MACD_12_26_9.signal".
func (p *Pipeline) Output(instrument, name string) (*series.Series, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	m, ok := p.outputs[instrument]
	if !ok {
		return nil, fmt.Errorf("no indicators registered for %s", instrument)
	}
	out, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("indicator %s not registered for %s", name, instrument)
	}
	return out, nil
}
