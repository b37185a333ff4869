// Package engine drives event-driven backtest simulations.
//
// A run advances one synchronized logical clock across all instruments. Each
// step appends the bars trading at that timestamp, recomputes indicators,
// settles the previous step's intents against this step's opening prices,
// invokes the strategy once, and marks the portfolio to market. Execution
// lagging intents by one step is what makes the simulation causal: nothing
// the strategy observed at step t can influence a price before step t+1.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"algame/internal/config"
	"algame/internal/errors"
	"algame/internal/exec"
	"algame/internal/indicator"
	"algame/internal/models"
	"algame/internal/portfolio"
	"algame/internal/series"
	"algame/internal/strategy"
)

// Engine runs backtest simulations. One Engine may run many times; each call
// to Run owns all of its state, so independent runs are safe in parallel.
type Engine struct {
	cfg config.RunConfig
	log zerolog.Logger
}

// New creates an engine with the given run options.
func New(cfg config.RunConfig, logger zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, log: logger}
}

// Run executes a full backtest of the strategy over the given per-instrument
// bar sequences. Bars must be ordered by strictly increasing timestamp per
// instrument; gaps are tolerated as non-trading steps unless strict data mode
// is configured. Cancellation is cooperative: the context is checked once per
// step and an early stop yields partial results marked incomplete.
func (e *Engine) Run(ctx context.Context, strat strategy.Strategy, data map[string][]models.Bar) (*Results, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid run config")
	}
	if err := validateData(data); err != nil {
		return nil, err
	}

	clock := buildClock(data)
	if len(clock) == 0 {
		return nil, errors.ErrNoData
	}

	frames := make(map[string]*series.Frame, len(data))
	cursors := make(map[string]int, len(data))
	for instrument := range data {
		frames[instrument] = series.NewFrame(instrument)
	}

	pipe := indicator.NewPipeline()
	ledger := portfolio.NewLedger(e.cfg.InitialCash)
	model := exec.NewModel(e.cfg)
	sctx := strategy.NewContext(frames, pipe, ledger)
	rt := strategy.NewRuntime(strat)

	// Initialize before the first bar so indicators registered here observe
	// the entire series.
	if err := rt.Initialize(sctx); err != nil {
		return nil, err
	}

	run := &runState{
		engine:  e,
		model:   model,
		ledger:  ledger,
		pending: make(map[string]models.OrderIntent),
	}

	started := time.Now()
	incomplete := false

	for step, ts := range clock {
		if ctx.Err() != nil {
			e.log.Warn().Int("step", step).Msg("run cancelled")
			incomplete = true
			break
		}

		bars := make(map[string]models.Bar)
		active := make([]string, 0, len(data))
		for instrument, instBars := range data {
			cur := cursors[instrument]
			if cur < len(instBars) && instBars[cur].Timestamp.Equal(ts) {
				bars[instrument] = instBars[cur]
				cursors[instrument] = cur + 1
				active = append(active, instrument)
				continue
			}
			// A gap: the instrument has traded before and will trade again,
			// but has no bar at this timestamp.
			if e.cfg.StrictData && frames[instrument].Len() > 0 && cur < len(instBars) {
				return nil, errors.NewDataGapError(instrument, step)
			}
		}
		sort.Strings(active)

		// (1) Append new bars; (2) incremental indicator recompute.
		for _, instrument := range active {
			frames[instrument].Append(bars[instrument])
			pipe.OnBar(instrument, frames[instrument])
		}

		// (3) Settle intents queued at the previous step against this
		// step's opens, then monitor stops against this bar's range.
		run.settlePending(step, bars)
		run.checkStops(step, bars)

		// (4) One strategy callback per step, full multi-instrument view.
		sctx.Advance(step, ts, active)
		if err := rt.Next(sctx); err != nil {
			var causality *errors.CausalityError
			if errors.As(err, &causality) {
				return nil, errors.Wrap(err, "strategy read future data")
			}
			// Non-causal strategy errors do not abort the run.
			e.log.Warn().Err(err).Int("step", step).Msg("strategy error")
			run.diagnostics = append(run.diagnostics, models.Diagnostic{
				Step: step, Timestamp: ts, Reason: "strategy_error", Detail: err.Error(),
			})
		}
		for _, intent := range sctx.TakeIntents() {
			run.pending[intent.Instrument] = intent
		}

		// (5) Mark-to-market: exactly one equity point per step.
		prices := make(map[string]float64, len(active))
		for _, instrument := range active {
			prices[instrument] = bars[instrument].Close
		}
		ledger.MarkToMarket(prices, ts)
	}

	if !incomplete {
		run.dropPending(len(clock)-1, clock[len(clock)-1])
		run.liquidate(data)
	}

	results := e.finalize(strat.Name(), ledger, run.diagnostics, incomplete)
	e.log.Info().
		Str("strategy", strat.Name()).
		Int("steps", len(ledger.EquityCurve())).
		Int("trades", len(results.Trades)).
		Dur("elapsed", time.Since(started)).
		Bool("incomplete", incomplete).
		Msg("run finished")
	return results, nil
}

// runState carries the mutable per-run execution state.
type runState struct {
	engine      *Engine
	model       *exec.Model
	ledger      *portfolio.Ledger
	pending     map[string]models.OrderIntent
	diagnostics []models.Diagnostic
}

// settlePending executes queued intents for instruments that have a bar this
// step. Intents for instruments not trading this step stay queued until the
// instrument's next available price.
func (r *runState) settlePending(step int, bars map[string]models.Bar) {
	if len(r.pending) == 0 {
		return
	}
	instruments := make([]string, 0, len(r.pending))
	for instrument := range r.pending {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)

	for _, instrument := range instruments {
		bar, ok := bars[instrument]
		if !ok {
			continue
		}
		intent := r.pending[instrument]
		delete(r.pending, instrument)

		fill, err := r.model.Execute(intent, bar, r.ledger)
		if err != nil {
			reason := "order_rejected"
			if errors.Is(err, errors.ErrInsufficientFunds) {
				reason = "insufficient_funds"
			}
			r.engine.log.Debug().Err(err).Str("instrument", instrument).Int("step", step).Msg("intent rejected")
			r.diagnostics = append(r.diagnostics, models.Diagnostic{
				Step:       step,
				Timestamp:  bar.Timestamp,
				Instrument: instrument,
				Reason:     reason,
				Detail:     err.Error(),
			})
			continue
		}
		if fill == nil {
			continue // intent lapsed, e.g. close on a flat position
		}
		r.ledger.Settle(*fill)
		if intent.Side == models.SideBuy || intent.Side == models.SideSell {
			r.ledger.AttachStops(instrument, intent.StopLoss, intent.TakeProfit)
		}
	}
}

// dropPending records a diagnostic for every intent that still had no bar to
// settle against when the clock ran out, so no skipped order goes unexplained.
func (r *runState) dropPending(step int, ts time.Time) {
	if len(r.pending) == 0 {
		return
	}
	instruments := make([]string, 0, len(r.pending))
	for instrument := range r.pending {
		instruments = append(instruments, instrument)
	}
	sort.Strings(instruments)

	for _, instrument := range instruments {
		intent := r.pending[instrument]
		delete(r.pending, instrument)
		r.diagnostics = append(r.diagnostics, models.Diagnostic{
			Step:       step,
			Timestamp:  ts,
			Instrument: instrument,
			Reason:     "never_filled",
			Detail:     fmt.Sprintf("%s intent had no later bar to fill against", intent.Side),
		})
	}
}

// checkStops tests every open position against its instrument's new bar.
func (r *runState) checkStops(step int, bars map[string]models.Bar) {
	for _, pos := range r.ledger.Positions() {
		bar, ok := bars[pos.Instrument]
		if !ok {
			continue
		}
		if fill := r.model.CheckStops(pos, bar); fill != nil {
			r.ledger.Settle(*fill)
		}
	}
}

// liquidate closes any position still open when the data ends, at the
// instrument's final close.
func (r *runState) liquidate(data map[string][]models.Bar) {
	for _, pos := range r.ledger.Positions() {
		bars := data[pos.Instrument]
		if len(bars) == 0 {
			continue
		}
		last := bars[len(bars)-1]
		fill := r.model.ExitFill(pos, last, last.Close, "end_of_data")
		r.ledger.Settle(*fill)
	}
}

// buildClock returns the sorted union of all instruments' timestamps.
func buildClock(data map[string][]models.Bar) []time.Time {
	seen := make(map[int64]time.Time)
	for _, bars := range data {
		for _, bar := range bars {
			seen[bar.Timestamp.UnixNano()] = bar.Timestamp
		}
	}
	clock := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		clock = append(clock, ts)
	}
	sort.Slice(clock, func(i, j int) bool { return clock[i].Before(clock[j]) })
	return clock
}

// validateData checks the data-ingestion contract before the run starts.
func validateData(data map[string][]models.Bar) error {
	if len(data) == 0 {
		return errors.ErrNoData
	}
	for instrument, bars := range data {
		for i := 1; i < len(bars); i++ {
			if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
				return fmt.Errorf("%s: bar timestamps not strictly increasing at index %d", instrument, i)
			}
		}
	}
	return nil
}
