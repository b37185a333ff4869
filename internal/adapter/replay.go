package adapter

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"algame/internal/config"
	"algame/internal/engine"
	"algame/internal/errors"
	"algame/internal/exec"
	"algame/internal/indicator"
	"algame/internal/models"
	"algame/internal/portfolio"
	"algame/internal/series"
	"algame/internal/strategy"
)

// Replay is an alternate backtesting backend with trade-on-close semantics:
// intents emitted while observing bar t fill at bar t's closing price, the
// way simple signal-replay backtesters work. It is restricted to one
// instrument, long-only market orders. Strategies run unchanged through the
// same Strategy interface; only the execution model differs.
type Replay struct {
	log zerolog.Logger

	mu      sync.Mutex
	strat   strategy.Strategy
	data    map[string][]models.Bar
	results map[RunHandle]*engine.Results
	next    RunHandle
}

// NewReplay creates a replay backend.
func NewReplay(logger zerolog.Logger) *Replay {
	return &Replay{
		log:     logger,
		results: make(map[RunHandle]*engine.Results),
	}
}

func (r *Replay) Name() string {
	return "replay"
}

func (r *Replay) Capabilities() Capabilities {
	return Capabilities{}
}

func (r *Replay) LoadStrategy(s strategy.Strategy) error {
	if err := checkRequirements(r.Name(), r.Capabilities(), s); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strat = s
	return nil
}

func (r *Replay) LoadData(data map[string][]models.Bar) error {
	if len(data) == 0 {
		return errors.ErrNoData
	}
	if len(data) > 1 {
		return adapterErr(r.Name(), "multi-asset data")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = data
	return nil
}

func (r *Replay) Run(ctx context.Context, cfg config.RunConfig) (RunHandle, error) {
	r.mu.Lock()
	strat, data := r.strat, r.data
	r.mu.Unlock()

	if strat == nil {
		return 0, errors.Wrap(errors.ErrNotRunning, "no strategy loaded")
	}
	if data == nil {
		return 0, errors.ErrNoData
	}
	if err := cfg.Validate(); err != nil {
		return 0, errors.Wrap(err, "invalid run config")
	}

	results, err := r.simulate(ctx, strat, data, cfg)
	if err != nil {
		return 0, err
	}
	results.Backend = r.Name()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.results[r.next] = results
	return r.next, nil
}

func (r *Replay) Results(h RunHandle) (*engine.Results, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.results[h]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotRunning, "unknown run handle %d", h)
	}
	return res, nil
}

func (r *Replay) simulate(ctx context.Context, strat strategy.Strategy, data map[string][]models.Bar, cfg config.RunConfig) (*engine.Results, error) {
	var instrument string
	var bars []models.Bar
	for name, b := range data {
		instrument, bars = name, b
	}
	if len(bars) == 0 {
		return nil, errors.ErrNoData
	}

	frame := series.NewFrame(instrument)
	frames := map[string]*series.Frame{instrument: frame}
	pipe := indicator.NewPipeline()
	ledger := portfolio.NewLedger(cfg.InitialCash)
	model := exec.NewModel(cfg)
	sctx := strategy.NewContext(frames, pipe, ledger)
	rt := strategy.NewRuntime(strat)

	if err := rt.Initialize(sctx); err != nil {
		return nil, err
	}

	var diagnostics []models.Diagnostic
	incomplete := false

	for step, bar := range bars {
		if ctx.Err() != nil {
			incomplete = true
			break
		}

		frame.Append(bar)
		pipe.OnBar(instrument, frame)

		sctx.Advance(step, bar.Timestamp, []string{instrument})
		if err := rt.Next(sctx); err != nil {
			var causality *errors.CausalityError
			if errors.As(err, &causality) {
				return nil, errors.Wrap(err, "strategy read future data")
			}
			diagnostics = append(diagnostics, models.Diagnostic{
				Step: step, Timestamp: bar.Timestamp, Reason: "strategy_error", Detail: err.Error(),
			})
		}

		// Trade on close: fill this step's intents at this bar's close.
		for _, intent := range sctx.TakeIntents() {
			if diag := r.settle(model, ledger, intent, bar, step); diag != nil {
				diagnostics = append(diagnostics, *diag)
			}
		}

		ledger.MarkToMarket(map[string]float64{instrument: bar.Close}, bar.Timestamp)
	}

	if !incomplete {
		for _, pos := range ledger.Positions() {
			last := bars[len(bars)-1]
			ledger.Settle(*model.ExitFill(pos, last, last.Close, "end_of_data"))
		}
	}

	return &engine.Results{
		Strategy:    strat.Name(),
		EquityCurve: ledger.EquityCurve(),
		Fills:       ledger.Fills(),
		Trades:      ledger.Trades(),
		Metrics:     engine.CalculateMetrics(ledger.EquityCurve(), ledger.Trades(), ledger.InitialCash()),
		Diagnostics: diagnostics,
		Incomplete:  incomplete,
	}, nil
}

// settle executes one intent at the bar close, skipping features this backend
// cannot represent.
func (r *Replay) settle(model *exec.Model, ledger *portfolio.Ledger, intent models.OrderIntent, bar models.Bar, step int) *models.Diagnostic {
	if intent.Limit > 0 || intent.StopLoss > 0 || intent.TakeProfit > 0 {
		return &models.Diagnostic{
			Step:       step,
			Timestamp:  bar.Timestamp,
			Instrument: intent.Instrument,
			Reason:     "unsupported_feature",
			Detail:     "replay backend fills market orders only",
		}
	}

	// Price everything at the close by synthesizing a bar opening there.
	closeBar := bar
	closeBar.Open = bar.Close
	fill, err := model.Execute(intent, closeBar, ledger)
	if err != nil {
		reason := "order_rejected"
		if errors.Is(err, errors.ErrInsufficientFunds) {
			reason = "insufficient_funds"
		}
		return &models.Diagnostic{
			Step:       step,
			Timestamp:  bar.Timestamp,
			Instrument: intent.Instrument,
			Reason:     reason,
			Detail:     err.Error(),
		}
	}
	if fill != nil {
		ledger.Settle(*fill)
	}
	return nil
}
