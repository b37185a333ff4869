package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"algame/internal/config"
	"algame/internal/errors"
	"algame/internal/models"
	"algame/internal/strategy"
)

var start = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// dailyBars builds one bar per day from closes; the open is the previous
// close so next-bar-open fills are easy to assert.
func dailyBars(closes ...float64) []models.Bar {
	bars := make([]models.Bar, len(closes))
	prev := closes[0]
	for i, c := range closes {
		hi, lo := math.Max(prev, c)+1, math.Min(prev, c)-1
		bars[i] = models.Bar{
			Timestamp: start.AddDate(0, 0, i),
			Open:      prev,
			High:      hi,
			Low:       lo,
			Close:     c,
			Volume:    1000,
		}
		prev = c
	}
	return bars
}

// scripted is a strategy driven by a per-step callback.
type scripted struct {
	name string
	init func(ctx *strategy.Context) error
	next func(ctx *strategy.Context) error
}

func (s *scripted) Name() string {
	if s.name != "" {
		return s.name
	}
	return "scripted"
}

func (s *scripted) Initialize(ctx *strategy.Context) error {
	if s.init != nil {
		return s.init(ctx)
	}
	return nil
}

func (s *scripted) Next(ctx *strategy.Context) error {
	if s.next != nil {
		return s.next(ctx)
	}
	return nil
}

func testEngine(t *testing.T, mutate func(*config.RunConfig)) *Engine {
	t.Helper()
	cfg := config.DefaultRunConfig()
	cfg.InitialCash = 10_000
	cfg.CommissionRate = 0
	if mutate != nil {
		mutate(&cfg)
	}
	return New(cfg, zerolog.Nop())
}

func TestZeroTradeRun(t *testing.T) {
	e := testEngine(t, nil)
	data := map[string][]models.Bar{"SPY": dailyBars(100, 102, 101, 105, 107)}

	results, err := e.Run(context.Background(), &scripted{}, data)
	if err != nil {
		t.Fatal(err)
	}

	if len(results.EquityCurve) != 5 {
		t.Fatalf("equity points = %d, want one per step", len(results.EquityCurve))
	}
	for _, p := range results.EquityCurve {
		if p.Equity != 10_000 {
			t.Fatalf("equity moved to %v with no trades", p.Equity)
		}
	}
	if results.Metrics[MetricTotalReturn] != 0 {
		t.Errorf("total return = %v, want 0", results.Metrics[MetricTotalReturn])
	}
	if results.Metrics[MetricTotalTrades] != 0 {
		t.Errorf("total trades = %v, want 0", results.Metrics[MetricTotalTrades])
	}
	if len(results.Fills) != 0 || len(results.Trades) != 0 {
		t.Error("zero-trade run produced fills or trades")
	}
	if results.Incomplete {
		t.Error("run marked incomplete")
	}
}

func TestIntentFillsAtNextBarOpen(t *testing.T) {
	e := testEngine(t, func(cfg *config.RunConfig) { cfg.CommissionRate = 0.001 })
	data := map[string][]models.Bar{"SPY": dailyBars(100, 102, 101, 105, 107)}

	strat := &scripted{next: func(ctx *strategy.Context) error {
		if ctx.Step() == 2 {
			ctx.Buy("SPY", strategy.Order{Size: 10})
		}
		return nil
	}}

	results, err := e.Run(context.Background(), strat, data)
	if err != nil {
		t.Fatal(err)
	}

	if len(results.Fills) < 1 {
		t.Fatal("expected an entry fill")
	}
	entry := results.Fills[0]
	// Intent queued at step 2 settles at step 3's open, which is step 2's close.
	if !entry.Timestamp.Equal(start.AddDate(0, 0, 3)) {
		t.Errorf("fill time = %v, want step 3", entry.Timestamp)
	}
	if entry.Price != 101 {
		t.Errorf("fill price = %v, want step 3 open 101", entry.Price)
	}
	wantCommission := 0.001 * 101 * 10
	if math.Abs(entry.Commission-wantCommission) > 1e-9 {
		t.Errorf("commission = %v, want %v", entry.Commission, wantCommission)
	}

	// Equity at step 3 reflects the new position at that close.
	eq3 := results.EquityCurve[3].Equity
	want := 10_000 - 101*10*1.001 + 10*105.0
	if math.Abs(eq3-want) > 1e-9 {
		t.Errorf("step 3 equity = %v, want %v", eq3, want)
	}
}

func TestEndOfDataLiquidation(t *testing.T) {
	e := testEngine(t, nil)
	data := map[string][]models.Bar{"SPY": dailyBars(100, 102, 101, 105, 107)}

	strat := &scripted{next: func(ctx *strategy.Context) error {
		if ctx.Step() == 0 {
			ctx.Buy("SPY", strategy.Order{Size: 10})
		}
		return nil
	}}

	results, err := e.Run(context.Background(), strat, data)
	if err != nil {
		t.Fatal(err)
	}

	last := results.Fills[len(results.Fills)-1]
	if last.Reason != "end_of_data" {
		t.Fatalf("last fill reason = %q, want end_of_data", last.Reason)
	}
	if last.Price != 107 {
		t.Errorf("liquidation price = %v, want final close 107", last.Price)
	}
	if len(results.Trades) != 1 {
		t.Fatalf("trades = %d, want 1 round trip", len(results.Trades))
	}
	// Entry at step 1 open (100), exit at 107.
	tr := results.Trades[0]
	if tr.EntryPrice != 100 || tr.ExitPrice != 107 {
		t.Errorf("trade = %v -> %v, want 100 -> 107", tr.EntryPrice, tr.ExitPrice)
	}
	if tr.PnL != 70 {
		t.Errorf("pnl = %v, want 70", tr.PnL)
	}
}

func TestInsufficientFundsDiagnostic(t *testing.T) {
	e := testEngine(t, nil)
	data := map[string][]models.Bar{"SPY": dailyBars(100, 102, 101, 105, 107)}

	strat := &scripted{next: func(ctx *strategy.Context) error {
		if ctx.Step() == 1 {
			ctx.Buy("SPY", strategy.Order{Size: 10_000})
		}
		return nil
	}}

	results, err := e.Run(context.Background(), strat, data)
	if err != nil {
		t.Fatal(err)
	}

	if len(results.Fills) != 0 {
		t.Error("rejected intent produced a fill")
	}
	if len(results.Diagnostics) != 1 {
		t.Fatalf("diagnostics = %d, want 1", len(results.Diagnostics))
	}
	d := results.Diagnostics[0]
	if d.Reason != "insufficient_funds" || d.Instrument != "SPY" || d.Step != 2 {
		t.Errorf("diagnostic = %+v, want insufficient_funds for SPY at step 2", d)
	}
	// The run continues and the portfolio stays flat.
	for _, p := range results.EquityCurve {
		if p.Equity != 10_000 {
			t.Fatalf("equity moved to %v after a rejected order", p.Equity)
		}
	}
}

func TestStopLossExitThroughEngine(t *testing.T) {
	e := testEngine(t, nil)
	data := map[string][]models.Bar{"SPY": dailyBars(100, 102, 101, 92, 95)}

	strat := &scripted{next: func(ctx *strategy.Context) error {
		if ctx.Step() == 0 {
			ctx.Buy("SPY", strategy.Order{Size: 10, StopLoss: 97})
		}
		return nil
	}}

	results, err := e.Run(context.Background(), strat, data)
	if err != nil {
		t.Fatal(err)
	}

	if len(results.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(results.Trades))
	}
	tr := results.Trades[0]
	if tr.ExitReason != "stop_loss" {
		t.Errorf("exit reason = %q, want stop_loss", tr.ExitReason)
	}
	// Stop monitored from the bar after the entry fill; step 3 trades 101->92
	// with low 91, so the stop at 97 fills at its level.
	if tr.ExitPrice != 97 {
		t.Errorf("exit price = %v, want 97", tr.ExitPrice)
	}
}

func TestMissingBarCarriesIntent(t *testing.T) {
	e := testEngine(t, nil)
	barsA := dailyBars(10, 11, 12, 13, 14)
	barsB := dailyBars(20, 21, 22, 23, 24)
	// Instrument B does not trade at step 3.
	barsB = append(barsB[:3], barsB[4:]...)
	data := map[string][]models.Bar{"A": barsA, "B": barsB}

	var sawGap bool
	strat := &scripted{next: func(ctx *strategy.Context) error {
		if ctx.Step() == 2 {
			ctx.Buy("B", strategy.Order{Size: 1})
		}
		if ctx.Step() == 3 && !ctx.HasBar("B") && ctx.HasBar("A") {
			sawGap = true
		}
		return nil
	}}

	results, err := e.Run(context.Background(), strat, data)
	if err != nil {
		t.Fatal(err)
	}
	if !sawGap {
		t.Error("strategy never observed the missing bar step")
	}

	if len(results.Fills) < 1 {
		t.Fatal("expected the carried intent to fill")
	}
	entry := results.Fills[0]
	// No bar for B at step 3: the intent waits for B's next bar at step 4.
	if !entry.Timestamp.Equal(start.AddDate(0, 0, 4)) {
		t.Errorf("fill time = %v, want step 4", entry.Timestamp)
	}
	if entry.Price != 23 {
		t.Errorf("fill price = %v, want B step 4 open 23", entry.Price)
	}

	// Exactly one equity point per global step regardless of gaps.
	if len(results.EquityCurve) != 5 {
		t.Errorf("equity points = %d, want 5", len(results.EquityCurve))
	}
}

func TestStrictDataRejectsGaps(t *testing.T) {
	e := testEngine(t, func(cfg *config.RunConfig) { cfg.StrictData = true })
	barsA := dailyBars(10, 11, 12, 13, 14)
	barsB := dailyBars(20, 21, 22, 23, 24)
	barsB = append(barsB[:3], barsB[4:]...)
	data := map[string][]models.Bar{"A": barsA, "B": barsB}

	_, err := e.Run(context.Background(), &scripted{}, data)
	var gap *errors.DataGapError
	if !errors.As(err, &gap) {
		t.Fatalf("error = %v, want *errors.DataGapError", err)
	}
	if gap.Instrument != "B" || gap.Step != 3 {
		t.Errorf("gap = %+v, want B at step 3", gap)
	}
}

func TestCausalityViolationAbortsRun(t *testing.T) {
	e := testEngine(t, nil)
	data := map[string][]models.Bar{"SPY": dailyBars(100, 102, 101)}

	strat := &scripted{next: func(ctx *strategy.Context) error {
		f, err := ctx.Bars("SPY")
		if err != nil {
			return err
		}
		_, err = f.Close.At(1)
		return err
	}}

	_, err := e.Run(context.Background(), strat, data)
	var causality *errors.CausalityError
	if !errors.As(err, &causality) {
		t.Fatalf("error = %v, want *errors.CausalityError", err)
	}
}

func TestNonCausalStrategyErrorContinues(t *testing.T) {
	e := testEngine(t, nil)
	data := map[string][]models.Bar{"SPY": dailyBars(100, 102, 101)}

	strat := &scripted{next: func(ctx *strategy.Context) error {
		if ctx.Step() == 1 {
			return errors.Wrap(errors.ErrInvalidOrder, "transient strategy failure")
		}
		return nil
	}}

	results, err := e.Run(context.Background(), strat, data)
	if err != nil {
		t.Fatal(err)
	}
	if len(results.EquityCurve) != 3 {
		t.Errorf("run stopped early: %d equity points", len(results.EquityCurve))
	}
	found := false
	for _, d := range results.Diagnostics {
		if d.Reason == "strategy_error" && d.Step == 1 {
			found = true
		}
	}
	if !found {
		t.Error("missing strategy_error diagnostic")
	}
}

func TestCancellationYieldsPartialResults(t *testing.T) {
	e := testEngine(t, nil)
	data := map[string][]models.Bar{"SPY": dailyBars(100, 102, 101, 105, 107)}

	ctx, cancel := context.WithCancel(context.Background())
	strat := &scripted{next: func(sctx *strategy.Context) error {
		if sctx.Step() == 0 {
			sctx.Buy("SPY", strategy.Order{Size: 10})
		}
		if sctx.Step() == 2 {
			cancel()
		}
		return nil
	}}

	results, err := e.Run(ctx, strat, data)
	if err != nil {
		t.Fatal(err)
	}
	if !results.Incomplete {
		t.Fatal("results not marked incomplete after cancellation")
	}
	if len(results.EquityCurve) != 3 {
		t.Errorf("equity points = %d, want 3 completed steps", len(results.EquityCurve))
	}
	// No end-of-data liquidation on a cancelled run: the position stays open
	// and no liquidation fill is appended.
	for _, f := range results.Fills {
		if f.Reason == "end_of_data" {
			t.Error("cancelled run performed end-of-data liquidation")
		}
	}
}

func TestInitializeSeesAllInstruments(t *testing.T) {
	e := testEngine(t, nil)
	data := map[string][]models.Bar{
		"A": dailyBars(10, 11, 12),
		"B": dailyBars(20, 21, 22),
	}

	var instruments []string
	strat := &scripted{init: func(ctx *strategy.Context) error {
		instruments = ctx.Instruments()
		return nil
	}}

	if _, err := e.Run(context.Background(), strat, data); err != nil {
		t.Fatal(err)
	}
	if len(instruments) != 2 || instruments[0] != "A" || instruments[1] != "B" {
		t.Errorf("Initialize saw %v, want [A B]", instruments)
	}
}

func TestRunValidation(t *testing.T) {
	e := testEngine(t, nil)

	if _, err := e.Run(context.Background(), &scripted{}, nil); !errors.Is(err, errors.ErrNoData) {
		t.Errorf("empty data error = %v, want ErrNoData", err)
	}

	bars := dailyBars(100, 101)
	bars[1].Timestamp = bars[0].Timestamp
	_, err := e.Run(context.Background(), &scripted{}, map[string][]models.Bar{"SPY": bars})
	if err == nil {
		t.Error("non-increasing timestamps should fail validation")
	}

	bad := testEngine(t, func(cfg *config.RunConfig) { cfg.InitialCash = -1 })
	if _, err := bad.Run(context.Background(), &scripted{}, map[string][]models.Bar{"SPY": dailyBars(100)}); err == nil {
		t.Error("invalid config should fail before the run starts")
	}
}

func TestFinalStepIntentReportedNeverFilled(t *testing.T) {
	e := testEngine(t, nil)
	data := map[string][]models.Bar{"SPY": dailyBars(100, 102, 101, 105, 107)}

	strat := &scripted{next: func(sctx *strategy.Context) error {
		if sctx.Step() == 4 {
			sctx.Buy("SPY", strategy.Order{Size: 10})
		}
		return nil
	}}

	results, err := e.Run(context.Background(), strat, data)
	if err != nil {
		t.Fatal(err)
	}
	if len(results.Fills) != 0 {
		t.Fatalf("fills = %d, want none for an intent with no bar left", len(results.Fills))
	}

	var dropped []models.Diagnostic
	for _, d := range results.Diagnostics {
		if d.Reason == "never_filled" {
			dropped = append(dropped, d)
		}
	}
	if len(dropped) != 1 {
		t.Fatalf("never_filled diagnostics = %d, want 1 (%v)", len(dropped), results.Diagnostics)
	}
	if dropped[0].Instrument != "SPY" || dropped[0].Step != 4 {
		t.Errorf("diagnostic = %+v, want SPY at step 4", dropped[0])
	}
}
