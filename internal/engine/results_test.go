package engine

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"algame/internal/config"
	"algame/internal/models"
	"algame/internal/strategy"
)

func sampleResults(t *testing.T) *Results {
	t.Helper()
	e := testEngine(t, func(cfg *config.RunConfig) { cfg.CommissionRate = 0.001 })
	data := map[string][]models.Bar{"SPY": dailyBars(100, 102, 101, 105, 107, 103, 108)}

	strat := &scripted{name: "roundtrip", next: func(ctx *strategy.Context) error {
		switch ctx.Step() {
		case 1:
			ctx.Buy("SPY", strategy.Order{Size: 10})
		case 4:
			ctx.Close("SPY")
		}
		return nil
	}}

	results, err := e.Run(context.Background(), strat, data)
	if err != nil {
		t.Fatal(err)
	}
	return results
}

func TestResultsRoundTrip(t *testing.T) {
	original := sampleResults(t)

	raw, err := MarshalResults(original)
	if err != nil {
		t.Fatal(err)
	}
	restored, err := UnmarshalResults(raw)
	if err != nil {
		t.Fatal(err)
	}

	if restored.Strategy != original.Strategy || restored.Backend != original.Backend {
		t.Errorf("identity fields changed: %s/%s vs %s/%s",
			restored.Strategy, restored.Backend, original.Strategy, original.Backend)
	}
	if !reflect.DeepEqual(restored.Metrics, original.Metrics) {
		t.Errorf("metrics changed across round trip:\n  got  %v\n  want %v", restored.Metrics, original.Metrics)
	}
	if !reflect.DeepEqual(restored.Trades, original.Trades) {
		t.Error("trades changed across round trip")
	}
	if !reflect.DeepEqual(restored.Fills, original.Fills) {
		t.Error("fills changed across round trip")
	}
	if len(restored.EquityCurve) != len(original.EquityCurve) {
		t.Fatalf("equity points = %d, want %d", len(restored.EquityCurve), len(original.EquityCurve))
	}
	for i := range original.EquityCurve {
		if restored.EquityCurve[i].Equity != original.EquityCurve[i].Equity ||
			!restored.EquityCurve[i].Timestamp.Equal(original.EquityCurve[i].Timestamp) {
			t.Fatalf("equity point %d changed", i)
		}
	}
}

func TestResultsFileRoundTrip(t *testing.T) {
	original := sampleResults(t)
	path := filepath.Join(t.TempDir(), "results.json")

	if err := original.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	restored, err := ReadResultsFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Strategy != "roundtrip" {
		t.Errorf("strategy = %q, want roundtrip", restored.Strategy)
	}
	if !reflect.DeepEqual(restored.Metrics, original.Metrics) {
		t.Error("metrics changed across file round trip")
	}
}

func TestGuaranteedMetricKeys(t *testing.T) {
	results := sampleResults(t)
	for _, key := range []string{MetricTotalReturn, MetricMaxDrawdown, MetricSharpeRatio, MetricWinRate, MetricTotalTrades} {
		if _, ok := results.Metrics[key]; !ok {
			t.Errorf("metric %q missing", key)
		}
	}
	if results.FinalEquity() != results.EquityCurve[len(results.EquityCurve)-1].Equity {
		t.Error("FinalEquity disagrees with the equity curve")
	}
}

func TestCompareSortsBySharpe(t *testing.T) {
	mk := func(sharpe float64) *Results {
		return &Results{Metrics: map[string]float64{
			MetricTotalReturn: 1,
			MetricMaxDrawdown: 2,
			MetricSharpeRatio: sharpe,
			MetricWinRate:     50,
			MetricTotalTrades: 3,
		}}
	}
	rows := Compare(map[string]*Results{
		"mid":  mk(1.0),
		"best": mk(2.5),
		"low":  mk(-0.5),
	})
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	want := []string{"best", "mid", "low"}
	for i, name := range want {
		if rows[i].Strategy != name {
			t.Errorf("row %d = %q, want %q", i, rows[i].Strategy, name)
		}
	}
}

func TestEquityCurveASCII(t *testing.T) {
	results := sampleResults(t)
	chart := results.EquityCurveASCII(40, 8)
	if chart == "" {
		t.Fatal("empty chart")
	}
}
