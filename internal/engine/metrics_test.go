package engine

import (
	"math"
	"testing"
	"time"

	"algame/internal/models"
)

func curveOf(equities ...float64) []models.EquityPoint {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	points := make([]models.EquityPoint, len(equities))
	for i, eq := range equities {
		points[i] = models.EquityPoint{Timestamp: base.AddDate(0, 0, i), Equity: eq}
	}
	return points
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name  string
		curve []models.EquityPoint
		want  float64
	}{
		{"monotonic rise", curveOf(100, 110, 120), 0},
		{"single dip", curveOf(100, 120, 90, 130), 0.25},
		{"deepest of two dips", curveOf(100, 80, 120, 60), 0.5},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maxDrawdown(tt.curve); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("maxDrawdown = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDrawdownSeries(t *testing.T) {
	dd := DrawdownSeries(curveOf(100, 120, 90, 130))
	want := []float64{0, 0, -25, 0}
	if len(dd) != len(want) {
		t.Fatalf("length = %d, want %d", len(dd), len(want))
	}
	for i := range want {
		if math.Abs(dd[i]-want[i]) > 1e-9 {
			t.Errorf("dd[%d] = %v, want %v", i, dd[i], want[i])
		}
	}
}

func TestSharpeRatioFlatCurveIsZero(t *testing.T) {
	if got := sharpeRatio(curveOf(100, 100, 100, 100)); got != 0 {
		t.Errorf("sharpe of flat curve = %v, want 0", got)
	}
	if got := sharpeRatio(curveOf(100)); got != 0 {
		t.Errorf("sharpe of single point = %v, want 0", got)
	}
}

func TestCalculateMetrics(t *testing.T) {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		{PnL: 100, EntryTime: base, ExitTime: base.AddDate(0, 0, 1)},
		{PnL: -40, EntryTime: base.AddDate(0, 0, 2), ExitTime: base.AddDate(0, 0, 3)},
		{PnL: 60, EntryTime: base.AddDate(0, 0, 4), ExitTime: base.AddDate(0, 0, 5)},
	}
	m := CalculateMetrics(curveOf(10_000, 10_100, 10_060, 10_120, 10_120, 10_120), trades, 10_000)

	if math.Abs(m[MetricTotalReturn]-1.2) > 1e-9 {
		t.Errorf("total return = %v, want 1.2", m[MetricTotalReturn])
	}
	if m[MetricTotalTrades] != 3 {
		t.Errorf("total trades = %v, want 3", m[MetricTotalTrades])
	}
	if math.Abs(m[MetricWinRate]-200.0/3) > 1e-9 {
		t.Errorf("win rate = %v, want 66.67", m[MetricWinRate])
	}
	if m["winning_trades"] != 2 || m["losing_trades"] != 1 {
		t.Errorf("win/loss split = %v/%v, want 2/1", m["winning_trades"], m["losing_trades"])
	}
	if math.Abs(m["avg_win"]-80) > 1e-9 {
		t.Errorf("avg win = %v, want 80", m["avg_win"])
	}
	if math.Abs(m["avg_loss"]+40) > 1e-9 {
		t.Errorf("avg loss = %v, want -40", m["avg_loss"])
	}
	if math.Abs(m["profit_factor"]-4) > 1e-9 {
		t.Errorf("profit factor = %v, want 4", m["profit_factor"])
	}
	if m["final_equity"] != 10_120 {
		t.Errorf("final equity = %v, want 10120", m["final_equity"])
	}
	if m["exposure"] <= 0 || m["exposure"] > 1 {
		t.Errorf("exposure = %v, want in (0, 1]", m["exposure"])
	}
}

func TestCalculateMetricsNoTrades(t *testing.T) {
	m := CalculateMetrics(curveOf(10_000, 10_000), nil, 10_000)
	if m[MetricTotalReturn] != 0 || m[MetricWinRate] != 0 || m[MetricTotalTrades] != 0 {
		t.Errorf("zero-trade metrics = %v, want zeros", m)
	}
	if m["exposure"] != 0 {
		t.Errorf("exposure = %v, want 0", m["exposure"])
	}
}
