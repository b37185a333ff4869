package engine

import (
	"math"

	"algame/internal/models"
)

// Metric keys guaranteed present for every backend. Backends may add extras
// but must always populate these.
const (
	MetricTotalReturn = "total_return"
	MetricMaxDrawdown = "max_drawdown"
	MetricSharpeRatio = "sharpe_ratio"
	MetricWinRate     = "win_rate"
	MetricTotalTrades = "total_trades"
)

// CalculateMetrics derives performance metrics from the equity curve and
// trade list. Percent-valued metrics are expressed in percent, not fractions.
func CalculateMetrics(curve []models.EquityPoint, trades []models.Trade, initialCash float64) map[string]float64 {
	m := map[string]float64{
		MetricTotalReturn: 0,
		MetricMaxDrawdown: 0,
		MetricSharpeRatio: 0,
		MetricWinRate:     0,
		MetricTotalTrades: float64(len(trades)),
	}

	if len(curve) > 0 && initialCash > 0 {
		final := curve[len(curve)-1].Equity
		m["final_equity"] = final
		m[MetricTotalReturn] = (final - initialCash) / initialCash * 100
		m[MetricMaxDrawdown] = maxDrawdown(curve) * 100
		m[MetricSharpeRatio] = sharpeRatio(curve)
		m["annualized_return"] = annualizedReturn(curve, initialCash)
		m["exposure"] = exposure(curve, trades)
	}

	var wins, losses int
	var winSum, lossSum float64
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
			winSum += t.PnL
		} else {
			losses++
			lossSum += -t.PnL
		}
	}
	m["winning_trades"] = float64(wins)
	m["losing_trades"] = float64(losses)
	if len(trades) > 0 {
		m[MetricWinRate] = float64(wins) / float64(len(trades)) * 100
	}
	if wins > 0 {
		m["avg_win"] = winSum / float64(wins)
	}
	if losses > 0 {
		m["avg_loss"] = -lossSum / float64(losses)
	}
	if lossSum > 0 {
		m["profit_factor"] = winSum / lossSum
	}

	return m
}

// maxDrawdown returns the largest peak-to-trough equity decline as a fraction.
func maxDrawdown(curve []models.EquityPoint) float64 {
	var peak, maxDD float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// DrawdownSeries returns the percent drawdown from the running peak at each
// equity point.
func DrawdownSeries(curve []models.EquityPoint) []float64 {
	out := make([]float64, len(curve))
	var peak float64
	for i, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			out[i] = (p.Equity - peak) / peak * 100
		}
	}
	return out
}

// sharpeRatio computes an annualized Sharpe ratio from per-step returns,
// assuming daily bars and a 5% annual risk-free rate.
func sharpeRatio(curve []models.EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-prev)/prev)
	}
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stdDev := math.Sqrt(variance)
	if stdDev == 0 {
		return 0
	}

	riskFree := 0.05 / 252
	return (mean - riskFree) / stdDev * math.Sqrt(252)
}

// annualizedReturn compounds the total return over the curve's wall-clock span.
func annualizedReturn(curve []models.EquityPoint, initialCash float64) float64 {
	if len(curve) < 2 || initialCash <= 0 {
		return 0
	}
	final := curve[len(curve)-1].Equity
	if final <= 0 {
		return -100
	}
	days := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp).Hours() / 24
	if days <= 0 {
		return 0
	}
	years := days / 365
	return (math.Pow(final/initialCash, 1/years) - 1) * 100
}

// exposure returns the fraction of the backtest span spent in a position.
func exposure(curve []models.EquityPoint, trades []models.Trade) float64 {
	if len(trades) == 0 || len(curve) < 2 {
		return 0
	}
	total := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp).Seconds()
	if total <= 0 {
		return 0
	}
	var inMarket float64
	for _, t := range trades {
		inMarket += t.ExitTime.Sub(t.EntryTime).Seconds()
	}
	frac := inMarket / total
	if frac > 1 {
		frac = 1
	}
	return frac
}
