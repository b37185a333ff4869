package engine

import (
	"sort"
)

// Comparison summarizes one strategy's results for side-by-side reporting.
type Comparison struct {
	Strategy     string  `json:"strategy"`
	TotalReturn  float64 `json:"total_return"`
	WinRate      float64 `json:"win_rate"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	TotalTrades  int     `json:"total_trades"`
	ProfitFactor float64 `json:"profit_factor"`
}

// Compare builds a comparison table across named results, sorted by Sharpe
// ratio descending.
func Compare(results map[string]*Results) []Comparison {
	comparisons := make([]Comparison, 0, len(results))
	for name, r := range results {
		comparisons = append(comparisons, Comparison{
			Strategy:     name,
			TotalReturn:  r.Metrics[MetricTotalReturn],
			WinRate:      r.Metrics[MetricWinRate],
			MaxDrawdown:  r.Metrics[MetricMaxDrawdown],
			SharpeRatio:  r.Metrics[MetricSharpeRatio],
			TotalTrades:  int(r.Metrics[MetricTotalTrades]),
			ProfitFactor: r.Metrics["profit_factor"],
		})
	}

	sort.Slice(comparisons, func(i, j int) bool {
		if comparisons[i].SharpeRatio != comparisons[j].SharpeRatio {
			return comparisons[i].SharpeRatio > comparisons[j].SharpeRatio
		}
		return comparisons[i].Strategy < comparisons[j].Strategy
	})
	return comparisons
}
