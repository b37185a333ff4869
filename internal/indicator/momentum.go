package indicator

import (
	"fmt"
	"math"

	"algame/internal/errors"
	"algame/internal/series"
)

// RSI is the Relative Strength Index with Wilder smoothing. The first value
// appears after period+1 closes: the seed averages use period price changes.
type RSI struct {
	period    int
	prevClose float64
	hasPrev   bool
	gains     []float64
	losses    []float64
	avgGain   float64
	avgLoss   float64
	seeded    bool
}

// NewRSI creates a Relative Strength Index indicator.
func NewRSI(period int) (*RSI, error) {
	if period <= 0 {
		return nil, errors.NewIndicatorParamError("RSI", "period", period)
	}
	return &RSI{period: period}, nil
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI_%d", r.period)
}

func (r *RSI) Update(f *series.Frame) float64 {
	v, ok := f.Close.Last()
	if !ok {
		return series.Undefined
	}
	if !r.hasPrev {
		r.prevClose = v
		r.hasPrev = true
		return series.Undefined
	}

	change := v - r.prevClose
	r.prevClose = v
	var gain, loss float64
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if !r.seeded {
		r.gains = append(r.gains, gain)
		r.losses = append(r.losses, loss)
		if len(r.gains) < r.period {
			return series.Undefined
		}
		var gSum, lSum float64
		for i := range r.gains {
			gSum += r.gains[i]
			lSum += r.losses[i]
		}
		r.avgGain = gSum / float64(r.period)
		r.avgLoss = lSum / float64(r.period)
		r.gains, r.losses = nil, nil
		r.seeded = true
		return r.value()
	}

	// Wilder smoothing
	r.avgGain = (r.avgGain*float64(r.period-1) + gain) / float64(r.period)
	r.avgLoss = (r.avgLoss*float64(r.period-1) + loss) / float64(r.period)
	return r.value()
}

func (r *RSI) value() float64 {
	if r.avgLoss == 0 {
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - (100 / (1 + rs))
}

// MACD is the moving average convergence divergence with a signal line. The
// signal line is an EMA over the MACD line, seeded once the line is defined.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
}

// NewMACD creates a MACD indicator with the given EMA periods.
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) (*MACD, error) {
	if fastPeriod <= 0 {
		return nil, errors.NewIndicatorParamError("MACD", "fast_period", fastPeriod)
	}
	if slowPeriod <= fastPeriod {
		return nil, errors.NewIndicatorParamError("MACD", "slow_period", slowPeriod)
	}
	if signalPeriod <= 0 {
		return nil, errors.NewIndicatorParamError("MACD", "signal_period", signalPeriod)
	}
	fast, _ := NewEMA(fastPeriod)
	slow, _ := NewEMA(slowPeriod)
	signal, _ := NewEMA(signalPeriod)
	return &MACD{fast: fast, slow: slow, signal: signal}, nil
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fast.period, m.slow.period, m.signal.period)
}

func (m *MACD) Outputs() []string {
	return []string{"line", "signal"}
}

func (m *MACD) Update(f *series.Frame) map[string]float64 {
	v, ok := f.Close.Last()
	if !ok {
		return map[string]float64{"line": series.Undefined, "signal": series.Undefined}
	}
	fast := m.fast.update(v)
	slow := m.slow.update(v)
	if math.IsNaN(fast) || math.IsNaN(slow) {
		return map[string]float64{"line": series.Undefined, "signal": series.Undefined}
	}
	line := fast - slow
	sig := m.signal.update(line)
	return map[string]float64{"line": line, "signal": sig}
}
