package indicator

import (
	"fmt"

	"algame/internal/errors"
	"algame/internal/series"
)

// SMA is a simple moving average over closing prices, maintained with a
// rolling sum so each update is O(1).
type SMA struct {
	period int
	window []float64
	sum    float64
}

// NewSMA creates a simple moving average indicator.
func NewSMA(period int) (*SMA, error) {
	if period <= 0 {
		return nil, errors.NewIndicatorParamError("SMA", "period", period)
	}
	return &SMA{period: period}, nil
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA_%d", s.period)
}

func (s *SMA) Update(f *series.Frame) float64 {
	v, ok := f.Close.Last()
	if !ok {
		return series.Undefined
	}
	s.window = append(s.window, v)
	s.sum += v
	if len(s.window) > s.period {
		s.sum -= s.window[0]
		s.window = s.window[1:]
	}
	if len(s.window) < s.period {
		return series.Undefined
	}
	return s.sum / float64(s.period)
}

// EMA is an exponential moving average seeded with the SMA of the first
// period closes, then smoothed incrementally.
type EMA struct {
	period     int
	multiplier float64
	seed       []float64
	value      float64
	seeded     bool
}

// NewEMA creates an exponential moving average indicator.
func NewEMA(period int) (*EMA, error) {
	if period <= 0 {
		return nil, errors.NewIndicatorParamError("EMA", "period", period)
	}
	return &EMA{period: period, multiplier: 2.0 / float64(period+1)}, nil
}

func (e *EMA) Name() string {
	return fmt.Sprintf("EMA_%d", e.period)
}

func (e *EMA) Update(f *series.Frame) float64 {
	v, ok := f.Close.Last()
	if !ok {
		return series.Undefined
	}
	return e.update(v)
}

func (e *EMA) update(v float64) float64 {
	if !e.seeded {
		e.seed = append(e.seed, v)
		if len(e.seed) < e.period {
			return series.Undefined
		}
		var sum float64
		for _, s := range e.seed {
			sum += s
		}
		e.value = sum / float64(e.period)
		e.seed = nil
		e.seeded = true
		return e.value
	}
	e.value = (v-e.value)*e.multiplier + e.value
	return e.value
}

// Channel tracks the rolling highest high and lowest low over a window.
type Channel struct {
	period int
	highs  []float64
	lows   []float64
}

// NewChannel creates a rolling high/low channel indicator.
func NewChannel(period int) (*Channel, error) {
	if period <= 0 {
		return nil, errors.NewIndicatorParamError("Channel", "period", period)
	}
	return &Channel{period: period}, nil
}

func (c *Channel) Name() string {
	return fmt.Sprintf("CHANNEL_%d", c.period)
}

func (c *Channel) Outputs() []string {
	return []string{"upper", "lower"}
}

func (c *Channel) Update(f *series.Frame) map[string]float64 {
	h, okH := f.High.Last()
	l, okL := f.Low.Last()
	if !okH || !okL {
		return map[string]float64{"upper": series.Undefined, "lower": series.Undefined}
	}
	c.highs = append(c.highs, h)
	c.lows = append(c.lows, l)
	if len(c.highs) > c.period {
		c.highs = c.highs[1:]
		c.lows = c.lows[1:]
	}
	if len(c.highs) < c.period {
		return map[string]float64{"upper": series.Undefined, "lower": series.Undefined}
	}
	upper := c.highs[0]
	lower := c.lows[0]
	for i := 1; i < len(c.highs); i++ {
		if c.highs[i] > upper {
			upper = c.highs[i]
		}
		if c.lows[i] < lower {
			lower = c.lows[i]
		}
	}
	return map[string]float64{"upper": upper, "lower": lower}
}
