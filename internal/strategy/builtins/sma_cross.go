// Package builtins provides ready-made strategy implementations.
package builtins

import (
	"fmt"

	"algame/internal/indicator"
	"algame/internal/models"
	"algame/internal/series"
	"algame/internal/strategy"
)

// SMACross goes long when the fast SMA crosses above the slow SMA and exits
// when it crosses back below, independently per instrument.
type SMACross struct {
	FastPeriod int
	SlowPeriod int
	// Fraction of equity committed per entry.
	Allocation float64

	fast map[string]*series.Series
	slow map[string]*series.Series
}

// NewSMACross builds the strategy from a parameter map with keys
// "fast_period", "slow_period" and "allocation".
func NewSMACross(params map[string]float64) (strategy.Strategy, error) {
	s := &SMACross{FastPeriod: 10, SlowPeriod: 20, Allocation: 0.95}
	if v, ok := params["fast_period"]; ok {
		s.FastPeriod = int(v)
	}
	if v, ok := params["slow_period"]; ok {
		s.SlowPeriod = int(v)
	}
	if v, ok := params["allocation"]; ok {
		s.Allocation = v
	}
	if s.FastPeriod >= s.SlowPeriod {
		return nil, fmt.Errorf("fast_period %d must be below slow_period %d", s.FastPeriod, s.SlowPeriod)
	}
	return s, nil
}

func (s *SMACross) Name() string {
	return fmt.Sprintf("sma_cross_%d_%d", s.FastPeriod, s.SlowPeriod)
}

func (s *SMACross) Initialize(ctx *strategy.Context) error {
	s.fast = make(map[string]*series.Series)
	s.slow = make(map[string]*series.Series)
	for _, inst := range ctx.Instruments() {
		fast, err := indicator.NewSMA(s.FastPeriod)
		if err != nil {
			return err
		}
		slow, err := indicator.NewSMA(s.SlowPeriod)
		if err != nil {
			return err
		}
		if s.fast[inst], err = ctx.Register(inst, fast); err != nil {
			return err
		}
		if s.slow[inst], err = ctx.Register(inst, slow); err != nil {
			return err
		}
	}
	return nil
}

func (s *SMACross) Next(ctx *strategy.Context) error {
	for _, inst := range ctx.Instruments() {
		if !ctx.HasBar(inst) {
			continue
		}
		fast, slow := s.fast[inst], s.slow[inst]
		if !fast.Defined(0) || !slow.Defined(0) || !fast.Defined(-1) || !slow.Defined(-1) {
			continue
		}
		f0, _ := fast.At(0)
		s0, _ := slow.At(0)
		f1, _ := fast.At(-1)
		s1, _ := slow.At(-1)

		pos := ctx.Position(inst)
		switch {
		case f1 <= s1 && f0 > s0 && pos.IsFlat():
			ctx.Buy(inst, strategy.Order{Size: s.Allocation, Mode: models.SizeFraction})
		case f1 >= s1 && f0 < s0 && pos.Size > 0:
			ctx.Close(inst)
		}
	}
	return nil
}
