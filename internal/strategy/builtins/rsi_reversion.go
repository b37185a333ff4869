package builtins

import (
	"fmt"

	"algame/internal/indicator"
	"algame/internal/models"
	"algame/internal/series"
	"algame/internal/strategy"
)

// RSIReversion buys when RSI crosses up out of the oversold zone and exits
// when it crosses down out of the overbought zone.
type RSIReversion struct {
	Period     int
	Oversold   float64
	Overbought float64
	Allocation float64

	rsi map[string]*series.Series
}

// NewRSIReversion builds the strategy from a parameter map with keys
// "period", "oversold", "overbought" and "allocation".
func NewRSIReversion(params map[string]float64) (strategy.Strategy, error) {
	s := &RSIReversion{Period: 14, Oversold: 30, Overbought: 70, Allocation: 0.95}
	if v, ok := params["period"]; ok {
		s.Period = int(v)
	}
	if v, ok := params["oversold"]; ok {
		s.Oversold = v
	}
	if v, ok := params["overbought"]; ok {
		s.Overbought = v
	}
	if v, ok := params["allocation"]; ok {
		s.Allocation = v
	}
	if s.Oversold >= s.Overbought {
		return nil, fmt.Errorf("oversold %v must be below overbought %v", s.Oversold, s.Overbought)
	}
	return s, nil
}

func (s *RSIReversion) Name() string {
	return fmt.Sprintf("rsi_reversion_%d", s.Period)
}

func (s *RSIReversion) Initialize(ctx *strategy.Context) error {
	s.rsi = make(map[string]*series.Series)
	for _, inst := range ctx.Instruments() {
		rsi, err := indicator.NewRSI(s.Period)
		if err != nil {
			return err
		}
		if s.rsi[inst], err = ctx.Register(inst, rsi); err != nil {
			return err
		}
	}
	return nil
}

func (s *RSIReversion) Next(ctx *strategy.Context) error {
	for _, inst := range ctx.Instruments() {
		if !ctx.HasBar(inst) {
			continue
		}
		rsi := s.rsi[inst]
		if !rsi.Defined(0) || !rsi.Defined(-1) {
			continue
		}
		r0, _ := rsi.At(0)
		r1, _ := rsi.At(-1)

		pos := ctx.Position(inst)
		switch {
		case r1 <= s.Oversold && r0 > s.Oversold && pos.IsFlat():
			ctx.Buy(inst, strategy.Order{Size: s.Allocation, Mode: models.SizeFraction})
		case r1 >= s.Overbought && r0 < s.Overbought && pos.Size > 0:
			ctx.Close(inst)
		}
	}
	return nil
}

// Register adds all builtin strategies to a registry.
func Register(r *strategy.Registry) {
	r.Register("sma_cross", NewSMACross)
	r.Register("rsi_reversion", NewRSIReversion)
}
