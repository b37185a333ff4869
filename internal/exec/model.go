// Package exec converts strategy order intents into simulated fills.
//
// Execution is deliberately lagged by one step: an intent queued while the
// strategy observed bar t settles against bar t+1, using its opening price
// unless an attached limit price falls inside the bar's range. This models the
// unavailability of the current close at decision time.
package exec

import (
	"math"

	"algame/internal/config"
	"algame/internal/errors"
	"algame/internal/models"
	"algame/internal/portfolio"
)

// Model applies pricing, sizing and validation rules to order intents.
type Model struct {
	cfg config.RunConfig
}

// NewModel creates an execution model with the given run options.
func NewModel(cfg config.RunConfig) *Model {
	return &Model{cfg: cfg}
}

// Execute resolves one intent against the bar following the step the intent
// was emitted at. It returns the resulting fill without settling it; the
// engine settles fills through the ledger. Rejected intents return an error
// and no fill; orders are never partially filled.
func (m *Model) Execute(intent models.OrderIntent, bar models.Bar, ledger *portfolio.Ledger) (*models.Fill, error) {
	if intent.Side == models.SideClose {
		pos := ledger.Position(intent.Instrument)
		if pos.IsFlat() {
			// Nothing to close; the intent lapses silently.
			return nil, nil
		}
		return m.exitFill(pos, bar, bar.Open, "close"), nil
	}

	price := bar.Open
	if intent.Limit > 0 && intent.Limit >= bar.Low && intent.Limit <= bar.High {
		price = intent.Limit
	}
	price = m.applySlippage(price, intent.Side)
	if price <= 0 {
		return nil, errors.Wrapf(errors.ErrInvalidOrder, "%s non-positive execution price", intent.Instrument)
	}

	size, err := m.resolveSize(intent, price, ledger)
	if err != nil {
		return nil, err
	}

	commission := m.cfg.CommissionRate * price * size

	if opening := m.openingSize(intent, size, ledger); opening > 0 {
		required := price*opening + m.cfg.CommissionRate*price*opening
		available := m.cfg.BuyingPower(ledger.Cash())
		if required > available {
			return nil, errors.NewFundsError(intent.Instrument, required, available)
		}
	}

	return &models.Fill{
		Instrument: intent.Instrument,
		Timestamp:  bar.Timestamp,
		Side:       intent.Side,
		Price:      price,
		Size:       size,
		Commission: commission,
	}, nil
}

// resolveSize turns the intent's size field into instrument units and applies
// the short-selling rules.
func (m *Model) resolveSize(intent models.OrderIntent, price float64, ledger *portfolio.Ledger) (float64, error) {
	size := intent.Size
	if intent.SizeMode == models.SizeFraction {
		if size <= 0 || size > 1 {
			return 0, errors.Wrapf(errors.ErrInvalidOrder, "%s size fraction %v outside (0, 1]", intent.Instrument, size)
		}
		size = ledger.CurrentEquity() * size / price
	}
	if size <= 0 {
		return 0, errors.Wrapf(errors.ErrInvalidOrder, "%s non-positive size %v", intent.Instrument, intent.Size)
	}

	if intent.Side == models.SideSell && !m.cfg.AllowShort {
		held := ledger.Position(intent.Instrument).Size
		if held <= 0 {
			return 0, errors.Wrapf(errors.ErrInvalidOrder, "%s short selling disabled", intent.Instrument)
		}
		// Clamp the sell to the open long rather than open a short.
		if size > held {
			size = held
		}
	}
	return size, nil
}

// openingSize returns the portion of the fill that adds new exposure once any
// opposing held size is consumed. A pure reduction or exact close returns
// zero; a reversal returns the part beyond the held size, so the buying-power
// check still applies to it.
func (m *Model) openingSize(intent models.OrderIntent, size float64, ledger *portfolio.Ledger) float64 {
	held := ledger.Position(intent.Instrument).Size
	if intent.Side == models.SideBuy {
		if held >= 0 {
			return size
		}
		return math.Max(0, size+held)
	}
	if held <= 0 {
		return size
	}
	return math.Max(0, size-held)
}

// applySlippage moves the price against the taker per the configured model.
func (m *Model) applySlippage(price float64, side models.Side) float64 {
	var offset float64
	switch m.cfg.SlippageModel {
	case models.SlippageFixed:
		offset = m.cfg.SlippageValue
	case models.SlippagePercentage:
		offset = price * m.cfg.SlippageValue
	default:
		return price
	}
	if side == models.SideBuy {
		return price + offset
	}
	return price - offset
}

// CheckStops evaluates an open position's stop-loss and take-profit against a
// new bar's range and returns the exit fill if one triggered. When both levels
// fall inside the same bar the stop-loss is assumed to trigger first. A level
// the bar gapped past fills at the open instead of the level itself.
func (m *Model) CheckStops(pos models.Position, bar models.Bar) *models.Fill {
	if pos.IsFlat() {
		return nil
	}

	long := pos.Size > 0
	if pos.StopLoss > 0 {
		if long && bar.Low <= pos.StopLoss {
			return m.exitFill(pos, bar, math.Min(pos.StopLoss, bar.Open), "stop_loss")
		}
		if !long && bar.High >= pos.StopLoss {
			return m.exitFill(pos, bar, math.Max(pos.StopLoss, bar.Open), "stop_loss")
		}
	}
	if pos.TakeProfit > 0 {
		if long && bar.High >= pos.TakeProfit {
			return m.exitFill(pos, bar, math.Max(pos.TakeProfit, bar.Open), "take_profit")
		}
		if !long && bar.Low <= pos.TakeProfit {
			return m.exitFill(pos, bar, math.Min(pos.TakeProfit, bar.Open), "take_profit")
		}
	}
	return nil
}

// ExitFill builds a market exit for the whole position at the given price,
// used for stop exits and end-of-data liquidation.
func (m *Model) ExitFill(pos models.Position, bar models.Bar, price float64, reason string) *models.Fill {
	return m.exitFill(pos, bar, price, reason)
}

func (m *Model) exitFill(pos models.Position, bar models.Bar, price float64, reason string) *models.Fill {
	side := models.SideSell
	if pos.Size < 0 {
		side = models.SideBuy
	}
	price = m.applySlippage(price, side)
	size := math.Abs(pos.Size)
	return &models.Fill{
		Instrument: pos.Instrument,
		Timestamp:  bar.Timestamp,
		Side:       side,
		Price:      price,
		Size:       size,
		Commission: m.cfg.CommissionRate * price * size,
		Reason:     reason,
	}
}
