// Package portfolio tracks cash, positions and the equity curve for one run.
package portfolio

import (
	"math"
	"sort"
	"time"

	"algame/internal/models"
)

// Ledger is the portfolio ledger for a single backtest run. It owns cash, one
// position per instrument, the ordered fill history and the equity curve.
// Positions change only through Settle; nothing else writes them. A ledger is
// owned by exactly one engine run and is not safe for concurrent use.
type Ledger struct {
	initialCash float64
	cash        float64
	realized    float64

	positions  map[string]*models.Position
	openTrades map[string]*openTrade
	lastPrice  map[string]float64

	fills  []models.Fill
	trades []models.Trade
	equity []models.EquityPoint
}

// openTrade accumulates entry state until the position is fully closed.
type openTrade struct {
	entryTime time.Time
	fees      float64
}

// NewLedger creates a ledger with the given starting cash.
func NewLedger(initialCash float64) *Ledger {
	return &Ledger{
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[string]*models.Position),
		openTrades:  make(map[string]*openTrade),
		lastPrice:   make(map[string]float64),
	}
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	return l.cash
}

// InitialCash returns the starting cash balance.
func (l *Ledger) InitialCash() float64 {
	return l.initialCash
}

// RealizedPnL returns the cumulative realized profit across closed trades,
// net of commissions.
func (l *Ledger) RealizedPnL() float64 {
	return l.realized
}

// Position returns a copy of the position for the instrument. A zero-size
// position means flat.
func (l *Ledger) Position(instrument string) models.Position {
	if p, ok := l.positions[instrument]; ok {
		return *p
	}
	return models.Position{Instrument: instrument}
}

// Positions returns copies of all non-flat positions, sorted by instrument so
// callers that settle against them do so in a deterministic order.
func (l *Ledger) Positions() []models.Position {
	out := make([]models.Position, 0, len(l.positions))
	for _, p := range l.positions {
		if !p.IsFlat() {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

// Fills returns the ordered fill history.
func (l *Ledger) Fills() []models.Fill {
	return l.fills
}

// Trades returns the completed round trips in close order.
func (l *Ledger) Trades() []models.Trade {
	return l.trades
}

// EquityCurve returns the recorded equity points, one per simulated step.
func (l *Ledger) EquityCurve() []models.EquityPoint {
	return l.equity
}

// Settle applies one fill to the ledger: cash moves by notional plus
// commission, and the position updates with weighted-average entry price on
// same-direction adds. Reducing or closing a position realizes P&L and, once
// the position is fully closed, records a completed trade.
func (l *Ledger) Settle(fill models.Fill) {
	l.fills = append(l.fills, fill)
	l.lastPrice[fill.Instrument] = fill.Price

	delta := fill.Size
	if fill.Side == models.SideSell {
		delta = -fill.Size
		l.cash += fill.Notional() - fill.Commission
	} else {
		l.cash -= fill.Notional() + fill.Commission
	}

	pos, ok := l.positions[fill.Instrument]
	if !ok {
		pos = &models.Position{Instrument: fill.Instrument}
		l.positions[fill.Instrument] = pos
	}

	switch {
	case pos.Size == 0:
		pos.Size = delta
		pos.AvgEntry = fill.Price
		pos.EntryTime = fill.Timestamp
		l.openTrades[fill.Instrument] = &openTrade{entryTime: fill.Timestamp, fees: fill.Commission}

	case sameSign(pos.Size, delta):
		// Add to position: weighted-average entry.
		total := math.Abs(pos.Size) + math.Abs(delta)
		pos.AvgEntry = (pos.AvgEntry*math.Abs(pos.Size) + fill.Price*math.Abs(delta)) / total
		pos.Size += delta
		if ot := l.openTrades[fill.Instrument]; ot != nil {
			ot.fees += fill.Commission
		}

	default:
		l.reduce(pos, delta, fill)
	}

	if pos.IsFlat() {
		pos.StopLoss, pos.TakeProfit = 0, 0
	}
}

// reduce handles fills opposing the current position, including reversals
// where the fill is larger than the open size.
func (l *Ledger) reduce(pos *models.Position, delta float64, fill models.Fill) {
	closed := math.Min(math.Abs(delta), math.Abs(pos.Size))
	direction := sign(pos.Size)
	pnl := (fill.Price - pos.AvgEntry) * closed * direction
	l.realized += pnl - fill.Commission

	fullClose := closed == math.Abs(pos.Size)
	l.recordTrade(pos, fill, closed, pnl, fullClose)

	remaining := math.Abs(delta) - closed
	pos.Size += delta
	if fullClose && remaining > 0 {
		// Reversal: the excess opens a fresh position at the fill price.
		pos.AvgEntry = fill.Price
		pos.EntryTime = fill.Timestamp
		l.openTrades[fill.Instrument] = &openTrade{entryTime: fill.Timestamp, fees: 0}
	} else if fullClose {
		pos.AvgEntry = 0
		delete(l.openTrades, fill.Instrument)
	}
}

func (l *Ledger) recordTrade(pos *models.Position, fill models.Fill, closed, pnl float64, fullClose bool) {
	side := "LONG"
	if pos.Size < 0 {
		side = "SHORT"
	}
	fees := fill.Commission
	entryTime := pos.EntryTime
	if ot := l.openTrades[fill.Instrument]; ot != nil {
		entryTime = ot.entryTime
		if fullClose {
			fees += ot.fees
		}
	}
	returnPct := 0.0
	if pos.AvgEntry != 0 {
		returnPct = (fill.Price/pos.AvgEntry - 1) * 100 * sign(pos.Size)
	}
	l.trades = append(l.trades, models.Trade{
		Instrument: fill.Instrument,
		Side:       side,
		EntryTime:  entryTime,
		ExitTime:   fill.Timestamp,
		EntryPrice: pos.AvgEntry,
		ExitPrice:  fill.Price,
		Size:       closed,
		PnL:        pnl - fees,
		ReturnPct:  returnPct,
		Fees:       fees,
		ExitReason: fill.Reason,
	})
}

// AttachStops sets the stop-loss and take-profit levels monitored for the
// instrument's open position.
func (l *Ledger) AttachStops(instrument string, stopLoss, takeProfit float64) {
	if pos, ok := l.positions[instrument]; ok && !pos.IsFlat() {
		pos.StopLoss = stopLoss
		pos.TakeProfit = takeProfit
	}
}

// MarkToMarket revalues all open positions at the given prices and appends one
// equity point. It runs once per step, fills or not, so the curve holds
// exactly one point per simulated step. Instruments without a price this step
// are valued at their last known price.
func (l *Ledger) MarkToMarket(prices map[string]float64, ts time.Time) float64 {
	for instrument, price := range prices {
		l.lastPrice[instrument] = price
	}

	equity := l.cash
	for instrument, pos := range l.positions {
		if pos.IsFlat() {
			continue
		}
		price, ok := prices[instrument]
		if !ok {
			price = l.lastPrice[instrument]
		}
		equity += pos.Size * price
	}

	l.equity = append(l.equity, models.EquityPoint{Timestamp: ts, Equity: equity})
	return equity
}

// CurrentEquity returns the most recent equity value, or initial cash before
// the first mark-to-market.
func (l *Ledger) CurrentEquity() float64 {
	if len(l.equity) == 0 {
		return l.initialCash
	}
	return l.equity[len(l.equity)-1].Equity
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
