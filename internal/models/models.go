// Package models provides domain models for the backtesting framework.
package models

import (
	"time"
)

// Side represents the direction of an order or fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
	// SideClose flattens whatever position is open at settlement time.
	SideClose Side = "CLOSE"
)

// SizeMode determines how an intent's Size field is interpreted.
type SizeMode string

const (
	// SizeUnits sizes the order in absolute instrument units.
	SizeUnits SizeMode = "UNITS"
	// SizeFraction sizes the order as a fraction of current equity.
	SizeFraction SizeMode = "FRACTION"
)

// SlippageModel selects how fill prices deviate from the reference price.
type SlippageModel string

const (
	SlippageNone       SlippageModel = "none"
	SlippageFixed      SlippageModel = "fixed"
	SlippagePercentage SlippageModel = "percentage"
)

// Bar represents one OHLCV observation for one instrument at one timestamp.
// Bars are immutable once emitted by a data source.
type Bar struct {
	Timestamp time.Time `json:"timestamp" csv:"timestamp"`
	Open      float64   `json:"open" csv:"open"`
	High      float64   `json:"high" csv:"high"`
	Low       float64   `json:"low" csv:"low"`
	Close     float64   `json:"close" csv:"close"`
	Volume    int64     `json:"volume" csv:"volume"`
}

// OrderIntent is a strategy-issued request to change a position. Intents are
// transient: they are queued during one step and consumed when the next bar
// becomes available.
type OrderIntent struct {
	Instrument string
	Side       Side
	Size       float64
	SizeMode   SizeMode
	Limit      float64 // 0 = market (next-bar open)
	StopLoss   float64 // 0 = none
	TakeProfit float64 // 0 = none
	Step       int     // simulated step the intent was emitted at
}

// Fill is the immutable record of an executed intent.
type Fill struct {
	Instrument string    `json:"instrument"`
	Timestamp  time.Time `json:"timestamp"`
	Side       Side      `json:"side"`
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
	Commission float64   `json:"commission"`
	Reason     string    `json:"reason,omitempty"` // e.g. "stop_loss", "take_profit", "end_of_data"
}

// Notional returns the absolute cash value of the fill before commission.
func (f Fill) Notional() float64 {
	n := f.Price * f.Size
	if n < 0 {
		return -n
	}
	return n
}

// Position tracks the open exposure for one instrument. Size is signed:
// positive for long, negative for short, zero for flat. Positions are mutated
// only by the portfolio ledger in response to fills.
type Position struct {
	Instrument string
	Size       float64
	AvgEntry   float64
	StopLoss   float64
	TakeProfit float64
	EntryTime  time.Time
}

// IsFlat reports whether the position holds no exposure.
func (p Position) IsFlat() bool {
	return p.Size == 0
}

// UnrealizedPnL returns the open profit at the given price.
func (p Position) UnrealizedPnL(price float64) float64 {
	return (price - p.AvgEntry) * p.Size
}

// EquityPoint is one point on the equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Trade is a completed round trip derived from entry and exit fills.
type Trade struct {
	Instrument string    `json:"instrument"`
	Side       string    `json:"side"` // LONG or SHORT
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Size       float64   `json:"size"`
	PnL        float64   `json:"pnl"`
	ReturnPct  float64   `json:"return_pct"`
	Fees       float64   `json:"fees"`
	ExitReason string    `json:"exit_reason,omitempty"`
}

// Diagnostic records an intent that was rejected during a run. Rejections do
// not abort the run; the final results carry one diagnostic per skipped intent.
type Diagnostic struct {
	Step       int       `json:"step"`
	Timestamp  time.Time `json:"timestamp"`
	Instrument string    `json:"instrument"`
	Reason     string    `json:"reason"`
	Detail     string    `json:"detail,omitempty"`
}
