package strategy

import (
	"fmt"
	"sort"
	"time"

	"algame/internal/indicator"
	"algame/internal/models"
	"algame/internal/portfolio"
	"algame/internal/series"
)

// Order carries the optional fields of a buy or sell intent.
type Order struct {
	Size       float64
	Mode       models.SizeMode // defaults to SizeUnits
	Limit      float64
	StopLoss   float64
	TakeProfit float64
}

// Context is the per-run state object passed into every strategy callback. It
// exposes the causal view of series and indicators, read-only portfolio
// state, and the intent-emitting operations. The engine owns and advances it;
// there is no global state shared across runs.
type Context struct {
	step    int
	now     time.Time
	frames  map[string]*series.Frame
	active  map[string]bool
	pipe    *indicator.Pipeline
	ledger  *portfolio.Ledger
	intents map[string]models.OrderIntent
}

// NewContext creates the context for one run. Called by the engine only.
func NewContext(frames map[string]*series.Frame, pipe *indicator.Pipeline, ledger *portfolio.Ledger) *Context {
	return &Context{
		step:    -1,
		frames:  frames,
		active:  make(map[string]bool),
		pipe:    pipe,
		ledger:  ledger,
		intents: make(map[string]models.OrderIntent),
	}
}

// Advance moves the context to the next step. Engine use only.
func (c *Context) Advance(step int, now time.Time, active []string) {
	c.step = step
	c.now = now
	c.active = make(map[string]bool, len(active))
	for _, inst := range active {
		c.active[inst] = true
	}
}

// TakeIntents drains the queued intents in deterministic instrument order.
// Engine use only.
func (c *Context) TakeIntents() []models.OrderIntent {
	if len(c.intents) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.intents))
	for k := range c.intents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]models.OrderIntent, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.intents[k])
	}
	c.intents = make(map[string]models.OrderIntent)
	return out
}

// Step returns the current simulated step index.
func (c *Context) Step() int {
	return c.step
}

// Now returns the current simulated timestamp.
func (c *Context) Now() time.Time {
	return c.now
}

// Instruments returns all instruments in the run, sorted.
func (c *Context) Instruments() []string {
	names := make([]string, 0, len(c.frames))
	for name := range c.frames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasBar reports whether the instrument traded at the current step.
func (c *Context) HasBar(instrument string) bool {
	return c.active[instrument]
}

// Bars returns the causal OHLCV frame for an instrument.
func (c *Context) Bars(instrument string) (*series.Frame, error) {
	f, ok := c.frames[instrument]
	if !ok {
		return nil, fmt.Errorf("unknown instrument %s", instrument)
	}
	return f, nil
}

// Register attaches a single-output indicator to an instrument and returns
// its output series. Call from Initialize.
func (c *Context) Register(instrument string, ind indicator.Indicator) (*series.Series, error) {
	if _, ok := c.frames[instrument]; !ok {
		return nil, fmt.Errorf("unknown instrument %s", instrument)
	}
	return c.pipe.Register(instrument, ind), nil
}

// RegisterMulti attaches a multi-output indicator to an instrument.
func (c *Context) RegisterMulti(instrument string, ind indicator.MultiIndicator) (map[string]*series.Series, error) {
	if _, ok := c.frames[instrument]; !ok {
		return nil, fmt.Errorf("unknown instrument %s", instrument)
	}
	return c.pipe.RegisterMulti(instrument, ind), nil
}

// Indicator looks up a previously registered indicator output.
func (c *Context) Indicator(instrument, name string) (*series.Series, error) {
	return c.pipe.Output(instrument, name)
}

// Position returns a read-only copy of the instrument's position.
func (c *Context) Position(instrument string) models.Position {
	return c.ledger.Position(instrument)
}

// Cash returns the current cash balance.
func (c *Context) Cash() float64 {
	return c.ledger.Cash()
}

// Equity returns the current portfolio equity.
func (c *Context) Equity() float64 {
	return c.ledger.CurrentEquity()
}

// Buy queues a long intent for the instrument. Within one step the last
// intent per instrument wins; conflicting orders in the same bar are not
// ambiguous, they replace each other.
func (c *Context) Buy(instrument string, order Order) {
	c.queue(instrument, models.SideBuy, order)
}

// Sell queues a short (or position-reducing) intent for the instrument.
func (c *Context) Sell(instrument string, order Order) {
	c.queue(instrument, models.SideSell, order)
}

// Close queues an intent that flattens the instrument's position.
func (c *Context) Close(instrument string) {
	c.intents[instrument] = models.OrderIntent{
		Instrument: instrument,
		Side:       models.SideClose,
		Step:       c.step,
	}
}

func (c *Context) queue(instrument string, side models.Side, order Order) {
	mode := order.Mode
	if mode == "" {
		mode = models.SizeUnits
	}
	c.intents[instrument] = models.OrderIntent{
		Instrument: instrument,
		Side:       side,
		Size:       order.Size,
		SizeMode:   mode,
		Limit:      order.Limit,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
		Step:       c.step,
	}
}
