// Package adapter defines the backend-neutral contract for running backtests.
//
// A Backend is anything that can host a strategy, ingest bar data, run a
// simulation and hand back results in the shared schema. The adapter layer
// performs no business logic: it only translates between the native intent
// and position model and whatever the concrete backend uses, so callers can
// switch backends without touching strategy code.
//
// Results guarantees: every backend populates the equity curve, the trade
// list, and the metric keys total_return, max_drawdown, sharpe_ratio,
// win_rate and total_trades. All other metric keys are backend-specific
// extras; callers must not rely on them across backends.
package adapter

import (
	"context"

	"algame/internal/config"
	"algame/internal/engine"
	"algame/internal/models"
	"algame/internal/strategy"
)

// Capabilities declares the feature set a backend can represent. A strategy
// needing a capability the backend lacks is rejected at load time, never at
// run time.
type Capabilities struct {
	MultiAsset  bool
	LimitOrders bool
	StopOrders  bool
	Short       bool
}

// Requirer is optionally implemented by strategies to declare the
// capabilities they depend on. Strategies that do not implement it are
// assumed to need only single-asset market orders.
type Requirer interface {
	Requires() Capabilities
}

// RunHandle identifies one run within a backend.
type RunHandle int

// Backend is the minimal contract every backtesting backend satisfies.
type Backend interface {
	// Name identifies the backend in results and logs.
	Name() string

	// Capabilities reports which features this backend can represent.
	Capabilities() Capabilities

	// LoadStrategy installs the strategy for subsequent runs, failing fast
	// if the strategy declares requirements the backend cannot satisfy.
	LoadStrategy(s strategy.Strategy) error

	// LoadData installs per-instrument bar sequences.
	LoadData(data map[string][]models.Bar) error

	// Run executes a backtest with the given options.
	Run(ctx context.Context, cfg config.RunConfig) (RunHandle, error)

	// Results retrieves the results of a completed run.
	Results(h RunHandle) (*engine.Results, error)
}

// checkRequirements validates a strategy's declared needs against a backend.
func checkRequirements(backendName string, caps Capabilities, s strategy.Strategy) error {
	req, ok := s.(Requirer)
	if !ok {
		return nil
	}
	need := req.Requires()
	switch {
	case need.MultiAsset && !caps.MultiAsset:
		return adapterErr(backendName, "multi-asset data")
	case need.LimitOrders && !caps.LimitOrders:
		return adapterErr(backendName, "limit orders")
	case need.StopOrders && !caps.StopOrders:
		return adapterErr(backendName, "stop orders")
	case need.Short && !caps.Short:
		return adapterErr(backendName, "short selling")
	}
	return nil
}
