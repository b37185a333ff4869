package adapter

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"algame/internal/config"
	"algame/internal/engine"
	"algame/internal/errors"
	"algame/internal/models"
	"algame/internal/strategy"
)

func adapterErr(backend, feature string) error {
	return errors.NewAdapterError(backend, feature)
}

// Native runs backtests on the built-in event-driven simulation engine. It
// supports the full capability set.
type Native struct {
	log zerolog.Logger

	mu      sync.Mutex
	strat   strategy.Strategy
	data    map[string][]models.Bar
	results map[RunHandle]*engine.Results
	next    RunHandle
}

// NewNative creates a native backend.
func NewNative(logger zerolog.Logger) *Native {
	return &Native{
		log:     logger,
		results: make(map[RunHandle]*engine.Results),
	}
}

func (n *Native) Name() string {
	return "native"
}

func (n *Native) Capabilities() Capabilities {
	return Capabilities{MultiAsset: true, LimitOrders: true, StopOrders: true, Short: true}
}

func (n *Native) LoadStrategy(s strategy.Strategy) error {
	if err := checkRequirements(n.Name(), n.Capabilities(), s); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.strat = s
	return nil
}

func (n *Native) LoadData(data map[string][]models.Bar) error {
	if len(data) == 0 {
		return errors.ErrNoData
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.data = data
	return nil
}

func (n *Native) Run(ctx context.Context, cfg config.RunConfig) (RunHandle, error) {
	n.mu.Lock()
	strat, data := n.strat, n.data
	n.mu.Unlock()

	if strat == nil {
		return 0, errors.Wrap(errors.ErrNotRunning, "no strategy loaded")
	}
	if data == nil {
		return 0, errors.ErrNoData
	}

	results, err := engine.New(cfg, n.log).Run(ctx, strat, data)
	if err != nil {
		return 0, err
	}
	results.Backend = n.Name()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.next++
	n.results[n.next] = results
	return n.next, nil
}

func (n *Native) Results(h RunHandle) (*engine.Results, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.results[h]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotRunning, "unknown run handle %d", h)
	}
	return r, nil
}
