package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"algame/internal/config"
	"algame/internal/models"
	"algame/internal/performance"
	"algame/internal/strategy"
)

// SweepSpec describes a parameter sweep: every combination in Space is one
// independent backtest run.
type SweepSpec struct {
	Strategy string
	// Space maps parameter names to candidate values.
	Space map[string][]float64
	// Method is "grid" or "random".
	Method string
	// MaxEvals caps the number of runs; 0 means unlimited for grid and 100
	// for random search.
	MaxEvals int
	// Metric picks the winner, e.g. "sharpe_ratio".
	Metric string
	// Seed drives combination sampling so sweeps are reproducible.
	Seed int64
}

// SweepRun holds the outcome of one parameter combination.
type SweepRun struct {
	Params  map[string]float64 `json:"params"`
	Metrics map[string]float64 `json:"metrics"`
	Err     string             `json:"error,omitempty"`
}

// SweepReport aggregates a finished sweep.
type SweepReport struct {
	Strategy   string             `json:"strategy"`
	Metric     string             `json:"metric"`
	BestParams map[string]float64 `json:"best_params"`
	BestValue  float64            `json:"best_value"`
	Runs       []SweepRun         `json:"runs"`
}

// Sweeper runs parameter sweeps across independent parallel workers. Each run
// owns its own ledger, series and indicator state; workers share nothing and
// join only when the report is aggregated.
type Sweeper struct {
	registry *strategy.Registry
	cfg      config.RunConfig
	log      zerolog.Logger
	workers  int
}

// NewSweeper creates a sweeper building strategies from the given registry.
// workers <= 0 uses one worker per CPU.
func NewSweeper(registry *strategy.Registry, cfg config.RunConfig, logger zerolog.Logger, workers int) *Sweeper {
	return &Sweeper{registry: registry, cfg: cfg, log: logger, workers: workers}
}

// Run executes every combination and returns the aggregated report. A run
// failing does not abort the sweep; its error is recorded in the report.
func (s *Sweeper) Run(ctx context.Context, spec SweepSpec, data map[string][]models.Bar) (*SweepReport, error) {
	combos, err := combinations(spec)
	if err != nil {
		return nil, err
	}
	if len(combos) == 0 {
		return nil, fmt.Errorf("sweep for %s has no parameter combinations", spec.Strategy)
	}

	metric := spec.Metric
	if metric == "" {
		metric = MetricSharpeRatio
	}

	pool := performance.NewWorkerPool(s.workers)
	pool.Start()
	defer pool.Stop()

	runs := make([]SweepRun, len(combos))
	var wg sync.WaitGroup
	for i, params := range combos {
		i, params := i, params
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			runs[i] = s.runOne(ctx, spec.Strategy, params, data)
		})
	}
	wg.Wait()

	report := &SweepReport{Strategy: spec.Strategy, Metric: metric, Runs: runs}
	best := false
	for _, run := range runs {
		if run.Err != "" {
			continue
		}
		v := run.Metrics[metric]
		if !best || v > report.BestValue {
			report.BestParams = run.Params
			report.BestValue = v
			best = true
		}
	}
	if !best {
		return report, fmt.Errorf("sweep for %s: every run failed", spec.Strategy)
	}
	return report, nil
}

func (s *Sweeper) runOne(ctx context.Context, name string, params map[string]float64, data map[string][]models.Bar) SweepRun {
	run := SweepRun{Params: params}

	strat, err := s.registry.Build(name, params)
	if err != nil {
		run.Err = err.Error()
		return run
	}

	results, err := New(s.cfg, s.log).Run(ctx, strat, data)
	if err != nil {
		run.Err = err.Error()
		return run
	}
	run.Metrics = results.Metrics
	return run
}

// combinations expands the parameter space per the spec's method.
func combinations(spec SweepSpec) ([]map[string]float64, error) {
	names := make([]string, 0, len(spec.Space))
	for name := range spec.Space {
		if len(spec.Space[name]) == 0 {
			return nil, fmt.Errorf("parameter %s has no candidate values", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	switch spec.Method {
	case "", "grid":
		combos := gridCombos(names, spec.Space)
		if spec.MaxEvals > 0 && len(combos) > spec.MaxEvals {
			rng := rand.New(rand.NewSource(spec.Seed))
			rng.Shuffle(len(combos), func(i, j int) { combos[i], combos[j] = combos[j], combos[i] })
			combos = combos[:spec.MaxEvals]
		}
		return combos, nil

	case "random":
		n := spec.MaxEvals
		if n <= 0 {
			n = 100
		}
		rng := rand.New(rand.NewSource(spec.Seed))
		combos := make([]map[string]float64, 0, n)
		for len(combos) < n {
			combo := make(map[string]float64, len(names))
			for _, name := range names {
				values := spec.Space[name]
				combo[name] = values[rng.Intn(len(values))]
			}
			combos = append(combos, combo)
		}
		return combos, nil

	default:
		return nil, fmt.Errorf("unsupported sweep method %q", spec.Method)
	}
}

func gridCombos(names []string, space map[string][]float64) []map[string]float64 {
	combos := []map[string]float64{{}}
	for _, name := range names {
		next := make([]map[string]float64, 0, len(combos)*len(space[name]))
		for _, combo := range combos {
			for _, v := range space[name] {
				extended := make(map[string]float64, len(combo)+1)
				for k, val := range combo {
					extended[k] = val
				}
				extended[name] = v
				next = append(next, extended)
			}
		}
		combos = next
	}
	return combos
}
