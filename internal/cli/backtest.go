package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"algame/internal/engine"
	"algame/internal/logging"
	"algame/internal/models"
	"algame/internal/store"
)

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run and analyze backtests",
	}

	cmd.AddCommand(newBacktestRunCmd(app))
	cmd.AddCommand(newBacktestSweepCmd(app))
	cmd.AddCommand(newBacktestCompareCmd(app))

	return cmd
}

func newBacktestRunCmd(app *App) *cobra.Command {
	var (
		stratName  string
		paramsFlag string
		csvFlags   []string
		instFlags  []string
		timeframe  string
		backend    string
		outPath    string
		chart      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single backtest",
		Long: `Run a single backtest of a registered strategy.

Data comes either from CSV files (--csv SPY=spy.csv, repeatable) or from the
bar store (--instrument SPY --timeframe 1d). Run options default to the
configured values; flags override them per run.`,
		Example: `  algame backtest run --strategy sma_cross --csv SPY=spy.csv
  algame backtest run --strategy rsi_reversion --params "period=7,oversold=25" \
      --instrument SPY --instrument QQQ --timeframe 1d --chart`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			params, err := parseParams(paramsFlag)
			if err != nil {
				return err
			}
			strat, err := app.Registry.Build(stratName, params)
			if err != nil {
				return err
			}
			data, err := loadRunData(cmd, app, csvFlags, instFlags, timeframe)
			if err != nil {
				return err
			}

			be, err := app.Backend(backend)
			if err != nil {
				return err
			}
			if err := be.LoadStrategy(strat); err != nil {
				return err
			}
			if err := be.LoadData(data); err != nil {
				return err
			}

			runCfg := app.Config.Run
			log := logging.RunLogger(app.Logger, be.Name(), strat.Name())
			log.Info().Int("instruments", len(data)).Msg("Starting backtest")

			handle, err := be.Run(cmd.Context(), runCfg)
			if err != nil {
				return err
			}
			results, err := be.Results(handle)
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := results.WriteFile(outPath); err != nil {
					return err
				}
				output.Dim("Results written to %s", outPath)
			}

			if output.IsJSON() {
				return output.JSON(results)
			}
			printResults(output, results, chart)
			return nil
		},
	}

	cmd.Flags().StringVarP(&stratName, "strategy", "s", "", "strategy name (required)")
	cmd.Flags().StringVarP(&paramsFlag, "params", "p", "", "strategy parameters, e.g. \"fast=10,slow=30\"")
	cmd.Flags().StringArrayVar(&csvFlags, "csv", nil, "CSV data source as INSTRUMENT=path (repeatable)")
	cmd.Flags().StringArrayVarP(&instFlags, "instrument", "i", nil, "instrument to load from the bar store (repeatable)")
	cmd.Flags().StringVar(&timeframe, "timeframe", "1d", "timeframe for bar store lookups")
	cmd.Flags().StringVarP(&backend, "backend", "b", "native", "backend: native or replay")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write results JSON to file")
	cmd.Flags().BoolVar(&chart, "chart", false, "render an ASCII equity curve")
	cmd.MarkFlagRequired("strategy")

	return cmd
}

func newBacktestSweepCmd(app *App) *cobra.Command {
	var (
		stratName string
		spaceFlag string
		method    string
		maxEvals  int
		metric    string
		seed      int64
		workers   int
		csvFlags  []string
		instFlags []string
		timeframe string
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sweep strategy parameters",
		Long: `Run one backtest per parameter combination and report the best one.

The space flag lists candidate values per parameter: discrete values
separated by semicolons ("fast=5;10;15") or a start:stop:step range
("slow=20:60:10"). Grid search tries every combination; random search
samples up to --max-evals combinations.`,
		Example: `  algame backtest sweep --strategy sma_cross \
      --space "fast=5:25:5,slow=20:100:20" --metric sharpe_ratio \
      --csv SPY=spy.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			space, err := parseSpace(spaceFlag)
			if err != nil {
				return err
			}
			data, err := loadRunData(cmd, app, csvFlags, instFlags, timeframe)
			if err != nil {
				return err
			}

			sweeper := engine.NewSweeper(app.Registry, app.Config.Run, app.Logger, workers)
			report, err := sweeper.Run(cmd.Context(), engine.SweepSpec{
				Strategy: stratName,
				Space:    space,
				Method:   method,
				MaxEvals: maxEvals,
				Metric:   metric,
				Seed:     seed,
			}, data)
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := writeJSONFile(outPath, report); err != nil {
					return err
				}
				output.Dim("Sweep report written to %s", outPath)
			}

			if output.IsJSON() {
				return output.JSON(report)
			}
			printSweepReport(output, report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&stratName, "strategy", "s", "", "strategy name (required)")
	cmd.Flags().StringVar(&spaceFlag, "space", "", "parameter space (required)")
	cmd.Flags().StringVar(&method, "method", "grid", "search method: grid or random")
	cmd.Flags().IntVar(&maxEvals, "max-evals", 0, "cap on the number of runs (0 = method default)")
	cmd.Flags().StringVar(&metric, "metric", engine.MetricSharpeRatio, "metric that picks the winner")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed for sampling")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel workers (0 = NumCPU)")
	cmd.Flags().StringArrayVar(&csvFlags, "csv", nil, "CSV data source as INSTRUMENT=path (repeatable)")
	cmd.Flags().StringArrayVarP(&instFlags, "instrument", "i", nil, "instrument to load from the bar store (repeatable)")
	cmd.Flags().StringVar(&timeframe, "timeframe", "1d", "timeframe for bar store lookups")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write sweep report JSON to file")
	cmd.MarkFlagRequired("strategy")
	cmd.MarkFlagRequired("space")

	return cmd
}

func newBacktestCompareCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <results.json>...",
		Short: "Compare saved backtest results",
		Long: `Compare previously saved results files side by side.

Each file is a results JSON written by 'backtest run --output'. Rows are
sorted by Sharpe ratio.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			results := make(map[string]*engine.Results, len(args))
			for _, path := range args {
				r, err := engine.ReadResultsFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				name := r.Strategy
				if _, dup := results[name]; dup {
					name = fmt.Sprintf("%s (%s)", r.Strategy, path)
				}
				results[name] = r
			}

			rows := engine.Compare(results)
			if output.IsJSON() {
				return output.JSON(rows)
			}

			output.Bold("%-24s %12s %10s %10s %8s %8s", "STRATEGY", "RETURN", "DRAWDOWN", "SHARPE", "WIN%", "TRADES")
			for _, row := range rows {
				output.Printf("%-24s %12s %9.2f%% %10.2f %7.1f%% %8d\n",
					row.Strategy,
					FormatPercent(row.TotalReturn),
					row.MaxDrawdown,
					row.SharpeRatio,
					row.WinRate,
					row.TotalTrades,
				)
			}
			return nil
		},
	}

	return cmd
}

// parseParams parses "name=value,name=value" into a parameter map.
func parseParams(s string) (map[string]float64, error) {
	params := map[string]float64{}
	if strings.TrimSpace(s) == "" {
		return params, nil
	}
	for _, pair := range strings.Split(s, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("invalid parameter %q (want name=value)", pair)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for parameter %s: %w", name, err)
		}
		params[strings.TrimSpace(name)] = f
	}
	return params, nil
}

// parseSpace parses "fast=5;10;15,slow=20:60:10" into a candidate-value map.
func parseSpace(s string) (map[string][]float64, error) {
	space := map[string][]float64{}
	for _, pair := range strings.Split(s, ",") {
		name, spec, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("invalid space entry %q (want name=values)", pair)
		}
		name = strings.TrimSpace(name)
		values, err := parseSpaceValues(spec)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		space[name] = values
	}
	if len(space) == 0 {
		return nil, fmt.Errorf("empty parameter space")
	}
	return space, nil
}

func parseSpaceValues(spec string) ([]float64, error) {
	if strings.Contains(spec, ":") {
		parts := strings.Split(spec, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid range %q (want start:stop:step)", spec)
		}
		start, err1 := strconv.ParseFloat(parts[0], 64)
		stop, err2 := strconv.ParseFloat(parts[1], 64)
		step, err3 := strconv.ParseFloat(parts[2], 64)
		if err1 != nil || err2 != nil || err3 != nil || step <= 0 {
			return nil, fmt.Errorf("invalid range %q", spec)
		}
		var values []float64
		for v := start; v <= stop+1e-9; v += step {
			values = append(values, v)
		}
		return values, nil
	}

	var values []float64
	for _, part := range strings.Split(spec, ";") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q", part)
		}
		values = append(values, v)
	}
	return values, nil
}

// loadRunData gathers bars for a run from CSV flags and/or the bar store.
func loadRunData(cmd *cobra.Command, app *App, csvFlags, instFlags []string, timeframe string) (map[string][]models.Bar, error) {
	data := map[string][]models.Bar{}

	for _, flag := range csvFlags {
		instrument, path, ok := strings.Cut(flag, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --csv value %q (want INSTRUMENT=path)", flag)
		}
		bars, err := store.LoadCSV(path)
		if err != nil {
			return nil, err
		}
		data[instrument] = bars
	}

	if len(instFlags) > 0 {
		if app.Store == nil {
			return nil, fmt.Errorf("bar store unavailable; use --csv or configure data.db_path")
		}
		for _, instrument := range instFlags {
			bars, err := app.Store.GetBars(cmd.Context(), instrument, timeframe, time.Time{}, time.Time{})
			if err != nil {
				return nil, err
			}
			data[instrument] = bars
		}
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("no data sources given; use --csv or --instrument")
	}
	return data, nil
}

func printResults(output *Output, r *engine.Results, chart bool) {
	output.Bold("Backtest: %s (%s)", r.Strategy, r.Backend)
	if r.Incomplete {
		output.Warning("Run was canceled before completion; results are partial.")
	}

	output.Printf("  Final equity:   %s\n", FormatCurrency(r.FinalEquity()))
	output.Printf("  Total return:   %s\n", output.FormatSignedPercent(r.Metrics[engine.MetricTotalReturn]))
	output.Printf("  Max drawdown:   %.2f%%\n", r.Metrics[engine.MetricMaxDrawdown])
	output.Printf("  Sharpe ratio:   %.2f\n", r.Metrics[engine.MetricSharpeRatio])
	output.Printf("  Win rate:       %.1f%%\n", r.Metrics[engine.MetricWinRate])
	output.Printf("  Trades:         %d\n", int(r.Metrics[engine.MetricTotalTrades]))

	if len(r.Trades) > 0 {
		output.Bold("Trades")
		for _, t := range r.Trades {
			output.Printf("  %-8s %5s %s  %s -> %s  %s (%s)\n",
				t.Instrument,
				t.Side,
				FormatQuantity(t.Size),
				FormatCurrency(t.EntryPrice),
				FormatCurrency(t.ExitPrice),
				output.FormatPnL(t.PnL),
				t.ExitReason,
			)
		}
	}

	if len(r.Diagnostics) > 0 {
		output.Bold("Diagnostics")
		reasons := map[string]int{}
		for _, d := range r.Diagnostics {
			reasons[d.Reason]++
		}
		keys := make([]string, 0, len(reasons))
		for k := range reasons {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			output.Printf("  %s: %d\n", k, reasons[k])
		}
	}

	if chart && len(r.EquityCurve) > 1 {
		output.Println()
		output.Println(r.EquityCurveASCII(72, 16))
	}
}

func printSweepReport(output *Output, report *engine.SweepReport) {
	output.Bold("Sweep: %s (%d runs, best by %s)", report.Strategy, len(report.Runs), report.Metric)
	output.Printf("  Best value:  %.4f\n", report.BestValue)
	output.Printf("  Best params: %s\n", formatParams(report.BestParams))

	failed := 0
	for _, run := range report.Runs {
		if run.Err != "" {
			failed++
		}
	}
	if failed > 0 {
		output.Warning("%d of %d runs failed", failed, len(report.Runs))
	}
}

func writeJSONFile(path string, data interface{}) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func formatParams(params map[string]float64) string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%g", name, params[name]))
	}
	return strings.Join(parts, " ")
}
