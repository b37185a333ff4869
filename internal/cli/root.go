package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"algame/internal/adapter"
	"algame/internal/config"
	"algame/internal/store"
	"algame/internal/strategy"
	"algame/internal/strategy/builtins"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry *strategy.Registry
	Store    store.BarStore
}

// Backend builds the requested backtesting backend.
func (a *App) Backend(name string) (adapter.Backend, error) {
	switch name {
	case "", "native":
		return adapter.NewNative(a.Logger), nil
	case "replay":
		return adapter.NewReplay(a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want native or replay)", name)
	}
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: strategy.NewRegistry(),
	}
	builtins.Register(app.Registry)

	if cfg.Data.DBPath != "" {
		barStore, err := store.NewSQLiteStore(cfg.Data.DBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to open bar store, data commands unavailable")
		} else {
			app.Store = barStore
			logger.Debug().Str("path", cfg.Data.DBPath).Msg("SQLite bar store opened")
		}
	}

	rootCmd := &cobra.Command{
		Use:   "algame",
		Short: "algame - event-driven backtesting CLI",
		Long: `algame is an event-driven backtesting framework for trading strategies.

It replays historical OHLCV bars through a strategy, fills orders at the
next bar's open, and reports equity curves, trades and performance metrics.
Multiple backends share one strategy contract, so the same strategy runs
unchanged against the native engine or the single-asset replay engine.

Use 'algame help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/algame/config.yaml)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newStrategyCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newDataCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("algame v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			rc := app.Config.Run
			output.Bold("Run")
			output.Printf("  initial cash:    %s\n", FormatCurrency(rc.InitialCash))
			output.Printf("  commission rate: %.4f\n", rc.CommissionRate)
			output.Printf("  slippage:        %s %.4f\n", rc.SlippageModel, rc.SlippageValue)
			output.Printf("  allow short:     %v\n", rc.AllowShort)
			output.Printf("  margin ratio:    %.2f\n", rc.MarginRatio)
			output.Printf("  strict data:     %v\n", rc.StrictData)
			output.Bold("Data")
			output.Printf("  db path: %s\n", app.Config.Data.DBPath)
			output.Bold("Logging")
			output.Printf("  level: %s  file: %v\n", app.Config.Logging.Level, app.Config.Logging.File)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.ConfigDir()})
			} else {
				output.Println(config.ConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Run.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func newStrategyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Strategy management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			names := app.Registry.List()
			if output.IsJSON() {
				return output.JSON(names)
			}
			for _, name := range names {
				output.Println(name)
			}
			return nil
		},
	})

	return cmd
}
