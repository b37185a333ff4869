package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"algame/internal/store"
)

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Historical bar data management",
	}

	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataListCmd(app))
	cmd.AddCommand(newDataShowCmd(app))

	return cmd
}

func requireStore(app *App) error {
	if app.Store == nil {
		return fmt.Errorf("bar store unavailable; configure data.db_path")
	}
	return nil
}

func newDataImportCmd(app *App) *cobra.Command {
	var timeframe string

	cmd := &cobra.Command{
		Use:   "import <instrument> <file.csv>",
		Short: "Import CSV bars into the bar store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app); err != nil {
				return err
			}

			instrument, path := args[0], args[1]
			bars, err := store.LoadCSV(path)
			if err != nil {
				return err
			}
			if err := app.Store.SaveBars(cmd.Context(), instrument, timeframe, bars); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"instrument": instrument,
					"timeframe":  timeframe,
					"bars":       len(bars),
				})
			}
			output.Success("Imported %d bars for %s (%s)", len(bars), instrument, timeframe)
			return nil
		},
	}

	cmd.Flags().StringVar(&timeframe, "timeframe", "1d", "timeframe tag for the imported bars")
	return cmd
}

func newDataListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List instruments in the bar store",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app); err != nil {
				return err
			}

			instruments, err := app.Store.ListInstruments(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(instruments)
			}
			if len(instruments) == 0 {
				output.Dim("No instruments stored.")
				return nil
			}
			for _, instrument := range instruments {
				output.Println(instrument)
			}
			return nil
		},
	}
}

func newDataShowCmd(app *App) *cobra.Command {
	var (
		timeframe string
		tail      int
	)

	cmd := &cobra.Command{
		Use:   "show <instrument>",
		Short: "Show stored bars for an instrument",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := requireStore(app); err != nil {
				return err
			}

			bars, err := app.Store.GetBars(cmd.Context(), args[0], timeframe, time.Time{}, time.Time{})
			if err != nil {
				return err
			}
			if tail > 0 && len(bars) > tail {
				bars = bars[len(bars)-tail:]
			}
			if output.IsJSON() {
				return output.JSON(bars)
			}

			output.Bold("%-20s %10s %10s %10s %10s %10s", "TIMESTAMP", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME")
			for _, bar := range bars {
				output.Printf("%-20s %10.2f %10.2f %10.2f %10.2f %10s\n",
					bar.Timestamp.Format("2006-01-02 15:04"),
					bar.Open, bar.High, bar.Low, bar.Close,
					FormatVolume(bar.Volume),
				)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&timeframe, "timeframe", "1d", "timeframe to query")
	cmd.Flags().IntVar(&tail, "tail", 0, "show only the last N bars")
	return cmd
}
