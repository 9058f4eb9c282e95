package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"pivotscan/internal/errors"
	"pivotscan/internal/feed"
	"pivotscan/internal/logging"
	"pivotscan/internal/models"
	"pivotscan/internal/store"
)

// importResult reports the bars appended for one instrument.
type importResult struct {
	Symbol   string `json:"symbol" yaml:"symbol"`
	Read     int    `json:"read" yaml:"read"`
	Appended int    `json:"appended" yaml:"appended"`
	Last     string `json:"last,omitempty" yaml:"last,omitempty"`
}

func addDataCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newImportCmd(app))
	rootCmd.AddCommand(newBarsCmd(app))
}

func newImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [symbol file]",
		Short: "Import daily bars from CSV",
		Long: `Import daily bars from CSV files into the database.

With a symbol and file, imports that file. Without arguments, imports every
*.csv file of the data directory, one instrument per file.

Files need a header with date, open, high, low, close and volume columns.`,
		Example: `  pivotscan import AAPL ./data/AAPL.csv
  pivotscan import --dir ./data --new-only`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return errors.NewValidationError("args", len(args), "expected <symbol> <file> or no arguments")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)
			newOnly, _ := cmd.Flags().GetBool("new-only")

			s, err := app.Store(ctx)
			if err != nil {
				return err
			}

			results := []importResult{}
			if len(args) == 2 {
				bars, err := feed.ReadFile(args[1])
				if err != nil {
					return err
				}
				res, err := importBars(ctx, s, strings.ToUpper(args[0]), bars, newOnly)
				if err != nil {
					return err
				}
				results = append(results, res)
			} else {
				dir, _ := cmd.Flags().GetString("dir")
				if dir == "" {
					dir = app.resolvePath(app.Config.Data.CSVDir)
				}
				if dir == "" {
					return errors.NewValidationError("dir", "", "no data directory configured")
				}
				var src feed.MarketDataFeed = feed.NewCSVFeed(dir)
				symbols, err := src.Symbols(ctx)
				if err != nil {
					return err
				}
				for _, sym := range symbols {
					bars, err := src.Bars(ctx, sym)
					if err != nil {
						return err
					}
					res, err := importBars(ctx, s, sym, bars, newOnly)
					if err != nil {
						return err
					}
					results = append(results, res)
				}
			}

			return output.Render(results, func() error {
				if len(results) == 0 {
					output.Warning("No CSV files found")
					return nil
				}
				table := NewTable(output, "SYMBOL", "READ", "APPENDED", "LAST")
				for _, r := range results {
					table.AddRow(r.Symbol, itoa(r.Read), itoa(r.Appended), r.Last)
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().String("dir", "", "directory of SYMBOL.csv files (default: data.csv_dir)")
	cmd.Flags().Bool("new-only", false, "skip bars at or before the last stored session")
	return cmd
}

// importBars appends bars for symbol. With newOnly, bars already covered by
// the stored history are dropped first; otherwise they are rejected as out of
// order and the whole batch fails.
func importBars(ctx context.Context, s store.BarStore, symbol string, bars []models.Bar, newOnly bool) (importResult, error) {
	res := importResult{Symbol: symbol, Read: len(bars)}
	if newOnly {
		last, ok, err := s.LastBarDate(ctx, symbol)
		if err != nil {
			return res, err
		}
		if ok {
			kept := bars[:0:0]
			for _, b := range bars {
				if b.Date.After(last) {
					kept = append(kept, b)
				}
			}
			bars = kept
		}
	}
	n, err := s.AppendBars(ctx, symbol, bars)
	if err != nil {
		return res, errors.Wrapf(err, "importing %s", symbol)
	}
	res.Appended = n
	log := logging.FromContext(ctx)
	log.Info().Str("symbol", symbol).Int("read", res.Read).Int("appended", n).Msg("Bars imported")
	if last, ok, err := s.LastBarDate(ctx, symbol); err == nil && ok {
		res.Last = last.Format(models.DateLayout)
	}
	return res, nil
}

func newBarsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bars <symbol>",
		Short: "Show stored bars for an instrument",
		Example: `  pivotscan bars AAPL --from 2024-01-01
  pivotscan bars AAPL --tail 5 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			var filter store.DateRange
			var err error
			fromStr, _ := cmd.Flags().GetString("from")
			toStr, _ := cmd.Flags().GetString("to")
			if filter.Start, err = parseDateFlag("from", fromStr); err != nil {
				return err
			}
			if filter.End, err = parseDateFlag("to", toStr); err != nil {
				return err
			}

			s, err := app.Store(ctx)
			if err != nil {
				return err
			}
			bars, err := s.GetBars(ctx, symbol, filter)
			if err != nil {
				return err
			}
			if tail, _ := cmd.Flags().GetInt("tail"); tail > 0 && len(bars) > tail {
				bars = bars[len(bars)-tail:]
			}

			return output.Render(bars, func() error {
				if len(bars) == 0 {
					output.Warning("No bars stored for %s", symbol)
					return nil
				}
				table := NewTable(output, "DATE", "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME")
				for _, b := range bars {
					table.AddRow(
						b.Date.Format(models.DateLayout),
						ftoa(b.Open), ftoa(b.High), ftoa(b.Low), ftoa(b.Close),
						itoa64(b.Volume),
					)
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().String("from", "", "first session (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last session (YYYY-MM-DD)")
	cmd.Flags().Int("tail", 0, "show only the last N bars")
	return cmd
}
