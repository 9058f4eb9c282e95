package cli

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pivotscan/internal/analysis/regime"
	"pivotscan/internal/analysis/scoring"
	"pivotscan/internal/feed"
	"pivotscan/internal/metrics"
	"pivotscan/internal/models"
	"pivotscan/internal/scan"
	"pivotscan/internal/series"
	"pivotscan/internal/store"
	"pivotscan/pkg/utils"
)

func addScanCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newRegimeCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
}

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan the universe for base patterns",
		Long: `Scan every instrument of the universe on one session.

Each instrument is run through the pattern detectors and scored. Entries at
or above the signal threshold become signals when the market regime is
tradable; entries at or above the watch threshold, and blocked signals, go to
the watchlist.`,
		Example: `  pivotscan scan
  pivotscan scan --date 2024-06-14 --universe universe.yaml
  pivotscan scan --json | jq '.signals[].instrument'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)
			cfg := app.Config

			dateStr, _ := cmd.Flags().GetString("date")
			date, err := parseDateFlag("date", dateStr)
			if err != nil {
				return err
			}

			index, universe, err := app.scanUniverse(cmd)
			if err != nil {
				return err
			}
			if file, _ := cmd.Flags().GetString("metrics-file"); file != "" {
				cfg.Metrics.TextFile = file
				if app.Metrics == nil {
					app.Metrics = metrics.NewRecorder()
				}
			}

			s, err := app.Store(ctx)
			if err != nil {
				return err
			}
			bars := series.NewStore()
			var load []string
			if len(universe) > 0 {
				load = append([]string{index}, universe...)
			}
			if err := store.LoadSeries(ctx, s, bars, load, date); err != nil {
				return err
			}

			orch := app.newScanner(cmd, bars, index, cfg.Scan.SignalThreshold,
				scan.WithLogger(app.Logger), scan.WithMetrics(app.Metrics))
			result, err := orch.Scan(ctx, scan.Request{Date: date, Universe: universe, IndexSymbol: index})
			if err != nil {
				return err
			}

			return output.Render(result, func() error {
				return displayScan(output, result, index)
			})
		},
	}
	cmd.Flags().String("date", "", "session to scan (YYYY-MM-DD, default: latest)")
	cmd.Flags().String("universe", "", "universe YAML file (default: data.universe)")
	cmd.Flags().StringSlice("symbols", nil, "scan only these instruments")
	cmd.Flags().Int("workers", 0, "concurrent evaluations (default: scan.workers)")
	cmd.Flags().String("metrics-file", "", "write Prometheus metrics to this file")
	return cmd
}

// scanUniverse resolves the index and instrument list from --universe and
// --symbols, falling back to data.universe. An empty list means every stored
// instrument.
func (a *App) scanUniverse(cmd *cobra.Command) (string, []string, error) {
	cfg := a.Config
	index := cfg.Scan.IndexSymbol
	var universe []string
	path, _ := cmd.Flags().GetString("universe")
	if path == "" {
		path = a.resolvePath(cfg.Data.Universe)
	}
	if path != "" {
		u, err := feed.LoadUniverse(path)
		if err != nil {
			return "", nil, err
		}
		if u.Index != "" {
			index = u.Index
		}
		universe = u.Symbols
	}
	if symbols, _ := cmd.Flags().GetStringSlice("symbols"); len(symbols) > 0 {
		universe = universe[:0]
		for _, sym := range symbols {
			universe = append(universe, strings.ToUpper(strings.TrimSpace(sym)))
		}
	}
	return index, universe, nil
}

// newScanner builds an orchestrator over bars from the configuration and
// the --workers flag.
func (a *App) newScanner(cmd *cobra.Command, bars *series.Store, index string, signalThreshold int, opts ...scan.Option) *scan.Orchestrator {
	cfg := a.Config
	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.Scan.Workers
	}
	gate := regime.NewGate(regime.Config{SMAPeriod: cfg.Regime.SMAPeriod, FailOpen: cfg.Regime.FailOpen})
	return scan.NewOrchestrator(bars, gate, scoring.NewSignalScorer(), scan.Config{
		SignalThreshold: signalThreshold,
		WatchThreshold:  cfg.Scan.WatchThreshold,
		Workers:         workers,
		WindowLength:    cfg.Scan.WindowLength,
		IndexSymbol:     index,
	}, opts...)
}

func displayScan(output *Output, result *scan.Result, index string) error {
	output.Bold("Scan %s", result.Date.Format(models.DateLayout))
	displayRegime(output, index, result.Regime)
	output.Println()

	if len(result.Signals) == 0 {
		output.Dim("No signals")
	} else {
		output.Bold("Signals")
		table := NewTable(output, "SYMBOL", "SCORE", "PATTERNS", "CLOSE", "PIVOT", "VOL")
		for _, e := range result.Signals {
			table.AddRow(
				e.Instrument,
				green.Sprint(itoa(e.Score)),
				patternNames(e.Kinds()),
				ftoa(e.Close),
				pivotText(e.Pivot),
				utils.FormatRatio(e.VolumeRatio),
			)
		}
		table.Render()
	}
	output.Println()

	if len(result.Watchlist) == 0 {
		output.Dim("Watchlist empty")
	} else {
		output.Bold("Watchlist")
		table := NewTable(output, "SYMBOL", "SCORE", "PATTERNS", "CLOSE", "NEEDS", "TAGS")
		for _, e := range result.Watchlist {
			table.AddRow(
				e.Instrument,
				yellow.Sprint(itoa(e.Score)),
				patternNames(e.Kinds()),
				ftoa(e.Close),
				nearMissText(e.NearMisses),
				strings.Join(e.Tags, ","),
			)
		}
		table.Render()
	}

	if len(result.Skipped) > 0 {
		output.Println()
		output.Dim("Skipped %d instruments", len(result.Skipped))
		for _, sk := range result.Skipped {
			output.Dim("  %s: %s", sk.Symbol, sk.Reason)
		}
	}
	return nil
}

func displayRegime(output *Output, index string, info regime.Info) {
	status := string(info.Status)
	switch info.Status {
	case regime.StatusTradable:
		status = green.Sprint(status)
	case regime.StatusBlocked:
		status = red.Sprint(status)
	default:
		status = yellow.Sprint(status)
	}
	output.Printf("Regime %s: %s", index, status)
	if info.SMA200 > 0 {
		output.Printf("  close %s  sma %s", ftoa(info.Close), ftoa(info.SMA200))
	}
	output.Printf("  trend %s  distribution days %d\n", info.Trend, info.DistributionDays)
	if !info.Tradable {
		output.Warning("New entries are blocked")
	}
}

func newRegimeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regime",
		Short: "Show the market regime",
		Long:  "Evaluate the market regime gate on the index instrument.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)
			cfg := app.Config

			dateStr, _ := cmd.Flags().GetString("date")
			date, err := parseDateFlag("date", dateStr)
			if err != nil {
				return err
			}
			index, _ := cmd.Flags().GetString("index")
			if index == "" {
				index = cfg.Scan.IndexSymbol
			}
			index = strings.ToUpper(index)

			s, err := app.Store(ctx)
			if err != nil {
				return err
			}
			bars := series.NewStore()
			if err := store.LoadSeries(ctx, s, bars, []string{index}, date); err != nil {
				return err
			}

			gate := regime.NewGate(regime.Config{SMAPeriod: cfg.Regime.SMAPeriod, FailOpen: cfg.Regime.FailOpen})
			info := evaluateRegime(bars, gate, index, date)
			if !info.Tradable {
				app.Logger.Debug().Str("index", index).Str("status", string(info.Status)).Msg("Regime not tradable")
			}

			return output.Render(info, func() error {
				displayRegime(output, index, info)
				return nil
			})
		},
	}
	cmd.Flags().String("date", "", "session to evaluate (YYYY-MM-DD, default: latest)")
	cmd.Flags().String("index", "", "index instrument (default: scan.index_symbol)")
	return cmd
}

// evaluateRegime judges the regime at date, or at the last stored session of
// index when date is zero. A missing index yields the gate's unknown verdict.
func evaluateRegime(bars *series.Store, gate *regime.Gate, index string, date time.Time) regime.Info {
	if date.IsZero() {
		last, ok := bars.Last(index)
		if !ok {
			return gate.Evaluate(nil)
		}
		date = last.Date
	}
	w, err := bars.WindowUpTo(index, date, gate.Lookback())
	if err != nil {
		return gate.Evaluate(nil)
	}
	return gate.Evaluate(w)
}
