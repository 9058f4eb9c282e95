package cli

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pivotscan/internal/backtest"
	"pivotscan/internal/errors"
	"pivotscan/internal/ledger"
	"pivotscan/internal/models"
	"pivotscan/internal/scan"
	"pivotscan/internal/series"
	"pivotscan/internal/store"
	"pivotscan/pkg/utils"
)

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the scanner over stored history",
		Long: `Replay the scanner session by session between --from and --to.

Every session is scanned with only the bars known on that day. Signals open
positions at the session close, sized from the account risk, up to
ledger.max_open_positions; open positions are checked against every later
bar with the usual stop, target and time exits. The replay uses a private
ledger and never touches stored positions.`,
		Example: `  pivotscan backtest --from 2023-01-03 --to 2023-12-29
  pivotscan backtest --from 2023-01-03 --min-score 45 --trades
  pivotscan backtest --from 2023-01-03 --json | jq '.summary'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)
			cfg := app.Config

			fromStr, _ := cmd.Flags().GetString("from")
			if fromStr == "" {
				return errors.NewValidationError("from", fromStr, "required")
			}
			from, err := parseDateFlag("from", fromStr)
			if err != nil {
				return err
			}
			toStr, _ := cmd.Flags().GetString("to")
			to, err := parseDateFlag("to", toStr)
			if err != nil {
				return err
			}
			minScore, _ := cmd.Flags().GetInt("min-score")
			if minScore < 0 || minScore > 100 {
				return errors.NewValidationError("min-score", minScore, "must be in [0, 100]")
			}
			account, _ := cmd.Flags().GetFloat64("account")
			if account == 0 {
				account = cfg.Ledger.AccountSize
			}
			risk, _ := cmd.Flags().GetFloat64("risk")
			if risk == 0 {
				risk = cfg.Ledger.RiskPct
			}

			index, universe, err := app.scanUniverse(cmd)
			if err != nil {
				return err
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
			if err := store.LoadSeries(ctx, s, bars, load, to); err != nil {
				return err
			}
			if to.IsZero() {
				to = latestSession(bars)
			}

			threshold := cfg.Scan.SignalThreshold
			if minScore > 0 && minScore < threshold {
				threshold = minScore
			}
			// Per-session scan events are only logged in debug mode.
			scanLog := app.Logger
			if scanLog.GetLevel() > zerolog.DebugLevel {
				scanLog = scanLog.Level(zerolog.WarnLevel)
			}
			orch := app.newScanner(cmd, bars, index, threshold, scan.WithLogger(scanLog))

			lc := cfg.Ledger
			engine := backtest.NewEngine(bars, orch, backtest.WithLogger(app.Logger))
			result, err := engine.Run(ctx, backtest.Config{
				From:        from,
				To:          to,
				MinScore:    minScore,
				AccountSize: account,
				RiskPct:     risk,
				Universe:    universe,
				IndexSymbol: index,
				Ledger: ledger.Config{
					StopPct:          lc.StopPct,
					TargetPct:        lc.TargetPct,
					MaxHoldDays:      lc.MaxHoldDays,
					MaxOpenPositions: lc.MaxOpenPositions,
					SinglePosition:   lc.SinglePosition,
				},
			})
			if err != nil {
				return err
			}

			showTrades, _ := cmd.Flags().GetBool("trades")
			return output.Render(result, func() error {
				return displayBacktest(output, result, showTrades)
			})
		},
	}
	cmd.Flags().String("from", "", "first session to replay (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "last session to replay (YYYY-MM-DD, default: latest)")
	cmd.Flags().Int("min-score", 0, "minimum score to enter (default: scan.signal_threshold)")
	cmd.Flags().Float64("account", 0, "starting account size (default: ledger.account_size)")
	cmd.Flags().Float64("risk", 0, "account fraction risked per entry (default: ledger.risk_pct)")
	cmd.Flags().String("universe", "", "universe YAML file (default: data.universe)")
	cmd.Flags().StringSlice("symbols", nil, "replay only these instruments")
	cmd.Flags().Int("workers", 0, "concurrent evaluations (default: scan.workers)")
	cmd.Flags().Bool("trades", false, "list every closed trade")
	return cmd
}

func latestSession(bars *series.Store) time.Time {
	var latest time.Time
	for _, sym := range bars.Instruments() {
		if b, ok := bars.Last(sym); ok && b.Date.After(latest) {
			latest = b.Date
		}
	}
	return latest
}

func displayBacktest(output *Output, r *backtest.Result, showTrades bool) error {
	output.Bold("Backtest %s to %s", r.From.Format(models.DateLayout), r.To.Format(models.DateLayout))
	output.Printf("  Sessions:      %d\n", r.Sessions)
	output.Printf("  Signals:       %d (%d not taken)\n", r.Signals, len(r.Skipped))
	output.Printf("  Start equity:  %s\n", utils.FormatCurrency(r.InitialEquity))
	output.Printf("  Final equity:  %s\n", utils.FormatCurrency(r.FinalEquity))
	output.Printf("  Max drawdown:  %s\n", output.FormatPercent(-r.MaxDrawdownPct))
	output.Println()

	if err := displaySummary(output, r.Summary); err != nil {
		return err
	}

	if showTrades && len(r.Trades) > 0 {
		output.Println()
		output.Bold("Trades")
		table := NewTable(output, "SYMBOL", "ENTRY", "EXIT", "STATUS", "DAYS", "RETURN", "P&L")
		for _, t := range r.Trades {
			table.AddRow(
				t.Instrument,
				t.EntryDate.Format(models.DateLayout),
				t.ExitDate.Format(models.DateLayout),
				string(t.Status),
				itoa(t.DaysHeld),
				output.FormatPercent(t.ReturnPct),
				output.FormatPnL(t.ReturnAmount),
			)
		}
		table.Render()
	}

	if len(r.Open) > 0 {
		output.Println()
		output.Bold("Open at end")
		table := NewTable(output, "SYMBOL", "ENTRY", "PRICE", "MARK", "UNREALIZED")
		for _, p := range r.Open {
			table.AddRow(
				p.Instrument,
				p.EntryDate.Format(models.DateLayout),
				ftoa(p.EntryPrice),
				ftoa(p.MarkPrice),
				output.FormatPercent(p.UnrealizedPct),
			)
		}
		table.Render()
	}
	return nil
}
