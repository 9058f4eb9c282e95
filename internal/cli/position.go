package cli

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pivotscan/internal/errors"
	"pivotscan/internal/ledger"
	"pivotscan/internal/models"
	"pivotscan/internal/report"
	"pivotscan/internal/store"
	"pivotscan/pkg/utils"
)

func addPositionCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newPositionCmd(app))
	rootCmd.AddCommand(newSizeCmd(app))
	rootCmd.AddCommand(newPerfCmd(app))
}

// openLedger loads the persisted position history.
func (a *App) openLedger(ctx context.Context) (*ledger.Ledger, *store.SQLiteStore, error) {
	s, err := a.Store(ctx)
	if err != nil {
		return nil, nil, err
	}
	lc := a.Config.Ledger
	l := ledger.New(ledger.Config{
		StopPct:          lc.StopPct,
		TargetPct:        lc.TargetPct,
		MaxHoldDays:      lc.MaxHoldDays,
		MaxOpenPositions: lc.MaxOpenPositions,
		SinglePosition:   lc.SinglePosition,
	}, ledger.WithRepository(s), ledger.WithLogger(a.Logger), ledger.WithMetrics(a.Metrics))
	if err := l.Load(ctx); err != nil {
		return nil, nil, err
	}
	return l, s, nil
}

// priceArg parses the optional price after the symbol. Zero means none given.
func priceArg(args []string) (float64, error) {
	if len(args) < 2 {
		return 0, nil
	}
	price, err := strconv.ParseFloat(args[1], 64)
	if err != nil || price <= 0 {
		return 0, errors.NewValidationError("price", args[1], "must be a positive number")
	}
	return price, nil
}

// sessionBar returns the stored bar of symbol on date, or the latest stored
// bar when date is zero.
func sessionBar(ctx context.Context, s store.BarStore, symbol string, date time.Time) (models.Bar, error) {
	bars, err := s.GetBars(ctx, symbol, store.DateRange{Start: date, End: date})
	if err != nil {
		return models.Bar{}, err
	}
	if len(bars) == 0 {
		what := "latest session"
		if !date.IsZero() {
			what = date.Format(models.DateLayout)
		}
		return models.Bar{}, errors.NewDataError("bar", symbol, "no stored bar for "+what, errors.ErrDataNotFound)
	}
	return bars[len(bars)-1], nil
}

func newPositionCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "position",
		Aliases: []string{"pos"},
		Short:   "Manage positions",
		Long:    "Open, close, list and evaluate positions in the ledger.",
	}
	cmd.AddCommand(newPositionOpenCmd(app))
	cmd.AddCommand(newPositionCloseCmd(app))
	cmd.AddCommand(newPositionListCmd(app))
	cmd.AddCommand(newPositionEvaluateCmd(app))
	return cmd
}

func newPositionOpenCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <symbol> [price]",
		Short: "Open a position",
		Long: `Open a position at an entry price.

Without a price the close of the entry session is used. Without --shares the
position is sized so a stop-out loses --risk of the account.`,
		Example: `  pivotscan position open AAPL 190.5 --date 2024-06-14
  pivotscan position open NVDA --shares 50 --stop 0.08 --target 0.25`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			dateStr, _ := cmd.Flags().GetString("date")
			date, err := parseDateFlag("date", dateStr)
			if err != nil {
				return err
			}
			price, err := priceArg(args)
			if err != nil {
				return err
			}
			shares, _ := cmd.Flags().GetInt64("shares")
			stopPct, _ := cmd.Flags().GetFloat64("stop")
			targetPct, _ := cmd.Flags().GetFloat64("target")
			hold, _ := cmd.Flags().GetInt("hold")
			score, _ := cmd.Flags().GetInt("score")
			kinds, _ := cmd.Flags().GetStringSlice("patterns")

			l, s, err := app.openLedger(ctx)
			if err != nil {
				return err
			}
			if price == 0 || date.IsZero() {
				bar, err := sessionBar(ctx, s, symbol, date)
				if err != nil {
					return err
				}
				if price == 0 {
					price = bar.Close
				}
				date = bar.Date
			}
			if stopPct == 0 {
				stopPct = app.Config.Ledger.StopPct
			}
			if shares == 0 {
				risk, _ := cmd.Flags().GetFloat64("risk")
				if risk == 0 {
					risk = app.Config.Ledger.RiskPct
				}
				shares = ledger.Quote(app.Config.Ledger.AccountSize, risk, price, stopPct).Shares
			}

			patterns := make([]models.PatternKind, 0, len(kinds))
			for _, k := range kinds {
				kind := models.PatternKind(strings.ToLower(strings.TrimSpace(k)))
				if !kind.Valid() {
					return errors.NewValidationError("patterns", k, "unknown pattern kind")
				}
				patterns = append(patterns, kind)
			}

			pos, err := l.Open(ctx, ledger.OpenRequest{
				Instrument:  symbol,
				EntryDate:   date,
				EntryPrice:  price,
				StopPct:     stopPct,
				TargetPct:   targetPct,
				MaxHoldDays: hold,
				Shares:      shares,
				Score:       score,
				Patterns:    patterns,
			})
			if err != nil {
				return err
			}

			return output.Render(pos, func() error {
				output.Success("Opened %s at %s", pos.Instrument, ftoa(pos.EntryPrice))
				output.Printf("  Shares:   %s\n", utils.FormatQuantity(pos.Shares))
				output.Printf("  Stop:     %s\n", ftoa(pos.StopPrice))
				output.Printf("  Target:   %s\n", ftoa(pos.TargetPrice))
				output.Printf("  Max hold: %s\n", pos.MaxHoldDate.Format(models.DateLayout))
				output.Dim("  ID: %s", pos.ID)
				return nil
			})
		},
	}
	cmd.Flags().String("date", "", "entry session (YYYY-MM-DD, default: latest)")
	cmd.Flags().Int64("shares", 0, "share count (default: risk-based sizing)")
	cmd.Flags().Float64("stop", 0, "stop distance as a fraction (default: ledger.stop_pct)")
	cmd.Flags().Float64("target", 0, "target distance as a fraction (default: ledger.target_pct)")
	cmd.Flags().Int("hold", 0, "maximum holding days (default: ledger.max_hold_days)")
	cmd.Flags().Float64("risk", 0, "account fraction risked when sizing (default: ledger.risk_pct)")
	cmd.Flags().Int("score", 0, "signal score at entry")
	cmd.Flags().StringSlice("patterns", nil, "pattern kinds behind the entry")
	return cmd
}

func newPositionCloseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <symbol> [price]",
		Short: "Close open positions manually",
		Example: `  pivotscan position close AAPL 201.3
  pivotscan position close AAPL --date 2024-07-01`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)
			symbol := strings.ToUpper(args[0])

			dateStr, _ := cmd.Flags().GetString("date")
			date, err := parseDateFlag("date", dateStr)
			if err != nil {
				return err
			}
			price, err := priceArg(args)
			if err != nil {
				return err
			}

			l, s, err := app.openLedger(ctx)
			if err != nil {
				return err
			}
			if price == 0 || date.IsZero() {
				bar, err := sessionBar(ctx, s, symbol, date)
				if err != nil {
					return err
				}
				if price == 0 {
					price = bar.Close
				}
				date = bar.Date
			}

			trades, err := l.Close(ctx, symbol, price, date)
			if err != nil {
				return err
			}
			return output.Render(trades, func() error {
				for _, t := range trades {
					output.Success("Closed %s at %s", t.Instrument, ftoa(t.ExitPrice))
					output.Printf("  Return: %s  (%s)\n", output.FormatPercent(t.ReturnPct), output.FormatPnL(t.ReturnAmount))
					output.Printf("  Held:   %d days\n", t.DaysHeld)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("date", "", "exit session (YYYY-MM-DD, default: latest)")
	return cmd
}

func newPositionListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)
			all, _ := cmd.Flags().GetBool("all")

			l, _, err := app.openLedger(ctx)
			if err != nil {
				return err
			}
			positions := l.OpenPositions()
			if all {
				positions = l.Positions()
			}

			return output.Render(positions, func() error {
				if len(positions) == 0 {
					output.Dim("No positions")
					return nil
				}
				table := NewTable(output, "SYMBOL", "STATUS", "ENTRY", "PRICE", "SHARES", "STOP", "TARGET", "EXIT")
				for _, p := range positions {
					exit := "-"
					if p.ExitPrice != nil && p.ExitDate != nil {
						exit = ftoa(*p.ExitPrice) + " " + p.ExitDate.Format(models.DateLayout)
					}
					status := string(p.Status)
					if p.IsOpen() {
						status = cyan.Sprint(status)
					}
					table.AddRow(
						p.Instrument,
						status,
						p.EntryDate.Format(models.DateLayout),
						ftoa(p.EntryPrice),
						utils.FormatQuantity(p.Shares),
						ftoa(p.StopPrice),
						ftoa(p.TargetPrice),
						exit,
					)
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().Bool("all", false, "include closed positions")
	return cmd
}

func newPositionEvaluateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Apply stored sessions to open positions",
		Long: `Replay the stored sessions after each entry, up to --date, through the
stop, target and time exit rules.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)

			dateStr, _ := cmd.Flags().GetString("date")
			date, err := parseDateFlag("date", dateStr)
			if err != nil {
				return err
			}

			l, s, err := app.openLedger(ctx)
			if err != nil {
				return err
			}
			closed, err := evaluateOpen(ctx, l, s, date)
			if err != nil {
				return err
			}

			return output.Render(closed, func() error {
				if len(closed) == 0 {
					output.Dim("No exits triggered (%d open)", len(l.OpenPositions()))
					return nil
				}
				table := NewTable(output, "SYMBOL", "EXIT", "DATE", "PRICE", "RETURN", "DAYS")
				for _, t := range closed {
					table.AddRow(
						t.Instrument,
						string(t.Status),
						t.ExitDate.Format(models.DateLayout),
						ftoa(t.ExitPrice),
						output.FormatPercent(t.ReturnPct),
						itoa(t.DaysHeld),
					)
				}
				table.Render()
				return nil
			})
		},
	}
	cmd.Flags().String("date", "", "last session to apply (YYYY-MM-DD, default: all)")
	return cmd
}

// evaluateOpen feeds each open instrument its stored bars after the earliest
// open entry, in date order, stopping at end.
func evaluateOpen(ctx context.Context, l *ledger.Ledger, s store.BarStore, end time.Time) ([]models.ClosedTrade, error) {
	earliest := make(map[string]time.Time)
	for _, p := range l.OpenPositions() {
		if e, ok := earliest[p.Instrument]; !ok || p.EntryDate.Before(e) {
			earliest[p.Instrument] = p.EntryDate
		}
	}

	closed := []models.ClosedTrade{}
	for _, sym := range l.OpenInstruments() {
		bars, err := s.GetBars(ctx, sym, store.DateRange{Start: earliest[sym].AddDate(0, 0, 1), End: end})
		if err != nil {
			return nil, err
		}
		for _, bar := range bars {
			trades, err := l.Evaluate(ctx, sym, bar)
			if err != nil {
				return nil, err
			}
			closed = append(closed, trades...)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ExitDate.Before(closed[j].ExitDate)
	})
	return closed, nil
}

func newSizeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "size <entry-price>",
		Short: "Size a position from account risk",
		Example: `  pivotscan size 190.5
  pivotscan size 42 --account 50000 --risk 0.01 --stop 0.08`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			entry, err := strconv.ParseFloat(args[0], 64)
			if err != nil || entry <= 0 {
				return errors.NewValidationError("entry", args[0], "must be a positive price")
			}
			account, _ := cmd.Flags().GetFloat64("account")
			if account == 0 {
				account = app.Config.Ledger.AccountSize
			}
			risk, _ := cmd.Flags().GetFloat64("risk")
			if risk == 0 {
				risk = app.Config.Ledger.RiskPct
			}
			stop, _ := cmd.Flags().GetFloat64("stop")
			if stop == 0 {
				stop = app.Config.Ledger.StopPct
			}
			if stop <= 0 || stop >= 1 {
				return errors.NewValidationError("stop", stop, "must be between 0 and 1")
			}

			q := ledger.Quote(account, risk, entry, stop)
			return output.Render(q, func() error {
				output.Bold("Position size")
				output.Printf("  Account:  %s\n", utils.FormatCurrency(q.AccountSize))
				output.Printf("  Risk:     %s (%.1f%%)\n", utils.FormatCurrency(q.RiskAmount), q.RiskPct*100)
				output.Printf("  Entry:    %s\n", ftoa(q.EntryPrice))
				output.Printf("  Stop:     %s\n", ftoa(q.StopPrice))
				output.Printf("  Shares:   %s\n", utils.FormatQuantity(q.Shares))
				output.Printf("  Cost:     %s\n", utils.FormatCurrency(q.Cost))
				if q.Shares == 0 {
					output.Warning("Risk budget is below one share")
				}
				return nil
			})
		},
	}
	cmd.Flags().Float64("account", 0, "account size (default: ledger.account_size)")
	cmd.Flags().Float64("risk", 0, "risk per trade as a fraction (default: ledger.risk_pct)")
	cmd.Flags().Float64("stop", 0, "stop distance as a fraction (default: ledger.stop_pct)")
	return cmd
}

func newPerfCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "perf",
		Aliases: []string{"performance"},
		Short:   "Summarize closed-trade performance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)

			l, _, err := app.openLedger(ctx)
			if err != nil {
				return err
			}
			summary := report.Summarize(l.ClosedTrades())

			return output.Render(summary, func() error {
				return displaySummary(output, summary)
			})
		},
	}
}

func displaySummary(output *Output, s report.Summary) error {
	if s.Trades == 0 {
		output.Dim("No closed trades")
		return nil
	}
	output.Bold("Performance")
	output.Printf("  Trades:        %d (%d wins, %d losses)\n", s.Trades, s.Wins, s.Losses)
	output.Printf("  Win rate:      %.1f%%\n", s.WinRate)
	output.Printf("  Avg return:    %s\n", output.FormatPercent(s.AvgReturnPct))
	output.Printf("  Avg win:       %s\n", output.FormatPercent(s.AvgWinPct))
	output.Printf("  Avg loss:      %s\n", output.FormatPercent(s.AvgLossPct))
	output.Printf("  Total return:  %s\n", output.FormatPercent(s.TotalReturnPct))
	output.Printf("  Total P&L:     %s\n", output.FormatPnL(s.TotalReturnAmount))
	output.Printf("  Profit factor: %s\n", utils.FormatRatio(s.ProfitFactor))
	output.Printf("  Avg days held: %.1f\n", s.AvgDaysHeld)
	output.Println()

	statuses := []models.PositionStatus{
		models.PositionClosedTarget, models.PositionClosedStop,
		models.PositionClosedTime, models.PositionClosedManual,
	}
	for _, st := range statuses {
		if n := s.ByStatus[st]; n > 0 {
			output.Printf("  %-14s %d\n", string(st)+":", n)
		}
	}

	if len(s.Recent) > 0 {
		output.Println()
		output.Bold("Recent trades")
		table := NewTable(output, "SYMBOL", "EXIT", "DATE", "RETURN", "P&L")
		for _, t := range s.Recent {
			table.AddRow(
				t.Instrument,
				string(t.Status),
				t.ExitDate.Format(models.DateLayout),
				output.FormatPercent(t.ReturnPct),
				output.FormatPnL(t.ReturnAmount),
			)
		}
		table.Render()
	}
	return nil
}
