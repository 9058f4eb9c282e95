// Package report summarizes realized ledger trades.
package report

import (
	"github.com/shopspring/decimal"

	"pivotscan/internal/models"
)

// lossFloor stands in for the gross loss, as a fraction, when no trade lost.
const lossFloor = 0.001

// recentTrades is the number of trailing trades kept in a summary.
const recentTrades = 5

// Summary is the performance of a set of closed trades. Percentages are
// returns in percent; a trade with a non-positive return counts as a loss.
type Summary struct {
	Trades            int                           `json:"trades" yaml:"trades"`
	Wins              int                           `json:"wins" yaml:"wins"`
	Losses            int                           `json:"losses" yaml:"losses"`
	WinRate           float64                       `json:"win_rate" yaml:"win_rate"`
	AvgReturnPct      float64                       `json:"avg_return_pct" yaml:"avg_return_pct"`
	AvgWinPct         float64                       `json:"avg_win_pct" yaml:"avg_win_pct"`
	AvgLossPct        float64                       `json:"avg_loss_pct" yaml:"avg_loss_pct"`
	TotalReturnPct    float64                       `json:"total_return_pct" yaml:"total_return_pct"`
	ProfitFactor      float64                       `json:"profit_factor" yaml:"profit_factor"`
	TotalReturnAmount float64                       `json:"total_return_amount" yaml:"total_return_amount"`
	AvgDaysHeld       float64                       `json:"avg_days_held" yaml:"avg_days_held"`
	ByStatus          map[models.PositionStatus]int `json:"by_status" yaml:"by_status"`
	Recent            []models.ClosedTrade          `json:"recent" yaml:"recent"`
}

// Summarize computes the summary of trades, given in exit order.
func Summarize(trades []models.ClosedTrade) Summary {
	s := Summary{
		Trades:   len(trades),
		ByStatus: make(map[models.PositionStatus]int),
		Recent:   []models.ClosedTrade{},
	}
	if len(trades) == 0 {
		return s
	}

	var total, grossWin, grossLoss, amount decimal.Decimal
	days := 0
	for _, t := range trades {
		ret := decimal.NewFromFloat(t.ReturnPct)
		total = total.Add(ret)
		if t.ReturnPct > 0 {
			s.Wins++
			grossWin = grossWin.Add(ret)
		} else {
			s.Losses++
			grossLoss = grossLoss.Add(ret)
		}
		amount = amount.Add(decimal.NewFromFloat(t.ReturnAmount))
		days += t.DaysHeld
		s.ByStatus[t.Status]++
	}

	n := decimal.NewFromInt(int64(len(trades)))
	s.WinRate = ratio(decimal.NewFromInt(int64(s.Wins)).Mul(decimal.NewFromInt(100)), n)
	s.AvgReturnPct = ratio(total, n)
	s.TotalReturnPct = total.Round(4).InexactFloat64()
	if s.Wins > 0 {
		s.AvgWinPct = ratio(grossWin, decimal.NewFromInt(int64(s.Wins)))
	}
	if s.Losses > 0 {
		s.AvgLossPct = ratio(grossLoss, decimal.NewFromInt(int64(s.Losses)))
	}

	loss := grossLoss.Abs().Div(decimal.NewFromInt(100))
	if loss.IsZero() {
		loss = decimal.NewFromFloat(lossFloor)
	}
	s.ProfitFactor = grossWin.Div(decimal.NewFromInt(100)).Div(loss).Round(4).InexactFloat64()
	s.TotalReturnAmount = amount.Round(2).InexactFloat64()
	s.AvgDaysHeld = ratio(decimal.NewFromInt(int64(days)), n)

	start := len(trades) - recentTrades
	if start < 0 {
		start = 0
	}
	s.Recent = append(s.Recent, trades[start:]...)
	return s
}

func ratio(a, b decimal.Decimal) float64 {
	return a.Div(b).Round(4).InexactFloat64()
}
