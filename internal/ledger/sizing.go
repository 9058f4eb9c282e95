package ledger

import "github.com/shopspring/decimal"

// DefaultRiskPct is the share of the account risked on one position.
const DefaultRiskPct = 0.02

// Shares returns floor(risk / (entry * stopPct)), the share count whose
// stop-out loses riskAmount. Non-positive inputs size to zero.
func Shares(riskAmount, entryPrice, stopPct float64) int64 {
	if riskAmount <= 0 || entryPrice <= 0 || stopPct <= 0 {
		return 0
	}
	perShare := decimal.NewFromFloat(entryPrice).Mul(decimal.NewFromFloat(stopPct))
	return decimal.NewFromFloat(riskAmount).Div(perShare).Floor().IntPart()
}

// RiskAmount returns accountSize * riskPct. A zero riskPct uses DefaultRiskPct.
func RiskAmount(accountSize, riskPct float64) float64 {
	if riskPct == 0 {
		riskPct = DefaultRiskPct
	}
	if accountSize <= 0 || riskPct < 0 {
		return 0
	}
	amount, _ := decimal.NewFromFloat(accountSize).Mul(decimal.NewFromFloat(riskPct)).Round(2).Float64()
	return amount
}

// Sizing is a complete position-sizing quote.
type Sizing struct {
	AccountSize float64 `json:"account_size" yaml:"account_size"`
	RiskPct     float64 `json:"risk_pct" yaml:"risk_pct"`
	RiskAmount  float64 `json:"risk_amount" yaml:"risk_amount"`
	EntryPrice  float64 `json:"entry_price" yaml:"entry_price"`
	StopPrice   float64 `json:"stop_price" yaml:"stop_price"`
	Shares      int64   `json:"shares" yaml:"shares"`
	Cost        float64 `json:"cost" yaml:"cost"`
}

// Quote sizes a position on entryPrice with a stopPct stop.
func Quote(accountSize, riskPct, entryPrice, stopPct float64) Sizing {
	if riskPct == 0 {
		riskPct = DefaultRiskPct
	}
	risk := RiskAmount(accountSize, riskPct)
	shares := Shares(risk, entryPrice, stopPct)
	entry := decimal.NewFromFloat(entryPrice)
	stop, _ := entry.Mul(decimal.NewFromInt(1).Sub(decimal.NewFromFloat(stopPct))).Round(4).Float64()
	cost, _ := entry.Mul(decimal.NewFromInt(shares)).Round(2).Float64()
	return Sizing{
		AccountSize: accountSize,
		RiskPct:     riskPct,
		RiskAmount:  risk,
		EntryPrice:  entryPrice,
		StopPrice:   stop,
		Shares:      shares,
		Cost:        cost,
	}
}
