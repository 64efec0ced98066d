// Package sizing turns a risk budget into a share count that never overshoots it.
package sizing

import (
	"context"
	"fmt"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/risk"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Limits reported in Result.LimitedBy.
const (
	LimitRiskBudget   = "risk_budget"
	LimitMaxLoss      = "max_loss_cap"
	LimitPositionSize = "position_size_cap"
)

var hundred = decimal.NewFromInt(100)

// Request describes one long entry. Entry and Stop are in the instrument currency,
// Equity in the account currency. FXRate converts instrument to account currency;
// 0 means the currencies match.
type Request struct {
	Ticker     string        `json:"ticker"`
	Sleeve     domain.Sleeve `json:"sleeve"`
	Entry      float64       `json:"entry"`
	Stop       float64       `json:"stop"`
	Equity     float64       `json:"equity"`
	FXRate     float64       `json:"fx_rate"`
	Fractional bool          `json:"fractional"`
}

// Result is the sizing outcome. Money fields are in account currency.
type Result struct {
	Shares         float64  `json:"shares"`
	RiskPerShare   float64  `json:"risk_per_share"`
	RiskCashBudget float64  `json:"risk_cash_budget"`
	RiskDollars    float64  `json:"risk_dollars"`
	RiskPercent    float64  `json:"risk_percent"`
	PositionValue  float64  `json:"position_value"`
	PositionPct    float64  `json:"position_pct"`
	FXRate         float64  `json:"fx_rate"`
	LimitedBy      []string `json:"limited_by,omitempty"`
}

// Calculate sizes a position under profile p.
//
//	shares = floor(min(riskBudget, maxLossCash) / riskPerShare)
//
// then re-floored down to the sleeve's position-size cap and the max-loss cap.
// Flooring is to whole units, or to 0.01 units when Fractional is set.
func Calculate(p risk.Profile, req Request) (Result, error) {
	if err := validate(req); err != nil {
		return Result{}, err
	}

	places := int32(0)
	if req.Fractional {
		places = 2
	}

	fx := decimal.NewFromInt(1)
	if req.FXRate > 0 {
		fx = decimal.NewFromFloat(req.FXRate)
	}
	equity := decimal.NewFromFloat(req.Equity)
	entry := decimal.NewFromFloat(req.Entry).Mul(fx)
	rps := decimal.NewFromFloat(req.Entry).Sub(decimal.NewFromFloat(req.Stop)).Mul(fx)

	budget := equity.Mul(decimal.NewFromFloat(p.RiskPerTradePct)).Div(hundred)
	if p.MinRiskCash > 0 {
		budget = decimal.Max(budget, decimal.NewFromFloat(p.MinRiskCash))
	}
	if p.MaxRiskCash > 0 {
		budget = decimal.Min(budget, decimal.NewFromFloat(p.MaxRiskCash))
	}

	riskCash := budget
	limit := LimitRiskBudget
	var maxLoss decimal.Decimal
	if p.MaxLossPct > 0 {
		maxLoss = equity.Mul(decimal.NewFromFloat(p.MaxLossPct)).Div(hundred)
		if maxLoss.LessThan(riskCash) {
			riskCash = maxLoss
			limit = LimitMaxLoss
		}
	}

	shares := floorUnits(riskCash, rps, places)
	limited := []string{limit}

	sizeCap := equity.Mul(decimal.NewFromFloat(p.PositionSizeCap(req.Sleeve))).Div(hundred)
	if shares.Mul(entry).GreaterThan(sizeCap) {
		shares = floorUnits(sizeCap, entry, places)
		limited = append(limited, LimitPositionSize)
	}
	if p.MaxLossPct > 0 && shares.Mul(rps).GreaterThan(maxLoss) {
		shares = floorUnits(maxLoss, rps, places)
		limited = append(limited, LimitMaxLoss)
	}

	riskDollars := shares.Mul(rps)
	value := shares.Mul(entry)

	return Result{
		Shares:         shares.InexactFloat64(),
		RiskPerShare:   rps.Round(4).InexactFloat64(),
		RiskCashBudget: budget.Round(2).InexactFloat64(),
		RiskDollars:    riskDollars.Round(2).InexactFloat64(),
		RiskPercent:    riskDollars.Div(equity).Mul(hundred).Round(4).InexactFloat64(),
		PositionValue:  value.Round(2).InexactFloat64(),
		PositionPct:    value.Div(equity).Mul(hundred).Round(2).InexactFloat64(),
		FXRate:         fx.InexactFloat64(),
		LimitedBy:      limited,
	}, nil
}

// floorUnits returns the largest multiple of 10^-places whose cost per unit fits in cash.
func floorUnits(cash, perUnit decimal.Decimal, places int32) decimal.Decimal {
	units := cash.Div(perUnit).Truncate(places)
	step := decimal.New(1, -places)
	for units.IsPositive() && units.Mul(perUnit).GreaterThan(cash) {
		units = units.Sub(step)
	}
	return units
}

func validate(req Request) error {
	switch {
	case !(req.Equity > 0):
		return domain.NewValidationError("equity", "equity must be positive, got %v", req.Equity)
	case !(req.Entry > 0):
		return domain.NewValidationError("entry", "entry price must be positive, got %v", req.Entry)
	case !(req.Stop > 0):
		return domain.NewValidationError("stop", "stop price must be positive, got %v", req.Stop)
	case req.Stop >= req.Entry:
		return domain.NewValidationError("stop", "stop %v must be below entry %v for a long setup", req.Stop, req.Entry)
	case req.FXRate < 0:
		return domain.NewValidationError("fx_rate", "fx rate must not be negative")
	}
	return nil
}

// FXSource converts between currencies.
type FXSource interface {
	GetFXRate(ctx context.Context, from, to string) (float64, error)
}

// Sizer resolves FX for the instrument currency and sizes under the configured broker mode.
type Sizer struct {
	fx              FXSource
	accountCurrency string
	fractional      bool
	log             zerolog.Logger
}

// NewSizer creates a sizer.
func NewSizer(fx FXSource, accountCurrency string, fractional bool, log zerolog.Logger) *Sizer {
	return &Sizer{
		fx:              fx,
		accountCurrency: accountCurrency,
		fractional:      fractional,
		log:             log.With().Str("service", "sizing").Logger(),
	}
}

// Size converts from currency to the account currency and calls Calculate.
func (s *Sizer) Size(ctx context.Context, p risk.Profile, currency string, req Request) (Result, error) {
	req.Fractional = s.fractional
	req.FXRate = 1
	if currency != "" && currency != s.accountCurrency {
		rate, err := s.fx.GetFXRate(ctx, currency, s.accountCurrency)
		if err != nil {
			return Result{}, fmt.Errorf("failed to get %s/%s rate: %w", currency, s.accountCurrency, err)
		}
		if rate <= 0 {
			return Result{}, fmt.Errorf("invalid %s/%s rate %v", currency, s.accountCurrency, rate)
		}
		req.FXRate = rate
	}

	res, err := Calculate(p, req)
	if err != nil {
		return Result{}, err
	}
	s.log.Debug().
		Str("ticker", req.Ticker).
		Float64("shares", res.Shares).
		Float64("risk", res.RiskDollars).
		Strs("limited_by", res.LimitedBy).
		Msg("Position sized")
	return res, nil
}
