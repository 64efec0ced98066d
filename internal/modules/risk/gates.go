package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/rs/zerolog"
)

// GateCandidate is the incremental exposure a new trade would add, in account currency.
type GateCandidate struct {
	Ticker        string        `json:"ticker"`
	Sleeve        domain.Sleeve `json:"sleeve"`
	Sector        string        `json:"sector"`
	Cluster       string        `json:"cluster"`
	PositionValue float64       `json:"position_value"`
	RiskDollars   float64       `json:"risk_dollars"`
}

// Exposure aggregates the open-position set once so every candidate of a scan is gated
// against the same snapshot. Values are in account currency.
type Exposure struct {
	Equity        float64                   `json:"equity"`
	SleeveValue   map[domain.Sleeve]float64 `json:"sleeve_value"`
	ClusterValue  map[string]float64        `json:"cluster_value"`
	SectorValue   map[string]float64        `json:"sector_value"`
	OpenRisk      float64                   `json:"open_risk"`
	PositionCount int                       `json:"position_count"`
}

// NewExposure aggregates open positions. rate converts a position currency into the
// account currency; nil means every position is already in account currency.
// HEDGE positions count toward value caps and position count but not open risk.
func NewExposure(positions []domain.Position, equity float64, rate func(currency string) float64) Exposure {
	e := Exposure{
		Equity:       equity,
		SleeveValue:  make(map[domain.Sleeve]float64),
		ClusterValue: make(map[string]float64),
		SectorValue:  make(map[string]float64),
	}
	for _, p := range positions {
		if p.Status != domain.PositionOpen {
			continue
		}
		fx := 1.0
		if rate != nil {
			fx = rate(p.Currency)
		}
		value := p.MarketValue() * fx

		e.PositionCount++
		e.SleeveValue[p.Sleeve] += value
		if p.Cluster != "" {
			e.ClusterValue[p.Cluster] += value
		}
		if p.Sector != "" {
			e.SectorValue[p.Sector] += value
		}
		if p.Sleeve != domain.SleeveHedge {
			e.OpenRisk += p.OpenRisk() * fx
		}
	}
	return e
}

// pct returns v as a percent of equity, rounded to 2 decimals.
func (e Exposure) pct(v float64) float64 {
	if e.Equity <= 0 {
		return math.Inf(1)
	}
	return math.Round(v/e.Equity*10000) / 100
}

// Evaluate runs every gate independently and passes only if all pass.
// Caps are inclusive (current <= limit); the position count must stay strictly
// below the maximum before adding the candidate.
func Evaluate(p Profile, c GateCandidate, e Exposure) domain.RiskGateResult {
	gates := []domain.GateCheck{
		capGate(domain.GateSleeveCap, e.pct(e.SleeveValue[c.Sleeve]+c.PositionValue), p.SleeveCap(c.Sleeve)),
		groupGate(domain.GateClusterCap, e, e.ClusterValue, c.Cluster, c.PositionValue, p.ClusterCapPct),
		groupGate(domain.GateSectorCap, e, e.SectorValue, c.Sector, c.PositionValue, p.SectorCapPct),
	}

	risk := e.OpenRisk
	if c.Sleeve != domain.SleeveHedge {
		risk += c.RiskDollars
	}
	gates = append(gates, capGate(domain.GateOpenRiskCap, e.pct(risk), p.MaxOpenRiskPct))

	gates = append(gates, domain.GateCheck{
		Name:    domain.GateMaxPositions,
		Passed:  e.PositionCount < p.MaxPositions,
		Current: float64(e.PositionCount),
		Limit:   float64(p.MaxPositions),
	})

	result := domain.RiskGateResult{Passed: true, Gates: gates}
	for _, g := range gates {
		if !g.Passed {
			result.Passed = false
		}
	}
	return result
}

func capGate(name domain.GateName, current, limit float64) domain.GateCheck {
	return domain.GateCheck{Name: name, Passed: current <= limit, Current: current, Limit: limit}
}

// groupGate caps a named group. A candidate without a group label only counts itself.
func groupGate(name domain.GateName, e Exposure, values map[string]float64, key string, add, limit float64) domain.GateCheck {
	existing := 0.0
	if key != "" {
		existing = values[key]
	}
	return capGate(name, e.pct(existing+add), limit)
}

// FXSource converts between currencies.
type FXSource interface {
	GetFXRate(ctx context.Context, from, to string) (float64, error)
}

// Validator reads the open-position set and gates candidates against it.
type Validator struct {
	positions       domain.PositionStore
	fx              FXSource
	accountCurrency string
	log             zerolog.Logger
}

// NewValidator creates a risk gate validator.
func NewValidator(positions domain.PositionStore, fx FXSource, accountCurrency string, log zerolog.Logger) *Validator {
	return &Validator{
		positions:       positions,
		fx:              fx,
		accountCurrency: accountCurrency,
		log:             log.With().Str("service", "risk_gates").Logger(),
	}
}

// LoadExposure reads open positions once and converts them to account currency.
// A currency whose rate cannot be fetched fails the whole read; gating against a
// partial book would understate exposure.
func (v *Validator) LoadExposure(ctx context.Context, equity float64) (Exposure, error) {
	open, err := v.positions.GetOpen(ctx)
	if err != nil {
		return Exposure{}, fmt.Errorf("failed to read open positions: %w", err)
	}

	rates := map[string]float64{v.accountCurrency: 1, "": 1}
	for _, p := range open {
		if _, ok := rates[p.Currency]; ok {
			continue
		}
		r, err := v.fx.GetFXRate(ctx, p.Currency, v.accountCurrency)
		if err != nil {
			return Exposure{}, fmt.Errorf("failed to get %s/%s rate: %w", p.Currency, v.accountCurrency, err)
		}
		rates[p.Currency] = r
	}

	e := NewExposure(open, equity, func(c string) float64 { return rates[c] })
	v.log.Debug().
		Int("positions", e.PositionCount).
		Float64("open_risk", e.OpenRisk).
		Msg("Loaded exposure")
	return e, nil
}

// Validate loads a fresh exposure and gates a single candidate.
func (v *Validator) Validate(ctx context.Context, p Profile, c GateCandidate, equity float64) (domain.RiskGateResult, error) {
	e, err := v.LoadExposure(ctx, equity)
	if err != nil {
		return domain.RiskGateResult{}, err
	}
	result := Evaluate(p, c, e)
	if !result.Passed {
		for _, g := range result.Failed() {
			v.log.Info().
				Str("ticker", c.Ticker).
				Str("gate", string(g.Name)).
				Float64("current", g.Current).
				Float64("limit", g.Limit).
				Msg("Risk gate failed")
		}
	}
	return result, nil
}
