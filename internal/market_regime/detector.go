// Package market_regime classifies the broad market from a benchmark's daily bars.
package market_regime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/pkg/formulas"
	"github.com/rs/zerolog"
)

const (
	trendLongMA  = 200
	trendShortMA = 50
	volWindow    = 20

	// Annualized volatility bounds, in percent.
	lowVolCeiling  = 12.0
	highVolFloor   = 25.0
	defaultRefresh = time.Hour
)

// BarSource loads daily bars, newest-first.
type BarSource interface {
	GetDailyBars(ctx context.Context, ticker string) (domain.Bars, error)
}

// State is one classification of the benchmark.
type State struct {
	Benchmark  string                  `json:"benchmark"`
	Trend      domain.MarketRegime     `json:"trend"`
	Volatility domain.VolatilityRegime `json:"volatility"`
	// AnnualizedVol is the 20-day realized volatility in percent.
	AnnualizedVol float64   `json:"annualized_vol"`
	DetectedAt    time.Time `json:"detected_at"`
}

// ClassifyTrend labels newest-first benchmark closes.
// BULLISH: price above MA200 and MA50 above MA200. BEARISH: both below.
// Anything else, or fewer than 200 closes, is SIDEWAYS.
func ClassifyTrend(closesNewestFirst []float64) domain.MarketRegime {
	if len(closesNewestFirst) < trendLongMA {
		return domain.RegimeSideways
	}

	long := formulas.CalculateSMA(closesNewestFirst, trendLongMA)
	short := formulas.CalculateSMA(closesNewestFirst, trendShortMA)
	if long == nil || short == nil {
		return domain.RegimeSideways
	}

	price := closesNewestFirst[0]
	switch {
	case price > *long && *short > *long:
		return domain.RegimeBullish
	case price < *long && *short < *long:
		return domain.RegimeBearish
	default:
		return domain.RegimeSideways
	}
}

// ClassifyVolatility labels the annualized volatility of the last 20 daily returns.
// Too little history reads as NORMAL.
func ClassifyVolatility(closesNewestFirst []float64) (domain.VolatilityRegime, float64) {
	if len(closesNewestFirst) < volWindow+1 {
		return domain.VolNormal, 0
	}

	vol := formulas.AnnualizedVolatility(formulas.DailyReturns(closesNewestFirst[:volWindow+1])) * 100
	switch {
	case vol <= 0:
		return domain.VolNormal, vol
	case vol < lowVolCeiling:
		return domain.VolLow, vol
	case vol > highVolFloor:
		return domain.VolHigh, vol
	default:
		return domain.VolNormal, vol
	}
}

// Detector classifies the benchmark and caches the result for a refresh interval.
type Detector struct {
	bars      BarSource
	benchmark string
	refresh   time.Duration
	now       func() time.Time
	log       zerolog.Logger

	mu    sync.RWMutex
	state *State
}

// NewDetector creates a regime detector over benchmark.
func NewDetector(bars BarSource, benchmark string, log zerolog.Logger) *Detector {
	return &Detector{
		bars:      bars,
		benchmark: benchmark,
		refresh:   defaultRefresh,
		now:       time.Now,
		log:       log.With().Str("component", "market_regime_detector").Logger(),
	}
}

// Current returns the cached state, recomputing it when older than the refresh interval.
func (d *Detector) Current(ctx context.Context) (State, error) {
	d.mu.RLock()
	cached := d.state
	d.mu.RUnlock()

	if cached != nil && d.now().Sub(cached.DetectedAt) < d.refresh {
		return *cached, nil
	}
	return d.Refresh(ctx)
}

// Refresh recomputes the state from fresh benchmark bars.
func (d *Detector) Refresh(ctx context.Context) (State, error) {
	bars, err := d.bars.GetDailyBars(ctx, d.benchmark)
	if err != nil {
		return State{}, fmt.Errorf("failed to load benchmark %s: %w", d.benchmark, err)
	}

	closes := bars.Closes()
	volRegime, vol := ClassifyVolatility(closes)
	state := State{
		Benchmark:     d.benchmark,
		Trend:         ClassifyTrend(closes),
		Volatility:    volRegime,
		AnnualizedVol: vol,
		DetectedAt:    d.now(),
	}

	d.mu.Lock()
	d.state = &state
	d.mu.Unlock()

	d.log.Info().
		Str("benchmark", d.benchmark).
		Str("trend", string(state.Trend)).
		Str("volatility", string(state.Volatility)).
		Float64("annualized_vol", vol).
		Int("bars", len(bars)).
		Msg("Market regime detected")

	return state, nil
}

// GetMarketRegime returns the trend regime.
func (d *Detector) GetMarketRegime(ctx context.Context) (domain.MarketRegime, error) {
	state, err := d.Current(ctx)
	if err != nil {
		return domain.RegimeSideways, err
	}
	return state.Trend, nil
}

// GetVolatilityRegime returns the volatility regime.
func (d *Detector) GetVolatilityRegime(ctx context.Context) (domain.VolatilityRegime, error) {
	state, err := d.Current(ctx)
	if err != nil {
		return domain.VolNormal, err
	}
	return state.Volatility, nil
}
