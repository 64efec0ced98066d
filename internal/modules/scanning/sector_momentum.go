package scanning

import (
	"context"
	"sort"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/pkg/formulas"
	"github.com/rs/zerolog"
)

// SectorMomentumLookback is the return window the sector factor scores.
const SectorMomentumLookback = 20

// SectorRefresher is the single writer of the sector momentum cache. It computes the
// 20-bar return of each sector's ETF and replaces the cached entry.
type SectorRefresher struct {
	market domain.MarketDataProvider
	cache  domain.SectorMomentumCache
	etfs   map[string]string // sector -> ETF ticker
	log    zerolog.Logger
}

// NewSectorRefresher creates a refresher over the sector -> ETF map.
func NewSectorRefresher(market domain.MarketDataProvider, cache domain.SectorMomentumCache, etfs map[string]string, log zerolog.Logger) *SectorRefresher {
	return &SectorRefresher{
		market: market,
		cache:  cache,
		etfs:   etfs,
		log:    log.With().Str("service", "sector_momentum").Logger(),
	}
}

// Refresh updates every sector it can and returns the new returns. Sectors whose ETF
// cannot be read keep whatever is cached and are reported as failures.
func (r *SectorRefresher) Refresh(ctx context.Context) (map[string]float64, []Failure) {
	sectors := make([]string, 0, len(r.etfs))
	for sector := range r.etfs {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)

	updated := make(map[string]float64, len(sectors))
	var failures []Failure
	for _, sector := range sectors {
		etf := r.etfs[sector]
		bars, err := r.market.GetDailyBars(ctx, etf)
		if err != nil {
			failures = append(failures, Failure{Ticker: etf, Stage: StageBars, Reason: err.Error()})
			continue
		}
		ret := formulas.PercentReturn(bars.Closes(), SectorMomentumLookback)
		if ret == nil {
			failures = append(failures, Failure{Ticker: etf, Stage: StageSnapshot, Reason: "not enough bars for 20-day return"})
			continue
		}
		if err := r.cache.Set(sector, *ret); err != nil {
			failures = append(failures, Failure{Ticker: etf, Stage: "cache", Reason: err.Error()})
			continue
		}
		updated[sector] = *ret
	}

	r.log.Info().
		Int("updated", len(updated)).
		Int("failed", len(failures)).
		Msg("Sector momentum refreshed")
	return updated, failures
}
