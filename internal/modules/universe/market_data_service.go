package universe

import (
	"context"
	"fmt"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/rs/zerolog"
)

// FXSource converts between currencies.
type FXSource interface {
	GetRate(ctx context.Context, from, to string) (float64, error)
}

// RegimeSource classifies the market.
type RegimeSource interface {
	GetMarketRegime(ctx context.Context) (domain.MarketRegime, error)
	GetVolatilityRegime(ctx context.Context) (domain.VolatilityRegime, error)
}

// MarketDataService serves bars from the history database, FX rates from the
// exchange-rate client and the regime from the detector. It implements
// domain.MarketDataProvider and domain.VolatilityRegimeProvider.
type MarketDataService struct {
	history  *HistoryDB
	fx       FXSource
	regime   RegimeSource
	barLimit int
	log      zerolog.Logger
}

// NewMarketDataService creates the provider. The regime source is attached
// separately because the detector itself reads bars through this service.
func NewMarketDataService(history *HistoryDB, fx FXSource, log zerolog.Logger) *MarketDataService {
	return &MarketDataService{
		history:  history,
		fx:       fx,
		barLimit: DefaultBarLimit,
		log:      log.With().Str("service", "market_data").Logger(),
	}
}

// SetRegimeSource attaches the regime detector.
func (s *MarketDataService) SetRegimeSource(regime RegimeSource) {
	s.regime = regime
}

// GetDailyBars returns stored bars for ticker, newest-first. An empty history is an error.
func (s *MarketDataService) GetDailyBars(ctx context.Context, ticker string) (domain.Bars, error) {
	bars, err := s.history.GetDailyBars(ctx, ticker, s.barLimit)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars stored for %s", NormalizeTicker(ticker))
	}
	return bars, nil
}

// GetFXRate returns how many units of `to` one unit of `from` buys.
func (s *MarketDataService) GetFXRate(ctx context.Context, from, to string) (float64, error) {
	if from == to || from == "" || to == "" {
		return 1, nil
	}
	if s.fx == nil {
		return 0, fmt.Errorf("no FX source configured for %s->%s", from, to)
	}
	return s.fx.GetRate(ctx, from, to)
}

// GetMarketRegime returns the trend regime, SIDEWAYS when no detector is attached.
func (s *MarketDataService) GetMarketRegime(ctx context.Context) (domain.MarketRegime, error) {
	if s.regime == nil {
		return domain.RegimeSideways, nil
	}
	return s.regime.GetMarketRegime(ctx)
}

// GetVolatilityRegime returns the volatility regime, NORMAL when no detector is attached.
func (s *MarketDataService) GetVolatilityRegime(ctx context.Context) (domain.VolatilityRegime, error) {
	if s.regime == nil {
		return domain.VolNormal, nil
	}
	return s.regime.GetVolatilityRegime(ctx)
}
