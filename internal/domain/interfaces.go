package domain

import "context"

// MarketDataProvider supplies bars, FX and the market regime.
// Every call is fallible; the scan treats a failure as a per-ticker skip.
type MarketDataProvider interface {
	// GetDailyBars returns daily bars for ticker, newest-first.
	GetDailyBars(ctx context.Context, ticker string) (Bars, error)
	// GetFXRate returns how many units of `to` one unit of `from` buys.
	GetFXRate(ctx context.Context, from, to string) (float64, error)
	GetMarketRegime(ctx context.Context) (MarketRegime, error)
}

// VolatilityRegimeProvider is implemented by market-data providers that also classify
// market-wide volatility for the adaptive entry buffer.
type VolatilityRegimeProvider interface {
	GetVolatilityRegime(ctx context.Context) (VolatilityRegime, error)
}

// ProtectionMutation decides the next protection state for a freshly loaded position.
// Returning a nil entry and nil error means "no change".
type ProtectionMutation func(current Position) (*StopHistoryEntry, error)

// PositionStore persists positions and their stop history.
type PositionStore interface {
	// GetOpen returns all OPEN positions with their security metadata.
	GetOpen(ctx context.Context) ([]Position, error)
	GetAll(ctx context.Context) ([]Position, error)
	// GetByID returns ErrPositionNotFound when no row matches.
	GetByID(ctx context.Context, id int64) (*Position, error)
	Create(ctx context.Context, p Position) (int64, error)
	Close(ctx context.Context, id int64, exitPrice float64) error
	// UpdateProtection runs mutate against the current row inside one transaction and
	// persists the returned state together with its history row.
	UpdateProtection(ctx context.Context, id int64, mutate ProtectionMutation) (*StopHistoryEntry, error)
	GetStopHistory(ctx context.Context, positionID int64) ([]StopHistoryEntry, error)
}

// ExpectancyStore reads and replaces aggregated expectancy slices.
type ExpectancyStore interface {
	// GetSlice returns nil, nil when no slice exists for key.
	GetSlice(ctx context.Context, key ExpectancyKey) (*ExpectancySlice, error)
	ReplaceAll(ctx context.Context, slices []ExpectancySlice) error
}

// SectorMomentumCache holds 20-day sector returns. Misses and stale entries read as absent.
type SectorMomentumCache interface {
	Get(sector string) (float64, bool)
	Set(sector string, twentyDayReturn float64) error
	Clear() error
}
