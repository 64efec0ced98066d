package clientdata

import (
	"time"

	"github.com/rs/zerolog"
)

type sectorMomentumEntry struct {
	Return    float64   `json:"return_20d"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SectorMomentumCache stores 20-day sector ETF returns with a 24h TTL.
// It implements domain.SectorMomentumCache; a miss, a stale entry or a read
// error all read as absent so scorers fall back to a neutral score.
type SectorMomentumCache struct {
	repo *Repository
	ttl  time.Duration
	log  zerolog.Logger
}

// NewSectorMomentumCache creates a cache over repo.
func NewSectorMomentumCache(repo *Repository, log zerolog.Logger) *SectorMomentumCache {
	return &SectorMomentumCache{
		repo: repo,
		ttl:  TTLSectorMomentum,
		log:  log.With().Str("component", "sector_momentum_cache").Logger(),
	}
}

// Get returns the cached 20-day return for sector, if fresh.
func (c *SectorMomentumCache) Get(sector string) (float64, bool) {
	var entry sectorMomentumEntry
	found, err := c.repo.Load(TableSectorMomentum, sector, &entry, false)
	if err != nil {
		c.log.Warn().Err(err).Str("sector", sector).Msg("Sector momentum read failed, treating as miss")
		return 0, false
	}
	if !found {
		return 0, false
	}
	return entry.Return, true
}

// Set replaces the cached return for sector.
func (c *SectorMomentumCache) Set(sector string, twentyDayReturn float64) error {
	return c.repo.Store(TableSectorMomentum, sector, sectorMomentumEntry{
		Return:    twentyDayReturn,
		UpdatedAt: c.repo.now().UTC(),
	}, c.ttl)
}

// Clear drops every cached sector.
func (c *SectorMomentumCache) Clear() error {
	return c.repo.Clear(TableSectorMomentum)
}
