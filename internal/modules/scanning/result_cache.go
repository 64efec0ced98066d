package scanning

import (
	"fmt"

	"github.com/aristath/swingsentinel/internal/clientdata"
	"github.com/rs/zerolog"
)

// latestKey is the cache key that always points at the newest scan.
const latestKey = "latest"

// ResultCache keeps finished scans in the cache database, msgpack-encoded.
type ResultCache struct {
	repo *clientdata.Repository
	log  zerolog.Logger
}

// NewResultCache creates a scan result cache.
func NewResultCache(repo *clientdata.Repository, log zerolog.Logger) *ResultCache {
	return &ResultCache{
		repo: repo,
		log:  log.With().Str("component", "scan_result_cache").Logger(),
	}
}

// Save stores res under its id and as the latest scan.
func (c *ResultCache) Save(res *Result) error {
	for _, key := range []string{res.ID, latestKey} {
		if err := c.repo.Store(clientdata.TableScanResults, key, res, clientdata.TTLScanResults); err != nil {
			return fmt.Errorf("failed to store scan %s: %w", key, err)
		}
	}
	c.log.Debug().Str("scan_id", res.ID).Int("candidates", len(res.Candidates)).Msg("Scan result stored")
	return nil
}

// Latest returns the newest stored scan, or nil when there is none.
func (c *ResultCache) Latest() (*Result, error) {
	return c.Get(latestKey)
}

// Get returns a stored scan by id, or nil when it is missing or expired.
func (c *ResultCache) Get(id string) (*Result, error) {
	var res Result
	found, err := c.repo.Load(clientdata.TableScanResults, id, &res, false)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &res, nil
}
