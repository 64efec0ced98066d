package di

import (
	"fmt"

	"github.com/aristath/swingsentinel/internal/config"
	"github.com/aristath/swingsentinel/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the three databases and applies their schemas.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		// Maximum safety for the position book and the stop audit trail
		{database.NamePortfolio, database.ProfileLedger, &container.PortfolioDB},
		{database.NameHistory, database.ProfileStandard, &container.HistoryDB},
		// Maximum speed for data that can be refetched
		{database.NameCache, database.ProfileCache, &container.CacheDB},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    cfg.DatabasePath(spec.name),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", spec.name, err)
		}
		*spec.target = db

		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", spec.name, err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("All databases initialized and schemas applied")
	return container, nil
}
