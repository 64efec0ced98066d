package di

import (
	"fmt"

	"github.com/aristath/swingsentinel/internal/clientdata"
	"github.com/aristath/swingsentinel/internal/clients/exchangerate"
	"github.com/aristath/swingsentinel/internal/config"
	"github.com/aristath/swingsentinel/internal/market_regime"
	"github.com/aristath/swingsentinel/internal/modules/expectancy"
	"github.com/aristath/swingsentinel/internal/modules/guards"
	"github.com/aristath/swingsentinel/internal/modules/portfolio"
	"github.com/aristath/swingsentinel/internal/modules/risk"
	"github.com/aristath/swingsentinel/internal/modules/scanning"
	"github.com/aristath/swingsentinel/internal/modules/scoring"
	"github.com/aristath/swingsentinel/internal/modules/sizing"
	"github.com/aristath/swingsentinel/internal/modules/stops"
	"github.com/aristath/swingsentinel/internal/modules/universe"
	"github.com/aristath/swingsentinel/internal/workers"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates all repositories on top of the open databases.
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container.PortfolioDB == nil || container.HistoryDB == nil || container.CacheDB == nil {
		return fmt.Errorf("databases must be initialized before repositories")
	}

	container.PositionRepo = portfolio.NewPositionRepository(container.PortfolioDB.Conn(), log)
	container.ExpectancyRepo = expectancy.NewRepository(container.PortfolioDB.Conn(), log)
	container.SecurityRepo = universe.NewSecurityRepository(container.HistoryDB.Conn(), log)
	container.HistoryBars = universe.NewHistoryDB(container.HistoryDB.Conn(), log)
	container.ClientDataRepo = clientdata.NewRepository(container.CacheDB.Conn())
	container.SectorCache = clientdata.NewSectorMomentumCache(container.ClientDataRepo, log)

	log.Info().Msg("Repositories initialized")
	return nil
}

// InitializeServices builds the market-data layer and the scan pipeline.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	profiles, err := risk.LoadProfiles(cfg.RiskProfilesFile)
	if err != nil {
		return err
	}
	if _, err := profiles.Get(cfg.RiskProfile); err != nil {
		return fmt.Errorf("default risk profile: %w", err)
	}
	container.Profiles = profiles

	days, err := guards.ParseDaySet(cfg.AntiChaseDays)
	if err != nil {
		return err
	}
	antiChase := guards.DefaultAntiChaseConfig()
	antiChase.Days = days

	// Market data. The detector reads benchmark bars through the service, so the
	// regime source is attached after both exist.
	container.ExchangeRateClient = exchangerate.NewClient(cfg.ExchangeRateURL, container.ClientDataRepo, log)
	container.MarketData = universe.NewMarketDataService(container.HistoryBars, container.ExchangeRateClient, log)
	container.RegimeDetector = market_regime.NewDetector(container.MarketData, cfg.Benchmark, log)
	container.MarketData.SetRegimeSource(container.RegimeDetector)

	// Pipeline
	container.RiskValidator = risk.NewValidator(container.PositionRepo, container.MarketData, cfg.AccountCurrency, log)
	container.Sizer = sizing.NewSizer(container.MarketData, cfg.AccountCurrency, cfg.FractionalShares, log)
	container.Scorer = scoring.NewScorer(container.SectorCache, log)
	container.ExpectancyService = expectancy.NewService(container.PositionRepo, container.ExpectancyRepo, log)
	container.StopManager = stops.NewManager(container.PositionRepo, container.MarketData, log)
	container.WorkerPool = workers.NewWorkerPool(cfg.ScanBatchSize, cfg.ScanBatchPause)
	container.ScanResults = scanning.NewResultCache(container.ClientDataRepo, log)
	container.SectorRefresher = scanning.NewSectorRefresher(container.MarketData, container.SectorCache, cfg.SectorETFs, log)
	container.Scanner = scanning.NewScanner(
		container.SecurityRepo,
		container.MarketData,
		container.Scorer,
		container.ExpectancyService,
		container.RiskValidator,
		container.Sizer,
		container.WorkerPool,
		container.ScanResults,
		scanning.Config{Benchmark: cfg.Benchmark, AntiChase: antiChase},
		log,
	)

	log.Info().
		Str("profile", cfg.RiskProfile).
		Str("anti_chase_days", string(days)).
		Int("batch_size", cfg.ScanBatchSize).
		Msg("Services initialized")
	return nil
}
