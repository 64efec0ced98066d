// Package di provides dependency injection type definitions.
//
// The Container holds every long-lived service. It is built once by Wire and handed
// to the HTTP server, the scheduler and the CLI.
package di

import (
	"github.com/aristath/swingsentinel/internal/clientdata"
	"github.com/aristath/swingsentinel/internal/clients/exchangerate"
	"github.com/aristath/swingsentinel/internal/database"
	"github.com/aristath/swingsentinel/internal/market_regime"
	"github.com/aristath/swingsentinel/internal/modules/expectancy"
	"github.com/aristath/swingsentinel/internal/modules/portfolio"
	"github.com/aristath/swingsentinel/internal/modules/risk"
	"github.com/aristath/swingsentinel/internal/modules/scanning"
	"github.com/aristath/swingsentinel/internal/modules/scoring"
	"github.com/aristath/swingsentinel/internal/modules/sizing"
	"github.com/aristath/swingsentinel/internal/modules/stops"
	"github.com/aristath/swingsentinel/internal/modules/universe"
	"github.com/aristath/swingsentinel/internal/scheduler"
	"github.com/aristath/swingsentinel/internal/workers"
)

// Container holds all application dependencies
type Container struct {
	// Databases
	PortfolioDB *database.DB // positions, stop_history, expectancy_slices
	HistoryDB   *database.DB // securities, daily_prices
	CacheDB     *database.DB // sector momentum, FX rates, scan results

	// Repositories
	PositionRepo   *portfolio.PositionRepository
	SecurityRepo   *universe.SecurityRepository
	HistoryBars    *universe.HistoryDB
	ExpectancyRepo *expectancy.Repository
	ClientDataRepo *clientdata.Repository
	SectorCache    *clientdata.SectorMomentumCache

	// Market data
	ExchangeRateClient *exchangerate.Client
	MarketData         *universe.MarketDataService
	RegimeDetector     *market_regime.Detector

	// Pipeline
	Profiles          *risk.ProfileSet
	RiskValidator     *risk.Validator
	Sizer             *sizing.Sizer
	Scorer            *scoring.Scorer
	ExpectancyService *expectancy.Service
	StopManager       *stops.Manager
	WorkerPool        *workers.WorkerPool
	Scanner           *scanning.Scanner
	ScanResults       *scanning.ResultCache
	SectorRefresher   *scanning.SectorRefresher

	Scheduler *scheduler.Scheduler
}

// JobInstances holds the registered jobs so they can be triggered by name.
type JobInstances struct {
	Scan          scheduler.Job
	StopTrail     scheduler.Job
	MarketRefresh scheduler.Job
	Expectancy    scheduler.Job
	CacheCleanup  scheduler.Job
	Maintenance   scheduler.Job
}

// All returns every job in registration order.
func (j *JobInstances) All() []scheduler.Job {
	return []scheduler.Job{j.MarketRefresh, j.Scan, j.StopTrail, j.Expectancy, j.CacheCleanup, j.Maintenance}
}

// ByName returns the job with the given name, or nil.
func (j *JobInstances) ByName(name string) scheduler.Job {
	for _, job := range j.All() {
		if job != nil && job.Name() == name {
			return job
		}
	}
	return nil
}

// Close closes every open database.
func (c *Container) Close() {
	for _, db := range []*database.DB{c.PortfolioDB, c.HistoryDB, c.CacheDB} {
		if db != nil {
			_ = db.Close()
		}
	}
}
