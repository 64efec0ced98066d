package di

import (
	"fmt"

	"github.com/aristath/swingsentinel/internal/clientdata"
	"github.com/aristath/swingsentinel/internal/config"
	"github.com/aristath/swingsentinel/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates every job and, when the scheduler is enabled, registers
// them on their cron schedules. Jobs are returned either way for manual triggers.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	container.Scheduler = scheduler.New(log)

	jobs := &JobInstances{
		MarketRefresh: scheduler.NewMarketRefreshJob(container.RegimeDetector, container.SectorRefresher, log),
		Scan:          scheduler.NewScanJob(container.Scanner, container.Profiles, cfg.RiskProfile, cfg.Equity, log),
		StopTrail:     scheduler.NewStopTrailJob(container.StopManager, log),
		Expectancy:    scheduler.NewExpectancyJob(container.ExpectancyService, log),
		CacheCleanup:  clientdata.NewCleanupJob(container.ClientDataRepo, log),
		Maintenance:   scheduler.NewDatabaseMaintenanceJob(log, container.PortfolioDB, container.HistoryDB, container.CacheDB),
	}

	if !cfg.SchedulerEnabled {
		log.Info().Msg("Scheduler disabled, jobs available for manual runs only")
		return jobs, nil
	}

	schedules := []struct {
		spec string
		job  scheduler.Job
	}{
		{cfg.MarketRefreshSchedule, jobs.MarketRefresh},
		{cfg.ScanSchedule, jobs.Scan},
		{cfg.TrailSchedule, jobs.StopTrail},
		{cfg.ExpectancySchedule, jobs.Expectancy},
		{cfg.CacheCleanupSchedule, jobs.CacheCleanup},
		{cfg.MaintenanceSchedule, jobs.Maintenance},
	}
	for _, s := range schedules {
		if err := container.Scheduler.AddJob(s.spec, s.job); err != nil {
			return nil, fmt.Errorf("failed to register job %s: %w", s.job.Name(), err)
		}
	}
	return jobs, nil
}
