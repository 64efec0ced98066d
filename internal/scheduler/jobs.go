package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/swingsentinel/internal/database"
	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/market_regime"
	"github.com/aristath/swingsentinel/internal/modules/risk"
	"github.com/aristath/swingsentinel/internal/modules/scanning"
	"github.com/aristath/swingsentinel/internal/modules/stops"
	"github.com/rs/zerolog"
)

// Default run budgets per job.
const (
	ScanTimeout        = 20 * time.Minute
	TrailTimeout       = 10 * time.Minute
	RefreshTimeout     = 5 * time.Minute
	MaintenanceTimeout = 2 * time.Minute
)

// Scanner runs one scan.
type Scanner interface {
	Run(ctx context.Context, opts scanning.Options) (*scanning.Result, error)
}

// ProfileSource resolves the active risk profile.
type ProfileSource interface {
	Get(name string) (risk.Profile, error)
}

// ScanJob runs the nightly scan with the configured profile and equity.
type ScanJob struct {
	scanner  Scanner
	profiles ProfileSource
	profile  string
	equity   float64
	timeout  time.Duration
	log      zerolog.Logger
}

// NewScanJob creates a scan job.
func NewScanJob(scanner Scanner, profiles ProfileSource, profile string, equity float64, log zerolog.Logger) *ScanJob {
	return &ScanJob{
		scanner:  scanner,
		profiles: profiles,
		profile:  profile,
		equity:   equity,
		timeout:  ScanTimeout,
		log:      log.With().Str("job", "scan").Logger(),
	}
}

// Name returns the job name
func (j *ScanJob) Name() string {
	return "scan"
}

// Run executes the scan
func (j *ScanJob) Run() error {
	p, err := j.profiles.Get(j.profile)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	res, err := j.scanner.Run(ctx, scanning.Options{Profile: p, Equity: j.equity})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	counts := res.Counts()
	j.log.Info().
		Str("scan_id", res.ID).
		Int("ready", counts[domain.StatusReady]).
		Int("failures", len(res.Failures)).
		Msg("Scheduled scan finished")
	return nil
}

// StopPass runs the protection ratchet over the open book.
type StopPass interface {
	RunPass(ctx context.Context) (stops.PassReport, error)
}

// StopTrailJob advances stops on every open position.
type StopTrailJob struct {
	stops   StopPass
	timeout time.Duration
	log     zerolog.Logger
}

// NewStopTrailJob creates a stop trail job.
func NewStopTrailJob(stops StopPass, log zerolog.Logger) *StopTrailJob {
	return &StopTrailJob{
		stops:   stops,
		timeout: TrailTimeout,
		log:     log.With().Str("job", "stop_trail").Logger(),
	}
}

// Name returns the job name
func (j *StopTrailJob) Name() string {
	return "stop_trail"
}

// Run executes the stop pass. Per-position failures are logged, not returned.
func (j *StopTrailJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	report, err := j.stops.RunPass(ctx)
	if err != nil {
		return fmt.Errorf("stop pass failed: %w", err)
	}
	for _, f := range report.Failures {
		j.log.Warn().
			Int64("position_id", f.PositionID).
			Str("ticker", f.Ticker).
			Str("reason", f.Reason).
			Msg("Position skipped in stop pass")
	}
	return nil
}

// SectorRefresher rewrites the sector momentum cache.
type SectorRefresher interface {
	Refresh(ctx context.Context) (map[string]float64, []scanning.Failure)
}

// RegimeRefresher recomputes the market regime.
type RegimeRefresher interface {
	Refresh(ctx context.Context) (market_regime.State, error)
}

// MarketRefreshJob refreshes the market regime and the sector momentum cache ahead of
// the scan. Either half failing does not stop the other.
type MarketRefreshJob struct {
	regime  RegimeRefresher
	sectors SectorRefresher
	timeout time.Duration
	log     zerolog.Logger
}

// NewMarketRefreshJob creates a market refresh job. Either source may be nil.
func NewMarketRefreshJob(regime RegimeRefresher, sectors SectorRefresher, log zerolog.Logger) *MarketRefreshJob {
	return &MarketRefreshJob{
		regime:  regime,
		sectors: sectors,
		timeout: RefreshTimeout,
		log:     log.With().Str("job", "market_refresh").Logger(),
	}
}

// Name returns the job name
func (j *MarketRefreshJob) Name() string {
	return "market_refresh"
}

// Run executes the refresh. It fails only when the regime cannot be computed.
func (j *MarketRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	var regimeErr error
	if j.regime != nil {
		state, err := j.regime.Refresh(ctx)
		if err != nil {
			regimeErr = fmt.Errorf("regime refresh failed: %w", err)
		} else {
			j.log.Info().
				Str("regime", string(state.Trend)).
				Str("volatility", string(state.Volatility)).
				Msg("Market regime refreshed")
		}
	}

	if j.sectors != nil {
		_, failures := j.sectors.Refresh(ctx)
		for _, f := range failures {
			j.log.Warn().Str("etf", f.Ticker).Str("reason", f.Reason).Msg("Sector momentum not refreshed")
		}
	}
	return regimeErr
}

// ExpectancyRebuilder recomputes the expectancy table.
type ExpectancyRebuilder interface {
	Rebuild(ctx context.Context) ([]domain.ExpectancySlice, error)
}

// ExpectancyJob rebuilds the expectancy slices from the closed book.
type ExpectancyJob struct {
	rebuilder ExpectancyRebuilder
	log       zerolog.Logger
}

// NewExpectancyJob creates an expectancy rebuild job.
func NewExpectancyJob(rebuilder ExpectancyRebuilder, log zerolog.Logger) *ExpectancyJob {
	return &ExpectancyJob{
		rebuilder: rebuilder,
		log:       log.With().Str("job", "expectancy_rebuild").Logger(),
	}
}

// Name returns the job name
func (j *ExpectancyJob) Name() string {
	return "expectancy_rebuild"
}

// Run executes the rebuild
func (j *ExpectancyJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), MaintenanceTimeout)
	defer cancel()

	slices, err := j.rebuilder.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("expectancy rebuild failed: %w", err)
	}
	j.log.Debug().Int("slices", len(slices)).Msg("Expectancy rebuilt")
	return nil
}

// DatabaseMaintenanceJob checks integrity of every database and truncates their WAL.
type DatabaseMaintenanceJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewDatabaseMaintenanceJob creates a maintenance job over dbs. Nil entries are skipped.
func NewDatabaseMaintenanceJob(log zerolog.Logger, dbs ...*database.DB) *DatabaseMaintenanceJob {
	return &DatabaseMaintenanceJob{
		databases: dbs,
		log:       log.With().Str("job", "database_maintenance").Logger(),
	}
}

// Name returns the job name
func (j *DatabaseMaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the check. A failed integrity check is returned; a failed checkpoint
// is only logged.
func (j *DatabaseMaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), MaintenanceTimeout)
	defer cancel()

	checked := 0
	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Database integrity check failed")
			return err
		}
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
		checked++
	}

	j.log.Info().Int("checked", checked).Msg("Database maintenance completed")
	return nil
}
