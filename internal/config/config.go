// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every environment variable, e.g. SWING_DATA_DIR.
const EnvPrefix = "SWING"

// Config holds application configuration
type Config struct {
	DataDir   string `envconfig:"DATA_DIR" default:"./data"` // Base directory for all databases, resolved to absolute
	Port      int    `envconfig:"PORT" default:"8010"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`
	DevMode   bool   `envconfig:"DEV_MODE" default:"false"`

	// Account
	AccountCurrency  string  `envconfig:"ACCOUNT_CURRENCY" default:"USD"`
	Equity           float64 `envconfig:"EQUITY" default:"10000"`
	RiskProfile      string  `envconfig:"RISK_PROFILE" default:"BALANCED"`
	RiskProfilesFile string  `envconfig:"RISK_PROFILES_FILE"` // optional YAML overrides
	FractionalShares bool    `envconfig:"FRACTIONAL_SHARES" default:"false"`

	// Scan pipeline
	Benchmark      string            `envconfig:"BENCHMARK" default:"SPY"`
	ScanBatchSize  int               `envconfig:"SCAN_BATCH_SIZE" default:"8"`
	ScanBatchPause time.Duration     `envconfig:"SCAN_BATCH_PAUSE" default:"2s"`
	AntiChaseDays  string            `envconfig:"ANTI_CHASE_DAYS" default:"ALL_DAYS"` // ALL_DAYS or MONDAY_ONLY
	SectorETFs     map[string]string `envconfig:"SECTOR_ETFS" default:"Technology:XLK,Financials:XLF,Energy:XLE,Health Care:XLV,Industrials:XLI,Consumer Discretionary:XLY,Consumer Staples:XLP,Utilities:XLU,Materials:XLB,Real Estate:XLRE,Communication Services:XLC"`

	// Cron schedules (6 fields, seconds first)
	ScanSchedule          string `envconfig:"SCAN_SCHEDULE" default:"0 30 22 * * MON-FRI"`
	TrailSchedule         string `envconfig:"TRAIL_SCHEDULE" default:"0 45 22 * * MON-FRI"`
	MarketRefreshSchedule string `envconfig:"MARKET_REFRESH_SCHEDULE" default:"0 0 22 * * MON-FRI"`
	ExpectancySchedule    string `envconfig:"EXPECTANCY_SCHEDULE" default:"0 0 23 * * MON-FRI"`
	CacheCleanupSchedule  string `envconfig:"CACHE_CLEANUP_SCHEDULE" default:"0 0 3 * * *"`
	MaintenanceSchedule   string `envconfig:"MAINTENANCE_SCHEDULE" default:"0 30 3 * * SUN"`
	SchedulerEnabled      bool   `envconfig:"SCHEDULER_ENABLED" default:"true"`

	ExchangeRateURL string `envconfig:"EXCHANGE_RATE_URL" default:"https://api.exchangerate-api.com/v4/latest"`
}

// Load reads configuration from a .env file (if present) and the environment.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg.DataDir = absDataDir

	cfg.AccountCurrency = strings.ToUpper(cfg.AccountCurrency)
	cfg.RiskProfile = strings.ToUpper(cfg.RiskProfile)
	cfg.AntiChaseDays = strings.ToUpper(cfg.AntiChaseDays)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Equity <= 0 {
		return fmt.Errorf("equity must be positive, got %v", c.Equity)
	}
	if len(c.AccountCurrency) != 3 {
		return fmt.Errorf("account currency must be an ISO code, got %q", c.AccountCurrency)
	}
	if c.ScanBatchSize <= 0 {
		return fmt.Errorf("scan batch size must be positive, got %d", c.ScanBatchSize)
	}
	if c.ScanBatchPause < 0 {
		return fmt.Errorf("scan batch pause must not be negative")
	}
	if c.Benchmark == "" {
		return fmt.Errorf("benchmark ticker is required")
	}
	switch c.AntiChaseDays {
	case "ALL_DAYS", "MONDAY_ONLY":
	default:
		return fmt.Errorf("anti-chase days must be ALL_DAYS or MONDAY_ONLY, got %q", c.AntiChaseDays)
	}
	if c.RiskProfilesFile != "" {
		if _, err := os.Stat(c.RiskProfilesFile); err != nil {
			return fmt.Errorf("risk profiles file: %w", err)
		}
	}
	return nil
}

// DatabasePath returns the file path of a named database inside DataDir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}
