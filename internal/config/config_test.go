package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SWING_DATA_DIR", filepath.Join(dir, "data"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.DataDir))
	assert.DirExists(t, cfg.DataDir)
	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "USD", cfg.AccountCurrency)
	assert.Equal(t, "BALANCED", cfg.RiskProfile)
	assert.Equal(t, 8, cfg.ScanBatchSize)
	assert.Equal(t, 2*time.Second, cfg.ScanBatchPause)
	assert.Equal(t, "ALL_DAYS", cfg.AntiChaseDays)
	assert.Equal(t, "XLK", cfg.SectorETFs["Technology"])
	assert.Equal(t, "XLV", cfg.SectorETFs["Health Care"])
	assert.Equal(t, filepath.Join(cfg.DataDir, "portfolio.db"), cfg.DatabasePath("portfolio"))
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SWING_DATA_DIR", dir)
	t.Setenv("SWING_PORT", "9100")
	t.Setenv("SWING_RISK_PROFILE", "aggressive")
	t.Setenv("SWING_ANTI_CHASE_DAYS", "monday_only")
	t.Setenv("SWING_SCAN_BATCH_PAUSE", "500ms")
	t.Setenv("SWING_FRACTIONAL_SHARES", "true")
	t.Setenv("SWING_ACCOUNT_CURRENCY", "eur")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "AGGRESSIVE", cfg.RiskProfile)
	assert.Equal(t, "MONDAY_ONLY", cfg.AntiChaseDays)
	assert.Equal(t, 500*time.Millisecond, cfg.ScanBatchPause)
	assert.True(t, cfg.FractionalShares)
	assert.Equal(t, "EUR", cfg.AccountCurrency)
}

func TestLoadRejectsBadInput(t *testing.T) {
	t.Setenv("SWING_DATA_DIR", t.TempDir())
	t.Setenv("SWING_PORT", "not-a-number")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:            8010,
			Equity:          10000,
			AccountCurrency: "USD",
			ScanBatchSize:   8,
			Benchmark:       "SPY",
			AntiChaseDays:   "ALL_DAYS",
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero port", func(c *Config) { c.Port = 0 }},
		{"negative equity", func(c *Config) { c.Equity = -1 }},
		{"bad currency", func(c *Config) { c.AccountCurrency = "DOLLAR" }},
		{"zero batch", func(c *Config) { c.ScanBatchSize = 0 }},
		{"negative pause", func(c *Config) { c.ScanBatchPause = -time.Second }},
		{"missing benchmark", func(c *Config) { c.Benchmark = "" }},
		{"unknown day set", func(c *Config) { c.AntiChaseDays = "FRIDAYS" }},
		{"missing profiles file", func(c *Config) { c.RiskProfilesFile = filepath.Join(os.TempDir(), "does-not-exist.yaml") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
