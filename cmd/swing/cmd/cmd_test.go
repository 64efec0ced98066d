package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSecurities(t *testing.T) {
	doc := `
securities:
  - ticker: aapl
    name: Apple Inc.
    sleeve: core
    sector: Technology
    cluster: MEGA_TECH
  - ticker: XLE
    sleeve: ETF
    currency: usd
    active: false
`
	secs, err := parseSecurities(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, secs, 2)

	assert.Equal(t, "AAPL", secs[0].Ticker)
	assert.Equal(t, domain.SleeveCore, secs[0].Sleeve)
	assert.True(t, secs[0].Active, "active defaults to true")
	assert.Empty(t, secs[0].Currency)

	assert.Equal(t, "USD", secs[1].Currency)
	assert.False(t, secs[1].Active)

	_, err = parseSecurities(strings.NewReader("securities:\n  - sleeve: CORE\n"))
	assert.ErrorContains(t, err, "ticker is required")

	_, err = parseSecurities(strings.NewReader("securities:\n  - ticker: X\n    sleeve: CRYPTO\n"))
	assert.ErrorContains(t, err, "unknown sleeve")

	_, err = parseSecurities(strings.NewReader("securities: ["))
	assert.Error(t, err)
}

func TestParseBarsCSV(t *testing.T) {
	t.Run("header and volume", func(t *testing.T) {
		in := "date,open,high,low,close,volume\n2026-03-02,10,11,9.5,10.5,1000\n2026-03-03, 10.5, 12, 10, 11.5, 2000\n"
		bars, err := parseBarsCSV(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, bars, 2)
		assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), bars[0].Date)
		assert.Equal(t, 11.5, bars[1].Close)
		assert.Equal(t, 2000.0, bars[1].Volume)
	})

	t.Run("no header and no volume", func(t *testing.T) {
		bars, err := parseBarsCSV(strings.NewReader("2026-03-02,10,11,9.5,10.5\n\n"))
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.Zero(t, bars[0].Volume)
	})

	t.Run("errors", func(t *testing.T) {
		cases := map[string]string{
			"bad date":     "2026-03-02,1,1,1,1\n03/03/2026,1,1,1,1\n",
			"short row":    "2026-03-02,1,1,1\n",
			"bad number":   "2026-03-02,1,x,1,1\n",
			"quoted field": "2026-03-02,\"1,1,1,1\n",
		}
		for name, in := range cases {
			_, err := parseBarsCSV(strings.NewReader(in))
			assert.Error(t, err, name)
		}
	})
}

// execute runs the CLI against dataDir and returns stdout.
func execute(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--data-dir", dataDir, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCLI_EndToEnd(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("SWING_DATA_DIR", dataDir)
	t.Setenv("SWING_SCHEDULER_ENABLED", "true")
	inputs := t.TempDir()

	securities := writeFile(t, inputs, "universe.yaml", `
securities:
  - ticker: AAPL
    name: Apple Inc.
    sleeve: CORE
    sector: Technology
    cluster: MEGA_TECH
    currency: USD
`)
	out, err := execute(t, dataDir, "import", "securities", securities)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 securities")

	bars := writeFile(t, inputs, "aapl.csv", "date,open,high,low,close,volume\n"+
		"2026-03-02,100,102,99,101,1000\n"+
		"2026-03-03,101,103,100,102,1100\n"+
		"2026-03-04,102,101,100,100.5,900\n")
	out, err = execute(t, dataDir, "import", "bars", "aapl", bars)
	require.NoError(t, err)
	assert.Contains(t, out, "AAPL: wrote 2 bars, skipped 1 invalid")

	t.Run("size", func(t *testing.T) {
		out, err := execute(t, dataDir, "--json", "size", "aapl", "--entry", "100", "--stop", "95")
		require.NoError(t, err)

		var got struct {
			Ticker  string `json:"ticker"`
			Profile string `json:"profile"`
			Sizing  struct {
				Shares      float64 `json:"shares"`
				RiskDollars float64 `json:"risk_dollars"`
			} `json:"sizing"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "AAPL", got.Ticker)
		assert.Equal(t, "BALANCED", got.Profile)
		assert.Greater(t, got.Sizing.Shares, 0.0)
		assert.LessOrEqual(t, got.Sizing.RiskDollars, 100.0)

		out, err = execute(t, dataDir, "size", "aapl", "--entry", "100", "--stop", "95")
		require.NoError(t, err)
		assert.Contains(t, out, "AAPL CORE profile=BALANCED")

		_, err = execute(t, dataDir, "size", "MSFT", "--entry", "100", "--stop", "95")
		assert.ErrorContains(t, err, "unknown sleeve")

		_, err = execute(t, dataDir, "size", "AAPL", "--entry", "100")
		assert.Error(t, err, "stop is required")
	})

	t.Run("scan", func(t *testing.T) {
		out, err := execute(t, dataDir, "--json", "scan", "--profile", "conservative")
		require.NoError(t, err)

		var res struct {
			Profile  string `json:"profile"`
			Universe int    `json:"universe"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.Equal(t, "CONSERVATIVE", res.Profile)
		assert.Equal(t, 1, res.Universe)

		out, err = execute(t, dataDir, "scan", "--all")
		require.NoError(t, err)
		assert.Contains(t, out, "TICKER")
	})

	t.Run("expectancy", func(t *testing.T) {
		out, err := execute(t, dataDir, "expectancy", "rebuild")
		require.NoError(t, err)
		assert.Contains(t, out, "no closed trades yet")

		out, err = execute(t, dataDir, "--json", "expectancy")
		require.NoError(t, err)
		assert.Equal(t, "[]", strings.TrimSpace(out))
	})

	t.Run("trail on an empty book", func(t *testing.T) {
		_, err := execute(t, dataDir, "trail")
		require.NoError(t, err)
	})

	t.Run("regime", func(t *testing.T) {
		spy := writeFile(t, inputs, "spy.csv", "date,open,high,low,close,volume\n"+
			"2026-03-02,500,505,498,503,10000\n"+
			"2026-03-03,503,507,501,506,11000\n"+
			"2026-03-04,506,508,502,504,9000\n")
		out, err := execute(t, dataDir, "import", "bars", "SPY", spy)
		require.NoError(t, err)
		assert.Contains(t, out, "SPY: wrote 3 bars, skipped 0 invalid")

		out, err = execute(t, dataDir, "--json", "regime")
		require.NoError(t, err)
		assert.Contains(t, out, `"SPY"`)
		assert.Contains(t, out, string(domain.RegimeSideways))
	})

	_, err = execute(t, dataDir, "import", "bars", "AAPL", filepath.Join(inputs, "missing.csv"))
	assert.Error(t, err)
}

func TestCLI_RegimeWithoutBenchmarkBars(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("SWING_DATA_DIR", dataDir)

	_, err := execute(t, dataDir, "regime")
	require.Error(t, err)
	assert.ErrorContains(t, err, "failed to load benchmark SPY")
	assert.ErrorContains(t, err, "no bars stored for SPY")
}
