package sizing

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/risk"
	testingpkg "github.com/aristath/swingsentinel/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func balanced() risk.Profile {
	return risk.DefaultProfiles()[risk.Balanced]
}

func TestCalculate_BalancedExample(t *testing.T) {
	res, err := Calculate(balanced(), Request{Ticker: "AAPL", Sleeve: domain.SleeveCore, Entry: 100, Stop: 95, Equity: 10000})
	require.NoError(t, err)

	assert.Equal(t, 19.0, res.Shares)
	assert.Equal(t, 5.0, res.RiskPerShare)
	assert.Equal(t, 95.0, res.RiskCashBudget)
	assert.Equal(t, 95.0, res.RiskDollars)
	assert.InDelta(t, 0.95, res.RiskPercent, 1e-9)
	assert.Equal(t, 1900.0, res.PositionValue)
	assert.Equal(t, 19.0, res.PositionPct)
	assert.Equal(t, []string{LimitRiskBudget}, res.LimitedBy)
}

func TestCalculate_Flooring(t *testing.T) {
	whole, err := Calculate(balanced(), Request{Sleeve: domain.SleeveCore, Entry: 20, Stop: 17, Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, 31.0, whole.Shares, "31.67 floors, never rounds up")
	assert.Equal(t, 93.0, whole.RiskDollars)

	frac, err := Calculate(balanced(), Request{Sleeve: domain.SleeveCore, Entry: 20, Stop: 17, Equity: 10000, Fractional: true})
	require.NoError(t, err)
	assert.Equal(t, 31.66, frac.Shares)
	assert.Equal(t, 94.98, frac.RiskDollars)

	tiny, err := Calculate(balanced(), Request{Sleeve: domain.SleeveCore, Entry: 1000, Stop: 800, Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, 0.0, tiny.Shares, "budget below one unit")
}

func TestCalculate_PositionSizeCap(t *testing.T) {
	res, err := Calculate(balanced(), Request{Sleeve: domain.SleeveCore, Entry: 100, Stop: 99.5, Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, 25.0, res.Shares, "190 by risk, capped at 25% of equity")
	assert.Equal(t, []string{LimitRiskBudget, LimitPositionSize}, res.LimitedBy)

	hr, err := Calculate(balanced(), Request{Sleeve: domain.SleeveHighRisk, Entry: 50, Stop: 49, Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, 30.0, hr.Shares, "HIGH_RISK caps cost at 15%")
	assert.LessOrEqual(t, hr.PositionPct, 15.0)
}

func TestCalculate_MaxLossCap(t *testing.T) {
	p := balanced()
	p.RiskPerTradePct = 2

	res, err := Calculate(p, Request{Sleeve: domain.SleeveCore, Entry: 100, Stop: 90, Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, 200.0, res.RiskCashBudget)
	assert.Equal(t, 15.0, res.Shares)
	assert.Equal(t, 150.0, res.RiskDollars)
	assert.Equal(t, []string{LimitMaxLoss}, res.LimitedBy)
}

func TestCalculate_RiskCashClamp(t *testing.T) {
	p := balanced()
	p.MaxRiskCash = 50
	res, err := Calculate(p, Request{Sleeve: domain.SleeveCore, Entry: 100, Stop: 95, Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.RiskCashBudget)
	assert.Equal(t, 10.0, res.Shares)

	p = balanced()
	p.MinRiskCash = 120
	res, err = Calculate(p, Request{Sleeve: domain.SleeveCore, Entry: 100, Stop: 95, Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, 120.0, res.RiskCashBudget)
	assert.Equal(t, 24.0, res.Shares)
}

func TestCalculate_FX(t *testing.T) {
	res, err := Calculate(balanced(), Request{Sleeve: domain.SleeveCore, Entry: 100, Stop: 95, Equity: 10000, FXRate: 1.1})
	require.NoError(t, err)
	assert.Equal(t, 5.5, res.RiskPerShare)
	assert.Equal(t, 17.0, res.Shares)
	assert.Equal(t, 93.5, res.RiskDollars)
	assert.Equal(t, 1870.0, res.PositionValue)
}

func TestCalculate_ValidationErrors(t *testing.T) {
	cases := map[string]Request{
		"stop above entry": {Entry: 100, Stop: 101, Equity: 10000},
		"stop at entry":    {Entry: 100, Stop: 100, Equity: 10000},
		"zero equity":      {Entry: 100, Stop: 95},
		"negative entry":   {Entry: -1, Stop: 95, Equity: 10000},
		"zero stop":        {Entry: 100, Stop: 0, Equity: 10000},
		"nan entry":        {Entry: math.NaN(), Stop: 95, Equity: 10000},
		"negative fx":      {Entry: 100, Stop: 95, Equity: 10000, FXRate: -1},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Calculate(balanced(), req)
			require.Error(t, err)
			assert.True(t, domain.IsValidationError(err))
		})
	}
}

func TestCalculate_NeverExceedsBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	profiles := risk.DefaultProfiles()

	for i := 0; i < 500; i++ {
		p := profiles[[]string{risk.Conservative, risk.Balanced, risk.Aggressive}[i%3]]
		entry := 1 + rng.Float64()*500
		stop := entry * (0.5 + rng.Float64()*0.49)
		req := Request{
			Sleeve:     domain.AllSleeves[i%len(domain.AllSleeves)],
			Entry:      entry,
			Stop:       stop,
			Equity:     1000 + rng.Float64()*200000,
			Fractional: i%2 == 0,
		}
		res, err := Calculate(p, req)
		require.NoError(t, err)
		assert.LessOrEqual(t, res.RiskDollars, res.RiskCashBudget, "case %d: %+v", i, req)
		assert.LessOrEqual(t, res.PositionPct, p.PositionSizeCap(req.Sleeve)+0.01, "case %d", i)
		assert.GreaterOrEqual(t, res.Shares, 0.0)
	}
}

func TestSizer_Size(t *testing.T) {
	market := testingpkg.NewMockMarketDataProvider()
	market.SetFXRate("EUR", "USD", 1.1)
	sizer := NewSizer(market, "USD", false, zerolog.Nop())
	ctx := context.Background()

	res, err := sizer.Size(ctx, balanced(), "EUR", Request{Sleeve: domain.SleeveCore, Entry: 100, Stop: 95, Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, 17.0, res.Shares)
	assert.Equal(t, 1.1, res.FXRate)

	res, err = sizer.Size(ctx, balanced(), "USD", Request{Sleeve: domain.SleeveCore, Entry: 100, Stop: 95, Equity: 10000})
	require.NoError(t, err)
	assert.Equal(t, 19.0, res.Shares)

	_, err = sizer.Size(ctx, balanced(), "JPY", Request{Sleeve: domain.SleeveCore, Entry: 100, Stop: 95, Equity: 10000})
	assert.Error(t, err, "missing rate")
}
