// Package technical derives indicator snapshots from daily bars and classifies candidates.
package technical

import (
	"fmt"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/pkg/formulas"
)

const (
	// MinBars is the history a snapshot needs to pass data quality (MA200).
	MinBars = 200

	highLookback           = 20
	efficiencyPeriod       = 20
	rsLookback             = 63 // one quarter
	return12WLookback      = 60 // 12 weeks of 5 bars
	recentVolumeBars       = 10
	consolidationBand      = 0.90 // within 10% of the 20-day high
	consolidationMaxDays   = 60
	failedBreakoutLookback = 60
	failedBreakoutWindow   = 5 // bars a breakout has to hold
	weekBars               = 5
)

// BuildSnapshot computes the indicator bundle for newest-first bars. benchmark may be
// empty, in which case relative strength is left unset. Short or dirty histories still
// produce a snapshot with DataQualityOK=false; indicators that need more data stay zero
// or nil.
func BuildSnapshot(ticker string, bars, benchmark domain.Bars) domain.TechnicalSnapshot {
	snap := domain.TechnicalSnapshot{
		Ticker:    ticker,
		BarsCount: len(bars),
	}
	snap.DataQualityIssues = CheckDataQuality(bars)
	snap.DataQualityOK = len(snap.DataQualityIssues) == 0
	if len(bars) == 0 {
		return snap
	}

	closes, highs, lows, volumes := bars.Closes(), bars.Highs(), bars.Lows(), bars.Volumes()

	snap.AsOf = bars[0].Date
	snap.Price = closes[0]
	snap.DayLow = lows[0]

	if ma := formulas.CalculateSMA(closes, 200); ma != nil {
		snap.MA200 = *ma
	}
	if ema := formulas.CalculateEMA(closes, 20); ema != nil {
		snap.EMA20 = *ema
	}
	snap.High20 = priorHigh(highs, 0, highLookback)

	di := formulas.CalculateDirectionalIndex(highs, lows, closes, formulas.DefaultPeriod)
	snap.ADX, snap.PlusDI, snap.MinusDI = di.ADX, di.PlusDI, di.MinusDI

	atr := formulas.ATRSeries(highs, lows, closes, formulas.DefaultPeriod)
	snap.ATR = atr[0]
	if len(atr) > 20 {
		snap.ATR20Ago = atr[20]
	}
	if snap.Price > 0 {
		snap.ATRPct = snap.ATR / snap.Price * 100
	}

	snap.TrendEfficiency = formulas.TrendEfficiency(closes, efficiencyPeriod)

	if len(benchmark) > 0 {
		own := formulas.PercentReturn(closes, rsLookback)
		bench := formulas.PercentReturn(benchmark.Closes(), rsLookback)
		if own != nil && bench != nil {
			rs := *own - *bench
			snap.RelativeStrength = &rs
		}
	}

	snap.VolumeRatio = volumeRatio(volumes)
	if len(volumes) >= recentVolumeBars {
		snap.RecentVolumes = append([]float64(nil), volumes[:recentVolumeBars]...)
	}

	snap.ConsolidationDays = consolidationDays(closes, snap.High20)
	snap.Return12W = formulas.PercentReturn(closes, return12WLookback)
	snap.WeeklyADX = weeklyADX(highs, lows, closes)
	snap.FailedBreakoutDaysAgo = lastFailedBreakout(closes, highs)

	return snap
}

// CheckDataQuality lists problems that make a series unfit for classification.
func CheckDataQuality(bars domain.Bars) []string {
	var issues []string
	if len(bars) < MinBars {
		issues = append(issues, fmt.Sprintf("insufficient_history: %d bars, need %d", len(bars), MinBars))
	}
	for _, b := range bars {
		if !formulas.AllFinite(b.Open, b.High, b.Low, b.Close) || b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			issues = append(issues, fmt.Sprintf("invalid_price on %s", b.Date.Format("2006-01-02")))
			break
		}
		if b.High < b.Low {
			issues = append(issues, fmt.Sprintf("high_below_low on %s", b.Date.Format("2006-01-02")))
			break
		}
	}
	return issues
}

// priorHigh returns the highest high of the period bars before index i.
// Falls back to the bar's own high when no earlier bars exist.
func priorHigh(highs []float64, i, period int) float64 {
	if i+1 >= len(highs) {
		if i < len(highs) {
			return highs[i]
		}
		return 0
	}
	return formulas.HighestValue(highs[i+1:], period)
}

// volumeRatio is today's volume over the average of the 20 sessions before it.
func volumeRatio(volumes []float64) float64 {
	if len(volumes) < 21 {
		return 0
	}
	avg := formulas.Mean(volumes[1:21])
	if avg <= 0 {
		return 0
	}
	return volumes[0] / avg
}

// consolidationDays counts consecutive recent closes within 10% of high20, capped at 60.
func consolidationDays(closes []float64, high20 float64) *int {
	if high20 <= 0 || len(closes) <= highLookback {
		return nil
	}
	floor := high20 * consolidationBand
	days := 0
	for i := 0; i < len(closes) && days < consolidationMaxDays; i++ {
		if closes[i] < floor {
			break
		}
		days++
	}
	return &days
}

// weeklyADX aggregates bars into 5-bar weeks, newest week first, and returns the weekly ADX.
func weeklyADX(highs, lows, closes []float64) *float64 {
	weeks := len(closes) / weekBars
	if weeks < 2*formulas.DefaultPeriod+1 {
		return nil
	}
	wh := make([]float64, weeks)
	wl := make([]float64, weeks)
	wc := make([]float64, weeks)
	for w := 0; w < weeks; w++ {
		start := w * weekBars
		wc[w] = closes[start]
		wh[w] = highs[start]
		wl[w] = lows[start]
		for i := start + 1; i < start+weekBars; i++ {
			wh[w] = max(wh[w], highs[i])
			wl[w] = min(wl[w], lows[i])
		}
	}
	di := formulas.CalculateDirectionalIndex(wh, wl, wc, formulas.DefaultPeriod)
	if di.ADX == 0 {
		return nil
	}
	return &di.ADX
}

// lastFailedBreakout returns how many bars ago the most recent failed breakout happened.
// A breakout is a close above the prior 20-bar high; it fails when any of the next five
// closes falls back to or below that high. Today's bar cannot be judged yet.
func lastFailedBreakout(closes, highs []float64) *int {
	for i := 1; i < len(closes) && i <= failedBreakoutLookback; i++ {
		if i+highLookback >= len(highs) {
			break
		}
		level := priorHigh(highs, i, highLookback)
		if closes[i] <= level {
			continue
		}
		for j := i - 1; j >= 0 && j >= i-failedBreakoutWindow; j-- {
			if closes[j] <= level {
				days := i
				return &days
			}
		}
	}
	return nil
}
