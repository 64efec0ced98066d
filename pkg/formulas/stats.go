// Package formulas holds the pure numeric building blocks used by the scan pipeline:
// moving averages, ATR, directional movement, regression, Hurst and return helpers.
//
// Price and volume series follow the market-data convention of newest-first ordering
// (index 0 is the most recent bar). Every exported function states which ordering it
// expects and normalizes internally before handing data to go-talib or gonum, which both
// work oldest-first.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// PopStdDev calculates the population standard deviation (divides by n).
func PopStdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	mean := Mean(data)
	sum := 0.0
	for _, v := range data {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(data)))
}

// AnnualizedVolatility calculates annualized volatility from daily returns
func AnnualizedVolatility(dailyReturns []float64) float64 {
	if len(dailyReturns) < 2 {
		return 0
	}
	return StdDev(dailyReturns) * math.Sqrt(252)
}

// Reverse returns a reversed copy, converting newest-first to oldest-first and back.
func Reverse(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[len(values)-1-i] = v
	}
	return out
}

// AllFinite reports whether every value is a finite number.
func AllFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// DailyReturns converts newest-first closes into oldest-first simple returns.
func DailyReturns(closesNewestFirst []float64) []float64 {
	closes := Reverse(closesNewestFirst)
	if len(closes) < 2 {
		return []float64{}
	}
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
		}
	}
	return returns
}

// PercentReturn returns (close[0] / close[lookback] - 1) * 100 for newest-first closes.
// Returns nil when the series is too short or the base price is not positive.
func PercentReturn(closesNewestFirst []float64, lookback int) *float64 {
	if lookback <= 0 || len(closesNewestFirst) <= lookback {
		return nil
	}
	base := closesNewestFirst[lookback]
	last := closesNewestFirst[0]
	if base <= 0 || !AllFinite(base, last) {
		return nil
	}
	r := (last/base - 1) * 100
	return &r
}

// HighestValue returns the maximum of the first period values of a newest-first series.
func HighestValue(valuesNewestFirst []float64, period int) float64 {
	if period > len(valuesNewestFirst) {
		period = len(valuesNewestFirst)
	}
	highest := 0.0
	for i := 0; i < period; i++ {
		if i == 0 || valuesNewestFirst[i] > highest {
			highest = valuesNewestFirst[i]
		}
	}
	return highest
}

// TrendEfficiency is Kaufman's efficiency ratio in percent over period bars:
// net move divided by the sum of absolute bar-to-bar moves. Closes are newest-first.
// Returns 0 when there is not enough data or no movement at all.
func TrendEfficiency(closesNewestFirst []float64, period int) float64 {
	if period <= 0 || len(closesNewestFirst) <= period {
		return 0
	}
	net := math.Abs(closesNewestFirst[0] - closesNewestFirst[period])
	path := 0.0
	for i := 0; i < period; i++ {
		path += math.Abs(closesNewestFirst[i] - closesNewestFirst[i+1])
	}
	if path == 0 {
		return 0
	}
	return net / path * 100
}
