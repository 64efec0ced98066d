package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	// HurstMinBars is the shortest close series the R/S estimate accepts.
	HurstMinBars = 50
	// hurstMinSize is the first sub-period length; each next size is 1.5x, floored.
	hurstMinSize = 8
	// hurstMinPairs is how many (size, R/S) points the log-log fit needs.
	hurstMinPairs = 3
)

// HurstSizes returns the sub-period sizes evaluated for a return series of length n:
// 8, 12, 18, 27, 40, ... while the size does not exceed n/2.
func HurstSizes(n int) []int {
	var sizes []int
	for size := hurstMinSize; size <= n/2; size = int(math.Floor(float64(size) * 1.5)) {
		sizes = append(sizes, size)
	}
	return sizes
}

// HurstExponent estimates the Hurst exponent of newest-first closes with rescaled-range
// analysis. The second return value is false when the estimate is undetermined: fewer
// than 50 bars, a non-positive close, or fewer than three usable sub-period sizes.
//
// H > 0.5 indicates persistence (trending), H < 0.5 mean reversion. The result is
// clamped to [0, 1].
func HurstExponent(closesNewestFirst []float64) (float64, bool) {
	if len(closesNewestFirst) < HurstMinBars {
		return 0, false
	}

	closes := Reverse(closesNewestFirst)
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i] <= 0 || closes[i-1] <= 0 || !AllFinite(closes[i], closes[i-1]) {
			return 0, false
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}

	var logSizes, logRS []float64
	for _, size := range HurstSizes(len(returns)) {
		avg, ok := averageRescaledRange(returns, size)
		if !ok {
			continue
		}
		logSizes = append(logSizes, math.Log(float64(size)))
		logRS = append(logRS, math.Log(avg))
	}

	if len(logSizes) < hurstMinPairs {
		return 0, false
	}

	h := LinearRegressionSlope(logSizes, logRS)
	return math.Max(0, math.Min(1, h)), true
}

// averageRescaledRange splits returns into consecutive non-overlapping chunks of size and
// averages R/S over the chunks. Flat chunks (zero deviation) contribute no sample.
func averageRescaledRange(returns []float64, size int) (float64, bool) {
	chunks := len(returns) / size
	sum := 0.0
	count := 0

	for c := 0; c < chunks; c++ {
		segment := returns[c*size : (c+1)*size]
		s := PopStdDev(segment)
		if s == 0 {
			continue
		}

		mean := Mean(segment)
		cumulative := make([]float64, size)
		running := 0.0
		for i, r := range segment {
			running += r - mean
			cumulative[i] = running
		}
		r := floats.Max(cumulative) - floats.Min(cumulative)

		sum += r / s
		count++
	}

	if count == 0 || sum <= 0 {
		return 0, false
	}
	return sum / float64(count), true
}
