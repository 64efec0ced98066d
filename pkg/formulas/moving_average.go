package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateSMA returns the simple moving average of the most recent length values.
// Input is newest-first. Returns nil if there is not enough data.
func CalculateSMA(valuesNewestFirst []float64, length int) *float64 {
	if length <= 0 || len(valuesNewestFirst) < length {
		return nil
	}

	sma := talib.Sma(Reverse(valuesNewestFirst), length)
	last := sma[len(sma)-1]
	if !AllFinite(last) {
		return nil
	}
	return &last
}

// CalculateEMA returns the exponential moving average of newest-first closes.
//
// EMA_today = (Price_today × multiplier) + (EMA_yesterday × (1 - multiplier))
// where multiplier = 2 / (length + 1)
//
// With fewer values than the period it falls back to the plain mean, so a young
// listing still gets a usable anchor.
func CalculateEMA(closesNewestFirst []float64, length int) *float64 {
	if len(closesNewestFirst) == 0 || length <= 0 {
		return nil
	}

	if len(closesNewestFirst) < length {
		mean := Mean(closesNewestFirst)
		return &mean
	}

	ema := talib.Ema(Reverse(closesNewestFirst), length)
	last := ema[len(ema)-1]
	if AllFinite(last) && last != 0 {
		return &last
	}

	mean := Mean(closesNewestFirst[:length])
	return &mean
}
