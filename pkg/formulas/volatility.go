package formulas

import (
	"github.com/markcheno/go-talib"
)

// DefaultPeriod is the Wilder window used for ATR and ADX throughout the pipeline.
const DefaultPeriod = 14

// DirectionalIndex bundles ADX with the two directional indicators.
type DirectionalIndex struct {
	ADX     float64 `json:"adx"`
	PlusDI  float64 `json:"plus_di"`
	MinusDI float64 `json:"minus_di"`
}

// Bullish reports whether +DI leads -DI.
func (d DirectionalIndex) Bullish() bool {
	return d.PlusDI > d.MinusDI
}

// ATRSeries returns Wilder's Average True Range for every bar, newest-first, aligned with
// the inputs. All three inputs are newest-first and must have equal length.
//
// With fewer than period+1 bars (one prior close is needed for the first true range) the
// result is zero-filled instead of failing; callers treat zero ATR as "unknown".
func ATRSeries(highs, lows, closes []float64, period int) []float64 {
	n := len(closes)
	out := make([]float64, n)
	if period <= 0 || n < period+1 || len(highs) != n || len(lows) != n {
		return out
	}

	atr := talib.Atr(Reverse(highs), Reverse(lows), Reverse(closes), period)
	for i, v := range atr {
		if !AllFinite(v) {
			v = 0
		}
		out[n-1-i] = v
	}
	return out
}

// CalculateATR returns the most recent ATR value, or 0 when it cannot be computed.
func CalculateATR(highs, lows, closes []float64, period int) float64 {
	series := ATRSeries(highs, lows, closes, period)
	if len(series) == 0 {
		return 0
	}
	return series[0]
}

// CalculateDirectionalIndex returns the latest ADX, +DI and -DI for newest-first bars.
// ADX needs two smoothing passes, so fewer than 2*period+1 bars yields a zero value.
func CalculateDirectionalIndex(highs, lows, closes []float64, period int) DirectionalIndex {
	n := len(closes)
	if period <= 0 || n < 2*period+1 || len(highs) != n || len(lows) != n {
		return DirectionalIndex{}
	}

	h, l, c := Reverse(highs), Reverse(lows), Reverse(closes)
	adx := talib.Adx(h, l, c, period)
	plus := talib.PlusDI(h, l, c, period)
	minus := talib.MinusDI(h, l, c, period)

	result := DirectionalIndex{
		ADX:     adx[len(adx)-1],
		PlusDI:  plus[len(plus)-1],
		MinusDI: minus[len(minus)-1],
	}
	if !AllFinite(result.ADX, result.PlusDI, result.MinusDI) {
		return DirectionalIndex{}
	}
	return result
}
