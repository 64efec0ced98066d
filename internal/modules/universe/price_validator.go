package universe

import (
	"math"

	"github.com/aristath/swingsentinel/internal/domain"
)

// ValidateBar checks OHLC consistency of a single bar.
// Returns (isValid, reason).
func ValidateBar(bar domain.Bar) (bool, string) {
	for _, v := range []float64{bar.Open, bar.High, bar.Low, bar.Close, bar.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false, "non_finite"
		}
	}
	if bar.Date.IsZero() {
		return false, "missing_date"
	}
	if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 {
		return false, "non_positive_price"
	}
	if bar.Volume < 0 {
		return false, "negative_volume"
	}
	if bar.High < bar.Low {
		return false, "high_below_low"
	}
	if bar.High < bar.Open || bar.High < bar.Close {
		return false, "high_below_body"
	}
	if bar.Low > bar.Open || bar.Low > bar.Close {
		return false, "low_above_body"
	}
	return true, ""
}
