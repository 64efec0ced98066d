package technical

import "github.com/aristath/swingsentinel/internal/domain"

const (
	bufferMaxFraction = 0.20 // quiet names, ATR% <= 2
	bufferMinFraction = 0.05 // volatile names, ATR% >= 6
	bufferLowATRPct   = 2.0
	bufferHighATRPct  = 6.0
)

// RegimeMultipliers scale the entry buffer by market-wide volatility.
var RegimeMultipliers = map[domain.VolatilityRegime]float64{
	domain.VolLow:    0.8,
	domain.VolNormal: 1.0,
	domain.VolHigh:   1.3,
}

// AdaptiveBuffer returns the ATR fraction added to the 20-day high to form the entry
// trigger. It falls linearly from 0.20 at ATR% 2 to 0.05 at ATR% 6, then scales by
// the volatility regime. Unknown regimes count as NORMAL.
func AdaptiveBuffer(atrPct float64, regime domain.VolatilityRegime) float64 {
	var base float64
	switch {
	case atrPct <= bufferLowATRPct:
		base = bufferMaxFraction
	case atrPct >= bufferHighATRPct:
		base = bufferMinFraction
	default:
		t := (atrPct - bufferLowATRPct) / (bufferHighATRPct - bufferLowATRPct)
		base = bufferMaxFraction - t*(bufferMaxFraction-bufferMinFraction)
	}

	mult, ok := RegimeMultipliers[regime]
	if !ok {
		mult = 1.0
	}
	return base * mult
}
