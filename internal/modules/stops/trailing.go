package stops

import (
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/pkg/formulas"
)

// Trail is an ATR trailing stop derived from the bars held since entry.
type Trail struct {
	Stop         float64 `json:"stop"`
	HighestClose float64 `json:"highest_close"`
	ATR          float64 `json:"atr"`
	BarsHeld     int     `json:"bars_held"`
}

// ComputeATRTrail walks the closes since entry oldest to newest, tracks the highest
// close, and ratchets highestClose - 2×ATR(14) using the ATR at each bar. bars is the
// full newest-first history so ATR is warmed up before entry. ok is false when no held
// bar has a usable ATR.
func ComputeATRTrail(bars domain.Bars, entryDate time.Time) (Trail, bool) {
	held := len(bars.Since(entryDate))
	if held == 0 {
		return Trail{}, false
	}
	atr := formulas.ATRSeries(bars.Highs(), bars.Lows(), bars.Closes(), formulas.DefaultPeriod)

	t := Trail{BarsHeld: held}
	found := false
	for i := held - 1; i >= 0; i-- {
		if c := bars[i].Close; c > t.HighestClose {
			t.HighestClose = c
		}
		if atr[i] <= 0 {
			continue
		}
		candidate := t.HighestClose - TrailATRMultiple*atr[i]
		if !found || candidate > t.Stop {
			t.Stop = candidate
			t.ATR = atr[i]
			found = true
		}
	}
	if !found || t.Stop <= 0 {
		return Trail{}, false
	}
	return t, true
}
