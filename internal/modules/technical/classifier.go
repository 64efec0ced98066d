package technical

import (
	"github.com/aristath/swingsentinel/internal/domain"
)

const (
	ReadyDistancePct = 2.0
	WatchDistancePct = 3.0
	// StopATRMultiple places the initial stop below the trigger.
	StopATRMultiple = 1.5
)

// Classification is the classifier verdict for one candidate.
type Classification struct {
	Filters      FilterResults          `json:"filters"`
	Buffer       float64                `json:"buffer"`
	EntryTrigger float64                `json:"entry_trigger"`
	StopPrice    float64                `json:"stop_price"`
	DistancePct  float64                `json:"distance_pct"`
	Status       domain.CandidateStatus `json:"status"`
	Reasons      []string               `json:"reasons,omitempty"`
}

// Classify evaluates filters, derives the entry trigger and stop, and assigns a status.
//
// Distance is (trigger - price) / price in percent, so a price already through the
// trigger has a negative distance and classifies READY; chasing is the anti-chase
// guard's call, not the classifier's.
func Classify(snap domain.TechnicalSnapshot, sleeve domain.Sleeve, vol domain.VolatilityRegime) Classification {
	c := Classification{Filters: EvaluateFilters(snap, sleeve)}

	c.Buffer = AdaptiveBuffer(snap.ATRPct, vol)
	c.EntryTrigger = snap.High20 + c.Buffer*snap.ATR
	c.StopPrice = c.EntryTrigger - StopATRMultiple*snap.ATR
	if snap.Price > 0 {
		c.DistancePct = (c.EntryTrigger - snap.Price) / snap.Price * 100
	}

	f := c.Filters
	switch {
	case f.ATRSpikeBearish:
		c.Status = domain.StatusBlocked
		c.Reasons = append(c.Reasons, "atr_spike_bearish")
		return c
	case !f.StructuralOK():
		c.Status = domain.StatusFar
		c.Reasons = append(c.Reasons, failedFilters(f)...)
		return c
	case c.DistancePct <= ReadyDistancePct:
		c.Status = domain.StatusReady
	case c.DistancePct <= WatchDistancePct:
		c.Status = domain.StatusWatch
	default:
		c.Status = domain.StatusFar
		c.Reasons = append(c.Reasons, "far_from_trigger")
	}

	if c.Status == domain.StatusReady {
		if !f.EfficiencyOK {
			c.Status = domain.StatusWatch
			c.Reasons = append(c.Reasons, "low_efficiency")
		}
		if f.ATRSpike {
			c.Status = domain.StatusWatch
			c.Reasons = append(c.Reasons, "atr_spike")
		}
	}
	return c
}

func failedFilters(f FilterResults) []string {
	var out []string
	if !f.AboveMA200 {
		out = append(out, "below_ma200")
	}
	if !f.ADXOK {
		out = append(out, "weak_adx")
	}
	if !f.DIBullish {
		out = append(out, "di_bearish")
	}
	if !f.ATROK {
		out = append(out, "atr_out_of_range")
	}
	if !f.DataQualityOK {
		out = append(out, "data_quality")
	}
	return out
}
