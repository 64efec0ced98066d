package guards

import "github.com/aristath/swingsentinel/internal/domain"

const (
	PullbackZoneATR = 0.25
	PullbackStopATR = 0.5
)

// PullbackInput is the geometry Mode B needs for one WAIT_PULLBACK candidate.
type PullbackInput struct {
	Status domain.CandidateStatus
	High20 float64
	EMA20  float64
	ATR    float64
	Close  float64
	DayLow float64
	// PullbackLow is the lowest low since the candidate went WAIT_PULLBACK; 0 uses DayLow.
	PullbackLow float64
}

// PullbackSignal is the Mode B verdict.
type PullbackSignal struct {
	Evaluable bool    `json:"evaluable"`
	Triggered bool    `json:"triggered"`
	Reason    string  `json:"reason"`
	Anchor    float64 `json:"anchor"`
	ZoneLow   float64 `json:"zone_low"`
	ZoneHigh  float64 `json:"zone_high"`
	Entry     float64 `json:"entry,omitempty"`
	Stop      float64 `json:"stop,omitempty"`
}

// CheckPullback reports whether a vetoed breakout has pulled back into the anchor zone
// and closed above it again. Only WAIT_PULLBACK candidates are considered.
func CheckPullback(in PullbackInput) PullbackSignal {
	if in.Status != domain.StatusWaitPullback {
		return PullbackSignal{Reason: "not_waiting_for_pullback"}
	}
	if in.ATR <= 0 {
		return PullbackSignal{Reason: "cannot_evaluate: atr unavailable"}
	}

	anchor := max(in.High20, in.EMA20)
	sig := PullbackSignal{
		Evaluable: true,
		Anchor:    anchor,
		ZoneLow:   anchor - PullbackZoneATR*in.ATR,
		ZoneHigh:  anchor + PullbackZoneATR*in.ATR,
	}

	dipped := in.DayLow >= sig.ZoneLow && in.DayLow <= sig.ZoneHigh
	switch {
	case !dipped:
		sig.Reason = "no_touch"
	case in.Close <= sig.ZoneHigh:
		sig.Reason = "no_close_above_zone"
	default:
		low := in.PullbackLow
		if low <= 0 {
			low = in.DayLow
		}
		sig.Triggered = true
		sig.Reason = "pullback_continuation"
		sig.Entry = in.Close
		sig.Stop = low - PullbackStopATR*in.ATR
	}
	return sig
}
