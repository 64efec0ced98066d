// Package guards holds the execution-time entry guards: the Mode A gap veto and the
// Mode B pullback-continuation trigger.
package guards

import (
	"fmt"
	"strings"
	"time"
)

// DaySet controls on which weekdays the gap veto is active.
type DaySet string

const (
	// MondayOnly is the legacy behaviour: only gaps over the weekend are vetoed.
	MondayOnly DaySet = "MONDAY_ONLY"
	AllDays    DaySet = "ALL_DAYS"
)

// ParseDaySet accepts MONDAY_ONLY or ALL_DAYS in any case.
func ParseDaySet(s string) (DaySet, error) {
	switch d := DaySet(strings.ToUpper(strings.TrimSpace(s))); d {
	case MondayOnly, AllDays:
		return d, nil
	}
	return "", fmt.Errorf("unknown anti-chase day set %q", s)
}

// Thresholds bound how far past the trigger a price may be before entry is vetoed.
type Thresholds struct {
	MaxGapATR float64 `json:"max_gap_atr"`
	MaxGapPct float64 `json:"max_gap_pct"`
}

// Default thresholds. Monday absorbs three days of news, so it gets more room.
var (
	WeekendThresholds = Thresholds{MaxGapATR: 0.75, MaxGapPct: 3.0}
	DailyThresholds   = Thresholds{MaxGapATR: 0.5, MaxGapPct: 2.0}
)

// AntiChaseConfig configures Mode A.
type AntiChaseConfig struct {
	Days    DaySet
	Weekend Thresholds
	Daily   Thresholds
}

// DefaultAntiChaseConfig returns the ALL_DAYS configuration with default thresholds.
func DefaultAntiChaseConfig() AntiChaseConfig {
	return AntiChaseConfig{Days: AllDays, Weekend: WeekendThresholds, Daily: DailyThresholds}
}

// AntiChaseResult is the Mode A verdict.
type AntiChaseResult struct {
	Allowed   bool    `json:"allowed"`
	Reason    string  `json:"reason"`
	GapATR    float64 `json:"gap_atr"`
	GapPct    float64 `json:"gap_pct"`
	Threshold string  `json:"threshold,omitempty"` // "weekend" or "daily" when evaluated
}

// CheckAntiChase decides whether entering at price would chase a gap past trigger.
// Below-trigger prices and weekends always pass. With ATR unknown only the percent
// threshold applies.
func CheckAntiChase(cfg AntiChaseConfig, price, trigger, atr float64, now time.Time) AntiChaseResult {
	if price < trigger || trigger <= 0 {
		return AntiChaseResult{Allowed: true, Reason: "below_trigger"}
	}

	day := now.Weekday()
	if day == time.Saturday || day == time.Sunday {
		return AntiChaseResult{Allowed: true, Reason: "weekend"}
	}
	if cfg.Days == MondayOnly && day != time.Monday {
		return AntiChaseResult{Allowed: true, Reason: "inactive_day"}
	}

	th, label := cfg.Daily, "daily"
	if day == time.Monday {
		th, label = cfg.Weekend, "weekend"
	}

	res := AntiChaseResult{
		Allowed:   true,
		Reason:    "within_threshold",
		GapPct:    (price/trigger - 1) * 100,
		Threshold: label,
	}
	if atr > 0 {
		res.GapATR = (price - trigger) / atr
	}

	switch {
	case atr > 0 && res.GapATR > th.MaxGapATR:
		res.Allowed = false
		res.Reason = fmt.Sprintf("gap %.2f ATR exceeds %.2f", res.GapATR, th.MaxGapATR)
	case res.GapPct > th.MaxGapPct:
		res.Allowed = false
		res.Reason = fmt.Sprintf("gap %.2f%% exceeds %.2f%%", res.GapPct, th.MaxGapPct)
	}
	return res
}
