// Package scoring computes the breakout probability score and the composite rank.
package scoring

import (
	"github.com/aristath/swingsentinel/pkg/formulas"
)

// MaxBPS is the best possible breakout probability score.
const MaxBPS = 19

// BPSInput carries every factor input. Absent inputs are nil or empty and score low
// or neutral; they are never an error.
type BPSInput struct {
	ATR      float64 `json:"atr"`
	ATR20Ago float64 `json:"atr_20_ago"`

	// RecentVolumes is newest-first; the ten most recent bars are used.
	RecentVolumes []float64 `json:"recent_volumes,omitempty"`

	// RSPercentile is the cross-sectional percentile (0-100). When nil,
	// RSVsBenchmark (% over the benchmark) is scored instead.
	RSPercentile  *float64 `json:"rs_percentile,omitempty"`
	RSVsBenchmark *float64 `json:"rs_vs_benchmark,omitempty"`

	SectorReturn20D   *float64 `json:"sector_return_20d,omitempty"`
	ConsolidationDays *int     `json:"consolidation_days,omitempty"`

	// Return12W is preferred; WeeklyADX is the fallback.
	Return12W *float64 `json:"return_12w,omitempty"`
	WeeklyADX *float64 `json:"weekly_adx,omitempty"`

	// FailedBreakoutDaysAgo is nil when no failed breakout was found.
	FailedBreakoutDaysAgo *int `json:"failed_breakout_days_ago,omitempty"`
}

// BPSResult is the per-factor breakdown and the unweighted total.
type BPSResult struct {
	ConsolidationQuality  int `json:"consolidation_quality"`
	VolumeAccumulation    int `json:"volume_accumulation"`
	RSRank                int `json:"rs_rank"`
	SectorMomentum        int `json:"sector_momentum"`
	ConsolidationDuration int `json:"consolidation_duration"`
	PriorTrend            int `json:"prior_trend"`
	FailedBreakout        int `json:"failed_breakout"`
	Total                 int `json:"total"`
}

// CalculateBPS sums the seven factors. An empty input scores 2 because only the
// failed-breakout factor gives credit by default.
func CalculateBPS(in BPSInput) BPSResult {
	r := BPSResult{
		ConsolidationQuality:  ScoreConsolidationQuality(in.ATR, in.ATR20Ago),
		VolumeAccumulation:    ScoreVolumeAccumulation(in.RecentVolumes),
		RSRank:                ScoreRSRank(in.RSPercentile, in.RSVsBenchmark),
		SectorMomentum:        ScoreSectorMomentum(in.SectorReturn20D),
		ConsolidationDuration: ScoreConsolidationDuration(in.ConsolidationDays),
		PriorTrend:            ScorePriorTrend(in.Return12W, in.WeeklyADX),
		FailedBreakout:        ScoreFailedBreakout(in.FailedBreakoutDaysAgo),
	}
	r.Total = r.ConsolidationQuality + r.VolumeAccumulation + r.RSRank + r.SectorMomentum +
		r.ConsolidationDuration + r.PriorTrend + r.FailedBreakout
	return r
}

// ScoreConsolidationQuality scores ATR contraction, 0-3.
func ScoreConsolidationQuality(atr, atr20Ago float64) int {
	if atr <= 0 || atr20Ago <= 0 || !formulas.AllFinite(atr, atr20Ago) {
		return 0
	}
	ratio := atr / atr20Ago
	switch {
	case ratio < 0.6:
		return 3
	case ratio < 0.8:
		return 2
	case ratio < 1.0:
		return 1
	default:
		return 0
	}
}

// ScoreVolumeAccumulation scores the mean-normalized slope of the last ten volumes, 0-3.
func ScoreVolumeAccumulation(volumesNewestFirst []float64) int {
	if len(volumesNewestFirst) < 10 {
		return 0
	}
	recent := volumesNewestFirst[:10]
	mean := formulas.Mean(recent)
	if mean <= 0 {
		return 0
	}
	slope := formulas.SeriesSlope(formulas.Reverse(recent)) / mean
	switch {
	case slope > 0.03:
		return 3
	case slope > 0.01:
		return 2
	case slope > 0:
		return 1
	default:
		return 0
	}
}

// ScoreRSRank prefers the percentile and falls back to RS vs benchmark, 0-3.
func ScoreRSRank(percentile, rsVsBenchmark *float64) int {
	if percentile != nil {
		switch p := *percentile; {
		case p >= 90:
			return 3
		case p >= 75:
			return 2
		case p >= 50:
			return 1
		default:
			return 0
		}
	}
	if rsVsBenchmark != nil {
		switch rs := *rsVsBenchmark; {
		case rs > 10:
			return 3
		case rs > 5:
			return 2
		case rs > 0:
			return 1
		}
	}
	return 0
}

// ScoreSectorMomentum scores the sector ETF's 20-day return, 0-2. A miss scores 0.
func ScoreSectorMomentum(return20D *float64) int {
	if return20D == nil {
		return 0
	}
	switch {
	case *return20D > 3:
		return 2
	case *return20D > 0:
		return 1
	default:
		return 0
	}
}

// ScoreConsolidationDuration scores days spent within 10% of the 20-day high, 0-3.
func ScoreConsolidationDuration(days *int) int {
	if days == nil {
		return 0
	}
	switch d := *days; {
	case d >= 15 && d <= 45:
		return 3
	case d >= 8:
		return 1
	default:
		return 0
	}
}

// ScorePriorTrend prefers the 12-week return and falls back to weekly ADX, 0-3.
func ScorePriorTrend(return12W, weeklyADX *float64) int {
	if return12W != nil {
		switch r := *return12W; {
		case r > 20:
			return 3
		case r >= 10:
			return 2
		case r >= 5:
			return 1
		default:
			return 0
		}
	}
	if weeklyADX != nil {
		switch adx := *weeklyADX; {
		case adx >= 30:
			return 3
		case adx >= 25:
			return 2
		case adx >= 20:
			return 1
		}
	}
	return 0
}

// FailedBreakoutRecentDays is the window in which a failed breakout removes all credit.
const FailedBreakoutRecentDays = 10

// ScoreFailedBreakout gives full credit when no failure is known, 0-2.
func ScoreFailedBreakout(daysAgo *int) int {
	switch {
	case daysAgo == nil:
		return 2
	case *daysAgo <= FailedBreakoutRecentDays:
		return 0
	default:
		return 1
	}
}
