// Package expectancy aggregates closed-trade outcomes and turns them into a ranking modifier.
package expectancy

import "github.com/aristath/swingsentinel/internal/domain"

// DataQuality says how much history backs a modifier.
type DataQuality string

const (
	NoData       DataQuality = "NO_DATA"
	Insufficient DataQuality = "INSUFFICIENT"
	Sufficient   DataQuality = "SUFFICIENT"
)

// MinTrades is the sample size a slice needs before it moves the ranking.
const MinTrades = 10

// Result is the EV modifier for one candidate.
type Result struct {
	Key         domain.ExpectancyKey `json:"key"`
	Modifier    int                  `json:"modifier"`
	DataQuality DataQuality          `json:"data_quality"`
	TradeCount  int                  `json:"trade_count"`
	// ExpectancyR is surfaced for display whenever a slice exists, even when insufficient.
	ExpectancyR *float64 `json:"expectancy_r,omitempty"`
	WinRate     *float64 `json:"win_rate,omitempty"`
}

// Modifier maps a slice to a ranking adjustment in [-10, +5].
func Modifier(key domain.ExpectancyKey, slice *domain.ExpectancySlice) Result {
	res := Result{Key: key, DataQuality: NoData}
	if slice == nil || slice.TradeCount <= 0 {
		return res
	}

	exp, wr := slice.ExpectancyR, slice.WinRate
	res.TradeCount = slice.TradeCount
	res.ExpectancyR = &exp
	res.WinRate = &wr

	if slice.TradeCount < MinTrades {
		res.DataQuality = Insufficient
		return res
	}
	res.DataQuality = Sufficient
	res.Modifier = modifierFor(exp)
	return res
}

func modifierFor(expectancyR float64) int {
	switch {
	case expectancyR > 0.5:
		return 5
	case expectancyR >= 0:
		return 0
	case expectancyR >= -0.5:
		return -5
	default:
		return -10
	}
}
