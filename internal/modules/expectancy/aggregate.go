package expectancy

import (
	"math"
	"sort"
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
)

// BreakevenBandR is the half-width around 0R inside which a trade counts as breakeven.
const BreakevenBandR = 0.1

// TradeR returns the realized R multiple of a closed position.
func TradeR(p domain.Position) (float64, bool) {
	if p.Status != domain.PositionClosed || p.ExitPrice == nil || p.EntryRisk <= 0 {
		return 0, false
	}
	r := (*p.ExitPrice - p.EntryPrice) / p.EntryRisk
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}

// KeyFor buckets a position by its sleeve, entry ATR% and entry regime.
func KeyFor(p domain.Position) domain.ExpectancyKey {
	return domain.ExpectancyKey{
		Sleeve:    p.Sleeve,
		ATRBucket: domain.BucketForATRPct(p.ATRPctAtEntry),
		Regime:    p.RegimeAtEntry,
	}
}

// Aggregate groups closed positions into slices. Open positions and rows without a
// usable R are ignored. The result is sorted by key.
func Aggregate(positions []domain.Position, now time.Time) []domain.ExpectancySlice {
	type acc struct {
		slice           domain.ExpectancySlice
		winSum, lossSum float64
	}
	groups := make(map[domain.ExpectancyKey]*acc)

	for _, p := range positions {
		r, ok := TradeR(p)
		if !ok {
			continue
		}
		key := KeyFor(p)
		a, exists := groups[key]
		if !exists {
			a = &acc{slice: domain.ExpectancySlice{Key: key}}
			groups[key] = a
		}
		a.slice.TradeCount++
		a.slice.TotalR += r
		switch {
		case r > BreakevenBandR:
			a.slice.Wins++
			a.winSum += r
		case r < -BreakevenBandR:
			a.slice.Losses++
			a.lossSum += r
		default:
			a.slice.Breakevens++
		}
	}

	out := make([]domain.ExpectancySlice, 0, len(groups))
	for _, a := range groups {
		s := a.slice
		n := float64(s.TradeCount)
		s.WinRate = round4(float64(s.Wins) / n)
		if s.Wins > 0 {
			s.AvgWinR = round4(a.winSum / float64(s.Wins))
		}
		if s.Losses > 0 {
			s.AvgLossR = round4(a.lossSum / float64(s.Losses))
		}
		s.ExpectancyR = round4(s.TotalR / n)
		s.TotalR = round4(s.TotalR)
		s.UpdatedAt = now.UTC()
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.Sleeve != b.Sleeve {
			return a.Sleeve < b.Sleeve
		}
		if a.ATRBucket != b.ATRBucket {
			return a.ATRBucket < b.ATRBucket
		}
		return a.Regime < b.Regime
	})
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
