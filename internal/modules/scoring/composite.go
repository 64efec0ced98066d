package scoring

import (
	"math"
	"sort"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/pkg/formulas"
	"github.com/rs/zerolog"
)

// Composite weights. The EV modifier is added on top, unweighted.
const (
	WeightBPS       = 0.45
	WeightHurst     = 0.25
	WeightProximity = 0.30

	// HurstNeutralScore is used when the exponent is undetermined.
	HurstNeutralScore = 50.0
	// ProximityRangePct is the distance below the trigger at which proximity reaches 0.
	ProximityRangePct = 5.0
)

// HurstQuality maps H to 0-100: 0.3 or lower is 0, 0.7 or higher is 100.
func HurstQuality(h float64, determined bool) float64 {
	if !determined || !formulas.AllFinite(h) {
		return HurstNeutralScore
	}
	return clamp01((h-0.3)/0.4) * 100
}

// ProximityScore is 100 at or above the trigger and falls linearly to 0 at 5% below it.
func ProximityScore(distancePct float64) float64 {
	if !formulas.AllFinite(distancePct) {
		return 0
	}
	if distancePct <= 0 {
		return 100
	}
	return clamp01(1-distancePct/ProximityRangePct) * 100
}

// CompositeInput gathers the ranking signals for one candidate.
type CompositeInput struct {
	BPS             int
	Hurst           float64
	HurstDetermined bool
	DistancePct     float64
	EVModifier      int
}

// CompositeScore returns the 0-100 blend plus the EV modifier, rounded to 2 decimals.
func CompositeScore(in CompositeInput) float64 {
	bps := float64(in.BPS) / MaxBPS * 100
	score := WeightBPS*bps +
		WeightHurst*HurstQuality(in.Hurst, in.HurstDetermined) +
		WeightProximity*ProximityScore(in.DistancePct) +
		float64(in.EVModifier)
	return math.Round(score*100) / 100
}

// Ranked is anything that can be ordered by status priority, then score.
type Ranked interface {
	RankStatus() domain.CandidateStatus
	RankScore() float64
	RankTicker() string
}

// SortByRank orders items by status priority, then composite score, both descending.
// Ties fall back to ticker so the order is deterministic.
func SortByRank[T Ranked](items []T) {
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := items[i].RankStatus().Priority(), items[j].RankStatus().Priority()
		if pi != pj {
			return pi > pj
		}
		si, sj := items[i].RankScore(), items[j].RankScore()
		if si != sj {
			return si > sj
		}
		return items[i].RankTicker() < items[j].RankTicker()
	})
}

// Percentiles returns the percentile rank (0-100) of each value among all values.
// The rank is the share of other values strictly below, so the best of n scores
// 100 and the worst 0. A single value scores 100.
func Percentiles(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	n := len(values)
	if n == 0 {
		return out
	}
	if n == 1 {
		for k := range values {
			out[k] = 100
		}
		return out
	}
	for k, v := range values {
		below := 0
		for other, w := range values {
			if other != k && w < v {
				below++
			}
		}
		out[k] = float64(below) / float64(n-1) * 100
	}
	return out
}

// Scorer assembles BPS inputs from snapshots and the sector momentum cache.
type Scorer struct {
	sectors domain.SectorMomentumCache
	log     zerolog.Logger
}

// NewScorer creates a scorer. sectors may be nil, in which case sector momentum scores 0.
func NewScorer(sectors domain.SectorMomentumCache, log zerolog.Logger) *Scorer {
	return &Scorer{
		sectors: sectors,
		log:     log.With().Str("service", "scoring").Logger(),
	}
}

// InputFromSnapshot builds the BPS input for a snapshot. rsPercentile may be nil.
func (s *Scorer) InputFromSnapshot(snap domain.TechnicalSnapshot, sector string, rsPercentile *float64) BPSInput {
	in := BPSInput{
		ATR:                   snap.ATR,
		ATR20Ago:              snap.ATR20Ago,
		RecentVolumes:         snap.RecentVolumes,
		RSPercentile:          rsPercentile,
		RSVsBenchmark:         snap.RelativeStrength,
		ConsolidationDays:     snap.ConsolidationDays,
		Return12W:             snap.Return12W,
		WeeklyADX:             snap.WeeklyADX,
		FailedBreakoutDaysAgo: snap.FailedBreakoutDaysAgo,
	}
	if s.sectors != nil && sector != "" {
		if r, ok := s.sectors.Get(sector); ok {
			in.SectorReturn20D = &r
		} else {
			s.log.Debug().Str("sector", sector).Msg("Sector momentum miss")
		}
	}
	return in
}

// Score computes BPS for a snapshot.
func (s *Scorer) Score(snap domain.TechnicalSnapshot, sector string, rsPercentile *float64) BPSResult {
	return CalculateBPS(s.InputFromSnapshot(snap, sector, rsPercentile))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
