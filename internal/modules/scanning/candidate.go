// Package scanning orchestrates one pass of the decision pipeline over the universe.
package scanning

import (
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/internal/modules/expectancy"
	"github.com/aristath/swingsentinel/internal/modules/guards"
	"github.com/aristath/swingsentinel/internal/modules/scoring"
	"github.com/aristath/swingsentinel/internal/modules/sizing"
	"github.com/aristath/swingsentinel/internal/modules/technical"
)

// Pipeline stages recorded on failures.
const (
	StageBars     = "bars"
	StageSnapshot = "snapshot"
	StageCompute  = "compute"
	StageSizing   = "sizing"
)

// Failure records a ticker the scan could not process at some stage.
type Failure struct {
	Ticker string `json:"ticker"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// Candidate is one scanned security with every verdict the pipeline produced for it.
type Candidate struct {
	Ticker   string        `json:"ticker"`
	Name     string        `json:"name"`
	Sleeve   domain.Sleeve `json:"sleeve"`
	Sector   string        `json:"sector"`
	Cluster  string        `json:"cluster"`
	Currency string        `json:"currency"`

	Snapshot       domain.TechnicalSnapshot `json:"snapshot"`
	Classification technical.Classification `json:"classification"`
	// Status starts as the classifier status and may be changed by the entry guards
	// and the risk gates.
	Status  domain.CandidateStatus `json:"status"`
	Reasons []string               `json:"reasons,omitempty"`

	// Entry and Stop are the levels used for sizing: the classifier's trigger and stop,
	// or the pullback entry when Mode B fires.
	Entry float64 `json:"entry"`
	Stop  float64 `json:"stop"`

	BPS             scoring.BPSResult `json:"bps"`
	Hurst           float64           `json:"hurst"`
	HurstDetermined bool              `json:"hurst_determined"`
	RSPercentile    *float64          `json:"rs_percentile,omitempty"`
	EV              expectancy.Result `json:"ev"`
	Score           float64           `json:"rank_score"`

	AntiChase *guards.AntiChaseResult `json:"anti_chase,omitempty"`
	Pullback  *guards.PullbackSignal  `json:"pullback,omitempty"`
	Sizing    *sizing.Result          `json:"sizing,omitempty"`
	Gate      *domain.RiskGateResult  `json:"gate,omitempty"`
}

// RankStatus implements scoring.Ranked.
func (c Candidate) RankStatus() domain.CandidateStatus { return c.Status }

// RankScore implements scoring.Ranked.
func (c Candidate) RankScore() float64 { return c.Score }

// RankTicker implements scoring.Ranked.
func (c Candidate) RankTicker() string { return c.Ticker }

// Result is a complete scan run.
type Result struct {
	ID         string                  `json:"id"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Profile    string                  `json:"profile"`
	Equity     float64                 `json:"equity"`
	Regime     domain.MarketRegime     `json:"regime"`
	VolRegime  domain.VolatilityRegime `json:"vol_regime"`
	Universe   int                     `json:"universe"`
	Candidates []Candidate             `json:"candidates"`
	Failures   []Failure               `json:"failures"`
}

// Counts tallies candidates by status.
func (r Result) Counts() map[domain.CandidateStatus]int {
	out := make(map[domain.CandidateStatus]int)
	for _, c := range r.Candidates {
		out[c.Status]++
	}
	return out
}
