// Package domain provides core domain models and types.
package domain

import "time"

// Sleeve is the portfolio bucket a security belongs to. Each sleeve carries its own caps.
type Sleeve string

const (
	SleeveCore     Sleeve = "CORE"
	SleeveHighRisk Sleeve = "HIGH_RISK"
	SleeveETF      Sleeve = "ETF"
	// SleeveHedge holds long-horizon hedges that sit outside open-risk accounting.
	SleeveHedge Sleeve = "HEDGE"
)

// AllSleeves lists every sleeve in display order.
var AllSleeves = []Sleeve{SleeveCore, SleeveHighRisk, SleeveETF, SleeveHedge}

// Valid reports whether s is a known sleeve.
func (s Sleeve) Valid() bool {
	switch s {
	case SleeveCore, SleeveHighRisk, SleeveETF, SleeveHedge:
		return true
	}
	return false
}

// CandidateStatus is the lifecycle verdict of a scanned candidate.
type CandidateStatus string

const (
	StatusReady        CandidateStatus = "READY"
	StatusWatch        CandidateStatus = "WATCH"
	StatusWaitPullback CandidateStatus = "WAIT_PULLBACK"
	StatusFar          CandidateStatus = "FAR"
	StatusBlocked      CandidateStatus = "BLOCKED"
)

// Priority orders statuses for ranking; higher sorts first.
func (s CandidateStatus) Priority() int {
	switch s {
	case StatusReady:
		return 4
	case StatusWaitPullback:
		return 3
	case StatusWatch:
		return 2
	case StatusFar:
		return 1
	default:
		return 0
	}
}

// Actionable reports whether the status can flow into risk gates and sizing.
func (s CandidateStatus) Actionable() bool {
	return s == StatusReady || s == StatusWatch || s == StatusWaitPullback
}

// ProtectionLevel is the stage of a position's stop ratchet.
type ProtectionLevel string

const (
	LevelInitial   ProtectionLevel = "INITIAL"
	LevelBreakeven ProtectionLevel = "BREAKEVEN"
	// LevelLock08R is the persisted label for the entry + 0.5R lock. The "08" is historical
	// and kept stable for stored rows; the stop formula is 0.5R, not 0.8R.
	LevelLock08R     ProtectionLevel = "LOCK_08R"
	LevelLock1RTrail ProtectionLevel = "LOCK_1R_TRAIL"
)

// Rank returns the position of the level in INITIAL→BREAKEVEN→LOCK_08R→LOCK_1R_TRAIL,
// or -1 for an unknown label.
func (l ProtectionLevel) Rank() int {
	switch l {
	case LevelInitial:
		return 0
	case LevelBreakeven:
		return 1
	case LevelLock08R:
		return 2
	case LevelLock1RTrail:
		return 3
	}
	return -1
}

// Valid reports whether l is a known level.
func (l ProtectionLevel) Valid() bool {
	return l.Rank() >= 0
}

// Ahead reports whether l is strictly further along the ratchet than other.
func (l ProtectionLevel) Ahead(other ProtectionLevel) bool {
	return l.Rank() > other.Rank()
}

// ProtectionState pairs a stop with the level that produced it. The two always travel
// together so the level is never re-derived from the stop price.
type ProtectionState struct {
	Level ProtectionLevel `json:"level"`
	Stop  float64         `json:"stop"`
}

// PositionStatus is OPEN or CLOSED.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// MarketRegime is the broad market trend classification.
type MarketRegime string

const (
	RegimeBullish  MarketRegime = "BULLISH"
	RegimeSideways MarketRegime = "SIDEWAYS"
	RegimeBearish  MarketRegime = "BEARISH"
)

// VolatilityRegime is the market-wide volatility classification.
type VolatilityRegime string

const (
	VolLow    VolatilityRegime = "LOW_VOL"
	VolNormal VolatilityRegime = "NORMAL"
	VolHigh   VolatilityRegime = "HIGH_VOL"
)

// Bar is one daily OHLCV record.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Bars is a daily series ordered newest-first.
type Bars []Bar

// Closes returns closing prices, newest-first.
func (b Bars) Closes() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.Close
	}
	return out
}

// Highs returns highs, newest-first.
func (b Bars) Highs() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.High
	}
	return out
}

// Lows returns lows, newest-first.
func (b Bars) Lows() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.Low
	}
	return out
}

// Volumes returns volumes, newest-first.
func (b Bars) Volumes() []float64 {
	out := make([]float64, len(b))
	for i, bar := range b {
		out[i] = bar.Volume
	}
	return out
}

// Since returns the bars dated on or after t, still newest-first.
func (b Bars) Since(t time.Time) Bars {
	day := t.Truncate(24 * time.Hour)
	for i, bar := range b {
		if bar.Date.Before(day) {
			return b[:i]
		}
	}
	return b
}

// Security is the universe metadata the pipeline needs for a ticker.
type Security struct {
	Ticker   string `json:"ticker"`
	Name     string `json:"name"`
	Sleeve   Sleeve `json:"sleeve"`
	Sector   string `json:"sector"`
	Cluster  string `json:"cluster"`
	Currency string `json:"currency"`
	Active   bool   `json:"active"`
}

// TechnicalSnapshot is the point-in-time indicator bundle for one ticker.
// Optional inputs are pointers; nil means "not available" and scorers fall back.
type TechnicalSnapshot struct {
	Ticker    string    `json:"ticker"`
	AsOf      time.Time `json:"as_of"`
	BarsCount int       `json:"bars_count"`

	Price    float64 `json:"price"`
	DayLow   float64 `json:"day_low"`
	MA200    float64 `json:"ma200"`
	EMA20    float64 `json:"ema20"`
	High20   float64 `json:"high20"`
	ADX      float64 `json:"adx"`
	PlusDI   float64 `json:"plus_di"`
	MinusDI  float64 `json:"minus_di"`
	ATR      float64 `json:"atr"`
	ATR20Ago float64 `json:"atr_20_ago"`
	ATRPct   float64 `json:"atr_pct"`

	TrendEfficiency  float64  `json:"trend_efficiency"`
	RelativeStrength *float64 `json:"relative_strength,omitempty"` // % vs benchmark over 63 bars
	VolumeRatio      float64  `json:"volume_ratio"`                // today / 20-day average

	RecentVolumes         []float64 `json:"recent_volumes,omitempty"` // newest-first, up to 10
	ConsolidationDays     *int      `json:"consolidation_days,omitempty"`
	Return12W             *float64  `json:"return_12w,omitempty"`
	WeeklyADX             *float64  `json:"weekly_adx,omitempty"`
	FailedBreakoutDaysAgo *int      `json:"failed_breakout_days_ago,omitempty"`
	DataQualityOK         bool      `json:"data_quality_ok"`
	DataQualityIssues     []string  `json:"data_quality_issues,omitempty"`
}

// ATRRatio returns ATR / ATR-20-bars-ago, or 0 when either side is unusable.
func (s TechnicalSnapshot) ATRRatio() float64 {
	if s.ATR <= 0 || s.ATR20Ago <= 0 {
		return 0
	}
	return s.ATR / s.ATR20Ago
}

// Position is an open or closed holding.
type Position struct {
	ID         int64     `json:"id"`
	Ticker     string    `json:"ticker"`
	Sleeve     Sleeve    `json:"sleeve"`
	Sector     string    `json:"sector"`
	Cluster    string    `json:"cluster"`
	Currency   string    `json:"currency"`
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	Shares     float64   `json:"shares"`
	// EntryRisk is the initial per-share risk, entry minus initial stop.
	EntryRisk  float64         `json:"entry_risk"`
	Protection ProtectionState `json:"protection"`
	Status     PositionStatus  `json:"status"`
	// LastPrice is the most recent mark, used for position value in risk gates.
	LastPrice float64    `json:"last_price"`
	ExitPrice *float64   `json:"exit_price,omitempty"`
	ExitDate  *time.Time `json:"exit_date,omitempty"`
	// ATRPctAtEntry and RegimeAtEntry key the position into expectancy slices.
	ATRPctAtEntry float64      `json:"atr_pct_at_entry"`
	RegimeAtEntry MarketRegime `json:"regime_at_entry"`
}

// InitialStop is the stop the position opened with.
func (p Position) InitialStop() float64 {
	return p.EntryPrice - p.EntryRisk
}

// RMultiple returns (price - entry) / initial risk, or 0 when risk is unknown.
func (p Position) RMultiple(price float64) float64 {
	if p.EntryRisk <= 0 {
		return 0
	}
	return (price - p.EntryPrice) / p.EntryRisk
}

// MarketValue returns shares × last price, falling back to entry price when unmarked.
func (p Position) MarketValue() float64 {
	price := p.LastPrice
	if price <= 0 {
		price = p.EntryPrice
	}
	return p.Shares * price
}

// OpenRisk returns the dollars still at risk if the current stop fills, floored at zero.
func (p Position) OpenRisk() float64 {
	perShare := p.EntryPrice - p.Protection.Stop
	if perShare <= 0 {
		return 0
	}
	return perShare * p.Shares
}

// StopHistoryEntry is an append-only audit row for one stop change.
type StopHistoryEntry struct {
	ID         string          `json:"id"`
	PositionID int64           `json:"position_id"`
	OldStop    float64         `json:"old_stop"`
	NewStop    float64         `json:"new_stop"`
	OldLevel   ProtectionLevel `json:"old_level"`
	Level      ProtectionLevel `json:"level"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ATRBucket groups candidates by volatility for expectancy lookups.
type ATRBucket string

const (
	ATRBucketLow     ATRBucket = "LOW"     // ATR% < 2
	ATRBucketMid     ATRBucket = "MID"     // 2 <= ATR% < 4
	ATRBucketHigh    ATRBucket = "HIGH"    // 4 <= ATR% < 6
	ATRBucketExtreme ATRBucket = "EXTREME" // ATR% >= 6
)

// BucketForATRPct maps an ATR percentage to its bucket.
func BucketForATRPct(atrPct float64) ATRBucket {
	switch {
	case atrPct < 2:
		return ATRBucketLow
	case atrPct < 4:
		return ATRBucketMid
	case atrPct < 6:
		return ATRBucketHigh
	default:
		return ATRBucketExtreme
	}
}

// ExpectancyKey identifies an expectancy slice.
type ExpectancyKey struct {
	Sleeve    Sleeve       `json:"sleeve"`
	ATRBucket ATRBucket    `json:"atr_bucket"`
	Regime    MarketRegime `json:"regime"`
}

// ExpectancySlice is the aggregated historical outcome of one (sleeve, bucket, regime).
type ExpectancySlice struct {
	Key         ExpectancyKey `json:"key"`
	TradeCount  int           `json:"trade_count"`
	Wins        int           `json:"wins"`
	Losses      int           `json:"losses"`
	Breakevens  int           `json:"breakevens"`
	WinRate     float64       `json:"win_rate"`
	AvgWinR     float64       `json:"avg_win_r"`
	AvgLossR    float64       `json:"avg_loss_r"`
	ExpectancyR float64       `json:"expectancy_r"`
	TotalR      float64       `json:"total_r"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// GateName identifies one risk gate.
type GateName string

const (
	GateSleeveCap    GateName = "SLEEVE_CAP"
	GateClusterCap   GateName = "CLUSTER_CAP"
	GateSectorCap    GateName = "SECTOR_CAP"
	GateOpenRiskCap  GateName = "OPEN_RISK_CAP"
	GateMaxPositions GateName = "MAX_POSITIONS"
)

// GateCheck is one row of a risk gate evaluation.
type GateCheck struct {
	Name    GateName `json:"name"`
	Passed  bool     `json:"passed"`
	Current float64  `json:"current"`
	Limit   float64  `json:"limit"`
}

// RiskGateResult is the full verdict of a validation call.
type RiskGateResult struct {
	Passed bool        `json:"passed"`
	Gates  []GateCheck `json:"gates"`
}

// Failed returns the gates that did not pass.
func (r RiskGateResult) Failed() []GateCheck {
	var failed []GateCheck
	for _, g := range r.Gates {
		if !g.Passed {
			failed = append(failed, g)
		}
	}
	return failed
}
