// Package stops runs the protection-level ratchet and ATR trailing for open positions.
package stops

import (
	"fmt"

	"github.com/aristath/swingsentinel/internal/domain"
)

// R-multiple thresholds for each protection level.
const (
	BreakevenR = 1.5
	Lock08R    = 2.5
	TrailR     = 3.0
)

const (
	// LockOffsetR is the profit locked at LOCK_08R, in R above entry.
	LockOffsetR = 0.5
	// TrailLockR is the profit floor at LOCK_1R_TRAIL, in R above entry.
	TrailLockR = 1.0
	// TrailATRMultiple is the distance of every ATR-based trailing stop below price.
	TrailATRMultiple = 2.0
)

// History reasons.
const (
	ReasonATRTrail = "ATR_TRAIL"
	ReasonManual   = "MANUAL"
)

// levelReason is the history reason for a level transition.
func levelReason(l domain.ProtectionLevel) string {
	return "LEVEL_" + string(l)
}

// GetProtectionLevel maps an R multiple to the level it qualifies for.
func GetProtectionLevel(r float64) domain.ProtectionLevel {
	switch {
	case r >= TrailR:
		return domain.LevelLock1RTrail
	case r >= Lock08R:
		return domain.LevelLock08R
	case r >= BreakevenR:
		return domain.LevelBreakeven
	default:
		return domain.LevelInitial
	}
}

// TargetStop returns the stop a level prescribes. R is the position's initial
// per-share risk. atr <= 0 leaves LOCK_1R_TRAIL at its entry + 1R floor.
func TargetStop(p domain.Position, level domain.ProtectionLevel, price, atr float64) float64 {
	switch level {
	case domain.LevelBreakeven:
		return p.EntryPrice
	case domain.LevelLock08R:
		return p.EntryPrice + LockOffsetR*p.EntryRisk
	case domain.LevelLock1RTrail:
		stop := p.EntryPrice + TrailLockR*p.EntryRisk
		if atr > 0 {
			stop = max(stop, price-TrailATRMultiple*atr)
		}
		return stop
	default:
		return p.InitialStop()
	}
}

// Recommendation is the outcome of evaluating one position at a live price.
type Recommendation struct {
	PositionID int64                  `json:"position_id"`
	Ticker     string                 `json:"ticker"`
	Price      float64                `json:"price"`
	ATR        float64                `json:"atr"`
	RMultiple  float64                `json:"r_multiple"`
	Current    domain.ProtectionState `json:"current"`
	Target     domain.ProtectionState `json:"target"`
	Apply      bool                   `json:"apply"`
	// Reason explains a discarded recommendation.
	Reason string `json:"reason,omitempty"`
}

// Recommend computes the level and stop the position qualifies for at price.
// The recommendation is applicable only when the level is strictly ahead of the
// current level and the stop is strictly above the current stop.
func Recommend(p domain.Position, price, atr float64) Recommendation {
	r := p.RMultiple(price)
	level := GetProtectionLevel(r)
	rec := Recommendation{
		PositionID: p.ID,
		Ticker:     p.Ticker,
		Price:      price,
		ATR:        atr,
		RMultiple:  r,
		Current:    p.Protection,
		Target:     domain.ProtectionState{Level: level, Stop: TargetStop(p, level, price, atr)},
	}

	switch {
	case p.Status != domain.PositionOpen:
		rec.Reason = "position_closed"
	case !(price > 0):
		rec.Reason = "invalid_price"
	case !level.Ahead(p.Protection.Level):
		rec.Reason = "level_not_ahead"
	case rec.Target.Stop <= p.Protection.Stop:
		rec.Reason = "stop_not_higher"
	default:
		rec.Apply = true
	}
	return rec
}

// CheckTransition validates moving p to next. Equal states are allowed and mean no change.
func CheckTransition(p domain.Position, next domain.ProtectionState) error {
	switch {
	case p.Status != domain.PositionOpen:
		return domain.NewInvariantViolation(p.ID, domain.RulePositionOpen, "position is %s", p.Status)
	case !next.Level.Valid():
		return domain.NewInvariantViolation(p.ID, domain.RuleKnownLevel, "unknown protection level %q", next.Level)
	case next.Level.Rank() < p.Protection.Level.Rank():
		return domain.NewInvariantViolation(p.ID, domain.RuleLevelForward,
			"cannot move from %s back to %s", p.Protection.Level, next.Level)
	case next.Stop < p.Protection.Stop:
		return domain.NewInvariantViolation(p.ID, domain.RuleStopMonotonic,
			"stop %s is below current stop %s", fmtPrice(next.Stop), fmtPrice(p.Protection.Stop))
	case !(next.Stop > 0):
		return domain.NewValidationError("stop", "stop must be positive, got %v", next.Stop)
	}
	return nil
}

func fmtPrice(v float64) string {
	return fmt.Sprintf("%.4f", v)
}
