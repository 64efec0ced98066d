package stops

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/aristath/swingsentinel/pkg/formulas"
	"github.com/rs/zerolog"
)

// lastPriceMarker is implemented by stores that can record a fresh mark.
type lastPriceMarker interface {
	UpdateLastPrice(ctx context.Context, id int64, price float64) error
}

// Manager applies protection changes one position at a time. Each update holds a
// per-position lock for the whole read-check-write, and the store runs it in one
// transaction.
type Manager struct {
	store  domain.PositionStore
	market domain.MarketDataProvider
	locks  *keyedMutex
	log    zerolog.Logger
}

// NewManager creates a stop-loss manager.
func NewManager(store domain.PositionStore, market domain.MarketDataProvider, log zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		market: market,
		locks:  newKeyedMutex(),
		log:    log.With().Str("service", "stops").Logger(),
	}
}

// Apply moves a position to next. A lower stop, a backward level, an unknown level
// or a closed position fails with domain.InvariantViolationError; nothing is clamped.
// Applying the current state is a no-op and returns a nil entry.
func (m *Manager) Apply(ctx context.Context, id int64, next domain.ProtectionState, reason string) (*domain.StopHistoryEntry, error) {
	if reason == "" {
		reason = ReasonManual
	}
	return m.update(ctx, id, func(cur domain.Position) (*domain.StopHistoryEntry, error) {
		if err := CheckTransition(cur, next); err != nil {
			return nil, err
		}
		if cur.Protection == next {
			return nil, nil
		}
		return historyEntry(cur, next, reason), nil
	})
}

// Evaluate recommends a level for the position at price and applies it when the
// recommendation qualifies. The recommendation is computed against the row read
// inside the update, so a concurrent change cannot be overwritten.
func (m *Manager) Evaluate(ctx context.Context, id int64, price, atr float64) (Recommendation, *domain.StopHistoryEntry, error) {
	var rec Recommendation
	entry, err := m.update(ctx, id, func(cur domain.Position) (*domain.StopHistoryEntry, error) {
		rec = Recommend(cur, price, atr)
		if !rec.Apply {
			return nil, nil
		}
		if err := CheckTransition(cur, rec.Target); err != nil {
			return nil, err
		}
		return historyEntry(cur, rec.Target, levelReason(rec.Target.Level)), nil
	})
	return rec, entry, err
}

// Trail raises the stop to the ATR trailing stop when it is strictly higher.
// The level is unchanged.
func (m *Manager) Trail(ctx context.Context, id int64, bars domain.Bars) (*domain.StopHistoryEntry, error) {
	return m.update(ctx, id, func(cur domain.Position) (*domain.StopHistoryEntry, error) {
		if cur.Status != domain.PositionOpen {
			return nil, domain.NewInvariantViolation(cur.ID, domain.RulePositionOpen, "position is %s", cur.Status)
		}
		t, ok := ComputeATRTrail(bars, cur.EntryDate)
		if !ok || t.Stop <= cur.Protection.Stop {
			return nil, nil
		}
		next := domain.ProtectionState{Level: cur.Protection.Level, Stop: t.Stop}
		if err := CheckTransition(cur, next); err != nil {
			return nil, err
		}
		return historyEntry(cur, next, ReasonATRTrail), nil
	})
}

func (m *Manager) update(ctx context.Context, id int64, mutate domain.ProtectionMutation) (*domain.StopHistoryEntry, error) {
	unlock := m.locks.Lock(id)
	defer unlock()

	entry, err := m.store.UpdateProtection(ctx, id, mutate)
	if err != nil {
		if domain.IsInvariantViolation(err) {
			m.log.Warn().Err(err).Int64("position_id", id).Msg("Rejected stop update")
		}
		return nil, err
	}
	return entry, nil
}

func historyEntry(cur domain.Position, next domain.ProtectionState, reason string) *domain.StopHistoryEntry {
	return &domain.StopHistoryEntry{
		PositionID: cur.ID,
		OldStop:    cur.Protection.Stop,
		NewStop:    next.Stop,
		OldLevel:   cur.Protection.Level,
		Level:      next.Level,
		Reason:     reason,
	}
}

// PassFailure records a position the pass could not process.
type PassFailure struct {
	PositionID int64  `json:"position_id"`
	Ticker     string `json:"ticker"`
	Reason     string `json:"reason"`
}

// PassReport summarizes one pass over the open positions.
type PassReport struct {
	StartedAt       time.Time                 `json:"started_at"`
	Evaluated       int                       `json:"evaluated"`
	Recommendations []Recommendation          `json:"recommendations"`
	Updates         []domain.StopHistoryEntry `json:"updates"`
	Failures        []PassFailure             `json:"failures"`
}

// RunPass evaluates protection levels and then ATR trailing for every open position.
// A failing position is recorded and the pass moves on.
func (m *Manager) RunPass(ctx context.Context) (PassReport, error) {
	report := PassReport{StartedAt: time.Now().UTC()}

	open, err := m.store.GetOpen(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to read open positions: %w", err)
	}

	for _, p := range open {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Evaluated++

		bars, err := m.market.GetDailyBars(ctx, p.Ticker)
		if err != nil {
			report.Failures = append(report.Failures, PassFailure{PositionID: p.ID, Ticker: p.Ticker, Reason: err.Error()})
			continue
		}
		if len(bars) == 0 {
			report.Failures = append(report.Failures, PassFailure{PositionID: p.ID, Ticker: p.Ticker, Reason: "no bars"})
			continue
		}

		price := bars[0].Close
		if marker, ok := m.store.(lastPriceMarker); ok {
			if err := marker.UpdateLastPrice(ctx, p.ID, price); err != nil {
				m.log.Warn().Err(err).Str("ticker", p.Ticker).Msg("Failed to mark position")
			}
		}

		atr := formulas.CalculateATR(bars.Highs(), bars.Lows(), bars.Closes(), formulas.DefaultPeriod)
		rec, entry, err := m.Evaluate(ctx, p.ID, price, atr)
		if err != nil {
			report.Failures = append(report.Failures, PassFailure{PositionID: p.ID, Ticker: p.Ticker, Reason: err.Error()})
			continue
		}
		report.Recommendations = append(report.Recommendations, rec)
		if entry != nil {
			report.Updates = append(report.Updates, *entry)
		}

		entry, err = m.Trail(ctx, p.ID, bars)
		if err != nil {
			report.Failures = append(report.Failures, PassFailure{PositionID: p.ID, Ticker: p.Ticker, Reason: err.Error()})
			continue
		}
		if entry != nil {
			report.Updates = append(report.Updates, *entry)
		}
	}

	m.log.Info().
		Int("evaluated", report.Evaluated).
		Int("updates", len(report.Updates)).
		Int("failures", len(report.Failures)).
		Msg("Stop pass completed")
	return report, nil
}

// History returns the stop audit trail of a position, oldest first.
func (m *Manager) History(ctx context.Context, id int64) ([]domain.StopHistoryEntry, error) {
	return m.store.GetStopHistory(ctx, id)
}

// keyedMutex hands out one mutex per position id and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*refMutex)}
}

// Lock blocks until id is free and returns its unlock func.
func (k *keyedMutex) Lock(id int64) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &refMutex{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
