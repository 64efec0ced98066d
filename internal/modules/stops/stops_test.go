package stops

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/aristath/swingsentinel/internal/domain"
	testingpkg "github.com/aristath/swingsentinel/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func position() domain.Position {
	return domain.Position{
		Ticker:     "AAPL",
		Sleeve:     domain.SleeveCore,
		EntryDate:  testingpkg.FixtureEnd.AddDate(0, -1, 0),
		EntryPrice: 100,
		Shares:     10,
		EntryRisk:  5,
		Protection: domain.ProtectionState{Level: domain.LevelInitial, Stop: 95},
		Status:     domain.PositionOpen,
	}
}

func invariantRule(t *testing.T, err error) string {
	t.Helper()
	var iv *domain.InvariantViolationError
	require.True(t, errors.As(err, &iv), "expected invariant violation, got %v", err)
	return iv.Rule
}

func TestGetProtectionLevel(t *testing.T) {
	cases := []struct {
		r    float64
		want domain.ProtectionLevel
	}{
		{-1, domain.LevelInitial},
		{0, domain.LevelInitial},
		{1.49, domain.LevelInitial},
		{1.5, domain.LevelBreakeven},
		{2.49, domain.LevelBreakeven},
		{2.5, domain.LevelLock08R},
		{2.99, domain.LevelLock08R},
		{3.0, domain.LevelLock1RTrail},
		{10, domain.LevelLock1RTrail},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, GetProtectionLevel(tc.r), "r=%v", tc.r)
	}
}

func TestRecommend(t *testing.T) {
	t.Run("breakeven", func(t *testing.T) {
		rec := Recommend(position(), 107.5, 1)
		assert.True(t, rec.Apply)
		assert.Equal(t, 1.5, rec.RMultiple)
		assert.Equal(t, domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 100}, rec.Target)
	})

	t.Run("lock 0.5R", func(t *testing.T) {
		rec := Recommend(position(), 112.5, 1)
		assert.True(t, rec.Apply)
		assert.Equal(t, domain.ProtectionState{Level: domain.LevelLock08R, Stop: 102.5}, rec.Target)
	})

	t.Run("trail takes the higher of 1R and price - 2 ATR", func(t *testing.T) {
		rec := Recommend(position(), 115, 1)
		assert.Equal(t, domain.LevelLock1RTrail, rec.Target.Level)
		assert.Equal(t, 113.0, rec.Target.Stop)

		rec = Recommend(position(), 115, 4)
		assert.Equal(t, 107.0, rec.Target.Stop)

		rec = Recommend(position(), 115, 6)
		assert.Equal(t, 105.0, rec.Target.Stop, "1R floor wins over a wide ATR trail")

		rec = Recommend(position(), 115, 0)
		assert.Equal(t, 105.0, rec.Target.Stop, "unknown ATR keeps the 1R floor")
	})

	t.Run("R ignores the current stop", func(t *testing.T) {
		p := position()
		p.Protection = domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 100}
		rec := Recommend(p, 112.5, 1)
		assert.Equal(t, 2.5, rec.RMultiple)
		assert.True(t, rec.Apply)
	})

	t.Run("level not ahead", func(t *testing.T) {
		p := position()
		p.Protection = domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 100}
		rec := Recommend(p, 108, 1)
		assert.False(t, rec.Apply)
		assert.Equal(t, "level_not_ahead", rec.Reason)
	})

	t.Run("stop not higher", func(t *testing.T) {
		p := position()
		p.Protection.Stop = 103
		rec := Recommend(p, 108, 1)
		assert.False(t, rec.Apply)
		assert.Equal(t, "stop_not_higher", rec.Reason)
	})

	t.Run("closed", func(t *testing.T) {
		p := position()
		p.Status = domain.PositionClosed
		assert.False(t, Recommend(p, 120, 1).Apply)
	})
}

func TestCheckTransition(t *testing.T) {
	p := position()
	p.Protection = domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 100}

	assert.NoError(t, CheckTransition(p, p.Protection))
	assert.NoError(t, CheckTransition(p, domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 101}))

	err := CheckTransition(p, domain.ProtectionState{Level: domain.LevelLock08R, Stop: 99})
	assert.Equal(t, domain.RuleStopMonotonic, invariantRule(t, err))

	err = CheckTransition(p, domain.ProtectionState{Level: domain.LevelInitial, Stop: 101})
	assert.Equal(t, domain.RuleLevelForward, invariantRule(t, err))

	err = CheckTransition(p, domain.ProtectionState{Level: "LOCK_2R", Stop: 110})
	assert.Equal(t, domain.RuleKnownLevel, invariantRule(t, err))

	p.Status = domain.PositionClosed
	err = CheckTransition(p, domain.ProtectionState{Level: domain.LevelLock08R, Stop: 102.5})
	assert.Equal(t, domain.RulePositionOpen, invariantRule(t, err))
}

func newManager(t *testing.T) (*Manager, *testingpkg.MockPositionStore, *testingpkg.MockMarketDataProvider) {
	t.Helper()
	store := testingpkg.NewMockPositionStore()
	market := testingpkg.NewMockMarketDataProvider()
	return NewManager(store, market, zerolog.Nop()), store, market
}

func TestManager_Apply(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newManager(t)
	id := store.Add(position())

	entry, err := m.Apply(ctx, id, domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 100}, "")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, ReasonManual, entry.Reason)
	assert.Equal(t, 95.0, entry.OldStop)
	assert.Equal(t, domain.LevelInitial, entry.OldLevel)

	t.Run("same state is a no-op", func(t *testing.T) {
		entry, err := m.Apply(ctx, id, domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 100}, "")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("lower stop is rejected, not clamped", func(t *testing.T) {
		_, err := m.Apply(ctx, id, domain.ProtectionState{Level: domain.LevelLock08R, Stop: 99}, "")
		assert.Equal(t, domain.RuleStopMonotonic, invariantRule(t, err))

		p, err := store.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 100}, p.Protection)
	})

	t.Run("backward level", func(t *testing.T) {
		_, err := m.Apply(ctx, id, domain.ProtectionState{Level: domain.LevelInitial, Stop: 100}, "")
		assert.Equal(t, domain.RuleLevelForward, invariantRule(t, err))
	})

	t.Run("closed position", func(t *testing.T) {
		closedID := store.Add(position())
		require.NoError(t, store.Close(ctx, closedID, 110))
		_, err := m.Apply(ctx, closedID, domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 100}, "")
		assert.Equal(t, domain.RulePositionOpen, invariantRule(t, err))
	})

	t.Run("missing position", func(t *testing.T) {
		_, err := m.Apply(ctx, 999, domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 100}, "")
		assert.ErrorIs(t, err, domain.ErrPositionNotFound)
	})

	history, err := m.History(ctx, id)
	require.NoError(t, err)
	assert.Len(t, history, 1, "rejected updates leave no history")
}

func TestManager_Evaluate(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newManager(t)
	id := store.Add(position())

	rec, entry, err := m.Evaluate(ctx, id, 112.5, 1)
	require.NoError(t, err)
	assert.True(t, rec.Apply)
	require.NotNil(t, entry)
	assert.Equal(t, "LEVEL_LOCK_08R", entry.Reason)
	assert.Equal(t, 102.5, entry.NewStop)

	rec, entry, err = m.Evaluate(ctx, id, 108, 1)
	require.NoError(t, err)
	assert.False(t, rec.Apply, "a pullback never lowers the level")
	assert.Nil(t, entry)

	p, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProtectionState{Level: domain.LevelLock08R, Stop: 102.5}, p.Protection)
}

func TestManager_ConcurrentUpdatesStayMonotonic(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newManager(t)
	id := store.Add(position())

	stops := make([]float64, 50)
	for i := range stops {
		stops[i] = 95.5 + float64(i)*0.1
	}
	rand.New(rand.NewSource(7)).Shuffle(len(stops), func(i, j int) { stops[i], stops[j] = stops[j], stops[i] })

	var wg sync.WaitGroup
	for _, s := range stops {
		wg.Add(1)
		go func(stop float64) {
			defer wg.Done()
			_, err := m.Apply(ctx, id, domain.ProtectionState{Level: domain.LevelInitial, Stop: stop}, "")
			if err != nil {
				assert.True(t, domain.IsInvariantViolation(err))
			}
		}(s)
	}
	wg.Wait()

	p, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.InDelta(t, 95.5+49*0.1, p.Protection.Stop, 1e-9)

	history, err := m.History(ctx, id)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	prev := 95.0
	for _, h := range history {
		assert.Equal(t, prev, h.OldStop)
		assert.Greater(t, h.NewStop, h.OldStop)
		prev = h.NewStop
	}
}

func TestComputeATRTrail(t *testing.T) {
	bars := testingpkg.UptrendBars()
	entry := bars[29].Date

	trail, ok := ComputeATRTrail(bars, entry)
	require.True(t, ok)
	assert.Equal(t, 30, trail.BarsHeld)
	assert.Equal(t, 114.75, trail.HighestClose)
	assert.InDelta(t, 1.25, trail.ATR, 1e-6)
	assert.InDelta(t, 112.25, trail.Stop, 1e-6)

	_, ok = ComputeATRTrail(bars, testingpkg.FixtureEnd.AddDate(0, 0, 3))
	assert.False(t, ok, "nothing held yet")

	_, ok = ComputeATRTrail(bars[:5], bars[4].Date)
	assert.False(t, ok, "ATR not warmed up")
}

func TestComputeATRTrail_HoldsTheHigh(t *testing.T) {
	up := testingpkg.UptrendBars()
	// Fall back 10 bars after the peak: the trail stays anchored on the highest close.
	down := testingpkg.NewBars(testingpkg.BarSpec{Count: 10, Start: 114.5, Step: -0.25, Range: 1})
	bars := append(append(domain.Bars{}, down...), up...)
	for i := range down {
		bars[i].Date = testingpkg.FixtureEnd.AddDate(0, 0, 14-i)
	}

	trail, ok := ComputeATRTrail(bars, up[29].Date)
	require.True(t, ok)
	assert.Equal(t, 40, trail.BarsHeld)
	assert.Equal(t, 114.75, trail.HighestClose)
	// The gap bar narrows ATR slightly, which can only lift the ratchet.
	assert.GreaterOrEqual(t, trail.Stop, 112.25-1e-6)
	assert.InDelta(t, 112.25, trail.Stop, 0.05)
}

func TestManager_Trail(t *testing.T) {
	ctx := context.Background()
	m, store, _ := newManager(t)
	bars := testingpkg.UptrendBars()

	p := position()
	p.EntryDate = bars[29].Date
	p.EntryPrice = 107.5
	p.Protection = domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 107.5}
	id := store.Add(p)

	entry, err := m.Trail(ctx, id, bars)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, ReasonATRTrail, entry.Reason)
	assert.Equal(t, domain.LevelBreakeven, entry.Level, "trailing keeps the level")
	assert.InDelta(t, 112.25, entry.NewStop, 1e-6)

	entry, err = m.Trail(ctx, id, bars)
	require.NoError(t, err)
	assert.Nil(t, entry, "only strictly higher stops are written")
}

func TestManager_RunPass(t *testing.T) {
	ctx := context.Background()
	m, store, market := newManager(t)
	market.SetBars("AAPL", testingpkg.UptrendBars())
	market.SetError("MSFT", errors.New("feed down"))

	id := store.Add(position())
	other := position()
	other.Ticker = "MSFT"
	store.Add(other)

	report, err := m.RunPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Evaluated)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "MSFT", report.Failures[0].Ticker)

	// 114.75 is 2.95R: LOCK_08R at 102.5, then the ATR trail lifts it to 112.25.
	require.Len(t, report.Updates, 2)
	assert.Equal(t, "LEVEL_LOCK_08R", report.Updates[0].Reason)
	assert.Equal(t, ReasonATRTrail, report.Updates[1].Reason)

	p, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.LevelLock08R, p.Protection.Level)
	assert.InDelta(t, 112.25, p.Protection.Stop, 1e-6)

	store.SetError(errors.New("db down"))
	_, err = m.RunPass(ctx)
	assert.Error(t, err)
}

func TestKeyedMutex_ReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock(1)
	assert.Len(t, k.locks, 1)
	unlock()
	assert.Empty(t, k.locks)
}
