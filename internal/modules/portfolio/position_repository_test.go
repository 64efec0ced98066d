package portfolio

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/swingsentinel/internal/domain"
	testingpkg "github.com/aristath/swingsentinel/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) (*PositionRepository, []int64) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "portfolio")
	t.Cleanup(cleanup)

	repo := NewPositionRepository(db.Conn(), zerolog.Nop())
	var ids []int64
	for _, p := range testingpkg.NewPositionFixtures() {
		id, err := repo.Create(context.Background(), p)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return repo, ids
}

func TestPositionRepository_CreateAndRead(t *testing.T) {
	repo, ids := setupRepo(t)
	ctx := context.Background()

	open, err := repo.GetOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, "AAPL", open[0].Ticker)

	p, err := repo.GetByID(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, domain.SleeveETF, p.Sleeve)
	assert.Equal(t, domain.LevelBreakeven, p.Protection.Level)
	assert.Equal(t, 50.0, p.Protection.Stop)
	assert.Equal(t, testingpkg.FixtureEnd.AddDate(0, -1, 0), p.EntryDate)
	assert.Nil(t, p.ExitPrice)

	_, err = repo.GetByID(ctx, 999)
	assert.True(t, errors.Is(err, domain.ErrPositionNotFound))
}

func TestPositionRepository_CreateDefaultsInitialStop(t *testing.T) {
	repo, _ := setupRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, domain.Position{
		Ticker: "MSFT", Sleeve: domain.SleeveCore, EntryPrice: 400, Shares: 3, EntryRisk: 12,
	})
	require.NoError(t, err)

	p, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.LevelInitial, p.Protection.Level)
	assert.Equal(t, 388.0, p.Protection.Stop)
	assert.Equal(t, domain.PositionOpen, p.Status)
	assert.Equal(t, "USD", p.Currency)

	_, err = repo.Create(ctx, domain.Position{Ticker: "X", Sleeve: "BOGUS", EntryPrice: 1, Shares: 1, EntryRisk: 1})
	assert.True(t, domain.IsValidationError(err))
	_, err = repo.Create(ctx, domain.Position{Ticker: "X", Sleeve: domain.SleeveCore, EntryPrice: 1, Shares: 0, EntryRisk: 1})
	assert.True(t, domain.IsValidationError(err))
}

func TestPositionRepository_Close(t *testing.T) {
	repo, ids := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Close(ctx, ids[0], 110))

	p, err := repo.GetByID(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, domain.PositionClosed, p.Status)
	require.NotNil(t, p.ExitPrice)
	assert.Equal(t, 110.0, *p.ExitPrice)
	assert.NotNil(t, p.ExitDate)

	err = repo.Close(ctx, ids[0], 111)
	assert.True(t, domain.IsInvariantViolation(err), "double close")

	closed, err := repo.GetClosed(ctx)
	require.NoError(t, err)
	assert.Len(t, closed, 1)

	open, err := repo.GetOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPositionRepository_UpdateProtection(t *testing.T) {
	repo, ids := setupRepo(t)
	ctx := context.Background()
	id := ids[0]

	entry, err := repo.UpdateProtection(ctx, id, func(current domain.Position) (*domain.StopHistoryEntry, error) {
		assert.Equal(t, 95.0, current.Protection.Stop)
		return &domain.StopHistoryEntry{
			OldStop: current.Protection.Stop, NewStop: 100,
			OldLevel: current.Protection.Level, Level: domain.LevelBreakeven,
			Reason: "PROTECTION_LEVEL",
		}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, id, entry.PositionID)
	assert.False(t, entry.CreatedAt.IsZero())

	p, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProtectionState{Level: domain.LevelBreakeven, Stop: 100}, p.Protection)

	t.Run("no change writes nothing", func(t *testing.T) {
		entry, err := repo.UpdateProtection(ctx, id, func(domain.Position) (*domain.StopHistoryEntry, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.Nil(t, entry)

		history, err := repo.GetStopHistory(ctx, id)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("mutation error rolls back", func(t *testing.T) {
		_, err := repo.UpdateProtection(ctx, id, func(current domain.Position) (*domain.StopHistoryEntry, error) {
			return nil, domain.NewInvariantViolation(current.ID, domain.RuleStopMonotonic, "lower")
		})
		assert.True(t, domain.IsInvariantViolation(err))
	})

	t.Run("database rejects a lower stop", func(t *testing.T) {
		_, err := repo.UpdateProtection(ctx, id, func(current domain.Position) (*domain.StopHistoryEntry, error) {
			return &domain.StopHistoryEntry{OldStop: 100, NewStop: 90, OldLevel: current.Protection.Level, Level: current.Protection.Level, Reason: "BAD"}, nil
		})
		require.Error(t, err)

		p, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 100.0, p.Protection.Stop)

		history, err := repo.GetStopHistory(ctx, id)
		require.NoError(t, err)
		assert.Len(t, history, 1, "history insert rolled back with the stop")
	})

	t.Run("missing position", func(t *testing.T) {
		_, err := repo.UpdateProtection(ctx, 999, func(domain.Position) (*domain.StopHistoryEntry, error) {
			t.Fatal("mutate must not run")
			return nil, nil
		})
		assert.True(t, errors.Is(err, domain.ErrPositionNotFound))
	})
}

func TestPositionRepository_StopHistoryOrder(t *testing.T) {
	repo, ids := setupRepo(t)
	ctx := context.Background()
	id := ids[0]

	for _, stop := range []float64{96, 97, 98} {
		_, err := repo.UpdateProtection(ctx, id, func(current domain.Position) (*domain.StopHistoryEntry, error) {
			return &domain.StopHistoryEntry{
				OldStop: current.Protection.Stop, NewStop: stop,
				OldLevel: current.Protection.Level, Level: current.Protection.Level, Reason: "ATR_TRAIL",
			}, nil
		})
		require.NoError(t, err)
	}

	history, err := repo.GetStopHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 95.0, history[0].OldStop)
	assert.Equal(t, 98.0, history[2].NewStop)
	assert.Equal(t, domain.LevelInitial, history[2].Level)
}

func TestPositionRepository_UpdateLastPrice(t *testing.T) {
	repo, ids := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.UpdateLastPrice(ctx, ids[2], 190))
	p, err := repo.GetByID(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, 190.0, p.LastPrice)
}
