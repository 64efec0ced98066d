package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBuildConnectionString(t *testing.T) {
	ledger := buildConnectionString("/tmp/p.db", ProfileLedger)
	assert.Contains(t, ledger, "/tmp/p.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, ledger, "synchronous(FULL)")
	assert.Contains(t, ledger, "foreign_keys(1)")

	cache := buildConnectionString("/tmp/c.db", ProfileCache)
	assert.Contains(t, cache, "synchronous(OFF)")

	mem := buildConnectionString("file:test?mode=memory", ProfileStandard)
	assert.Contains(t, mem, "mode=memory&_pragma=journal_mode(WAL)")
}

func TestMigrateAllSchemas(t *testing.T) {
	tables := map[string][]string{
		NamePortfolio: {"positions", "stop_history", "expectancy_slices"},
		NameHistory:   {"securities", "daily_prices"},
		NameCache:     {"sector_momentum", "exchangerate", "scan_results"},
	}

	for name, expected := range tables {
		t.Run(name, func(t *testing.T) {
			db := newTestDB(t, name, ProfileStandard)
			require.NoError(t, db.Migrate())
			require.NoError(t, db.Migrate(), "migration is idempotent")

			for _, table := range expected {
				var found string
				err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&found)
				require.NoError(t, err, table)
			}
		})
	}
}

func TestMigrateUnknownDatabase(t *testing.T) {
	db := newTestDB(t, "mystery", ProfileStandard)
	assert.Error(t, db.Migrate())
}

func TestPortfolioSchemaGuards(t *testing.T) {
	db := newTestDB(t, NamePortfolio, ProfileLedger)
	require.NoError(t, db.Migrate())

	_, err := db.Conn().Exec(`INSERT INTO positions
		(ticker, sleeve, entry_date, entry_price, shares, entry_risk, current_stop, created_at, updated_at)
		VALUES ('AAPL', 'CORE', 0, 100, 10, 5, 95, 0, 0)`)
	require.NoError(t, err)

	_, err = db.Conn().Exec("UPDATE positions SET current_stop = 90 WHERE id = 1")
	assert.Error(t, err, "trigger rejects a lower stop")

	_, err = db.Conn().Exec("UPDATE positions SET current_stop = 100 WHERE id = 1")
	assert.NoError(t, err)

	_, err = db.Conn().Exec("UPDATE positions SET protection_level = 'LOCK_08R' WHERE id = 1")
	require.NoError(t, err)
	_, err = db.Conn().Exec("UPDATE positions SET protection_level = 'BREAKEVEN' WHERE id = 1")
	assert.ErrorContains(t, err, "protection_level must not regress")
	_, err = db.Conn().Exec("UPDATE positions SET protection_level = 'INITIAL', current_stop = 100 WHERE id = 1")
	assert.Error(t, err, "a same-stop write cannot smuggle a level regression")
	_, err = db.Conn().Exec("UPDATE positions SET protection_level = 'LOCK_1R_TRAIL' WHERE id = 1")
	assert.NoError(t, err)

	var level string
	require.NoError(t, db.Conn().QueryRow("SELECT protection_level FROM positions WHERE id = 1").Scan(&level))
	assert.Equal(t, "LOCK_1R_TRAIL", level)

	_, err = db.Conn().Exec(`INSERT INTO stop_history
		(id, position_id, old_stop, new_stop, old_level, level, reason, created_at)
		VALUES ('h1', 1, 95, 100, 'INITIAL', 'BREAKEVEN', 'test', 0)`)
	require.NoError(t, err)

	_, err = db.Conn().Exec("UPDATE stop_history SET reason = 'edited' WHERE id = 'h1'")
	assert.Error(t, err)
	_, err = db.Conn().Exec("DELETE FROM stop_history WHERE id = 'h1'")
	assert.Error(t, err)
}

func TestWithTransaction(t *testing.T) {
	db := newTestDB(t, NameCache, ProfileCache)
	require.NoError(t, db.Migrate())

	t.Run("commits on success", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO exchangerate (pair, data, expires_at) VALUES ('EUR:USD', '{}', 0)")
			return err
		})
		require.NoError(t, err)

		var count int
		require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM exchangerate").Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		sentinel := errors.New("boom")
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			if _, err := tx.Exec("INSERT INTO exchangerate (pair, data, expires_at) VALUES ('GBP:USD', '{}', 0)"); err != nil {
				return err
			}
			return sentinel
		})
		require.ErrorIs(t, err, sentinel)

		var count int
		require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM exchangerate WHERE pair = 'GBP:USD'").Scan(&count))
		assert.Equal(t, 0, count)
	})

	t.Run("recovers panics", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			panic("kaboom")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaboom")
	})

	t.Run("nil connection", func(t *testing.T) {
		assert.Error(t, WithTransaction(nil, func(tx *sql.Tx) error { return nil }))
	})
}

func TestHealthCheck(t *testing.T) {
	db := newTestDB(t, NameHistory, ProfileStandard)
	require.NoError(t, db.Migrate())
	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.QuickCheck(context.Background()))
	assert.NoError(t, db.WALCheckpoint(""))
}
