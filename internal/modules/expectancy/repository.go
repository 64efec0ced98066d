package expectancy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/swingsentinel/internal/database"
	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/rs/zerolog"
)

const sliceColumns = `sleeve, atr_bucket, regime, trade_count, wins, losses, breakevens,
	win_rate, avg_win_r, avg_loss_r, expectancy_r, total_r, updated_at`

// Repository stores expectancy slices in portfolio.db. It implements domain.ExpectancyStore.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates an expectancy repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "expectancy").Logger(),
	}
}

// GetSlice returns the slice for key, or nil when none exists.
func (r *Repository) GetSlice(ctx context.Context, key domain.ExpectancyKey) (*domain.ExpectancySlice, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sliceColumns+" FROM expectancy_slices WHERE sleeve = ? AND atr_bucket = ? AND regime = ?",
		string(key.Sleeve), string(key.ATRBucket), string(key.Regime))
	s, err := scanSlice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query expectancy slice: %w", err)
	}
	return &s, nil
}

// GetAll returns every slice ordered by key.
func (r *Repository) GetAll(ctx context.Context) ([]domain.ExpectancySlice, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+sliceColumns+" FROM expectancy_slices ORDER BY sleeve, atr_bucket, regime")
	if err != nil {
		return nil, fmt.Errorf("failed to query expectancy slices: %w", err)
	}
	defer rows.Close()

	var slices []domain.ExpectancySlice
	for rows.Next() {
		s, err := scanSlice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expectancy slice: %w", err)
		}
		slices = append(slices, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expectancy slices: %w", err)
	}
	return slices, nil
}

// ReplaceAll swaps the whole table for slices in one transaction, so readers see
// either the old set or the new one.
func (r *Repository) ReplaceAll(ctx context.Context, slices []domain.ExpectancySlice) error {
	err := database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM expectancy_slices"); err != nil {
			return fmt.Errorf("failed to clear expectancy slices: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO expectancy_slices ("+sliceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare expectancy insert: %w", err)
		}
		defer stmt.Close()

		for _, s := range slices {
			updated := s.UpdatedAt
			if updated.IsZero() {
				updated = time.Now()
			}
			if _, err := stmt.ExecContext(ctx,
				string(s.Key.Sleeve), string(s.Key.ATRBucket), string(s.Key.Regime),
				s.TradeCount, s.Wins, s.Losses, s.Breakevens,
				s.WinRate, s.AvgWinR, s.AvgLossR, s.ExpectancyR, s.TotalR, updated.Unix()); err != nil {
				return fmt.Errorf("failed to insert expectancy slice %v: %w", s.Key, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Info().Int("slices", len(slices)).Msg("Replaced expectancy slices")
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSlice(row rowScanner) (domain.ExpectancySlice, error) {
	var s domain.ExpectancySlice
	var sleeve, bucket, regime string
	var updated int64
	err := row.Scan(&sleeve, &bucket, &regime, &s.TradeCount, &s.Wins, &s.Losses, &s.Breakevens,
		&s.WinRate, &s.AvgWinR, &s.AvgLossR, &s.ExpectancyR, &s.TotalR, &updated)
	if err != nil {
		return domain.ExpectancySlice{}, err
	}
	s.Key = domain.ExpectancyKey{
		Sleeve:    domain.Sleeve(sleeve),
		ATRBucket: domain.ATRBucket(bucket),
		Regime:    domain.MarketRegime(regime),
	}
	s.UpdatedAt = time.Unix(updated, 0).UTC()
	return s, nil
}
