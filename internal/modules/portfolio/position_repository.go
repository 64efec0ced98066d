// Package portfolio persists positions and their stop-loss audit trail.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/swingsentinel/internal/database"
	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// positionColumns is the column list for position scans.
const positionColumns = `id, ticker, sleeve, sector, cluster, currency, entry_date, entry_price,
	shares, entry_risk, current_stop, protection_level, status, last_price, exit_price, exit_date,
	atr_pct_at_entry, regime_at_entry`

// PositionRepository handles position database operations. It implements domain.PositionStore.
type PositionRepository struct {
	db  *sql.DB // portfolio.db - positions, stop_history
	now func() time.Time
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// GetOpen returns all OPEN positions ordered by id.
func (r *PositionRepository) GetOpen(ctx context.Context) ([]domain.Position, error) {
	return r.list(ctx, "SELECT "+positionColumns+" FROM positions WHERE status = 'OPEN' ORDER BY id")
}

// GetAll returns all positions ordered by id.
func (r *PositionRepository) GetAll(ctx context.Context) ([]domain.Position, error) {
	return r.list(ctx, "SELECT "+positionColumns+" FROM positions ORDER BY id")
}

// GetClosed returns all CLOSED positions ordered by id.
func (r *PositionRepository) GetClosed(ctx context.Context) ([]domain.Position, error) {
	return r.list(ctx, "SELECT "+positionColumns+" FROM positions WHERE status = 'CLOSED' ORDER BY id")
}

func (r *PositionRepository) list(ctx context.Context, query string) ([]domain.Position, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

// GetByID returns a position or domain.ErrPositionNotFound.
func (r *PositionRepository) GetByID(ctx context.Context, id int64) (*domain.Position, error) {
	return getByID(ctx, r.db, id)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getByID(ctx context.Context, q queryRower, id int64) (*domain.Position, error) {
	p, err := scanPosition(q.QueryRowContext(ctx, "SELECT "+positionColumns+" FROM positions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("position %d: %w", id, domain.ErrPositionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query position %d: %w", id, err)
	}
	return &p, nil
}

// Create inserts a new OPEN position at its initial protection state.
func (r *PositionRepository) Create(ctx context.Context, p domain.Position) (int64, error) {
	if !p.Sleeve.Valid() {
		return 0, domain.NewValidationError("sleeve", "unknown sleeve %q", p.Sleeve)
	}
	if p.EntryPrice <= 0 || p.Shares <= 0 || p.EntryRisk <= 0 {
		return 0, domain.NewValidationError("position", "entry price, shares and entry risk must be positive")
	}
	if p.Protection.Level == "" {
		p.Protection = domain.ProtectionState{Level: domain.LevelInitial, Stop: p.InitialStop()}
	}
	if !p.Protection.Level.Valid() {
		return 0, domain.NewValidationError("protection_level", "unknown level %q", p.Protection.Level)
	}
	if p.EntryDate.IsZero() {
		p.EntryDate = r.now()
	}
	if p.RegimeAtEntry == "" {
		p.RegimeAtEntry = domain.RegimeSideways
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}

	now := r.now().Unix()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO positions (ticker, sleeve, sector, cluster, currency, entry_date, entry_price,
			shares, entry_risk, current_stop, protection_level, status, last_price,
			atr_pct_at_entry, regime_at_entry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'OPEN', ?, ?, ?, ?, ?)
	`, p.Ticker, string(p.Sleeve), p.Sector, p.Cluster, p.Currency, p.EntryDate.Unix(), p.EntryPrice,
		p.Shares, p.EntryRisk, p.Protection.Stop, string(p.Protection.Level), p.LastPrice,
		p.ATRPctAtEntry, string(p.RegimeAtEntry), now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert position %s: %w", p.Ticker, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read position id: %w", err)
	}

	r.log.Info().Int64("id", id).Str("ticker", p.Ticker).Float64("stop", p.Protection.Stop).Msg("Position opened")
	return id, nil
}

// Close marks a position CLOSED at exitPrice. Closing twice is an invariant violation.
func (r *PositionRepository) Close(ctx context.Context, id int64, exitPrice float64) error {
	if exitPrice <= 0 {
		return domain.NewValidationError("exit_price", "exit price must be positive")
	}
	return database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		p, err := getByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Status != domain.PositionOpen {
			return domain.NewInvariantViolation(id, domain.RulePositionOpen, "position is already %s", p.Status)
		}
		now := r.now().Unix()
		_, err = tx.ExecContext(ctx,
			"UPDATE positions SET status = 'CLOSED', exit_price = ?, exit_date = ?, last_price = ?, updated_at = ? WHERE id = ?",
			exitPrice, now, exitPrice, now, id)
		if err != nil {
			return fmt.Errorf("failed to close position %d: %w", id, err)
		}
		return nil
	})
}

// UpdateLastPrice records the latest mark for an open position.
func (r *PositionRepository) UpdateLastPrice(ctx context.Context, id int64, price float64) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE positions SET last_price = ?, updated_at = ? WHERE id = ? AND status = 'OPEN'",
		price, r.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update last price for %d: %w", id, err)
	}
	return nil
}

// UpdateProtection reads the position, asks mutate for the next state and writes
// the new stop, level and history row, all in one transaction. A nil entry from
// mutate leaves everything untouched.
func (r *PositionRepository) UpdateProtection(ctx context.Context, id int64, mutate domain.ProtectionMutation) (*domain.StopHistoryEntry, error) {
	var applied *domain.StopHistoryEntry

	err := database.WithTransactionContext(ctx, r.db, func(tx *sql.Tx) error {
		current, err := getByID(ctx, tx, id)
		if err != nil {
			return err
		}

		entry, err := mutate(*current)
		if err != nil || entry == nil {
			return err
		}

		if entry.ID == "" {
			entry.ID = uuid.New().String()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = r.now().UTC()
		}
		entry.PositionID = id

		if _, err := tx.ExecContext(ctx,
			"UPDATE positions SET current_stop = ?, protection_level = ?, updated_at = ? WHERE id = ?",
			entry.NewStop, string(entry.Level), r.now().Unix(), id); err != nil {
			return fmt.Errorf("failed to update stop for %d: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stop_history (id, position_id, old_stop, new_stop, old_level, level, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, entry.ID, id, entry.OldStop, entry.NewStop, string(entry.OldLevel), string(entry.Level),
			entry.Reason, entry.CreatedAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to append stop history for %d: %w", id, err)
		}

		applied = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied != nil {
		r.log.Info().
			Int64("position_id", id).
			Float64("old_stop", applied.OldStop).
			Float64("new_stop", applied.NewStop).
			Str("level", string(applied.Level)).
			Str("reason", applied.Reason).
			Msg("Stop updated")
	}
	return applied, nil
}

// GetStopHistory returns the audit trail for a position, oldest first.
func (r *PositionRepository) GetStopHistory(ctx context.Context, positionID int64) ([]domain.StopHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, position_id, old_stop, new_stop, old_level, level, reason, created_at
		FROM stop_history
		WHERE position_id = ?
		ORDER BY created_at, rowid
	`, positionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stop history: %w", err)
	}
	defer rows.Close()

	var entries []domain.StopHistoryEntry
	for rows.Next() {
		var e domain.StopHistoryEntry
		var oldLevel, level string
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.PositionID, &e.OldStop, &e.NewStop, &oldLevel, &level, &e.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan stop history: %w", err)
		}
		e.OldLevel = domain.ProtectionLevel(oldLevel)
		e.Level = domain.ProtectionLevel(level)
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stop history: %w", err)
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var p domain.Position
	var sleeve, level, status, regime string
	var entryDate int64
	var exitPrice sql.NullFloat64
	var exitDate sql.NullInt64

	err := row.Scan(&p.ID, &p.Ticker, &sleeve, &p.Sector, &p.Cluster, &p.Currency, &entryDate,
		&p.EntryPrice, &p.Shares, &p.EntryRisk, &p.Protection.Stop, &level, &status, &p.LastPrice,
		&exitPrice, &exitDate, &p.ATRPctAtEntry, &regime)
	if err != nil {
		return domain.Position{}, err
	}

	p.Sleeve = domain.Sleeve(sleeve)
	p.Protection.Level = domain.ProtectionLevel(level)
	p.Status = domain.PositionStatus(status)
	p.RegimeAtEntry = domain.MarketRegime(regime)
	p.EntryDate = time.Unix(entryDate, 0).UTC()
	if exitPrice.Valid {
		v := exitPrice.Float64
		p.ExitPrice = &v
	}
	if exitDate.Valid {
		t := time.Unix(exitDate.Int64, 0).UTC()
		p.ExitDate = &t
	}
	return p, nil
}
