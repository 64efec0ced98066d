// Package universe manages the tradable universe: security metadata and daily bar history.
package universe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/rs/zerolog"
)

// securitiesColumns avoids SELECT * so schema additions don't break scans.
const securitiesColumns = `ticker, name, sleeve, sector, cluster, currency, active`

// SecurityRepository handles security database operations
type SecurityRepository struct {
	db  *sql.DB // history.db - securities table
	log zerolog.Logger
}

// NewSecurityRepository creates a new security repository
func NewSecurityRepository(db *sql.DB, log zerolog.Logger) *SecurityRepository {
	return &SecurityRepository{
		db:  db,
		log: log.With().Str("repo", "security").Logger(),
	}
}

// NormalizeTicker upper-cases and trims a ticker.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// GetByTicker returns a security, or nil if not found.
func (r *SecurityRepository) GetByTicker(ctx context.Context, ticker string) (*domain.Security, error) {
	query := "SELECT " + securitiesColumns + " FROM securities WHERE ticker = ?"

	sec, err := scanSecurity(r.db.QueryRowContext(ctx, query, NormalizeTicker(ticker)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query security %s: %w", ticker, err)
	}
	return &sec, nil
}

// GetActive returns all active securities ordered by ticker.
func (r *SecurityRepository) GetActive(ctx context.Context) ([]domain.Security, error) {
	return r.list(ctx, "SELECT "+securitiesColumns+" FROM securities WHERE active = 1 ORDER BY ticker")
}

// GetAll returns every security ordered by ticker.
func (r *SecurityRepository) GetAll(ctx context.Context) ([]domain.Security, error) {
	return r.list(ctx, "SELECT "+securitiesColumns+" FROM securities ORDER BY ticker")
}

func (r *SecurityRepository) list(ctx context.Context, query string) ([]domain.Security, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query securities: %w", err)
	}
	defer rows.Close()

	var securities []domain.Security
	for rows.Next() {
		sec, err := scanSecurity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security: %w", err)
		}
		securities = append(securities, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating securities: %w", err)
	}
	return securities, nil
}

// Upsert inserts or replaces a security.
func (r *SecurityRepository) Upsert(ctx context.Context, sec domain.Security) error {
	sec.Ticker = NormalizeTicker(sec.Ticker)
	if sec.Ticker == "" {
		return domain.NewValidationError("ticker", "ticker is required")
	}
	if !sec.Sleeve.Valid() {
		return domain.NewValidationError("sleeve", "unknown sleeve %q", sec.Sleeve)
	}
	if sec.Currency == "" {
		sec.Currency = "USD"
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO securities (ticker, name, sleeve, sector, cluster, currency, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			name = excluded.name,
			sleeve = excluded.sleeve,
			sector = excluded.sector,
			cluster = excluded.cluster,
			currency = excluded.currency,
			active = excluded.active
	`, sec.Ticker, sec.Name, string(sec.Sleeve), sec.Sector, sec.Cluster, strings.ToUpper(sec.Currency), boolToInt(sec.Active))
	if err != nil {
		return fmt.Errorf("failed to upsert security %s: %w", sec.Ticker, err)
	}

	r.log.Debug().Str("ticker", sec.Ticker).Str("sleeve", string(sec.Sleeve)).Msg("Security upserted")
	return nil
}

// SetActive toggles whether a security participates in scans.
func (r *SecurityRepository) SetActive(ctx context.Context, ticker string, active bool) error {
	res, err := r.db.ExecContext(ctx, "UPDATE securities SET active = ? WHERE ticker = ?", boolToInt(active), NormalizeTicker(ticker))
	if err != nil {
		return fmt.Errorf("failed to update security %s: %w", ticker, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", ticker, domain.ErrSecurityNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSecurity(row rowScanner) (domain.Security, error) {
	var sec domain.Security
	var sleeve string
	var active int
	if err := row.Scan(&sec.Ticker, &sec.Name, &sleeve, &sec.Sector, &sec.Cluster, &sec.Currency, &active); err != nil {
		return domain.Security{}, err
	}
	sec.Sleeve = domain.Sleeve(sleeve)
	sec.Active = active == 1
	return sec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
