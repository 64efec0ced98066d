package universe

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aristath/swingsentinel/internal/database"
	"github.com/aristath/swingsentinel/internal/domain"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// DefaultBarLimit covers MA200 plus the 20-bar ATR lookback with room for weekly ADX.
const DefaultBarLimit = 400

// HistoryDB provides access to historical daily bars
type HistoryDB struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryDB creates a new history database accessor
func NewHistoryDB(db *sql.DB, log zerolog.Logger) *HistoryDB {
	return &HistoryDB{
		db:  db,
		log: log.With().Str("component", "history_db").Logger(),
	}
}

// GetDailyBars returns up to limit bars for ticker, newest-first.
func (h *HistoryDB) GetDailyBars(ctx context.Context, ticker string, limit int) (domain.Bars, error) {
	if limit <= 0 {
		limit = DefaultBarLimit
	}

	rows, err := h.db.QueryContext(ctx, `
		SELECT date, open, high, low, close, volume
		FROM daily_prices
		WHERE ticker = ?
		ORDER BY date DESC
		LIMIT ?
	`, NormalizeTicker(ticker), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	bars := make(domain.Bars, 0, limit)
	for rows.Next() {
		var bar domain.Bar
		var date string
		if err := rows.Scan(&date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		bar.Date, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q for %s: %w", date, ticker, err)
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}

	return bars, nil
}

// UpsertBars writes bars for ticker in a single transaction. Bars failing OHLC
// validation are skipped and counted; the rest are inserted or replaced by date.
func (h *HistoryDB) UpsertBars(ctx context.Context, ticker string, bars []domain.Bar) (written, skipped int, err error) {
	ticker = NormalizeTicker(ticker)

	err = database.WithTransactionContext(ctx, h.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO daily_prices (ticker, date, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, bar := range bars {
			if ok, reason := ValidateBar(bar); !ok {
				h.log.Warn().
					Str("ticker", ticker).
					Time("date", bar.Date).
					Str("reason", reason).
					Msg("Skipping invalid bar")
				skipped++
				continue
			}
			if _, err := stmt.ExecContext(ctx, ticker, bar.Date.UTC().Format(dateLayout),
				bar.Open, bar.High, bar.Low, bar.Close, bar.Volume); err != nil {
				return fmt.Errorf("failed to insert bar %s %s: %w", ticker, bar.Date.Format(dateLayout), err)
			}
			written++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}

	h.log.Info().Str("ticker", ticker).Int("written", written).Int("skipped", skipped).Msg("Bars stored")
	return written, skipped, nil
}

// LatestDate returns the most recent stored bar date, or zero time if none.
func (h *HistoryDB) LatestDate(ctx context.Context, ticker string) (time.Time, error) {
	var date sql.NullString
	err := h.db.QueryRowContext(ctx, "SELECT MAX(date) FROM daily_prices WHERE ticker = ?", NormalizeTicker(ticker)).Scan(&date)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query latest date: %w", err)
	}
	if !date.Valid {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, date.String)
}
