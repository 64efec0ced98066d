// Package clientdata provides persistent TTL caching in the cache database.
// Each table stores one encoded blob per key with an expiration timestamp.
package clientdata

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Table names in cache.db.
const (
	TableSectorMomentum = "sector_momentum"
	TableExchangeRate   = "exchangerate"
	TableScanResults    = "scan_results"
)

// AllTables lists all tables in cache.db for cleanup operations.
var AllTables = []string{
	TableSectorMomentum,
	TableExchangeRate,
	TableScanResults,
}

// codec encodes cached values for one table.
type codec struct {
	marshal   func(v interface{}) ([]byte, error)
	unmarshal func(data []byte, v interface{}) error
}

var (
	jsonCodec    = codec{marshal: json.Marshal, unmarshal: json.Unmarshal}
	msgpackCodec = codec{marshal: msgpack.Marshal, unmarshal: msgpack.Unmarshal}
)

type tableSpec struct {
	keyColumn string
	codec     codec
}

// tables maps table names to their key column and encoding.
// Scan snapshots are large, so they are stored as msgpack rather than JSON.
var tables = map[string]tableSpec{
	TableSectorMomentum: {keyColumn: "sector", codec: jsonCodec},
	TableExchangeRate:   {keyColumn: "pair", codec: jsonCodec},
	TableScanResults:    {keyColumn: "scan_key", codec: msgpackCodec},
}

// Repository provides cache operations for client data.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// lookup ensures the table name is in our allowed list.
// This prevents SQL injection through table names.
func lookup(table string) (tableSpec, error) {
	spec, ok := tables[table]
	if !ok {
		return tableSpec{}, fmt.Errorf("invalid table name: %s", table)
	}
	return spec, nil
}

// Store encodes data and saves it with expiration = now + ttl.
// INSERT OR REPLACE swaps the whole row, so readers never see a partial entry.
func (r *Repository) Store(table, key string, data interface{}, ttl time.Duration) error {
	spec, err := lookup(table)
	if err != nil {
		return err
	}

	encoded, err := spec.codec.marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	expiresAt := r.now().Add(ttl).Unix()
	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s, data, expires_at) VALUES (?, ?, ?)",
		table, spec.keyColumn,
	)

	if _, err := r.db.Exec(query, key, encoded, expiresAt); err != nil {
		return fmt.Errorf("failed to store data in %s: %w", table, err)
	}

	return nil
}

// GetIfFresh returns the raw blob only if expires_at > now.
// Returns nil, nil if the key doesn't exist or data is expired.
func (r *Repository) GetIfFresh(table, key string) ([]byte, error) {
	return r.get(table, key, true)
}

// Get returns the raw blob regardless of expiration status.
// Use this as a fallback when upstream calls fail - stale data is better than no data.
func (r *Repository) Get(table, key string) ([]byte, error) {
	return r.get(table, key, false)
}

func (r *Repository) get(table, key string, freshOnly bool) ([]byte, error) {
	spec, err := lookup(table)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE %s = ?", table, spec.keyColumn)
	args := []interface{}{key}
	if freshOnly {
		query += " AND expires_at > ?"
		args = append(args, r.now().Unix())
	}

	var data []byte
	err = r.db.QueryRow(query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get data from %s: %w", table, err)
	}

	return data, nil
}

// Load decodes the entry for key into v. found is false on a miss (or a stale
// entry when allowStale is false).
func (r *Repository) Load(table, key string, v interface{}, allowStale bool) (found bool, err error) {
	spec, err := lookup(table)
	if err != nil {
		return false, err
	}

	data, err := r.get(table, key, !allowStale)
	if err != nil || data == nil {
		return false, err
	}

	if err := spec.codec.unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s/%s: %w", table, key, err)
	}
	return true, nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(table, key string) error {
	spec, err := lookup(table)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", table, spec.keyColumn)
	if _, err := r.db.Exec(query, key); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	return nil
}

// Clear removes every entry of a table.
func (r *Repository) Clear(table string) error {
	if _, err := lookup(table); err != nil {
		return err
	}

	if _, err := r.db.Exec(fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

// DeleteExpired removes all rows where expires_at < now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired(table string) (int64, error) {
	if _, err := lookup(table); err != nil {
		return 0, err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table)
	result, err := r.db.Exec(query, r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
	}

	return deleted, nil
}

// DeleteAllExpired removes all expired entries from all tables.
// Returns a map of table name to number of rows deleted.
func (r *Repository) DeleteAllExpired() (map[string]int64, error) {
	results := make(map[string]int64)

	for _, table := range AllTables {
		deleted, err := r.DeleteExpired(table)
		if err != nil {
			return results, fmt.Errorf("failed to delete expired from %s: %w", table, err)
		}
		results[table] = deleted
	}

	return results, nil
}
