package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Sqlite is a persistent Store backed by a sqlite database file. Values
// round-trip through JSON, so anything cached here must be
// json-marshalable; decoded numbers come back as float64.
type Sqlite struct {
	db *sql.DB
}

// NewSqlite opens (or creates) the cache database at path.
func NewSqlite(path string) (*Sqlite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	s := &Sqlite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sqlite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		expires_at INTEGER NOT NULL DEFAULT 0
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrating cache db: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Sqlite) Close() error {
	return s.db.Close()
}

// GetOrCompute implements Store.
func (s *Sqlite) GetOrCompute(key string, ttl time.Duration, compute func() (interface{}, error)) (interface{}, error) {
	var blob []byte
	var expiresAt int64
	err := s.db.QueryRow(
		`SELECT value, expires_at FROM cache_entries WHERE key = ?`, key,
	).Scan(&blob, &expiresAt)
	switch {
	case err == nil:
		if expiresAt == 0 || time.Now().Unix() < expiresAt {
			var v interface{}
			if jsonErr := json.Unmarshal(blob, &v); jsonErr == nil {
				return v, nil
			}
			// Corrupt entry: fall through and recompute.
		}
	case errors.Is(err, sql.ErrNoRows):
		// Miss.
	default:
		return nil, fmt.Errorf("reading cache entry: %w", err)
	}

	v, err := compute()
	if err != nil {
		return nil, err
	}
	blob, err = json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding cache value: %w", err)
	}
	var expiry int64
	if ttl > 0 {
		expiry = time.Now().Add(ttl).Unix()
	}
	if _, err := s.db.Exec(
		`INSERT OR REPLACE INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)`,
		key, blob, expiry,
	); err != nil {
		return nil, fmt.Errorf("writing cache entry: %w", err)
	}
	return v, nil
}

// Invalidate implements Store.
func (s *Sqlite) Invalidate(key string) {
	s.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
}
