package sigcache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the durable tier of the signature cache: a single table
// keyed by tool_call_id, backed by the pure-Go modernc.org/sqlite driver
// so the store survives process restart without cgo.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if absent) the signature cache
// database at path, creating parent directories recursively as
// needed.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sigcache: create dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sigcache: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one handle

	const schema = `
CREATE TABLE IF NOT EXISTS signatures (
	tool_call_id TEXT PRIMARY KEY,
	signature TEXT NOT NULL,
	thought_text TEXT NOT NULL,
	ts INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sigcache: migrate: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get implements DurableStore.
func (s *SQLiteStore) Get(id string) (Entry, bool) {
	row := s.db.QueryRow(`SELECT signature, thought_text, ts FROM signatures WHERE tool_call_id = ?`, id)
	var sig, text string
	var ts int64
	if err := row.Scan(&sig, &text, &ts); err != nil {
		return Entry{}, false
	}
	return Entry{Signature: sig, ThoughtText: text, Timestamp: time.Unix(ts, 0)}, true
}

// Put implements DurableStore.
func (s *SQLiteStore) Put(id string, e Entry) error {
	_, err := s.db.Exec(`
INSERT INTO signatures (tool_call_id, signature, thought_text, ts) VALUES (?, ?, ?, ?)
ON CONFLICT(tool_call_id) DO UPDATE SET signature = excluded.signature, thought_text = excluded.thought_text, ts = excluded.ts`,
		id, e.Signature, e.ThoughtText, e.Timestamp.Unix())
	return err
}

// Delete implements DurableStore.
func (s *SQLiteStore) Delete(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`DELETE FROM signatures WHERE tool_call_id = ?`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, id := range ids {
		if _, err := stmt.Exec(id); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Len implements DurableStore.
func (s *SQLiteStore) Len() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM signatures`).Scan(&n)
	return n, err
}

// Sweep implements DurableStore.
func (s *SQLiteStore) Sweep(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM signatures WHERE ts < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// EvictOldest implements DurableStore: removes the n oldest entries by
// timestamp (Cache.Store passes a tenth of the durable capacity).
func (s *SQLiteStore) EvictOldest(n int) error {
	if n <= 0 {
		return nil
	}
	_, err := s.db.Exec(`
DELETE FROM signatures WHERE tool_call_id IN (
	SELECT tool_call_id FROM signatures ORDER BY ts ASC LIMIT ?
)`, n)
	return err
}

// Close implements DurableStore.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
