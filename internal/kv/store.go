// Package kv is the scoped, best-effort persistent key/value store that
// backs every piece of UI state surviving a restart. Values are JSON.
// Storage failures never reach callers: reads fall back, writes are
// swallowed after a single warning per session.
package kv

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a namespaced key/value store on SQLite. A nil *Store behaves as
// an always-empty store that discards writes.
type Store struct {
	db       *sql.DB
	log      *slog.Logger
	warnOnce sync.Once
}

// Open opens (creating if needed) the store at path and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("kv: create dir: %w", err)
	}
	return open(path)
}

// OpenMemory opens a private in-memory store.
func OpenMemory() (*Store, error) {
	return open(":memory:")
}

func open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("kv: open: %w", err)
	}
	// Single writer within a process; also keeps ":memory:" on one connection.
	conn.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, stmt := range pragmas {
		if _, err := conn.Exec(stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("kv: apply pragma %q: %w", stmt, err)
		}
	}
	if err := migrate(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Store{db: conn, log: slog.Default().With("component", "kv")}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Raw returns a copy of the stored bytes for key.
func (s *Store) Raw(key string) ([]byte, bool) {
	if s == nil || s.db == nil {
		return nil, false
	}
	var value []byte
	err := s.db.QueryRow("SELECT value FROM aioffice_kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows {
			s.log.Debug("kv read failed", "key", key, "err", err)
		}
		return nil, false
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true
}

// Decode unmarshals the value for key into dst. It returns false when the
// key is absent or the stored value is corrupt; dst is untouched then.
func (s *Store) Decode(key string, dst any) bool {
	data, ok := s.Raw(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.log.Debug("kv value corrupt, treating as absent", "key", key, "err", err)
		return false
	}
	return true
}

// Read returns the decoded value for key, or fallback when the key is
// absent or corrupt.
func Read[T any](s *Store, key string, fallback T) T {
	var v T
	if !s.Decode(key, &v) {
		return fallback
	}
	return v
}

// Write stores value under key. Failures are logged once per session.
func (s *Store) Write(key string, value any) {
	if s == nil || s.db == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		s.warn(key, err)
		return
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO aioffice_kv (key, value, updated_at) VALUES (?, ?, ?)",
		key, data, time.Now().UnixMilli(),
	)
	if err != nil {
		s.warn(key, err)
	}
}

// Remove deletes one key.
func (s *Store) Remove(key string) {
	if s == nil || s.db == nil {
		return
	}
	if _, err := s.db.Exec("DELETE FROM aioffice_kv WHERE key = ?", key); err != nil {
		s.warn(key, err)
	}
}

// ScanPrefix returns every key beginning with prefix, sorted.
func (s *Store) ScanPrefix(prefix string) []string {
	if s == nil || s.db == nil {
		return nil
	}
	rows, err := s.db.Query(
		"SELECT key FROM aioffice_kv WHERE substr(key, 1, length(?)) = ? ORDER BY key",
		prefix, prefix,
	)
	if err != nil {
		s.log.Debug("kv scan failed", "prefix", prefix, "err", err)
		return nil
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return keys
		}
		keys = append(keys, key)
	}
	return keys
}

// Clear removes every key beginning with prefix and returns how many were removed.
func (s *Store) Clear(prefix string) int {
	if s == nil || s.db == nil {
		return 0
	}
	result, err := s.db.Exec("DELETE FROM aioffice_kv WHERE substr(key, 1, length(?)) = ?", prefix, prefix)
	if err != nil {
		s.warn(prefix, err)
		return 0
	}
	n, _ := result.RowsAffected()
	return int(n)
}

func (s *Store) warn(key string, err error) {
	s.warnOnce.Do(func() {
		s.log.Warn("ui state not persisted; further storage errors are suppressed", "key", key, "err", err)
	})
}
