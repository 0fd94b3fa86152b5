package kv

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS aioffice_kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at INTEGER NOT NULL DEFAULT 0
	)`,
	// The bare "focus" layout mode was split into focus-* modes.
	`UPDATE aioffice_kv SET value = '"focus-preview"'
		WHERE substr(key, 1, 32) = 'ai-office:workspace-layout-mode:' AND CAST(value AS TEXT) = '"focus"'`,
}

// SchemaVersion is the version a freshly migrated store reports.
func SchemaVersion() int { return len(migrations) }

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS aioffice_meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("kv: create meta: %w", err)
	}
	current, err := schemaVersion(db)
	if err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("kv: migrate to v%d: %w", i+1, err)
		}
		if _, err := db.Exec(
			"INSERT OR REPLACE INTO aioffice_meta (key, value) VALUES ('schema_version', ?)",
			fmt.Sprint(i+1),
		); err != nil {
			return fmt.Errorf("kv: record v%d: %w", i+1, err)
		}
	}
	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var raw string
	err := db.QueryRow("SELECT value FROM aioffice_meta WHERE key = 'schema_version'").Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("kv: read schema version: %w", err)
	}
	var v int
	if _, err := fmt.Sscan(raw, &v); err != nil {
		return 0, fmt.Errorf("kv: parse schema version %q: %w", raw, err)
	}
	return v, nil
}
