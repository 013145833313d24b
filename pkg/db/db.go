package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// DB wraps the sql.DB connection.
type DB struct {
	*sql.DB
}

// Init opens the database and runs migrations.
func Init(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000;"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	d := &DB{db}
	// Single connection avoids SQLITE_BUSY during concurrent writes
	db.SetMaxOpenConns(1)

	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return d, nil
}

// sqliteTime matches DEFAULT CURRENT_TIMESTAMP (YYYY-MM-DD HH:MM:SS, UTC).
func sqliteTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// PruneAudioCache removes synthesized clips older than the given age.
func (d *DB) PruneAudioCache(olderThan time.Duration) (int64, error) {
	res, err := d.Exec("DELETE FROM audio_cache WHERE created_at < ?", sqliteTime(time.Now().Add(-olderThan)))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneEvents removes walk events older than the given age.
func (d *DB) PruneEvents(olderThan time.Duration) (int64, error) {
	res, err := d.Exec("DELETE FROM walk_events WHERE created_at < ?", sqliteTime(time.Now().Add(-olderThan)))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS persistent_state (
			key TEXT PRIMARY KEY,
			value TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS audio_cache (
			key TEXT PRIMARY KEY,
			poi_id TEXT,
			voice_style TEXT,
			lang TEXT,
			script_version TEXT,
			format TEXT,
			data BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS walk_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			kind TEXT,
			poi_id TEXT,
			detail TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_walk_events_session ON walk_events(session_id, id);`,
	}

	for _, q := range queries {
		if _, err := d.Exec(q); err != nil {
			return fmt.Errorf("exec error: %w query: %s", err, q)
		}
	}

	// Migration: Add script_version if an older audio_cache lacks it
	var colCount int
	err := d.QueryRow("SELECT count(*) FROM pragma_table_info('audio_cache') WHERE name='script_version'").Scan(&colCount)
	if err == nil && colCount == 0 {
		if _, err := d.Exec("ALTER TABLE audio_cache ADD COLUMN script_version TEXT"); err != nil {
			return fmt.Errorf("failed to add script_version column: %w", err)
		}
	}

	return nil
}
