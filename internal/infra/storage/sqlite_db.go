package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// InitSQLite opens the local SQLite database and creates the schemas for the
// interaction log and the learned responses.
func InitSQLite(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer at a time; the async log serializes behind this.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := createSchemas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schemas: %w", err)
	}

	return db, nil
}

func createSchemas(db *sql.DB) error {
	schemas := []string{
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			type TEXT NOT NULL,
			details TEXT NOT NULL DEFAULT '',
			emotion TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS learning (
			keyword TEXT PRIMARY KEY,
			response TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0.5,
			times_used INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_timestamp ON interactions(timestamp);`,
	}

	for _, query := range schemas {
		if _, err := db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// OpenSQLite opens the database at dbPath and returns its repositories.
func OpenSQLite(dbPath string) (*Store, error) {
	db, err := InitSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{
		Interactions: NewSQLiteInteractionRepository(db),
		Learned:      NewSQLiteLearnedRepository(db),
		close:        db.Close,
	}, nil
}
