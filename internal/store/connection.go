package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open establishes the local cache database. By default it is a SQLite
// file under dataDir; setting DATABASE_URL switches to PostgreSQL for
// installations that back the cache with a shared server.
func Open(dataDir string) (*sqlx.DB, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %v", err)
		}
		if err := initializeSchema(db); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "wordsaver.db")
	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %v", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenInMemory opens a throwaway SQLite store, used by tests
func OpenInMemory() (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	// One bearer token per chat
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			chat_id BIGINT PRIMARY KEY,
			token TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create credentials table: %v", err)
	}

	// One in-flight prompt per chat and session kind
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS review_sessions (
			chat_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			prompt TEXT NOT NULL,
			choices TEXT,
			answered BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (chat_id, kind)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create review_sessions table: %v", err)
	}

	// Word of the most recently served prompt, sent back with the next
	// fetch so the server avoids immediate repetition
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS exclusions (
			chat_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			word TEXT NOT NULL,
			PRIMARY KEY (chat_id, kind)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create exclusions table: %v", err)
	}

	// Daily review reminder settings
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS reminders (
			chat_id BIGINT PRIMARY KEY,
			hour INTEGER NOT NULL DEFAULT 9,
			enabled BOOLEAN NOT NULL DEFAULT TRUE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create reminders table: %v", err)
	}

	return nil
}
