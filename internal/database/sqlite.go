// Package database provides SQLite-backed persistence for scrape and
// submission history.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver
)

// schema defines both history tables. Every store call is a single
// short-lived statement or transaction; the busy timeout lets concurrent
// fetch tasks queue briefly instead of failing on a locked database.
const schema = `
CREATE TABLE IF NOT EXISTS scraped_articles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	url_hash TEXT NOT NULL UNIQUE,
	normalized_url TEXT NOT NULL,
	headline TEXT,
	content_hash TEXT,
	scraped_at INTEGER NOT NULL,
	scrape_success INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_scraped_url_hash ON scraped_articles(url_hash);
CREATE INDEX IF NOT EXISTS idx_scraped_at ON scraped_articles(scraped_at);
CREATE INDEX IF NOT EXISTS idx_scrape_success ON scraped_articles(scrape_success);

CREATE TABLE IF NOT EXISTS submitted_urls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	url_hash TEXT NOT NULL,
	normalized_url TEXT NOT NULL,
	title TEXT NOT NULL,
	title_hash TEXT NOT NULL,
	submission_id TEXT,
	submitted_at INTEGER NOT NULL,
	source TEXT NOT NULL DEFAULT 'local'
);

CREATE INDEX IF NOT EXISTS idx_submitted_url_hash ON submitted_urls(url_hash);
CREATE INDEX IF NOT EXISTS idx_submitted_normalized_url ON submitted_urls(normalized_url);
CREATE INDEX IF NOT EXISTS idx_submitted_title_hash ON submitted_urls(title_hash);
CREATE INDEX IF NOT EXISTS idx_submitted_at ON submitted_urls(submitted_at);
`

// Open opens (creating if needed) the SQLite database at path and applies
// the schema. The parent directory is created when missing. The special
// path ":memory:" opens an in-memory database.
func Open(path string) (*sqlx.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The sqlite driver serializes writers; a single connection avoids
	// table-lock contention between concurrent fetch tasks entirely.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set database pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply database schema: %w", err)
	}

	return db, nil
}
