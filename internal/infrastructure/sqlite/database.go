// Package sqlite is a single-file credential store for local development and tests.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS linked_accounts (
  id              TEXT PRIMARY KEY,
  user_id         TEXT NOT NULL,
  ig_user_id      TEXT NOT NULL,
  page_id         TEXT NOT NULL,
  username        TEXT NOT NULL,
  profile_pic     TEXT,
  access_token    TEXT NOT NULL,
  status          TEXT NOT NULL DEFAULT 'connected',
  connected_at    INTEGER NOT NULL,
  disconnected_at INTEGER,
  updated_at      INTEGER NOT NULL,
  UNIQUE (user_id, ig_user_id)
);
CREATE INDEX IF NOT EXISTS idx_linked_accounts_user ON linked_accounts(user_id, connected_at);
`

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway store.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// An in-memory database lives per connection.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}
	return db, nil
}
