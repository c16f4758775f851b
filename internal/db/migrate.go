package db

import (
	"database/sql"
	"fmt"
	"strings"
)

// Migrate applies every schema statement. Statements are idempotent, so
// Migrate runs on every open.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			// ALTER TABLE ADD COLUMN has no IF NOT EXISTS form.
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// The parent link is deferred so a ChangeSet may carry a child before its
// parent. Deleting a todo cascades to its subtree, attributes and intervals.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS todos (
		id           TEXT PRIMARY KEY,
		parent_id    TEXT REFERENCES todos(id) ON DELETE CASCADE DEFERRABLE INITIALLY DEFERRED,
		name         TEXT NOT NULL,
		estimate_ns  INTEGER NOT NULL DEFAULT 0,
		completed    INTEGER NOT NULL DEFAULT 0,
		order_index  INTEGER NOT NULL DEFAULT 0,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_todos_parent ON todos(parent_id, order_index)`,

	`CREATE TABLE IF NOT EXISTS todo_attributes (
		todo_id  TEXT NOT NULL REFERENCES todos(id) ON DELETE CASCADE,
		key      TEXT NOT NULL,
		value    TEXT NOT NULL,
		PRIMARY KEY (todo_id, key)
	)`,

	`CREATE TABLE IF NOT EXISTS time_records (
		todo_id   TEXT NOT NULL REFERENCES todos(id) ON DELETE CASCADE,
		seq       INTEGER NOT NULL,
		start_at  TEXT NOT NULL,
		end_at    TEXT,
		PRIMARY KEY (todo_id, seq)
	)`,

	// Containers carry no intervals; the kind column lets ListTree skip
	// the interval join for them.
	`ALTER TABLE todos ADD COLUMN kind TEXT NOT NULL DEFAULT 'leaf'
		CHECK(kind IN ('leaf','container'))`,
}
