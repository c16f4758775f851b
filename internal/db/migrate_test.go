package db

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := OpenDB(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Migrate(db))
	require.NoError(t, Migrate(db))
}

func TestMigrate_CreatesAllTables(t *testing.T) {
	db := openTestDB(t)

	for _, table := range []string{"todos", "todo_attributes", "time_records"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}

	var idx string
	err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='index' AND name='idx_todos_parent'`).Scan(&idx)
	require.NoError(t, err)
}

func TestMigrate_KindColumnAdded(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Exec(`INSERT INTO todos (id, name, created_at, updated_at) VALUES ('a', 'a', '', '')`)
	require.NoError(t, err)

	var kind string
	require.NoError(t, db.QueryRow(`SELECT kind FROM todos WHERE id = 'a'`).Scan(&kind))
	assert.Equal(t, "leaf", kind)

	_, err = db.Exec(`UPDATE todos SET kind = 'folder' WHERE id = 'a'`)
	assert.Error(t, err, "kind is constrained")
}

func TestMigrate_DeleteCascadesToSubtree(t *testing.T) {
	db := openTestDB(t)

	stmts := []string{
		`INSERT INTO todos (id, name, created_at, updated_at) VALUES ('p', 'p', '', '')`,
		`INSERT INTO todos (id, parent_id, name, created_at, updated_at) VALUES ('c', 'p', 'c', '', '')`,
		`INSERT INTO todos (id, parent_id, name, created_at, updated_at) VALUES ('g', 'c', 'g', '', '')`,
		`INSERT INTO todo_attributes (todo_id, key, value) VALUES ('g', 'k', 'v')`,
		`INSERT INTO time_records (todo_id, seq, start_at) VALUES ('g', 0, '2014-02-03T11:22:33Z')`,
		`DELETE FROM todos WHERE id = 'p'`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}

	for _, table := range []string{"todos", "todo_attributes", "time_records"} {
		var n int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
		assert.Zero(t, n, table)
	}
}

func TestMigrate_ParentCheckIsDeferred(t *testing.T) {
	db := openTestDB(t)

	tx, err := db.Begin()
	require.NoError(t, err)
	_, err = tx.Exec(`INSERT INTO todos (id, parent_id, name, created_at, updated_at) VALUES ('c', 'p', 'c', '', '')`)
	require.NoError(t, err, "child may precede its parent inside a transaction")
	_, err = tx.Exec(`INSERT INTO todos (id, name, created_at, updated_at) VALUES ('p', 'p', '', '')`)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	tx, err = db.Begin()
	require.NoError(t, err)
	_, err = tx.Exec(`INSERT INTO todos (id, parent_id, name, created_at, updated_at) VALUES ('x', 'missing', 'x', '', '')`)
	require.NoError(t, err)
	assert.Error(t, tx.Commit(), "dangling parent is rejected at commit")
}

func TestOpenDB_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "todos.db")

	db, err := OpenDB(path)
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}
