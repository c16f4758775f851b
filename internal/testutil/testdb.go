package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/alexanderramin/todotree/internal/db"
	"github.com/stretchr/testify/require"
)

// NewTestDB opens an in-memory todo store with the schema applied. It runs
// on a single connection, so it cannot exercise concurrent writers.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return openStore(t, db.MemoryPath)
}

// NewFileTestDB opens a todo store in a temp file. It uses WAL and a real
// connection pool, like the store the CLI opens.
func NewFileTestDB(t *testing.T) *sql.DB {
	t.Helper()
	return openStore(t, filepath.Join(t.TempDir(), "todotree.db"))
}

func openStore(t *testing.T, path string) *sql.DB {
	t.Helper()
	database, err := db.OpenDB(path)
	require.NoError(t, err, "opening test store %s", path)
	t.Cleanup(func() { database.Close() })
	return database
}

func NewTestUoW(database *sql.DB) db.UnitOfWork {
	return db.NewSQLiteUnitOfWork(database)
}

