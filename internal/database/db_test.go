package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_RunsMigrations(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.Health())
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/does/not/exist/test.db")
	assert.Error(t, err)
}

func TestBeginTx(t *testing.T) {
	db := openTestDB(t)
	tx, err := db.BeginTx()
	require.NoError(t, err)
	assert.NoError(t, tx.Rollback())
}
