package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenForTesting(t *testing.T) {
	db, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	var tableName string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='scans'").Scan(&tableName)
	require.NoError(t, err)
	assert.Equal(t, "scans", tableName)
}

func TestOpenFileIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calscan.db")

	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO scans (kind, result_text) VALUES ('analysis', 'x')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening must not reapply migrations or lose rows.
	db, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM scans").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestKindConstraint(t *testing.T) {
	db, err := OpenForTesting()
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	_, err = db.Exec("INSERT INTO scans (kind, result_text) VALUES ('dessert', 'x')")
	assert.Error(t, err)
}

func TestOpenUnreachablePathFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "calscan.db")

	db, err := Open(path)

	require.Error(t, err)
	assert.Nil(t, db)
	assert.Contains(t, err.Error(), "failed to ping database")
}
