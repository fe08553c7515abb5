package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dustrun/internal/engine"
	"github.com/roach88/dustrun/internal/testutil"
)

func TestOpen_CreatesAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	runAndFinish(t, s, "run-1", testutil.HelloProgram(), engine.DefaultConfig())
	require.NoError(t, s.Close())

	// Reopening keeps the history and re-runs no migration.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)
}

func TestOpenExisting(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.db")
	_, err := OpenExisting(missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDatabaseNotFound)
	assert.NoFileExists(t, missing)

	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenExisting(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	want := map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"busy_timeout": "5000",
		"foreign_keys": "1",
	}
	for name, value := range want {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, value, got, name)
	}
}

func TestOpen_MigratesOldDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")

	// A database at version 1: schema plus the first index only.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec(migrations[0].stmt)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, schemaVersion, v)

	for _, index := range []string{"idx_runs_input_digest", "idx_runs_status"} {
		var name string
		err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, index).Scan(&name)
		require.NoError(t, err, index)
	}
}

func TestClose_ZeroStore(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}
