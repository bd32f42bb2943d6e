package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, 4, opts.MaxOpenConns)
	assert.True(t, opts.WALMode)
	assert.True(t, opts.ForeignKeys)
	assert.Equal(t, 5*time.Second, opts.BusyTimeout)
	assert.Equal(t, TxLockImmediate, opts.TxLockMode)

	mem := MemoryOptions()
	assert.Equal(t, 1, mem.MaxOpenConns)
	assert.Zero(t, mem.ConnMaxLifetime)
	assert.Zero(t, mem.ConnMaxIdleTime)
	assert.False(t, mem.WALMode)
}

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		opts     Options
		expected string
	}{
		{"no params", "test.db", Options{}, "test.db"},
		{"busy timeout", "test.db", Options{BusyTimeout: 2 * time.Second}, "test.db?_pragma=busy_timeout(2000)"},
		{
			"busy timeout and foreign keys",
			":memory:",
			Options{BusyTimeout: time.Second, ForeignKeys: true},
			":memory:?_pragma=busy_timeout(1000)&_pragma=foreign_keys(1)",
		},
		{"existing query", "file:test.db?cache=shared", Options{ForeignKeys: true}, "file:test.db?cache=shared&_pragma=foreign_keys(1)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildDSN(tt.path, tt.opts))
		})
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "study.db")

	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestOpen_Pragmas(t *testing.T) {
	tdb := NewTestDBFile(t)
	ctx := context.Background()

	var journal string
	require.NoError(t, tdb.DB.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", journal)

	var fk int
	require.NoError(t, tdb.DB.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var busy int
	require.NoError(t, tdb.DB.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
	assert.Equal(t, 5000, busy)
}

func TestOpenInMemory_SharedState(t *testing.T) {
	tdb := NewTestDBInMemory(t)

	tdb.Exec(t, "CREATE TABLE posts (name TEXT PRIMARY KEY)")
	tdb.Exec(t, "INSERT INTO posts (name) VALUES ('t3_a'), ('t3_b')")

	assert.True(t, tdb.TableExists(t, "posts"))
	assert.Equal(t, 2, tdb.CountRows(t, "posts"))
}
