package sqlite

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"testing"
)

// TestDB - тестовая база SQLite с хелперами. Закрывается автоматически через t.Cleanup.
type TestDB struct {
	DB       *sql.DB
	Path     string
	TxRunner *TxRunner
}

// NewTestDBInMemory создает in-memory базу для теста.
func NewTestDBInMemory(t testing.TB) *TestDB {
	t.Helper()

	db, err := OpenInMemory(context.Background())
	if err != nil {
		t.Fatalf("open in-memory test DB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &TestDB{DB: db, Path: MemoryPath, TxRunner: NewTxRunner(db, MemoryOptions())}
}

// NewTestDBFile создает файловую базу во временной директории теста.
// Нужна там, где важна работа нескольких соединений (WAL, IMMEDIATE).
func NewTestDBFile(t testing.TB) *TestDB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	opts := DefaultOptions()
	db, err := OpenWithOptions(context.Background(), path, opts)
	if err != nil {
		t.Fatalf("open file test DB: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return &TestDB{DB: db, Path: path, TxRunner: NewTxRunner(db, opts)}
}

// Migrate применяет миграции из fsys/dir и падает при ошибке.
func (tdb *TestDB) Migrate(t testing.TB, fsys fs.FS, dir string) {
	t.Helper()

	if _, err := ApplyMigrations(tdb.DB, fsys, dir); err != nil {
		t.Fatalf("apply test migrations: %v", err)
	}
}

// Exec выполняет SQL команду и падает при ошибке.
func (tdb *TestDB) Exec(t testing.TB, query string, args ...any) sql.Result {
	t.Helper()

	result, err := tdb.DB.ExecContext(context.Background(), query, args...)
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
	return result
}

// CountRows возвращает количество строк в таблице.
func (tdb *TestDB) CountRows(t testing.TB, table string) int {
	t.Helper()

	var n int
	if err := tdb.DB.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("count rows in %s: %v", table, err)
	}
	return n
}

// TableExists проверяет существование таблицы.
func (tdb *TestDB) TableExists(t testing.TB, table string) bool {
	t.Helper()

	var n int
	row := tdb.DB.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table)
	if err := row.Scan(&n); err != nil {
		t.Fatalf("check table %s: %v", table, err)
	}
	return n > 0
}
