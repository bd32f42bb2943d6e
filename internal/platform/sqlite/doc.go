// Package sqlite предоставляет инфраструктуру для работы с SQLite (modernc.org/sqlite, без cgo).
//
// Основные возможности:
//   - открытие базы с PRAGMA настройками (WAL, busy_timeout, foreign_keys)
//   - транзакции через TxRunner с повтором при SQLITE_BUSY
//   - миграции golang-migrate из встроенной fs.FS
//   - классификация ошибок драйвера видами из internal/shared
//   - тестовые хелперы
//
// # Быстрый старт
//
//	db, err := sqlite.Open(ctx, "data/redditstudy.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	if _, err := sqlite.ApplyMigrations(db, migrations, "migrations"); err != nil {
//		return err
//	}
//
// # Транзакции
//
//	runner := sqlite.NewTxRunner(db, sqlite.DefaultOptions())
//	err = runner.WithinTx(ctx, func(ctx context.Context) error {
//		q := runner.GetQuerier(ctx)
//		_, err := q.ExecContext(ctx, "INSERT INTO samples (study_id, position, name) VALUES (?, ?, ?)", id, 0, "t3_abc")
//		return err
//	})
//
// В режиме TxLockImmediate транзакция открывается через BEGIN IMMEDIATE на выделенном
// соединении, поэтому внутри fn запросы должны идти только через GetQuerier(ctx).
//
// # Тестирование
//
//	func TestStore(t *testing.T) {
//		tdb := sqlite.NewTestDBInMemory(t)
//		tdb.Migrate(t, migrations, "migrations")
//	}
package sqlite
