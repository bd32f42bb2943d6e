package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	sqlitedrv "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationInfo содержит информацию о результате применения миграций.
type MigrationInfo struct {
	Applied        bool // Были ли применены новые миграции
	CurrentVersion uint // Версия до применения
	FinalVersion   uint // Версия после применения
}

// ApplyMigrations применяет миграции из fsys/dir к открытой базе.
// Безопасна для повторного вызова: migrate.ErrNoChange ошибкой не считается.
//
// Экземпляр migrate намеренно не закрывается: драйвер sqlite закрывает
// переданный *sql.DB, а in-memory база при этом теряется.
func ApplyMigrations(db *sql.DB, fsys fs.FS, dir string) (MigrationInfo, error) {
	m, src, err := newMigrate(db, fsys, dir)
	if err != nil {
		return MigrationInfo{}, err
	}
	defer src.Close()

	var info MigrationInfo
	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return info, fmt.Errorf("sqlite: get migration version: %w", err)
	}
	if dirty {
		return info, fmt.Errorf("sqlite: database is in dirty state at version %d", current)
	}
	info.CurrentVersion = current
	info.FinalVersion = current

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return info, nil
		}
		return info, fmt.Errorf("sqlite: apply migrations: %w", err)
	}

	info.Applied = true
	if final, _, err := m.Version(); err == nil {
		info.FinalVersion = final
	}
	return info, nil
}

// MigrationVersion возвращает текущую версию схемы (0, если миграций ещё не было).
func MigrationVersion(db *sql.DB, fsys fs.FS, dir string) (uint, bool, error) {
	m, src, err := newMigrate(db, fsys, dir)
	if err != nil {
		return 0, false, err
	}
	defer src.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: get migration version: %w", err)
	}
	return version, dirty, nil
}

type sourceCloser interface{ Close() error }

func newMigrate(db *sql.DB, fsys fs.FS, dir string) (*migrate.Migrate, sourceCloser, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open migrations %q: %w", dir, err)
	}
	driver, err := sqlitedrv.WithInstance(db, &sqlitedrv.Config{})
	if err != nil {
		_ = src.Close()
		return nil, nil, fmt.Errorf("sqlite: migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		_ = src.Close()
		return nil, nil, fmt.Errorf("sqlite: migrate instance: %w", err)
	}
	return m, src, nil
}
