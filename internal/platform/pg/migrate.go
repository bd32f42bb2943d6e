package pg

import (
	"errors"
	"fmt"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationInfo содержит информацию о результате применения миграций.
type MigrationInfo struct {
	Applied        bool // Были ли применены новые миграции
	CurrentVersion uint // Версия до применения
	FinalVersion   uint // Версия после применения
	Dirty          bool // Находится ли БД в "грязном" состоянии
}

// ApplyMigrations применяет миграции из fsys/dirName (обычно embed.FS рядом с хранилищем).
// Безопасна для повторного вызова: migrate.ErrNoChange ошибкой не считается.
// dsn должен быть в URL-форме postgres://.
func ApplyMigrations(dsn string, fsys fs.FS, dirName string) (MigrationInfo, error) {
	m, err := newMigrate(dsn, fsys, dirName)
	if err != nil {
		return MigrationInfo{}, err
	}
	defer func() { _, _ = m.Close() }()

	var info MigrationInfo
	current, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return info, fmt.Errorf("pg: get current version: %w", err)
	}
	info.CurrentVersion = current
	info.FinalVersion = current
	info.Dirty = dirty
	if dirty {
		return info, fmt.Errorf("pg: database is in dirty state at version %d", current)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return info, nil
		}
		return info, fmt.Errorf("pg: apply migrations: %w", err)
	}

	info.Applied = true
	if final, _, err := m.Version(); err == nil {
		info.FinalVersion = final
	}
	return info, nil
}

// MigrationVersion возвращает текущую версию схемы (0, если миграций ещё не было).
func MigrationVersion(dsn string, fsys fs.FS, dirName string) (uint, bool, error) {
	m, err := newMigrate(dsn, fsys, dirName)
	if err != nil {
		return 0, false, err
	}
	defer func() { _, _ = m.Close() }()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("pg: get migration version: %w", err)
	}
	return version, dirty, nil
}

func newMigrate(dsn string, fsys fs.FS, dirName string) (*migrate.Migrate, error) {
	if _, err := ParseDSN(dsn); err != nil {
		return nil, err
	}
	src, err := iofs.New(fsys, dirName)
	if err != nil {
		return nil, fmt.Errorf("pg: open migrations %q: %w", dirName, err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("pg: migrate instance: %w", err)
	}
	return m, nil
}
