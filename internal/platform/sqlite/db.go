package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite драйвер
)

// MemoryPath - специальный путь для in-memory базы.
const MemoryPath = ":memory:"

// TxLockMode определяет режим блокировки транзакций SQLite
type TxLockMode string

const (
	// TxLockDeferred - откладывает блокировку до первого чтения/записи (по умолчанию SQLite)
	TxLockDeferred TxLockMode = "DEFERRED"
	// TxLockImmediate - сразу захватывает RESERVED блокировку, писатели не ловят SQLITE_BUSY посреди транзакции
	TxLockImmediate TxLockMode = "IMMEDIATE"
)

// Options содержит настройки подключения к SQLite.
type Options struct {
	// MaxOpenConns - максимальное количество открытых соединений
	MaxOpenConns int
	// MaxIdleConns - максимальное количество idle соединений
	MaxIdleConns int
	// ConnMaxLifetime - максимальное время жизни соединения (0 - без ограничения)
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime - максимальное время простоя соединения (0 - без ограничения)
	ConnMaxIdleTime time.Duration
	// PingTimeout - таймаут проверки соединения при открытии
	PingTimeout time.Duration
	// WALMode - журнал в режиме WAL, читатели не блокируют писателя
	WALMode bool
	// ForeignKeys - проверка внешних ключей
	ForeignKeys bool
	// BusyTimeout - сколько драйвер ждёт снятия блокировки
	BusyTimeout time.Duration
	// TxLockMode - режим блокировки для транзакций TxRunner
	TxLockMode TxLockMode
}

// DefaultOptions возвращает настройки для файловой базы: один писатель,
// несколько читателей (HTTP API читает, пока идёт сбор снимков).
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		PingTimeout:     5 * time.Second,
		WALMode:         true,
		ForeignKeys:     true,
		BusyTimeout:     5 * time.Second,
		TxLockMode:      TxLockImmediate,
	}
}

// MemoryOptions возвращает настройки для in-memory базы.
// Каждое соединение к ":memory:" видит свою базу, поэтому соединение ровно одно
// и оно не должно закрываться по таймаутам.
func MemoryOptions() Options {
	opts := DefaultOptions()
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	opts.ConnMaxLifetime = 0
	opts.ConnMaxIdleTime = 0
	opts.WALMode = false
	opts.TxLockMode = TxLockDeferred
	return opts
}

// Open открывает файловую базу с настройками по умолчанию.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	return OpenWithOptions(ctx, path, DefaultOptions())
}

// OpenInMemory открывает in-memory базу (тесты, прогон без сохранения).
func OpenInMemory(ctx context.Context) (*sql.DB, error) {
	return OpenWithOptions(ctx, MemoryPath, MemoryOptions())
}

// OpenWithOptions открывает базу с заданными параметрами и применяет PRAGMA.
func OpenWithOptions(ctx context.Context, path string, opts Options) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: empty database path")
	}
	// Создаем директорию для БД если её нет
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open("sqlite", buildDSN(path, opts))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	if err := applyPragmas(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// buildDSN передаёт через DSN только то, что должно действовать на каждом
// новом соединении пула. Остальное применяется через PRAGMA.
func buildDSN(path string, opts Options) string {
	var params []string
	if opts.BusyTimeout > 0 {
		params = append(params, fmt.Sprintf("_pragma=busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	}
	if opts.ForeignKeys {
		params = append(params, "_pragma=foreign_keys(1)")
	}
	if len(params) == 0 {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + strings.Join(params, "&")
}

// applyPragmas применяет настройки уровня базы (журнал, синхронизация).
func applyPragmas(ctx context.Context, db *sql.DB, opts Options) error {
	pragmas := make([]string, 0, 2)
	if opts.WALMode {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	pragmas = append(pragmas, "PRAGMA synchronous = NORMAL")

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return nil
}
