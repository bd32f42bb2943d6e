package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"redditstudy/internal/shared"
	"redditstudy/pkg/retry"
)

// txKey используется как ключ для хранения транзакции в context.Context
type txKey struct{}

// Querier объединяет методы выполнения запросов, общие для БД, соединения и транзакции.
// Репозитории работают с ним, не зная, идёт ли запрос внутри транзакции.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Убедимся на этапе компиляции, что типы реализуют интерфейс
var (
	_ Querier = (*sql.DB)(nil)
	_ Querier = (*sql.Tx)(nil)
	_ Querier = (*sql.Conn)(nil)
)

// TxRunner выполняет код внутри транзакции: коммит при успехе, откат при ошибке,
// повтор всей транзакции при SQLITE_BUSY.
type TxRunner struct {
	DB        *sql.DB
	LockMode  TxLockMode
	BusyRetry retry.Config
}

// NewTxRunner создает TxRunner с режимом блокировки из opts.
func NewTxRunner(db *sql.DB, opts Options) *TxRunner {
	mode := opts.TxLockMode
	if mode == "" {
		mode = TxLockDeferred
	}
	return &TxRunner{
		DB:       db,
		LockMode: mode,
		BusyRetry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 10 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2.0,
			Jitter:       retry.JitterEqual,
		},
	}
}

// WithinTx выполняет fn внутри транзакции. Запросы внутри fn должны идти через
// GetQuerier(ctx). Вложенные транзакции не поддерживаются.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fmt.Errorf("sqlite: nested transactions are not supported")
	}
	return retry.DoWithRetryable(ctx, r.BusyRetry, func(ctx context.Context) error {
		if r.LockMode == TxLockImmediate {
			return r.runImmediate(ctx, fn)
		}
		return r.runDeferred(ctx, fn)
	}, IsBusy)
}

// GetQuerier возвращает транзакцию из контекста, если она есть, иначе БД.
func (r *TxRunner) GetQuerier(ctx context.Context) Querier {
	if q, ok := txFromContext(ctx); ok {
		return q
	}
	return r.DB
}

func txFromContext(ctx context.Context) (Querier, bool) {
	q, ok := ctx.Value(txKey{}).(Querier)
	return q, ok
}

func (r *TxRunner) runDeferred(ctx context.Context, fn func(context.Context) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// runImmediate открывает транзакцию вручную на выделенном соединении:
// database/sql не умеет BEGIN IMMEDIATE, а BEGIN и запросы обязаны идти
// по одному и тому же соединению.
func (r *TxRunner) runImmediate(ctx context.Context, fn func(context.Context) error) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN "+string(r.LockMode)); err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, conn)); err != nil {
		// Откат не должен зависеть от отменённого контекста
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		return err
	}
	return nil
}

// IsBusy сообщает, что база была заблокирована другим писателем.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *msqlite.Error
	if errors.As(err, &se) {
		code := se.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}

// IsConstraint сообщает о нарушении ограничения (UNIQUE, PRIMARY KEY, FOREIGN KEY).
func IsConstraint(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}

// MapError помечает ошибки драйвера видами из shared:
// sql.ErrNoRows - NotFound, нарушение ограничения - Conflict, блокировка - Timeout.
func MapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return shared.MarkKind(err, shared.KindNotFound)
	case IsConstraint(err):
		return shared.MarkKind(err, shared.KindConflict)
	case IsBusy(err):
		return shared.MarkKind(err, shared.KindTimeout)
	default:
		return err
	}
}
