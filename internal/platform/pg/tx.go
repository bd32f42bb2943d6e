package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"redditstudy/internal/shared"
)

// txKey используется как ключ для хранения транзакции в context.Context
type txKey struct{}

// Querier объединяет методы выполнения запросов, общие для пула и транзакции.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Убедимся на этапе компиляции, что типы реализуют интерфейс
var (
	_ Querier = (*pgxpool.Pool)(nil)
	_ Querier = (pgx.Tx)(nil)
)

// TxRunner выполняет код внутри транзакции: коммит при успехе, откат при ошибке.
type TxRunner struct {
	Pool *pgxpool.Pool
}

// NewTxRunner создает новый TxRunner с указанным пулом подключений.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{Pool: pool}
}

// WithinTx выполняет fn внутри транзакции. Внутри fn запросы должны идти через GetQuerier(ctx).
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := PgxTx(ctx); ok {
		// Уже внутри транзакции: pgx превращает вложенный Begin в savepoint
		return pgx.BeginFunc(ctx, tx, func(inner pgx.Tx) error {
			return fn(context.WithValue(ctx, txKey{}, inner))
		})
	}
	return pgx.BeginFunc(ctx, r.Pool, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

// PgxTx извлекает активную транзакцию из контекста.
func PgxTx(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// GetQuerier возвращает транзакцию из контекста, если она есть, иначе пул.
func (r *TxRunner) GetQuerier(ctx context.Context) Querier {
	if tx, ok := PgxTx(ctx); ok {
		return tx
	}
	return r.Pool
}

// Коды SQLSTATE, которые классифицирует MapError.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeQueryCanceled       = "57014"
)

// MapError помечает ошибки pgx видами из shared:
// pgx.ErrNoRows - NotFound, нарушение уникальности/внешнего ключа - Conflict,
// нарушение CHECK - Validation, отмена запроса по таймауту - Timeout.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.MarkKind(err, shared.KindNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeForeignKeyViolation:
			return shared.MarkKind(err, shared.KindConflict)
		case codeCheckViolation:
			return shared.MarkKind(err, shared.KindValidation)
		case codeQueryCanceled:
			return shared.MarkKind(err, shared.KindTimeout)
		}
	}
	return err
}
