package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"redditstudy/internal/shared"
	"redditstudy/pkg/retry"
)

// HealthCheckOptions содержит опции ожидания доступности БД.
type HealthCheckOptions struct {
	// MaxRetries - максимальное количество попыток
	MaxRetries int
	// InitialInterval - задержка перед второй попыткой, дальше растёт экспоненциально
	InitialInterval time.Duration
	// MaxInterval - верхняя граница задержки
	MaxInterval time.Duration
	// PingTimeout - таймаут одной попытки
	PingTimeout time.Duration
	// OnRetry вызывается перед каждым ожиданием (для логов)
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultHealthCheckOptions возвращает опции по умолчанию: до 10 попыток, 1s..30s.
func DefaultHealthCheckOptions() HealthCheckOptions {
	return HealthCheckOptions{
		MaxRetries:      10,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		PingTimeout:     5 * time.Second,
	}
}

// WaitForDB ждёт, пока БД начнёт отвечать на ping (старт в docker-compose
// раньше postgres). Ошибка разбора DSN возвращается сразу.
func WaitForDB(ctx context.Context, dsn string, opts HealthCheckOptions) error {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return shared.MarkKind(fmt.Errorf("pg: parse dsn: %w", err), shared.KindValidation)
	}

	rc := retry.Config{
		MaxAttempts:  max(opts.MaxRetries, 1),
		InitialDelay: opts.InitialInterval,
		MaxDelay:     opts.MaxInterval,
		Jitter:       retry.JitterNone,
		OnRetry:      opts.OnRetry,
	}
	err = retry.DoWithRetryable(ctx, rc, func(ctx context.Context) error {
		return ping(ctx, cfg, opts.PingTimeout)
	}, func(error) bool { return true })
	if err != nil {
		return shared.MarkKind(fmt.Errorf("pg: database not available: %w", err), shared.KindDependencyFailure)
	}
	return nil
}

// HealthCheckPool проверяет существующий пул простым запросом.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&result); err != nil {
		return shared.MarkKind(fmt.Errorf("pg: health query: %w", err), shared.KindDependencyFailure)
	}
	if result != 1 {
		return fmt.Errorf("pg: unexpected health result %d", result)
	}
	return nil
}

// ping открывает временный пул и пингует БД.
func ping(ctx context.Context, cfg *pgxpool.Config, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg.Copy())
	if err != nil {
		return err
	}
	defer pool.Close()

	return pool.Ping(ctx)
}
