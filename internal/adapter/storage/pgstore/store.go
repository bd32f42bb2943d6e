// Package pgstore хранит исследования, выборки и снимки в PostgreSQL.
package pgstore

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"redditstudy/internal/platform/pg"
	"redditstudy/internal/shared"
	"redditstudy/internal/study"
)

// Migrations - схема хранилища, применяется через pg.ApplyMigrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir - каталог миграций внутри Migrations.
const MigrationsDir = "migrations"

// DefaultListLimit ограничивает ListStudies, если limit не задан.
const DefaultListLimit = 50

// Store реализует study.Store поверх пула pgx.
type Store struct {
	pool *pgxpool.Pool
	tx   *pg.TxRunner
}

var _ study.Store = (*Store)(nil)

// New создает хранилище поверх готового пула.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, tx: pg.NewTxRunner(pool)}
}

// Migrate применяет встроенные миграции. golang-migrate открывает собственное
// соединение, поэтому нужен DSN, а не пул.
func Migrate(dsn string) (pg.MigrationInfo, error) {
	return pg.ApplyMigrations(dsn, Migrations, MigrationsDir)
}

// Ping проверяет пул.
func (s *Store) Ping(ctx context.Context) error {
	return pg.HealthCheckPool(ctx, s.pool)
}

func (s *Store) CreateStudy(ctx context.Context, st study.Study) error {
	_, err := s.tx.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO studies (id, status, subreddits, sample_size, passes, sampled, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		st.ID, string(st.Status), st.Subreddits, st.SampleSize, st.Repeat, st.Sampled, st.StartedAt.UTC(),
	)
	return shared.Wrapf(pg.MapError(err), "create study %s", st.ID)
}

func (s *Store) SetStatus(ctx context.Context, id string, status study.Status) error {
	tag, err := s.tx.GetQuerier(ctx).Exec(ctx,
		`UPDATE studies SET status = $1 WHERE id = $2`, string(status), id)
	return shared.Wrapf(affectedOne(tag, err), "set status of study %s", id)
}

func (s *Store) FinishStudy(ctx context.Context, id string, status study.Status, at time.Time) error {
	tag, err := s.tx.GetQuerier(ctx).Exec(ctx,
		`UPDATE studies SET status = $1, finished_at = $2 WHERE id = $3`, string(status), at.UTC(), id)
	return shared.Wrapf(affectedOne(tag, err), "finish study %s", id)
}

// AddSample сохраняет пост выборки и увеличивает счетчик sampled в одной транзакции.
func (s *Store) AddSample(ctx context.Context, smp study.Sample) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := s.tx.GetQuerier(ctx)
		tag, err := q.Exec(ctx, `UPDATE studies SET sampled = sampled + 1 WHERE id = $1`, smp.StudyID)
		if err := affectedOne(tag, err); err != nil {
			return err
		}
		_, err = q.Exec(ctx, `
			INSERT INTO samples (study_id, position, name, subreddit, title, num_comments)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			smp.StudyID, smp.Position, smp.Name, smp.Subreddit, smp.Title, smp.NumComments,
		)
		return pg.MapError(err)
	})
	return shared.Wrapf(err, "add sample %s to study %s", smp.Name, smp.StudyID)
}

func (s *Store) AddSnapshot(ctx context.Context, snap study.Snapshot) error {
	p := snap.Post
	_, err := s.tx.GetQuerier(ctx).Exec(ctx, `
		INSERT INTO snapshots (
			study_id, pass, fetched_at, name, post_id, title, thumbnail, permalink, url, domain,
			media, author, subreddit, subreddit_id, ups, downs, score, num_comments,
			created, created_utc, is_self, over_18
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		snap.StudyID, snap.Pass, snap.FetchedAt.UTC(), p.Name, p.ID, p.Title, p.Thumbnail, p.Permalink, p.URL, p.Domain,
		p.MediaURL(), p.Author, p.Subreddit, p.SubredditID, p.Ups, p.Downs, p.Score, p.NumComments,
		p.Created, p.CreatedUTC, p.IsSelf, p.Over18,
	)
	return shared.Wrapf(pg.MapError(err), "add snapshot of %s", p.Name)
}

const studyColumns = `id, status, subreddits, sample_size, passes, sampled, started_at, finished_at`

func (s *Store) GetStudy(ctx context.Context, id string) (study.Study, error) {
	row := s.tx.GetQuerier(ctx).QueryRow(ctx, `SELECT `+studyColumns+` FROM studies WHERE id = $1`, id)
	st, err := scanStudy(row)
	if err != nil {
		return study.Study{}, shared.Wrapf(pg.MapError(err), "get study %s", id)
	}
	return st, nil
}

// ListStudies возвращает последние исследования, новые первыми.
func (s *Store) ListStudies(ctx context.Context, limit int) ([]study.Study, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.tx.GetQuerier(ctx).Query(ctx,
		`SELECT `+studyColumns+` FROM studies ORDER BY started_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, shared.Wrap(pg.MapError(err), "list studies")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (study.Study, error) {
		return scanStudy(row)
	})
	return out, shared.Wrap(pg.MapError(err), "list studies")
}

func (s *Store) ListSamples(ctx context.Context, studyID string) ([]study.Sample, error) {
	rows, err := s.tx.GetQuerier(ctx).Query(ctx, `
		SELECT study_id, position, name, subreddit, title, num_comments
		FROM samples WHERE study_id = $1 ORDER BY position`, studyID)
	if err != nil {
		return nil, shared.Wrapf(pg.MapError(err), "list samples of study %s", studyID)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (study.Sample, error) {
		var smp study.Sample
		err := row.Scan(&smp.StudyID, &smp.Position, &smp.Name, &smp.Subreddit, &smp.Title, &smp.NumComments)
		return smp, err
	})
	return out, shared.Wrapf(pg.MapError(err), "list samples of study %s", studyID)
}

func (s *Store) CountSnapshots(ctx context.Context, studyID string) (int, error) {
	var n int
	err := s.tx.GetQuerier(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE study_id = $1`, studyID).Scan(&n)
	if err != nil {
		return 0, shared.Wrapf(pg.MapError(err), "count snapshots of study %s", studyID)
	}
	return n, nil
}

func scanStudy(row pgx.Row) (study.Study, error) {
	var (
		st     study.Study
		status string
	)
	err := row.Scan(&st.ID, &status, &st.Subreddits, &st.SampleSize, &st.Repeat, &st.Sampled, &st.StartedAt, &st.FinishedAt)
	if err != nil {
		return study.Study{}, err
	}
	st.Status = study.Status(status)
	st.StartedAt = st.StartedAt.UTC()
	if st.FinishedAt != nil {
		at := st.FinishedAt.UTC()
		st.FinishedAt = &at
	}
	return st, nil
}

// affectedOne превращает UPDATE без затронутых строк в NotFound.
func affectedOne(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return pg.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: study", shared.ErrNotFound)
	}
	return nil
}
