// Package sqlitestore хранит исследования, выборки и снимки в SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"redditstudy/internal/platform/sqlite"
	"redditstudy/internal/shared"
	"redditstudy/internal/study"
)

// Migrations - схема хранилища, применяется через sqlite.ApplyMigrations.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir - каталог миграций внутри Migrations.
const MigrationsDir = "migrations"

// DefaultListLimit ограничивает ListStudies, если limit не задан.
const DefaultListLimit = 50

// timeLayout фиксированной ширины, чтобы строки сортировались как время.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store реализует study.Store поверх SQLite.
type Store struct {
	db *sql.DB
	tx *sqlite.TxRunner
}

var _ study.Store = (*Store)(nil)

// New создает хранилище поверх открытой базы. opts должны совпадать с теми,
// с которыми база открыта: от них зависит режим блокировки транзакций.
func New(db *sql.DB, opts sqlite.Options) *Store {
	return &Store{db: db, tx: sqlite.NewTxRunner(db, opts)}
}

// Migrate применяет встроенные миграции.
func (s *Store) Migrate(_ context.Context) (sqlite.MigrationInfo, error) {
	return sqlite.ApplyMigrations(s.db, Migrations, MigrationsDir)
}

// Ping проверяет соединение с базой.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateStudy(ctx context.Context, st study.Study) error {
	subs, err := json.Marshal(st.Subreddits)
	if err != nil {
		return fmt.Errorf("encode subreddits: %w", err)
	}
	_, err = s.tx.GetQuerier(ctx).ExecContext(ctx, `
		INSERT INTO studies (id, status, subreddits, sample_size, passes, sampled, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, string(st.Status), string(subs), st.SampleSize, st.Repeat, st.Sampled, formatTime(st.StartedAt),
	)
	return shared.Wrapf(sqlite.MapError(err), "create study %s", st.ID)
}

func (s *Store) SetStatus(ctx context.Context, id string, status study.Status) error {
	res, err := s.tx.GetQuerier(ctx).ExecContext(ctx,
		`UPDATE studies SET status = ? WHERE id = ?`, string(status), id)
	return shared.Wrapf(affectedOne(res, err), "set status of study %s", id)
}

func (s *Store) FinishStudy(ctx context.Context, id string, status study.Status, at time.Time) error {
	res, err := s.tx.GetQuerier(ctx).ExecContext(ctx,
		`UPDATE studies SET status = ?, finished_at = ? WHERE id = ?`, string(status), formatTime(at), id)
	return shared.Wrapf(affectedOne(res, err), "finish study %s", id)
}

// AddSample сохраняет пост выборки и увеличивает счетчик sampled в одной транзакции.
func (s *Store) AddSample(ctx context.Context, smp study.Sample) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		q := s.tx.GetQuerier(ctx)
		res, err := q.ExecContext(ctx, `UPDATE studies SET sampled = sampled + 1 WHERE id = ?`, smp.StudyID)
		if err := affectedOne(res, err); err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO samples (study_id, position, name, subreddit, title, num_comments)
			VALUES (?, ?, ?, ?, ?, ?)`,
			smp.StudyID, smp.Position, smp.Name, smp.Subreddit, smp.Title, smp.NumComments,
		)
		return sqlite.MapError(err)
	})
	return shared.Wrapf(err, "add sample %s to study %s", smp.Name, smp.StudyID)
}

func (s *Store) AddSnapshot(ctx context.Context, snap study.Snapshot) error {
	p := snap.Post
	_, err := s.tx.GetQuerier(ctx).ExecContext(ctx, `
		INSERT INTO snapshots (
			study_id, pass, fetched_at, name, post_id, title, thumbnail, permalink, url, domain,
			media, author, subreddit, subreddit_id, ups, downs, score, num_comments,
			created, created_utc, is_self, over_18
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.StudyID, snap.Pass, formatTime(snap.FetchedAt), p.Name, p.ID, p.Title, p.Thumbnail, p.Permalink, p.URL, p.Domain,
		p.MediaURL(), p.Author, p.Subreddit, p.SubredditID, p.Ups, p.Downs, p.Score, p.NumComments,
		p.Created, p.CreatedUTC, p.IsSelf, p.Over18,
	)
	return shared.Wrapf(sqlite.MapError(err), "add snapshot of %s", p.Name)
}

const studyColumns = `id, status, subreddits, sample_size, passes, sampled, started_at, finished_at`

func (s *Store) GetStudy(ctx context.Context, id string) (study.Study, error) {
	row := s.tx.GetQuerier(ctx).QueryRowContext(ctx,
		`SELECT `+studyColumns+` FROM studies WHERE id = ?`, id)
	st, err := scanStudy(row)
	if err != nil {
		return study.Study{}, shared.Wrapf(sqlite.MapError(err), "get study %s", id)
	}
	return st, nil
}

// ListStudies возвращает последние исследования, новые первыми.
func (s *Store) ListStudies(ctx context.Context, limit int) ([]study.Study, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.tx.GetQuerier(ctx).QueryContext(ctx,
		`SELECT `+studyColumns+` FROM studies ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, shared.Wrap(sqlite.MapError(err), "list studies")
	}
	defer rows.Close()

	var out []study.Study
	for rows.Next() {
		st, err := scanStudy(rows)
		if err != nil {
			return nil, shared.Wrap(err, "list studies")
		}
		out = append(out, st)
	}
	return out, shared.Wrap(rows.Err(), "list studies")
}

func (s *Store) ListSamples(ctx context.Context, studyID string) ([]study.Sample, error) {
	rows, err := s.tx.GetQuerier(ctx).QueryContext(ctx, `
		SELECT study_id, position, name, subreddit, title, num_comments
		FROM samples WHERE study_id = ? ORDER BY position`, studyID)
	if err != nil {
		return nil, shared.Wrapf(sqlite.MapError(err), "list samples of study %s", studyID)
	}
	defer rows.Close()

	var out []study.Sample
	for rows.Next() {
		var smp study.Sample
		if err := rows.Scan(&smp.StudyID, &smp.Position, &smp.Name, &smp.Subreddit, &smp.Title, &smp.NumComments); err != nil {
			return nil, shared.Wrapf(err, "list samples of study %s", studyID)
		}
		out = append(out, smp)
	}
	return out, shared.Wrapf(rows.Err(), "list samples of study %s", studyID)
}

func (s *Store) CountSnapshots(ctx context.Context, studyID string) (int, error) {
	var n int
	err := s.tx.GetQuerier(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE study_id = ?`, studyID).Scan(&n)
	if err != nil {
		return 0, shared.Wrapf(sqlite.MapError(err), "count snapshots of study %s", studyID)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudy(sc scanner) (study.Study, error) {
	var (
		st       study.Study
		status   string
		subs     string
		started  string
		finished sql.NullString
	)
	if err := sc.Scan(&st.ID, &status, &subs, &st.SampleSize, &st.Repeat, &st.Sampled, &started, &finished); err != nil {
		return study.Study{}, err
	}
	st.Status = study.Status(status)
	if err := json.Unmarshal([]byte(subs), &st.Subreddits); err != nil {
		return study.Study{}, fmt.Errorf("decode subreddits of study %s: %w", st.ID, err)
	}
	var err error
	if st.StartedAt, err = parseTime(started); err != nil {
		return study.Study{}, err
	}
	if finished.Valid {
		at, err := parseTime(finished.String)
		if err != nil {
			return study.Study{}, err
		}
		st.FinishedAt = &at
	}
	return st, nil
}

// affectedOne превращает UPDATE без затронутых строк в NotFound.
func affectedOne(res sql.Result, err error) error {
	if err != nil {
		return sqlite.MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: study", shared.ErrNotFound)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
