// Package app wires configuration, storage, the Reddit client, the study
// runner and the outer surfaces (HTTP API, Telegram bot, scheduler).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	"redditstudy/internal/adapter/external/reddit"
	"redditstudy/internal/adapter/httpapi"
	"redditstudy/internal/adapter/scheduler"
	"redditstudy/internal/adapter/storage/pgstore"
	"redditstudy/internal/adapter/storage/sqlitestore"
	"redditstudy/internal/adapter/telegram"
	"redditstudy/internal/adapter/telegram/handlers"
	"redditstudy/internal/adapter/telegram/middleware"
	"redditstudy/internal/config"
	"redditstudy/internal/platform/httpclient"
	"redditstudy/internal/platform/logger"
	"redditstudy/internal/platform/pg"
	"redditstudy/internal/platform/sqlite"
	"redditstudy/internal/shared"
	"redditstudy/internal/study"
)

const (
	shutdownTimeout = 10 * time.Second
	// schedulerStopTimeout covers the running study writing its final status.
	schedulerStopTimeout = 30 * time.Second
	progressInterval     = time.Minute
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates an App with the application logger built from cfg.
func New(cfg config.Config) *App {
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "redditstudy",
	})
	return &App{cfg: cfg, log: log}
}

// Close flushes and closes the log file.
func (a *App) Close() error {
	return logger.Close(a.log)
}

// storage is what the runner and the HTTP API need from a backend.
type storage interface {
	study.Store
	Ping(ctx context.Context) error
}

// Migration describes a schema migration run.
type Migration struct {
	Driver  string
	Applied bool
	From    uint
	To      uint
}

// Migrate applies pending migrations and returns the schema versions.
func (a *App) Migrate(ctx context.Context) (Migration, error) {
	_, closeStore, m, err := a.openStorage(ctx)
	if err != nil {
		return Migration{}, err
	}
	closeStore()
	return m, nil
}

// openStorage connects to the configured backend and migrates it.
func (a *App) openStorage(ctx context.Context) (storage, func(), Migration, error) {
	m := Migration{Driver: a.cfg.Storage.Driver}
	switch a.cfg.Storage.Driver {
	case "postgres":
		dsn := a.cfg.Storage.DatabaseURL
		a.log.Info("connecting to postgres", "url", pg.RedactDSN(dsn))

		hc := pg.DefaultHealthCheckOptions()
		hc.OnRetry = func(attempt int, err error, delay time.Duration) {
			a.log.Warn("postgres not ready", "attempt", attempt, "delay", delay, "error", err)
		}
		if err := pg.WaitForDB(ctx, dsn, hc); err != nil {
			return nil, nil, m, err
		}
		info, err := pgstore.Migrate(dsn)
		if err != nil {
			return nil, nil, m, err
		}
		m.Applied, m.From, m.To = info.Applied, info.CurrentVersion, info.FinalVersion
		pool, err := pg.NewPool(ctx, dsn)
		if err != nil {
			return nil, nil, m, shared.MarkKind(shared.Wrap(err, "postgres pool"), shared.KindDependencyFailure)
		}
		a.log.Info("storage ready", "driver", m.Driver, "schema", m.To, "migrated", m.Applied)
		return pgstore.New(pool), pool.Close, m, nil

	default:
		opts := sqlite.DefaultOptions()
		db, err := sqlite.OpenWithOptions(ctx, a.cfg.Storage.SQLitePath, opts)
		if err != nil {
			return nil, nil, m, err
		}
		st := sqlitestore.New(db, opts)
		info, err := st.Migrate(ctx)
		if err != nil {
			_ = db.Close()
			return nil, nil, m, err
		}
		m.Applied, m.From, m.To = info.Applied, info.CurrentVersion, info.FinalVersion
		a.log.Info("storage ready", "driver", m.Driver, "path", a.cfg.Storage.SQLitePath, "schema", m.To, "migrated", m.Applied)
		return st, func() {
			if err := db.Close(); err != nil {
				a.log.Warn("close sqlite", "error", err)
			}
		}, m, nil
	}
}

// Plan loads the configured study plan.
func (a *App) Plan() (study.Plan, error) {
	return config.LoadPlan(a.cfg.Study.PlanFile)
}

func (a *App) redditClient() *reddit.Client {
	hc := httpclient.New(
		httpclient.WithLogger(a.log),
		httpclient.WithUserAgent(a.cfg.Reddit.UserAgent),
		httpclient.WithRateLimit(a.cfg.Reddit.RPS, 1),
		httpclient.WithRetries(2, 500*time.Millisecond),
		httpclient.WithMaxRetryDuration(10*time.Second),
		httpclient.WithMaxBodySize(4<<20),
	)
	return reddit.NewClient(hc, a.cfg.Reddit.BaseURL, a.log)
}

// RunStudy runs a single study in the foreground. Notifications go to the
// configured chat when Telegram is enabled.
func (a *App) RunStudy(ctx context.Context) (study.Result, error) {
	plan, err := a.Plan()
	if err != nil {
		return study.Result{}, err
	}
	st, closeStore, _, err := a.openStorage(ctx)
	if err != nil {
		return study.Result{}, err
	}
	defer closeStore()

	opts := []study.RunnerOption{study.WithLogger(a.log)}
	if a.cfg.TelegramEnabled() && a.cfg.Telegram.ChatID != 0 {
		b, err := bot.New(a.cfg.Telegram.Token)
		if err != nil {
			return study.Result{}, shared.MarkKind(shared.Wrap(err, "telegram"), shared.KindDependencyFailure)
		}
		opts = append(opts, study.WithNotifier(telegram.NewNotifier(b, a.cfg.Telegram.ChatID, a.log)))
	}
	return study.NewRunner(a.redditClient(), st, opts...).Run(ctx, plan)
}

// ServeOptions tunes Serve.
type ServeOptions struct {
	// StudyNow starts a study right away in addition to the cron schedule.
	StudyNow bool
}

// Serve runs the HTTP API, the bot and the scheduler until ctx is cancelled.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	a.log.Info("starting", "env", a.cfg.Env, "storage", a.cfg.Storage.Driver)

	plan, err := a.Plan()
	if err != nil {
		return err
	}
	st, closeStore, _, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	g, ctx := errgroup.WithContext(ctx)

	var runner *study.Runner
	progress := func() study.Progress { return runner.Progress() }
	runnerOpts := []study.RunnerOption{study.WithLogger(a.log)}

	var (
		webhook  http.Handler
		startBot func()
	)
	if a.cfg.TelegramEnabled() {
		b, disp, err := a.newBot(ctx, progress)
		if err != nil {
			return err
		}
		// dispatcher outlives the bot: closed after g.Wait
		defer disp.Close()

		if a.cfg.Telegram.ChatID != 0 {
			runnerOpts = append(runnerOpts, study.WithNotifier(telegram.NewNotifier(b, a.cfg.Telegram.ChatID, a.log)))
		}
		if a.cfg.Telegram.WebhookURL != "" {
			webhook = b.WebhookHandler()
		}
		startBot = func() {
			g.Go(func() error {
				if webhook != nil {
					b.StartWebhook(ctx)
				} else {
					b.Start(ctx)
				}
				return nil
			})
		}
	}
	runner = study.NewRunner(a.redditClient(), st, runnerOpts...)

	if err := a.startScheduler(ctx, g, runner, plan); err != nil {
		return err
	}
	if startBot != nil {
		startBot()
	}
	a.serveHTTP(ctx, g, st, progress, webhook)

	if opts.StudyNow {
		g.Go(func() error {
			if _, err := runner.Run(ctx, plan); err != nil && !shared.IsCanceled(err) {
				a.log.Error("study failed", "error", err)
			}
			return nil
		})
	}

	err = g.Wait()
	a.log.Info("stopped")
	return err
}

func (a *App) newBot(ctx context.Context, progress handlers.ProgressFunc) (*bot.Bot, *telegram.Dispatcher, error) {
	cmds := handlers.New(progress, a.log)
	acl := middleware.NewACL(a.cfg.Telegram.AllowedIDs)
	rate := middleware.NewRateLimiter(time.Second, 3)

	b, disp, err := telegram.NewBot(telegram.BotOptions{
		Token:         a.cfg.Telegram.Token,
		WebhookSecret: a.cfg.Telegram.WebhookSecret,
		Handler:       middleware.Chain(cmds.Handle, rate.Middleware, acl.Middleware),
		Workers:       4,
		Logger:        a.log,
	})
	if err != nil {
		return nil, nil, shared.MarkKind(shared.Wrap(err, "telegram"), shared.KindDependencyFailure)
	}

	if a.cfg.Telegram.WebhookURL != "" {
		_, err := b.SetWebhook(ctx, &bot.SetWebhookParams{
			URL:         a.cfg.Telegram.WebhookURL,
			SecretToken: a.cfg.Telegram.WebhookSecret,
		})
		if err != nil {
			disp.Close()
			return nil, nil, shared.MarkKind(shared.Wrap(err, "telegram: set webhook"), shared.KindDependencyFailure)
		}
	}
	a.log.Info("telegram enabled", "webhook", a.cfg.Telegram.WebhookURL != "", "notify_chat", a.cfg.Telegram.ChatID)
	return b, disp, nil
}

func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, runner *study.Runner, plan study.Plan) error {
	sched := scheduler.NewWithContext(ctx, scheduler.Config{Logger: a.log})
	if spec := a.cfg.Study.Cron; spec != "" {
		if _, err := sched.AddCron(spec, scheduler.StudyJob(runner, plan, a.log)); err != nil {
			return shared.MarkKind(err, shared.KindValidation)
		}
	}
	if _, err := sched.AddTicker(progressInterval, scheduler.ProgressJob(runner, a.log)); err != nil {
		return err
	}
	sched.Start()

	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), schedulerStopTimeout)
		defer cancel()
		return sched.StopContext(stopCtx)
	})
	return nil
}

func (a *App) serveHTTP(ctx context.Context, g *errgroup.Group, st storage, progress httpapi.ProgressFunc, webhook http.Handler) {
	if a.cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	opts := []httpapi.Option{httpapi.WithPinger(st)}
	if webhook != nil {
		opts = append(opts, httpapi.WithWebhook(webhook))
	}
	api := httpapi.New(st, progress, a.log, opts...)

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		a.log.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
