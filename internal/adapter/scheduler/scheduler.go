package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc - тело задачи. ctx отменяется при остановке планировщика и по таймауту задачи.
type JobFunc func(ctx context.Context) error

// CronJobID - идентификатор cron-задачи.
type CronJobID = cron.EntryID

// TickerJobID - идентификатор ticker-задачи.
type TickerJobID int

// OverlapPolicy определяет, что делать, если задача ещё выполняется к моменту следующего запуска.
type OverlapPolicy int

const (
	// AllowOverlap разрешает параллельные запуски.
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning пропускает запуск, пока предыдущий не завершился.
	SkipIfRunning
	// DelayIfRunning ждет завершения предыдущего запуска.
	DelayIfRunning
)

func (p OverlapPolicy) String() string {
	switch p {
	case SkipIfRunning:
		return "skip"
	case DelayIfRunning:
		return "delay"
	default:
		return "allow"
	}
}

// Job описывает задачу планировщика.
type Job struct {
	// Name попадает в логи и хуки; пустое имя заменяется на "unnamed".
	Name string
	// Timeout ограничивает один запуск; 0 - без ограничения.
	Timeout time.Duration
	Overlap OverlapPolicy
	Run     JobFunc
}

// entry - зарегистрированная задача и её блокировка для политики перекрытий.
type entry struct {
	job     Job
	running sync.Mutex
}

type tickerEntry struct {
	entry  *entry
	cancel context.CancelFunc
}

// Hooks - необязательные обработчики событий задач.
type Hooks struct {
	OnJobStart  func(name string)
	OnJobFinish func(name string, duration time.Duration, err error)
	OnJobSkip   func(name string)
}

// Config - настройки планировщика.
type Config struct {
	Logger *slog.Logger
	Hooks  Hooks
	// Location - часовой пояс cron-расписаний; по умолчанию time.Local.
	Location *time.Location
}

// ErrInvalidInterval возвращается AddTicker для неположительного интервала.
var ErrInvalidInterval = errors.New("scheduler: interval must be positive")

// parser принимает и пятипольные выражения, и выражения с секундами, и дескрипторы (@hourly, @every 5m).
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler запускает задачи по cron-расписанию и с фиксированным интервалом.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	hooks  Hooks

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	tickers    map[TickerJobID]*tickerEntry
	nextTicker TickerJobID

	startOnce sync.Once
	stopOnce  sync.Once
}

// New создает планировщик с фоновым контекстом.
func New(cfg Config) *Scheduler {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext создает планировщик; отмена parent останавливает его вместе с задачами.
func NewWithContext(parent context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parent)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	opts := []cron.Option{
		cron.WithParser(parser),
		cron.WithLogger(cronLogger{logger: logger}),
	}
	if cfg.Location != nil {
		opts = append(opts, cron.WithLocation(cfg.Location))
	}

	return &Scheduler{
		cron:       cron.New(opts...),
		logger:     logger,
		hooks:      cfg.Hooks,
		ctx:        ctx,
		cancel:     cancel,
		tickers:    make(map[TickerJobID]*tickerEntry),
		nextTicker: 1,
	}
}

// ParseSchedule проверяет cron-выражение тем же парсером, что и AddCron.
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	return sched, nil
}

// AddCron регистрирует задачу по расписанию. Примеры:
//   - "0 3 * * *" - каждый день в 03:00
//   - "*/30 * * * * *" - каждые 30 секунд
//   - "@every 6h"
func (s *Scheduler) AddCron(spec string, job Job) (CronJobID, error) {
	if job.Run == nil {
		return 0, errors.New("scheduler: job func is nil")
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		return 0, err
	}
	e := &entry{job: job}
	id := s.cron.Schedule(sched, cron.FuncJob(func() { s.run(e) }))

	s.logger.Info("cron job added", "name", job.Name, "schedule", spec, "overlap", job.Overlap, "id", id)
	return id, nil
}

// AddTicker регистрирует задачу, запускаемую каждые interval. Первый запуск
// происходит через interval после добавления.
func (s *Scheduler) AddTicker(interval time.Duration, job Job) (TickerJobID, error) {
	if interval <= 0 {
		return 0, ErrInvalidInterval
	}
	if job.Run == nil {
		return 0, errors.New("scheduler: job func is nil")
	}
	e := &entry{job: job}
	ctx, cancel := context.WithCancel(s.ctx)

	s.mu.Lock()
	id := s.nextTicker
	s.nextTicker++
	s.tickers[id] = &tickerEntry{entry: e, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				// как и cron, каждый запуск в своей горутине: перекрытия решает политика
				s.wg.Add(1)
				go func() {
					defer s.wg.Done()
					s.run(e)
				}()
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Info("ticker job added", "name", job.Name, "interval", interval, "overlap", job.Overlap, "id", id)
	return id, nil
}

// RemoveCron удаляет cron-задачу. Уже идущий запуск не прерывается.
func (s *Scheduler) RemoveCron(id CronJobID) {
	s.cron.Remove(id)
	s.logger.Info("cron job removed", "id", id)
}

// RemoveTicker удаляет ticker-задачу; false, если такой нет.
func (s *Scheduler) RemoveTicker(id TickerJobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickers[id]
	if !ok {
		return false
	}
	t.cancel()
	delete(s.tickers, id)
	s.logger.Info("ticker job removed", "name", t.entry.job.Name, "id", id)
	return true
}

// Next возвращает время следующего запуска cron-задачи; нулевое время,
// если задачи нет или планировщик не запущен.
func (s *Scheduler) Next(id CronJobID) time.Time {
	return s.cron.Entry(id).Next
}

// Start запускает cron. Повторные вызовы ничего не делают.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler")
		s.cron.Start()
		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop останавливает планировщик и ждет завершения запущенных задач.
func (s *Scheduler) Stop() {
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext - Stop с ограничением ожидания. При истечении ctx возвращает
// ctx.Err(), но задачи к этому моменту уже получили отмену контекста.
func (s *Scheduler) StopContext(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded")
		return ctx.Err()
	}
}

// IsRunning сообщает, что планировщик не остановлен.
func (s *Scheduler) IsRunning() bool {
	return s.ctx.Err() == nil
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()

	s.mu.Lock()
	for _, t := range s.tickers {
		t.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// run выполняет один запуск задачи с учетом политики перекрытий, таймаута и паник.
func (s *Scheduler) run(e *entry) {
	name := e.job.Name
	if name == "" {
		name = "unnamed"
	}

	switch e.job.Overlap {
	case SkipIfRunning:
		if !e.running.TryLock() {
			s.logger.Info("job still running, skipping", "name", name)
			if s.hooks.OnJobSkip != nil {
				s.hooks.OnJobSkip(name)
			}
			return
		}
		defer e.running.Unlock()
	case DelayIfRunning:
		e.running.Lock()
		defer e.running.Unlock()
	}

	if s.ctx.Err() != nil {
		return
	}

	ctx := s.ctx
	if e.job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.job.Timeout)
		defer cancel()
	}

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(name)
	}
	start := time.Now()
	err := s.call(ctx, e.job.Run)
	elapsed := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(name, elapsed, err)
	}
	if err != nil {
		s.logger.Error("job failed", "name", name, "duration", elapsed, "error", err)
		return
	}
	s.logger.Debug("job finished", "name", name, "duration", elapsed)
}

// call превращает панику задачи в ошибку.
func (s *Scheduler) call(ctx context.Context, fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scheduler: job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// cronLogger направляет журнал robfig/cron в slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
