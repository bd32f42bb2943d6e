// Package scheduler запускает фоновые задачи по cron-расписанию
// (github.com/robfig/cron/v3) и с фиксированным интервалом.
//
// Политика перекрытий (AllowOverlap, SkipIfRunning, DelayIfRunning), таймаут
// и перехват паник применяются одинаково к обоим видам задач. Остановка
// планировщика отменяет контекст идущих задач и ждет их завершения.
//
// Использование:
//
//	s := scheduler.NewWithContext(ctx, scheduler.Config{Logger: logger})
//	if _, err := s.AddCron("0 3 * * *", scheduler.StudyJob(runner, plan, logger)); err != nil {
//		return err
//	}
//	if _, err := s.AddTicker(time.Minute, scheduler.ProgressJob(runner, logger)); err != nil {
//		return err
//	}
//	s.Start()
//	defer s.Stop()
package scheduler
