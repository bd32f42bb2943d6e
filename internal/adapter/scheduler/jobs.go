package scheduler

import (
	"context"
	"errors"
	"log/slog"

	"redditstudy/internal/study"
)

// StudyRunner - часть study.Runner, нужная задачам планировщика.
type StudyRunner interface {
	Run(ctx context.Context, plan study.Plan) (study.Result, error)
	Progress() study.Progress
}

// StudyJob запускает исследование по плану. Исследование, запущенное вручную
// и ещё идущее, не считается ошибкой: запуск просто пропускается.
func StudyJob(r StudyRunner, plan study.Plan, logger *slog.Logger) Job {
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:    "study",
		Overlap: SkipIfRunning,
		Run: func(ctx context.Context) error {
			res, err := r.Run(ctx, plan)
			if errors.Is(err, study.ErrStudyRunning) {
				logger.Info("study already running, skipping scheduled run")
				return nil
			}
			if err != nil {
				return err
			}
			logger.Info("scheduled study finished", "study_id", res.Study.ID, "snapshots", res.Snapshots)
			return nil
		},
	}
}

// ProgressJob пишет в лог прогресс идущего исследования.
func ProgressJob(r StudyRunner, logger *slog.Logger) Job {
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:    "progress",
		Overlap: SkipIfRunning,
		Run: func(context.Context) error {
			p := r.Progress()
			if !p.Running {
				return nil
			}
			args := []any{
				"study_id", p.StudyID,
				"phase", p.Phase,
				"sampled", p.Sampled,
				"snapshots", p.Snapshots,
				"failures", p.Failures,
			}
			if t := p.Throttle; t != nil {
				args = append(args, "pass", t.Pass, "cursor", t.Cursor, "length", t.Length)
			}
			logger.Info("study progress", args...)
			return nil
		},
	}
}
