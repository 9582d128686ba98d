// Package tasks registers the maintenance jobs with the scheduler.
package tasks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/scheduler"
)

const (
	QuotaPruneTaskID   = "quota-prune"
	ModeExpireTaskID   = "assistant-mode-expire"
	SessionSweepTaskID = "media-session-sweep"
)

// QuotaPruner drops old usage counters.
type QuotaPruner interface {
	Prune(ctx context.Context) error
}

// ModeExpirer clears lapsed assistant mode flags.
type ModeExpirer interface {
	ExpireModes(ctx context.Context) error
}

// SessionSweeper drops expired media sessions.
type SessionSweeper interface {
	Sweep() int
}

// RegisterQuotaPruneTask runs daily at 03:00.
func RegisterQuotaPruneTask(sched *scheduler.Scheduler, meter QuotaPruner) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          QuotaPruneTaskID,
		Name:        "Quota Prune",
		Description: "Deletes usage counters older than the retention window",
		Cron:        "0 3 * * *",
		Func:        meter.Prune,
	})
}

// RegisterModeExpireTask runs every 10 minutes.
func RegisterModeExpireTask(sched *scheduler.Scheduler, repo ModeExpirer) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          ModeExpireTaskID,
		Name:        "Assistant Mode Expiry",
		Description: "Clears persisted assistant mode flags past their deadline",
		Cron:        "*/10 * * * *",
		Func:        repo.ExpireModes,
		RunOnStart:  true,
	})
}

// RegisterSessionSweepTask runs every 5 minutes.
func RegisterSessionSweepTask(sched *scheduler.Scheduler, store SessionSweeper, logger zerolog.Logger) error {
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          SessionSweepTaskID,
		Name:        "Media Session Sweep",
		Description: "Drops expired in-process media sessions",
		Cron:        "*/5 * * * *",
		Func: func(context.Context) error {
			if n := store.Sweep(); n > 0 {
				logger.Debug().Int("removed", n).Msg("Swept media sessions")
			}
			return nil
		},
	})
}

// RegisterAll registers every maintenance task.
func RegisterAll(sched *scheduler.Scheduler, meter QuotaPruner, repo ModeExpirer, store SessionSweeper, logger zerolog.Logger) error {
	if err := RegisterQuotaPruneTask(sched, meter); err != nil {
		return err
	}
	if err := RegisterModeExpireTask(sched, repo); err != nil {
		return err
	}
	return RegisterSessionSweepTask(sched, store, logger)
}
