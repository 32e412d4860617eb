// Package scheduler runs periodic maintenance jobs (expired session and
// idempotency record purges) on a gocron scheduler bound to the process
// lifetime.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/repo"
)

// Job is a named maintenance task. Run reports how many rows it touched.
type Job struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// SessionPurger drops expired and revoked sessions.
type SessionPurger interface {
	PurgeSessions(ctx context.Context) (int64, error)
}

// PurgeJobs returns the session and idempotency purge jobs.
func PurgeJobs(db *gorm.DB, sessions SessionPurger) []Job {
	return []Job{
		{Name: "purge-sessions", Run: sessions.PurgeSessions},
		{Name: "purge-idempotency", Run: func(ctx context.Context) (int64, error) {
			return repo.PurgeExpiredIdempotency(ctx, db, time.Now().UTC())
		}},
	}
}

// Scheduler wraps a gocron scheduler.
type Scheduler struct {
	s      gocron.Scheduler
	ctx    context.Context
	cancel context.CancelFunc
}

// New schedules every job at interval. Jobs run once immediately after Start
// and never overlap with themselves.
func New(interval time.Duration, jobs ...Job) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %s", interval)
	}
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(gocronLogger{}),
	)
	if err != nil {
		return nil, fmt.Errorf("scheduler: create: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	sc := &Scheduler{s: s, ctx: ctx, cancel: cancel}

	for _, j := range jobs {
		_, err := s.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(sc.run, j),
			gocron.WithName(j.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			cancel()
			_ = s.Shutdown()
			return nil, fmt.Errorf("scheduler: schedule %q: %w", j.Name, err)
		}
		log.Info().Str("job", j.Name).Dur("interval", interval).Msg("job scheduled")
	}
	return sc, nil
}

func (sc *Scheduler) run(j Job) {
	start := time.Now()
	n, err := j.Run(sc.ctx)
	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Str("job", j.Name).Int64("rows", n).Dur("took", time.Since(start)).Msg("maintenance job finished")
}

// Start begins running jobs.
func (sc *Scheduler) Start() { sc.s.Start() }

// Stop cancels running jobs and waits for them to return.
func (sc *Scheduler) Stop() error {
	sc.cancel()
	if err := sc.s.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	return nil
}

// gocronLogger forwards gocron's key/value logs to zerolog.
type gocronLogger struct{}

func (gocronLogger) Debug(msg string, args ...any) {
	log.Debug().Fields(args).Str("component", "gocron").Msg(msg)
}

func (gocronLogger) Info(msg string, args ...any) {
	log.Info().Fields(args).Str("component", "gocron").Msg(msg)
}

func (gocronLogger) Warn(msg string, args ...any) {
	log.Warn().Fields(args).Str("component", "gocron").Msg(msg)
}

func (gocronLogger) Error(msg string, args ...any) {
	log.Error().Fields(args).Str("component", "gocron").Msg(msg)
}
