// Package scheduler runs the service's periodic jobs on a gocron scheduler.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrEmptyJobName  = errors.New("job name is required")
	ErrEmptyCronExpr = errors.New("cron expression is required")
)

// Task is one run of a job. The context is cancelled when the scheduler stops.
type Task func(ctx context.Context) error

type Scheduler struct {
	scheduler gocron.Scheduler
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	stopOnce  sync.Once
	stopErr   error
}

func New(log *zap.Logger, loc *time.Location) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(
		gocron.WithLocation(loc),
		gocron.WithGlobalJobOptions(
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					log.Error("scheduler job panicked",
						zap.String("job_id", jobID.String()),
						zap.String("job_name", jobName),
						zap.Any("panic", recoverData),
					)
				}),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{scheduler: sched, log: log, ctx: ctx, cancel: cancel}, nil
}

// AddJob registers task under a five-field cron expression.
func (s *Scheduler) AddJob(name, cronExpr string, task Task) (gocron.Job, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyJobName
	}
	if strings.TrimSpace(cronExpr) == "" {
		return nil, ErrEmptyCronExpr
	}
	jobLog := s.log.With(zap.String("job_name", name), zap.String("cron", cronExpr))

	run := func() {
		start := time.Now()
		if err := task(s.ctx); err != nil {
			jobLog.Error("scheduler job failed", zap.Error(err), zap.Duration("took", time.Since(start)))
			return
		}
		jobLog.Debug("scheduler job completed", zap.Duration("took", time.Since(start)))
	}

	job, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(run),
		gocron.WithName(name),
	)
	if err != nil {
		jobLog.Error("failed to register scheduler job", zap.Error(err))
		return nil, err
	}
	jobLog.Info("scheduler job registered")
	return job, nil
}

func (s *Scheduler) Start() {
	s.log.Info("scheduler starting", zap.Int("jobs", len(s.scheduler.Jobs())))
	s.scheduler.Start()
}

// Stop cancels running tasks and waits for them to return. Safe to call more
// than once.
func (s *Scheduler) Stop() error {
	s.stopOnce.Do(func() {
		s.log.Info("scheduler stopping")
		s.cancel()
		s.stopErr = s.scheduler.Shutdown()
	})
	return s.stopErr
}
