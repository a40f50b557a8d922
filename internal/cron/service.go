package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/logger"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/metrics"
)

const (
	defaultInterval   = 5 * time.Minute
	lockReleaseBudget = 5 * time.Second
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	Now      func() time.Time

	// JobTimeout bounds each job run; zero leaves runs unbounded. Keep it
	// below the lock TTL so a slow job cannot outlive the lock.
	JobTimeout time.Duration
}

// Service runs due jobs once per interval. A cycle only proceeds on the
// replica that takes the lock; the others count a skip and wait.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("cron: logger required")
	case params.Lock == nil:
		return nil, errors.New("cron: lock required")
	case params.JobTimeout < 0:
		return nil, errors.New("cron: negative job timeout")
	}
	s := &Service{
		logg:       params.Logger,
		registry:   params.Registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   params.Interval,
		jobTimeout: params.JobTimeout,
		now:        params.Now,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run fires a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ctx = s.logg.WithField(ctx, "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce executes one cycle. Failures are logged, never returned, so a
// bad cycle does not stop the worker.
func (s *Service) RunOnce(ctx context.Context) {
	if err := s.runCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logg.Error(ctx, "cron cycle failed", err)
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lock: %w", err)
	}
	if !held {
		s.metrics.CycleSkipped()
		s.logg.Info(ctx, "cron lock held by another replica, skipping cycle")
		return nil
	}
	defer s.release(ctx)

	due := s.registry.Due(s.now())
	cycleCtx := s.logg.WithFields(ctx, map[string]any{
		"jobs_due":   len(due),
		"jobs_total": s.registry.Len(),
	})
	failed := 0
	for _, job := range due {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.runJob(ctx, job) {
			failed++
		}
	}
	s.logg.Info(s.logg.WithField(cycleCtx, "jobs_failed", failed), "cron cycle complete")
	return nil
}

// release runs on a detached context so a canceled worker still frees
// the lock for the next replica.
func (s *Service) release(ctx context.Context) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseBudget)
	defer cancel()
	if err := s.lock.Release(releaseCtx); err != nil {
		s.logg.Error(ctx, "release cron lock", err)
	}
}

// runJob reports whether job succeeded. Only a success moves the job's
// next due time forward.
func (s *Service) runJob(ctx context.Context, job Job) bool {
	name := job.Name()
	jobCtx := s.logg.WithField(ctx, "job", name)
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, s.jobTimeout)
		defer cancel()
	}

	started := s.now()
	err := job.Run(jobCtx)
	finished := s.now()
	s.metrics.ObserveRun(name, finished, finished.Sub(started), err)

	logCtx := s.logg.WithField(jobCtx, "duration_ms", finished.Sub(started).Milliseconds())
	if err != nil {
		s.logg.Error(logCtx, "cron job failed", err)
		return false
	}
	s.registry.MarkRun(name, started)
	s.logg.Info(logCtx, "cron job complete")
	return true
}
