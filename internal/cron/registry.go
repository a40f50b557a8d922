package cron

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type schedule struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry holds the jobs and how often each should run. A job registered
// with a zero interval runs every cycle. Last-run times are per process.
type Registry struct {
	mu        sync.Mutex
	schedules []*schedule
	byName    map[string]*schedule
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]*schedule{}}
}

// Register adds job to run at most once per every. Job names must be unique.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	if every < 0 {
		return fmt.Errorf("job %s: negative interval", job.Name())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[job.Name()]; ok {
		return fmt.Errorf("job %s already registered", job.Name())
	}
	s := &schedule{job: job, every: every}
	r.schedules = append(r.schedules, s)
	r.byName[job.Name()] = s
	return nil
}

// Due returns, in registration order, the jobs whose interval has elapsed
// at now.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Job
	for _, s := range r.schedules {
		if s.lastRun.IsZero() || s.every == 0 || !now.Before(s.lastRun.Add(s.every)) {
			due = append(due, s.job)
		}
	}
	return due
}

// MarkRun records a successful run so the job waits out its interval.
func (r *Registry) MarkRun(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byName[name]; ok {
		s.lastRun = at
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.schedules)
}
