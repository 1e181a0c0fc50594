// Package scheduler triggers the news cycle on a fixed interval aligned to
// the wall clock, plus an optional delayed run at startup.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/deusflow/worldnews/internal/cycle"
)

// Job runs one cycle. The cycle controller's Run satisfies it.
type Job func(ctx context.Context) (*cycle.Report, error)

type Options struct {
	Interval   time.Duration
	RunOnStart bool
	StartDelay time.Duration
}

type Scheduler struct {
	opts   Options
	job    Job
	logger *slog.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options, job Job, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Hour
	}
	return &Scheduler{
		opts:   opts,
		job:    job,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}
}

// Next returns the first interval boundary strictly after now.
func Next(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}

// Start launches the loop. Calling it twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil || s.job == nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)

	s.logger.Info("scheduler started",
		"interval", s.opts.Interval,
		"run_on_start", s.opts.RunOnStart,
		"next_run", Next(s.now(), s.opts.Interval).Format(time.RFC3339),
	)
}

// Stop cancels the loop and waits for an in-flight cycle to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.opts.RunOnStart {
		select {
		case <-ctx.Done():
			return
		case <-s.after(s.opts.StartDelay):
			s.trigger(ctx, "startup")
		}
	}

	for {
		wait := Next(s.now(), s.opts.Interval).Sub(s.now())
		select {
		case <-ctx.Done():
			return
		case <-s.after(wait):
			s.trigger(ctx, "schedule")
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context, reason string) {
	report, err := s.job(ctx)
	switch {
	case errors.Is(err, cycle.ErrCycleInProgress):
		s.logger.Warn("skipping scheduled run, cycle already in progress", "trigger", reason)
	case err != nil:
		s.logger.Error("scheduled cycle failed", "trigger", reason, "error", err)
	case report != nil:
		s.logger.Info("scheduled cycle done", "trigger", reason, "status", report.Status, "succeeded", report.Succeeded)
	}
}
