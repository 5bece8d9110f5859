// Package scheduler runs a job on a fixed interval with explicit lifecycle
// control, optionally guarded by a distributed lock so only one replica runs
// each tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Locker grants exclusive access to a named tick.
type Locker interface {
	// TryLock returns ok=false without error when another holder owns key.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// Options tune a Scheduler. Zero values are usable.
type Options struct {
	Locker     Locker
	LockTTL    time.Duration
	JobTimeout time.Duration
	RunOnStart bool
	Logger     *slog.Logger
}

// Scheduler is a restartable ticker loop.
type Scheduler struct {
	name string
	job  Job
	opts Options

	mu       sync.Mutex
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// New builds a stopped scheduler.
func New(name string, interval time.Duration, job Job, opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = interval
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = interval
	}
	return &Scheduler{
		name:     name,
		job:      job,
		opts:     opts,
		interval: interval,
	}
}

// Start launches the loop. It stops when Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}
	if s.interval <= 0 {
		return fmt.Errorf("scheduler %s: interval must be positive", s.name)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.loop(loopCtx, s.interval, done)
	s.opts.Logger.Info("scheduler started", "scheduler", s.name, "interval", s.interval)
	return nil
}

// Stop cancels the loop and waits for an in-flight job to return. Stopping a
// stopped scheduler is a no-op.
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
	s.opts.Logger.Info("scheduler stopped", "scheduler", s.name)
}

// Restart stops the loop and starts it again with a new interval. A
// non-positive interval keeps the current one.
func (s *Scheduler) Restart(ctx context.Context, interval time.Duration) error {
	s.Stop()
	if interval > 0 {
		s.mu.Lock()
		s.interval = interval
		s.mu.Unlock()
	}
	return s.Start(ctx)
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Interval returns the current tick interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// RunOnce executes the job immediately, honouring the lock. ran is false when
// another holder owned the lock.
func (s *Scheduler) RunOnce(ctx context.Context) (ran bool, err error) {
	if s.opts.Locker != nil {
		unlock, ok, err := s.opts.Locker.TryLock(ctx, "scheduler:"+s.name, s.opts.LockTTL)
		if err != nil {
			return false, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return false, nil
		}
		defer unlock()
	}

	jobCtx, cancel := context.WithTimeout(ctx, s.opts.JobTimeout)
	defer cancel()
	return true, s.job(jobCtx)
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	if s.opts.RunOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	start := time.Now()
	ran, err := s.RunOnce(ctx)
	switch {
	case err != nil:
		s.opts.Logger.Error("scheduled job failed", "scheduler", s.name, "error", err, "duration", time.Since(start))
	case !ran:
		s.opts.Logger.Debug("scheduled job skipped, lock held elsewhere", "scheduler", s.name)
	default:
		s.opts.Logger.Debug("scheduled job finished", "scheduler", s.name, "duration", time.Since(start))
	}
}
