package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
)

// Scheduler enqueues the maintenance tasks of the coordinator on their
// schedule. It runs on worker nodes; with a DistributedLock configured only
// one instance enqueues per cycle.
type Scheduler struct {
	store     driven.SchedulerStore
	taskQueue driven.TaskQueue
	lock      driven.DistributedLock
	logger    *slog.Logger

	interval     time.Duration
	lockTTL      time.Duration
	lockRequired bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// SchedulerConfig holds configuration for the scheduler.
type SchedulerConfig struct {
	Store        driven.SchedulerStore
	TaskQueue    driven.TaskQueue
	Lock         driven.DistributedLock // Optional
	Logger       *slog.Logger
	PollInterval time.Duration // default: 30s
	LockTTL      time.Duration // default: twice the poll interval
	LockRequired bool          // skip the cycle when the lock backend fails
}

const schedulerLockName = "scheduler"

// NewScheduler creates a new scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:        cfg.Store,
		taskQueue:    cfg.TaskQueue,
		lock:         cfg.Lock,
		logger:       logger.With("component", "scheduler"),
		interval:     cfg.PollInterval,
		lockTTL:      cfg.LockTTL,
		lockRequired: cfg.LockRequired,
	}
	if s.interval <= 0 {
		s.interval = 30 * time.Second
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 2 * s.interval
	}
	return s
}

// EnsureSchedules saves the given schedules unless a schedule with the same
// ID already exists, so operator changes survive restarts.
func (s *Scheduler) EnsureSchedules(ctx context.Context, schedules []*domain.ScheduledTask) error {
	for _, sched := range schedules {
		_, err := s.store.GetScheduledTask(ctx, sched.ID)
		switch {
		case err == nil:
			continue
		case !errors.Is(err, domain.ErrNotFound):
			return fmt.Errorf("load schedule %s: %w", sched.ID, err)
		}
		if err := s.store.SaveScheduledTask(ctx, sched); err != nil {
			return fmt.Errorf("save schedule %s: %w", sched.ID, err)
		}
		s.logger.Info("registered schedule", "scheduled_id", sched.ID, "interval", sched.Interval)
	}
	return nil
}

// Start runs the schedule loop in the background until Stop or ctx ends.
// Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(loopCtx)
	}()

	s.logger.Info("scheduler starting", "poll_interval", s.interval)
	return nil
}

// Stop ends the loop and waits for the current cycle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.checkAndEnqueue(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// acquireCycle takes the cycle lock. ok is false when this instance must
// skip the cycle.
func (s *Scheduler) acquireCycle(ctx context.Context) (release func(), ok bool) {
	noop := func() {}
	if s.lock == nil {
		return noop, true
	}
	acquired, err := s.lock.Acquire(ctx, schedulerLockName, s.lockTTL)
	if err != nil {
		s.logger.Warn("failed to acquire scheduler lock", "error", err)
		return noop, !s.lockRequired
	}
	if !acquired {
		s.logger.Debug("scheduler lock held by another instance, skipping cycle")
		return noop, false
	}
	return func() {
		if err := s.lock.Release(ctx, schedulerLockName); err != nil {
			s.logger.Warn("failed to release scheduler lock", "error", err)
		}
	}, true
}

// checkAndEnqueue enqueues every due schedule once.
func (s *Scheduler) checkAndEnqueue(ctx context.Context) {
	release, ok := s.acquireCycle(ctx)
	if !ok {
		return
	}
	defer release()

	due, err := s.store.GetDueScheduledTasks(ctx)
	if err != nil {
		s.logger.Error("failed to get due scheduled tasks", "error", err)
		return
	}
	for _, scheduled := range due {
		if scheduled.IsDue() {
			s.enqueue(ctx, scheduled)
		}
	}
}

func (s *Scheduler) enqueue(ctx context.Context, scheduled *domain.ScheduledTask) {
	logger := s.logger.With("scheduled_id", scheduled.ID)

	task := scheduled.NewTask()
	lastError := ""
	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		logger.Error("failed to enqueue scheduled task", "error", err)
		lastError = err.Error()
	} else {
		logger.Info("enqueued scheduled task", "task_id", task.ID, "task_type", task.Type)
	}

	// The run is stamped either way so a failing enqueue waits a full interval
	if err := s.store.UpdateLastRun(ctx, scheduled.ID, lastError); err != nil {
		logger.Warn("failed to update scheduled task last run", "error", err)
	}
}

// ListScheduledTasks lists all schedules.
func (s *Scheduler) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	return s.store.ListScheduledTasks(ctx)
}

// SetEnabled switches a schedule on or off.
func (s *Scheduler) SetEnabled(ctx context.Context, id string, enabled bool) error {
	scheduled, err := s.store.GetScheduledTask(ctx, id)
	if err != nil {
		return err
	}
	scheduled.Enabled = enabled
	return s.store.SaveScheduledTask(ctx, scheduled)
}

// TriggerNow enqueues a schedule's task immediately, ignoring its next run.
func (s *Scheduler) TriggerNow(ctx context.Context, id string) (*domain.Task, error) {
	scheduled, err := s.store.GetScheduledTask(ctx, id)
	if err != nil {
		return nil, err
	}

	task := scheduled.NewTask()
	if err := s.taskQueue.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", scheduled.Type, err)
	}

	s.logger.Info("manually triggered scheduled task", "scheduled_id", scheduled.ID, "task_id", task.ID)
	return task, nil
}
