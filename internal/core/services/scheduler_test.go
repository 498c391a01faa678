package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven/mocks"
)

// mockSchedulerStore implements driven.SchedulerStore for testing
type mockSchedulerStore struct {
	mu             sync.Mutex
	scheduledTasks map[string]*domain.ScheduledTask
	getDueFn       func() ([]*domain.ScheduledTask, error)
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		scheduledTasks: make(map[string]*domain.ScheduledTask),
	}
}

func (m *mockSchedulerStore) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.scheduledTasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return task, nil
}

func (m *mockSchedulerStore) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*domain.ScheduledTask
	for _, task := range m.scheduledTasks {
		result = append(result, task)
	}
	return result, nil
}

func (m *mockSchedulerStore) SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scheduledTasks[task.ID] = task
	return nil
}

func (m *mockSchedulerStore) DeleteScheduledTask(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scheduledTasks[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.scheduledTasks, id)
	return nil
}

func (m *mockSchedulerStore) GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	if m.getDueFn != nil {
		return m.getDueFn()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*domain.ScheduledTask
	for _, task := range m.scheduledTasks {
		if task.IsDue() {
			result = append(result, task)
		}
	}
	return result, nil
}

func (m *mockSchedulerStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.scheduledTasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	task.UpdateNextRun()
	task.LastError = lastError
	return nil
}

func dueSchedule(id string) *domain.ScheduledTask {
	s := domain.NewScheduledTask(id, "Task Purge", domain.TaskTypePurgeTasks, time.Hour)
	s.Retention = 24 * time.Hour
	s.NextRun = time.Now().Add(-time.Minute)
	return s
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(SchedulerConfig{
		Store:     newMockSchedulerStore(),
		TaskQueue: mocks.NewMockTaskQueue(),
	})

	if s.interval != 30*time.Second {
		t.Errorf("expected default interval 30s, got %v", s.interval)
	}
	if s.lockTTL != time.Minute {
		t.Errorf("expected default lock ttl 1m, got %v", s.lockTTL)
	}
	if s.logger == nil {
		t.Error("expected default logger")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(SchedulerConfig{
		Store:        newMockSchedulerStore(),
		TaskQueue:    mocks.NewMockTaskQueue(),
		PollInterval: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("failed to start scheduler: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Errorf("second start should not error: %v", err)
	}

	s.Stop()

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		t.Error("expected scheduler to be stopped")
	}

	s.Stop() // Should not panic
}

func TestScheduler_EnsureSchedules(t *testing.T) {
	store := newMockSchedulerStore()
	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: mocks.NewMockTaskQueue()})
	ctx := context.Background()

	existing := domain.NewScheduledTask("task-purge", "Task Purge", domain.TaskTypePurgeTasks, 2*time.Hour)
	existing.Enabled = false
	_ = store.SaveScheduledTask(ctx, existing)

	defaults := domain.DefaultSchedules(time.Hour, 24*time.Hour)
	if err := s.EnsureSchedules(ctx, defaults); err != nil {
		t.Fatalf("EnsureSchedules: %v", err)
	}

	got, _ := store.GetScheduledTask(ctx, "task-purge")
	if got.Enabled || got.Interval != 2*time.Hour {
		t.Error("existing schedule should not be overwritten")
	}

	store2 := newMockSchedulerStore()
	s2 := NewScheduler(SchedulerConfig{Store: store2, TaskQueue: mocks.NewMockTaskQueue()})
	if err := s2.EnsureSchedules(ctx, defaults); err != nil {
		t.Fatalf("EnsureSchedules: %v", err)
	}
	if _, err := store2.GetScheduledTask(ctx, "task-purge"); err != nil {
		t.Errorf("expected default schedule to be registered: %v", err)
	}
}

func TestScheduler_CheckAndEnqueue(t *testing.T) {
	store := newMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue})
	ctx := context.Background()

	_ = store.SaveScheduledTask(ctx, dueSchedule("task-purge"))

	s.checkAndEnqueue(ctx)

	tasks := queue.PendingOfType(domain.TaskTypePurgeTasks)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 purge task, got %d", len(tasks))
	}
	if tasks[0].Retention() != 24*time.Hour {
		t.Errorf("expected retention 24h, got %v", tasks[0].Retention())
	}

	got, _ := store.GetScheduledTask(ctx, "task-purge")
	if got.LastRun == nil || !got.NextRun.After(time.Now()) {
		t.Error("expected next run to move forward")
	}

	// Not due anymore
	s.checkAndEnqueue(ctx)
	if n := len(queue.PendingOfType(domain.TaskTypePurgeTasks)); n != 1 {
		t.Errorf("expected still 1 purge task, got %d", n)
	}
}

func TestScheduler_CheckAndEnqueue_SkipsDisabled(t *testing.T) {
	store := newMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue})
	ctx := context.Background()

	sched := dueSchedule("task-purge")
	sched.Enabled = false
	_ = store.SaveScheduledTask(ctx, sched)

	s.checkAndEnqueue(ctx)

	if n := len(queue.Pending()); n != 0 {
		t.Errorf("expected no tasks, got %d", n)
	}
}

func TestScheduler_CheckAndEnqueue_EnqueueError(t *testing.T) {
	store := newMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	queue.EnqueueFn = func(*domain.Task) error { return errors.New("queue down") }
	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue})
	ctx := context.Background()

	_ = store.SaveScheduledTask(ctx, dueSchedule("task-purge"))

	s.checkAndEnqueue(ctx)

	got, _ := store.GetScheduledTask(ctx, "task-purge")
	if got.LastError != "queue down" {
		t.Errorf("expected last error to be recorded, got %q", got.LastError)
	}
}

func TestScheduler_LockHeldElsewhere(t *testing.T) {
	store := newMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	lock := mocks.NewMockDistributedLock()
	lock.SetLockHeld("scheduler", time.Minute)

	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue, Lock: lock, LockRequired: true})
	ctx := context.Background()
	_ = store.SaveScheduledTask(ctx, dueSchedule("task-purge"))

	s.checkAndEnqueue(ctx)

	if n := len(queue.Pending()); n != 0 {
		t.Errorf("expected no tasks while another instance holds the lock, got %d", n)
	}
}

func TestScheduler_LockBackendError(t *testing.T) {
	tests := []struct {
		name         string
		lockRequired bool
		wantTasks    int
	}{
		{"required skips cycle", true, 0},
		{"optional runs anyway", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockSchedulerStore()
			queue := mocks.NewMockTaskQueue()
			lock := mocks.NewMockDistributedLock()
			lock.AcquireFn = func(string, time.Duration) (bool, error) { return false, errors.New("redis down") }

			s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue, Lock: lock, LockRequired: tt.lockRequired})
			ctx := context.Background()
			_ = store.SaveScheduledTask(ctx, dueSchedule("task-purge"))

			s.checkAndEnqueue(ctx)

			if n := len(queue.Pending()); n != tt.wantTasks {
				t.Errorf("expected %d tasks, got %d", tt.wantTasks, n)
			}
		})
	}
}

func TestScheduler_LockReleasedAfterCycle(t *testing.T) {
	store := newMockSchedulerStore()
	lock := mocks.NewMockDistributedLock()
	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: mocks.NewMockTaskQueue(), Lock: lock})

	s.checkAndEnqueue(context.Background())

	if lock.IsHeld("scheduler") {
		t.Error("expected scheduler lock to be released")
	}
	if lock.AcquireCount("scheduler") != 1 {
		t.Errorf("expected 1 acquisition, got %d", lock.AcquireCount("scheduler"))
	}
}

func TestScheduler_SetEnabledAndTrigger(t *testing.T) {
	store := newMockSchedulerStore()
	queue := mocks.NewMockTaskQueue()
	s := NewScheduler(SchedulerConfig{Store: store, TaskQueue: queue})
	ctx := context.Background()

	_ = store.SaveScheduledTask(ctx, domain.NewScheduledTask("task-purge", "Task Purge", domain.TaskTypePurgeTasks, time.Hour))

	if err := s.SetEnabled(ctx, "task-purge", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	list, _ := s.ListScheduledTasks(ctx)
	if len(list) != 1 || list[0].Enabled {
		t.Error("expected the schedule to be disabled")
	}

	task, err := s.TriggerNow(ctx, "task-purge")
	if err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}
	if task.Type != domain.TaskTypePurgeTasks {
		t.Errorf("expected purge task, got %s", task.Type)
	}

	if _, err := s.TriggerNow(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
