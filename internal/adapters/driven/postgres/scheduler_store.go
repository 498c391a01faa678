package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.SchedulerStore = (*SchedulerStore)(nil)

var scheduleColumns = []string{
	"id", "name", "type", "interval_ns", "retention_ns", "enabled", "next_run", "last_run", "last_error",
}

// SchedulerStore implements driven.SchedulerStore using PostgreSQL
type SchedulerStore struct {
	db  *DB
	now func() time.Time
}

// NewSchedulerStore creates a new SchedulerStore
func NewSchedulerStore(db *DB) *SchedulerStore {
	return &SchedulerStore{db: db, now: time.Now}
}

// GetScheduledTask retrieves a scheduled task by ID
func (s *SchedulerStore) GetScheduledTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	query, args, err := psql.Select(scheduleColumns...).From("scheduled_tasks").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	return scanSchedule(s.db.QueryRowContext(ctx, query, args...))
}

// ListScheduledTasks retrieves all scheduled tasks, next due first
func (s *SchedulerStore) ListScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	query, args, err := psql.Select(scheduleColumns...).From("scheduled_tasks").OrderBy("next_run ASC").ToSql()
	if err != nil {
		return nil, err
	}
	return s.query(ctx, query, args...)
}

// GetDueScheduledTasks retrieves enabled scheduled tasks whose next run has passed
func (s *SchedulerStore) GetDueScheduledTasks(ctx context.Context) ([]*domain.ScheduledTask, error) {
	query, args, err := psql.Select(scheduleColumns...).
		From("scheduled_tasks").
		Where(sq.Eq{"enabled": true}).
		Where(sq.LtOrEq{"next_run": s.now()}).
		OrderBy("next_run ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	return s.query(ctx, query, args...)
}

// SaveScheduledTask creates or updates a scheduled task
func (s *SchedulerStore) SaveScheduledTask(ctx context.Context, task *domain.ScheduledTask) error {
	query, args, err := psql.Insert("scheduled_tasks").
		Columns(scheduleColumns...).
		Values(
			task.ID,
			task.Name,
			string(task.Type),
			int64(task.Interval),
			int64(task.Retention),
			task.Enabled,
			task.NextRun,
			NullTime(task.LastRun),
			task.LastError,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			interval_ns = EXCLUDED.interval_ns,
			retention_ns = EXCLUDED.retention_ns,
			enabled = EXCLUDED.enabled,
			next_run = EXCLUDED.next_run,
			last_run = EXCLUDED.last_run,
			last_error = EXCLUDED.last_error`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// DeleteScheduledTask removes a scheduled task
func (s *SchedulerStore) DeleteScheduledTask(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affectedOne(result)
}

// UpdateLastRun stamps the run and moves next_run one interval ahead in a
// single statement.
func (s *SchedulerStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_tasks
		SET last_run = $1,
		    next_run = $1 + (interval_ns / 1000) * INTERVAL '1 microsecond',
		    last_error = $2
		WHERE id = $3
	`, s.now(), lastError, id)
	if err != nil {
		return err
	}
	return affectedOne(result)
}

func (s *SchedulerStore) query(ctx context.Context, query string, args ...any) ([]*domain.ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.ScheduledTask
	for rows.Next() {
		task, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func scanSchedule(row rowScanner) (*domain.ScheduledTask, error) {
	var task domain.ScheduledTask
	var intervalNs, retentionNs int64
	var lastRun sql.NullTime
	var lastError sql.NullString

	err := row.Scan(
		&task.ID,
		&task.Name,
		&task.Type,
		&intervalNs,
		&retentionNs,
		&task.Enabled,
		&task.NextRun,
		&lastRun,
		&lastError,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	task.Interval = time.Duration(intervalNs)
	task.Retention = time.Duration(retentionNs)
	task.LastRun = TimePtr(lastRun)
	task.LastError = lastError.String
	return &task, nil
}
