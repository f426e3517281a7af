package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/workhours/overtime/taskqueue"
)

// =============================================================================
// TASKS - taskqueue.Store
// =============================================================================

var _ taskqueue.Store = (*Store)(nil)

const taskColumns = `id, name, payload, status, attempt, max_attempts, min_backoff_ms, max_backoff_ms, deadline_ms, run_at, last_error, created_at, updated_at`

// InsertTask persists a new pending task.
func (s *Store) InsertTask(ctx context.Context, t taskqueue.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.Status == "" {
		t.Status = taskqueue.StatusPending
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Payload, t.Status, t.Attempt, t.MaxAttempts,
		t.MinBackoff.Milliseconds(), t.MaxBackoff.Milliseconds(), t.Deadline.Milliseconds(),
		formatTime(t.RunAt), t.LastError, formatTime(t.CreatedAt), formatTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*taskqueue.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ClaimDueTasks moves up to limit due pending tasks to running, oldest
// run_at first, and returns them with their attempt incremented.
func (s *Store) ClaimDueTasks(ctx context.Context, now time.Time, limit int) ([]taskqueue.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []taskqueue.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT `+taskColumns+` FROM tasks
			WHERE status = ? AND run_at <= ?
			ORDER BY run_at, created_at
			LIMIT ?
		`, taskqueue.StatusPending, formatTime(now), limit)
		if err != nil {
			return err
		}
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return err
			}
			claimed = append(claimed, t)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for i := range claimed {
			claimed[i].Status = taskqueue.StatusRunning
			claimed[i].Attempt++
			claimed[i].UpdatedAt = now
			if _, err := tx.ExecContext(ctx,
				`UPDATE tasks SET status = ?, attempt = ?, updated_at = ? WHERE id = ?`,
				taskqueue.StatusRunning, claimed[i].Attempt, formatTime(now), claimed[i].ID,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	return claimed, nil
}

// CompleteTask marks a task succeeded.
func (s *Store) CompleteTask(ctx context.Context, id string, now time.Time) error {
	return s.updateTask(ctx, id,
		`UPDATE tasks SET status = ?, last_error = '', updated_at = ? WHERE id = ?`,
		taskqueue.StatusSucceeded, formatTime(now))
}

// RetryTask puts a task back to pending, due at runAt.
func (s *Store) RetryTask(ctx context.Context, id string, runAt time.Time, lastErr string) error {
	return s.updateTask(ctx, id,
		`UPDATE tasks SET status = ?, run_at = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		taskqueue.StatusPending, formatTime(runAt), lastErr, formatTime(s.now()))
}

// FailTask marks a task failed for good.
func (s *Store) FailTask(ctx context.Context, id string, lastErr string, now time.Time) error {
	return s.updateTask(ctx, id,
		`UPDATE tasks SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		taskqueue.StatusFailed, lastErr, formatTime(now))
}

// ResetRunningTasks returns tasks orphaned in running to pending, due now.
func (s *Store) ResetRunningTasks(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, run_at = ?, updated_at = ? WHERE status = ?`,
		taskqueue.StatusPending, formatTime(now), formatTime(now), taskqueue.StatusRunning)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) updateTask(ctx context.Context, id, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}

func scanTask(row scanner) (taskqueue.Task, error) {
	var (
		t                                taskqueue.Task
		minBackoff, maxBackoff, deadline int64
		runAt, createdAt, updatedAt      string
	)
	err := row.Scan(&t.ID, &t.Name, &t.Payload, &t.Status, &t.Attempt, &t.MaxAttempts,
		&minBackoff, &maxBackoff, &deadline, &runAt, &t.LastError, &createdAt, &updatedAt)
	if err != nil {
		return t, err
	}
	t.MinBackoff = time.Duration(minBackoff) * time.Millisecond
	t.MaxBackoff = time.Duration(maxBackoff) * time.Millisecond
	t.Deadline = time.Duration(deadline) * time.Millisecond
	t.RunAt = parseTime(runAt)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}
