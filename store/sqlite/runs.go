package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
)

// =============================================================================
// REPORT RUNS
// =============================================================================

const runColumns = `id, organization_key, month, mode, status, requested_by, attempt, users, row_count, error, details, started_at, completed_at, created_at`

// SaveReportRun creates or replaces a run record.
func (s *Store) SaveReportRun(ctx context.Context, run overtime.ReportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			attempt = excluded.attempt,
			users = excluded.users,
			row_count = excluded.row_count,
			error = excluded.error,
			details = excluded.details,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, run.ID, run.OrganizationKey, run.Month.String(), run.Mode, run.Status, run.RequestedBy,
		run.Attempt, run.Users, run.Rows, run.Error, run.Details,
		formatTimePtr(run.StartedAt), formatTimePtr(run.CompletedAt), formatTime(run.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save report run: %w", err)
	}
	return nil
}

// GetReportRun retrieves a run by id.
func (s *Store) GetReportRun(ctx context.Context, id string) (*overtime.ReportRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM report_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListReportRuns returns the latest runs of an organization, newest first.
func (s *Store) ListReportRuns(ctx context.Context, org string, limit int) ([]overtime.ReportRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM report_runs WHERE organization_key = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		org, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []overtime.ReportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(row scanner) (overtime.ReportRun, error) {
	var (
		run                    overtime.ReportRun
		month, createdAt       string
		startedAt, completedAt sql.NullString
	)
	err := row.Scan(&run.ID, &run.OrganizationKey, &month, &run.Mode, &run.Status, &run.RequestedBy,
		&run.Attempt, &run.Users, &run.Rows, &run.Error, &run.Details, &startedAt, &completedAt, &createdAt)
	if err != nil {
		return run, err
	}
	run.Month, err = calendar.ParseMonth(month)
	if err != nil {
		return run, fmt.Errorf("report run %s: %w", run.ID, err)
	}
	run.StartedAt = parseTimePtr(startedAt)
	run.CompletedAt = parseTimePtr(completedAt)
	run.CreatedAt = parseTime(createdAt)
	return run, nil
}
