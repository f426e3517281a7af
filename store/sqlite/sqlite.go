/*
Package sqlite provides the SQLite-backed store of the overtime tracker.

PURPOSE:
  Persists organizations, users, memberships, events and invitations, plus
  the durable task queue and the report run history. Implements the store
  interfaces declared by report/, taskqueue/ and api/.

KEY TABLES:
  organizations:  key, name, spreadsheet id, holidays (JSON overrides)
  users:          profile (uid, email, names)
  memberships:    (uid, organization_key) with role, default flag and the
                  member's vacation/illness days (JSON arrays)
  events:         overtime entries keyed (organization_key, uid, id)
  invitations:    pending invitations by email
  tasks:          task queue rows
  report_runs:    monthly report history

MISSING RECORDS:
  Getters return (nil, nil) when the record does not exist. Callers decide
  which taxonomy error a missing record is.

CONCURRENCY:
  A single connection serializes every statement; sync.RWMutex keeps
  multi-statement operations (defaults, acceptance, claims) atomic with
  respect to each other. ":memory:" databases rely on the single connection.

TIME:
  Timestamps are stored as fixed-width UTC text so that lexical order is
  chronological (tasks.run_at is compared as text).

USAGE:
  store, err := sqlite.New("./data/overtime.db")
  if err != nil {
      return err
  }
  defer store.Close()

SEE ALSO:
  - events.go: events and invitations
  - tasks.go:  taskqueue.Store
  - runs.go:   report_runs
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
)

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Store implements every persistence interface using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS organizations (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		spreadsheet_id TEXT NOT NULL DEFAULT '',
		holidays_json TEXT NOT NULL DEFAULT '',
		owner_uid TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS users (
		uid TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS memberships (
		uid TEXT NOT NULL,
		organization_key TEXT NOT NULL REFERENCES organizations(key) ON DELETE CASCADE,
		role TEXT NOT NULL,
		is_default INTEGER NOT NULL DEFAULT 0,
		vacation_days TEXT NOT NULL DEFAULT '[]',
		illness_days TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		PRIMARY KEY (uid, organization_key)
	);

	CREATE INDEX IF NOT EXISTS idx_memberships_org ON memberships(organization_key);

	-- At most one default membership per user
	CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_default
		ON memberships(uid) WHERE is_default = 1;

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		organization_key TEXT NOT NULL,
		uid TEXT NOT NULL,
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		work_done TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (uid, organization_key)
			REFERENCES memberships(uid, organization_key) ON DELETE CASCADE
	);

	-- Hot path: one user's events in a month
	CREATE INDEX IF NOT EXISTS idx_events_org_uid_date
		ON events(organization_key, uid, date);

	CREATE TABLE IF NOT EXISTS invitations (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		role TEXT NOT NULL,
		organization_key TEXT NOT NULL REFERENCES organizations(key) ON DELETE CASCADE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invitations_email ON invitations(email);
	CREATE INDEX IF NOT EXISTS idx_invitations_org ON invitations(organization_key);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		payload BLOB NOT NULL,
		status TEXT NOT NULL,
		attempt INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL,
		min_backoff_ms INTEGER NOT NULL,
		max_backoff_ms INTEGER NOT NULL,
		deadline_ms INTEGER NOT NULL,
		run_at TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(status, run_at);

	CREATE TABLE IF NOT EXISTS report_runs (
		id TEXT PRIMARY KEY,
		organization_key TEXT NOT NULL,
		month TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		requested_by TEXT NOT NULL DEFAULT '',
		attempt INTEGER NOT NULL DEFAULT 0,
		users INTEGER NOT NULL DEFAULT 0,
		row_count INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		started_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_report_runs_org
		ON report_runs(organization_key, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ORGANIZATIONS
// =============================================================================

const organizationColumns = `key, name, spreadsheet_id, holidays_json, owner_uid, created_at`

// CreateOrganization inserts the organization and the owner's membership in
// one transaction. The owner becomes admin and, when IsDefault is set, their
// only default membership.
func (s *Store) CreateOrganization(ctx context.Context, org *overtime.Organization, owner overtime.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		createdAt := org.CreatedAt
		if createdAt.IsZero() {
			createdAt = s.now()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO organizations (`+organizationColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			org.Key, org.Name, org.SpreadsheetID, org.HolidaysJSON, org.OwnerUID, formatTime(createdAt),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return overtime.ErrOrganizationExists
			}
			return fmt.Errorf("failed to insert organization: %w", err)
		}
		return s.saveMembershipTx(ctx, tx, owner)
	})
}

// GetOrganization retrieves an organization by key.
func (s *Store) GetOrganization(ctx context.Context, key string) (*overtime.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+organizationColumns+` FROM organizations WHERE key = ?`, key)
	org, err := scanOrganization(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return org, err
}

// ListOrganizations returns every organization ordered by key.
func (s *Store) ListOrganizations(ctx context.Context) ([]*overtime.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+organizationColumns+` FROM organizations ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []*overtime.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

// SetSpreadsheetID links a spreadsheet to an organization.
func (s *Store) SetSpreadsheetID(ctx context.Context, key, spreadsheetID string) error {
	return s.updateOrganization(ctx, key, `UPDATE organizations SET spreadsheet_id = ? WHERE key = ?`, spreadsheetID)
}

// SetHolidays replaces the holiday override document.
func (s *Store) SetHolidays(ctx context.Context, key string, set calendar.HolidaySet) error {
	encoded, err := set.Encode()
	if err != nil {
		return err
	}
	return s.updateOrganization(ctx, key, `UPDATE organizations SET holidays_json = ? WHERE key = ?`, encoded)
}

func (s *Store) updateOrganization(ctx context.Context, key, query string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, value, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return overtime.NewError(overtime.KindNoOrganization, key, "", nil)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrganization(row scanner) (*overtime.Organization, error) {
	var (
		org       overtime.Organization
		createdAt string
	)
	if err := row.Scan(&org.Key, &org.Name, &org.SpreadsheetID, &org.HolidaysJSON, &org.OwnerUID, &createdAt); err != nil {
		return nil, err
	}
	org.CreatedAt = parseTime(createdAt)
	return &org, nil
}

// =============================================================================
// USERS
// =============================================================================

// SaveUser creates or updates a user profile.
func (s *Store) SaveUser(ctx context.Context, u overtime.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := formatTime(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (uid, email, first_name, last_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			email = excluded.email,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			updated_at = excluded.updated_at
	`, u.UID, u.Email, u.FirstName, u.LastName, now, now)
	return err
}

// GetUser retrieves a user by uid.
func (s *Store) GetUser(ctx context.Context, uid string) (*overtime.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u overtime.User
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, email, first_name, last_name FROM users WHERE uid = ?`, uid,
	).Scan(&u.UID, &u.Email, &u.FirstName, &u.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// =============================================================================
// MEMBERSHIPS
// =============================================================================

const membershipColumns = `uid, organization_key, role, is_default, vacation_days, illness_days, created_at`

// SaveMembership creates or replaces a membership.
func (s *Store) SaveMembership(ctx context.Context, m overtime.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.saveMembershipTx(ctx, tx, m)
	})
}

func (s *Store) saveMembershipTx(ctx context.Context, tx *sql.Tx, m overtime.Membership) error {
	if !m.Role.Valid() {
		return overtime.ErrInvalidRole
	}
	if m.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE memberships SET is_default = 0 WHERE uid = ?`, m.UID); err != nil {
			return err
		}
	}
	vacation, err := encodeDays(m.VacationDays)
	if err != nil {
		return err
	}
	illness, err := encodeDays(m.IllnessDays)
	if err != nil {
		return err
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO memberships (`+membershipColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uid, organization_key) DO UPDATE SET
			role = excluded.role,
			is_default = excluded.is_default,
			vacation_days = excluded.vacation_days,
			illness_days = excluded.illness_days
	`, m.UID, m.OrganizationKey, m.Role, boolToInt(m.IsDefault), vacation, illness, formatTime(createdAt))
	if err != nil {
		return fmt.Errorf("failed to save membership: %w", err)
	}
	return nil
}

// GetMembership retrieves the membership of uid in org.
func (s *Store) GetMembership(ctx context.Context, uid, org string) (*overtime.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE uid = ? AND organization_key = ?`, uid, org)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMemberships returns the members of an organization in enumeration
// order (creation order). Report rows follow this order.
func (s *Store) ListMemberships(ctx context.Context, org string) ([]overtime.Membership, error) {
	return s.queryMemberships(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE organization_key = ? ORDER BY created_at, rowid`, org)
}

// ListUserMemberships returns every organization uid belongs to.
func (s *Store) ListUserMemberships(ctx context.Context, uid string) ([]overtime.Membership, error) {
	return s.queryMemberships(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE uid = ? ORDER BY created_at, rowid`, uid)
}

func (s *Store) queryMemberships(ctx context.Context, query string, args ...any) ([]overtime.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []overtime.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetDefaultMembership makes org the only default organization of uid.
func (s *Store) SetDefaultMembership(ctx context.Context, uid, org string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE memberships SET is_default = 0 WHERE uid = ?`, uid); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE memberships SET is_default = 1 WHERE uid = ? AND organization_key = ?`, uid, org)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return overtime.NewError(overtime.KindNoMembership, org, uid, nil)
		}
		return nil
	})
}

// SetRole changes the role of a member.
func (s *Store) SetRole(ctx context.Context, uid, org string, role overtime.Role) error {
	if !role.Valid() {
		return overtime.ErrInvalidRole
	}
	return s.updateMembership(ctx, uid, org, `UPDATE memberships SET role = ? WHERE uid = ? AND organization_key = ?`, role)
}

// SetVacationDays replaces the vacation days of a member.
func (s *Store) SetVacationDays(ctx context.Context, uid, org string, days []string) error {
	encoded, err := encodeDays(days)
	if err != nil {
		return err
	}
	return s.updateMembership(ctx, uid, org, `UPDATE memberships SET vacation_days = ? WHERE uid = ? AND organization_key = ?`, encoded)
}

// SetIllnessDays replaces the illness days of a member.
func (s *Store) SetIllnessDays(ctx context.Context, uid, org string, days []string) error {
	encoded, err := encodeDays(days)
	if err != nil {
		return err
	}
	return s.updateMembership(ctx, uid, org, `UPDATE memberships SET illness_days = ? WHERE uid = ? AND organization_key = ?`, encoded)
}

func (s *Store) updateMembership(ctx context.Context, uid, org, query string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, query, value, uid, org)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return overtime.NewError(overtime.KindNoMembership, org, uid, nil)
	}
	return nil
}

// DeleteMembership removes a member and, by cascade, their events in the
// organization. The removed events are returned so their rows can be
// dropped from the member's sheet.
func (s *Store) DeleteMembership(ctx context.Context, uid, org string) ([]overtime.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []overtime.Event
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT `+eventColumns+` FROM events WHERE organization_key = ? AND uid = ? ORDER BY date, created_at`, org, uid)
		if err != nil {
			return err
		}
		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				rows.Close()
				return err
			}
			removed = append(removed, e)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE uid = ? AND organization_key = ?`, uid, org)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return overtime.NewError(overtime.KindNoMembership, org, uid, nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func scanMembership(row scanner) (overtime.Membership, error) {
	var (
		m                 overtime.Membership
		isDefault         int
		vacation, illness string
		createdAt         string
	)
	if err := row.Scan(&m.UID, &m.OrganizationKey, &m.Role, &isDefault, &vacation, &illness, &createdAt); err != nil {
		return m, err
	}
	m.IsDefault = isDefault == 1
	m.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(vacation), &m.VacationDays); err != nil {
		return m, fmt.Errorf("vacation days of %s: %w", m.Key(), err)
	}
	if err := json.Unmarshal([]byte(illness), &m.IllnessDays); err != nil {
		return m, fmt.Errorf("illness days of %s: %w", m.Key(), err)
	}
	return m, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for demo scenarios).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"events", "invitations", "memberships", "organizations", "users", "tasks", "report_runs"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// withTx runs fn in a transaction. s.mu must be held.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// encodeDays validates and normalizes ISO days into a JSON array.
func encodeDays(days []string) (string, error) {
	normalized := make([]string, 0, len(days))
	seen := make(map[string]bool, len(days))
	for _, raw := range days {
		day, err := calendar.ParseDay(raw)
		if err != nil {
			return "", err
		}
		if key := day.String(); !seen[key] {
			seen[key] = true
			normalized = append(normalized, key)
		}
	}
	data, err := json.Marshal(normalized)
	return string(data), err
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
