package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
)

// =============================================================================
// EVENTS
// =============================================================================

const eventColumns = `id, organization_key, uid, date, hours, reason, work_done, created_at, updated_at`

// CreateEvent inserts an event. The member must exist.
func (s *Store) CreateEvent(ctx context.Context, e overtime.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OrganizationKey, e.UID, e.Date.String(), e.Hours.String(), e.Reason, e.WorkDone,
		formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isForeignKeyError(err) {
			return overtime.NewError(overtime.KindNoMembership, e.OrganizationKey, e.UID, nil)
		}
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// GetEvent retrieves one event of a member.
func (s *Store) GetEvent(ctx context.Context, org, uid, id string) (*overtime.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE organization_key = ? AND uid = ? AND id = ?`, org, uid, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEvent overwrites the user-controlled fields of an event.
func (s *Store) UpdateEvent(ctx context.Context, e overtime.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET date = ?, hours = ?, reason = ?, work_done = ?, updated_at = ?
		WHERE organization_key = ? AND uid = ? AND id = ?
	`, e.Date.String(), e.Hours.String(), e.Reason, e.WorkDone, formatTime(e.UpdatedAt),
		e.OrganizationKey, e.UID, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return overtime.ErrEventNotFound
	}
	return nil
}

// DeleteEvent removes one event of a member.
func (s *Store) DeleteEvent(ctx context.Context, org, uid, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM events WHERE organization_key = ? AND uid = ? AND id = ?`, org, uid, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return overtime.ErrEventNotFound
	}
	return nil
}

// ListEvents returns a member's events with from <= date < to, ordered by
// date then creation. Zero days leave that side unbounded.
func (s *Store) ListEvents(ctx context.Context, org, uid string, from, to calendar.Day) ([]overtime.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + eventColumns + ` FROM events WHERE organization_key = ? AND uid = ?`
	args := []any{org, uid}
	if !from.IsZero() {
		query += ` AND date >= ?`
		args = append(args, from.String())
	}
	if !to.IsZero() {
		query += ` AND date < ?`
		args = append(args, to.String())
	}
	query += ` ORDER BY date, created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []overtime.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row scanner) (overtime.Event, error) {
	var (
		e                    overtime.Event
		date, hours          string
		createdAt, updatedAt string
	)
	if err := row.Scan(&e.ID, &e.OrganizationKey, &e.UID, &date, &hours, &e.Reason, &e.WorkDone, &createdAt, &updatedAt); err != nil {
		return e, err
	}
	day, err := calendar.ParseDay(date)
	if err != nil {
		return e, fmt.Errorf("event %s: %w", e.ID, err)
	}
	e.Date = day
	e.Hours, err = decimal.NewFromString(hours)
	if err != nil {
		return e, fmt.Errorf("event %s hours: %w", e.ID, err)
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// =============================================================================
// INVITATIONS
// =============================================================================

const invitationColumns = `id, email, role, organization_key, created_at`

// CreateInvitation stores a pending invitation.
func (s *Store) CreateInvitation(ctx context.Context, inv overtime.Invitation) error {
	if !inv.Role.Valid() {
		return overtime.ErrInvalidRole
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO invitations (`+invitationColumns+`) VALUES (?, ?, ?, ?, ?)`,
		inv.ID, inv.Email, inv.Role, inv.OrganizationKey, formatTime(inv.CreatedAt))
	if err != nil {
		if isForeignKeyError(err) {
			return overtime.NewError(overtime.KindNoOrganization, inv.OrganizationKey, "", nil)
		}
		return fmt.Errorf("failed to insert invitation: %w", err)
	}
	return nil
}

// GetInvitation retrieves an invitation by id.
func (s *Store) GetInvitation(ctx context.Context, id string) (*overtime.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = ?`, id)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInvitations returns the pending invitations of an organization.
func (s *Store) ListInvitations(ctx context.Context, org string) ([]overtime.Invitation, error) {
	return s.queryInvitations(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE organization_key = ? ORDER BY created_at`, org)
}

// ListInvitationsForEmail returns the pending invitations addressed to email.
func (s *Store) ListInvitationsForEmail(ctx context.Context, email string) ([]overtime.Invitation, error) {
	return s.queryInvitations(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE email = ? COLLATE NOCASE ORDER BY created_at`, email)
}

func (s *Store) queryInvitations(ctx context.Context, query string, args ...any) ([]overtime.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []overtime.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// DeleteInvitation removes an invitation.
func (s *Store) DeleteInvitation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM invitations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return overtime.ErrInvitationNotFound
	}
	return nil
}

// AcceptInvitation converts an invitation into a default membership of uid
// with the invited role, and deletes the invitation. An existing membership
// is left untouched and ErrAlreadyMember is returned; the invitation stays.
func (s *Store) AcceptInvitation(ctx context.Context, id, uid string) (*overtime.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var m overtime.Membership
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		inv, err := scanInvitation(tx.QueryRowContext(ctx,
			`SELECT `+invitationColumns+` FROM invitations WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return overtime.ErrInvitationNotFound
		}
		if err != nil {
			return err
		}

		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM memberships WHERE uid = ? AND organization_key = ?`,
			uid, inv.OrganizationKey).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			return overtime.ErrAlreadyMember
		}

		m = overtime.Membership{
			UID:             uid,
			OrganizationKey: inv.OrganizationKey,
			Role:            inv.Role,
			IsDefault:       true,
			VacationDays:    []string{},
			IllnessDays:     []string{},
			CreatedAt:       s.now(),
		}
		if err := s.saveMembershipTx(ctx, tx, m); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM invitations WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanInvitation(row scanner) (overtime.Invitation, error) {
	var (
		inv       overtime.Invitation
		createdAt string
	)
	if err := row.Scan(&inv.ID, &inv.Email, &inv.Role, &inv.OrganizationKey, &createdAt); err != nil {
		return inv, err
	}
	inv.CreatedAt = parseTime(createdAt)
	return inv, nil
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
