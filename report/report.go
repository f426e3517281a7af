/*
Package report renders the monthly overtime report of an organization into
its linked spreadsheet and keeps per-user sheets in step with event changes.

PURPOSE:
  A report run reads every member's events for one month, classifies each
  day (holiday, vacation, illness or workday), and rewrites the sheet
  "Report for {name}" from scratch. Runs execute inline (CLI, tests, the
  non-prod callable) or through the task queue.

RUN LIFECYCLE:
  requested -> enqueued -> dispatched -> running -> succeeded | failed
  Inline runs skip enqueued and dispatched. Every transition is written to
  report_runs so admins can see what happened to a queued request.

PRECONDITIONS:
  Authorize is the admin gate of the callables:
    missing uid or organization -> no_params
    no membership               -> wrong_user
    role is not admin           -> not_admin

FAILURES:
  Referential failures (no organization, no spreadsheet id, no user) abort
  the whole run; nothing is rendered. A run interrupted half way leaves a
  partial sheet which the next run clears and rewrites.

SEE ALSO:
  - layout.go:   the row cursor and the sheet blocks
  - runner.go:   Runner.Run
  - queue.go:    Scheduler (enqueue + task handler)
  - export.go:   Exporter (per-user sheets)
*/
package report

import (
	"context"
	"fmt"

	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/spreadsheet"
)

// Store is the persistence a report run reads from and records into.
type Store interface {
	GetOrganization(ctx context.Context, key string) (*overtime.Organization, error)
	GetMembership(ctx context.Context, uid, org string) (*overtime.Membership, error)
	ListMemberships(ctx context.Context, org string) ([]overtime.Membership, error)
	GetUser(ctx context.Context, uid string) (*overtime.User, error)
	ListEvents(ctx context.Context, org, uid string, from, to calendar.Day) ([]overtime.Event, error)
	SaveReportRun(ctx context.Context, run overtime.ReportRun) error
	GetReportRun(ctx context.Context, id string) (*overtime.ReportRun, error)
}

// MembershipReader is the slice of Store that Authorize needs.
type MembershipReader interface {
	GetMembership(ctx context.Context, uid, org string) (*overtime.Membership, error)
}

// Authorize checks that uid is an admin of org and returns the membership.
func Authorize(ctx context.Context, store MembershipReader, uid, org string) (*overtime.Membership, error) {
	if org == "" || uid == "" {
		return nil, overtime.NewError(overtime.KindNoParams, org, uid, nil)
	}
	m, err := store.GetMembership(ctx, uid, org)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if m == nil {
		return nil, overtime.NewError(overtime.KindWrongUser, org, uid, nil)
	}
	if !m.IsAdmin() {
		return nil, overtime.NewError(overtime.KindNotAdmin, org, uid, nil)
	}
	return m, nil
}

// AuthorizeSheet verifies that the service account can read the
// spreadsheet. Any failure is not_authorized.
func AuthorizeSheet(ctx context.Context, svc spreadsheet.Service, org, spreadsheetID string) error {
	if spreadsheetID == "" {
		return overtime.NewError(overtime.KindNoParams, org, "spreadsheetId", nil)
	}
	if _, err := svc.GetSpreadsheet(ctx, spreadsheetID); err != nil {
		return overtime.NewError(overtime.KindNotAuthorized, org, spreadsheetID, err)
	}
	return nil
}

// sheetError tags API refusals as not_authorized and wraps the rest.
func sheetError(org, spreadsheetID string, err error) error {
	if spreadsheet.IsAccessDenied(err) {
		return overtime.NewError(overtime.KindNotAuthorized, org, spreadsheetID, err)
	}
	return overtime.NewError(overtime.KindUnknown, org, spreadsheetID, err)
}
