/*
Package overtime holds the domain model of the overtime tracker and the
event aggregator.

KEY CONCEPTS:
  - Organization: tenant grouping users, events and one spreadsheet
  - Membership:   (uid, organization) link with role, default flag and the
                  member's vacation/illness days
  - Event:        one overtime entry (day, hours, reason, work done)
  - ClassifiedDay: computed grouping of same-day events with holiday or
                  special-day classification attached (never persisted)

HOURS:
  Hours are decimal.Decimal so that monthly sums and the derived minutes
  columns are exact. A report never shows 2.9999999 hours.

SEE ALSO:
  - aggregate.go: AggregateMonth / AggregateMonths
  - errors.go:    Error taxonomy shared by the API, report and export paths
  - calendar/:    Day, Month, HolidaySet
*/
package overtime

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/workhours/overtime/calendar"
)

// =============================================================================
// ROLES
// =============================================================================

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

// =============================================================================
// ORGANIZATION
// =============================================================================

// Organization is a tenant. HolidaysJSON is the stored override document;
// use Holidays() to read it.
type Organization struct {
	Key           string
	Name          string
	SpreadsheetID string
	HolidaysJSON  string
	OwnerUID      string
	CreatedAt     time.Time

	holidaysOnce sync.Once
	holidays     calendar.HolidaySet
	holidaysErr  error
}

// Holidays parses the override document on first use and caches the result
// on this value. A report run loads the organization once, so the document
// is parsed once per run.
func (o *Organization) Holidays() (calendar.HolidaySet, error) {
	o.holidaysOnce.Do(func() {
		o.holidays, o.holidaysErr = calendar.ParseHolidaySet(o.HolidaysJSON)
	})
	return o.holidays, o.holidaysErr
}

// HasSpreadsheet reports whether a spreadsheet is linked.
func (o *Organization) HasSpreadsheet() bool { return strings.TrimSpace(o.SpreadsheetID) != "" }

// ReportSheetTitle is the title of the aggregate report sheet.
func (o *Organization) ReportSheetTitle() string { return "Report for " + o.Name }

// =============================================================================
// USER & MEMBERSHIP
// =============================================================================

type User struct {
	UID       string
	Email     string
	FirstName string
	LastName  string
}

// DisplayName prefers the full name and falls back to the email.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Membership links a user to an organization.
type Membership struct {
	UID             string
	OrganizationKey string
	Role            Role
	IsDefault       bool
	VacationDays    []string
	IllnessDays     []string
	CreatedAt       time.Time
}

// MembershipKey is the composite key "{uid}_{orgKey}".
func MembershipKey(uid, organizationKey string) string {
	return uid + "_" + organizationKey
}

func (m Membership) Key() string   { return MembershipKey(m.UID, m.OrganizationKey) }
func (m Membership) IsAdmin() bool { return m.Role == RoleAdmin }

// SpecialDays parses the vacation and illness sets.
func (m Membership) SpecialDays() (vacation, illness calendar.DaySet, err error) {
	vacation, err = calendar.NewDaySet(m.VacationDays)
	if err != nil {
		return nil, nil, fmt.Errorf("vacation days: %w", err)
	}
	illness, err = calendar.NewDaySet(m.IllnessDays)
	if err != nil {
		return nil, nil, fmt.Errorf("illness days: %w", err)
	}
	return vacation, illness, nil
}

// =============================================================================
// EVENT
// =============================================================================

// Event is a single overtime entry owned by one user in one organization.
type Event struct {
	ID              string
	OrganizationKey string
	UID             string
	Date            calendar.Day
	Hours           decimal.Decimal
	Reason          string
	WorkDone        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks the fields a user controls.
func (e Event) Validate() error {
	if e.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidEvent)
	}
	if !e.Hours.IsPositive() {
		return fmt.Errorf("%w: hours must be positive", ErrInvalidEvent)
	}
	return nil
}

// Title is the short label shown in calendars: work done (max 20 chars) and hours.
func (e Event) Title() string {
	work := e.WorkDone
	if r := []rune(work); len(r) > 20 {
		work = string(r[:20]) + "..."
	}
	return fmt.Sprintf("%s - %s hours", work, e.Hours.String())
}

// =============================================================================
// INVITATION
// =============================================================================

// Invitation exists until accepted (turned into a Membership) or deleted.
type Invitation struct {
	ID              string
	Email           string
	Role            Role
	OrganizationKey string
	CreatedAt       time.Time
}

// =============================================================================
// CLASSIFIED DAYS
// =============================================================================

// SpecialDay marks a per-user day that moves hours into the holiday bucket.
type SpecialDay int

const (
	SpecialDayNone SpecialDay = iota
	SpecialDayIllness
	SpecialDayVacation
)

func (s SpecialDay) String() string {
	switch s {
	case SpecialDayIllness:
		return "illness"
	case SpecialDayVacation:
		return "vacation"
	default:
		return "none"
	}
}

// ClassifiedDay is every event of one user on one day, collapsed.
type ClassifiedDay struct {
	Date       calendar.Day
	IsHoliday  bool
	SpecialDay SpecialDay
	Hours      decimal.Decimal
	Reasons    []string
	WorkDone   []string
	EventIDs   []string
}

// CountsAsHoliday reports whether the hours land in the holiday bucket.
func (d ClassifiedDay) CountsAsHoliday() bool {
	return d.IsHoliday || d.SpecialDay != SpecialDayNone
}

// HolidayLabel is the dashboard wording for the classification.
func (d ClassifiedDay) HolidayLabel() string {
	switch {
	case d.IsHoliday:
		return "yes"
	case d.SpecialDay == SpecialDayVacation:
		return "yes (vacation)"
	case d.SpecialDay == SpecialDayIllness:
		return "yes (illness)"
	default:
		return "no"
	}
}

// MonthSummary is the aggregate of one user's events in one month.
type MonthSummary struct {
	Month        calendar.Month
	WorkdayHours decimal.Decimal
	HolidayHours decimal.Decimal
	Days         []ClassifiedDay
}

func (s MonthSummary) IsEmpty() bool               { return len(s.Days) == 0 }
func (s MonthSummary) TotalHours() decimal.Decimal { return s.WorkdayHours.Add(s.HolidayHours) }

var sixty = decimal.NewFromInt(60)

// Minutes converts hours to minutes with the same precision.
func Minutes(hours decimal.Decimal) decimal.Decimal { return hours.Mul(sixty) }

// =============================================================================
// REPORT RUNS
// =============================================================================

// RunStatus follows requested -> enqueued -> dispatched -> running ->
// succeeded|failed. Inline runs skip enqueued and dispatched.
type RunStatus string

const (
	RunRequested  RunStatus = "requested"
	RunEnqueued   RunStatus = "enqueued"
	RunDispatched RunStatus = "dispatched"
	RunRunning    RunStatus = "running"
	RunSucceeded  RunStatus = "succeeded"
	RunFailed     RunStatus = "failed"
)

func (s RunStatus) Terminal() bool { return s == RunSucceeded || s == RunFailed }

type RunMode string

const (
	RunInline RunMode = "inline"
	RunQueued RunMode = "queued"
)

// ReportRun is the history record of one monthly report.
type ReportRun struct {
	ID              string
	OrganizationKey string
	Month           calendar.Month
	Mode            RunMode
	Status          RunStatus
	RequestedBy     string
	Attempt         int
	Users           int
	Rows            int
	Error           ErrorKind
	Details         string
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
}
