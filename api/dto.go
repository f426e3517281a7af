/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in overtime/ from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

  REST payloads use snake_case. The two callables keep the field names the
  web client already sends: {organization, spreadsheetId} and
  {organization, date, prod}.

VALIDATION:
  Request types carry go-playground/validator tags. Handler.decode in
  handlers.go runs them; a failure answers 400 with {error: no_params}.

HOURS:
  Hours travel as decimal strings ("1.5") in responses. Requests accept a
  JSON number or a string.

SEE ALSO:
  - handlers.go: Uses these types
  - overtime/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
)

// =============================================================================
// USERS
// =============================================================================

// UserDTO is a user profile.
type UserDTO struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
}

// SaveProfileRequest registers or updates the caller's profile.
type SaveProfileRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

// MemberDTO is a user of an organization with their role.
type MemberDTO struct {
	UserDTO
	Role      overtime.Role `json:"role"`
	IsDefault bool          `json:"is_default"`
}

// SetRoleRequest changes a member's role.
type SetRoleRequest struct {
	Role overtime.Role `json:"role" validate:"required,oneof=admin user"`
}

// DaysRequest replaces a member's vacation or illness days.
type DaysRequest struct {
	Days []string `json:"days" validate:"dive,datetime=2006-01-02"`
}

// DaysDTO lists vacation or illness days.
type DaysDTO struct {
	Days []string `json:"days"`
}

// =============================================================================
// ORGANIZATIONS
// =============================================================================

// OrganizationDTO is an organization as seen by one member.
type OrganizationDTO struct {
	Key            string        `json:"key"`
	Name           string        `json:"name"`
	SpreadsheetID  string        `json:"spreadsheet_id,omitempty"`
	HasSpreadsheet bool          `json:"has_spreadsheet"`
	Holidays       HolidaysDTO   `json:"holidays"`
	Role           overtime.Role `json:"role"`
	IsDefault      bool          `json:"is_default"`
	CreatedAt      string        `json:"created_at"`
}

// CreateOrganizationRequest creates an organization owned by the caller.
type CreateOrganizationRequest struct {
	Key  string `json:"key" validate:"required,max=64,excludesall=/ "`
	Name string `json:"name" validate:"required,max=200"`
}

// HolidaysDTO is the holiday override document.
type HolidaysDTO struct {
	Includes []string `json:"includes" validate:"dive,datetime=2006-01-02"`
	Excludes []string `json:"excludes" validate:"dive,datetime=2006-01-02"`
}

func toHolidaysDTO(set calendar.HolidaySet) HolidaysDTO {
	return HolidaysDTO{
		Includes: calendar.FormatDays(set.Includes),
		Excludes: calendar.FormatDays(set.Excludes),
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// EventDTO is one overtime entry.
type EventDTO struct {
	ID        string          `json:"id"`
	UID       string          `json:"uid"`
	Date      string          `json:"date"`
	Hours     decimal.Decimal `json:"hours"`
	Reason    string          `json:"reason"`
	WorkDone  string          `json:"work_done"`
	Title     string          `json:"title"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

func toEventDTO(e overtime.Event) EventDTO {
	return EventDTO{
		ID:        e.ID,
		UID:       e.UID,
		Date:      e.Date.String(),
		Hours:     e.Hours,
		Reason:    e.Reason,
		WorkDone:  e.WorkDone,
		Title:     e.Title(),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
		UpdatedAt: e.UpdatedAt.Format(time.RFC3339),
	}
}

// EventRequest creates or replaces an event.
type EventRequest struct {
	Date     string          `json:"date" validate:"required,datetime=2006-01-02"`
	Hours    decimal.Decimal `json:"hours"`
	Reason   string          `json:"reason" validate:"max=500"`
	WorkDone string          `json:"work_done" validate:"max=2000"`
}

// MonthDTO is one month of a user's dashboard.
type MonthDTO struct {
	Month        string   `json:"month"`
	Label        string   `json:"label"`
	WorkdayHours string   `json:"workday_hours"`
	HolidayHours string   `json:"holiday_hours"`
	TotalHours   string   `json:"total_hours"`
	Days         []DayDTO `json:"days"`
}

// DayDTO is one classified day.
type DayDTO struct {
	Date     string   `json:"date"`
	Holiday  string   `json:"holiday"`
	Hours    string   `json:"hours"`
	Reasons  []string `json:"reasons"`
	WorkDone []string `json:"work_done"`
	EventIDs []string `json:"event_ids"`
}

func toMonthDTO(s overtime.MonthSummary) MonthDTO {
	days := make([]DayDTO, 0, len(s.Days))
	for _, d := range s.Days {
		days = append(days, DayDTO{
			Date:     d.Date.String(),
			Holiday:  d.HolidayLabel(),
			Hours:    d.Hours.String(),
			Reasons:  d.Reasons,
			WorkDone: d.WorkDone,
			EventIDs: d.EventIDs,
		})
	}
	return MonthDTO{
		Month:        s.Month.String(),
		Label:        s.Month.Label(),
		WorkdayHours: s.WorkdayHours.String(),
		HolidayHours: s.HolidayHours.String(),
		TotalHours:   s.TotalHours().String(),
		Days:         days,
	}
}

// =============================================================================
// INVITATIONS
// =============================================================================

// InvitationDTO is a pending invitation.
type InvitationDTO struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	Role         overtime.Role `json:"role"`
	Organization string        `json:"organization"`
	CreatedAt    string        `json:"created_at"`
}

func toInvitationDTO(inv overtime.Invitation) InvitationDTO {
	return InvitationDTO{
		ID:           inv.ID,
		Email:        inv.Email,
		Role:         inv.Role,
		Organization: inv.OrganizationKey,
		CreatedAt:    inv.CreatedAt.Format(time.RFC3339),
	}
}

// CreateInvitationRequest invites an email address into an organization.
type CreateInvitationRequest struct {
	Email string        `json:"email" validate:"required,email"`
	Role  overtime.Role `json:"role" validate:"required,oneof=admin user"`
}

// =============================================================================
// CALLABLES & REPORT RUNS
// =============================================================================

// AuthorizeSheetRequest links a spreadsheet after checking access.
// SpreadsheetID is only checked once the caller is known to be an admin.
type AuthorizeSheetRequest struct {
	Organization  string `json:"organization" validate:"required"`
	SpreadsheetID string `json:"spreadsheetId"`
}

// ScheduleReportRequest asks for the report of one month.
type ScheduleReportRequest struct {
	Organization string `json:"organization" validate:"required"`
	Date         string `json:"date" validate:"required"`
	Prod         bool   `json:"prod"`
}

// ScheduleReportResponse is the callable result plus the run to poll.
type ScheduleReportResponse struct {
	overtime.Result
	RunID string `json:"run_id,omitempty"`
}

// ReportRunDTO is one entry of the report history.
type ReportRunDTO struct {
	ID          string             `json:"id"`
	Month       string             `json:"month"`
	Mode        overtime.RunMode   `json:"mode"`
	Status      overtime.RunStatus `json:"status"`
	RequestedBy string             `json:"requested_by,omitempty"`
	Attempt     int                `json:"attempt"`
	Users       int                `json:"users"`
	Rows        int                `json:"rows"`
	Error       overtime.ErrorKind `json:"error,omitempty"`
	Details     string             `json:"details,omitempty"`
	StartedAt   string             `json:"started_at,omitempty"`
	CompletedAt string             `json:"completed_at,omitempty"`
	CreatedAt   string             `json:"created_at"`
}

func toReportRunDTO(run overtime.ReportRun) ReportRunDTO {
	dto := ReportRunDTO{
		ID:          run.ID,
		Month:       run.Month.String(),
		Mode:        run.Mode,
		Status:      run.Status,
		RequestedBy: run.RequestedBy,
		Attempt:     run.Attempt,
		Users:       run.Users,
		Rows:        run.Rows,
		Error:       run.Error,
		Details:     run.Details,
		CreatedAt:   run.CreatedAt.Format(time.RFC3339),
	}
	if run.StartedAt != nil {
		dto.StartedAt = run.StartedAt.Format(time.RFC3339)
	}
	if run.CompletedAt != nil {
		dto.CompletedAt = run.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`

	// Month the demo events are placed in. Defaults to the previous month.
	Month string `json:"month,omitempty"`
}

// ErrorResponse is the body of a non-callable failure.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
