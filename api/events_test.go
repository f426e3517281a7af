package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/spreadsheet"
)

type eventList struct {
	Events []EventDTO `json:"events"`
}

type monthList struct {
	UID    string     `json:"uid"`
	Months []MonthDTO `json:"months"`
}

func event(date string, hours any, work string) map[string]any {
	return map[string]any{"date": date, "hours": hours, "reason": "release", "work_done": work}
}

func TestEvents_CRUDMirrorsSheet(t *testing.T) {
	// GIVEN: acme with a linked spreadsheet
	// WHEN: alice creates, updates and deletes an event
	// THEN: Each write is mirrored on her sheet
	s := newTestServer(t)
	s.acme(t)

	rec := s.do(t, "alice", http.MethodPost, "/api/organizations/acme/events", event("2024-03-04", 1.5, "deploy"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeAs[EventDTO](t, rec)
	assert.Equal(t, "id-1", created.ID)
	assert.Equal(t, "1.5", created.Hours.String())
	assert.Equal(t, "deploy - 1.5 hours", created.Title)

	sheet, ok := s.fake.Sheet(docID, "alice@acme.test")
	require.True(t, ok)
	assert.Equal(t, []string{"id-1", "2024-03-04", "1.5", "release", "deploy"}, sheet.Row(1, spreadsheet.UserSheetColumns))

	rec = s.do(t, "alice", http.MethodPut, "/api/organizations/acme/events/id-1", event("2024-03-05", "2", "deploy and verify"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sheet, _ = s.fake.Sheet(docID, "alice@acme.test")
	assert.Equal(t, []string{"id-1", "2024-03-05", "2", "release", "deploy and verify"}, sheet.Row(1, spreadsheet.UserSheetColumns))

	rec = s.do(t, "alice", http.MethodGet, "/api/organizations/acme/events/id-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-03-05", decodeAs[EventDTO](t, rec).Date)

	rec = s.do(t, "alice", http.MethodDelete, "/api/organizations/acme/events/id-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sheet, _ = s.fake.Sheet(docID, "alice@acme.test")
	assert.Equal(t, 1, sheet.UsedRows())

	rec = s.do(t, "alice", http.MethodGet, "/api/organizations/acme/events/id-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents_OtherUsersEventsAreInvisible(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)

	rec := s.do(t, "alice", http.MethodPost, "/api/organizations/acme/events", event("2024-03-04", 1, "deploy"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "bob", http.MethodGet, "/api/organizations/acme/events/id-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, "bob", http.MethodDelete, "/api/organizations/acme/events/id-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEvents_Validation(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"zero hours", event("2024-03-04", 0, "deploy")},
		{"negative hours", event("2024-03-04", -1, "deploy")},
		{"bad date", event("04/03/2024", 1, "deploy")},
		{"missing date", map[string]any{"hours": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, "alice", http.MethodPost, "/api/organizations/acme/events", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	_, ok := s.fake.Sheet(docID, "alice@acme.test")
	assert.False(t, ok, "nothing exported")
}

func TestEvents_ListByMonth(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)
	for _, date := range []string{"2024-02-28", "2024-03-01", "2024-03-31", "2024-04-01"} {
		rec := s.do(t, "alice", http.MethodPost, "/api/organizations/acme/events", event(date, 1, "work"))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := s.do(t, "alice", http.MethodGet, "/api/organizations/acme/events?month=2024-03", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	events := decodeAs[eventList](t, rec).Events
	require.Len(t, events, 2)
	assert.Equal(t, "2024-03-01", events[0].Date)
	assert.Equal(t, "2024-03-31", events[1].Date)

	rec = s.do(t, "alice", http.MethodGet, "/api/organizations/acme/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[eventList](t, rec).Events, 4)

	rec = s.do(t, "alice", http.MethodGet, "/api/organizations/acme/events?month=March", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEvents_NoSpreadsheetStillSaves(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "alice", "Alice", "Admin")
	rec := s.do(t, "alice", http.MethodPost, "/api/organizations", CreateOrganizationRequest{Key: "solo", Name: "Solo"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "alice", http.MethodPost, "/api/organizations/solo/events", event("2024-03-04", 1, "deploy"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Empty(t, s.fake.Calls())
}

// =============================================================================
// DASHBOARD
// =============================================================================

func TestMonths_ClassifiesHolidays(t *testing.T) {
	// GIVEN: Wednesday 2024-03-06 is a public holiday of acme
	// WHEN: alice logs a Monday, that Wednesday, a Saturday and a February day
	// THEN: March splits into 2 workday hours and 4 holiday hours, newest first
	s := newTestServer(t)
	s.acme(t)
	rec := s.do(t, "alice", http.MethodPut, "/api/organizations/acme/holidays", HolidaysDTO{Includes: []string{"2024-03-06"}})
	require.Equal(t, http.StatusOK, rec.Code)

	for _, e := range []map[string]any{
		event("2024-03-04", 2, "deploy"),
		event("2024-03-06", 1, "holiday fix"),
		event("2024-03-09", 3, "incident"),
		event("2024-02-05", 1, "review"),
	} {
		rec := s.do(t, "alice", http.MethodPost, "/api/organizations/acme/events", e)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = s.do(t, "alice", http.MethodGet, "/api/organizations/acme/months", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	months := decodeAs[monthList](t, rec)
	assert.Equal(t, "alice", months.UID)
	require.Len(t, months.Months, 2)

	march := months.Months[0]
	assert.Equal(t, "2024-03", march.Month)
	assert.Equal(t, "March 2024", march.Label)
	assert.Equal(t, "2", march.WorkdayHours)
	assert.Equal(t, "4", march.HolidayHours)
	assert.Equal(t, "6", march.TotalHours)
	require.Len(t, march.Days, 3)
	assert.Equal(t, "2024-02", months.Months[1].Month)
}

func TestMonths_OtherMemberRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)
	rec := s.do(t, "bob", http.MethodPost, "/api/organizations/acme/events", event("2024-03-04", 1, "tickets"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "bob", http.MethodGet, "/api/organizations/acme/months?uid=alice", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, overtime.KindNotAdmin, decodeAs[overtime.Result](t, rec).Error)

	rec = s.do(t, "alice", http.MethodGet, "/api/organizations/acme/months?uid=bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[monthList](t, rec).Months, 1)

	rec = s.do(t, "alice", http.MethodGet, "/api/organizations/acme/months?uid=carol", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, overtime.KindNoMembership, decodeAs[overtime.Result](t, rec).Error)
}
