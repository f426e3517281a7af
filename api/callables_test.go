package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workhours/overtime/overtime"
)

type runList struct {
	Runs []ReportRunDTO `json:"runs"`
}

// =============================================================================
// authorizeSheet
// =============================================================================

func TestAuthorizeSheet(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)
	s.fake.AddSpreadsheet("doc-2")
	s.fake.AddSpreadsheet("doc-locked")
	s.fake.Deny("doc-locked")

	tests := []struct {
		name   string
		uid    string
		body   any
		status int
		kind   overtime.ErrorKind
	}{
		{"admin links a readable spreadsheet", "alice", AuthorizeSheetRequest{Organization: "acme", SpreadsheetID: "doc-2"}, http.StatusOK, ""},
		{"access refused", "alice", AuthorizeSheetRequest{Organization: "acme", SpreadsheetID: "doc-locked"}, http.StatusFailedDependency, overtime.KindNotAuthorized},
		{"non admin", "bob", AuthorizeSheetRequest{Organization: "acme", SpreadsheetID: "doc-2"}, http.StatusForbidden, overtime.KindNotAdmin},
		{"non member", "mallory", AuthorizeSheetRequest{Organization: "acme", SpreadsheetID: "doc-2"}, http.StatusForbidden, overtime.KindWrongUser},
		{"missing spreadsheet id", "alice", map[string]string{"organization": "acme"}, http.StatusBadRequest, overtime.KindNoParams},
		{"non member without spreadsheet id", "mallory", map[string]string{"organization": "acme"}, http.StatusForbidden, overtime.KindWrongUser},
		{"non admin without spreadsheet id", "bob", map[string]string{"organization": "acme"}, http.StatusForbidden, overtime.KindNotAdmin},
		{"missing organization", "alice", map[string]string{"spreadsheetId": "doc-2"}, http.StatusBadRequest, overtime.KindNoParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.uid, http.MethodPost, "/api/callables/authorizeSheet", tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			res := decodeAs[overtime.Result](t, rec)
			assert.Equal(t, tt.kind, res.Error)
			assert.Equal(t, tt.kind == "", res.Success)
		})
	}

	org, err := s.store.GetOrganization(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "doc-2", org.SpreadsheetID, "only the successful call links")
}

// =============================================================================
// scheduleEventsReport
// =============================================================================

func TestScheduleEventsReport_Inline(t *testing.T) {
	// GIVEN: alice logged March overtime
	// WHEN: She asks for the March report without prod
	// THEN: The report sheet is rendered before the answer and the run is recorded
	s := newTestServer(t)
	s.acme(t)
	rec := s.do(t, "alice", http.MethodPost, "/api/organizations/acme/events", event("2024-03-04", 2, "deploy"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "alice", http.MethodPost, "/api/callables/scheduleEventsReport", ScheduleReportRequest{Organization: "acme", Date: "2024-03"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeAs[ScheduleReportResponse](t, rec)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.RunID)
	assert.Contains(t, s.fake.Titles(docID), "Report for Acme")

	rec = s.do(t, "alice", http.MethodGet, "/api/organizations/acme/report-runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decodeAs[runList](t, rec).Runs
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, overtime.RunInline, runs[0].Mode)
	assert.Equal(t, overtime.RunSucceeded, runs[0].Status)
	assert.Equal(t, "2024-03", runs[0].Month)
	assert.Equal(t, "alice", runs[0].RequestedBy)
}

func TestScheduleEventsReport_QueuedAnswersOnAcceptance(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)

	rec := s.do(t, "alice", http.MethodPost, "/api/callables/scheduleEventsReport", ScheduleReportRequest{Organization: "acme", Date: "2024-03", Prod: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeAs[ScheduleReportResponse](t, rec)
	assert.True(t, res.Success)
	require.NotEmpty(t, res.RunID)
	assert.NotContains(t, s.fake.Titles(docID), "Report for Acme", "nothing rendered yet")

	rec = s.do(t, "alice", http.MethodGet, "/api/organizations/acme/report-runs?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decodeAs[runList](t, rec).Runs
	require.Len(t, runs, 1)
	assert.Equal(t, overtime.RunQueued, runs[0].Mode)
	assert.Equal(t, overtime.RunEnqueued, runs[0].Status)
}

func TestScheduleEventsReport_Rejections(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)

	rec := s.do(t, "bob", http.MethodPost, "/api/callables/scheduleEventsReport", ScheduleReportRequest{Organization: "acme", Date: "2024-03"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, overtime.KindNotAdmin, decodeAs[overtime.Result](t, rec).Error)

	rec = s.do(t, "alice", http.MethodPost, "/api/callables/scheduleEventsReport", ScheduleReportRequest{Organization: "acme", Date: "March"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, overtime.KindNoParams, decodeAs[overtime.Result](t, rec).Error)

	rec = s.do(t, "bob", http.MethodGet, "/api/organizations/acme/report-runs", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestScheduleEventsReport_NoSpreadsheet(t *testing.T) {
	s := newTestServer(t)
	s.user(t, "alice", "Alice", "Admin")
	rec := s.do(t, "alice", http.MethodPost, "/api/organizations", CreateOrganizationRequest{Key: "solo", Name: "Solo"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "alice", http.MethodPost, "/api/callables/scheduleEventsReport", ScheduleReportRequest{Organization: "solo", Date: "2024-03"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, overtime.KindNoSpreadsheetID, decodeAs[overtime.Result](t, rec).Error)
}
