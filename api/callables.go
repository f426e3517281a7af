package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/report"
)

// =============================================================================
// CALLABLES
// =============================================================================
//
// The callables answer with the tagged result {success: true} or
// {error: kind}. Both require the caller to be an admin of the organization.
//
//   POST /api/callables/authorizeSheet        {organization, spreadsheetId}
//   POST /api/callables/scheduleEventsReport  {organization, date, prod}
//   GET  /api/organizations/{org}/report-runs?limit=

// AuthorizeSheet checks that the service account can read the spreadsheet
// and links it to the organization.
func (h *Handler) AuthorizeSheet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req AuthorizeSheetRequest
	if err := h.decode(r, &req); err != nil {
		h.writeResult(w, r, err)
		return
	}
	if _, err := report.Authorize(ctx, h.members, caller(r).UID, req.Organization); err != nil {
		h.writeResult(w, r, err)
		return
	}
	if err := report.AuthorizeSheet(ctx, h.Sheets, req.Organization, req.SpreadsheetID); err != nil {
		h.log(r).Warn("spreadsheet not authorized", "org", req.Organization, "spreadsheet", req.SpreadsheetID, "err", err)
		h.writeResult(w, r, err)
		return
	}
	if err := h.Store.SetSpreadsheetID(ctx, req.Organization, req.SpreadsheetID); err != nil {
		h.writeResult(w, r, err)
		return
	}
	h.writeResult(w, r, nil)
}

// ScheduleEventsReport renders the report of one month: enqueued when
// prod is set, inline otherwise. An enqueued report answers success as soon
// as the task is accepted.
func (h *Handler) ScheduleEventsReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)
	var req ScheduleReportRequest
	if err := h.decode(r, &req); err != nil {
		h.writeResult(w, r, err)
		return
	}
	if _, err := report.Authorize(ctx, h.members, me.UID, req.Organization); err != nil {
		h.writeResult(w, r, err)
		return
	}
	month, err := calendar.ParseMonth(req.Date)
	if err != nil {
		h.writeResult(w, r, overtime.NewError(overtime.KindNoParams, req.Organization, "date", err))
		return
	}

	runID, err := h.Reports.Schedule(ctx, report.Request{
		Organization: req.Organization,
		Month:        month,
		RequestedBy:  me.UID,
	}, req.Prod)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleReportResponse{Result: overtime.OK(), RunID: runID})
}

// ListReportRuns returns the report history of {org}, newest first.
func (h *Handler) ListReportRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org := chi.URLParam(r, "org")

	if _, err := report.Authorize(ctx, h.members, caller(r).UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.Store.ListReportRuns(ctx, org, limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ReportRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toReportRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}
