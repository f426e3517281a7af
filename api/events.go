package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/report"
)

// =============================================================================
// EVENT HANDLERS
// =============================================================================
//
//   GET    /api/organizations/{org}/events?month=YYYY-MM
//   POST   /api/organizations/{org}/events
//   GET    /api/organizations/{org}/events/{id}
//   PUT    /api/organizations/{org}/events/{id}
//   DELETE /api/organizations/{org}/events/{id}
//   GET    /api/organizations/{org}/months?uid=
//
// Events always belong to the caller. Every write is forwarded to the
// caller's sheet after the store commits.

// ListEvents returns the caller's events, optionally limited to one month.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)
	org := chi.URLParam(r, "org")

	if _, err := h.member(ctx, me.UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	var from, to calendar.Day
	if raw := r.URL.Query().Get("month"); raw != "" {
		month, err := calendar.ParseMonth(raw)
		if err != nil {
			h.fail(w, r, overtime.NewError(overtime.KindNoParams, org, "month", err))
			return
		}
		from, to = month.Start(), month.End()
	}
	events, err := h.Store.ListEvents(ctx, org, me.UID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]EventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, toEventDTO(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": dtos})
}

// GetEvent returns one of the caller's events.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)
	org := chi.URLParam(r, "org")

	if _, err := h.member(ctx, me.UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := h.loadEvent(ctx, org, me.UID, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(*e))
}

// CreateEvent records an overtime entry for the caller.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)
	org := chi.URLParam(r, "org")

	if _, err := h.member(ctx, me.UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	var req EventRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := eventFrom(req, h.newID(), org, me.UID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Store.CreateEvent(ctx, e); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.loadEvent(ctx, org, me.UID, e.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.export(ctx, report.EventChange{Organization: org, UID: me.UID, EventID: e.ID, After: created})
	writeJSON(w, http.StatusCreated, toEventDTO(*created))
}

// UpdateEvent replaces one of the caller's events.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)
	org := chi.URLParam(r, "org")
	id := chi.URLParam(r, "id")

	if _, err := h.member(ctx, me.UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	var req EventRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	before, err := h.loadEvent(ctx, org, me.UID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	e, err := eventFrom(req, id, org, me.UID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Store.UpdateEvent(ctx, e); err != nil {
		h.fail(w, r, err)
		return
	}
	after, err := h.loadEvent(ctx, org, me.UID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.export(ctx, report.EventChange{Organization: org, UID: me.UID, EventID: id, Before: before, After: after})
	writeJSON(w, http.StatusOK, toEventDTO(*after))
}

// DeleteEvent removes one of the caller's events.
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)
	org := chi.URLParam(r, "org")
	id := chi.URLParam(r, "id")

	if _, err := h.member(ctx, me.UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	before, err := h.loadEvent(ctx, org, me.UID, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Store.DeleteEvent(ctx, org, me.UID, id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.export(ctx, report.EventChange{Organization: org, UID: me.UID, EventID: id, Before: before})
	writeJSON(w, http.StatusOK, overtime.OK())
}

func (h *Handler) loadEvent(ctx context.Context, org, uid, id string) (*overtime.Event, error) {
	e, err := h.Store.GetEvent(ctx, org, uid, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, overtime.ErrEventNotFound
	}
	return e, nil
}

func eventFrom(req EventRequest, id, org, uid string) (overtime.Event, error) {
	date, err := calendar.ParseDay(req.Date)
	if err != nil {
		return overtime.Event{}, overtime.NewError(overtime.KindNoParams, org, "date", err)
	}
	e := overtime.Event{
		ID:              id,
		OrganizationKey: org,
		UID:             uid,
		Date:            date,
		Hours:           req.Hours,
		Reason:          req.Reason,
		WorkDone:        req.WorkDone,
	}
	return e, e.Validate()
}

// =============================================================================
// DASHBOARD
// =============================================================================

// ListMonths returns the month summaries of ?uid (default: the caller),
// most recent first. Reading another member's months requires admin.
func (h *Handler) ListMonths(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)
	orgKey := chi.URLParam(r, "org")
	uid := r.URL.Query().Get("uid")
	if uid == "" {
		uid = me.UID
	}

	self, err := h.member(ctx, me.UID, orgKey)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	target := self
	if uid != me.UID {
		if !self.IsAdmin() {
			h.fail(w, r, overtime.NewError(overtime.KindNotAdmin, orgKey, me.UID, nil))
			return
		}
		target, err = h.members.GetMembership(ctx, uid, orgKey)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if target == nil {
			h.fail(w, r, overtime.NewError(overtime.KindNoMembership, orgKey, uid, nil))
			return
		}
	}

	org, err := h.Store.GetOrganization(ctx, orgKey)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if org == nil {
		h.fail(w, r, overtime.NewError(overtime.KindNoOrganization, orgKey, "", nil))
		return
	}
	holidays, err := org.Holidays()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	vacation, illness, err := target.SpecialDays()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	events, err := h.Store.ListEvents(ctx, orgKey, uid, calendar.Day{}, calendar.Day{})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	summaries := overtime.AggregateMonths(events, holidays, vacation, illness)
	dtos := make([]MonthDTO, 0, len(summaries))
	for _, s := range summaries {
		dtos = append(dtos, toMonthDTO(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"uid": uid, "months": dtos})
}
