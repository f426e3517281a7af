/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates one organization owned by the
	caller, a few members, their vacation/illness days and a month of
	overtime events that exercises a specific classification rule.

AVAILABLE SCENARIOS:

	small-team:       Weekday and weekend overtime, one public holiday,
	                  one member without events
	special-days:     Overtime on vacation and illness days
	working-weekend:  A Saturday excluded from the holidays (workday)

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Restore the caller's profile
 3. Create the organization with the caller as admin
 4. Create members and their special days
 5. Add events in the requested month (default: previous month)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-team", "month": "2024-03"}

NOTE:

	Scenarios reset the database. The routes are only mounted when
	OVERTIME_HTTP_ENABLE_SCENARIOS is set.

SEE ALSO:
  - server.go: RouterConfig.EnableScenarios
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-team",
		Name:        "Small Team",
		Description: "Weekday and weekend overtime, one public holiday, a member without events",
	},
	{
		ID:          "special-days",
		Name:        "Vacation & Illness",
		Description: "Overtime logged on vacation and illness days lands in the holiday column",
	},
	{
		ID:          "working-weekend",
		Name:        "Working Weekend",
		Description: "A Saturday excluded from the holidays counts as a workday",
	},
}

type scenarioLoader func(s *seed) error

var scenarioLoaders = map[string]scenarioLoader{
	"small-team":      loadSmallTeamScenario,
	"special-days":    loadSpecialDaysScenario,
	"working-weekend": loadWorkingWeekendScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario resets the database and loads a predefined scenario owned
// by the caller.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)

	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		h.fail(w, r, overtime.NewError(overtime.KindNoParams, "", req.ScenarioID, fmt.Errorf("unknown scenario")))
		return
	}
	month := calendar.DayOf(time.Now()).MonthOf().Previous()
	if req.Month != "" {
		m, err := calendar.ParseMonth(req.Month)
		if err != nil {
			h.fail(w, r, overtime.NewError(overtime.KindNoParams, "", "month", err))
			return
		}
		month = m
	}

	owner, err := h.Store.GetUser(ctx, me.UID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if owner == nil {
		email := me.Email
		if email == "" {
			email = me.UID + "@demo.test"
		}
		owner = &overtime.User{UID: me.UID, Email: email, FirstName: "Demo", LastName: "Admin"}
	}

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.members.Purge()
	if err := h.Store.SaveUser(ctx, *owner); err != nil {
		h.fail(w, r, err)
		return
	}

	s := &seed{ctx: ctx, h: h, owner: *owner, month: month}
	if err := load(s); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.log(r).Info("scenario loaded", "scenario", req.ScenarioID, "org", s.org, "month", month.String())

	writeJSON(w, http.StatusOK, map[string]string{
		"status":       "loaded",
		"scenario":     req.ScenarioID,
		"organization": s.org,
		"month":        month.String(),
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadSmallTeamScenario(s *seed) error {
	holiday := s.weekday(2, time.Wednesday)
	if err := s.organization("acme", "Acme Corp", calendar.HolidaySet{Includes: []calendar.Day{holiday}}); err != nil {
		return err
	}
	bob := overtime.User{UID: "demo-bob", Email: "bob@acme.test", FirstName: "Bob", LastName: "Builder"}
	carol := overtime.User{UID: "demo-carol", Email: "carol@acme.test", FirstName: "Carol", LastName: "Quiet"}
	if err := s.member(bob, overtime.RoleUser, nil, nil); err != nil {
		return err
	}
	if err := s.member(carol, overtime.RoleUser, nil, nil); err != nil {
		return err
	}

	return s.events(
		s.owner.UID, s.weekday(1, time.Monday), "2", "release", "Deploy 4.2 to production",
		s.owner.UID, s.weekday(1, time.Saturday), "3.5", "incident", "Database failover",
		bob.UID, s.weekday(1, time.Tuesday), "1", "review", "Code review backlog",
		bob.UID, s.weekday(1, time.Tuesday), "0.5", "review", "Security patch review",
		bob.UID, holiday, "4", "migration", "Storage migration on the public holiday",
	)
}

func loadSpecialDaysScenario(s *seed) error {
	if err := s.organization("globex", "Globex", calendar.HolidaySet{}); err != nil {
		return err
	}
	vacation := s.weekday(2, time.Monday)
	illness := s.weekday(3, time.Thursday)
	dana := overtime.User{UID: "demo-dana", Email: "dana@globex.test", FirstName: "Dana", LastName: "Oncall"}
	if err := s.member(dana, overtime.RoleUser, []string{vacation.String()}, []string{illness.String()}); err != nil {
		return err
	}

	return s.events(
		dana.UID, s.weekday(1, time.Wednesday), "1.5", "support", "Customer escalation",
		dana.UID, vacation, "2", "incident", "Paged during vacation",
		dana.UID, illness, "0.75", "support", "Handover while sick",
		s.owner.UID, s.weekday(2, time.Friday), "1", "planning", "Quarter planning",
	)
}

func loadWorkingWeekendScenario(s *seed) error {
	workingSaturday := s.weekday(2, time.Saturday)
	if err := s.organization("initech", "Initech", calendar.HolidaySet{Excludes: []calendar.Day{workingSaturday}}); err != nil {
		return err
	}
	erin := overtime.User{UID: "demo-erin", Email: "erin@initech.test", FirstName: "Erin", LastName: "Weekend"}
	if err := s.member(erin, overtime.RoleAdmin, nil, nil); err != nil {
		return err
	}

	return s.events(
		erin.UID, workingSaturday, "6", "release", "Planned Saturday release",
		erin.UID, s.weekday(3, time.Sunday), "2", "incident", "Rollback after the release",
		s.owner.UID, workingSaturday, "4", "release", "Release coordination",
	)
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

type seed struct {
	ctx   context.Context
	h     *Handler
	owner overtime.User
	month calendar.Month
	org   string
	n     int
}

func (s *seed) organization(key, name string, holidays calendar.HolidaySet) error {
	encoded, err := holidays.Encode()
	if err != nil {
		return err
	}
	s.org = key
	org := &overtime.Organization{Key: key, Name: name, OwnerUID: s.owner.UID, HolidaysJSON: encoded}
	return s.h.Store.CreateOrganization(s.ctx, org, overtime.Membership{
		UID:             s.owner.UID,
		OrganizationKey: key,
		Role:            overtime.RoleAdmin,
		IsDefault:       true,
		VacationDays:    []string{},
		IllnessDays:     []string{},
	})
}

func (s *seed) member(u overtime.User, role overtime.Role, vacation, illness []string) error {
	if err := s.h.Store.SaveUser(s.ctx, u); err != nil {
		return err
	}
	return s.h.Store.SaveMembership(s.ctx, overtime.Membership{
		UID:             u.UID,
		OrganizationKey: s.org,
		Role:            role,
		IsDefault:       true,
		VacationDays:    nonNil(vacation),
		IllnessDays:     nonNil(illness),
	})
}

// events creates events from groups of (uid, day, hours, reason, work done).
func (s *seed) events(rows ...any) error {
	for i := 0; i+4 < len(rows); i += 5 {
		s.n++
		e := overtime.Event{
			ID:              fmt.Sprintf("%s-evt-%02d", s.org, s.n),
			OrganizationKey: s.org,
			UID:             rows[i].(string),
			Date:            rows[i+1].(calendar.Day),
			Hours:           decimal.RequireFromString(rows[i+2].(string)),
			Reason:          rows[i+3].(string),
			WorkDone:        rows[i+4].(string),
		}
		if err := s.h.Store.CreateEvent(s.ctx, e); err != nil {
			return fmt.Errorf("event %s: %w", e.ID, err)
		}
	}
	return nil
}

// weekday returns the nth (1-based) wd of the scenario month.
func (s *seed) weekday(n int, wd time.Weekday) calendar.Day {
	d := s.month.Start()
	for d.Weekday() != wd {
		d = d.AddDays(1)
	}
	return d.AddDays(7 * (n - 1))
}
