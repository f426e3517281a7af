/*
handlers.go - HTTP API handlers of the overtime tracker

PURPOSE:
  Exposes organizations, memberships, events, invitations and the report
  callables over REST. Handlers parse the request, check the caller's
  membership, delegate to the store or the report package, and serialize
  the answer.

ENDPOINTS:
  Profile:
    GET    /api/me                                  Caller's profile
    PUT    /api/me                                  Register/update profile

  Organizations:
    GET    /api/organizations                       Caller's organizations
    POST   /api/organizations                       Create (caller becomes admin)
    POST   /api/organizations/{org}/default         Make default
    PUT    /api/organizations/{org}/holidays        Replace holiday overrides (admin)
    DELETE /api/organizations/{org}/membership      Leave

  Members:
    GET    /api/organizations/{org}/users           Members with roles
    PUT    /api/organizations/{org}/users/{uid}/role  Change role (admin)
    DELETE /api/organizations/{org}/users/{uid}     Remove member (admin)
    GET|PUT /api/organizations/{org}/vacation-days  Caller's vacation days
    GET|PUT /api/organizations/{org}/illness-days   Caller's illness days

  Events, invitations, callables: see events.go, invitations.go, callables.go

AUTHORIZATION:
  Every handler takes the caller from the bearer token (auth.go) and checks
  the (uid, org) membership through MembershipCache. Handlers that change a
  membership evict it from the cache.

ERROR HANDLING:
  Failures are answered with the tagged overtime.Result body:
  - 400: no_params, invalid event, invalid role
  - 403: wrong_user, not_admin
  - 404: no organization, no user_organization, no user, unknown ids
  - 409: organization key already taken, invitation to an organization
    the caller already belongs to
  - 424: not_authorized (spreadsheet access refused)
  - 500: everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/workhours/overtime/calendar"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/report"
	"github.com/workhours/overtime/spreadsheet"
	"github.com/workhours/overtime/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Deps are the collaborators of the handlers.
type Deps struct {
	Store    *sqlite.Store
	Sheets   spreadsheet.Service
	Reports  *report.Scheduler
	Exporter *report.Exporter
	Mailer   Mailer
	Logger   *log.Logger

	// MembershipTTL bounds how long a cached membership is trusted.
	MembershipTTL time.Duration
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Sheets   spreadsheet.Service
	Reports  *report.Scheduler
	Exporter *report.Exporter
	Mailer   Mailer

	members  *MembershipCache
	validate *validator.Validate
	logger   *log.Logger
	newID    func() string
}

// NewHandler creates a new handler.
func NewHandler(d Deps) *Handler {
	if d.MembershipTTL <= 0 {
		d.MembershipTTL = 30 * time.Second
	}
	logger := d.Logger.WithPrefix("api")
	mailer := d.Mailer
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	return &Handler{
		Store:    d.Store,
		Sheets:   d.Sheets,
		Reports:  d.Reports,
		Exporter: d.Exporter,
		Mailer:   mailer,
		members:  NewMembershipCache(d.Store, 1024, d.MembershipTTL),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Members exposes the membership cache.
func (h *Handler) Members() *MembershipCache { return h.members }

// Health answers liveness probes.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// =============================================================================
// PROFILE HANDLERS
// =============================================================================

// GetMe returns the caller's profile.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	me := caller(r)
	user, err := h.Store.GetUser(r.Context(), me.UID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if user == nil {
		h.fail(w, r, overtime.NewError(overtime.KindNoUser, "", me.UID, nil))
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*user))
}

// SaveMe registers or updates the caller's profile.
func (h *Handler) SaveMe(w http.ResponseWriter, r *http.Request) {
	me := caller(r)
	var req SaveProfileRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	user := overtime.User{UID: me.UID, Email: req.Email, FirstName: req.FirstName, LastName: req.LastName}
	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

func toUserDTO(u overtime.User) UserDTO {
	return UserDTO{
		UID:         u.UID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.DisplayName(),
	}
}

// =============================================================================
// ORGANIZATION HANDLERS
// =============================================================================

// ListOrganizations returns the organizations the caller belongs to.
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)

	memberships, err := h.Store.ListUserMemberships(ctx, me.UID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]OrganizationDTO, 0, len(memberships))
	for _, m := range memberships {
		org, err := h.Store.GetOrganization(ctx, m.OrganizationKey)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if org == nil {
			continue
		}
		dto, err := toOrganizationDTO(org, m)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"organizations": dtos})
}

// CreateOrganization creates an organization. The caller becomes its admin
// and it becomes their default organization.
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	me := caller(r)
	var req CreateOrganizationRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	org := &overtime.Organization{Key: req.Key, Name: req.Name, OwnerUID: me.UID}
	owner := overtime.Membership{
		UID:             me.UID,
		OrganizationKey: req.Key,
		Role:            overtime.RoleAdmin,
		IsDefault:       true,
		VacationDays:    []string{},
		IllnessDays:     []string{},
	}
	if err := h.Store.CreateOrganization(r.Context(), org, owner); err != nil {
		h.fail(w, r, err)
		return
	}
	h.members.EvictUser(me.UID)

	dto, err := toOrganizationDTO(org, owner)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log(r).Info("organization created", "org", org.Key, "uid", me.UID)
	writeJSON(w, http.StatusCreated, dto)
}

// SetDefaultOrganization makes {org} the caller's default organization.
func (h *Handler) SetDefaultOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)
	org := chi.URLParam(r, "org")

	if _, err := h.member(ctx, me.UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Store.SetDefaultMembership(ctx, me.UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	h.members.EvictUser(me.UID)
	writeJSON(w, http.StatusOK, overtime.OK())
}

// SetHolidays replaces the holiday overrides of {org}.
func (h *Handler) SetHolidays(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org := chi.URLParam(r, "org")

	if _, err := report.Authorize(ctx, h.members, caller(r).UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	var req HolidaysDTO
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	set, err := parseHolidays(req)
	if err != nil {
		h.fail(w, r, overtime.NewError(overtime.KindNoParams, org, "holidays", err))
		return
	}
	if err := h.Store.SetHolidays(ctx, org, set); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHolidaysDTO(set))
}

// LeaveOrganization removes the caller from {org} with their events.
func (h *Handler) LeaveOrganization(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)
	org := chi.URLParam(r, "org")

	if _, err := h.member(ctx, me.UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.removeMember(ctx, me.UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overtime.OK())
}

func toOrganizationDTO(org *overtime.Organization, m overtime.Membership) (OrganizationDTO, error) {
	holidays, err := org.Holidays()
	if err != nil {
		return OrganizationDTO{}, fmt.Errorf("holidays of %s: %w", org.Key, err)
	}
	return OrganizationDTO{
		Key:            org.Key,
		Name:           org.Name,
		SpreadsheetID:  org.SpreadsheetID,
		HasSpreadsheet: org.HasSpreadsheet(),
		Holidays:       toHolidaysDTO(holidays),
		Role:           m.Role,
		IsDefault:      m.IsDefault,
		CreatedAt:      org.CreatedAt.Format(time.RFC3339),
	}, nil
}

func parseHolidays(dto HolidaysDTO) (calendar.HolidaySet, error) {
	var set calendar.HolidaySet
	for _, s := range dto.Includes {
		d, err := calendar.ParseDay(s)
		if err != nil {
			return set, err
		}
		set.Includes = append(set.Includes, d)
	}
	for _, s := range dto.Excludes {
		d, err := calendar.ParseDay(s)
		if err != nil {
			return set, err
		}
		set.Excludes = append(set.Excludes, d)
	}
	return set, nil
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListOrganizationUsers returns the members of {org} with their roles.
func (h *Handler) ListOrganizationUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org := chi.URLParam(r, "org")

	if _, err := h.member(ctx, caller(r).UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	memberships, err := h.Store.ListMemberships(ctx, org)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]MemberDTO, 0, len(memberships))
	for _, m := range memberships {
		user, err := h.Store.GetUser(ctx, m.UID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		dto := MemberDTO{UserDTO: UserDTO{UID: m.UID}, Role: m.Role, IsDefault: m.IsDefault}
		if user != nil {
			dto.UserDTO = toUserDTO(*user)
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": dtos})
}

// SetUserRole changes the role of {uid} in {org}.
func (h *Handler) SetUserRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org := chi.URLParam(r, "org")
	uid := chi.URLParam(r, "uid")

	if _, err := report.Authorize(ctx, h.members, caller(r).UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	var req SetRoleRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Store.SetRole(ctx, uid, org, req.Role); err != nil {
		h.fail(w, r, err)
		return
	}
	h.members.Evict(uid, org)
	writeJSON(w, http.StatusOK, overtime.OK())
}

// RemoveUser removes {uid} and their events from {org}.
func (h *Handler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org := chi.URLParam(r, "org")
	uid := chi.URLParam(r, "uid")

	if _, err := report.Authorize(ctx, h.members, caller(r).UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.removeMember(ctx, uid, org); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overtime.OK())
}

// removeMember deletes the membership and drops the removed events from
// the member's sheet.
func (h *Handler) removeMember(ctx context.Context, uid, org string) error {
	removed, err := h.Store.DeleteMembership(ctx, uid, org)
	if err != nil {
		return err
	}
	h.members.Evict(uid, org)
	for i := range removed {
		e := removed[i]
		h.export(ctx, report.EventChange{Organization: org, UID: uid, EventID: e.ID, Before: &e})
	}
	h.logger.Info("member removed", "org", org, "uid", uid, "events", len(removed))
	return nil
}

// GetVacationDays returns the caller's vacation days in {org}.
func (h *Handler) GetVacationDays(w http.ResponseWriter, r *http.Request) {
	h.getDays(w, r, func(m *overtime.Membership) []string { return m.VacationDays })
}

// SetVacationDays replaces the caller's vacation days in {org}.
func (h *Handler) SetVacationDays(w http.ResponseWriter, r *http.Request) {
	h.setDays(w, r, h.Store.SetVacationDays, func(m *overtime.Membership) []string { return m.VacationDays })
}

// GetIllnessDays returns the caller's illness days in {org}.
func (h *Handler) GetIllnessDays(w http.ResponseWriter, r *http.Request) {
	h.getDays(w, r, func(m *overtime.Membership) []string { return m.IllnessDays })
}

// SetIllnessDays replaces the caller's illness days in {org}.
func (h *Handler) SetIllnessDays(w http.ResponseWriter, r *http.Request) {
	h.setDays(w, r, h.Store.SetIllnessDays, func(m *overtime.Membership) []string { return m.IllnessDays })
}

func (h *Handler) getDays(w http.ResponseWriter, r *http.Request, pick func(*overtime.Membership) []string) {
	m, err := h.member(r.Context(), caller(r).UID, chi.URLParam(r, "org"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DaysDTO{Days: nonNil(pick(m))})
}

type daysSetter func(ctx context.Context, uid, org string, days []string) error

func (h *Handler) setDays(w http.ResponseWriter, r *http.Request, set daysSetter, pick func(*overtime.Membership) []string) {
	ctx := r.Context()
	me := caller(r)
	org := chi.URLParam(r, "org")

	if _, err := h.member(ctx, me.UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	var req DaysRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := set(ctx, me.UID, org, req.Days); err != nil {
		h.fail(w, r, err)
		return
	}
	h.members.Evict(me.UID, org)

	m, err := h.member(ctx, me.UID, org)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DaysDTO{Days: nonNil(pick(m))})
}

// =============================================================================
// HELPERS
// =============================================================================

// caller returns the authenticated principal. The auth middleware
// guarantees one on every /api route but /api/health.
func caller(r *http.Request) Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}

// member returns the membership of uid in org or a wrong_user error.
func (h *Handler) member(ctx context.Context, uid, org string) (*overtime.Membership, error) {
	if uid == "" || org == "" {
		return nil, overtime.NewError(overtime.KindNoParams, org, uid, nil)
	}
	m, err := h.members.GetMembership(ctx, uid, org)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, overtime.NewError(overtime.KindWrongUser, org, uid, nil)
	}
	return m, nil
}

// decode reads a JSON body into v and validates it.
func (h *Handler) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return overtime.NewError(overtime.KindNoParams, "", "", fmt.Errorf("invalid request body: %w", err))
	}
	if err := h.validate.Struct(v); err != nil {
		return overtime.NewError(overtime.KindNoParams, "", "", err)
	}
	return nil
}

// export forwards an event change to the per-user sheet. The store write
// already happened; failures are logged by the exporter.
func (h *Handler) export(ctx context.Context, change report.EventChange) {
	if h.Exporter == nil {
		return
	}
	_ = h.Exporter.HandleChange(context.WithoutCancel(ctx), change)
}

func (h *Handler) log(r *http.Request) *log.Logger {
	return log.FromContext(r.Context())
}

// statusFor maps an error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, overtime.ErrOrganizationExists), errors.Is(err, overtime.ErrAlreadyMember):
		return http.StatusConflict
	case overtime.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, overtime.ErrWrongUser), errors.Is(err, overtime.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, overtime.ErrNotAuthorized):
		return http.StatusFailedDependency
	case overtime.IsNotFound(err):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// fail answers with the tagged result of err.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log(r).Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, overtime.Fail(err))
}

// writeResult answers a callable: {success: true} or the tagged failure.
func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overtime.OK())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
