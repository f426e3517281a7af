/*
handlers_test.go - HTTP tests of the overtime API

Tests drive the full router (auth, middleware, handlers) against an
in-memory store and the fake spreadsheet service.

Tests for:
- Profile registration
- Organization create/list/default and holiday overrides
- Member roles, removal and vacation/illness days
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/report"
	"github.com/workhours/overtime/spreadsheet/spreadsheettest"
	"github.com/workhours/overtime/store/sqlite"
	"github.com/workhours/overtime/taskqueue"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const docID = "doc-1"

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendInvitation(ctx context.Context, invite Invite) error {
	return m.Called(ctx, invite).Error(0)
}

type testServer struct {
	store  *sqlite.Store
	fake   *spreadsheettest.Fake
	mailer *mockMailer
	auth   *Authenticator
	h      *Handler
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := log.New(io.Discard)
	fake := spreadsheettest.New()
	fake.AddSpreadsheet(docID)

	runner := report.NewRunner(store, fake, logger)
	queue := taskqueue.New(store, taskqueue.DefaultOptions(), logger)
	dispatcher := taskqueue.NewDispatcher(store, taskqueue.DispatcherConfig{MaxConcurrent: 2}, logger)
	scheduler := report.NewScheduler(runner, store, queue, taskqueue.DefaultOptions(), logger)
	scheduler.Register(dispatcher)

	mailer := &mockMailer{}
	h := NewHandler(Deps{
		Store:    store,
		Sheets:   fake,
		Reports:  scheduler,
		Exporter: report.NewExporter(store, fake, logger),
		Mailer:   mailer,
		Logger:   logger,
	})
	seq := 0
	h.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}

	auth := NewAuthenticator("test-secret", "overtime-test")
	return &testServer{
		store:  store,
		fake:   fake,
		mailer: mailer,
		auth:   auth,
		h:      h,
		router: NewRouter(h, auth, RouterConfig{AllowedOrigins: []string{"*"}, EnableScenarios: true}),
	}
}

// do sends a request as uid (anonymous when empty). The token carries
// uid@acme.test as email.
func (s *testServer) do(t *testing.T, uid, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		token, err := s.auth.Issue(uid, uid+"@acme.test", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) user(t *testing.T, uid, first, last string) {
	t.Helper()
	rec := s.do(t, uid, http.MethodPut, "/api/me", SaveProfileRequest{Email: uid + "@acme.test", FirstName: first, LastName: last})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

// acme creates Acme with alice as admin and bob as user, and links the
// spreadsheet.
func (s *testServer) acme(t *testing.T) {
	t.Helper()
	s.user(t, "alice", "Alice", "Admin")
	s.user(t, "bob", "Bob", "User")
	rec := s.do(t, "alice", http.MethodPost, "/api/organizations", CreateOrganizationRequest{Key: "acme", Name: "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NoError(t, s.store.SaveMembership(context.Background(), overtime.Membership{
		UID: "bob", OrganizationKey: "acme", Role: overtime.RoleUser, IsDefault: true,
	}))
	require.NoError(t, s.store.SetSpreadsheetID(context.Background(), "acme", docID))
}

// =============================================================================
// PROFILE
// =============================================================================

func TestHealth_IsPublic(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "", http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProfile_SaveAndGet(t *testing.T) {
	// GIVEN: A caller without a profile
	// WHEN: They fetch, register, then fetch again
	// THEN: The first fetch is "no user", the second returns the profile
	s := newTestServer(t)

	rec := s.do(t, "alice", http.MethodGet, "/api/me", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, overtime.KindNoUser, decodeAs[overtime.Result](t, rec).Error)

	s.user(t, "alice", "Alice", "Admin")

	rec = s.do(t, "alice", http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decodeAs[UserDTO](t, rec)
	assert.Equal(t, "alice@acme.test", me.Email)
	assert.Equal(t, "Alice Admin", me.DisplayName)
}

func TestProfile_InvalidEmail(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, "alice", http.MethodPut, "/api/me", SaveProfileRequest{Email: "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, overtime.KindNoParams, decodeAs[overtime.Result](t, rec).Error)
}

// =============================================================================
// ORGANIZATIONS
// =============================================================================

type orgList struct {
	Organizations []OrganizationDTO `json:"organizations"`
}

func TestOrganizations_CreateListDefault(t *testing.T) {
	// GIVEN: alice creates acme then globex
	// WHEN: She makes acme her default again
	// THEN: Exactly one organization is default and duplicates are refused
	s := newTestServer(t)
	s.user(t, "alice", "Alice", "Admin")

	rec := s.do(t, "alice", http.MethodPost, "/api/organizations", CreateOrganizationRequest{Key: "acme", Name: "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeAs[OrganizationDTO](t, rec)
	assert.Equal(t, overtime.RoleAdmin, created.Role)
	assert.True(t, created.IsDefault)
	assert.False(t, created.HasSpreadsheet)

	rec = s.do(t, "alice", http.MethodPost, "/api/organizations", CreateOrganizationRequest{Key: "acme", Name: "Other"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, "alice", http.MethodPost, "/api/organizations", CreateOrganizationRequest{Key: "globex", Name: "Globex"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, "alice", http.MethodPost, "/api/organizations/acme/default", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, "alice", http.MethodGet, "/api/organizations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeAs[orgList](t, rec)
	require.Len(t, list.Organizations, 2)
	defaults := map[string]bool{}
	for _, o := range list.Organizations {
		defaults[o.Key] = o.IsDefault
	}
	assert.Equal(t, map[string]bool{"acme": true, "globex": false}, defaults)
}

func TestOrganizations_NonMemberCannotSetDefault(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)

	rec := s.do(t, "mallory", http.MethodPost, "/api/organizations/acme/default", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, overtime.KindWrongUser, decodeAs[overtime.Result](t, rec).Error)
}

func TestOrganizations_SetHolidaysRequiresAdmin(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)
	holidays := HolidaysDTO{Includes: []string{"2024-03-06"}, Excludes: []string{"2024-03-09"}}

	rec := s.do(t, "bob", http.MethodPut, "/api/organizations/acme/holidays", holidays)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, overtime.KindNotAdmin, decodeAs[overtime.Result](t, rec).Error)

	rec = s.do(t, "alice", http.MethodPut, "/api/organizations/acme/holidays", holidays)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, holidays, decodeAs[HolidaysDTO](t, rec))

	rec = s.do(t, "alice", http.MethodPut, "/api/organizations/acme/holidays", HolidaysDTO{Includes: []string{"March 6"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// MEMBERS
// =============================================================================

func TestMembers_ListAndSetRole(t *testing.T) {
	// GIVEN: bob is a user of acme
	// WHEN: alice promotes him
	// THEN: bob can now change the holidays
	s := newTestServer(t)
	s.acme(t)

	rec := s.do(t, "bob", http.MethodGet, "/api/organizations/acme/users", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decodeAs[struct {
		Users []MemberDTO `json:"users"`
	}](t, rec).Users
	assert.Len(t, users, 2)

	// bob's membership is now cached as a user
	rec = s.do(t, "bob", http.MethodPut, "/api/organizations/acme/holidays", HolidaysDTO{})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, "bob", http.MethodPut, "/api/organizations/acme/users/bob/role", SetRoleRequest{Role: overtime.RoleAdmin})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, "alice", http.MethodPut, "/api/organizations/acme/users/bob/role", SetRoleRequest{Role: "owner"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "alice", http.MethodPut, "/api/organizations/acme/users/bob/role", SetRoleRequest{Role: overtime.RoleAdmin})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, "bob", http.MethodPut, "/api/organizations/acme/holidays", HolidaysDTO{})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestMembers_RemoveDropsEventsFromSheet(t *testing.T) {
	// GIVEN: bob logged two events, exported to his sheet
	// WHEN: alice removes bob from acme
	// THEN: His rows are gone and he can no longer read the organization
	s := newTestServer(t)
	s.acme(t)

	for _, date := range []string{"2024-03-04", "2024-03-05"} {
		rec := s.do(t, "bob", http.MethodPost, "/api/organizations/acme/events", map[string]any{
			"date": date, "hours": 1, "reason": "support", "work_done": "tickets",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	sheet, ok := s.fake.Sheet(docID, "bob@acme.test")
	require.True(t, ok)
	require.Equal(t, 3, sheet.UsedRows())

	rec := s.do(t, "alice", http.MethodDelete, "/api/organizations/acme/users/bob", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sheet, _ = s.fake.Sheet(docID, "bob@acme.test")
	assert.Equal(t, 1, sheet.UsedRows(), "only the header remains")

	rec = s.do(t, "bob", http.MethodGet, "/api/organizations/acme/events", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMembers_LeaveOrganization(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)

	rec := s.do(t, "bob", http.MethodDelete, "/api/organizations/acme/membership", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, "bob", http.MethodGet, "/api/organizations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeAs[orgList](t, rec).Organizations)
}

func TestMembers_VacationAndIllnessDays(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)

	rec := s.do(t, "bob", http.MethodGet, "/api/organizations/acme/vacation-days", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DaysDTO{Days: []string{}}, decodeAs[DaysDTO](t, rec))

	rec = s.do(t, "bob", http.MethodPut, "/api/organizations/acme/vacation-days", DaysRequest{Days: []string{"2024-03-11", "2024-03-12"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"2024-03-11", "2024-03-12"}, decodeAs[DaysDTO](t, rec).Days)

	rec = s.do(t, "bob", http.MethodPut, "/api/organizations/acme/illness-days", DaysRequest{Days: []string{"12/03/2024"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, "bob", http.MethodPut, "/api/organizations/acme/illness-days", DaysRequest{Days: []string{"2024-03-21"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "bob", http.MethodGet, "/api/organizations/acme/illness-days", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"2024-03-21"}, decodeAs[DaysDTO](t, rec).Days)
}
