package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/workhours/overtime/overtime"
)

type invitationList struct {
	Invitations []InvitationDTO `json:"invitations"`
}

func TestInvitations_CreateMailAndAccept(t *testing.T) {
	// GIVEN: alice invites Dave@Acme.test as a user
	// WHEN: carol, then dave, try to accept
	// THEN: The mail names acme and alice, carol is refused and dave joins
	s := newTestServer(t)
	s.acme(t)
	s.mailer.On("SendInvitation", mock.Anything, mock.MatchedBy(func(i Invite) bool {
		return i.Invitation.Email == "dave@acme.test" && i.Organization == "Acme" && i.InvitedBy == "Alice Admin"
	})).Return(nil).Once()

	rec := s.do(t, "alice", http.MethodPost, "/api/organizations/acme/invitations", CreateInvitationRequest{Email: "Dave@Acme.test", Role: overtime.RoleUser})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decodeAs[InvitationDTO](t, rec)
	assert.Equal(t, "dave@acme.test", inv.Email)
	assert.Equal(t, "acme", inv.Organization)
	s.mailer.AssertExpectations(t)

	rec = s.do(t, "dave", http.MethodGet, "/api/invitations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeAs[invitationList](t, rec).Invitations, 1)

	rec = s.do(t, "carol", http.MethodPost, "/api/invitations/"+inv.ID+"/accept", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	s.user(t, "dave", "Dave", "New")
	rec = s.do(t, "dave", http.MethodPost, "/api/invitations/"+inv.ID+"/accept", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, "dave", http.MethodGet, "/api/organizations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	orgs := decodeAs[orgList](t, rec).Organizations
	require.Len(t, orgs, 1)
	assert.Equal(t, "acme", orgs[0].Key)
	assert.Equal(t, overtime.RoleUser, orgs[0].Role)

	rec = s.do(t, "alice", http.MethodGet, "/api/organizations/acme/invitations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeAs[invitationList](t, rec).Invitations, "accepted invitations are consumed")
}

func TestInvitations_ExistingMemberCannotAccept(t *testing.T) {
	// GIVEN: alice administers acme with a vacation day and holds a user invitation to acme
	// WHEN: She accepts it
	// THEN: 409, she is still admin, her vacation day is kept
	s := newTestServer(t)
	s.acme(t)
	s.mailer.On("SendInvitation", mock.Anything, mock.Anything).Return(nil)
	require.NoError(t, s.store.SetVacationDays(context.Background(), "alice", "acme", []string{"2024-03-05"}))

	rec := s.do(t, "alice", http.MethodPost, "/api/organizations/acme/invitations", CreateInvitationRequest{Email: "alice@acme.test", Role: overtime.RoleUser})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decodeAs[InvitationDTO](t, rec)

	rec = s.do(t, "alice", http.MethodPost, "/api/invitations/"+inv.ID+"/accept", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	m, err := s.store.GetMembership(context.Background(), "alice", "acme")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, overtime.RoleAdmin, m.Role)
	assert.Equal(t, []string{"2024-03-05"}, m.VacationDays)

	rec = s.do(t, "alice", http.MethodPut, "/api/organizations/acme/holidays", HolidaysDTO{})
	assert.Equal(t, http.StatusOK, rec.Code, "still an admin")
}

func TestInvitations_MailFailureKeepsInvitation(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)
	s.mailer.On("SendInvitation", mock.Anything, mock.Anything).Return(errors.New("mail relay down")).Once()

	rec := s.do(t, "alice", http.MethodPost, "/api/organizations/acme/invitations", CreateInvitationRequest{Email: "erin@acme.test", Role: overtime.RoleAdmin})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, "alice", http.MethodGet, "/api/organizations/acme/invitations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[invitationList](t, rec).Invitations, 1)
	s.mailer.AssertExpectations(t)
}

func TestInvitations_AdminOnly(t *testing.T) {
	s := newTestServer(t)
	s.acme(t)
	s.mailer.On("SendInvitation", mock.Anything, mock.Anything).Return(nil)

	rec := s.do(t, "bob", http.MethodPost, "/api/organizations/acme/invitations", CreateInvitationRequest{Email: "erin@acme.test", Role: overtime.RoleUser})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	s.mailer.AssertNotCalled(t, "SendInvitation", mock.Anything, mock.Anything)

	rec = s.do(t, "alice", http.MethodPost, "/api/organizations/acme/invitations", CreateInvitationRequest{Email: "erin@acme.test", Role: overtime.RoleUser})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeAs[InvitationDTO](t, rec).ID

	rec = s.do(t, "bob", http.MethodDelete, "/api/organizations/acme/invitations/"+id, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, "alice", http.MethodDelete, "/api/organizations/acme/invitations/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, "alice", http.MethodDelete, "/api/organizations/acme/invitations/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
