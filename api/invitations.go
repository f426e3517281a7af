package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/workhours/overtime/overtime"
	"github.com/workhours/overtime/report"
)

// =============================================================================
// INVITATION HANDLERS
// =============================================================================
//
//   GET    /api/organizations/{org}/invitations       (admin)
//   POST   /api/organizations/{org}/invitations       (admin)
//   DELETE /api/organizations/{org}/invitations/{id}  (admin)
//   GET    /api/invitations                           addressed to the caller
//   POST   /api/invitations/{id}/accept

// ListOrganizationInvitations returns the pending invitations of {org}.
func (h *Handler) ListOrganizationInvitations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org := chi.URLParam(r, "org")

	if _, err := report.Authorize(ctx, h.members, caller(r).UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	invitations, err := h.Store.ListInvitations(ctx, org)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": toInvitationDTOs(invitations)})
}

// CreateInvitation invites an email address into {org} and mails it.
// A mail failure is logged; the invitation stays valid.
func (h *Handler) CreateInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)
	orgKey := chi.URLParam(r, "org")

	if _, err := report.Authorize(ctx, h.members, me.UID, orgKey); err != nil {
		h.fail(w, r, err)
		return
	}
	var req CreateInvitationRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
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

	inv := overtime.Invitation{
		ID:              h.newID(),
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		Role:            req.Role,
		OrganizationKey: orgKey,
	}
	if err := h.Store.CreateInvitation(ctx, inv); err != nil {
		h.fail(w, r, err)
		return
	}
	stored, err := h.Store.GetInvitation(ctx, inv.ID)
	if err != nil || stored == nil {
		stored = &inv
	}

	invitedBy := me.Email
	if user, err := h.Store.GetUser(ctx, me.UID); err == nil && user != nil {
		invitedBy = user.DisplayName()
	}
	if err := h.Mailer.SendInvitation(ctx, Invite{Invitation: *stored, Organization: org.Name, InvitedBy: invitedBy}); err != nil {
		h.log(r).Warn("invitation mail failed", "org", orgKey, "invitation", inv.ID, "err", err)
	}
	writeJSON(w, http.StatusCreated, toInvitationDTO(*stored))
}

// DeleteInvitation withdraws an invitation of {org}.
func (h *Handler) DeleteInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	org := chi.URLParam(r, "org")
	id := chi.URLParam(r, "id")

	if _, err := report.Authorize(ctx, h.members, caller(r).UID, org); err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.Store.GetInvitation(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if inv == nil || inv.OrganizationKey != org {
		h.fail(w, r, overtime.ErrInvitationNotFound)
		return
	}
	if err := h.Store.DeleteInvitation(ctx, id); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overtime.OK())
}

// ListMyInvitations returns the invitations addressed to the caller.
func (h *Handler) ListMyInvitations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email, err := h.callerEmail(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	invitations, err := h.Store.ListInvitationsForEmail(ctx, email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": toInvitationDTOs(invitations)})
}

// AcceptInvitation turns an invitation addressed to the caller into a
// membership, which becomes the caller's default organization.
func (h *Handler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	me := caller(r)
	id := chi.URLParam(r, "id")

	email, err := h.callerEmail(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	inv, err := h.Store.GetInvitation(ctx, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if inv == nil {
		h.fail(w, r, overtime.ErrInvitationNotFound)
		return
	}
	if !strings.EqualFold(inv.Email, email) {
		h.fail(w, r, overtime.NewError(overtime.KindWrongUser, inv.OrganizationKey, me.UID, nil))
		return
	}
	m, err := h.Store.AcceptInvitation(ctx, id, me.UID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.members.EvictUser(me.UID)
	h.log(r).Info("invitation accepted", "org", m.OrganizationKey, "uid", me.UID, "role", m.Role)
	writeJSON(w, http.StatusOK, map[string]any{
		"organization": m.OrganizationKey,
		"role":         m.Role,
		"is_default":   m.IsDefault,
	})
}

// callerEmail prefers the registered profile over the token claim.
func (h *Handler) callerEmail(r *http.Request) (string, error) {
	me := caller(r)
	user, err := h.Store.GetUser(r.Context(), me.UID)
	if err != nil {
		return "", err
	}
	if user != nil && user.Email != "" {
		return user.Email, nil
	}
	if me.Email != "" {
		return me.Email, nil
	}
	return "", overtime.NewError(overtime.KindNoUser, "", me.UID, nil)
}

func toInvitationDTOs(invitations []overtime.Invitation) []InvitationDTO {
	dtos := make([]InvitationDTO, 0, len(invitations))
	for _, inv := range invitations {
		dtos = append(dtos, toInvitationDTO(inv))
	}
	return dtos
}
