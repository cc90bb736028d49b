package api

import (
	"net/http"

	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/httputil"
	"github.com/platinummonkey/ledgerlock/pkg/middleware"
)

type createInvitationRequest struct {
	Email         string    `json:"email"`
	Role          auth.Role `json:"role"`
	WrappedOrgKey string    `json:"wrapped_org_key"`
	Message       string    `json:"message"`
}

// createInvitation handles POST /api/v1/organizations/{id}/invitations.
// The inviter wraps the organization key under the invitee's public key up
// front, so acceptance needs no further action from existing members.
func (s *Server) createInvitation(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req createInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	inv, err := s.orgs.CreateInvitation(r.Context(), user, orgID, req.Email, req.Role, req.WrappedOrgKey, req.Message, middleware.RequestContext(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, inv)
}

// listOrgInvitations handles GET /api/v1/organizations/{id}/invitations
func (s *Server) listOrgInvitations(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	list, err := s.orgs.ListInvitationsForOrg(r.Context(), user, orgID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"invitations": list})
}

// cancelInvitation handles DELETE /api/v1/organizations/{id}/invitations/{invitationId}
func (s *Server) cancelInvitation(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	invitationID, ok := httputil.ParsePathUUIDOrError(w, r, "invitationId")
	if !ok {
		return
	}

	if err := s.orgs.CancelInvitation(r.Context(), user, orgID, invitationID, middleware.RequestContext(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// listMyInvitations handles GET /api/v1/invitations, returning pending
// invitations addressed to the authenticated user's email.
func (s *Server) listMyInvitations(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)

	list, err := s.orgs.ListInvitationsForEmail(r.Context(), user.Email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"invitations": list})
}

// verifyInvitation handles GET /api/v1/invitations/token/{token}. Public:
// the invitee may not have an account yet, and the token itself is the
// capability being checked.
func (s *Server) verifyInvitation(w http.ResponseWriter, r *http.Request) {
	token, ok := httputil.ParsePathStringOrError(w, r, "token")
	if !ok {
		return
	}

	inv, err := s.orgs.VerifyToken(r.Context(), token)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

type acceptInvitationRequest struct {
	// WrappedOrgKey is the organization key the accepter rewrapped for
	// themselves after decrypting the invite-time copy. Required.
	WrappedOrgKey string `json:"wrapped_org_key"`
}

// acceptInvitation handles POST /api/v1/invitations/token/{token}/accept.
// Only the user whose email the invitation names may accept it.
func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	token, ok := httputil.ParsePathStringOrError(w, r, "token")
	if !ok {
		return
	}

	var req acceptInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	membership, err := s.orgs.AcceptInvitation(r.Context(), user, token, req.WrappedOrgKey, middleware.RequestContext(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, membership)
}

// rejectInvitation handles POST /api/v1/invitations/token/{token}/reject
func (s *Server) rejectInvitation(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	token, ok := httputil.ParsePathStringOrError(w, r, "token")
	if !ok {
		return
	}

	if err := s.orgs.RejectInvitation(r.Context(), user, token, middleware.RequestContext(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
