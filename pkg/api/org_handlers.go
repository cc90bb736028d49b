package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/audit"
	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/httputil"
	"github.com/platinummonkey/ledgerlock/pkg/middleware"
	"github.com/platinummonkey/ledgerlock/pkg/orgs"
)

type createOrganizationRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	WrappedOrgKey string `json:"wrapped_org_key"`
}

// createOrganization handles POST /api/v1/organizations. The creator
// supplies the organization key wrapped under their own public key; the
// server never sees the key itself.
func (s *Server) createOrganization(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)

	var req createOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := s.orgs.CreateOrganization(r.Context(), user, req.Name, req.Description, req.WrappedOrgKey, middleware.RequestContext(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, org)
}

// listOrganizations handles GET /api/v1/organizations
func (s *Server) listOrganizations(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)

	list, err := s.orgs.ListForUser(r.Context(), user.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"organizations": list})
}

// getOrganization handles GET /api/v1/organizations/{id}. Membership is
// required; non-members get the same opaque 403 as everyone else.
func (s *Server) getOrganization(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := s.orgs.RequireMember(r.Context(), orgID, user.ID, ""); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	org, err := s.orgs.GetOrganization(r.Context(), orgID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

type updateOrganizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// updateOrganization handles PUT /api/v1/organizations/{id}
func (s *Server) updateOrganization(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req updateOrganizationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	org, err := s.orgs.UpdateOrganization(r.Context(), user, orgID, req.Name, req.Description, middleware.RequestContext(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, org)
}

// deleteOrganization handles DELETE /api/v1/organizations/{id}
func (s *Server) deleteOrganization(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.orgs.DeleteOrganization(r.Context(), user, orgID, middleware.RequestContext(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// listMembers handles GET /api/v1/organizations/{id}/members
func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	members, err := s.orgs.ListMembers(r.Context(), user, orgID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"members": members})
}

type updateMemberRoleRequest struct {
	Role auth.Role `json:"role"`
}

// updateMemberRole handles PUT /api/v1/organizations/{id}/members/{userId}
func (s *Server) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	targetID, ok := httputil.ParsePathUUIDOrError(w, r, "userId")
	if !ok {
		return
	}

	var req updateMemberRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.orgs.UpdateMemberRole(r.Context(), user, orgID, targetID, req.Role, middleware.RequestContext(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// removeMember handles DELETE /api/v1/organizations/{id}/members/{userId}
func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	targetID, ok := httputil.ParsePathUUIDOrError(w, r, "userId")
	if !ok {
		return
	}

	if err := s.orgs.RemoveMember(r.Context(), user, orgID, targetID, middleware.RequestContext(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

type transferOwnershipRequest struct {
	NewOwnerID uuid.UUID `json:"new_owner_id"`
}

// transferOwnership handles POST /api/v1/organizations/{id}/transfer
func (s *Server) transferOwnership(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req transferOwnershipRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.NewOwnerID == uuid.Nil {
		httputil.WriteBadRequest(w, "new_owner_id is required")
		return
	}

	if err := s.orgs.TransferOwnership(r.Context(), user, orgID, req.NewOwnerID, middleware.RequestContext(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// rotateKeys handles POST /api/v1/organizations/{id}/rotate-keys. The
// client re-wraps the new organization key for every member and re-encrypts
// every account DEK before calling; the server only swaps ciphertexts.
func (s *Server) rotateKeys(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req orgs.RotationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := s.orgs.RotateKeys(r.Context(), user, orgID, req, middleware.RequestContext(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, result)
}

// listAuditLog handles GET /api/v1/organizations/{id}/audit. Admin only.
func (s *Server) listAuditLog(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := s.orgs.RequireAdmin(r.Context(), orgID, user.ID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	actorID, err := httputil.ParseQueryUUID(r, "user_id")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	page, err := s.auditStore.ListForOrganization(r.Context(), orgID, audit.ListFilter{
		Action:       audit.Action(httputil.ParseQueryString(r, "action", "")),
		ResourceType: audit.ResourceType(httputil.ParseQueryString(r, "resource_type", "")),
		UserID:       actorID,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, page)
}
