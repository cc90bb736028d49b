package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/accounts"
	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/httputil"
	"github.com/platinummonkey/ledgerlock/pkg/middleware"
)

type createAccountRequest struct {
	OrganizationID    *uuid.UUID      `json:"organization_id"`
	EncryptedData     string          `json:"encrypted_data"`
	EncryptedDEK      string          `json:"encrypted_dek"`
	Currency          string          `json:"currency"`
	EncryptionVersion int             `json:"encryption_version"`
	DefaultPermission auth.Permission `json:"default_permission"`
}

// createAccount handles POST /api/v1/accounts. Account metadata arrives
// encrypted under a per-account DEK; the DEK arrives wrapped under the
// owner's master key, or the organization key for shared accounts.
func (s *Server) createAccount(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)

	var req createAccountRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	account, err := s.accounts.Create(r.Context(), user, accounts.CreateParams{
		OrganizationID:    req.OrganizationID,
		EncryptedData:     req.EncryptedData,
		EncryptedDEK:      req.EncryptedDEK,
		Currency:          req.Currency,
		EncryptionVersion: req.EncryptionVersion,
		DefaultPermission: req.DefaultPermission,
	}, middleware.RequestContext(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteCreated(w, account)
}

// listAccounts handles GET /api/v1/accounts, returning every account the
// user can see: personal ones plus those of organizations they belong to.
func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)

	list, err := s.accounts.ListVisible(r.Context(), user)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"accounts": list})
}

// getAccount handles GET /api/v1/accounts/{id}
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	accountID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	account, err := s.accounts.Get(r.Context(), user, accountID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, account)
}

type updateAccountRequest struct {
	EncryptedData     *string          `json:"encrypted_data"`
	EncryptedDEK      *string          `json:"encrypted_dek"`
	DefaultPermission *auth.Permission `json:"default_permission"`
}

// updateAccount handles PUT /api/v1/accounts/{id}
func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	accountID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req updateAccountRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	account, err := s.accounts.Update(r.Context(), user, accountID, accounts.UpdateParams{
		EncryptedData:     req.EncryptedData,
		EncryptedDEK:      req.EncryptedDEK,
		DefaultPermission: req.DefaultPermission,
	}, middleware.RequestContext(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, account)
}

// deleteAccount handles DELETE /api/v1/accounts/{id}
func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	accountID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.accounts.Delete(r.Context(), user, accountID, middleware.RequestContext(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// listAccountPermissions handles GET /api/v1/accounts/{id}/permissions
func (s *Server) listAccountPermissions(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	accountID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	list, err := s.accounts.ListPermissions(r.Context(), user, accountID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"permissions": list})
}

type setPermissionRequest struct {
	Permission auth.Permission `json:"permission"`
}

// setAccountPermission handles PUT /api/v1/accounts/{id}/permissions/{userId}
func (s *Server) setAccountPermission(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	accountID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	granteeID, ok := httputil.ParsePathUUIDOrError(w, r, "userId")
	if !ok {
		return
	}

	var req setPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm, err := s.accounts.SetPermission(r.Context(), user, accountID, granteeID, req.Permission, middleware.RequestContext(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, perm)
}

// removeAccountPermission handles DELETE /api/v1/accounts/{id}/permissions/{userId}
func (s *Server) removeAccountPermission(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromRequest(r)
	accountID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}
	granteeID, ok := httputil.ParsePathUUIDOrError(w, r, "userId")
	if !ok {
		return
	}

	if err := s.accounts.RemovePermission(r.Context(), user, accountID, granteeID, middleware.RequestContext(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}
